package services

import (
	"errors"
	"fmt"
	"log"

	"crypto_backend_project/models"
	"crypto_backend_project/services/coingecko"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AssetService is the catalog of tracked crypto assets, keyed by the quote
// provider's external id
type AssetService struct {
	db *gorm.DB
}

// NewAssetService creates a new asset service
func NewAssetService(db *gorm.DB) *AssetService {
	return &AssetService{db: db}
}

// UpsertFromSnapshot applies one market snapshot to the catalog: each entry
// is matched to an existing row by external id or creates a new one, and all
// mutable market fields are overwritten unconditionally. An entry without an
// external id is skipped with a warning; one bad entry never aborts the rest
// of the snapshot. Returns the number of rows touched.
func (s *AssetService) UpsertFromSnapshot(coins []coingecko.MarketCoin) (int, error) {
	touched := 0
	for _, coin := range coins {
		if coin.ID == "" {
			log.Printf("Warning: skipping snapshot entry without external id (symbol=%q)", coin.Symbol)
			continue
		}
		if _, err := upsertAsset(s.db, coin); err != nil {
			log.Printf("Error upserting asset %s: %v", coin.ID, err)
			continue
		}
		touched++
	}
	return touched, nil
}

// upsertAsset finds or creates the catalog row for one snapshot entry and
// overwrites its market fields. Shared with the collector so the asset write
// and its NOW point can run in a single transaction.
func upsertAsset(db *gorm.DB, coin coingecko.MarketCoin) (*models.CryptoAsset, error) {
	var asset models.CryptoAsset
	err := db.Where("external_id = ?", coin.ID).First(&asset).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to look up asset %s: %w", coin.ID, err)
		}
		asset = models.CryptoAsset{ExternalID: coin.ID}
	}

	asset.Symbol = coin.Symbol
	asset.Name = coin.Name
	asset.CurrentPrice = decimalPtr(coin.CurrentPrice)
	asset.MarketCap = decimalPtr(coin.MarketCap)
	asset.TotalVolume = decimalPtr(coin.TotalVolume)
	asset.PriceChange24h = decimalPtr(coin.PriceChange24h)
	asset.ImageURL = coin.Image
	asset.MarketCapRank = coin.MarketCapRank

	if err := db.Save(&asset).Error; err != nil {
		return nil, fmt.Errorf("failed to save asset %s: %w", coin.ID, err)
	}
	return &asset, nil
}

// TopByRank returns up to n assets ordered by market-cap rank ascending.
// Assets without a rank sort last so the backfill order always starts with
// the largest caps.
func (s *AssetService) TopByRank(n int) ([]models.CryptoAsset, error) {
	var assets []models.CryptoAsset
	err := s.db.Where("market_cap_rank IS NOT NULL").
		Order("market_cap_rank ASC").
		Limit(n).
		Find(&assets).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query top assets: %w", err)
	}

	if len(assets) < n {
		var unranked []models.CryptoAsset
		err := s.db.Where("market_cap_rank IS NULL").
			Order("id ASC").
			Limit(n - len(assets)).
			Find(&unranked).Error
		if err != nil {
			return nil, fmt.Errorf("failed to query unranked assets: %w", err)
		}
		assets = append(assets, unranked...)
	}
	return assets, nil
}

// FindByExternalID returns the catalog row for an external id
func (s *AssetService) FindByExternalID(externalID string) (*models.CryptoAsset, error) {
	var asset models.CryptoAsset
	if err := s.db.Where("external_id = ?", externalID).First(&asset).Error; err != nil {
		return nil, err
	}
	return &asset, nil
}

// CurrentPrice returns the latest snapshot price for an asset, or nil when
// the catalog has no price yet. A nil price is a normal state for newly seen
// assets ("data not ready"), not an error.
func (s *AssetService) CurrentPrice(assetID uint) (*decimal.Decimal, error) {
	var asset models.CryptoAsset
	if err := s.db.First(&asset, assetID).Error; err != nil {
		return nil, err
	}
	return asset.CurrentPrice, nil
}

// decimalPtr converts an optional API float into an optional decimal
func decimalPtr(v *float64) *decimal.Decimal {
	if v == nil {
		return nil
	}
	d := decimal.NewFromFloat(*v)
	return &d
}
