package services

import (
	"fmt"
	"time"

	"crypto_backend_project/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PricePoint is one (timestamp, price) element of a queried series
type PricePoint struct {
	Ts    time.Time       `json:"ts"`
	Price decimal.Decimal `json:"price"`
}

// HistoryService stores the append-only, de-duplicated price time series.
// The natural key is (asset id, vs_currency, ts); writing the same key twice
// overwrites the numeric fields in place.
type HistoryService struct {
	db *gorm.DB
}

// NewHistoryService creates a new history service
func NewHistoryService(db *gorm.DB) *HistoryService {
	return &HistoryService{db: db}
}

// UpsertPoint inserts or overwrites one history point
func (s *HistoryService) UpsertPoint(assetID uint, vsCurrency string, ts time.Time, price decimal.Decimal, marketCap, totalVolume *decimal.Decimal) error {
	return upsertPoint(s.db, assetID, vsCurrency, ts, price, marketCap, totalVolume)
}

// upsertPoint is the transaction-aware implementation shared with the
// collector, which batches the asset update and its NOW point in one tx
func upsertPoint(db *gorm.DB, assetID uint, vsCurrency string, ts time.Time, price decimal.Decimal, marketCap, totalVolume *decimal.Decimal) error {
	point := models.CryptoPriceHistory{
		AssetID:     assetID,
		VsCurrency:  vsCurrency,
		Ts:          ts,
		Price:       price,
		MarketCap:   marketCap,
		TotalVolume: totalVolume,
	}

	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "asset_id"},
			{Name: "vs_currency"},
			{Name: "ts"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"price", "market_cap", "total_volume"}),
	}).Create(&point).Error
	if err != nil {
		return fmt.Errorf("failed to upsert history point for asset %d: %w", assetID, err)
	}
	return nil
}

// HasAnyPoint reports whether an asset already has at least one history point
// for a currency. Used to decide whether the asset still needs backfilling.
func (s *HistoryService) HasAnyPoint(assetID uint, vsCurrency string) (bool, error) {
	var count int64
	err := s.db.Model(&models.CryptoPriceHistory{}).
		Where("asset_id = ? AND vs_currency = ?", assetID, vsCurrency).
		Limit(1).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check history coverage: %w", err)
	}
	return count > 0, nil
}

// CountDistinctAssetsCovered returns how many distinct assets have at least
// one history point for a currency. The scheduler derives its bootstrap state
// from this query instead of caching a flag, so restarts are safe.
func (s *HistoryService) CountDistinctAssetsCovered(vsCurrency string) (int64, error) {
	var count int64
	err := s.db.Model(&models.CryptoPriceHistory{}).
		Where("vs_currency = ?", vsCurrency).
		Distinct("asset_id").
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count covered assets: %w", err)
	}
	return count, nil
}

// PriceSeries returns the (ts, price) series for an asset ascending by
// timestamp, inclusive of fromTs. An unknown asset or empty period yields an
// empty slice, not an error.
func (s *HistoryService) PriceSeries(assetID uint, vsCurrency string, fromTs time.Time) ([]PricePoint, error) {
	var rows []models.CryptoPriceHistory
	err := s.db.Model(&models.CryptoPriceHistory{}).
		Where("asset_id = ? AND vs_currency = ? AND ts >= ?", assetID, vsCurrency, fromTs).
		Order("ts ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query price series: %w", err)
	}

	series := make([]PricePoint, 0, len(rows))
	for _, row := range rows {
		series = append(series, PricePoint{Ts: row.Ts, Price: row.Price})
	}
	return series, nil
}
