package services

import (
	"context"
	"log"
	"time"

	"crypto_backend_project/services/coingecko"

	"gorm.io/gorm"
)

// MarketAPI is the external quote provider contract consumed by the
// collector and the backfiller. Implemented by coingecko.Client.
type MarketAPI interface {
	FetchTopMarkets(ctx context.Context, vsCurrency string, page, perPage int) ([]coingecko.MarketCoin, error)
	FetchMarketChart(ctx context.Context, externalID, vsCurrency string, days int) (*coingecko.MarketChart, error)
}

// CollectorService refreshes the asset catalog from one market snapshot and,
// in write-now mode, appends one minute-truncated NOW point per asset to the
// price history
type CollectorService struct {
	db         *gorm.DB
	api        MarketAPI
	assets     *AssetService
	vsCurrency string
	perPage    int
}

// NewCollectorService creates a new collector service
func NewCollectorService(db *gorm.DB, api MarketAPI, vsCurrency string, perPage int) *CollectorService {
	return &CollectorService{
		db:         db,
		api:        api,
		assets:     NewAssetService(db),
		vsCurrency: vsCurrency,
		perPage:    perPage,
	}
}

// CollectTopMarkets fetches page 1 of the market snapshot and upserts every
// entry into the catalog. Catalog-only mode hands the whole snapshot to the
// asset service. When writeNowHistory is true, each asset that resolved with
// a non-nil price also gets one history point stamped with a single
// minute-truncated timestamp shared by the whole run, so all points of one
// sync land on the same instant. An empty snapshot is a logged no-op.
// Returns the number of catalog rows touched.
func (s *CollectorService) CollectTopMarkets(ctx context.Context, writeNowHistory bool) (int, error) {
	coins, err := s.api.FetchTopMarkets(ctx, s.vsCurrency, 1, s.perPage)
	if err != nil {
		return 0, err
	}

	if len(coins) == 0 {
		log.Println("Warning: empty CoinGecko snapshot, nothing collected")
		return 0, nil
	}

	if !writeNowHistory {
		touched, err := s.assets.UpsertFromSnapshot(coins)
		if err != nil {
			return touched, err
		}
		log.Printf("Collected %d/%d assets from CoinGecko (write_now=false)", touched, len(coins))
		return touched, nil
	}

	// One timestamp for the whole run avoids skew between assets
	now := time.Now().UTC().Truncate(time.Minute)

	touched := 0
	for _, coin := range coins {
		if coin.ID == "" {
			log.Printf("Warning: skipping snapshot entry without external id (symbol=%q)", coin.Symbol)
			continue
		}

		// Asset update and its NOW point commit or roll back together
		err := s.db.Transaction(func(tx *gorm.DB) error {
			asset, err := upsertAsset(tx, coin)
			if err != nil {
				return err
			}
			if asset.ID != 0 && asset.CurrentPrice != nil {
				return upsertPoint(tx, asset.ID, s.vsCurrency, now, *asset.CurrentPrice, asset.MarketCap, asset.TotalVolume)
			}
			return nil
		})
		if err != nil {
			log.Printf("Error collecting %s (%s): %v", coin.Name, coin.ID, err)
			continue
		}
		touched++
	}

	log.Printf("Collected %d/%d assets from CoinGecko (write_now=true)", touched, len(coins))
	return touched, nil
}

// ensure the real client satisfies the contract
var _ MarketAPI = (*coingecko.Client)(nil)
