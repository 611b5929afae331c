package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"crypto_backend_project/services/coingecko"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// BackfillService progressively fills recent history for catalog assets that
// have no points yet for the target currency, under the provider's rate
// limit. Each invocation newly covers at most batchSize assets; the pacing
// limiter spaces successive chart fetches so the free tier is not tripped.
type BackfillService struct {
	db       *gorm.DB
	api      MarketAPI
	assets   *AssetService
	history  *HistoryService
	days     int
	topCount int
	pacer    *rate.Limiter
}

// NewBackfillService creates a new backfill service. pace is the minimum
// delay between two chart fetches within one invocation.
func NewBackfillService(db *gorm.DB, api MarketAPI, days, topCount int, pace time.Duration) *BackfillService {
	return &BackfillService{
		db:       db,
		api:      api,
		assets:   NewAssetService(db),
		history:  NewHistoryService(db),
		days:     days,
		topCount: topCount,
		pacer:    rate.NewLimiter(rate.Every(pace), 1),
	}
}

// BackfillMissing walks the catalog in market-cap rank order and fills the
// last-N-days series for assets with zero history points for vsCurrency.
// It stops after newly covering batchSize assets; already-covered assets do
// not count against the batch. A rate-limit signal aborts the remaining
// batch (points already written stand) and is returned so the tick driver
// can log it and resume next tick. Any other per-asset failure is logged and
// the loop continues. Returns the count of newly covered assets.
func (s *BackfillService) BackfillMissing(ctx context.Context, vsCurrency string, batchSize int) (int, error) {
	top, err := s.assets.TopByRank(s.topCount)
	if err != nil {
		return 0, err
	}
	if len(top) == 0 {
		log.Println("Backfill: catalog is empty, nothing to do")
		return 0, nil
	}

	done := 0
	for _, asset := range top {
		if done >= batchSize {
			break
		}
		if asset.ID == 0 || asset.ExternalID == "" {
			continue
		}

		covered, err := s.history.HasAnyPoint(asset.ID, vsCurrency)
		if err != nil {
			log.Printf("Backfill: coverage check failed for %s: %v", asset.ExternalID, err)
			continue
		}
		if covered {
			continue
		}

		// Self-throttle before each external fetch
		if err := s.pacer.Wait(ctx); err != nil {
			return done, err
		}

		log.Printf("Backfill: filling %d-day history for %s (%s)", s.days, asset.Name, asset.ExternalID)
		_, err = s.FillHistory(ctx, asset.ExternalID, vsCurrency, s.days)
		if err != nil {
			if errors.Is(err, coingecko.ErrRateLimited) {
				log.Println("Backfill: rate limited, aborting batch until next tick")
				return done, err
			}
			log.Printf("Backfill: failed for %s (%s): %v", asset.Name, asset.ExternalID, err)
			continue
		}
		done++
	}

	return done, nil
}

// FillHistory fetches the chart series for one asset and upserts every entry
// with the series' own timestamps. Price, market-cap and volume series are
// aligned by index; caps and volumes may be missing or shorter than prices,
// in which case the point simply stores no value for them. Returns the
// number of points written.
func (s *BackfillService) FillHistory(ctx context.Context, externalID, vsCurrency string, days int) (int, error) {
	asset, err := s.assets.FindByExternalID(externalID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("unknown asset: external_id=%s", externalID)
		}
		return 0, err
	}

	chart, err := s.api.FetchMarketChart(ctx, externalID, vsCurrency, days)
	if err != nil {
		return 0, err
	}
	if chart == nil || len(chart.Prices) == 0 {
		return 0, nil
	}

	// The whole series for one asset commits as a unit
	count := 0
	err = s.db.Transaction(func(tx *gorm.DB) error {
		for i, entry := range chart.Prices {
			if len(entry) < 2 {
				log.Printf("Backfill: skipping malformed chart entry %d for %s", i, externalID)
				continue
			}

			ts := time.UnixMilli(int64(entry[0])).UTC()
			price := decimal.NewFromFloat(entry[1])
			marketCap := seriesValueAt(chart.MarketCaps, i)
			volume := seriesValueAt(chart.TotalVolumes, i)

			if err := upsertPoint(tx, asset.ID, vsCurrency, ts, price, marketCap, volume); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// seriesValueAt returns the value part of series[i], or nil when the series
// is absent, shorter than the price series, or the entry is malformed
func seriesValueAt(series [][]float64, i int) *decimal.Decimal {
	if series == nil || i >= len(series) || len(series[i]) < 2 {
		return nil
	}
	d := decimal.NewFromFloat(series[i][1])
	return &d
}

// Covered reports the backfill coverage for a currency, for logging and the
// scheduler's bootstrap decision
func (s *BackfillService) Covered(vsCurrency string) (int64, error) {
	return s.history.CountDistinctAssetsCovered(vsCurrency)
}
