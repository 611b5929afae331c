package scheduler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"crypto_backend_project/models"
	"crypto_backend_project/services"
	"crypto_backend_project/services/coingecko"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, models.MigrateCryptoModels(db))
	require.NoError(t, models.MigrateUserModels(db))
	require.NoError(t, models.MigrateAlertModels(db))
	return db
}

// stubAPI serves a fixed three-asset market and one-point charts
type stubAPI struct {
	rateLimitMarkets bool
	marketCalls      int
	chartCalls       int
}

func (s *stubAPI) FetchTopMarkets(ctx context.Context, vsCurrency string, page, perPage int) ([]coingecko.MarketCoin, error) {
	s.marketCalls++
	if s.rateLimitMarkets {
		return nil, coingecko.ErrRateLimited
	}
	price := func(v float64) *float64 { return &v }
	rank := func(v int) *int { return &v }
	return []coingecko.MarketCoin{
		{ID: "bitcoin", Symbol: "btc", Name: "Bitcoin", CurrentPrice: price(50000), MarketCapRank: rank(1)},
		{ID: "ethereum", Symbol: "eth", Name: "Ethereum", CurrentPrice: price(3000), MarketCapRank: rank(2)},
		{ID: "tether", Symbol: "usdt", Name: "Tether", CurrentPrice: price(1), MarketCapRank: rank(3)},
	}, nil
}

func (s *stubAPI) FetchMarketChart(ctx context.Context, externalID, vsCurrency string, days int) (*coingecko.MarketChart, error) {
	s.chartCalls++
	return &coingecko.MarketChart{
		Prices: [][]float64{{float64(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC).UnixMilli()), 100}},
	}, nil
}

type nopMailer struct{ sent int }

func (m *nopMailer) Send(to, subject, htmlBody string) error {
	m.sent++
	return nil
}

func newTestScheduler(db *gorm.DB, api services.MarketAPI, mailer services.Mailer, batchSize int) *Scheduler {
	collector := services.NewCollectorService(db, api, "usd", 100)
	backfill := services.NewBackfillService(db, api, 7, 100, time.Millisecond)
	checker := services.NewAlertCheckerService(db, mailer, "http://localhost:3000")
	return NewScheduler(db, collector, backfill, checker, nil, Config{
		Interval:           30 * time.Second,
		VsCurrency:         "usd",
		CoverageTarget:     3,
		BootstrapBatchSize: batchSize,
	})
}

func TestTickWalksThroughAllStates(t *testing.T) {
	db := newTestDB(t)
	api := &stubAPI{}
	mailer := &nopMailer{}
	s := newTestScheduler(db, api, mailer, 2)
	ctx := context.Background()

	// First tick: catalog only, no history yet
	require.Equal(t, StateUninitialized, s.State())
	require.NoError(t, s.Tick(ctx))
	assert.Equal(t, StateBootstrapping, s.State())

	var points int64
	require.NoError(t, db.Model(&models.CryptoPriceHistory{}).Count(&points).Error)
	assert.Zero(t, points, "initialization fills the catalog without NOW points")

	// Second tick: one bounded backfill batch, no steady collection
	require.NoError(t, s.Tick(ctx))
	assert.Equal(t, StateBootstrapping, s.State())
	assert.Equal(t, 2, api.chartCalls)
	assert.Equal(t, 1, api.marketCalls, "bootstrap ticks do not poll the snapshot")

	// Third tick: last asset gets covered, still a backfill-only tick
	require.NoError(t, s.Tick(ctx))
	assert.Equal(t, StateBootstrapping, s.State())
	assert.Equal(t, 3, api.chartCalls)

	// Fourth tick: coverage at target, same tick continues into steady work
	require.NoError(t, s.Tick(ctx))
	assert.Equal(t, StateSteady, s.State())
	assert.Equal(t, 2, api.marketCalls)

	require.NoError(t, db.Model(&models.CryptoPriceHistory{}).Count(&points).Error)
	assert.EqualValues(t, 6, points, "3 backfilled points plus 3 NOW points")

	// Steady ticks keep collecting
	require.NoError(t, s.Tick(ctx))
	assert.Equal(t, 3, api.marketCalls)
	assert.Equal(t, 3, api.chartCalls, "no backfill once steady")
}

func TestBootstrapSkipsAlertEvaluation(t *testing.T) {
	db := newTestDB(t)
	api := &stubAPI{}
	mailer := &nopMailer{}
	s := newTestScheduler(db, api, mailer, 2)
	ctx := context.Background()

	require.NoError(t, s.Tick(ctx))

	// Arm an alert that would fire against the backfilled catalog price
	user := models.User{Email: "alice@example.com", PasswordHash: "x", IsActive: true}
	require.NoError(t, db.Create(&user).Error)
	var asset models.CryptoAsset
	require.NoError(t, db.Where("external_id = ?", "bitcoin").First(&asset).Error)
	threshold := decimal.RequireFromString("45000")
	alert := models.PriceAlert{UserID: user.ID, AssetID: asset.ID, ThresholdHigh: &threshold, Active: true}
	require.NoError(t, db.Create(&alert).Error)

	require.NoError(t, s.Tick(ctx))
	assert.Equal(t, StateBootstrapping, s.State())
	assert.Zero(t, mailer.sent, "no notifications while bootstrapping")

	require.NoError(t, s.Tick(ctx))
	require.NoError(t, s.Tick(ctx))
	assert.Equal(t, StateSteady, s.State())
	assert.Equal(t, 1, mailer.sent, "the steady tick evaluates alerts")
}

func TestRestartResumesFromCoverage(t *testing.T) {
	db := newTestDB(t)
	api := &stubAPI{}
	mailer := &nopMailer{}
	ctx := context.Background()

	first := newTestScheduler(db, api, mailer, 3)
	require.NoError(t, first.Tick(ctx))
	require.NoError(t, first.Tick(ctx))

	// A fresh process re-derives its phase from the database
	second := newTestScheduler(db, api, mailer, 3)
	require.Equal(t, StateUninitialized, second.State())
	require.NoError(t, second.Tick(ctx))
	require.NoError(t, second.Tick(ctx))
	assert.Equal(t, StateSteady, second.State())
	assert.Equal(t, 3, api.chartCalls, "already covered assets are not refetched after restart")
}

func TestRunCollectionTickSwallowsFailures(t *testing.T) {
	db := newTestDB(t)
	api := &stubAPI{rateLimitMarkets: true}
	mailer := &nopMailer{}
	s := newTestScheduler(db, api, mailer, 2)

	// A rate-limited tick must not panic or change state
	s.runCollectionTick()
	assert.Equal(t, StateUninitialized, s.State())

	// Once the provider recovers the pipeline moves on
	api.rateLimitMarkets = false
	s.runCollectionTick()
	assert.Equal(t, StateBootstrapping, s.State())
}
