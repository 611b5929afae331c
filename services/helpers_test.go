package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"crypto_backend_project/models"
	"crypto_backend_project/services/coingecko"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens a throwaway sqlite database with all tables migrated
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

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func fptr(v float64) *float64 { return &v }

func iptr(v int) *int { return &v }

// seedAsset inserts one catalog row directly
func seedAsset(t *testing.T, db *gorm.DB, externalID, name string, price *decimal.Decimal, rank *int) models.CryptoAsset {
	t.Helper()

	asset := models.CryptoAsset{
		ExternalID:    externalID,
		Symbol:        externalID[:1],
		Name:          name,
		CurrentPrice:  price,
		MarketCapRank: rank,
	}
	require.NoError(t, db.Create(&asset).Error)
	return asset
}

// seedUser inserts one user row directly
func seedUser(t *testing.T, db *gorm.DB, email string) models.User {
	t.Helper()

	user := models.User{Email: email, PasswordHash: "x", IsActive: true}
	require.NoError(t, db.Create(&user).Error)
	return user
}

// fakeMarketAPI is a scriptable MarketAPI for tests. Charts are keyed by
// external id; chartErrs overrides the chart response for one asset.
type fakeMarketAPI struct {
	coins     []coingecko.MarketCoin
	coinsErr  error
	charts    map[string]*coingecko.MarketChart
	chartErrs map[string]error

	marketCalls int
	chartCalls  []string
}

func (f *fakeMarketAPI) FetchTopMarkets(ctx context.Context, vsCurrency string, page, perPage int) ([]coingecko.MarketCoin, error) {
	f.marketCalls++
	if f.coinsErr != nil {
		return nil, f.coinsErr
	}
	return f.coins, nil
}

func (f *fakeMarketAPI) FetchMarketChart(ctx context.Context, externalID, vsCurrency string, days int) (*coingecko.MarketChart, error) {
	f.chartCalls = append(f.chartCalls, externalID)
	if err, ok := f.chartErrs[externalID]; ok {
		return nil, err
	}
	if chart, ok := f.charts[externalID]; ok {
		return chart, nil
	}
	return &coingecko.MarketChart{}, nil
}

// fakeMailer records sends and can be told to fail
type fakeMailer struct {
	sent    []sentMail
	sendErr error
}

type sentMail struct {
	To      string
	Subject string
	Body    string
}

func (f *fakeMailer) Send(to, subject, htmlBody string) error {
	f.sent = append(f.sent, sentMail{To: to, Subject: subject, Body: htmlBody})
	return f.sendErr
}

// chartOf builds an aligned chart from (tsMillis, price) pairs
func chartOf(points ...[2]float64) *coingecko.MarketChart {
	chart := &coingecko.MarketChart{}
	for _, p := range points {
		chart.Prices = append(chart.Prices, []float64{p[0], p[1]})
	}
	return chart
}

// tsMilli converts a time to the float millisecond form chart series use
func tsMilli(ts time.Time) float64 {
	return float64(ts.UnixMilli())
}
