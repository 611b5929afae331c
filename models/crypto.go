package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CryptoAsset represents one tracked crypto asset. A row is identified by the
// quote provider's external id and its market fields are overwritten wholesale
// on every successful snapshot collection.
type CryptoAsset struct {
	ID             uint             `gorm:"primaryKey" json:"id"`
	ExternalID     string           `gorm:"uniqueIndex;not null" json:"external_id"`
	Symbol         string           `json:"symbol"`
	Name           string           `json:"name"`
	CurrentPrice   *decimal.Decimal `gorm:"type:decimal(24,8)" json:"current_price"`
	MarketCap      *decimal.Decimal `gorm:"type:decimal(24,2)" json:"market_cap"`
	TotalVolume    *decimal.Decimal `gorm:"type:decimal(24,2)" json:"total_volume"`
	PriceChange24h *decimal.Decimal `gorm:"type:decimal(24,8)" json:"price_change_24h"`
	ImageURL       string           `json:"image_url"`
	MarketCapRank  *int             `gorm:"index" json:"market_cap_rank"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// CryptoPriceHistory is one point of the append-only price time series.
// UNIQUE(asset_id, vs_currency, ts) makes repeated writes for the same key an
// overwrite of the numeric fields, never a duplicate row.
type CryptoPriceHistory struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	AssetID     uint             `gorm:"not null;uniqueIndex:uq_price_history_point" json:"asset_id"`
	Asset       CryptoAsset      `gorm:"foreignKey:AssetID" json:"asset,omitempty"`
	VsCurrency  string           `gorm:"size:10;not null;uniqueIndex:uq_price_history_point" json:"vs_currency"`
	Ts          time.Time        `gorm:"not null;uniqueIndex:uq_price_history_point" json:"ts"`
	Price       decimal.Decimal  `gorm:"type:decimal(24,8);not null" json:"price"`
	MarketCap   *decimal.Decimal `gorm:"type:decimal(24,2)" json:"market_cap"`
	TotalVolume *decimal.Decimal `gorm:"type:decimal(24,2)" json:"total_volume"`
	CreatedAt   time.Time        `json:"created_at"`
}

// MigrateCryptoModels runs database migrations for the crypto catalog and
// price history tables
func MigrateCryptoModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&CryptoAsset{},
		&CryptoPriceHistory{},
	)
}
