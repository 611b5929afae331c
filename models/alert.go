package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PriceAlert represents a user's price-threshold alert on one asset. A user
// has at most one alert per asset. The two last-triggered timestamps are the
// per-direction latches: once set, that direction stays silent until the
// alert is edited again (any edit clears both latches).
type PriceAlert struct {
	ID                  uint             `gorm:"primaryKey" json:"id"`
	UserID              uint             `gorm:"not null;uniqueIndex:uq_user_asset" json:"user_id"`
	AssetID             uint             `gorm:"not null;uniqueIndex:uq_user_asset" json:"asset_id"`
	Asset               CryptoAsset      `gorm:"foreignKey:AssetID" json:"asset,omitempty"`
	ThresholdHigh       *decimal.Decimal `gorm:"type:decimal(24,8)" json:"threshold_high"`
	ThresholdLow        *decimal.Decimal `gorm:"type:decimal(24,8)" json:"threshold_low"`
	Active              bool             `gorm:"default:true" json:"active"`
	LastTriggeredHighAt *time.Time       `json:"last_triggered_high_at"`
	LastTriggeredLowAt  *time.Time       `json:"last_triggered_low_at"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

// MigrateAlertModels runs database migrations for alert-related models
func MigrateAlertModels(db *gorm.DB) error {
	return db.AutoMigrate(&PriceAlert{})
}
