package services

import (
	"errors"
	"fmt"

	"crypto_backend_project/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrUnknownAsset is returned when an alert references an external id absent
// from the catalog
var ErrUnknownAsset = errors.New("unknown asset")

// ErrNoThreshold is returned when an alert upsert carries neither threshold
var ErrNoThreshold = errors.New("at least one threshold must be set")

// AlertService is the user-facing CRUD surface for price alerts. The
// collection pipeline only ever writes the latch timestamps; everything else
// on an alert row is owned here.
type AlertService struct {
	db     *gorm.DB
	assets *AssetService
}

// NewAlertService creates a new alert service
func NewAlertService(db *gorm.DB) *AlertService {
	return &AlertService{
		db:     db,
		assets: NewAssetService(db),
	}
}

// UpsertAlert creates or edits the single alert a user holds on an asset.
// Every edit resets both last-triggered latches regardless of which
// threshold changed, re-arming the alert in both directions.
func (s *AlertService) UpsertAlert(userID uint, externalID string, thresholdHigh, thresholdLow *decimal.Decimal, active *bool) (*models.PriceAlert, error) {
	if thresholdHigh == nil && thresholdLow == nil {
		return nil, ErrNoThreshold
	}

	asset, err := s.assets.FindByExternalID(externalID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, externalID)
		}
		return nil, err
	}

	var alert models.PriceAlert
	err = s.db.Where("user_id = ? AND asset_id = ?", userID, asset.ID).First(&alert).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to look up alert: %w", err)
		}
		alert = models.PriceAlert{UserID: userID, AssetID: asset.ID}
	}

	alert.ThresholdHigh = thresholdHigh
	alert.ThresholdLow = thresholdLow
	alert.Active = active == nil || *active
	alert.LastTriggeredHighAt = nil
	alert.LastTriggeredLowAt = nil

	if err := s.db.Save(&alert).Error; err != nil {
		return nil, fmt.Errorf("failed to save alert: %w", err)
	}

	alert.Asset = *asset
	return &alert, nil
}

// ListAlerts returns a user's alerts with their assets preloaded
func (s *AlertService) ListAlerts(userID uint) ([]models.PriceAlert, error) {
	var alerts []models.PriceAlert
	err := s.db.Where("user_id = ?", userID).Preload("Asset").Order("created_at ASC").Find(&alerts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return alerts, nil
}

// DeleteAlert removes a user's alert on an asset. Returns gorm.ErrRecordNotFound
// when the user has no alert on that asset.
func (s *AlertService) DeleteAlert(userID uint, externalID string) error {
	asset, err := s.assets.FindByExternalID(externalID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownAsset, externalID)
		}
		return err
	}

	res := s.db.Where("user_id = ? AND asset_id = ?", userID, asset.ID).Delete(&models.PriceAlert{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete alert: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
