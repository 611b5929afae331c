package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"crypto_backend_project/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AlertCheckerService evaluates active price alerts against the latest
// catalog prices and fires at most one notification per direction per
// crossing. The per-direction latch (last triggered timestamp) stays set
// until the alert is edited, which re-arms both directions.
type AlertCheckerService struct {
	db          *gorm.DB
	assets      *AssetService
	mailer      Mailer
	frontendURL string
}

// NewAlertCheckerService creates a new alert checker
func NewAlertCheckerService(db *gorm.DB, mailer Mailer, frontendURL string) *AlertCheckerService {
	return &AlertCheckerService{
		db:          db,
		assets:      NewAssetService(db),
		mailer:      mailer,
		frontendURL: frontendURL,
	}
}

// CheckAlerts scans every active alert once, resolving each asset's price
// through the catalog. The high and low checks are independent: with equal
// thresholds and a matching price both directions fire in the same pass. An
// alert whose asset is gone or has no price yet is skipped untouched, and an
// alert whose owner has no resolvable email is skipped without latching so
// it stays eligible next tick.
func (s *AlertCheckerService) CheckAlerts() error {
	var alerts []models.PriceAlert
	if err := s.db.Where("active = ?", true).Preload("Asset").Find(&alerts).Error; err != nil {
		return fmt.Errorf("failed to load active alerts: %w", err)
	}
	if len(alerts) == 0 {
		return nil
	}

	now := time.Now().UTC()

	for i := range alerts {
		alert := &alerts[i]

		current, err := s.assets.CurrentPrice(alert.AssetID)
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				log.Printf("Error resolving price for alert %d: %v", alert.ID, err)
			}
			continue
		}
		if current == nil {
			continue
		}
		price := *current

		updates := map[string]interface{}{}

		if alert.ThresholdHigh != nil && alert.LastTriggeredHighAt == nil && price.GreaterThanOrEqual(*alert.ThresholdHigh) {
			if s.notify(alert, price, *alert.ThresholdHigh, "above") {
				updates["last_triggered_high_at"] = now
			}
		}

		if alert.ThresholdLow != nil && alert.LastTriggeredLowAt == nil && price.LessThanOrEqual(*alert.ThresholdLow) {
			if s.notify(alert, price, *alert.ThresholdLow, "below") {
				updates["last_triggered_low_at"] = now
			}
		}

		if len(updates) == 0 {
			continue
		}
		// One latch write per alert
		if err := s.db.Model(alert).Updates(updates).Error; err != nil {
			log.Printf("Error saving alert latch for alert %d: %v", alert.ID, err)
		}
	}

	return nil
}

// notify resolves the alert owner's email and sends the threshold mail.
// Returns true when the direction should latch; an unresolvable address
// returns false so the alert is retried on a later tick. A failed send still
// latches: delivery failures are logged, not retried.
func (s *AlertCheckerService) notify(alert *models.PriceAlert, price, threshold decimal.Decimal, direction string) bool {
	email, err := s.resolveEmail(alert.UserID)
	if err != nil {
		log.Printf("Warning: no email for user %d (alert %d): %v", alert.UserID, alert.ID, err)
		return false
	}

	assetName := alert.Asset.ExternalID
	subject := fmt.Sprintf("Price alert: %s is %s %s", assetName, direction, threshold.String())
	body := buildAlertEmail(assetName, price, threshold, direction, s.frontendURL+"/alerts")

	if err := s.mailer.Send(email, subject, body); err != nil {
		log.Printf("Error sending %s alert for %s to %s: %v", direction, assetName, email, err)
	} else {
		log.Printf("Sent %s alert for %s to %s (price=%s threshold=%s)", direction, assetName, email, price, threshold)
	}
	return true
}

// resolveEmail looks up the alert owner's address
func (s *AlertCheckerService) resolveEmail(userID uint) (string, error) {
	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("user %d not found", userID)
		}
		return "", err
	}
	if user.Email == "" {
		return "", fmt.Errorf("user %d has no email", userID)
	}
	return user.Email, nil
}

// buildAlertEmail renders the notification body: asset, current price, the
// crossed threshold, a direction label and a deep link into the frontend
func buildAlertEmail(asset string, price, threshold decimal.Decimal, direction, link string) string {
	return fmt.Sprintf(`<div style="font-family:Arial,sans-serif;line-height:1.6">
  <h2>Price alert triggered</h2>
  <p><b>Asset:</b> %s</p>
  <p><b>Current price:</b> %s</p>
  <p><b>Threshold:</b> %s (%s)</p>
  <p><a href="%s" style="display:inline-block;padding:10px 14px;background:#111;color:#fff;text-decoration:none;border-radius:6px">Open the app</a></p>
  <hr/>
  <p style="color:#666;font-size:12px">Automated email, do not reply</p>
</div>`, asset, price.String(), threshold.String(), direction, link)
}
