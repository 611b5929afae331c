package services

import (
	"errors"
	"testing"

	"crypto_backend_project/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedAlert(t *testing.T, db *gorm.DB, userID, assetID uint, high, low *string) models.PriceAlert {
	t.Helper()

	alert := models.PriceAlert{UserID: userID, AssetID: assetID, Active: true}
	if high != nil {
		alert.ThresholdHigh = decPtr(*high)
	}
	if low != nil {
		alert.ThresholdLow = decPtr(*low)
	}
	require.NoError(t, db.Create(&alert).Error)
	return alert
}

func strPtr(s string) *string { return &s }

func TestCheckAlertsFiresHighOnceAndLatches(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, "alice@example.com")
	asset := seedAsset(t, db, "bitcoin", "Bitcoin", decPtr("50000"), iptr(1))
	alert := seedAlert(t, db, user.ID, asset.ID, strPtr("45000"), nil)

	mailer := &fakeMailer{}
	checker := NewAlertCheckerService(db, mailer, "http://localhost:3000")

	require.NoError(t, checker.CheckAlerts())
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "alice@example.com", mailer.sent[0].To)
	assert.Contains(t, mailer.sent[0].Subject, "above")

	var saved models.PriceAlert
	require.NoError(t, db.First(&saved, alert.ID).Error)
	assert.NotNil(t, saved.LastTriggeredHighAt, "high direction latched")
	assert.Nil(t, saved.LastTriggeredLowAt)

	// Still above threshold on the next pass: no second mail
	require.NoError(t, checker.CheckAlerts())
	assert.Len(t, mailer.sent, 1)
}

func TestCheckAlertsFiresLow(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, "bob@example.com")
	asset := seedAsset(t, db, "ethereum", "Ethereum", decPtr("2500"), iptr(2))
	seedAlert(t, db, user.ID, asset.ID, nil, strPtr("3000"))

	mailer := &fakeMailer{}
	checker := NewAlertCheckerService(db, mailer, "http://localhost:3000")

	require.NoError(t, checker.CheckAlerts())
	require.Len(t, mailer.sent, 1)
	assert.Contains(t, mailer.sent[0].Subject, "below")
}

func TestCheckAlertsEqualThresholdsFireBothDirections(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, "carol@example.com")
	asset := seedAsset(t, db, "tether", "Tether", decPtr("1"), iptr(3))
	alert := seedAlert(t, db, user.ID, asset.ID, strPtr("1"), strPtr("1"))

	mailer := &fakeMailer{}
	checker := NewAlertCheckerService(db, mailer, "http://localhost:3000")

	require.NoError(t, checker.CheckAlerts())
	require.Len(t, mailer.sent, 2, "price equal to both thresholds fires both directions")

	var saved models.PriceAlert
	require.NoError(t, db.First(&saved, alert.ID).Error)
	assert.NotNil(t, saved.LastTriggeredHighAt)
	assert.NotNil(t, saved.LastTriggeredLowAt)
}

func TestCheckAlertsBoundaryIsInclusive(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, "dave@example.com")
	asset := seedAsset(t, db, "bitcoin", "Bitcoin", decPtr("45000"), iptr(1))
	seedAlert(t, db, user.ID, asset.ID, strPtr("45000"), nil)

	mailer := &fakeMailer{}
	checker := NewAlertCheckerService(db, mailer, "http://localhost:3000")

	require.NoError(t, checker.CheckAlerts())
	assert.Len(t, mailer.sent, 1, "price exactly at the threshold fires")
}

func TestCheckAlertsSkipsAssetWithoutPrice(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, "erin@example.com")
	asset := seedAsset(t, db, "newcoin", "NewCoin", nil, nil)
	alert := seedAlert(t, db, user.ID, asset.ID, strPtr("10"), nil)

	mailer := &fakeMailer{}
	checker := NewAlertCheckerService(db, mailer, "http://localhost:3000")

	require.NoError(t, checker.CheckAlerts())
	assert.Empty(t, mailer.sent)

	var saved models.PriceAlert
	require.NoError(t, db.First(&saved, alert.ID).Error)
	assert.Nil(t, saved.LastTriggeredHighAt, "no latch while the price is not ready")
}

func TestCheckAlertsSkipsMissingAsset(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, "heidi@example.com")
	// Alert pointing at an asset id with no catalog row
	alert := seedAlert(t, db, user.ID, 999, strPtr("10"), nil)

	mailer := &fakeMailer{}
	checker := NewAlertCheckerService(db, mailer, "http://localhost:3000")

	require.NoError(t, checker.CheckAlerts())
	assert.Empty(t, mailer.sent)

	var saved models.PriceAlert
	require.NoError(t, db.First(&saved, alert.ID).Error)
	assert.Nil(t, saved.LastTriggeredHighAt)
}

func TestCheckAlertsIgnoresInactive(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, "frank@example.com")
	asset := seedAsset(t, db, "bitcoin", "Bitcoin", decPtr("50000"), iptr(1))
	alert := seedAlert(t, db, user.ID, asset.ID, strPtr("45000"), nil)
	require.NoError(t, db.Model(&alert).Update("active", false).Error)

	mailer := &fakeMailer{}
	checker := NewAlertCheckerService(db, mailer, "http://localhost:3000")

	require.NoError(t, checker.CheckAlerts())
	assert.Empty(t, mailer.sent)
}

func TestCheckAlertsUnresolvableOwnerDoesNotLatch(t *testing.T) {
	db := newTestDB(t)
	asset := seedAsset(t, db, "bitcoin", "Bitcoin", decPtr("50000"), iptr(1))
	// Alert owned by a user id that does not exist
	alert := seedAlert(t, db, 999, asset.ID, strPtr("45000"), nil)

	mailer := &fakeMailer{}
	checker := NewAlertCheckerService(db, mailer, "http://localhost:3000")

	require.NoError(t, checker.CheckAlerts())
	assert.Empty(t, mailer.sent)

	var saved models.PriceAlert
	require.NoError(t, db.First(&saved, alert.ID).Error)
	assert.Nil(t, saved.LastTriggeredHighAt, "stays eligible until the owner resolves")
}

func TestCheckAlertsFailedSendStillLatches(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, "grace@example.com")
	asset := seedAsset(t, db, "bitcoin", "Bitcoin", decPtr("50000"), iptr(1))
	alert := seedAlert(t, db, user.ID, asset.ID, strPtr("45000"), nil)

	mailer := &fakeMailer{sendErr: errors.New("smtp unreachable")}
	checker := NewAlertCheckerService(db, mailer, "http://localhost:3000")

	require.NoError(t, checker.CheckAlerts())

	var saved models.PriceAlert
	require.NoError(t, db.First(&saved, alert.ID).Error)
	assert.NotNil(t, saved.LastTriggeredHighAt, "delivery failures are logged, not retried")
}
