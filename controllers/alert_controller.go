package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"crypto_backend_project/services"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// UpsertAlertRequest is the payload for creating or editing an alert
type UpsertAlertRequest struct {
	ExternalID    string           `json:"external_id" binding:"required"`
	ThresholdHigh *decimal.Decimal `json:"threshold_high"`
	ThresholdLow  *decimal.Decimal `json:"threshold_low"`
	Active        *bool            `json:"active"`
}

// AlertController handles price alert CRUD requests
type AlertController struct {
	alerts *services.AlertService
}

// NewAlertController creates a new alert controller
func NewAlertController(db *gorm.DB) *AlertController {
	return &AlertController{alerts: services.NewAlertService(db)}
}

// GetAlerts returns a user's alerts
// GET /api/v1/users/:userID/alerts
func (ac *AlertController) GetAlerts(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	alerts, err := ac.alerts.ListAlerts(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch alerts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": alerts})
}

// UpsertAlert creates or edits the user's alert on an asset. Editing always
// re-arms both directions.
// POST|PUT /api/v1/users/:userID/alerts
func (ac *AlertController) UpsertAlert(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	var req UpsertAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	alert, err := ac.alerts.UpsertAlert(userID, req.ExternalID, req.ThresholdHigh, req.ThresholdLow, req.Active)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNoThreshold), errors.Is(err, services.ErrUnknownAsset):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save alert"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": alert})
}

// DeleteAlert removes the user's alert on an asset
// DELETE /api/v1/users/:userID/alerts/:externalID
func (ac *AlertController) DeleteAlert(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	err := ac.alerts.DeleteAlert(userID, c.Param("externalID"))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUnknownAsset):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete alert"})
		}
		return
	}

	c.Status(http.StatusNoContent)
}

// parseUserID reads the :userID path parameter, answering 400 on garbage
func parseUserID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("userID"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user id"})
		return 0, false
	}
	return uint(id), true
}
