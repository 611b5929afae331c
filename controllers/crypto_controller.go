package controllers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"crypto_backend_project/models"
	"crypto_backend_project/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// CryptoController handles catalog and price history requests
type CryptoController struct {
	db       *gorm.DB
	assets   *services.AssetService
	history  *services.HistoryService
	backfill *services.BackfillService
}

// NewCryptoController creates a new crypto controller
func NewCryptoController(db *gorm.DB, backfill *services.BackfillService) *CryptoController {
	return &CryptoController{
		db:       db,
		assets:   services.NewAssetService(db),
		history:  services.NewHistoryService(db),
		backfill: backfill,
	}
}

// GetCryptos returns the catalog ordered by market-cap rank
// GET /api/v1/cryptos
func (cc *CryptoController) GetCryptos(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 250 {
		limit = 50
	}
	offset := (page - 1) * limit

	var total int64
	cc.db.Model(&models.CryptoAsset{}).Count(&total)

	var assets []models.CryptoAsset
	err := cc.db.Order("market_cap_rank ASC NULLS LAST").
		Limit(limit).Offset(offset).
		Find(&assets).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch assets"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": assets,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// GetCrypto returns a single asset by external id
// GET /api/v1/cryptos/:externalID
func (cc *CryptoController) GetCrypto(c *gin.Context) {
	externalID := c.Param("externalID")

	asset, err := cc.assets.FindByExternalID(externalID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Asset not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch asset"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": asset})
}

// GetCryptoHistory returns the stored price series for an asset
// GET /api/v1/cryptos/:externalID/history?vs_currency=usd&days=7
func (cc *CryptoController) GetCryptoHistory(c *gin.Context) {
	externalID := c.Param("externalID")
	vsCurrency := c.DefaultQuery("vs_currency", "usd")
	days, _ := strconv.Atoi(c.DefaultQuery("days", "7"))
	if days < 1 || days > 365 {
		days = 7
	}

	asset, err := cc.assets.FindByExternalID(externalID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Asset not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch asset"})
		return
	}

	fromTs := time.Now().UTC().AddDate(0, 0, -days)
	series, err := cc.history.PriceSeries(asset.ID, vsCurrency, fromTs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch price series"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"external_id": asset.ExternalID,
			"vs_currency": vsCurrency,
			"points":      series,
		},
	})
}

// BackfillCrypto triggers a manual history fill for one asset
// POST /api/v1/cryptos/:externalID/backfill?vs_currency=usd&days=7
func (cc *CryptoController) BackfillCrypto(c *gin.Context) {
	externalID := c.Param("externalID")
	vsCurrency := c.DefaultQuery("vs_currency", "usd")
	days, _ := strconv.Atoi(c.DefaultQuery("days", "7"))
	if days < 1 || days > 90 {
		days = 7
	}

	count, err := cc.backfill.FillHistory(context.Background(), externalID, vsCurrency, days)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"external_id":    externalID,
			"vs_currency":    vsCurrency,
			"points_written": count,
		},
	})
}
