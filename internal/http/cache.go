package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/storesync/internal/cache"
)

// CacheController reports read cache effectiveness.
type CacheController struct {
	cache *cache.Cache
}

func NewCacheController(c *cache.Cache) *CacheController {
	return &CacheController{cache: c}
}

// GetMetrics handles GET /cache/metrics
func (cc *CacheController) GetMetrics(c *gin.Context) {
	if cc.cache == nil {
		c.JSON(http.StatusOK, cache.Metrics{})
		return
	}
	c.JSON(http.StatusOK, cc.cache.Metrics())
}
