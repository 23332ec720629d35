package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mosaicms/mosaic/internal/storage/redis"
)

// AdminHandler is the operator surface. It is the only place the full
// catalog snapshot is exposed deliberately; tenant-facing 404s gate it
// behind the expose_catalog flag.
type AdminHandler struct {
	*Handler
	dbPrefix string
	cache    *redis.Client
}

func NewAdminHandler(h *Handler, dbPrefix string, cache *redis.Client) *AdminHandler {
	return &AdminHandler{Handler: h, dbPrefix: dbPrefix, cache: cache}
}

// ListDatabases returns every tenant database currently in the catalog.
// The snapshot is cached in Redis briefly to spare the storage engine on
// dashboard polling.
func (h *AdminHandler) ListDatabases(c *gin.Context) {
	ctx := c.Request.Context()
	if h.cache != nil {
		if names, err := h.cache.GetCachedCatalog(ctx, h.dbPrefix); err == nil {
			c.JSON(http.StatusOK, gin.H{
				"success":   true,
				"databases": names,
				"count":     len(names),
				"cached":    true,
			})
			return
		}
	}

	names, err := h.registry.ListDatabaseNames(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Cannot verify database existence",
			"error":   err.Error(),
		})
		return
	}

	tenantDBs := []string{}
	for _, name := range names {
		if strings.HasPrefix(name, h.dbPrefix) {
			tenantDBs = append(tenantDBs, name)
		}
	}

	if h.cache != nil {
		if err := h.cache.CacheCatalog(ctx, h.dbPrefix, tenantDBs); err != nil {
			h.logger.Warn("caching catalog snapshot failed", zap.Error(err))
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"databases": tenantDBs,
		"count":     len(tenantDBs),
	})
}
