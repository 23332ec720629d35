package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/mosaicms/mosaic/internal/api/middleware"
)

const contentCollection = "content"

// ListContent returns the most recent content documents in the tenant's
// database. The document schema belongs to the tenant; this layer only
// routes to the right store.
func (h *Handler) ListContent(c *gin.Context) {
	tc, ok := middleware.TenantFromContext(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Tenant context missing"})
		return
	}

	ctx := c.Request.Context()
	findOpts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(50)
	cursor, err := tc.DB.Collection(contentCollection).Find(ctx, bson.D{}, findOpts)
	if err != nil {
		h.contentError(c, tc.DBName, err)
		return
	}
	defer cursor.Close(ctx)

	items := []bson.M{}
	if err := cursor.All(ctx, &items); err != nil {
		h.contentError(c, tc.DBName, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"tenant":  tc.TenantID,
		"items":   items,
	})
}

func (h *Handler) CreateContent(c *gin.Context) {
	tc, ok := middleware.TenantFromContext(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Tenant context missing"})
		return
	}

	var doc bson.M
	if err := c.ShouldBindJSON(&doc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid JSON body"})
		return
	}
	doc["_id"] = uuid.NewString()
	doc["created_at"] = time.Now().UTC()

	ctx := c.Request.Context()
	if _, err := tc.DB.Collection(contentCollection).InsertOne(ctx, doc); err != nil {
		h.contentError(c, tc.DBName, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"id":      doc["_id"],
	})
}

// Organization returns the tenant's organization record from the central
// store, exercising the shared central handle.
func (h *Handler) Organization(c *gin.Context) {
	tc, ok := middleware.TenantFromContext(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Tenant context missing"})
		return
	}

	var org bson.M
	err := tc.CentralDB.Collection("organizations").
		FindOne(c.Request.Context(), bson.D{{Key: "subdomain", Value: tc.TenantID}}).
		Decode(&org)
	if err == mongo.ErrNoDocuments {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Organization not registered"})
		return
	}
	if err != nil {
		h.contentError(c, tc.DBName, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "organization": org})
}

// contentError reports a tenant-store failure and drops the pool when the
// driver says the deployment is unreachable, so the next request redials.
func (h *Handler) contentError(c *gin.Context, dbName string, err error) {
	h.logger.Error("tenant store operation failed",
		zap.String("database", dbName), zap.Error(err))
	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) {
		h.registry.Drop(dbName)
	}
	c.JSON(http.StatusInternalServerError, gin.H{
		"success": false,
		"message": "Database operation failed",
	})
}
