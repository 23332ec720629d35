package handlers

import (
	"go.uber.org/zap"

	"github.com/mosaicms/mosaic/internal/tenancy"
)

type Handler struct {
	registry *tenancy.Registry
	logger   *zap.Logger
}

func NewHandler(registry *tenancy.Registry, logger *zap.Logger) *Handler {
	return &Handler{
		registry: registry,
		logger:   logger,
	}
}
