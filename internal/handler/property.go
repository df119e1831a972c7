package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/HenryGreene10/propertyfish/internal/model"
	"github.com/HenryGreene10/propertyfish/internal/upstream"
)

// PropertyAPI is the slice of the upstream client the property handler
// needs.
type PropertyAPI interface {
	PropertySummary(ctx context.Context, bbl string) (*model.PropertyRecord, error)
}

// PropertyHandler proxies the upstream property summary endpoint, with
// field-name coalescing already applied by the client layer.
type PropertyHandler struct {
	api PropertyAPI
}

// NewPropertyHandler creates a new property handler
func NewPropertyHandler(api PropertyAPI) *PropertyHandler {
	return &PropertyHandler{api: api}
}

// Summary handles GET /api/v1/properties/:bbl
func (h *PropertyHandler) Summary(c *gin.Context) {
	bbl := c.Param("bbl")
	if bbl == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid BBL"})
		return
	}

	record, err := h.api.PropertySummary(c.Request.Context(), bbl)
	if err != nil {
		if errors.Is(err, upstream.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Property not found"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to load property summary"})
		return
	}

	c.JSON(http.StatusOK, record)
}
