package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/ordercast/internal/tenantctx"
)

type forecastByDateRequest struct {
	ReferenceDatetime string `json:"reference_datetime"`
}

var referenceLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC3339,
}

func parseReference(raw string) (time.Time, error) {
	var lastErr error
	for _, layout := range referenceLayouts {
		ref, err := time.Parse(layout, raw)
		if err == nil {
			return ref, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// GetForecast serves the cached forecast, computing it first on a miss.
func (s *Server) GetForecast(c *gin.Context) {
	tenantID, ok := tenantctx.TenantIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrForbidden)
		return
	}

	snapshot, err := s.forecastsvc.Get(c.Request.Context(), tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": snapshot})
}

// GetForecastByDate recomputes the forecast as of a caller-supplied reference
// instant instead of the current clock. The result is persisted the same way
// a regular recompute is.
func (s *Server) GetForecastByDate(c *gin.Context) {
	tenantID, ok := tenantctx.TenantIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrForbidden)
		return
	}

	var req forecastByDateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.ReferenceDatetime == "" {
		AbortWithError(c, newValidationError("reference_datetime", "missing_reference_datetime", "reference_datetime is required"))
		return
	}

	ref, err := parseReference(req.ReferenceDatetime)
	if err != nil {
		AbortWithError(c, newValidationError("reference_datetime", "invalid_reference_datetime", "reference_datetime is not a recognized timestamp"))
		return
	}

	snapshot, err := s.forecastsvc.Run(c.Request.Context(), tenantID, ref)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": snapshot})
}

// UpdateForecast forces a recompute as of now, bypassing the cache.
func (s *Server) UpdateForecast(c *gin.Context) {
	tenantID, ok := tenantctx.TenantIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrForbidden)
		return
	}

	snapshot, err := s.forecastsvc.Run(c.Request.Context(), tenantID, s.clock.Now())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": snapshot})
}

func (s *Server) GetForecastChart(c *gin.Context) {
	tenantID, ok := tenantctx.TenantIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrForbidden)
		return
	}

	chart, err := s.forecastsvc.Chart(c.Request.Context(), tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": chart})
}
