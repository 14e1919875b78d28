package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	orderdomain "github.com/smallbiznis/ordercast/internal/order/domain"
	"github.com/smallbiznis/ordercast/internal/tenantctx"
)

type insertOrdersRequest struct {
	Orders []orderdomain.OrderInput `json:"orders"`
}

type updateOrderStatusRequest struct {
	OrderID int64  `json:"order_id"`
	Status  string `json:"order_status"`
}

// InsertOrders accepts either a single order object or {"orders": [...]}.
func (s *Server) InsertOrders(c *gin.Context) {
	tenantID, ok := tenantctx.TenantIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrForbidden)
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var req insertOrdersRequest
	if err := json.Unmarshal(body, &req); err != nil || len(req.Orders) == 0 {
		var single orderdomain.OrderInput
		if err := json.Unmarshal(body, &single); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
		req.Orders = []orderdomain.OrderInput{single}
	}

	result, err := s.ordersvc.Ingest(c.Request.Context(), tenantID, req.Orders)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) UpdateOrderStatus(c *gin.Context) {
	tenantID, ok := tenantctx.TenantIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrForbidden)
		return
	}

	var req updateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.OrderID == 0 {
		AbortWithError(c, newValidationError("order_id", "missing_order_id", "order_id is required"))
		return
	}

	outcome, err := s.ordersvc.UpdateStatus(c.Request.Context(), tenantID, req.OrderID, req.Status)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	// Soft outcomes, incomplete-week rejections included, share a
	// success-shaped response.
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"outcome": outcome}})
}
