package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/schedulex/internal/api/dto"
	"github.com/cuongbtq/schedulex/internal/api/validation"
	"github.com/cuongbtq/schedulex/internal/domain"
	"github.com/cuongbtq/schedulex/internal/payment"
	"github.com/cuongbtq/schedulex/internal/storage"
)

// CreateOrder handles POST /api/v1/orders
// Persists the order and makes the first payment attempt synchronously. A
// declined payment still returns 201; the body carries the FAILED status.
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req dto.CreateOrderRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		h.logger.Warn("Invalid create order request", slog.String("error", err.Error()))
		return
	}

	items := strings.TrimSpace(string(req.OrderItems))
	if items == "null" {
		items = ""
	}

	order, err := h.orders.CreateOrder(c.Request.Context(), payment.CreateOrderInput{
		OrderID:       strings.TrimSpace(req.OrderID),
		CustomerID:    req.CustomerID,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		CustomerPhone: req.CustomerPhone,
		Amount:        req.Amount,
		OrderItems:    items,
		MaxRetries:    req.MaxRetries,
	})
	if err != nil {
		respondError(c, h.logger, "Failed to create order", err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewOrderDTO(order))
}

// GetOrder handles GET /api/v1/orders/:order_id
func (h *OrderHandler) GetOrder(c *gin.Context) {
	order, err := h.orders.GetOrder(c.Request.Context(), c.Param("order_id"))
	if err != nil {
		respondError(c, h.logger, "Failed to get order", err)
		return
	}

	c.JSON(http.StatusOK, dto.NewOrderDTO(order))
}

// ListOrders handles GET /api/v1/orders
func (h *OrderHandler) ListOrders(c *gin.Context) {
	var req dto.ListOrdersRequest
	if err := validation.BindQueryAndValidate(c, &req, h.validate); err != nil {
		return
	}

	size := pageSize(req.PageSize)

	cursor, err := DecodeCursor(req.Cursor)
	if err != nil {
		h.logger.Warn("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid_request",
			"msg":   "Invalid cursor",
		})
		return
	}

	orders, err := h.orders.ListOrders(c.Request.Context(), storage.OrderFilter{
		PaymentStatus: domain.PaymentStatus(req.PaymentStatus),
		CustomerID:    req.CustomerID,
		PageSize:      size,
		Cursor:        cursor,
	})
	if err != nil {
		respondError(c, h.logger, "Failed to list orders", err)
		return
	}

	hasMore := len(orders) > size
	if hasMore {
		orders = orders[:size]
	}

	resp := dto.ListOrdersResponse{Orders: make([]dto.OrderDTO, len(orders))}
	for i := range orders {
		resp.Orders[i] = dto.NewOrderDTO(&orders[i])
	}

	if hasMore {
		last := orders[len(orders)-1]
		resp.NextCursor = EncodeCursor(&storage.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.OrderID,
		})
	}

	c.JSON(http.StatusOK, resp)
}

// ListTransactions handles GET /api/v1/orders/:order_id/transactions
func (h *OrderHandler) ListTransactions(c *gin.Context) {
	orderID := c.Param("order_id")

	txs, err := h.orders.ListTransactions(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, h.logger, "Failed to list transactions", err)
		return
	}

	resp := dto.ListTransactionsResponse{
		OrderID:      orderID,
		Transactions: make([]dto.TransactionDTO, len(txs)),
	}
	for i := range txs {
		resp.Transactions[i] = dto.NewTransactionDTO(&txs[i])
	}

	c.JSON(http.StatusOK, resp)
}

// RetryPayment handles POST /api/v1/orders/:order_id/retry
// Re-attempts a FAILED order immediately. Orders that are paid, cancelled,
// in flight or out of retries answer 409.
func (h *OrderHandler) RetryPayment(c *gin.Context) {
	orderID := c.Param("order_id")

	h.logger.Info("Manual payment retry", slog.String("order_id", orderID))

	order, err := h.orders.TriggerRetry(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, h.logger, "Failed to retry payment", err)
		return
	}

	c.JSON(http.StatusOK, dto.NewOrderDTO(order))
}

// GetStats handles GET /api/v1/orders/stats
func (h *OrderHandler) GetStats(c *gin.Context) {
	stats, err := h.orders.Stats(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "Failed to get order stats", err)
		return
	}

	c.JSON(http.StatusOK, stats)
}
