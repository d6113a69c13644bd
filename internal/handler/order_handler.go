package handler

import (
	"net/http"
	"time"

	"backend/internal/middleware"
	"backend/internal/service"
	"backend/pkg/pagination"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type OrderHandler struct {
	orderService service.OrderService
	pipeline     *service.ConversionPipeline
}

func NewOrderHandler(orderService service.OrderService, pipeline *service.ConversionPipeline) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
		pipeline:     pipeline,
	}
}

func (h *OrderHandler) RegisterRoutes(router *gin.RouterGroup) {
	orders := router.Group("/api/orders")
	{
		orders.GET("", middleware.RequirePermission("orders.read"), h.ListOrders)
		orders.GET("/:id", middleware.RequirePermission("orders.read"), h.GetOrder)
		orders.PUT("/:id/confirm", middleware.RequirePermission("orders.write"), h.ConfirmOrder)
		orders.PUT("/:id/cancel", middleware.RequirePermission("orders.write"), h.CancelOrder)
		orders.PUT("/:id/fulfill", middleware.RequirePermission("orders.write"), h.FulfillOrder)
		orders.POST("/:id/convert", middleware.RequirePermission("orders.convert"), h.ConvertToInvoice)
	}
}

// ListOrders returns a paginated list of sales orders
// @Summary      List sales orders
// @Tags         orders
// @Security     BearerAuth
// @Produce      json
// @Param        status  query     string  false  "Filter by status (draft, confirmed, fulfilled, cancelled)"
// @Param        page    query     int     false  "Page number (default 1)"
// @Param        limit   query     int     false  "Number of items per page (default 20)"
// @Success      200     {object}  response.Response{data=[]service.OrderResponse}
// @Failure      500     {object}  response.Response
// @Router       /api/orders [get]
func (h *OrderHandler) ListOrders(c *gin.Context) {
	params := pagination.Parse(c)

	orders, total, err := h.orderService.ListOrders(c.Request.Context(), service.OrderFilter{
		Status: c.Query("status"),
		Page:   params.Page,
		Limit:  params.Limit,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Paginated(http.StatusOK, orders, params.Page, params.Limit, total))
}

// GetOrder returns a single sales order with line items
// @Summary      Get sales order
// @Tags         orders
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Order ID"
// @Success      200  {object}  response.Response{data=service.OrderResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/orders/{id} [get]
func (h *OrderHandler) GetOrder(c *gin.Context) {
	order, err := h.orderService.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		status := statusFor(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, order))
}

// ConfirmOrder confirms a draft order, reserving stock for its items
// @Summary      Confirm sales order
// @Description  Moves a draft order to confirmed; reserves stock for every product-backed line item
// @Tags         orders
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Order ID"
// @Success      200  {object}  response.Response{data=service.OrderResponse}
// @Failure      409  {object}  response.Response
// @Router       /api/orders/{id}/confirm [put]
func (h *OrderHandler) ConfirmOrder(c *gin.Context) {
	userID, role := actor(c)
	order, err := h.orderService.ConfirmOrder(c.Request.Context(), userID, role, c.Param("id"))
	if err != nil {
		status := statusFor(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, order))
}

// CancelOrder cancels an order, releasing any reservation it holds
// @Summary      Cancel sales order
// @Tags         orders
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Order ID"
// @Success      200  {object}  response.Response{data=service.OrderResponse}
// @Failure      409  {object}  response.Response
// @Router       /api/orders/{id}/cancel [put]
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	userID, role := actor(c)
	order, err := h.orderService.CancelOrder(c.Request.Context(), userID, role, c.Param("id"))
	if err != nil {
		status := statusFor(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, order))
}

// FulfillOrder marks a confirmed order as fulfilled
// @Summary      Fulfill sales order
// @Tags         orders
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Order ID"
// @Success      200  {object}  response.Response{data=service.OrderResponse}
// @Failure      409  {object}  response.Response
// @Router       /api/orders/{id}/fulfill [put]
func (h *OrderHandler) FulfillOrder(c *gin.Context) {
	userID, role := actor(c)
	order, err := h.orderService.FulfillOrder(c.Request.Context(), userID, role, c.Param("id"))
	if err != nil {
		status := statusFor(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, order))
}

type convertOrderRequest struct {
	DueDate string `json:"due_date"`
}

// ConvertToInvoice atomically derives an invoice from a confirmed order
// @Summary      Convert sales order to invoice
// @Description  Atomically creates an invoice from a confirmed order, consuming reserved stock; the source quote moves to invoiced exactly once
// @Tags         orders
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string               true   "Order ID"
// @Param        payload  body      convertOrderRequest  false  "Optional due date (RFC3339)"
// @Success      201      {object}  response.Response{data=service.ConversionResult}
// @Failure      409      {object}  response.Response
// @Router       /api/orders/{id}/convert [post]
func (h *OrderHandler) ConvertToInvoice(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid order id"))
		return
	}

	var req convertOrderRequest
	_ = c.ShouldBindJSON(&req) // body optional

	opts := service.ConvertOrderOptions{}
	if req.DueDate != "" {
		due, parseErr := time.Parse(time.RFC3339, req.DueDate)
		if parseErr != nil {
			c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid due_date, expected RFC3339"))
			return
		}
		opts.DueDate = &due
	}

	userID, role := actor(c)
	result, err := h.pipeline.ConvertOrderToInvoice(c.Request.Context(), userID, role, orderID, opts)
	if err != nil {
		status := statusFor(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, result))
}
