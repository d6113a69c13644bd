package handler

import (
	"net/http"

	"backend/internal/middleware"
	"backend/internal/service"
	"backend/pkg/pagination"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type QuoteHandler struct {
	quoteService service.QuoteService
	pipeline     *service.ConversionPipeline
}

func NewQuoteHandler(quoteService service.QuoteService, pipeline *service.ConversionPipeline) *QuoteHandler {
	return &QuoteHandler{
		quoteService: quoteService,
		pipeline:     pipeline,
	}
}

func (h *QuoteHandler) RegisterRoutes(router *gin.RouterGroup) {
	quotes := router.Group("/api/quotes")
	{
		quotes.POST("", middleware.RequirePermission("quotes.write"), h.CreateQuote)
		quotes.GET("", middleware.RequirePermission("quotes.read"), h.ListQuotes)
		quotes.GET("/:id", middleware.RequirePermission("quotes.read"), h.GetQuote)
		quotes.PUT("/:id", middleware.RequirePermission("quotes.write"), h.UpdateQuote)
		quotes.PUT("/:id/send", middleware.RequirePermission("quotes.send"), h.SendQuote)
		quotes.PUT("/:id/approve", middleware.RequirePermission("quotes.approve"), h.ApproveQuote)
		quotes.PUT("/:id/reject", middleware.RequirePermission("quotes.approve"), h.RejectQuote)
		quotes.POST("/:id/revise", middleware.RequirePermission("quotes.write"), h.ReviseQuote)
		quotes.GET("/:id/versions", middleware.RequirePermission("quotes.read"), h.ListVersions)
		quotes.POST("/:id/convert", middleware.RequirePermission("quotes.convert"), h.ConvertToOrder)
	}
}

func actor(c *gin.Context) (userID, role string) {
	if v, ok := c.Get("userID"); ok {
		userID, _ = v.(string)
	}
	if v, ok := c.Get("userRole"); ok {
		role, _ = v.(string)
	}
	return userID, role
}

// CreateQuote creates a new draft quote
// @Summary      Create quote
// @Description  Creates a new draft quote with line items; totals are derived server-side
// @Tags         quotes
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.QuoteRequest  true  "Create Quote Payload"
// @Success      201      {object}  response.Response{data=service.QuoteResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/quotes [post]
func (h *QuoteHandler) CreateQuote(c *gin.Context) {
	var req service.QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	userID, role := actor(c)
	quote, err := h.quoteService.CreateQuote(c.Request.Context(), userID, role, req)
	if err != nil {
		status := statusFor(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, quote))
}

// ListQuotes returns a paginated list of quotes
// @Summary      List quotes
// @Description  Retrieves a paginated list of quotes, optionally filtered by status
// @Tags         quotes
// @Security     BearerAuth
// @Produce      json
// @Param        status  query     string  false  "Filter by status (draft, sent, approved, rejected, invoiced, closed_paid, closed_cancelled)"
// @Param        page    query     int     false  "Page number (default 1)"
// @Param        limit   query     int     false  "Number of items per page (default 20)"
// @Success      200     {object}  response.Response{data=[]service.QuoteResponse}
// @Failure      500     {object}  response.Response
// @Router       /api/quotes [get]
func (h *QuoteHandler) ListQuotes(c *gin.Context) {
	params := pagination.Parse(c)

	quotes, total, err := h.quoteService.ListQuotes(c.Request.Context(), service.QuoteFilter{
		Status: c.Query("status"),
		Page:   params.Page,
		Limit:  params.Limit,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Paginated(http.StatusOK, quotes, params.Page, params.Limit, total))
}

// GetQuote returns a single quote with line items
// @Summary      Get quote
// @Description  Fetch a single quote with its line items by ID
// @Tags         quotes
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Quote ID"
// @Success      200  {object}  response.Response{data=service.QuoteResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/quotes/{id} [get]
func (h *QuoteHandler) GetQuote(c *gin.Context) {
	quote, err := h.quoteService.GetQuote(c.Request.Context(), c.Param("id"))
	if err != nil {
		status := statusFor(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, quote))
}

// UpdateQuote replaces a draft quote's items and re-derives totals
// @Summary      Update quote
// @Description  Replaces a draft quote's line items wholesale and recomputes all totals
// @Tags         quotes
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                true  "Quote ID"
// @Param        payload  body      service.QuoteRequest  true  "Update Quote Payload"
// @Success      200      {object}  response.Response{data=service.QuoteResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/quotes/{id} [put]
func (h *QuoteHandler) UpdateQuote(c *gin.Context) {
	var req service.QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	userID, role := actor(c)
	quote, err := h.quoteService.UpdateQuote(c.Request.Context(), userID, role, c.Param("id"), req)
	if err != nil {
		status := statusFor(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, quote))
}

// SendQuote moves a draft quote to sent
// @Summary      Send quote
// @Tags         quotes
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Quote ID"
// @Success      200  {object}  response.Response{data=service.QuoteResponse}
// @Failure      409  {object}  response.Response
// @Router       /api/quotes/{id}/send [put]
func (h *QuoteHandler) SendQuote(c *gin.Context) {
	userID, role := actor(c)
	quote, err := h.quoteService.SendQuote(c.Request.Context(), userID, role, c.Param("id"))
	if err != nil {
		status := statusFor(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, quote))
}

// ApproveQuote approves a sent quote
// @Summary      Approve quote
// @Description  Approves a sent quote; requires sales_manager or an active delegation
// @Tags         quotes
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Quote ID"
// @Success      200  {object}  response.Response{data=service.QuoteResponse}
// @Failure      403  {object}  response.Response
// @Router       /api/quotes/{id}/approve [put]
func (h *QuoteHandler) ApproveQuote(c *gin.Context) {
	userID, role := actor(c)
	quote, err := h.quoteService.ApproveQuote(c.Request.Context(), userID, role, c.Param("id"))
	if err != nil {
		status := statusFor(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, quote))
}

// RejectQuote rejects a sent quote
// @Summary      Reject quote
// @Tags         quotes
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Quote ID"
// @Success      200  {object}  response.Response{data=service.QuoteResponse}
// @Failure      403  {object}  response.Response
// @Router       /api/quotes/{id}/reject [put]
func (h *QuoteHandler) RejectQuote(c *gin.Context) {
	userID, role := actor(c)
	quote, err := h.quoteService.RejectQuote(c.Request.Context(), userID, role, c.Param("id"))
	if err != nil {
		status := statusFor(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, quote))
}

// ReviseQuote snapshots the quote and resets it to an editable draft
// @Summary      Revise quote
// @Description  Snapshots the current quote into an immutable version, then resets it to draft with version+1
// @Tags         quotes
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                      true  "Quote ID"
// @Param        payload  body      service.ReviseQuoteRequest  true  "Revision Reason"
// @Success      200      {object}  response.Response{data=service.QuoteResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/quotes/{id}/revise [post]
func (h *QuoteHandler) ReviseQuote(c *gin.Context) {
	var req service.ReviseQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	userID, role := actor(c)
	quote, err := h.quoteService.ReviseQuote(c.Request.Context(), userID, role, c.Param("id"), req)
	if err != nil {
		status := statusFor(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, quote))
}

// ListVersions returns the immutable revision history of a quote
// @Summary      List quote versions
// @Tags         quotes
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Quote ID"
// @Success      200  {object}  response.Response{data=[]service.QuoteVersionResponse}
// @Failure      400  {object}  response.Response
// @Router       /api/quotes/{id}/versions [get]
func (h *QuoteHandler) ListVersions(c *gin.Context) {
	versions, err := h.quoteService.ListVersions(c.Request.Context(), c.Param("id"))
	if err != nil {
		status := statusFor(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, versions))
}

// ConvertToOrder atomically derives a sales order from an approved quote
// @Summary      Convert quote to sales order
// @Description  Atomically creates a sales order from an approved quote; at most one order per quote
// @Tags         quotes
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Quote ID"
// @Success      201  {object}  response.Response{data=service.ConversionResult}
// @Failure      409  {object}  response.Response
// @Router       /api/quotes/{id}/convert [post]
func (h *QuoteHandler) ConvertToOrder(c *gin.Context) {
	quoteID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid quote id"))
		return
	}

	userID, role := actor(c)
	result, err := h.pipeline.ConvertQuoteToOrder(c.Request.Context(), userID, role, quoteID)
	if err != nil {
		status := statusFor(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, result))
}
