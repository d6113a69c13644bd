package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"backend/internal/model"
	"backend/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// --- DTOs ---

type LineItemRequest struct {
	ProductID   string `json:"product_id"`
	Description string `json:"description" binding:"required"`
	Quantity    string `json:"quantity" binding:"required"`
	UnitPrice   string `json:"unit_price" binding:"required"`
	TaxCode     string `json:"tax_code"`
}

type QuoteRequest struct {
	CustomerID string            `json:"customer_id"`
	Discount   string            `json:"discount"`
	Shipping   string            `json:"shipping"`
	CGST       string            `json:"cgst"`
	SGST       string            `json:"sgst"`
	IGST       string            `json:"igst"`
	Notes      string            `json:"notes"`
	Items      []LineItemRequest `json:"items" binding:"required,min=1,dive"`
}

type ReviseQuoteRequest struct {
	Reason string `json:"reason"`
}

type LineItemResponse struct {
	ID          string  `json:"id"`
	ProductID   *string `json:"product_id"`
	Description string  `json:"description"`
	Quantity    string  `json:"quantity"`
	UnitPrice   string  `json:"unit_price"`
	Subtotal    string  `json:"subtotal"`
	TaxCode     string  `json:"tax_code"`
}

type QuoteResponse struct {
	ID         string             `json:"id"`
	QuoteNo    string             `json:"quote_no"`
	Status     string             `json:"status"`
	Version    int                `json:"version"`
	CustomerID *string            `json:"customer_id"`
	Subtotal   string             `json:"subtotal"`
	Discount   string             `json:"discount"`
	Shipping   string             `json:"shipping"`
	CGST       string             `json:"cgst"`
	SGST       string             `json:"sgst"`
	IGST       string             `json:"igst"`
	Total      string             `json:"total"`
	Notes      string             `json:"notes"`
	Items      []LineItemResponse `json:"items"`
	CreatedAt  string             `json:"created_at"`
}

type QuoteVersionResponse struct {
	ID        string `json:"id"`
	QuoteID   string `json:"quote_id"`
	Version   int    `json:"version"`
	Status    string `json:"status"`
	Total     string `json:"total"`
	ItemsJSON string `json:"items_json"`
	Reason    string `json:"reason"`
	CreatedAt string `json:"created_at"`
}

type QuoteFilter struct {
	Status string
	Page   int
	Limit  int
}

// --- Interface ---

type QuoteService interface {
	CreateQuote(ctx context.Context, userID, role string, req QuoteRequest) (QuoteResponse, error)
	UpdateQuote(ctx context.Context, userID, role string, id string, req QuoteRequest) (QuoteResponse, error)
	GetQuote(ctx context.Context, id string) (QuoteResponse, error)
	ListQuotes(ctx context.Context, filter QuoteFilter) ([]QuoteResponse, int64, error)
	SendQuote(ctx context.Context, userID, role string, id string) (QuoteResponse, error)
	ApproveQuote(ctx context.Context, userID, role string, id string) (QuoteResponse, error)
	RejectQuote(ctx context.Context, userID, role string, id string) (QuoteResponse, error)
	// ReviseQuote snapshots the current state into an immutable version
	// record, resets the quote to draft and increments its version. This is
	// the only path that mutates a sent or approved quote.
	ReviseQuote(ctx context.Context, userID, role string, id string, req ReviseQuoteRequest) (QuoteResponse, error)
	ListVersions(ctx context.Context, id string) ([]QuoteVersionResponse, error)
}

type quoteService struct {
	quoteRepo  repository.QuoteRepository
	auditRepo  repository.AuditRepository
	userRepo   repository.UserRepository
	sequences  repository.SequenceRepository
	txManager  repository.TransactionManager
	calculator *FinancialCalculator
	states     *DocumentStateMachine
	governance *GovernanceEngine
}

func NewQuoteService(
	quoteRepo repository.QuoteRepository,
	auditRepo repository.AuditRepository,
	userRepo repository.UserRepository,
	sequences repository.SequenceRepository,
	txManager repository.TransactionManager,
	calculator *FinancialCalculator,
	states *DocumentStateMachine,
	governance *GovernanceEngine,
) QuoteService {
	return &quoteService{
		quoteRepo:  quoteRepo,
		auditRepo:  auditRepo,
		userRepo:   userRepo,
		sequences:  sequences,
		txManager:  txManager,
		calculator: calculator,
		states:     states,
		governance: governance,
	}
}

// --- Implementation ---

func (s *quoteService) CreateQuote(ctx context.Context, userID, role string, req QuoteRequest) (QuoteResponse, error) {
	items, err := parseLineItems(req.Items)
	if err != nil {
		return QuoteResponse{}, err
	}
	discount, shipping, cgst, sgst, igst, err := parseMonetary(req)
	if err != nil {
		return QuoteResponse{}, err
	}

	if !s.governance.HasPermission(role, "quotes", "write", map[string]string{"status": model.QuoteStatusDraft}) {
		return QuoteResponse{}, &AuthorizationError{
			Reason:       fmt.Sprintf("role %q cannot create quotes", role),
			RequiredRole: model.RoleSalesExecutive,
		}
	}

	totals := s.calculator.DocumentTotals(items, discount, shipping, cgst, sgst, igst)

	var customerID, ownerID *uuid.UUID
	if req.CustomerID != "" {
		parsed, parseErr := uuid.Parse(req.CustomerID)
		if parseErr != nil {
			return QuoteResponse{}, fmt.Errorf("invalid customer_id: %w", parseErr)
		}
		customerID = &parsed
	}
	if parsed, parseErr := uuid.Parse(userID); parseErr == nil {
		ownerID = &parsed
	}

	var quote model.Quote
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		quoteNo, seqErr := s.sequences.Next(txCtx, model.DocTypeQuote)
		if seqErr != nil {
			return fmt.Errorf("failed to generate quote number: %w", seqErr)
		}

		for i := range items {
			items[i].Subtotal = s.calculator.LineSubtotal(items[i].Quantity, items[i].UnitPrice)
		}

		quote = model.Quote{
			QuoteNo:    quoteNo,
			Status:     model.QuoteStatusDraft,
			Version:    1,
			CustomerID: customerID,
			OwnerID:    ownerID,
			Subtotal:   totals.Subtotal,
			Discount:   totals.Discount,
			Shipping:   totals.Shipping,
			CGST:       totals.CGST,
			SGST:       totals.SGST,
			IGST:       totals.IGST,
			Total:      totals.Total,
			Notes:      req.Notes,
			Items:      items,
		}
		if createErr := s.quoteRepo.Create(txCtx, &quote); createErr != nil {
			return fmt.Errorf("failed to create quote: %w", createErr)
		}

		return s.audit(txCtx, userID, model.ActionCreateQuote, quote.ID.String(), quote.QuoteNo,
			map[string]interface{}{"total": s.calculator.Format(quote.Total)})
	})
	if err != nil {
		return QuoteResponse{}, err
	}

	return toQuoteResponse(quote, s.calculator), nil
}

// UpdateQuote replaces the draft's line items wholesale and re-derives the
// totals from the submitted items; stored aggregates are never reused.
func (s *quoteService) UpdateQuote(ctx context.Context, userID, role string, id string, req QuoteRequest) (QuoteResponse, error) {
	quoteID, err := uuid.Parse(id)
	if err != nil {
		return QuoteResponse{}, fmt.Errorf("invalid quote id: %w", err)
	}
	items, err := parseLineItems(req.Items)
	if err != nil {
		return QuoteResponse{}, err
	}
	discount, shipping, cgst, sgst, igst, err := parseMonetary(req)
	if err != nil {
		return QuoteResponse{}, err
	}

	var quote *model.Quote
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		quote, err = s.quoteRepo.FindByIDForUpdate(txCtx, quoteID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("quote %s: %w", id, ErrNotFound)
			}
			return fmt.Errorf("failed to load quote: %w", err)
		}

		if quote.Status != model.QuoteStatusDraft {
			return &InvalidTransitionError{
				DocType: model.DocTypeQuote,
				From:    quote.Status,
				To:      quote.Status,
				Reason:  "Only draft quotes can be edited directly; revise the quote instead",
			}
		}
		if !s.governance.HasPermission(role, "quotes", "write", map[string]string{"status": quote.Status}) {
			return &AuthorizationError{
				Reason:       fmt.Sprintf("role %q cannot edit quotes", role),
				RequiredRole: model.RoleSalesExecutive,
			}
		}

		for i := range items {
			items[i].Subtotal = s.calculator.LineSubtotal(items[i].Quantity, items[i].UnitPrice)
		}
		if err := s.quoteRepo.ReplaceItems(txCtx, quoteID, items); err != nil {
			return fmt.Errorf("failed to replace line items: %w", err)
		}

		totals := s.calculator.DocumentTotals(items, discount, shipping, cgst, sgst, igst)
		quote.Subtotal = totals.Subtotal
		quote.Discount = totals.Discount
		quote.Shipping = totals.Shipping
		quote.CGST = totals.CGST
		quote.SGST = totals.SGST
		quote.IGST = totals.IGST
		quote.Total = totals.Total
		quote.Notes = req.Notes
		if err := s.quoteRepo.Save(txCtx, quote); err != nil {
			return fmt.Errorf("failed to update quote: %w", err)
		}

		return s.audit(txCtx, userID, model.ActionUpdateQuote, quote.ID.String(), quote.QuoteNo,
			map[string]interface{}{"total": s.calculator.Format(quote.Total)})
	})
	if err != nil {
		return QuoteResponse{}, err
	}

	reloaded, err := s.quoteRepo.FindByIDWithItems(ctx, quoteID)
	if err != nil {
		return QuoteResponse{}, fmt.Errorf("failed to reload quote: %w", err)
	}
	return toQuoteResponse(*reloaded, s.calculator), nil
}

func (s *quoteService) GetQuote(ctx context.Context, id string) (QuoteResponse, error) {
	quoteID, err := uuid.Parse(id)
	if err != nil {
		return QuoteResponse{}, fmt.Errorf("invalid quote id: %w", err)
	}
	quote, err := s.quoteRepo.FindByIDWithItems(ctx, quoteID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return QuoteResponse{}, fmt.Errorf("quote %s: %w", id, ErrNotFound)
		}
		return QuoteResponse{}, fmt.Errorf("failed to load quote: %w", err)
	}
	return toQuoteResponse(*quote, s.calculator), nil
}

func (s *quoteService) ListQuotes(ctx context.Context, filter QuoteFilter) ([]QuoteResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	quotes, total, err := s.quoteRepo.List(ctx, repository.QuoteListFilter{
		Status: filter.Status,
		Page:   filter.Page,
		Limit:  filter.Limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch quotes: %w", err)
	}
	result := make([]QuoteResponse, 0, len(quotes))
	for _, q := range quotes {
		result = append(result, toQuoteResponse(q, s.calculator))
	}
	return result, total, nil
}

func (s *quoteService) SendQuote(ctx context.Context, userID, role string, id string) (QuoteResponse, error) {
	return s.transition(ctx, userID, role, id, model.QuoteStatusSent, model.ActionSendQuote,
		func(user *model.User, status string) GovernanceCheck {
			return s.governance.CanSendQuote(role, user, status)
		})
}

func (s *quoteService) ApproveQuote(ctx context.Context, userID, role string, id string) (QuoteResponse, error) {
	return s.transition(ctx, userID, role, id, model.QuoteStatusApproved, model.ActionApproveQuote,
		func(user *model.User, status string) GovernanceCheck {
			return s.governance.CanApproveQuote(role, user, status)
		})
}

func (s *quoteService) RejectQuote(ctx context.Context, userID, role string, id string) (QuoteResponse, error) {
	return s.transition(ctx, userID, role, id, model.QuoteStatusRejected, model.ActionRejectQuote,
		func(user *model.User, status string) GovernanceCheck {
			return s.governance.CanApproveQuote(role, user, status)
		})
}

func (s *quoteService) transition(ctx context.Context, userID, role, id, target, action string, check func(*model.User, string) GovernanceCheck) (QuoteResponse, error) {
	quoteID, err := uuid.Parse(id)
	if err != nil {
		return QuoteResponse{}, fmt.Errorf("invalid quote id: %w", err)
	}
	user := s.loadUser(ctx, userID)

	var quote *model.Quote
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		quote, err = s.quoteRepo.FindByIDForUpdate(txCtx, quoteID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("quote %s: %w", id, ErrNotFound)
			}
			return fmt.Errorf("failed to load quote: %w", err)
		}

		if gc := check(user, quote.Status); !gc.Allowed {
			return gc.Err()
		}
		if err := s.states.Validate(model.DocTypeQuote, quote.Status, target); err != nil {
			return err
		}

		previous := quote.Status
		quote.Status = target
		if err := s.quoteRepo.Save(txCtx, quote); err != nil {
			return fmt.Errorf("failed to update quote status: %w", err)
		}

		return s.audit(txCtx, userID, action, quote.ID.String(), quote.QuoteNo,
			map[string]interface{}{"from": previous, "to": target})
	})
	if err != nil {
		return QuoteResponse{}, err
	}

	reloaded, err := s.quoteRepo.FindByIDWithItems(ctx, quoteID)
	if err != nil {
		return QuoteResponse{}, fmt.Errorf("failed to reload quote: %w", err)
	}
	return toQuoteResponse(*reloaded, s.calculator), nil
}

func (s *quoteService) ReviseQuote(ctx context.Context, userID, role string, id string, req ReviseQuoteRequest) (QuoteResponse, error) {
	quoteID, err := uuid.Parse(id)
	if err != nil {
		return QuoteResponse{}, fmt.Errorf("invalid quote id: %w", err)
	}

	var quote *model.Quote
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.quoteRepo.FindByIDForUpdate(txCtx, quoteID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("quote %s: %w", id, ErrNotFound)
			}
			return fmt.Errorf("failed to load quote: %w", err)
		}
		quote, err = s.quoteRepo.FindByIDWithItems(txCtx, quoteID)
		if err != nil {
			return fmt.Errorf("failed to load quote items: %w", err)
		}

		// Drafts are edited directly; closed quotes are immutable.
		switch quote.Status {
		case model.QuoteStatusSent, model.QuoteStatusApproved, model.QuoteStatusRejected:
		default:
			return &InvalidTransitionError{
				DocType: model.DocTypeQuote,
				From:    quote.Status,
				To:      model.QuoteStatusDraft,
				Reason:  fmt.Sprintf("A quote in status %q cannot be revised", quote.Status),
			}
		}
		if !s.governance.HasPermission(role, "quotes", "write", map[string]string{"status": model.QuoteStatusDraft}) {
			return &AuthorizationError{
				Reason:       fmt.Sprintf("role %q cannot revise quotes", role),
				RequiredRole: model.RoleSalesExecutive,
			}
		}

		itemsJSON, marshalErr := json.Marshal(quote.Items)
		if marshalErr != nil {
			return fmt.Errorf("failed to serialize line items: %w", marshalErr)
		}

		version := &model.QuoteVersion{
			QuoteID:   quote.ID,
			Version:   quote.Version,
			Status:    quote.Status,
			Subtotal:  quote.Subtotal,
			Discount:  quote.Discount,
			Shipping:  quote.Shipping,
			CGST:      quote.CGST,
			SGST:      quote.SGST,
			IGST:      quote.IGST,
			Total:     quote.Total,
			ItemsJSON: string(itemsJSON),
			Reason:    req.Reason,
		}
		if err := s.quoteRepo.CreateVersion(txCtx, version); err != nil {
			return fmt.Errorf("failed to snapshot quote version: %w", err)
		}

		quote.Status = model.QuoteStatusDraft
		quote.Version++
		if err := s.quoteRepo.Save(txCtx, quote); err != nil {
			return fmt.Errorf("failed to reset quote to draft: %w", err)
		}

		return s.audit(txCtx, userID, model.ActionReviseQuote, quote.ID.String(), quote.QuoteNo,
			map[string]interface{}{"snapshot_version": version.Version, "new_version": quote.Version})
	})
	if err != nil {
		return QuoteResponse{}, err
	}

	return toQuoteResponse(*quote, s.calculator), nil
}

func (s *quoteService) ListVersions(ctx context.Context, id string) ([]QuoteVersionResponse, error) {
	quoteID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid quote id: %w", err)
	}
	versions, err := s.quoteRepo.ListVersions(ctx, quoteID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch quote versions: %w", err)
	}
	result := make([]QuoteVersionResponse, 0, len(versions))
	for _, v := range versions {
		result = append(result, QuoteVersionResponse{
			ID:        v.ID.String(),
			QuoteID:   v.QuoteID.String(),
			Version:   v.Version,
			Status:    v.Status,
			Total:     v.Total.StringFixed(2),
			ItemsJSON: v.ItemsJSON,
			Reason:    v.Reason,
			CreatedAt: v.CreatedAt.Format(time.RFC3339),
		})
	}
	return result, nil
}

// --- Helpers ---

func (s *quoteService) loadUser(ctx context.Context, userID string) *model.User {
	if userID == "" {
		return nil
	}
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil
	}
	return user
}

func (s *quoteService) audit(ctx context.Context, userID, action, entityID, entityName string, details map[string]interface{}) error {
	var uid *uuid.UUID
	if parsed, err := uuid.Parse(userID); err == nil {
		uid = &parsed
	}
	payload, _ := json.Marshal(details)
	entry := &model.AuditLog{
		UserID:     uid,
		Action:     action,
		EntityType: model.DocTypeQuote,
		EntityID:   entityID,
		EntityName: entityName,
		Details:    string(payload),
	}
	if err := s.auditRepo.Log(ctx, entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

func parseLineItems(reqs []LineItemRequest) ([]model.LineItem, error) {
	items := make([]model.LineItem, 0, len(reqs))
	for _, r := range reqs {
		quantity, err := decimal.NewFromString(r.Quantity)
		if err != nil {
			return nil, fmt.Errorf("invalid quantity %q: %w", r.Quantity, err)
		}
		unitPrice, err := decimal.NewFromString(r.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("invalid unit_price %q: %w", r.UnitPrice, err)
		}
		if quantity.LessThanOrEqual(decimal.Zero) {
			return nil, fmt.Errorf("quantity must be positive, got %s", r.Quantity)
		}
		if unitPrice.IsNegative() {
			return nil, fmt.Errorf("unit_price cannot be negative, got %s", r.UnitPrice)
		}

		item := model.LineItem{
			Description: r.Description,
			Quantity:    quantity,
			UnitPrice:   unitPrice,
			TaxCode:     r.TaxCode,
		}
		if r.ProductID != "" {
			pid, err := uuid.Parse(r.ProductID)
			if err != nil {
				return nil, fmt.Errorf("invalid product_id %q: %w", r.ProductID, err)
			}
			item.ProductID = &pid
		}
		items = append(items, item)
	}
	return items, nil
}

func parseMonetary(req QuoteRequest) (discount, shipping, cgst, sgst, igst decimal.Decimal, err error) {
	parse := func(name, value string) (decimal.Decimal, error) {
		if value == "" {
			return decimal.Zero, nil
		}
		parsed, parseErr := decimal.NewFromString(value)
		if parseErr != nil {
			return decimal.Zero, fmt.Errorf("invalid %s %q: %w", name, value, parseErr)
		}
		return parsed, nil
	}

	if discount, err = parse("discount", req.Discount); err != nil {
		return
	}
	if shipping, err = parse("shipping", req.Shipping); err != nil {
		return
	}
	if cgst, err = parse("cgst", req.CGST); err != nil {
		return
	}
	if sgst, err = parse("sgst", req.SGST); err != nil {
		return
	}
	igst, err = parse("igst", req.IGST)
	return
}

func toQuoteResponse(q model.Quote, calc *FinancialCalculator) QuoteResponse {
	resp := QuoteResponse{
		ID:        q.ID.String(),
		QuoteNo:   q.QuoteNo,
		Status:    q.Status,
		Version:   q.Version,
		Subtotal:  calc.Format(q.Subtotal),
		Discount:  calc.Format(q.Discount),
		Shipping:  calc.Format(q.Shipping),
		CGST:      calc.Format(q.CGST),
		SGST:      calc.Format(q.SGST),
		IGST:      calc.Format(q.IGST),
		Total:     calc.Format(q.Total),
		Notes:     q.Notes,
		Items:     toLineItemResponses(q.Items, calc),
		CreatedAt: q.CreatedAt.Format(time.RFC3339),
	}
	if q.CustomerID != nil {
		id := q.CustomerID.String()
		resp.CustomerID = &id
	}
	return resp
}

func toLineItemResponses(items []model.LineItem, calc *FinancialCalculator) []LineItemResponse {
	result := make([]LineItemResponse, 0, len(items))
	for _, item := range items {
		r := LineItemResponse{
			ID:          item.ID.String(),
			Description: item.Description,
			Quantity:    item.Quantity.StringFixed(2),
			UnitPrice:   calc.Format(item.UnitPrice),
			Subtotal:    calc.Format(item.Subtotal),
			TaxCode:     item.TaxCode,
		}
		if item.ProductID != nil {
			id := item.ProductID.String()
			r.ProductID = &id
		}
		result = append(result, r)
	}
	return result
}
