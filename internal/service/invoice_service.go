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

type RecordPaymentRequest struct {
	Amount    string `json:"amount" binding:"required"`
	Reference string `json:"reference"`
}

type InvoiceResponse struct {
	ID            string             `json:"id"`
	InvoiceNo     string             `json:"invoice_no"`
	Status        string             `json:"status"`
	PaymentStatus string             `json:"payment_status"`
	OrderID       *string            `json:"order_id"`
	CustomerID    *string            `json:"customer_id"`
	Subtotal      string             `json:"subtotal"`
	Discount      string             `json:"discount"`
	Shipping      string             `json:"shipping"`
	CGST          string             `json:"cgst"`
	SGST          string             `json:"sgst"`
	IGST          string             `json:"igst"`
	Total         string             `json:"total"`
	AmountPaid    string             `json:"amount_paid"`
	Balance       string             `json:"balance"`
	Locked        bool               `json:"locked"`
	DueDate       *string            `json:"due_date"`
	DeliveryNotes string             `json:"delivery_notes"`
	Items         []LineItemResponse `json:"items"`
	CreatedAt     string             `json:"created_at"`
}

type InvoiceFilter struct {
	Status        string
	PaymentStatus string
	OrderID       string
	Page          int
	Limit         int
}

type InvoiceService interface {
	GetInvoice(ctx context.Context, id string) (InvoiceResponse, error)
	ListInvoices(ctx context.Context, filter InvoiceFilter) ([]InvoiceResponse, int64, error)
	ConfirmInvoice(ctx context.Context, userID, role string, id string) (InvoiceResponse, error)
	// RecordPayment accumulates into amount_paid using exact decimal
	// comparison. A payment covering the remaining balance moves the invoice
	// to paid and, when it originated from a quote, closes that quote.
	RecordPayment(ctx context.Context, userID, role string, id string, req RecordPaymentRequest) (InvoiceResponse, error)
	// LockMasterInvoice freezes a confirmed invoice's line items and amounts.
	LockMasterInvoice(ctx context.Context, userID, role string, id string) (InvoiceResponse, error)
	CancelInvoice(ctx context.Context, userID, role string, id string) (InvoiceResponse, error)
}

type invoiceService struct {
	invoiceRepo repository.InvoiceRepository
	orderRepo   repository.SalesOrderRepository
	quoteRepo   repository.QuoteRepository
	auditRepo   repository.AuditRepository
	userRepo    repository.UserRepository
	txManager   repository.TransactionManager
	calculator  *FinancialCalculator
	states      *DocumentStateMachine
	governance  *GovernanceEngine
}

func NewInvoiceService(
	invoiceRepo repository.InvoiceRepository,
	orderRepo repository.SalesOrderRepository,
	quoteRepo repository.QuoteRepository,
	auditRepo repository.AuditRepository,
	userRepo repository.UserRepository,
	txManager repository.TransactionManager,
	calculator *FinancialCalculator,
	states *DocumentStateMachine,
	governance *GovernanceEngine,
) InvoiceService {
	return &invoiceService{
		invoiceRepo: invoiceRepo,
		orderRepo:   orderRepo,
		quoteRepo:   quoteRepo,
		auditRepo:   auditRepo,
		userRepo:    userRepo,
		txManager:   txManager,
		calculator:  calculator,
		states:      states,
		governance:  governance,
	}
}

func (s *invoiceService) GetInvoice(ctx context.Context, id string) (InvoiceResponse, error) {
	invoiceID, err := uuid.Parse(id)
	if err != nil {
		return InvoiceResponse{}, fmt.Errorf("invalid invoice id: %w", err)
	}
	invoice, err := s.invoiceRepo.FindByIDWithItems(ctx, invoiceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return InvoiceResponse{}, fmt.Errorf("invoice %s: %w", id, ErrNotFound)
		}
		return InvoiceResponse{}, fmt.Errorf("failed to load invoice: %w", err)
	}
	return toInvoiceResponse(*invoice, s.calculator), nil
}

func (s *invoiceService) ListInvoices(ctx context.Context, filter InvoiceFilter) ([]InvoiceResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	repoFilter := repository.InvoiceListFilter{
		Status:        filter.Status,
		PaymentStatus: filter.PaymentStatus,
		Page:          filter.Page,
		Limit:         filter.Limit,
	}
	if filter.OrderID != "" {
		orderID, err := uuid.Parse(filter.OrderID)
		if err != nil {
			return nil, 0, fmt.Errorf("invalid order id: %w", err)
		}
		repoFilter.OrderID = &orderID
	}
	invoices, total, err := s.invoiceRepo.List(ctx, repoFilter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch invoices: %w", err)
	}
	result := make([]InvoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		result = append(result, toInvoiceResponse(inv, s.calculator))
	}
	return result, total, nil
}

func (s *invoiceService) ConfirmInvoice(ctx context.Context, userID, role string, id string) (InvoiceResponse, error) {
	return s.transition(ctx, userID, role, id, model.InvoiceStatusConfirmed, model.ActionConfirmInvoice,
		func(user *model.User, invoice *model.Invoice) error {
			if !s.governance.HasPermission(s.effectiveRole(role, user), "invoices", "write", map[string]string{"status": invoice.Status}) {
				return &AuthorizationError{
					Reason:       fmt.Sprintf("role %q cannot confirm invoices", role),
					RequiredRole: model.RoleFinanceAccounts,
				}
			}
			return nil
		})
}

func (s *invoiceService) RecordPayment(ctx context.Context, userID, role string, id string, req RecordPaymentRequest) (InvoiceResponse, error) {
	invoiceID, err := uuid.Parse(id)
	if err != nil {
		return InvoiceResponse{}, fmt.Errorf("invalid invoice id: %w", err)
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return InvoiceResponse{}, fmt.Errorf("invalid payment amount %q: %w", req.Amount, err)
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return InvoiceResponse{}, fmt.Errorf("payment amount must be positive, got %s", req.Amount)
	}
	user := s.loadUser(ctx, userID)

	var invoice *model.Invoice
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		invoice, err = s.invoiceRepo.FindByIDForUpdate(txCtx, invoiceID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("invoice %s: %w", id, ErrNotFound)
			}
			return fmt.Errorf("failed to load invoice: %w", err)
		}

		if gc := s.governance.CanRecordPayment(role, user, invoice.Status); !gc.Allowed {
			return gc.Err()
		}

		balance := invoice.Total.Sub(invoice.AmountPaid)
		if amount.GreaterThan(balance) {
			return fmt.Errorf("payment %s exceeds outstanding balance %s",
				s.calculator.Format(amount), s.calculator.Format(balance))
		}

		invoice.AmountPaid = invoice.AmountPaid.Add(amount)
		if s.calculator.CoversBalance(invoice.AmountPaid, invoice.Total) {
			invoice.PaymentStatus = model.PaymentStatusPaid
			invoice.Status = model.InvoiceStatusPaid
		} else {
			invoice.PaymentStatus = model.PaymentStatusPartial
			invoice.Status = model.InvoiceStatusPartial
		}
		if err := s.invoiceRepo.Save(txCtx, invoice); err != nil {
			return fmt.Errorf("failed to record payment: %w", err)
		}

		if invoice.PaymentStatus == model.PaymentStatusPaid {
			if err := s.closeSourceQuote(txCtx, userID, invoice); err != nil {
				return err
			}
		}

		return s.audit(txCtx, userID, model.ActionRecordPayment, invoice, map[string]interface{}{
			"amount":         s.calculator.Format(amount),
			"reference":      req.Reference,
			"amount_paid":    s.calculator.Format(invoice.AmountPaid),
			"payment_status": invoice.PaymentStatus,
		})
	})
	if err != nil {
		return InvoiceResponse{}, err
	}
	return toInvoiceResponse(*invoice, s.calculator), nil
}

// closeSourceQuote walks invoice -> order -> quote and moves an invoiced
// quote to closed_paid once every invoice of the order is fully paid. The
// guarded status update keeps concurrent final payments from double-closing.
func (s *invoiceService) closeSourceQuote(ctx context.Context, userID string, invoice *model.Invoice) error {
	if invoice.OrderID == nil {
		return nil
	}
	order, err := s.orderRepo.FindByID(ctx, *invoice.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load source order: %w", err)
	}
	if order.QuoteID == nil {
		return nil
	}

	siblings, err := s.invoiceRepo.ListByOrderID(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("failed to list order invoices: %w", err)
	}
	for _, sibling := range siblings {
		if sibling.Status == model.InvoiceStatusCancelled {
			continue
		}
		if sibling.ID == invoice.ID {
			continue
		}
		if sibling.PaymentStatus != model.PaymentStatusPaid {
			return nil
		}
	}

	rows, err := s.quoteRepo.UpdateStatusFrom(ctx, *order.QuoteID, model.QuoteStatusInvoiced, model.QuoteStatusClosedPaid)
	if err != nil {
		return fmt.Errorf("failed to close source quote: %w", err)
	}
	if rows == 0 {
		return nil
	}

	var uid *uuid.UUID
	if parsed, parseErr := uuid.Parse(userID); parseErr == nil {
		uid = &parsed
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"from": model.QuoteStatusInvoiced, "to": model.QuoteStatusClosedPaid,
	})
	return s.auditRepo.Log(ctx, &model.AuditLog{
		UserID:     uid,
		Action:     model.ActionCloseQuotePaid,
		EntityType: model.DocTypeQuote,
		EntityID:   order.QuoteID.String(),
		Details:    string(payload),
	})
}

func (s *invoiceService) LockMasterInvoice(ctx context.Context, userID, role string, id string) (InvoiceResponse, error) {
	invoiceID, err := uuid.Parse(id)
	if err != nil {
		return InvoiceResponse{}, fmt.Errorf("invalid invoice id: %w", err)
	}
	user := s.loadUser(ctx, userID)

	var invoice *model.Invoice
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		invoice, err = s.invoiceRepo.FindByIDForUpdate(txCtx, invoiceID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("invoice %s: %w", id, ErrNotFound)
			}
			return fmt.Errorf("failed to load invoice: %w", err)
		}

		if gc := s.governance.CanLockMasterInvoice(role, user, invoice.Status); !gc.Allowed {
			return gc.Err()
		}
		if invoice.Locked {
			return nil
		}

		invoice.Locked = true
		if err := s.invoiceRepo.Save(txCtx, invoice); err != nil {
			return fmt.Errorf("failed to lock invoice: %w", err)
		}

		return s.audit(txCtx, userID, model.ActionLockMasterInvoice, invoice, nil)
	})
	if err != nil {
		return InvoiceResponse{}, err
	}
	return toInvoiceResponse(*invoice, s.calculator), nil
}

func (s *invoiceService) CancelInvoice(ctx context.Context, userID, role string, id string) (InvoiceResponse, error) {
	return s.transition(ctx, userID, role, id, model.InvoiceStatusCancelled, model.ActionCancelInvoice,
		func(user *model.User, invoice *model.Invoice) error {
			if invoice.Locked {
				return &InvalidTransitionError{
					DocType: model.DocTypeInvoice,
					From:    invoice.Status,
					To:      model.InvoiceStatusCancelled,
					Reason:  "A locked invoice cannot be cancelled",
				}
			}
			if !s.governance.HasPermission(s.effectiveRole(role, user), "invoices", "write", map[string]string{"status": invoice.Status}) {
				return &AuthorizationError{
					Reason:       fmt.Sprintf("role %q cannot cancel invoices", role),
					RequiredRole: model.RoleFinanceAccounts,
				}
			}
			return nil
		})
}

func (s *invoiceService) transition(ctx context.Context, userID, role, id, target, action string, check func(*model.User, *model.Invoice) error) (InvoiceResponse, error) {
	invoiceID, err := uuid.Parse(id)
	if err != nil {
		return InvoiceResponse{}, fmt.Errorf("invalid invoice id: %w", err)
	}
	user := s.loadUser(ctx, userID)

	var invoice *model.Invoice
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		invoice, err = s.invoiceRepo.FindByIDForUpdate(txCtx, invoiceID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("invoice %s: %w", id, ErrNotFound)
			}
			return fmt.Errorf("failed to load invoice: %w", err)
		}

		if err := check(user, invoice); err != nil {
			return err
		}
		if err := s.states.Validate(model.DocTypeInvoice, invoice.Status, target); err != nil {
			return err
		}

		previous := invoice.Status
		invoice.Status = target
		if err := s.invoiceRepo.Save(txCtx, invoice); err != nil {
			return fmt.Errorf("failed to update invoice status: %w", err)
		}

		return s.audit(txCtx, userID, action, invoice,
			map[string]interface{}{"from": previous, "to": target})
	})
	if err != nil {
		return InvoiceResponse{}, err
	}
	return toInvoiceResponse(*invoice, s.calculator), nil
}

func (s *invoiceService) effectiveRole(role string, user *model.User) string {
	if role == model.RoleSalesExecutive && user != nil && user.HasActiveDelegation(time.Now()) {
		return model.RoleSalesManager
	}
	return role
}

func (s *invoiceService) loadUser(ctx context.Context, userID string) *model.User {
	if userID == "" {
		return nil
	}
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil
	}
	return user
}

func (s *invoiceService) audit(ctx context.Context, userID, action string, invoice *model.Invoice, details map[string]interface{}) error {
	var uid *uuid.UUID
	if parsed, err := uuid.Parse(userID); err == nil {
		uid = &parsed
	}
	payload, _ := json.Marshal(details)
	entry := &model.AuditLog{
		UserID:     uid,
		Action:     action,
		EntityType: model.DocTypeInvoice,
		EntityID:   invoice.ID.String(),
		EntityName: invoice.InvoiceNo,
		Details:    string(payload),
	}
	if err := s.auditRepo.Log(ctx, entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

func toInvoiceResponse(inv model.Invoice, calc *FinancialCalculator) InvoiceResponse {
	resp := InvoiceResponse{
		ID:            inv.ID.String(),
		InvoiceNo:     inv.InvoiceNo,
		Status:        inv.Status,
		PaymentStatus: inv.PaymentStatus,
		Subtotal:      calc.Format(inv.Subtotal),
		Discount:      calc.Format(inv.Discount),
		Shipping:      calc.Format(inv.Shipping),
		CGST:          calc.Format(inv.CGST),
		SGST:          calc.Format(inv.SGST),
		IGST:          calc.Format(inv.IGST),
		Total:         calc.Format(inv.Total),
		AmountPaid:    calc.Format(inv.AmountPaid),
		Balance:       calc.Format(inv.Total.Sub(inv.AmountPaid)),
		Locked:        inv.Locked,
		DeliveryNotes: inv.DeliveryNotes,
		Items:         toLineItemResponses(inv.Items, calc),
		CreatedAt:     inv.CreatedAt.Format(time.RFC3339),
	}
	if inv.OrderID != nil {
		id := inv.OrderID.String()
		resp.OrderID = &id
	}
	if inv.CustomerID != nil {
		id := inv.CustomerID.String()
		resp.CustomerID = &id
	}
	if inv.DueDate != nil {
		due := inv.DueDate.Format(time.RFC3339)
		resp.DueDate = &due
	}
	return resp
}
