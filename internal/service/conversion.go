package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"backend/internal/model"
	"backend/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AttachmentRenderer produces the printable artifact for a freshly converted
// document. It is invoked strictly post-commit and its failure never
// propagates as a pipeline error.
type AttachmentRenderer interface {
	RenderOrder(order *model.SalesOrder) error
	RenderInvoice(invoice *model.Invoice) error
}

// EventBroadcaster pushes post-commit notifications to connected clients.
type EventBroadcaster interface {
	BroadcastJSON(event string, data map[string]interface{})
}

// ConversionResult reports a committed conversion.
type ConversionResult struct {
	DocumentID   uuid.UUID `json:"document_id"`
	DocumentNo   string    `json:"document_no"`
	DocumentType string    `json:"document_type"`
	Total        string    `json:"total"`
}

// ConvertOrderOptions carries the optional knobs of an order-to-invoice
// conversion.
type ConvertOrderOptions struct {
	DueDate *time.Time
}

// ConversionPipeline atomically moves a document to its successor stage.
// Each conversion is one unit of work spanning child creation, line-item
// copy, inventory adjustment, source status update and audit logging: all
// succeed together or none do. Steps run in a fixed order: authorization,
// state validation, financial recomputation, inventory adjustment, child
// insert, parent status update, audit.
type ConversionPipeline struct {
	quoteRepo   repository.QuoteRepository
	orderRepo   repository.SalesOrderRepository
	invoiceRepo repository.InvoiceRepository
	auditRepo   repository.AuditRepository
	userRepo    repository.UserRepository
	sequences   repository.SequenceRepository
	txManager   repository.TransactionManager
	calculator  *FinancialCalculator
	states      *DocumentStateMachine
	governance  *GovernanceEngine
	ledger      *InventoryLedger
	renderer    AttachmentRenderer
	broadcaster EventBroadcaster
}

func NewConversionPipeline(
	quoteRepo repository.QuoteRepository,
	orderRepo repository.SalesOrderRepository,
	invoiceRepo repository.InvoiceRepository,
	auditRepo repository.AuditRepository,
	userRepo repository.UserRepository,
	sequences repository.SequenceRepository,
	txManager repository.TransactionManager,
	calculator *FinancialCalculator,
	states *DocumentStateMachine,
	governance *GovernanceEngine,
	ledger *InventoryLedger,
	renderer AttachmentRenderer,
	broadcaster EventBroadcaster,
) *ConversionPipeline {
	return &ConversionPipeline{
		quoteRepo:   quoteRepo,
		orderRepo:   orderRepo,
		invoiceRepo: invoiceRepo,
		auditRepo:   auditRepo,
		userRepo:    userRepo,
		sequences:   sequences,
		txManager:   txManager,
		calculator:  calculator,
		states:      states,
		governance:  governance,
		ledger:      ledger,
		renderer:    renderer,
		broadcaster: broadcaster,
	}
}

// ConvertQuoteToOrder derives a sales order from an approved quote.
// Preconditions: quote status is approved and no order references the quote.
// The pre-transaction existence check is advisory only; the check re-run
// inside the transaction, immediately before insert, is authoritative and
// closes the race window between two concurrent requests. The unique index
// on sales_orders.quote_id backs it at the database level.
func (p *ConversionPipeline) ConvertQuoteToOrder(ctx context.Context, userID, role string, quoteID uuid.UUID) (*ConversionResult, error) {
	user := p.loadUser(ctx, userID)

	// Advisory fast-path check.
	if existing, err := p.orderRepo.FindByQuoteID(ctx, quoteID); err == nil {
		return nil, &DuplicateConversionError{ExistingID: existing.ID}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check existing order: %w", err)
	}

	var order model.SalesOrder
	err := p.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := p.quoteRepo.FindByIDForUpdate(txCtx, quoteID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("quote %s: %w", quoteID, ErrNotFound)
			}
			return fmt.Errorf("failed to load quote: %w", err)
		}
		quote, err := p.quoteRepo.FindByIDWithItems(txCtx, quoteID)
		if err != nil {
			return fmt.Errorf("failed to load quote items: %w", err)
		}

		if err := p.governance.CanConvertQuote(role, user, quote.Status).Err(); err != nil {
			return err
		}

		// Authoritative duplicate check, re-run under the transaction.
		if existing, err := p.orderRepo.FindByQuoteID(txCtx, quoteID); err == nil {
			return &DuplicateConversionError{ExistingID: existing.ID}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to check existing order: %w", err)
		}

		totals := p.calculator.DocumentTotals(quote.Items, quote.Discount, quote.Shipping,
			quote.CGST, quote.SGST, quote.IGST)

		orderNo, err := p.sequences.Next(txCtx, model.DocTypeSalesOrder)
		if err != nil {
			return fmt.Errorf("failed to generate order number: %w", err)
		}

		qid := quote.ID
		order = model.SalesOrder{
			OrderNo:    orderNo,
			Status:     model.OrderStatusDraft,
			QuoteID:    &qid,
			CustomerID: quote.CustomerID,
			OwnerID:    quote.OwnerID,
			Subtotal:   totals.Subtotal,
			Discount:   totals.Discount,
			Shipping:   totals.Shipping,
			CGST:       totals.CGST,
			SGST:       totals.SGST,
			IGST:       totals.IGST,
			Total:      totals.Total,
			Items:      copyItems(quote.Items),
		}
		if err := p.orderRepo.Create(txCtx, &order); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				if existing, findErr := p.orderRepo.FindByQuoteID(txCtx, quoteID); findErr == nil {
					return &DuplicateConversionError{ExistingID: existing.ID}
				}
				return &DuplicateConversionError{}
			}
			return fmt.Errorf("failed to create sales order: %w", err)
		}

		return p.audit(txCtx, userID, model.ActionConvertQuote, model.DocTypeSalesOrder,
			order.ID.String(), order.OrderNo, map[string]interface{}{
				"quote_id": quote.ID.String(),
				"quote_no": quote.QuoteNo,
				"total":    p.calculator.Format(order.Total),
			})
	})
	if err != nil {
		return nil, err
	}

	p.postCommitOrder(&order)

	return &ConversionResult{
		DocumentID:   order.ID,
		DocumentNo:   order.OrderNo,
		DocumentType: model.DocTypeSalesOrder,
		Total:        p.calculator.Format(order.Total),
	}, nil
}

// ConvertOrderToInvoice derives an invoice from a confirmed or fulfilled
// order. Multiple invoices per order are permitted (partial invoicing). For
// each line item referencing a product, inventory is consumed; shortage
// notes accumulate on the invoice's delivery notes. The source quote, if
// any, transitions to invoiced exactly once across repeated conversions.
func (p *ConversionPipeline) ConvertOrderToInvoice(ctx context.Context, userID, role string, orderID uuid.UUID, opts ConvertOrderOptions) (*ConversionResult, error) {
	user := p.loadUser(ctx, userID)

	var invoice model.Invoice
	err := p.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := p.orderRepo.FindByIDForUpdate(txCtx, orderID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("order %s: %w", orderID, ErrNotFound)
			}
			return fmt.Errorf("failed to load order: %w", err)
		}
		order, err := p.orderRepo.FindByIDWithItems(txCtx, orderID)
		if err != nil {
			return fmt.Errorf("failed to load order items: %w", err)
		}

		if err := p.governance.CanConvertOrder(role, user, order.Status).Err(); err != nil {
			return err
		}

		// The source quote must not have been rejected or closed since the
		// order was created. Approved covers the first conversion; invoiced
		// covers subsequent partial invoicing.
		var quote *model.Quote
		if order.QuoteID != nil {
			quote, err = p.quoteRepo.FindByID(txCtx, *order.QuoteID)
			if err != nil {
				return fmt.Errorf("failed to load source quote: %w", err)
			}
			if quote.Status != model.QuoteStatusApproved && quote.Status != model.QuoteStatusInvoiced {
				return &InvalidTransitionError{
					DocType: model.DocTypeQuote,
					From:    quote.Status,
					To:      model.QuoteStatusInvoiced,
					Reason:  fmt.Sprintf("Source quote is %s and can no longer be invoiced", quote.Status),
				}
			}
		}

		totals := p.calculator.DocumentTotals(order.Items, order.Discount, order.Shipping,
			order.CGST, order.SGST, order.IGST)

		invoiceNo, err := p.sequences.Next(txCtx, model.DocTypeInvoice)
		if err != nil {
			return fmt.Errorf("failed to generate invoice number: %w", err)
		}

		invoiceID := uuid.New()
		deliveryNotes := order.DeliveryNotes
		for i := range order.Items {
			item := &order.Items[i]
			if item.ProductID == nil {
				continue
			}
			note, err := p.ledger.Consume(txCtx, *item.ProductID, item.Quantity, model.DocTypeInvoice, invoiceID)
			if err != nil {
				return err
			}
			if note != "" {
				if deliveryNotes != "" {
					deliveryNotes += "\n"
				}
				deliveryNotes += note
			}
		}

		oid := order.ID
		invoice = model.Invoice{
			ID:            invoiceID,
			InvoiceNo:     invoiceNo,
			Status:        model.InvoiceStatusDraft,
			PaymentStatus: model.PaymentStatusUnpaid,
			OrderID:       &oid,
			CustomerID:    order.CustomerID,
			OwnerID:       order.OwnerID,
			Subtotal:      totals.Subtotal,
			Discount:      totals.Discount,
			Shipping:      totals.Shipping,
			CGST:          totals.CGST,
			SGST:          totals.SGST,
			IGST:          totals.IGST,
			Total:         totals.Total,
			DueDate:       opts.DueDate,
			DeliveryNotes: deliveryNotes,
			Items:         copyItems(order.Items),
		}
		if err := p.invoiceRepo.Create(txCtx, &invoice); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				// An invoice number collision has no conflicting document to
				// point at, unlike the quote_id guard on orders.
				return &DuplicateConversionError{}
			}
			return fmt.Errorf("failed to create invoice: %w", err)
		}

		if err := p.audit(txCtx, userID, model.ActionConvertOrder, model.DocTypeInvoice,
			invoice.ID.String(), invoice.InvoiceNo, map[string]interface{}{
				"order_id": order.ID.String(),
				"order_no": order.OrderNo,
				"total":    p.calculator.Format(invoice.Total),
			}); err != nil {
			return err
		}

		// Exactly-once quote transition: the guarded UPDATE affects zero
		// rows on every conversion after the first.
		if quote != nil {
			rows, err := p.quoteRepo.UpdateStatusFrom(txCtx, quote.ID,
				model.QuoteStatusApproved, model.QuoteStatusInvoiced)
			if err != nil {
				return fmt.Errorf("failed to update quote status: %w", err)
			}
			if rows > 0 {
				if err := p.audit(txCtx, userID, model.ActionQuoteInvoiced, model.DocTypeQuote,
					quote.ID.String(), quote.QuoteNo, map[string]interface{}{
						"invoice_id": invoice.ID.String(),
						"invoice_no": invoice.InvoiceNo,
					}); err != nil {
					return err
				}
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	p.postCommitInvoice(&invoice)

	return &ConversionResult{
		DocumentID:   invoice.ID,
		DocumentNo:   invoice.InvoiceNo,
		DocumentType: model.DocTypeInvoice,
		Total:        p.calculator.Format(invoice.Total),
	}, nil
}

// copyItems duplicates line items by value for the successor document. The
// source rows keep their parent; the new rows get fresh identities and the
// polymorphic owner set by the association on insert.
func copyItems(items []model.LineItem) []model.LineItem {
	copied := make([]model.LineItem, 0, len(items))
	for _, item := range items {
		copied = append(copied, model.LineItem{
			ProductID:   item.ProductID,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Subtotal:    item.Quantity.Mul(item.UnitPrice),
			TaxCode:     item.TaxCode,
		})
	}
	return copied
}

func (p *ConversionPipeline) loadUser(ctx context.Context, userID string) *model.User {
	if userID == "" {
		return nil
	}
	user, err := p.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil
	}
	return user
}

func (p *ConversionPipeline) audit(ctx context.Context, userID, action, entityType, entityID, entityName string, details map[string]interface{}) error {
	var uid *uuid.UUID
	if parsed, err := uuid.Parse(userID); err == nil {
		uid = &parsed
	}
	payload, _ := json.Marshal(details)
	entry := &model.AuditLog{
		UserID:     uid,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		EntityName: entityName,
		Details:    string(payload),
	}
	if err := p.auditRepo.Log(ctx, entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

// Post-commit side effects are best effort: failures are logged and never
// surfaced as conversion errors.
func (p *ConversionPipeline) postCommitOrder(order *model.SalesOrder) {
	if p.renderer != nil {
		if err := p.renderer.RenderOrder(order); err != nil {
			log.Printf("post-commit order rendering failed for %s: %v", order.OrderNo, err)
		}
	}
	if p.broadcaster != nil {
		p.broadcaster.BroadcastJSON("document.converted", map[string]interface{}{
			"document_type": model.DocTypeSalesOrder,
			"document_id":   order.ID.String(),
			"document_no":   order.OrderNo,
		})
	}
}

func (p *ConversionPipeline) postCommitInvoice(invoice *model.Invoice) {
	if p.renderer != nil {
		if err := p.renderer.RenderInvoice(invoice); err != nil {
			log.Printf("post-commit invoice rendering failed for %s: %v", invoice.InvoiceNo, err)
		}
	}
	if p.broadcaster != nil {
		p.broadcaster.BroadcastJSON("document.converted", map[string]interface{}{
			"document_type": model.DocTypeInvoice,
			"document_id":   invoice.ID.String(),
			"document_no":   invoice.InvoiceNo,
		})
	}
}
