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
	"gorm.io/gorm"
)

type OrderResponse struct {
	ID            string             `json:"id"`
	OrderNo       string             `json:"order_no"`
	Status        string             `json:"status"`
	QuoteID       *string            `json:"quote_id"`
	CustomerID    *string            `json:"customer_id"`
	Subtotal      string             `json:"subtotal"`
	Discount      string             `json:"discount"`
	Shipping      string             `json:"shipping"`
	CGST          string             `json:"cgst"`
	SGST          string             `json:"sgst"`
	IGST          string             `json:"igst"`
	Total         string             `json:"total"`
	DeliveryNotes string             `json:"delivery_notes"`
	Items         []LineItemResponse `json:"items"`
	CreatedAt     string             `json:"created_at"`
}

type OrderFilter struct {
	Status string
	Page   int
	Limit  int
}

type OrderService interface {
	GetOrder(ctx context.Context, id string) (OrderResponse, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]OrderResponse, int64, error)
	// ConfirmOrder moves a draft order to confirmed and, when inventory
	// tracking is on, reserves stock for every product-backed line item.
	// Reservation failure rolls back the status change.
	ConfirmOrder(ctx context.Context, userID, role string, id string) (OrderResponse, error)
	// CancelOrder releases reservations taken at confirmation. Cancelling a
	// draft order releases nothing.
	CancelOrder(ctx context.Context, userID, role string, id string) (OrderResponse, error)
	FulfillOrder(ctx context.Context, userID, role string, id string) (OrderResponse, error)
}

type orderService struct {
	orderRepo  repository.SalesOrderRepository
	auditRepo  repository.AuditRepository
	userRepo   repository.UserRepository
	txManager  repository.TransactionManager
	calculator *FinancialCalculator
	states     *DocumentStateMachine
	governance *GovernanceEngine
	ledger     *InventoryLedger
}

func NewOrderService(
	orderRepo repository.SalesOrderRepository,
	auditRepo repository.AuditRepository,
	userRepo repository.UserRepository,
	txManager repository.TransactionManager,
	calculator *FinancialCalculator,
	states *DocumentStateMachine,
	governance *GovernanceEngine,
	ledger *InventoryLedger,
) OrderService {
	return &orderService{
		orderRepo:  orderRepo,
		auditRepo:  auditRepo,
		userRepo:   userRepo,
		txManager:  txManager,
		calculator: calculator,
		states:     states,
		governance: governance,
		ledger:     ledger,
	}
}

func (s *orderService) GetOrder(ctx context.Context, id string) (OrderResponse, error) {
	orderID, err := uuid.Parse(id)
	if err != nil {
		return OrderResponse{}, fmt.Errorf("invalid order id: %w", err)
	}
	order, err := s.orderRepo.FindByIDWithItems(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return OrderResponse{}, fmt.Errorf("order %s: %w", id, ErrNotFound)
		}
		return OrderResponse{}, fmt.Errorf("failed to load order: %w", err)
	}
	return toOrderResponse(*order, s.calculator), nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderFilter) ([]OrderResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	orders, total, err := s.orderRepo.List(ctx, repository.OrderListFilter{
		Status: filter.Status,
		Page:   filter.Page,
		Limit:  filter.Limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch orders: %w", err)
	}
	result := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		result = append(result, toOrderResponse(o, s.calculator))
	}
	return result, total, nil
}

func (s *orderService) ConfirmOrder(ctx context.Context, userID, role string, id string) (OrderResponse, error) {
	orderID, err := uuid.Parse(id)
	if err != nil {
		return OrderResponse{}, fmt.Errorf("invalid order id: %w", err)
	}
	user := s.loadUser(ctx, userID)

	var order *model.SalesOrder
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.orderRepo.FindByIDForUpdate(txCtx, orderID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("order %s: %w", id, ErrNotFound)
			}
			return fmt.Errorf("failed to load order: %w", err)
		}
		order, err = s.orderRepo.FindByIDWithItems(txCtx, orderID)
		if err != nil {
			return fmt.Errorf("failed to load order items: %w", err)
		}

		if gc := s.governance.CanConfirmOrder(role, user, order.Status); !gc.Allowed {
			return gc.Err()
		}
		if err := s.states.Validate(model.DocTypeSalesOrder, order.Status, model.OrderStatusConfirmed); err != nil {
			return err
		}

		if s.ledger.Enabled() {
			for _, item := range order.Items {
				if item.ProductID == nil {
					continue
				}
				if err := s.ledger.Reserve(txCtx, *item.ProductID, item.Quantity, model.DocTypeSalesOrder, order.ID); err != nil {
					return fmt.Errorf("failed to reserve stock for %q: %w", item.Description, err)
				}
			}
		}

		order.Status = model.OrderStatusConfirmed
		if err := s.orderRepo.Save(txCtx, order); err != nil {
			return fmt.Errorf("failed to confirm order: %w", err)
		}

		return s.audit(txCtx, userID, model.ActionConfirmOrder, order,
			map[string]interface{}{"from": model.OrderStatusDraft, "to": model.OrderStatusConfirmed})
	})
	if err != nil {
		return OrderResponse{}, err
	}
	return toOrderResponse(*order, s.calculator), nil
}

func (s *orderService) CancelOrder(ctx context.Context, userID, role string, id string) (OrderResponse, error) {
	orderID, err := uuid.Parse(id)
	if err != nil {
		return OrderResponse{}, fmt.Errorf("invalid order id: %w", err)
	}
	user := s.loadUser(ctx, userID)

	var order *model.SalesOrder
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.orderRepo.FindByIDForUpdate(txCtx, orderID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("order %s: %w", id, ErrNotFound)
			}
			return fmt.Errorf("failed to load order: %w", err)
		}
		order, err = s.orderRepo.FindByIDWithItems(txCtx, orderID)
		if err != nil {
			return fmt.Errorf("failed to load order items: %w", err)
		}

		if gc := s.governance.CanCancelOrder(role, user, order.Status); !gc.Allowed {
			return gc.Err()
		}
		if err := s.states.Validate(model.DocTypeSalesOrder, order.Status, model.OrderStatusCancelled); err != nil {
			return err
		}

		// Only confirmed orders hold reservations.
		if order.Status == model.OrderStatusConfirmed && s.ledger.Enabled() {
			for _, item := range order.Items {
				if item.ProductID == nil {
					continue
				}
				if err := s.ledger.Release(txCtx, *item.ProductID, item.Quantity, model.DocTypeSalesOrder, order.ID); err != nil {
					return fmt.Errorf("failed to release stock for %q: %w", item.Description, err)
				}
			}
		}

		previous := order.Status
		order.Status = model.OrderStatusCancelled
		if err := s.orderRepo.Save(txCtx, order); err != nil {
			return fmt.Errorf("failed to cancel order: %w", err)
		}

		return s.audit(txCtx, userID, model.ActionCancelOrder, order,
			map[string]interface{}{"from": previous, "to": model.OrderStatusCancelled})
	})
	if err != nil {
		return OrderResponse{}, err
	}
	return toOrderResponse(*order, s.calculator), nil
}

func (s *orderService) FulfillOrder(ctx context.Context, userID, role string, id string) (OrderResponse, error) {
	orderID, err := uuid.Parse(id)
	if err != nil {
		return OrderResponse{}, fmt.Errorf("invalid order id: %w", err)
	}
	user := s.loadUser(ctx, userID)

	var order *model.SalesOrder
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		order, err = s.orderRepo.FindByIDForUpdate(txCtx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("order %s: %w", id, ErrNotFound)
			}
			return fmt.Errorf("failed to load order: %w", err)
		}

		if gc := s.governance.CanFulfillOrder(role, user, order.Status); !gc.Allowed {
			return gc.Err()
		}
		if err := s.states.Validate(model.DocTypeSalesOrder, order.Status, model.OrderStatusFulfilled); err != nil {
			return err
		}

		order.Status = model.OrderStatusFulfilled
		if err := s.orderRepo.Save(txCtx, order); err != nil {
			return fmt.Errorf("failed to fulfill order: %w", err)
		}

		return s.audit(txCtx, userID, model.ActionFulfillOrder, order,
			map[string]interface{}{"from": model.OrderStatusConfirmed, "to": model.OrderStatusFulfilled})
	})
	if err != nil {
		return OrderResponse{}, err
	}
	return toOrderResponse(*order, s.calculator), nil
}

func (s *orderService) loadUser(ctx context.Context, userID string) *model.User {
	if userID == "" {
		return nil
	}
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil
	}
	return user
}

func (s *orderService) audit(ctx context.Context, userID, action string, order *model.SalesOrder, details map[string]interface{}) error {
	var uid *uuid.UUID
	if parsed, err := uuid.Parse(userID); err == nil {
		uid = &parsed
	}
	payload, _ := json.Marshal(details)
	entry := &model.AuditLog{
		UserID:     uid,
		Action:     action,
		EntityType: model.DocTypeSalesOrder,
		EntityID:   order.ID.String(),
		EntityName: order.OrderNo,
		Details:    string(payload),
	}
	if err := s.auditRepo.Log(ctx, entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

func toOrderResponse(o model.SalesOrder, calc *FinancialCalculator) OrderResponse {
	resp := OrderResponse{
		ID:            o.ID.String(),
		OrderNo:       o.OrderNo,
		Status:        o.Status,
		Subtotal:      calc.Format(o.Subtotal),
		Discount:      calc.Format(o.Discount),
		Shipping:      calc.Format(o.Shipping),
		CGST:          calc.Format(o.CGST),
		SGST:          calc.Format(o.SGST),
		IGST:          calc.Format(o.IGST),
		Total:         calc.Format(o.Total),
		DeliveryNotes: o.DeliveryNotes,
		Items:         toLineItemResponses(o.Items, calc),
		CreatedAt:     o.CreatedAt.Format(time.RFC3339),
	}
	if o.QuoteID != nil {
		id := o.QuoteID.String()
		resp.QuoteID = &id
	}
	if o.CustomerID != nil {
		id := o.CustomerID.String()
		resp.CustomerID = &id
	}
	return resp
}
