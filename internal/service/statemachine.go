package service

import (
	"fmt"

	"backend/internal/model"
)

// DocumentStateMachine validates lifecycle transitions per document type.
// Transitions are checked against the current state before any field change
// or side effect, never inferred from the requested new state alone.
type DocumentStateMachine struct {
	transitions map[string]map[string][]string
	reasons     map[string]string
}

func NewDocumentStateMachine() *DocumentStateMachine {
	return &DocumentStateMachine{
		transitions: map[string]map[string][]string{
			model.DocTypeQuote: {
				model.QuoteStatusDraft:    {model.QuoteStatusSent},
				model.QuoteStatusSent:     {model.QuoteStatusApproved, model.QuoteStatusRejected},
				model.QuoteStatusApproved: {model.QuoteStatusInvoiced},
				model.QuoteStatusInvoiced: {model.QuoteStatusClosedPaid, model.QuoteStatusClosedCancelled},
			},
			model.DocTypeSalesOrder: {
				model.OrderStatusDraft:     {model.OrderStatusConfirmed, model.OrderStatusCancelled},
				model.OrderStatusConfirmed: {model.OrderStatusFulfilled, model.OrderStatusCancelled},
			},
			model.DocTypeInvoice: {
				model.InvoiceStatusDraft: {model.InvoiceStatusConfirmed, model.InvoiceStatusPaid,
					model.InvoiceStatusPartial, model.InvoiceStatusOverdue, model.InvoiceStatusCancelled},
				model.InvoiceStatusConfirmed: {model.InvoiceStatusPaid, model.InvoiceStatusPartial,
					model.InvoiceStatusOverdue, model.InvoiceStatusCancelled},
				model.InvoiceStatusPartial: {model.InvoiceStatusPaid, model.InvoiceStatusOverdue,
					model.InvoiceStatusCancelled},
				model.InvoiceStatusOverdue: {model.InvoiceStatusPaid, model.InvoiceStatusPartial,
					model.InvoiceStatusCancelled},
			},
		},
		reasons: map[string]string{
			transitionKey(model.DocTypeSalesOrder, model.OrderStatusFulfilled): "Only confirmed orders can be fulfilled",
			transitionKey(model.DocTypeSalesOrder, model.OrderStatusConfirmed): "Only draft orders can be confirmed",
			transitionKey(model.DocTypeSalesOrder, model.OrderStatusCancelled): "Fulfilled orders cannot be cancelled",
			transitionKey(model.DocTypeQuote, model.QuoteStatusSent):           "Only draft quotes can be sent",
			transitionKey(model.DocTypeQuote, model.QuoteStatusApproved):       "Only sent quotes can be approved",
			transitionKey(model.DocTypeQuote, model.QuoteStatusRejected):       "Only sent quotes can be rejected",
			transitionKey(model.DocTypeQuote, model.QuoteStatusInvoiced):       "Only approved quotes can be invoiced",
		},
	}
}

func transitionKey(docType, to string) string {
	return docType + "->" + to
}

// CanTransition reports whether the edge from -> to is legal for docType.
func (m *DocumentStateMachine) CanTransition(docType, from, to string) bool {
	targets, ok := m.transitions[docType][from]
	if !ok {
		return false
	}
	for _, t := range targets {
		if t == to {
			return true
		}
	}
	return false
}

// Validate returns an InvalidTransitionError with a user-facing reason when
// the requested transition is illegal from the current status.
func (m *DocumentStateMachine) Validate(docType, from, to string) error {
	if m.CanTransition(docType, from, to) {
		return nil
	}

	reason := m.reasons[transitionKey(docType, to)]
	if reason == "" {
		reason = fmt.Sprintf("Cannot move %s from %q to %q", docTypeLabel(docType), from, to)
	}

	return &InvalidTransitionError{DocType: docType, From: from, To: to, Reason: reason}
}

func docTypeLabel(docType string) string {
	switch docType {
	case model.DocTypeQuote:
		return "quote"
	case model.DocTypeSalesOrder:
		return "sales order"
	case model.DocTypeInvoice:
		return "invoice"
	}
	return docType
}
