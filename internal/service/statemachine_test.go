package service

import (
	"errors"
	"testing"

	"backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteTransitions(t *testing.T) {
	m := NewDocumentStateMachine()

	assert.True(t, m.CanTransition(model.DocTypeQuote, model.QuoteStatusDraft, model.QuoteStatusSent))
	assert.True(t, m.CanTransition(model.DocTypeQuote, model.QuoteStatusSent, model.QuoteStatusApproved))
	assert.True(t, m.CanTransition(model.DocTypeQuote, model.QuoteStatusSent, model.QuoteStatusRejected))
	assert.True(t, m.CanTransition(model.DocTypeQuote, model.QuoteStatusApproved, model.QuoteStatusInvoiced))
	assert.True(t, m.CanTransition(model.DocTypeQuote, model.QuoteStatusInvoiced, model.QuoteStatusClosedPaid))

	assert.False(t, m.CanTransition(model.DocTypeQuote, model.QuoteStatusDraft, model.QuoteStatusApproved))
	assert.False(t, m.CanTransition(model.DocTypeQuote, model.QuoteStatusApproved, model.QuoteStatusSent))
	assert.False(t, m.CanTransition(model.DocTypeQuote, model.QuoteStatusRejected, model.QuoteStatusApproved))
	assert.False(t, m.CanTransition(model.DocTypeQuote, model.QuoteStatusClosedPaid, model.QuoteStatusDraft))
}

func TestOrderTransitions(t *testing.T) {
	m := NewDocumentStateMachine()

	assert.True(t, m.CanTransition(model.DocTypeSalesOrder, model.OrderStatusDraft, model.OrderStatusConfirmed))
	assert.True(t, m.CanTransition(model.DocTypeSalesOrder, model.OrderStatusConfirmed, model.OrderStatusFulfilled))
	assert.True(t, m.CanTransition(model.DocTypeSalesOrder, model.OrderStatusConfirmed, model.OrderStatusCancelled))

	// Fulfilled and cancelled are terminal
	assert.False(t, m.CanTransition(model.DocTypeSalesOrder, model.OrderStatusFulfilled, model.OrderStatusCancelled))
	assert.False(t, m.CanTransition(model.DocTypeSalesOrder, model.OrderStatusCancelled, model.OrderStatusConfirmed))
	assert.False(t, m.CanTransition(model.DocTypeSalesOrder, model.OrderStatusDraft, model.OrderStatusFulfilled))
}

func TestInvoiceTransitions(t *testing.T) {
	m := NewDocumentStateMachine()

	assert.True(t, m.CanTransition(model.DocTypeInvoice, model.InvoiceStatusDraft, model.InvoiceStatusConfirmed))
	assert.True(t, m.CanTransition(model.DocTypeInvoice, model.InvoiceStatusConfirmed, model.InvoiceStatusPartial))
	assert.True(t, m.CanTransition(model.DocTypeInvoice, model.InvoiceStatusPartial, model.InvoiceStatusPaid))
	assert.True(t, m.CanTransition(model.DocTypeInvoice, model.InvoiceStatusOverdue, model.InvoiceStatusPaid))

	// Paid and cancelled are terminal
	assert.False(t, m.CanTransition(model.DocTypeInvoice, model.InvoiceStatusPaid, model.InvoiceStatusCancelled))
	assert.False(t, m.CanTransition(model.DocTypeInvoice, model.InvoiceStatusCancelled, model.InvoiceStatusDraft))
}

func TestValidateReturnsReason(t *testing.T) {
	m := NewDocumentStateMachine()

	err := m.Validate(model.DocTypeSalesOrder, model.OrderStatusDraft, model.OrderStatusFulfilled)
	require.Error(t, err)

	var transitionErr *InvalidTransitionError
	require.True(t, errors.As(err, &transitionErr))
	assert.Equal(t, "Only confirmed orders can be fulfilled", transitionErr.Reason)
	assert.Equal(t, model.OrderStatusDraft, transitionErr.From)
	assert.Equal(t, model.OrderStatusFulfilled, transitionErr.To)
}

func TestValidateUnknownStatus(t *testing.T) {
	m := NewDocumentStateMachine()

	err := m.Validate(model.DocTypeQuote, "bogus", model.QuoteStatusSent)
	require.Error(t, err)

	var transitionErr *InvalidTransitionError
	require.True(t, errors.As(err, &transitionErr))
}

func TestValidateLegalTransition(t *testing.T) {
	m := NewDocumentStateMachine()

	assert.NoError(t, m.Validate(model.DocTypeQuote, model.QuoteStatusDraft, model.QuoteStatusSent))
}
