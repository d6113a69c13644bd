package service

import (
	"fmt"
	"time"

	"backend/internal/model"
)

// Condition operators. A small closed set, never arbitrary code.
const (
	OpEquals    = "equals"
	OpNotEquals = "not_equals"
	OpIn        = "in"
	OpNotIn     = "not_in"
)

// Condition compares a named context field against a literal or set.
type Condition struct {
	Field    string
	Operator string
	Value    string
	Values   []string
}

// RolePermission grants (resource, action) to a role, optionally narrowed by
// conditions that must all evaluate true against the supplied context.
type RolePermission struct {
	Resource   string
	Action     string
	Conditions []Condition
}

// GovernanceCheck is the result of a specialized governance check. Reason is
// always populated on denial; RequiredRole is set when the role whitelist is
// what failed, so the caller can tell the requester who could perform the
// action.
type GovernanceCheck struct {
	Allowed      bool
	Reason       string
	RequiredRole string
}

// BulkGovernanceCheck reports an all-or-nothing batch decision with the
// partial counts, so a rejection can be explained precisely.
type BulkGovernanceCheck struct {
	Allowed      bool
	AllowedCount int
	TotalCount   int
	Reason       string
}

// GovernanceEngine evaluates the role/resource/action permission matrix and
// the state-conditioned checks gating every document mutation. Governance is
// necessary but not sufficient: mutations must separately pass the
// DocumentStateMachine.
type GovernanceEngine struct {
	matrix map[string][]RolePermission
	now    func() time.Time
}

func NewGovernanceEngine() *GovernanceEngine {
	return &GovernanceEngine{
		matrix: defaultPermissionMatrix(),
		now:    time.Now,
	}
}

// The permission table is static data, not polymorphic dispatch. Conditions
// reference context fields supplied by the caller (typically document
// status or ownership).
func defaultPermissionMatrix() map[string][]RolePermission {
	return map[string][]RolePermission{
		model.RoleAdmin: {
			{Resource: "quotes", Action: "read"},
			{Resource: "quotes", Action: "write"},
			{Resource: "quotes", Action: "approve"},
			{Resource: "quotes", Action: "convert"},
			{Resource: "orders", Action: "read"},
			{Resource: "orders", Action: "write"},
			{Resource: "orders", Action: "confirm"},
			{Resource: "orders", Action: "cancel"},
			{Resource: "orders", Action: "fulfill"},
			{Resource: "orders", Action: "convert"},
			{Resource: "invoices", Action: "read"},
			{Resource: "invoices", Action: "write"},
			{Resource: "invoices", Action: "lock"},
			{Resource: "invoices", Action: "payment"},
			{Resource: "products", Action: "read"},
			{Resource: "products", Action: "write"},
			{Resource: "users", Action: "write"},
		},
		model.RoleSalesManager: {
			{Resource: "quotes", Action: "read"},
			{Resource: "quotes", Action: "write"},
			{Resource: "quotes", Action: "approve", Conditions: []Condition{
				{Field: "status", Operator: OpEquals, Value: model.QuoteStatusSent},
			}},
			{Resource: "quotes", Action: "convert"},
			{Resource: "orders", Action: "read"},
			{Resource: "orders", Action: "write"},
			{Resource: "orders", Action: "confirm"},
			{Resource: "orders", Action: "cancel", Conditions: []Condition{
				{Field: "status", Operator: OpNotIn, Values: []string{model.OrderStatusFulfilled}},
			}},
			{Resource: "orders", Action: "fulfill"},
			{Resource: "orders", Action: "convert"},
			{Resource: "invoices", Action: "read"},
			{Resource: "products", Action: "read"},
		},
		model.RoleSalesExecutive: {
			{Resource: "quotes", Action: "read"},
			{Resource: "quotes", Action: "write", Conditions: []Condition{
				{Field: "status", Operator: OpIn, Values: []string{model.QuoteStatusDraft, model.QuoteStatusSent}},
			}},
			{Resource: "orders", Action: "read"},
			{Resource: "invoices", Action: "read"},
			{Resource: "products", Action: "read"},
		},
		model.RoleFinanceAccounts: {
			{Resource: "invoices", Action: "read"},
			{Resource: "invoices", Action: "write"},
			{Resource: "invoices", Action: "lock", Conditions: []Condition{
				{Field: "status", Operator: OpEquals, Value: model.InvoiceStatusConfirmed},
			}},
			{Resource: "invoices", Action: "payment"},
			{Resource: "orders", Action: "read"},
			{Resource: "quotes", Action: "read"},
		},
	}
}

// HasPermission looks up the role's permission set for (resource, action).
// When the matched permission carries conditions, all of them must evaluate
// true against the supplied context or the permission does not apply
// (fail-closed: missing fields and unknown operators deny).
func (g *GovernanceEngine) HasPermission(role, resource, action string, ctx map[string]string) bool {
	for _, perm := range g.matrix[role] {
		if perm.Resource != resource || perm.Action != action {
			continue
		}
		if evaluateConditions(perm.Conditions, ctx) {
			return true
		}
	}
	return false
}

func evaluateConditions(conditions []Condition, ctx map[string]string) bool {
	for _, cond := range conditions {
		value, ok := ctx[cond.Field]
		if !ok {
			return false
		}
		switch cond.Operator {
		case OpEquals:
			if value != cond.Value {
				return false
			}
		case OpNotEquals:
			if value == cond.Value {
				return false
			}
		case OpIn:
			if !contains(cond.Values, value) {
				return false
			}
		case OpNotIn:
			if contains(cond.Values, value) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

// effectiveRole upgrades a user holding an active delegation window to
// sales_manager-equivalent approval authority for that window only.
func (g *GovernanceEngine) effectiveRole(role string, user *model.User) string {
	if role == model.RoleSalesManager || role == model.RoleAdmin {
		return role
	}
	if user != nil && user.HasActiveDelegation(g.now()) {
		return model.RoleSalesManager
	}
	return role
}

// roleCheck combines a role whitelist with a state precondition. The
// returned GovernanceCheck always explains why on denial.
func (g *GovernanceEngine) roleCheck(role string, user *model.User, allowed []string, requiredRole string, verb string) GovernanceCheck {
	effective := g.effectiveRole(role, user)
	for _, a := range allowed {
		if effective == a {
			return GovernanceCheck{Allowed: true}
		}
	}
	return GovernanceCheck{
		Allowed:      false,
		Reason:       fmt.Sprintf("role %q cannot %s", role, verb),
		RequiredRole: requiredRole,
	}
}

func stateCheck(got string, want []string, verb string) GovernanceCheck {
	for _, w := range want {
		if got == w {
			return GovernanceCheck{Allowed: true}
		}
	}
	return GovernanceCheck{
		Allowed: false,
		Reason:  fmt.Sprintf("cannot %s a document in status %q", verb, got),
	}
}

// CanApproveQuote: role in {sales_manager, admin} (or active delegation) AND
// quote status is sent.
func (g *GovernanceEngine) CanApproveQuote(role string, user *model.User, quoteStatus string) GovernanceCheck {
	if check := g.roleCheck(role, user, []string{model.RoleSalesManager, model.RoleAdmin},
		model.RoleSalesManager, "approve quotes"); !check.Allowed {
		return check
	}
	return stateCheck(quoteStatus, []string{model.QuoteStatusSent}, "approve")
}

// CanSendQuote: any sales role may send a draft quote.
func (g *GovernanceEngine) CanSendQuote(role string, user *model.User, quoteStatus string) GovernanceCheck {
	if check := g.roleCheck(role, user,
		[]string{model.RoleSalesExecutive, model.RoleSalesManager, model.RoleAdmin},
		model.RoleSalesExecutive, "send quotes"); !check.Allowed {
		return check
	}
	return stateCheck(quoteStatus, []string{model.QuoteStatusDraft}, "send")
}

// CanConvertQuote: conversion to a sales order requires manager authority
// and an approved quote.
func (g *GovernanceEngine) CanConvertQuote(role string, user *model.User, quoteStatus string) GovernanceCheck {
	if check := g.roleCheck(role, user, []string{model.RoleSalesManager, model.RoleAdmin},
		model.RoleSalesManager, "convert quotes"); !check.Allowed {
		return check
	}
	return stateCheck(quoteStatus, []string{model.QuoteStatusApproved}, "convert")
}

// CanConfirmOrder requires approve-level permission on a draft order.
func (g *GovernanceEngine) CanConfirmOrder(role string, user *model.User, orderStatus string) GovernanceCheck {
	if check := g.roleCheck(role, user, []string{model.RoleSalesManager, model.RoleAdmin},
		model.RoleSalesManager, "confirm orders"); !check.Allowed {
		return check
	}
	return stateCheck(orderStatus, []string{model.OrderStatusDraft}, "confirm")
}

// CanCancelOrder requires cancel-level permission on a pre-fulfillment order.
func (g *GovernanceEngine) CanCancelOrder(role string, user *model.User, orderStatus string) GovernanceCheck {
	if check := g.roleCheck(role, user, []string{model.RoleSalesManager, model.RoleAdmin},
		model.RoleSalesManager, "cancel orders"); !check.Allowed {
		return check
	}
	return stateCheck(orderStatus, []string{model.OrderStatusDraft, model.OrderStatusConfirmed}, "cancel")
}

// CanFulfillOrder: fulfillment is only legal from confirmed.
func (g *GovernanceEngine) CanFulfillOrder(role string, user *model.User, orderStatus string) GovernanceCheck {
	if check := g.roleCheck(role, user, []string{model.RoleSalesManager, model.RoleAdmin},
		model.RoleSalesManager, "fulfill orders"); !check.Allowed {
		return check
	}
	return stateCheck(orderStatus, []string{model.OrderStatusConfirmed}, "fulfill")
}

// CanConvertOrder: invoicing requires manager or finance authority on a
// confirmed or fulfilled order.
func (g *GovernanceEngine) CanConvertOrder(role string, user *model.User, orderStatus string) GovernanceCheck {
	if check := g.roleCheck(role, user,
		[]string{model.RoleSalesManager, model.RoleFinanceAccounts, model.RoleAdmin},
		model.RoleSalesManager, "convert orders to invoices"); !check.Allowed {
		return check
	}
	return stateCheck(orderStatus, []string{model.OrderStatusConfirmed, model.OrderStatusFulfilled}, "invoice")
}

// CanLockMasterInvoice: role in {finance_accounts, admin} AND invoice status
// is confirmed.
func (g *GovernanceEngine) CanLockMasterInvoice(role string, user *model.User, invoiceStatus string) GovernanceCheck {
	if check := g.roleCheck(role, user, []string{model.RoleFinanceAccounts, model.RoleAdmin},
		model.RoleFinanceAccounts, "lock master invoices"); !check.Allowed {
		return check
	}
	return stateCheck(invoiceStatus, []string{model.InvoiceStatusConfirmed}, "lock")
}

// CanRecordPayment: finance roles record payments on non-cancelled invoices.
func (g *GovernanceEngine) CanRecordPayment(role string, user *model.User, invoiceStatus string) GovernanceCheck {
	if check := g.roleCheck(role, user, []string{model.RoleFinanceAccounts, model.RoleAdmin},
		model.RoleFinanceAccounts, "record payments"); !check.Allowed {
		return check
	}
	if invoiceStatus == model.InvoiceStatusCancelled {
		return GovernanceCheck{Allowed: false, Reason: "cannot record a payment on a cancelled invoice"}
	}
	return GovernanceCheck{Allowed: true}
}

// CanBulkTransition evaluates a batch all-or-nothing: every item's current
// status must be in the eligible set for the action. The counts are reported
// either way so a rejection can be explained precisely.
func (g *GovernanceEngine) CanBulkTransition(role string, user *model.User, check func(role string, user *model.User, status string) GovernanceCheck, statuses []string) BulkGovernanceCheck {
	result := BulkGovernanceCheck{TotalCount: len(statuses)}
	var firstReason string
	for _, status := range statuses {
		c := check(role, user, status)
		if c.Allowed {
			result.AllowedCount++
		} else if firstReason == "" {
			firstReason = c.Reason
		}
	}
	result.Allowed = result.AllowedCount == result.TotalCount && result.TotalCount > 0
	if !result.Allowed {
		result.Reason = fmt.Sprintf("%d of %d items are eligible", result.AllowedCount, result.TotalCount)
		if firstReason != "" {
			result.Reason += ": " + firstReason
		}
	}
	return result
}

// Err converts a denied check into the pipeline's authorization error.
func (c GovernanceCheck) Err() error {
	if c.Allowed {
		return nil
	}
	return &AuthorizationError{Reason: c.Reason, RequiredRole: c.RequiredRole}
}
