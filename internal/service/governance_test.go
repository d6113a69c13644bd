package service

import (
	"testing"
	"time"

	"backend/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedEngine(now time.Time) *GovernanceEngine {
	engine := NewGovernanceEngine()
	engine.now = func() time.Time { return now }
	return engine
}

func delegatedUser(delegateTo uuid.UUID, start, end time.Time) *model.User {
	return &model.User{
		ID:                  uuid.New(),
		Role:                model.RoleSalesExecutive,
		DelegatedApprovalTo: &delegateTo,
		DelegationStart:     &start,
		DelegationEnd:       &end,
	}
}

func TestHasPermissionMatrix(t *testing.T) {
	engine := NewGovernanceEngine()

	assert.True(t, engine.HasPermission(model.RoleAdmin, "invoices", "lock", nil))
	assert.True(t, engine.HasPermission(model.RoleFinanceAccounts, "invoices", "payment", nil))
	assert.False(t, engine.HasPermission(model.RoleSalesExecutive, "invoices", "payment", nil))
	assert.False(t, engine.HasPermission(model.RoleSalesManager, "users", "write", nil))
	assert.False(t, engine.HasPermission("unknown_role", "quotes", "read", nil))
}

func TestHasPermissionConditions(t *testing.T) {
	engine := NewGovernanceEngine()

	// Executives may edit quotes only while draft or sent.
	assert.True(t, engine.HasPermission(model.RoleSalesExecutive, "quotes", "write",
		map[string]string{"status": model.QuoteStatusDraft}))
	assert.False(t, engine.HasPermission(model.RoleSalesExecutive, "quotes", "write",
		map[string]string{"status": model.QuoteStatusApproved}))

	// Fail closed: a conditioned permission without the context field denies.
	assert.False(t, engine.HasPermission(model.RoleSalesExecutive, "quotes", "write", nil))
	assert.False(t, engine.HasPermission(model.RoleSalesExecutive, "quotes", "write",
		map[string]string{"owner": "someone"}))
}

func TestApproveQuoteRequiresManager(t *testing.T) {
	engine := NewGovernanceEngine()

	check := engine.CanApproveQuote(model.RoleSalesManager, nil, model.QuoteStatusSent)
	assert.True(t, check.Allowed)

	check = engine.CanApproveQuote(model.RoleSalesExecutive, nil, model.QuoteStatusSent)
	assert.False(t, check.Allowed)
	assert.Equal(t, model.RoleSalesManager, check.RequiredRole)
	assert.NotEmpty(t, check.Reason)

	// Right role, wrong state.
	check = engine.CanApproveQuote(model.RoleSalesManager, nil, model.QuoteStatusDraft)
	assert.False(t, check.Allowed)
	assert.NotEmpty(t, check.Reason)
}

func TestDelegationWindowBoundsAreInclusive(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 10, 23, 59, 59, 0, time.UTC)
	user := delegatedUser(uuid.New(), start, end)

	cases := []struct {
		name    string
		now     time.Time
		allowed bool
	}{
		{"before window", start.Add(-time.Second), false},
		{"window start", start, true},
		{"mid window", start.AddDate(0, 0, 5), true},
		{"window end", end, true},
		{"after window", end.Add(time.Second), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine := fixedEngine(tc.now)
			check := engine.CanApproveQuote(model.RoleSalesExecutive, user, model.QuoteStatusSent)
			assert.Equal(t, tc.allowed, check.Allowed)
		})
	}
}

func TestDelegationRequiresAllFields(t *testing.T) {
	now := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	engine := fixedEngine(now)

	start := now.Add(-time.Hour)
	end := now.Add(time.Hour)
	user := &model.User{ID: uuid.New(), Role: model.RoleSalesExecutive, DelegationStart: &start, DelegationEnd: &end}

	// No DelegatedApprovalTo set, so the window is not a delegation.
	check := engine.CanApproveQuote(model.RoleSalesExecutive, user, model.QuoteStatusSent)
	assert.False(t, check.Allowed)
}

func TestLockMasterInvoiceGovernance(t *testing.T) {
	engine := NewGovernanceEngine()

	assert.True(t, engine.CanLockMasterInvoice(model.RoleFinanceAccounts, nil, model.InvoiceStatusConfirmed).Allowed)
	assert.True(t, engine.CanLockMasterInvoice(model.RoleAdmin, nil, model.InvoiceStatusConfirmed).Allowed)
	assert.False(t, engine.CanLockMasterInvoice(model.RoleSalesManager, nil, model.InvoiceStatusConfirmed).Allowed)
	assert.False(t, engine.CanLockMasterInvoice(model.RoleFinanceAccounts, nil, model.InvoiceStatusDraft).Allowed)
}

func TestRecordPaymentGovernance(t *testing.T) {
	engine := NewGovernanceEngine()

	assert.True(t, engine.CanRecordPayment(model.RoleFinanceAccounts, nil, model.InvoiceStatusConfirmed).Allowed)
	assert.True(t, engine.CanRecordPayment(model.RoleFinanceAccounts, nil, model.InvoiceStatusPartial).Allowed)

	check := engine.CanRecordPayment(model.RoleFinanceAccounts, nil, model.InvoiceStatusCancelled)
	assert.False(t, check.Allowed)

	assert.False(t, engine.CanRecordPayment(model.RoleSalesExecutive, nil, model.InvoiceStatusConfirmed).Allowed)
}

func TestBulkTransitionAllOrNothing(t *testing.T) {
	engine := NewGovernanceEngine()

	all := engine.CanBulkTransition(model.RoleSalesManager, nil, engine.CanApproveQuote,
		[]string{model.QuoteStatusSent, model.QuoteStatusSent, model.QuoteStatusSent})
	assert.True(t, all.Allowed)
	assert.Equal(t, 3, all.AllowedCount)

	mixed := engine.CanBulkTransition(model.RoleSalesManager, nil, engine.CanApproveQuote,
		[]string{model.QuoteStatusSent, model.QuoteStatusDraft, model.QuoteStatusSent})
	require.False(t, mixed.Allowed)
	assert.Equal(t, 2, mixed.AllowedCount)
	assert.Equal(t, 3, mixed.TotalCount)
	assert.Contains(t, mixed.Reason, "2 of 3 items are eligible")

	empty := engine.CanBulkTransition(model.RoleSalesManager, nil, engine.CanApproveQuote, nil)
	assert.False(t, empty.Allowed)
}

func TestGovernanceCheckErr(t *testing.T) {
	allowed := GovernanceCheck{Allowed: true}
	assert.NoError(t, allowed.Err())

	denied := GovernanceCheck{Allowed: false, Reason: "no", RequiredRole: model.RoleAdmin}
	err := denied.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthorizationDenied)

	var authErr *AuthorizationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, model.RoleAdmin, authErr.RequiredRole)
}
