package service

import (
	"context"
	"testing"
	"time"

	"backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUserService(env *testEnv) UserService {
	return NewUserService(env.userRepo, env.auditRepo)
}

func TestCreateUserValidation(t *testing.T) {
	env := newTestEnv(t, trackingConfig())
	users := newUserService(env)
	ctx := context.Background()

	created, err := users.CreateUser(ctx, CreateUserRequest{
		Username: "alice",
		Email:    "alice@example.com",
		Phone:    "555-0100",
		Password: "s3cret-pw",
		Role:     model.RoleSalesExecutive,
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", created.Username)
	assert.Equal(t, model.RoleSalesExecutive, created.Role)
	assert.Nil(t, created.DelegationStart)

	_, err = users.CreateUser(ctx, CreateUserRequest{
		Username: "bob", Email: "bob@example.com", Phone: "555-0101",
		Password: "s3cret-pw", Role: "warehouse",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid role")

	_, err = users.CreateUser(ctx, CreateUserRequest{
		Username: "carol", Email: "not-an-email", Phone: "555-0102",
		Password: "s3cret-pw", Role: model.RoleSalesManager,
	})
	require.Error(t, err)

	_, err = users.CreateUser(ctx, CreateUserRequest{
		Username: "alice", Email: "alice2@example.com", Phone: "555-0103",
		Password: "s3cret-pw", Role: model.RoleSalesManager,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "username already exists")
}

func TestLoginAndRefreshRotation(t *testing.T) {
	env := newTestEnv(t, trackingConfig())
	users := newUserService(env)
	ctx := context.Background()

	_, err := users.CreateUser(ctx, CreateUserRequest{
		Username: "dave", Email: "dave@example.com", Phone: "555-0104",
		Password: "s3cret-pw", Role: model.RoleFinanceAccounts,
	})
	require.NoError(t, err)

	tokens, err := users.Login(ctx, LoginUserRequest{Email: "dave@example.com", Password: "s3cret-pw"})
	require.NoError(t, err)
	assert.NotEmpty(t, tokens.Token)
	assert.NotEmpty(t, tokens.RefreshToken)

	_, err = users.Login(ctx, LoginUserRequest{Email: "dave@example.com", Password: "wrong"})
	require.Error(t, err)

	rotated, err := users.RefreshToken(ctx, RefreshTokenRequest{RefreshToken: tokens.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, tokens.RefreshToken, rotated.RefreshToken)

	// The old refresh token was consumed by the rotation.
	_, err = users.RefreshToken(ctx, RefreshTokenRequest{RefreshToken: tokens.RefreshToken})
	require.Error(t, err)

	require.NoError(t, users.Logout(ctx, rotated.RefreshToken))
	_, err = users.RefreshToken(ctx, RefreshTokenRequest{RefreshToken: rotated.RefreshToken})
	require.Error(t, err)
}

func TestAssignDelegationGrantsApproval(t *testing.T) {
	env := newTestEnv(t, trackingConfig())
	users := newUserService(env)
	ctx := context.Background()
	manager := env.createUser(t, model.RoleSalesManager)
	executive := env.createUser(t, model.RoleSalesExecutive)

	start := time.Now().Add(-time.Hour)
	end := time.Now().Add(time.Hour)
	resp, err := users.AssignDelegation(ctx, manager.ID.String(), manager.Role, executive.ID.String(),
		DelegationRequest{
			DelegateTo: manager.ID.String(),
			Start:      start.Format(time.RFC3339),
			End:        end.Format(time.RFC3339),
		})
	require.NoError(t, err)
	require.NotNil(t, resp.DelegationStart)
	require.NotNil(t, resp.DelegationEnd)
	assert.EqualValues(t, 1, env.auditCount(t, model.ActionAssignDelegation))

	// Within the window the executive carries manager approval authority.
	quote, err := env.quotes.CreateQuote(ctx, executive.ID.String(), executive.Role, sampleQuoteRequest())
	require.NoError(t, err)
	_, err = env.quotes.SendQuote(ctx, executive.ID.String(), executive.Role, quote.ID)
	require.NoError(t, err)
	approved, err := env.quotes.ApproveQuote(ctx, executive.ID.String(), executive.Role, quote.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QuoteStatusApproved, approved.Status)
}

func TestRevokeDelegationRemovesApproval(t *testing.T) {
	env := newTestEnv(t, trackingConfig())
	users := newUserService(env)
	ctx := context.Background()
	manager := env.createUser(t, model.RoleSalesManager)
	executive := env.createUser(t, model.RoleSalesExecutive)

	_, err := users.AssignDelegation(ctx, manager.ID.String(), manager.Role, executive.ID.String(),
		DelegationRequest{
			DelegateTo: manager.ID.String(),
			Start:      time.Now().Add(-time.Hour).Format(time.RFC3339),
			End:        time.Now().Add(time.Hour).Format(time.RFC3339),
		})
	require.NoError(t, err)

	resp, err := users.RevokeDelegation(ctx, manager.ID.String(), manager.Role, executive.ID.String())
	require.NoError(t, err)
	assert.Nil(t, resp.DelegationStart)
	assert.Nil(t, resp.DelegationEnd)

	quote, err := env.quotes.CreateQuote(ctx, executive.ID.String(), executive.Role, sampleQuoteRequest())
	require.NoError(t, err)
	_, err = env.quotes.SendQuote(ctx, executive.ID.String(), executive.Role, quote.ID)
	require.NoError(t, err)
	_, err = env.quotes.ApproveQuote(ctx, executive.ID.String(), executive.Role, quote.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthorizationDenied)
}

func TestAssignDelegationGovernance(t *testing.T) {
	env := newTestEnv(t, trackingConfig())
	users := newUserService(env)
	ctx := context.Background()
	manager := env.createUser(t, model.RoleSalesManager)
	executive := env.createUser(t, model.RoleSalesExecutive)

	// Executives cannot delegate.
	_, err := users.AssignDelegation(ctx, executive.ID.String(), executive.Role, executive.ID.String(),
		DelegationRequest{
			DelegateTo: manager.ID.String(),
			Start:      time.Now().Format(time.RFC3339),
			End:        time.Now().Add(time.Hour).Format(time.RFC3339),
		})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthorizationDenied)

	// The window must end after it starts.
	_, err = users.AssignDelegation(ctx, manager.ID.String(), manager.Role, executive.ID.String(),
		DelegationRequest{
			DelegateTo: manager.ID.String(),
			Start:      time.Now().Add(time.Hour).Format(time.RFC3339),
			End:        time.Now().Format(time.RFC3339),
		})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must end after it starts")
}
