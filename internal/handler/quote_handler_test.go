package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"backend/internal/database"
	"backend/internal/middleware"
	"backend/internal/model"
	"backend/internal/repository"
	"backend/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newQuoteRouter wires the quote routes against an in-memory database with
// the default role catalogue seeded, so RequirePermission runs for real.
func newQuoteRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))

	txManager := repository.NewTransactionManager(db)
	roles := service.NewRoleService(repository.NewRoleRepository(db), txManager)
	require.NoError(t, roles.SeedDefaultRolesAndPermissions(context.Background()))
	middleware.InitPermissionMiddleware(db)
	middleware.ClearPermissionCache(model.RoleSalesManager)
	middleware.ClearPermissionCache(model.RoleSalesExecutive)

	quotes := service.NewQuoteService(
		repository.NewQuoteRepository(db),
		repository.NewAuditRepository(db),
		repository.NewUserRepository(db),
		repository.NewSequenceRepository(db),
		txManager,
		service.NewFinancialCalculator(),
		service.NewDocumentStateMachine(),
		service.NewGovernanceEngine(),
	)

	router := gin.New()
	NewQuoteHandler(quotes, nil).RegisterRoutes(router.Group(""))
	return router
}

func bearerToken(t *testing.T, role string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  uuid.NewString(),
		"role": role,
	}).SignedString(middleware.GetJWTSecret())
	require.NoError(t, err)
	return "Bearer " + token
}

func TestApproveRouteRequiresApprovePermission(t *testing.T) {
	router := newQuoteRouter(t)
	target := "/api/quotes/" + uuid.NewString() + "/approve"

	// Executives hold quotes.write but not quotes.approve, so the gate
	// rejects them before the handler runs.
	req := httptest.NewRequest(http.MethodPut, target, nil)
	req.Header.Set("Authorization", bearerToken(t, model.RoleSalesExecutive))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "quotes.approve")

	// Managers pass the gate; the unknown id then 404s in the handler.
	req = httptest.NewRequest(http.MethodPut, target, nil)
	req.Header.Set("Authorization", bearerToken(t, model.RoleSalesManager))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRejectRouteRequiresApprovePermission(t *testing.T) {
	router := newQuoteRouter(t)
	target := "/api/quotes/" + uuid.NewString() + "/reject"

	req := httptest.NewRequest(http.MethodPut, target, nil)
	req.Header.Set("Authorization", bearerToken(t, model.RoleSalesExecutive))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
