package service

import (
	"context"
	"fmt"

	"backend/internal/model"
	"backend/internal/repository"

	"github.com/google/uuid"
)

// --- DTOs ---

type CreateRoleRequest struct {
	Name        string   `json:"name" binding:"required"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"` // Permission UUIDs
}

type UpdateRoleRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

type UpdateRolePermissionsRequest struct {
	PermissionIDs []string `json:"permission_ids" binding:"required"`
}

type RoleResponse struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	IsSystem    bool                 `json:"is_system"`
	Permissions []PermissionResponse `json:"permissions"`
	CreatedAt   string               `json:"created_at"`
}

type PermissionResponse struct {
	ID    string `json:"id"`
	Code  string `json:"code"`
	Name  string `json:"name"`
	Group string `json:"group"`
}

// --- Interface ---

type RoleService interface {
	ListRoles(ctx context.Context) ([]RoleResponse, error)
	GetRole(ctx context.Context, id string) (*RoleResponse, error)
	CreateRole(ctx context.Context, req CreateRoleRequest) (*RoleResponse, error)
	UpdateRole(ctx context.Context, id string, req UpdateRoleRequest) (*RoleResponse, error)
	DeleteRole(ctx context.Context, id string) error
	ListPermissions(ctx context.Context) ([]PermissionResponse, error)
	UpdateRolePermissions(ctx context.Context, roleID string, req UpdateRolePermissionsRequest) (*RoleResponse, error)
	GetPermissionsByRoleName(ctx context.Context, roleName string) ([]string, error)
	// SeedDefaultRolesAndPermissions installs the four built-in lifecycle
	// roles and the permission catalogue they draw from. System roles mirror
	// the in-code governance matrix and cannot be deleted.
	SeedDefaultRolesAndPermissions(ctx context.Context) error
}

type roleService struct {
	repo      repository.RoleRepository
	txManager repository.TransactionManager
}

func NewRoleService(repo repository.RoleRepository, txManager repository.TransactionManager) RoleService {
	return &roleService{repo: repo, txManager: txManager}
}

// --- Implementation ---

func (s *roleService) ListRoles(ctx context.Context) ([]RoleResponse, error) {
	roles, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch roles: %w", err)
	}

	res := make([]RoleResponse, 0, len(roles))
	for _, r := range roles {
		res = append(res, toRoleResponse(r))
	}
	return res, nil
}

func (s *roleService) GetRole(ctx context.Context, id string) (*RoleResponse, error) {
	roleID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid role id: %w", err)
	}

	role, err := s.repo.FindByIDWithPermissions(ctx, roleID)
	if err != nil {
		return nil, fmt.Errorf("role not found: %w", err)
	}

	res := toRoleResponse(*role)
	return &res, nil
}

func (s *roleService) CreateRole(ctx context.Context, req CreateRoleRequest) (*RoleResponse, error) {
	role := model.Role{
		Name:        req.Name,
		Description: req.Description,
		IsSystem:    false,
	}

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.Create(txCtx, &role); err != nil {
			return fmt.Errorf("failed to create role: %w", err)
		}

		if len(req.Permissions) > 0 {
			permIDs := make([]uuid.UUID, 0, len(req.Permissions))
			for _, pid := range req.Permissions {
				parsed, parseErr := uuid.Parse(pid)
				if parseErr != nil {
					return fmt.Errorf("invalid permission id '%s': %w", pid, parseErr)
				}
				permIDs = append(permIDs, parsed)
			}
			if err := s.repo.AssociatePermissions(txCtx, role.ID, permIDs); err != nil {
				return fmt.Errorf("failed to assign permissions: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Reload with permissions
	return s.GetRole(ctx, role.ID.String())
}

func (s *roleService) UpdateRole(ctx context.Context, id string, req UpdateRoleRequest) (*RoleResponse, error) {
	roleID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid role id: %w", err)
	}

	role, err := s.repo.FindByID(ctx, roleID)
	if err != nil {
		return nil, fmt.Errorf("role not found: %w", err)
	}
	if role.IsSystem {
		return nil, fmt.Errorf("cannot rename system role '%s'", role.Name)
	}

	role.Name = req.Name
	role.Description = req.Description
	if err := s.repo.Update(ctx, role); err != nil {
		return nil, fmt.Errorf("failed to update role: %w", err)
	}

	return s.GetRole(ctx, id)
}

func (s *roleService) DeleteRole(ctx context.Context, id string) error {
	roleID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid role id: %w", err)
	}

	role, err := s.repo.FindByID(ctx, roleID)
	if err != nil {
		return fmt.Errorf("role not found: %w", err)
	}
	if role.IsSystem {
		return fmt.Errorf("cannot delete system role '%s'", role.Name)
	}

	if err := s.repo.Delete(ctx, roleID); err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}
	return nil
}

func (s *roleService) ListPermissions(ctx context.Context) ([]PermissionResponse, error) {
	perms, err := s.repo.ListPermissions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch permissions: %w", err)
	}

	res := make([]PermissionResponse, 0, len(perms))
	for _, p := range perms {
		res = append(res, toPermissionResponse(p))
	}
	return res, nil
}

func (s *roleService) UpdateRolePermissions(ctx context.Context, roleID string, req UpdateRolePermissionsRequest) (*RoleResponse, error) {
	id, err := uuid.Parse(roleID)
	if err != nil {
		return nil, fmt.Errorf("invalid role id: %w", err)
	}

	permIDs := make([]uuid.UUID, 0, len(req.PermissionIDs))
	for _, pid := range req.PermissionIDs {
		parsed, parseErr := uuid.Parse(pid)
		if parseErr != nil {
			return nil, fmt.Errorf("invalid permission id '%s': %w", pid, parseErr)
		}
		permIDs = append(permIDs, parsed)
	}

	if err := s.repo.UpdatePermissions(ctx, id, permIDs); err != nil {
		return nil, fmt.Errorf("failed to update permissions: %w", err)
	}

	return s.GetRole(ctx, roleID)
}

func (s *roleService) GetPermissionsByRoleName(ctx context.Context, roleName string) ([]string, error) {
	codes, err := s.repo.GetPermissionsByRoleName(ctx, roleName)
	if err != nil {
		return nil, fmt.Errorf("role '%s' not found: %w", roleName, err)
	}
	return codes, nil
}

func (s *roleService) SeedDefaultRolesAndPermissions(ctx context.Context) error {
	defaultPermissions := []model.Permission{
		{Code: "quotes.read", Name: "View quotes", Group: "quotes"},
		{Code: "quotes.write", Name: "Create and edit quotes", Group: "quotes"},
		{Code: "quotes.send", Name: "Send quotes to customers", Group: "quotes"},
		{Code: "quotes.approve", Name: "Approve or reject quotes", Group: "quotes"},
		{Code: "quotes.convert", Name: "Convert quotes to sales orders", Group: "quotes"},
		{Code: "orders.read", Name: "View sales orders", Group: "orders"},
		{Code: "orders.write", Name: "Confirm, fulfill and cancel orders", Group: "orders"},
		{Code: "orders.convert", Name: "Convert orders to invoices", Group: "orders"},
		{Code: "invoices.read", Name: "View invoices", Group: "invoices"},
		{Code: "invoices.write", Name: "Confirm and cancel invoices", Group: "invoices"},
		{Code: "invoices.lock", Name: "Lock master invoices", Group: "invoices"},
		{Code: "payments.record", Name: "Record payments", Group: "invoices"},
		{Code: "products.read", Name: "View products and stock", Group: "inventory"},
		{Code: "products.write", Name: "Manage products and adjust stock", Group: "inventory"},
		{Code: "customers.read", Name: "View customers", Group: "customers"},
		{Code: "customers.write", Name: "Manage customers", Group: "customers"},
		{Code: "statistics.read", Name: "View statistics", Group: "statistics"},
		{Code: "audit.read", Name: "View audit trail", Group: "audit"},
		{Code: "users.read", Name: "View users", Group: "users"},
		{Code: "users.write", Name: "Manage users and delegations", Group: "users"},
		{Code: "roles.manage", Name: "Manage roles and permissions", Group: "roles"},
	}

	allCodes := make([]string, 0, len(defaultPermissions))
	for _, p := range defaultPermissions {
		allCodes = append(allCodes, p.Code)
	}

	// Role grants mirror the governance matrix.
	defaultRoles := map[string]struct {
		description string
		codes       []string
	}{
		model.RoleAdmin: {
			description: "Full access to every resource and action",
			codes:       allCodes,
		},
		model.RoleSalesManager: {
			description: "Approves quotes and drives conversions",
			codes: []string{
				"quotes.read", "quotes.write", "quotes.send", "quotes.approve", "quotes.convert",
				"orders.read", "orders.write", "orders.convert",
				"invoices.read",
				"products.read", "customers.read", "customers.write", "statistics.read",
			},
		},
		model.RoleSalesExecutive: {
			description: "Drafts and sends quotes, needs delegation to approve",
			codes: []string{
				"quotes.read", "quotes.write", "quotes.send",
				"orders.read", "invoices.read",
				"products.read", "customers.read", "customers.write",
			},
		},
		model.RoleFinanceAccounts: {
			description: "Owns invoices, payments and the master invoice lock",
			codes: []string{
				"invoices.read", "invoices.write", "invoices.lock", "payments.record",
				"orders.read", "quotes.read", "statistics.read", "audit.read",
			},
		},
	}

	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		byCode := make(map[string]uuid.UUID, len(defaultPermissions))
		for i := range defaultPermissions {
			perm := defaultPermissions[i]
			if err := s.repo.FindOrCreatePermission(txCtx, &perm); err != nil {
				return fmt.Errorf("failed to seed permission %s: %w", perm.Code, err)
			}
			byCode[perm.Code] = perm.ID
		}

		for name, def := range defaultRoles {
			role, err := s.repo.FindByName(txCtx, name)
			if err != nil {
				role = &model.Role{Name: name, Description: def.description, IsSystem: true}
				if err := s.repo.Create(txCtx, role); err != nil {
					return fmt.Errorf("failed to seed role %s: %w", name, err)
				}
			}

			permIDs := make([]uuid.UUID, 0, len(def.codes))
			for _, code := range def.codes {
				if id, ok := byCode[code]; ok {
					permIDs = append(permIDs, id)
				}
			}
			if err := s.repo.UpdatePermissions(txCtx, role.ID, permIDs); err != nil {
				return fmt.Errorf("failed to seed permissions for role %s: %w", name, err)
			}
		}
		return nil
	})
}

// --- Helpers ---

func toRoleResponse(r model.Role) RoleResponse {
	perms := make([]PermissionResponse, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		perms = append(perms, toPermissionResponse(p))
	}
	return RoleResponse{
		ID:          r.ID.String(),
		Name:        r.Name,
		Description: r.Description,
		IsSystem:    r.IsSystem,
		Permissions: perms,
		CreatedAt:   r.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

func toPermissionResponse(p model.Permission) PermissionResponse {
	return PermissionResponse{
		ID:    p.ID.String(),
		Code:  p.Code,
		Name:  p.Name,
		Group: p.Group,
	}
}
