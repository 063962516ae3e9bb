package role

import (
	"context"
	"errors"
	"slices"

	common_models "go-reports/internal/common/models"
	"go-reports/internal/features/audit"
)

type RoleService interface {
	CreateRole(ctx context.Context, role *Role) (*Role, error)
	GetRoleByID(ctx context.Context, id string) (*Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	UpdateRole(ctx context.Context, id string, role *Role) error
	DeleteRole(ctx context.Context, id string) error

	GetPermissionsForRoles(ctx context.Context, roleNames []string) ([]string, error)
	CanChangeOrView(ctx context.Context, roleNames []string, namespace, entityName string) (bool, error)
}

type RoleServiceImpl struct {
	Repo         RoleRepository
	AuditService audit.AuditService
}

func NewRoleService(repo RoleRepository, auditService audit.AuditService) RoleService {
	return &RoleServiceImpl{
		Repo:         repo,
		AuditService: auditService,
	}
}

func (s *RoleServiceImpl) CreateRole(ctx context.Context, role *Role) (*Role, error) {
	if role.Name == "" {
		return nil, errors.New("role name is required")
	}
	if err := s.Repo.Create(ctx, role); err != nil {
		return nil, err
	}

	_ = s.AuditService.LogChange(ctx, common_models.AuditActionCreate, "roles", role.ID.Hex(), map[string]common_models.Change{
		"role": {New: role},
	})

	return role, nil
}

func (s *RoleServiceImpl) GetRoleByID(ctx context.Context, id string) (*Role, error) {
	return s.Repo.FindByID(ctx, id)
}

func (s *RoleServiceImpl) ListRoles(ctx context.Context) ([]Role, error) {
	return s.Repo.List(ctx)
}

func (s *RoleServiceImpl) UpdateRole(ctx context.Context, id string, role *Role) error {
	old, _ := s.Repo.FindByID(ctx, id)
	err := s.Repo.Update(ctx, id, role)
	if err == nil {
		_ = s.AuditService.LogChange(ctx, common_models.AuditActionUpdate, "roles", id, map[string]common_models.Change{
			"role": {Old: old, New: role},
		})
	}
	return err
}

func (s *RoleServiceImpl) DeleteRole(ctx context.Context, id string) error {
	old, err := s.Repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if old.IsSystem {
		return errors.New("system roles cannot be deleted")
	}

	err = s.Repo.Delete(ctx, id)
	if err == nil {
		_ = s.AuditService.LogChange(ctx, common_models.AuditActionDelete, "roles", id, map[string]common_models.Change{
			"role": {Old: old, New: "DELETED"},
		})
	}
	return err
}

func (s *RoleServiceImpl) GetPermissionsForRoles(ctx context.Context, roleNames []string) ([]string, error) {
	roles, err := s.Repo.FindByNames(ctx, roleNames)
	if err != nil {
		return nil, err
	}

	var permissions []string
	for _, role := range roles {
		for _, code := range role.Permissions {
			if !slices.Contains(permissions, code) {
				permissions = append(permissions, code)
			}
		}
	}
	return permissions, nil
}

// CanChangeOrView is the report engine's permission gate: access to an entity
// requires either the change or the view code in its namespace.
func (s *RoleServiceImpl) CanChangeOrView(ctx context.Context, roleNames []string, namespace, entityName string) (bool, error) {
	permissions, err := s.GetPermissionsForRoles(ctx, roleNames)
	if err != nil {
		return false, err
	}

	return slices.Contains(permissions, PermCode(namespace, "change", entityName)) ||
		slices.Contains(permissions, PermCode(namespace, "view", entityName)), nil
}
