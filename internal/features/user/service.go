package user

import (
	"context"
	"errors"
	"time"

	common_models "go-reports/internal/common/models"
	"go-reports/internal/features/audit"
	"go-reports/pkg/utils"

	"golang.org/x/crypto/bcrypt"
)

type UserService interface {
	CreateUser(ctx context.Context, user *User) error
	GetUserByID(ctx context.Context, id string) (*User, error)
	ListUsers(ctx context.Context, page, limit int64) ([]User, error)
	Authenticate(ctx context.Context, username, password string) (string, *User, error)
	// ClaimsFor rebuilds a user's claims outside a request, e.g. for
	// background jobs acting on the user's behalf.
	ClaimsFor(ctx context.Context, id string) (*utils.UserClaims, error)
}

type UserServiceImpl struct {
	UserRepo     UserRepository
	AuditService audit.AuditService
}

func NewUserService(userRepo UserRepository, auditService audit.AuditService) UserService {
	return &UserServiceImpl{
		UserRepo:     userRepo,
		AuditService: auditService,
	}
}

func (s *UserServiceImpl) CreateUser(ctx context.Context, user *User) error {
	if user.Username == "" || user.Password == "" {
		return errors.New("username and password are required")
	}
	if user.Status == "" {
		user.Status = "active"
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	user.Password = string(hashed)

	if err := s.UserRepo.Create(ctx, user); err != nil {
		return err
	}

	_ = s.AuditService.LogChange(ctx, common_models.AuditActionCreate, "users", user.ID.Hex(), map[string]common_models.Change{
		"username": {New: user.Username},
	})
	return nil
}

func (s *UserServiceImpl) GetUserByID(ctx context.Context, id string) (*User, error) {
	return s.UserRepo.FindByID(ctx, id)
}

func (s *UserServiceImpl) ListUsers(ctx context.Context, page, limit int64) ([]User, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	return s.UserRepo.List(ctx, limit, (page-1)*limit)
}

func (s *UserServiceImpl) ClaimsFor(ctx context.Context, id string) (*utils.UserClaims, error) {
	user, err := s.UserRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &utils.UserClaims{
		UserID: user.ID.Hex(),
		Roles:  user.Roles,
		Staff:  user.IsStaff,
	}, nil
}

func (s *UserServiceImpl) Authenticate(ctx context.Context, username, password string) (string, *User, error) {
	user, err := s.UserRepo.FindByUsername(ctx, username)
	if err != nil {
		return "", nil, errors.New("invalid credentials")
	}
	if user.Status != "active" {
		return "", nil, errors.New("account is not active")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return "", nil, errors.New("invalid credentials")
	}

	token, err := utils.GenerateToken(user.ID, user.Roles, user.IsStaff)
	if err != nil {
		return "", nil, err
	}

	now := time.Now()
	_ = s.UserRepo.Update(ctx, user.ID.Hex(), map[string]interface{}{"last_login": now})
	user.LastLogin = &now

	_ = s.AuditService.LogChange(ctx, common_models.AuditActionLogin, "users", user.ID.Hex(), nil)

	return token, user, nil
}
