package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/ordercast/internal/auth/domain"
	"github.com/smallbiznis/ordercast/internal/auth/password"
	"github.com/smallbiznis/ordercast/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  authdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  authdomain.Repository
	genID *snowflake.Node
}

func New(p Params) authdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("auth.service"),
		repo:  p.Repo,
		genID: p.GenID,
	}
}

func (s *Service) Authenticate(ctx context.Context, username, pass string) (*authdomain.Tenant, error) {
	username = strings.TrimSpace(username)
	if username == "" || pass == "" {
		return nil, authdomain.ErrInvalidCredentials
	}

	tenant, err := s.repo.FindByUsername(ctx, s.db, username)
	if err != nil {
		return nil, err
	}
	if tenant == nil || !password.Verify(pass, tenant.PasswordHash) {
		return nil, authdomain.ErrInvalidCredentials
	}
	return tenant, nil
}

func (s *Service) CreateTenant(ctx context.Context, username, pass string) (*authdomain.Tenant, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, authdomain.ErrInvalidUsername
	}
	if pass == "" {
		return nil, authdomain.ErrInvalidPassword
	}

	hash, err := password.Hash(pass)
	if err != nil {
		return nil, err
	}

	tenant := &authdomain.Tenant{
		ID:           s.genID.Generate(),
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.Insert(ctx, s.db, tenant); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, authdomain.ErrTenantExists
		}
		return nil, err
	}

	s.log.Info("tenant created", zap.String("tenant_id", tenant.ID.String()))
	return tenant, nil
}

func (s *Service) ChangePassword(ctx context.Context, username, newPassword string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return authdomain.ErrInvalidUsername
	}
	if newPassword == "" {
		return authdomain.ErrInvalidPassword
	}

	hash, err := password.Hash(newPassword)
	if err != nil {
		return err
	}
	updated, err := s.repo.UpdatePassword(ctx, s.db, username, hash)
	if err != nil {
		return err
	}
	if !updated {
		return authdomain.ErrTenantNotFound
	}
	return nil
}

func (s *Service) DeleteTenant(ctx context.Context, username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return authdomain.ErrInvalidUsername
	}
	deleted, err := s.repo.Delete(ctx, s.db, username)
	if err != nil {
		return err
	}
	if !deleted {
		return authdomain.ErrTenantNotFound
	}
	return nil
}

func (s *Service) ListTenantIDs(ctx context.Context) ([]snowflake.ID, error) {
	return s.repo.ListIDs(ctx, s.db)
}
