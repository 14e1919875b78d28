package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Tenant is an authenticated account whose orders and forecasts are isolated
// from every other tenant.
type Tenant struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	Username     string       `json:"username" gorm:"type:varchar(255);not null;uniqueIndex"`
	PasswordHash string       `json:"-" gorm:"column:password_hash;type:varchar(255);not null"`
	CreatedAt    time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Tenant) TableName() string { return "tenants" }

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, tenant *Tenant) error
	UpdatePassword(ctx context.Context, db *gorm.DB, username, passwordHash string) (bool, error)
	Delete(ctx context.Context, db *gorm.DB, username string) (bool, error)
	FindByUsername(ctx context.Context, db *gorm.DB, username string) (*Tenant, error)
	ListIDs(ctx context.Context, db *gorm.DB) ([]snowflake.ID, error)
}

type Service interface {
	// Authenticate resolves credentials to the owning tenant.
	Authenticate(ctx context.Context, username, password string) (*Tenant, error)
	CreateTenant(ctx context.Context, username, password string) (*Tenant, error)
	ChangePassword(ctx context.Context, username, newPassword string) error
	DeleteTenant(ctx context.Context, username string) error
	ListTenantIDs(ctx context.Context) ([]snowflake.ID, error)
}

var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrInvalidUsername    = errors.New("invalid_username")
	ErrInvalidPassword    = errors.New("invalid_password")
	ErrTenantExists       = errors.New("tenant_exists")
	ErrTenantNotFound     = errors.New("tenant_not_found")
)
