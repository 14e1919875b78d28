package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/ordercast/internal/auth/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() authdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, tenant *authdomain.Tenant) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO tenants (id, username, password_hash, created_at)
		 VALUES (?, ?, ?, ?)`,
		tenant.ID,
		tenant.Username,
		tenant.PasswordHash,
		tenant.CreatedAt,
	).Error
}

func (r *repo) UpdatePassword(ctx context.Context, db *gorm.DB, username, passwordHash string) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE tenants SET password_hash = ? WHERE username = ?`,
		passwordHash,
		username,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, username string) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`DELETE FROM tenants WHERE username = ?`,
		username,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByUsername(ctx context.Context, db *gorm.DB, username string) (*authdomain.Tenant, error) {
	var tenant authdomain.Tenant
	err := db.WithContext(ctx).Raw(
		`SELECT id, username, password_hash, created_at
		 FROM tenants WHERE username = ?`,
		username,
	).Scan(&tenant).Error
	if err != nil {
		return nil, err
	}
	if tenant.ID == 0 {
		return nil, nil
	}
	return &tenant, nil
}

func (r *repo) ListIDs(ctx context.Context, db *gorm.DB) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT id FROM tenants ORDER BY id ASC`,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
