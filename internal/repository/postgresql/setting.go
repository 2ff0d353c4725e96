package postgresql

import (
	"context"
	"fmt"

	"github.com/busfleet/payroll-backend-go/internal/domain/payroll"
	"github.com/busfleet/payroll-backend-go/internal/pkg/database"
	"github.com/jackc/pgx/v5"
)

type settingRepository struct {
	db *database.DB
}

func NewSettingRepository(db *database.DB) payroll.SettingRepository {
	return &settingRepository{db: db}
}

func (r *settingRepository) GetSetting(ctx context.Context, key string) (string, error) {
	q := GetQuerier(ctx, r.db)

	var value string
	err := q.QueryRow(ctx, `SELECT value FROM system_settings WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", payroll.ErrSettingNotFound
		}
		return "", fmt.Errorf("failed to get setting %s: %w", key, err)
	}

	return value, nil
}
