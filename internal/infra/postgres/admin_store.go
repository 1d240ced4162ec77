package postgres

import (
	"context"
	"database/sql"
	"errors"

	"edugame-service/internal/domain"
	"github.com/uptrace/bun"
)

type adminRow struct {
	bun.BaseModel `bun:"table:admins"`

	Name         string `bun:"name,pk"`
	Email        string `bun:"email"`
	PasswordHash string `bun:"password_hash"`
}

// AdminStore keeps administrator accounts in Postgres.
type AdminStore struct {
	db *bun.DB
}

func NewAdminStore(db *bun.DB) *AdminStore {
	return &AdminStore{db: db}
}

func (s *AdminStore) Create(ctx context.Context, admin domain.Admin) error {
	row := adminRow{Name: admin.Name, Email: admin.Email, PasswordHash: admin.PasswordHash}
	res, err := s.db.NewInsert().Model(&row).On("CONFLICT DO NOTHING").Exec(ctx)
	if err != nil {
		return storeErr("create admin", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return storeErr("create admin", err)
	} else if n == 0 {
		return domain.ErrAccountExists
	}
	return nil
}

func (s *AdminStore) FindByEmail(ctx context.Context, email string) (domain.Admin, error) {
	var row adminRow
	err := s.db.NewSelect().Model(&row).Where("email = ?", email).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Admin{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Admin{}, storeErr("find admin", err)
	}
	return domain.Admin{Name: row.Name, Email: row.Email, PasswordHash: row.PasswordHash}, nil
}
