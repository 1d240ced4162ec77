package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"edugame-service/internal/domain"
	"github.com/uptrace/bun"
)

type studentRow struct {
	bun.BaseModel `bun:"table:students"`

	Name         string     `bun:"name,pk"`
	Email        string     `bun:"email"`
	PasswordHash string     `bun:"password_hash"`
	College      string     `bun:"college"`
	Place        string     `bun:"place"`
	District     string     `bun:"district"`
	State        string     `bun:"state"`
	Streak       int        `bun:"streak"`
	LastLogin    *time.Time `bun:"last_login"`
}

func (r studentRow) toDomain() domain.Student {
	return domain.Student{
		Name:         r.Name,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		College:      r.College,
		Place:        r.Place,
		District:     r.District,
		State:        r.State,
		Streak:       r.Streak,
		LastLogin:    r.LastLogin,
	}
}

// StudentStore keeps student accounts and login streaks in Postgres.
type StudentStore struct {
	db *bun.DB
}

func NewStudentStore(db *bun.DB) *StudentStore {
	return &StudentStore{db: db}
}

// Create fails with domain.ErrAccountExists when the name or email is taken.
func (s *StudentStore) Create(ctx context.Context, student domain.Student) error {
	row := studentRow{
		Name:         student.Name,
		Email:        student.Email,
		PasswordHash: student.PasswordHash,
		College:      student.College,
		Place:        student.Place,
		District:     student.District,
		State:        student.State,
	}
	res, err := s.db.NewInsert().
		Model(&row).
		Column("name", "email", "password_hash", "college", "place", "district", "state").
		On("CONFLICT DO NOTHING").
		Exec(ctx)
	if err != nil {
		return storeErr("create student", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return storeErr("create student", err)
	} else if n == 0 {
		return domain.ErrAccountExists
	}
	return nil
}

func (s *StudentStore) FindByEmail(ctx context.Context, email string) (domain.Student, error) {
	return s.findOne(ctx, "email = ?", email)
}

func (s *StudentStore) Get(ctx context.Context, name string) (domain.Student, error) {
	return s.findOne(ctx, "name = ?", name)
}

func (s *StudentStore) LoginState(ctx context.Context, name string) (domain.LoginState, error) {
	var row studentRow
	err := s.db.NewSelect().
		Model(&row).
		Column("last_login", "streak").
		Where("name = ?", name).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.LoginState{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.LoginState{}, storeErr("login state", err)
	}
	return domain.LoginState{LastLogin: row.LastLogin, Streak: row.Streak}, nil
}

// RecordLogin locks the student row for the duration of the read and the update,
// so concurrent logins of one student serialize.
func (s *StudentStore) RecordLogin(ctx context.Context, name string, now time.Time, next func(domain.LoginState) int) (int, error) {
	var streak int
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := studentRow{Name: name}
		err := tx.NewSelect().
			Model(&row).
			Column("last_login", "streak").
			Where("name = ?", name).
			For("UPDATE").
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}

		streak = next(domain.LoginState{LastLogin: row.LastLogin, Streak: row.Streak})
		ts := now.UTC()
		row.Streak = streak
		row.LastLogin = &ts
		_, err = tx.NewUpdate().
			Model(&row).
			Column("streak", "last_login").
			WherePK().
			Exec(ctx)
		return err
	})
	if errors.Is(err, domain.ErrNotFound) {
		return 0, err
	}
	if err != nil {
		return 0, storeErr("record login", err)
	}
	return streak, nil
}

func (s *StudentStore) UpdateProfile(ctx context.Context, name string, update domain.ProfileUpdate) error {
	row := studentRow{
		Name:     name,
		College:  update.College,
		Place:    update.Place,
		District: update.District,
		State:    update.State,
	}
	res, err := s.db.NewUpdate().
		Model(&row).
		Column("college", "place", "district", "state").
		WherePK().
		Exec(ctx)
	if err != nil {
		return storeErr("update profile", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return storeErr("update profile", err)
	} else if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *StudentStore) findOne(ctx context.Context, where string, arg interface{}) (domain.Student, error) {
	var row studentRow
	err := s.db.NewSelect().Model(&row).Where(where, arg).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Student{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Student{}, storeErr("find student", err)
	}
	return row.toDomain(), nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrStoreUnavailable, op, err)
}
