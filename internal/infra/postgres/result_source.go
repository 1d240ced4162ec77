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

// resultTables maps each modality to its table and the column holding the points.
var resultTables = map[domain.Modality]struct{ table, column string }{
	domain.ModalityQuiz:      {"quiz_results", "score"},
	domain.ModalityFill:      {"fill_game_results", "score"},
	domain.ModalityCoding:    {"coding_results", "score"},
	domain.ModalityParagraph: {"paragraph_results", "marks"},
}

type resultRow struct {
	StudentName string    `bun:"student_name"`
	GameID      int64     `bun:"game_id"`
	Score       int       `bun:"score"`
	CreatedAt   time.Time `bun:"created_at"`
}

type scoreRow struct {
	StudentName string `bun:"student_name"`
	Games       int    `bun:"games"`
	Total       int    `bun:"total"`
}

// ResultSource reads and writes one modality's result table.
type ResultSource struct {
	db       bun.IDB
	modality domain.Modality
	table    string
	column   string
}

func NewResultSource(db bun.IDB, modality domain.Modality) (*ResultSource, error) {
	t, ok := resultTables[modality]
	if !ok {
		return nil, domain.ErrUnknownModality
	}
	return &ResultSource{db: db, modality: modality, table: t.table, column: t.column}, nil
}

// NewResultSources builds a source for every modality, in domain.Modalities order.
// It panics if a modality has no result table.
func NewResultSources(db bun.IDB) []*ResultSource {
	return mustResultSources(db, domain.Modalities)
}

func mustResultSources(db bun.IDB, modalities []domain.Modality) []*ResultSource {
	out := make([]*ResultSource, 0, len(modalities))
	for _, m := range modalities {
		src, err := NewResultSource(db, m)
		if err != nil {
			panic(fmt.Sprintf("postgres: %v", err))
		}
		out = append(out, src)
	}
	return out
}

func (s *ResultSource) Modality() domain.Modality { return s.modality }

// Insert relies on UNIQUE (student_name, game_id); a conflicting row is left untouched.
func (s *ResultSource) Insert(ctx context.Context, r domain.Result) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO ? (student_name, game_id, ?, created_at) VALUES (?, ?, ?, ?) ON CONFLICT (student_name, game_id) DO NOTHING`,
		bun.Ident(s.table), bun.Ident(s.column), r.StudentName, r.GameID, r.Score, r.CreatedAt,
	)
	if err != nil {
		return s.wrap("insert", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return s.wrap("insert", err)
	}
	if n == 0 {
		return domain.ErrDuplicateEntry
	}
	return nil
}

func (s *ResultSource) Find(ctx context.Context, studentName string, gameID int64) (domain.Result, error) {
	var row resultRow
	err := s.db.NewSelect().
		TableExpr("?", bun.Ident(s.table)).
		ColumnExpr("student_name, game_id").
		ColumnExpr("? AS score", bun.Ident(s.column)).
		ColumnExpr("created_at").
		Where("student_name = ?", studentName).
		Where("game_id = ?", gameID).
		Limit(1).
		Scan(ctx, &row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Result{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Result{}, s.wrap("find", err)
	}
	return domain.Result{StudentName: row.StudentName, GameID: row.GameID, Score: row.Score, CreatedAt: row.CreatedAt}, nil
}

func (s *ResultSource) CompletedGames(ctx context.Context, studentName string) ([]int64, error) {
	var ids []int64
	err := s.db.NewSelect().
		TableExpr("?", bun.Ident(s.table)).
		Column("game_id").
		Where("student_name = ?", studentName).
		OrderExpr("game_id ASC").
		Scan(ctx, &ids)
	if err != nil {
		return nil, s.wrap("completed games", err)
	}
	return ids, nil
}

func (s *ResultSource) StudentScore(ctx context.Context, studentName string) (domain.StudentScore, error) {
	var row scoreRow
	err := s.db.NewSelect().
		TableExpr("?", bun.Ident(s.table)).
		ColumnExpr("COUNT(*) AS games").
		ColumnExpr("COALESCE(SUM(?), 0) AS total", bun.Ident(s.column)).
		Where("student_name = ?", studentName).
		Scan(ctx, &row)
	if err != nil {
		return domain.StudentScore{}, s.wrap("student score", err)
	}
	return domain.StudentScore{StudentName: studentName, Games: row.Games, Total: row.Total}, nil
}

func (s *ResultSource) AllScores(ctx context.Context) ([]domain.StudentScore, error) {
	var rows []scoreRow
	err := s.db.NewSelect().
		TableExpr("?", bun.Ident(s.table)).
		Column("student_name").
		ColumnExpr("COUNT(*) AS games").
		ColumnExpr("COALESCE(SUM(?), 0) AS total", bun.Ident(s.column)).
		Group("student_name").
		Scan(ctx, &rows)
	if err != nil {
		return nil, s.wrap("all scores", err)
	}
	out := make([]domain.StudentScore, len(rows))
	for i, r := range rows {
		out[i] = domain.StudentScore{StudentName: r.StudentName, Games: r.Games, Total: r.Total}
	}
	return out, nil
}

func (s *ResultSource) wrap(op string, err error) error {
	return storeErr(s.table+" "+op, err)
}
