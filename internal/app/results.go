package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"edugame-service/internal/domain"
)

// ResultSource is one modality's partition of the result store.
type ResultSource interface {
	Modality() domain.Modality
	// Insert stores a result; a second insert for the same (student, game) fails with domain.ErrDuplicateEntry.
	Insert(ctx context.Context, result domain.Result) error
	Find(ctx context.Context, studentName string, gameID int64) (domain.Result, error)
	CompletedGames(ctx context.Context, studentName string) ([]int64, error)
	// StudentScore sums one student's results; a student with no rows yields a zero value.
	StudentScore(ctx context.Context, studentName string) (domain.StudentScore, error)
	// AllScores returns one grouped row per student that has at least one result.
	AllScores(ctx context.Context) ([]domain.StudentScore, error)
}

// ResultService records completed games and answers completion queries.
type ResultService struct {
	sources map[domain.Modality]ResultSource
	now     func() time.Time
}

func NewResultService(sources ...ResultSource) *ResultService {
	byModality := make(map[domain.Modality]ResultSource, len(sources))
	for _, src := range sources {
		byModality[src.Modality()] = src
	}
	return &ResultService{sources: byModality, now: time.Now}
}

// Submit stores a student's result for one game.
func (s *ResultService) Submit(ctx context.Context, caller *domain.Identity, modality domain.Modality, gameID int64, score int) (domain.Result, error) {
	if !caller.IsStudent() {
		return domain.Result{}, domain.ErrUnauthorized
	}
	if gameID <= 0 || score < 0 {
		return domain.Result{}, fmt.Errorf("%w: game_id must be positive and score non-negative", domain.ErrInvalidInput)
	}
	src, err := s.source(modality)
	if err != nil {
		return domain.Result{}, err
	}
	result := domain.Result{
		StudentName: caller.Name,
		GameID:      gameID,
		Score:       score,
		CreatedAt:   s.now().UTC(),
	}
	if err := src.Insert(ctx, result); err != nil {
		return domain.Result{}, storeErr(err)
	}
	return result, nil
}

// Completed reports whether the caller has a result for the game.
func (s *ResultService) Completed(ctx context.Context, caller *domain.Identity, modality domain.Modality, gameID int64) (bool, error) {
	_, err := s.Result(ctx, caller, modality, gameID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Result returns the caller's stored result for a game.
func (s *ResultService) Result(ctx context.Context, caller *domain.Identity, modality domain.Modality, gameID int64) (domain.Result, error) {
	if !caller.IsStudent() {
		return domain.Result{}, domain.ErrUnauthorized
	}
	src, err := s.source(modality)
	if err != nil {
		return domain.Result{}, err
	}
	result, err := src.Find(ctx, caller.Name, gameID)
	if err != nil {
		return domain.Result{}, storeErr(err)
	}
	return result, nil
}

// CompletedGames lists the game IDs the caller has finished in a modality.
func (s *ResultService) CompletedGames(ctx context.Context, caller *domain.Identity, modality domain.Modality) ([]int64, error) {
	if !caller.IsStudent() {
		return nil, domain.ErrUnauthorized
	}
	src, err := s.source(modality)
	if err != nil {
		return nil, err
	}
	ids, err := src.CompletedGames(ctx, caller.Name)
	if err != nil {
		return nil, storeErr(err)
	}
	if ids == nil {
		ids = []int64{}
	}
	return ids, nil
}

func (s *ResultService) source(modality domain.Modality) (ResultSource, error) {
	src, ok := s.sources[modality]
	if !ok {
		return nil, domain.ErrUnknownModality
	}
	return src, nil
}

// storeErr passes domain errors through and marks anything else as a store failure.
func storeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrDuplicateEntry),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrStoreUnavailable),
		errors.Is(err, domain.ErrAccountExists):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
}
