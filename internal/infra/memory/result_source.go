package memory

import (
	"context"
	"sort"
	"sync"

	"edugame-service/internal/domain"
)

type resultKey struct {
	student string
	gameID  int64
}

// ResultSource is an in-memory implementation of app.ResultSource for one modality.
type ResultSource struct {
	modality domain.Modality

	mu      sync.RWMutex
	results map[resultKey]domain.Result
}

func NewResultSource(modality domain.Modality) *ResultSource {
	return &ResultSource{
		modality: modality,
		results:  make(map[resultKey]domain.Result),
	}
}

// NewResultSources builds one empty source per modality.
func NewResultSources() []*ResultSource {
	sources := make([]*ResultSource, 0, len(domain.Modalities))
	for _, m := range domain.Modalities {
		sources = append(sources, NewResultSource(m))
	}
	return sources
}

func (s *ResultSource) Modality() domain.Modality {
	return s.modality
}

func (s *ResultSource) Insert(_ context.Context, result domain.Result) error {
	key := resultKey{student: result.StudentName, gameID: result.GameID}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.results[key]; ok {
		return domain.ErrDuplicateEntry
	}
	s.results[key] = result
	return nil
}

func (s *ResultSource) Find(_ context.Context, studentName string, gameID int64) (domain.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.results[resultKey{student: studentName, gameID: gameID}]
	if !ok {
		return domain.Result{}, domain.ErrNotFound
	}
	return result, nil
}

func (s *ResultSource) CompletedGames(_ context.Context, studentName string) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []int64
	for key := range s.results {
		if key.student == studentName {
			ids = append(ids, key.gameID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *ResultSource) StudentScore(_ context.Context, studentName string) (domain.StudentScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	score := domain.StudentScore{StudentName: studentName}
	for key, result := range s.results {
		if key.student == studentName {
			score.Games++
			score.Total += result.Score
		}
	}
	return score, nil
}

func (s *ResultSource) AllScores(_ context.Context) ([]domain.StudentScore, error) {
	s.mu.RLock()
	grouped := make(map[string]*domain.StudentScore)
	for key, result := range s.results {
		row, ok := grouped[key.student]
		if !ok {
			row = &domain.StudentScore{StudentName: key.student}
			grouped[key.student] = row
		}
		row.Games++
		row.Total += result.Score
	}
	s.mu.RUnlock()

	rows := make([]domain.StudentScore, 0, len(grouped))
	for _, row := range grouped {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].StudentName < rows[j].StudentName })
	return rows, nil
}
