package memory

import (
	"context"
	"sync"
	"time"

	"edugame-service/internal/domain"
)

// StudentStore is an in-memory implementation of app.StudentStore.
type StudentStore struct {
	mu       sync.Mutex
	students map[string]domain.Student
}

func NewStudentStore() *StudentStore {
	return &StudentStore{students: make(map[string]domain.Student)}
}

func (s *StudentStore) Create(_ context.Context, student domain.Student) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.students[student.Name]; ok {
		return domain.ErrAccountExists
	}
	for _, existing := range s.students {
		if existing.Email == student.Email {
			return domain.ErrAccountExists
		}
	}
	s.students[student.Name] = student
	return nil
}

func (s *StudentStore) FindByEmail(_ context.Context, email string) (domain.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, student := range s.students {
		if student.Email == email {
			return student, nil
		}
	}
	return domain.Student{}, domain.ErrNotFound
}

func (s *StudentStore) Get(_ context.Context, name string) (domain.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	student, ok := s.students[name]
	if !ok {
		return domain.Student{}, domain.ErrNotFound
	}
	return student, nil
}

func (s *StudentStore) LoginState(_ context.Context, name string) (domain.LoginState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	student, ok := s.students[name]
	if !ok {
		return domain.LoginState{}, domain.ErrNotFound
	}
	return domain.LoginState{LastLogin: student.LastLogin, Streak: student.Streak}, nil
}

// RecordLogin holds the store lock across read, compute and write.
func (s *StudentStore) RecordLogin(_ context.Context, name string, now time.Time, next func(domain.LoginState) int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	student, ok := s.students[name]
	if !ok {
		return 0, domain.ErrNotFound
	}
	streak := next(domain.LoginState{LastLogin: student.LastLogin, Streak: student.Streak})
	ts := now
	student.Streak = streak
	student.LastLogin = &ts
	s.students[name] = student
	return streak, nil
}

func (s *StudentStore) UpdateProfile(_ context.Context, name string, update domain.ProfileUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	student, ok := s.students[name]
	if !ok {
		return domain.ErrNotFound
	}
	student.College = update.College
	student.Place = update.Place
	student.District = update.District
	student.State = update.State
	s.students[name] = student
	return nil
}
