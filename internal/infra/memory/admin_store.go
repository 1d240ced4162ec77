package memory

import (
	"context"
	"sync"

	"edugame-service/internal/domain"
)

// AdminStore is an in-memory implementation of app.AdminStore.
type AdminStore struct {
	mu     sync.RWMutex
	admins map[string]domain.Admin
}

func NewAdminStore() *AdminStore {
	return &AdminStore{admins: make(map[string]domain.Admin)}
}

func (s *AdminStore) Create(_ context.Context, admin domain.Admin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.admins {
		if existing.Name == admin.Name || existing.Email == admin.Email {
			return domain.ErrAccountExists
		}
	}
	s.admins[admin.Email] = admin
	return nil
}

func (s *AdminStore) FindByEmail(_ context.Context, email string) (domain.Admin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	admin, ok := s.admins[email]
	if !ok {
		return domain.Admin{}, domain.ErrNotFound
	}
	return admin, nil
}
