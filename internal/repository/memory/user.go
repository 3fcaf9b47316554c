package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/jwalitptl/travel-notifications/internal/repository"
)

// UserRepository keeps roles in a map; SetRole seeds it.
type UserRepository struct {
	mu    sync.RWMutex
	roles map[uuid.UUID]string
}

func NewUserRepository() *UserRepository {
	return &UserRepository{roles: make(map[uuid.UUID]string)}
}

func (r *UserRepository) SetRole(userID uuid.UUID, role string) {
	r.mu.Lock()
	r.roles[userID] = role
	r.mu.Unlock()
}

func (r *UserRepository) GetRole(ctx context.Context, userID uuid.UUID) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	role, ok := r.roles[userID]
	if !ok {
		return "", repository.ErrNotFound
	}
	return role, nil
}
