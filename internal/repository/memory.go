package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/mmeshcher/scheme-eligibility/internal/model"
)

// MemoryRepository хранит данные в памяти процесса. Используется, когда адрес БД не задан.
type MemoryRepository struct {
	mu           sync.RWMutex
	applications map[string]model.Application
	order        []string
	profiles     map[int64]model.UserProfile
}

// NewMemoryRepository создаёт пустое хранилище.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		applications: make(map[string]model.Application),
		profiles:     make(map[int64]model.UserProfile),
	}
}

// Close ничего не делает и нужен для совместимости с PostgresRepository.
func (r *MemoryRepository) Close() error {
	return nil
}

// FindActiveApplication возвращает активную заявку пользователя на программу или nil.
func (r *MemoryRepository) FindActiveApplication(_ context.Context, userID int64, schemeID string) (*model.Application, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		app := r.applications[id]
		if app.UserID == userID && app.SchemeID == schemeID && app.Active() {
			c := app.Clone()
			return &c, nil
		}
	}
	return nil, nil
}

// CreateApplication сохраняет новую заявку.
func (r *MemoryRepository) CreateApplication(_ context.Context, app model.Application) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.applications[app.ID]; ok {
		return fmt.Errorf("%w: id %s", ErrDuplicateActive, app.ID)
	}
	if app.Active() {
		for _, id := range r.order {
			other := r.applications[id]
			if other.UserID == app.UserID && other.SchemeID == app.SchemeID && other.Active() {
				return fmt.Errorf("%w: %s", ErrDuplicateActive, other.ID)
			}
		}
	}

	r.applications[app.ID] = app.Clone()
	r.order = append(r.order, app.ID)
	return nil
}

// GetApplication возвращает заявку по идентификатору.
func (r *MemoryRepository) GetApplication(_ context.Context, id string) (model.Application, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	app, ok := r.applications[id]
	if !ok {
		return model.Application{}, fmt.Errorf("application %s: %w", id, model.ErrNotFound)
	}
	return app.Clone(), nil
}

// UpdateApplication заменяет статус, документы и время изменения заявки.
func (r *MemoryRepository) UpdateApplication(_ context.Context, app model.Application) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.applications[app.ID]
	if !ok {
		return fmt.Errorf("application %s: %w", app.ID, model.ErrNotFound)
	}

	current.Status = app.Status
	current.Documents = append([]string(nil), app.Documents...)
	current.UpdatedAt = app.UpdatedAt
	r.applications[app.ID] = current
	return nil
}

// ListApplicationsByUser возвращает заявки пользователя в порядке создания.
func (r *MemoryRepository) ListApplicationsByUser(_ context.Context, userID int64) ([]model.Application, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := []model.Application{}
	for _, id := range r.order {
		if app := r.applications[id]; app.UserID == userID {
			res = append(res, app.Clone())
		}
	}
	return res, nil
}

// GetProfile возвращает анкету пользователя.
func (r *MemoryRepository) GetProfile(_ context.Context, userID int64) (model.UserProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.profiles[userID]
	if !ok {
		return model.UserProfile{}, fmt.Errorf("user %d: %w", userID, model.ErrNotFound)
	}
	return cloneProfile(p), nil
}

// SaveProfile создаёт или заменяет анкету пользователя.
func (r *MemoryRepository) SaveProfile(_ context.Context, p model.UserProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.profiles[p.UserID] = cloneProfile(p)
	return nil
}

func cloneProfile(p model.UserProfile) model.UserProfile {
	if p.Age != nil {
		v := *p.Age
		p.Age = &v
	}
	if p.Income != nil {
		v := *p.Income
		p.Income = &v
	}
	return p
}
