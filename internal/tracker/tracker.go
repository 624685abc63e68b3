// Package tracker ведёт жизненный цикл заявок на участие в программах.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/scheme-eligibility/internal/catalog"
	"github.com/mmeshcher/scheme-eligibility/internal/model"
	"github.com/mmeshcher/scheme-eligibility/internal/repository"
)

// Store описывает хранилище заявок. Каждая операция записи атомарна.
type Store interface {
	FindActiveApplication(ctx context.Context, userID int64, schemeID string) (*model.Application, error)
	CreateApplication(ctx context.Context, app model.Application) error
	GetApplication(ctx context.Context, id string) (model.Application, error)
	UpdateApplication(ctx context.Context, app model.Application) error
	ListApplicationsByUser(ctx context.Context, userID int64) ([]model.Application, error)
}

// SchemeLookup проверяет существование программы.
type SchemeLookup interface {
	Get(id string) (catalog.Scheme, error)
}

// Recorder получает события жизненного цикла заявок. Используется для метрик.
type Recorder interface {
	ApplicationCreated(existing bool)
	StatusChanged(to model.ApplicationStatus)
}

// transitions перечисляет допустимые переходы статусов.
var transitions = map[model.ApplicationStatus][]model.ApplicationStatus{
	model.ApplicationStatusPending:     {model.ApplicationStatusSubmitted},
	model.ApplicationStatusSubmitted:   {model.ApplicationStatusUnderReview},
	model.ApplicationStatusUnderReview: {model.ApplicationStatusApproved, model.ApplicationStatusRejected},
}

// CanTransition сообщает, разрешён ли переход из from в to.
func CanTransition(from, to model.ApplicationStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Tracker управляет заявками. Операции над одной заявкой взаимно исключены,
// операции над разными заявками выполняются параллельно.
type Tracker struct {
	store    Store
	schemes  SchemeLookup
	logger   *zap.Logger
	recorder Recorder
	now      func() time.Time
	newID    func() string

	pairLocks keyedMutex
	appLocks  keyedMutex
}

// Option настраивает Tracker.
type Option func(*Tracker)

// WithClock задаёт источник времени.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithIDGenerator задаёт генератор идентификаторов заявок.
func WithIDGenerator(gen func() string) Option {
	return func(t *Tracker) { t.newID = gen }
}

// WithRecorder подключает получателя событий.
func WithRecorder(r Recorder) Option {
	return func(t *Tracker) { t.recorder = r }
}

// New создаёт Tracker.
func New(store Store, schemes SchemeLookup, logger *zap.Logger, opts ...Option) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tracker{
		store:   store,
		schemes: schemes,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Apply создаёт заявку в статусе pending. Если у пользователя уже есть активная заявка на эту программу,
// она возвращается без изменений и existing равен true.
func (t *Tracker) Apply(ctx context.Context, userID int64, schemeID string) (app model.Application, existing bool, err error) {
	if userID <= 0 {
		return model.Application{}, false, fmt.Errorf("user %d: %w", userID, model.ErrNotFound)
	}
	if _, err := t.schemes.Get(schemeID); err != nil {
		return model.Application{}, false, err
	}

	unlock := t.pairLocks.Lock(strconv.FormatInt(userID, 10) + "/" + schemeID)
	defer unlock()

	found, err := t.store.FindActiveApplication(ctx, userID, schemeID)
	if err != nil {
		return model.Application{}, false, fmt.Errorf("find active application: %w", err)
	}
	if found != nil {
		t.recordCreated(true)
		return found.Clone(), true, nil
	}

	now := t.now()
	app = model.Application{
		ID:        t.newID(),
		UserID:    userID,
		SchemeID:  schemeID,
		Status:    model.ApplicationStatusPending,
		Documents: []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := t.store.CreateApplication(ctx, app); err != nil {
		if !errors.Is(err, repository.ErrDuplicateActive) {
			return model.Application{}, false, fmt.Errorf("create application: %w", err)
		}
		// Заявку успел создать другой экземпляр сервиса.
		found, findErr := t.store.FindActiveApplication(ctx, userID, schemeID)
		if findErr != nil || found == nil {
			return model.Application{}, false, fmt.Errorf("create application: %w", err)
		}
		t.recordCreated(true)
		return found.Clone(), true, nil
	}

	t.logger.Info("application created",
		zap.String("applicationID", app.ID),
		zap.Int64("userID", userID),
		zap.String("schemeID", schemeID),
	)
	t.recordCreated(false)
	return app.Clone(), false, nil
}

// Get возвращает заявку по идентификатору.
func (t *Tracker) Get(ctx context.Context, applicationID string) (model.Application, error) {
	return t.store.GetApplication(ctx, applicationID)
}

// AttachDocument добавляет ссылку на документ. Первый документ переводит заявку из pending в submitted.
// К отклонённой заявке документы не прикрепляются. Повторная ссылка не добавляется.
func (t *Tracker) AttachDocument(ctx context.Context, applicationID, documentRef string) (model.Application, error) {
	documentRef = strings.TrimSpace(documentRef)
	if documentRef == "" {
		return model.Application{}, fmt.Errorf("%w: empty document reference", model.ErrValidation)
	}

	unlock := t.appLocks.Lock(applicationID)
	defer unlock()

	current, err := t.store.GetApplication(ctx, applicationID)
	if err != nil {
		return model.Application{}, err
	}
	if current.Status == model.ApplicationStatusRejected {
		return model.Application{}, fmt.Errorf("application %s is %s: %w", applicationID, current.Status, model.ErrInvalidState)
	}

	if slices.Contains(current.Documents, documentRef) {
		return current.Clone(), nil
	}

	next := current.Clone()
	next.Documents = append(next.Documents, documentRef)
	if current.Status == model.ApplicationStatusPending && len(current.Documents) == 0 {
		next.Status = model.ApplicationStatusSubmitted
	}
	next.UpdatedAt = t.now()

	if err := t.store.UpdateApplication(ctx, next); err != nil {
		return model.Application{}, fmt.Errorf("update application: %w", err)
	}

	if next.Status != current.Status {
		t.recordStatus(next.Status)
	}
	t.logger.Info("document attached",
		zap.String("applicationID", applicationID),
		zap.String("status", string(next.Status)),
		zap.Int("documents", len(next.Documents)),
	)
	return next.Clone(), nil
}

// SetStatus переводит заявку в новый статус, если переход разрешён.
func (t *Tracker) SetStatus(ctx context.Context, applicationID string, status model.ApplicationStatus) (model.Application, error) {
	unlock := t.appLocks.Lock(applicationID)
	defer unlock()

	current, err := t.store.GetApplication(ctx, applicationID)
	if err != nil {
		return model.Application{}, err
	}
	if !CanTransition(current.Status, status) {
		return model.Application{}, fmt.Errorf("%s -> %s: %w", current.Status, status, model.ErrInvalidTransition)
	}

	next := current.Clone()
	next.Status = status
	next.UpdatedAt = t.now()

	if err := t.store.UpdateApplication(ctx, next); err != nil {
		return model.Application{}, fmt.Errorf("update application: %w", err)
	}

	t.recordStatus(status)
	t.logger.Info("application status changed",
		zap.String("applicationID", applicationID),
		zap.String("from", string(current.Status)),
		zap.String("to", string(status)),
	)
	return next.Clone(), nil
}

// ListForUser возвращает заявки пользователя в порядке создания.
func (t *Tracker) ListForUser(ctx context.Context, userID int64) ([]model.Application, error) {
	apps, err := t.store.ListApplicationsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	sort.SliceStable(apps, func(i, j int) bool {
		return apps[i].CreatedAt.Before(apps[j].CreatedAt)
	})
	return apps, nil
}

func (t *Tracker) recordCreated(existing bool) {
	if t.recorder != nil {
		t.recorder.ApplicationCreated(existing)
	}
}

func (t *Tracker) recordStatus(to model.ApplicationStatus) {
	if t.recorder != nil {
		t.recorder.StatusChanged(to)
	}
}
