// Package service реализует бизнес-логику подбора программ и подачи заявок.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/mmeshcher/scheme-eligibility/internal/catalog"
	"github.com/mmeshcher/scheme-eligibility/internal/matching"
	"github.com/mmeshcher/scheme-eligibility/internal/model"
	"github.com/mmeshcher/scheme-eligibility/internal/tracker"
	"github.com/mmeshcher/scheme-eligibility/internal/validation"
)

// DefaultPageLimit ограничивает размер страницы списка программ по умолчанию.
const DefaultPageLimit = 100

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	tracker.Store
	Close() error
	GetProfile(ctx context.Context, userID int64) (model.UserProfile, error)
	SaveProfile(ctx context.Context, p model.UserProfile) error
}

// ProfileSource возвращает анкеты пользователей.
type ProfileSource interface {
	GetProfile(ctx context.Context, userID int64) (model.UserProfile, error)
}

// DocumentStorage сохраняет файлы документов.
type DocumentStorage interface {
	Save(ctx context.Context, applicationID, filename string, r io.Reader) (string, error)
	Remove(ref string) error
}

// Service содержит бизнес-логику сервиса.
type Service struct {
	repo     Repository
	profiles ProfileSource
	readOnly bool
	catalogs *catalog.Holder
	engine   *matching.Engine
	tracker  *tracker.Tracker
	docs     DocumentStorage
	logger   *zap.Logger
}

// Option настраивает Service.
type Option func(*Service)

// WithProfileSource подключает внешний источник анкет. Изменение анкет при этом запрещено.
func WithProfileSource(src ProfileSource) Option {
	return func(s *Service) {
		s.profiles = src
		s.readOnly = true
	}
}

// WithDocumentStorage подключает хранилище документов.
func WithDocumentStorage(docs DocumentStorage) Option {
	return func(s *Service) { s.docs = docs }
}

// NewService создаёт новый сервис.
func NewService(repo Repository, catalogs *catalog.Holder, engine *matching.Engine, tr *tracker.Tracker, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		repo:     repo,
		profiles: repo,
		catalogs: catalogs,
		engine:   engine,
		tracker:  tr,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// Schemes возвращает страницу каталога в исходном порядке.
func (s *Service) Schemes(skip, limit int) []catalog.Scheme {
	list := s.catalogs.Current().List()
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if skip >= len(list) {
		return []catalog.Scheme{}
	}
	end := skip + limit
	if end > len(list) {
		end = len(list)
	}
	return list[skip:end]
}

// Scheme возвращает программу по идентификатору.
func (s *Service) Scheme(id string) (catalog.Scheme, error) {
	return s.catalogs.Get(id)
}

// Profile возвращает анкету пользователя.
func (s *Service) Profile(ctx context.Context, userID int64) (model.UserProfile, error) {
	p, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return model.UserProfile{}, err
	}
	return validation.Normalize(p), nil
}

// ProfilePatch содержит изменяемые поля анкеты. nil означает, что поле не меняется.
type ProfilePatch struct {
	Name           *string
	Age            *int64
	Gender         *string
	State          *string
	District       *string
	Address        *string
	Pincode        *string
	Occupation     *string
	Income         *int64
	Category       *string
	Education      *string
	RationCardType *string
}

func (p ProfilePatch) apply(dst model.UserProfile) model.UserProfile {
	setString := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	setString(&dst.Name, p.Name)
	setString(&dst.State, p.State)
	setString(&dst.District, p.District)
	setString(&dst.Address, p.Address)
	setString(&dst.Pincode, p.Pincode)
	setString(&dst.Occupation, p.Occupation)
	if p.Age != nil {
		v := *p.Age
		dst.Age = &v
	}
	if p.Income != nil {
		v := *p.Income
		dst.Income = &v
	}
	if p.Gender != nil {
		dst.Gender = model.Gender(*p.Gender)
	}
	if p.Category != nil {
		dst.Category = model.Category(*p.Category)
	}
	if p.Education != nil {
		dst.Education = model.Education(*p.Education)
	}
	if p.RationCardType != nil {
		dst.RationCardType = model.RationCard(*p.RationCardType)
	}
	return dst
}

// UpdateProfile применяет изменения к анкете, проверяет её и сохраняет.
func (s *Service) UpdateProfile(ctx context.Context, userID int64, patch ProfilePatch) (model.UserProfile, error) {
	if s.readOnly {
		return model.UserProfile{}, model.ErrProfileReadOnly
	}

	current, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			return model.UserProfile{}, err
		}
		current = model.UserProfile{UserID: userID}
	}

	next := validation.Normalize(patch.apply(current))
	next.UserID = userID
	if err := validation.ValidateProfile(next); err != nil {
		return model.UserProfile{}, fmt.Errorf("%w: %w", model.ErrValidation, err)
	}

	if err := s.repo.SaveProfile(ctx, next); err != nil {
		return model.UserProfile{}, fmt.Errorf("save profile: %w", err)
	}
	return next, nil
}

// SchemeResult описывает вердикт по одной программе вместе с её описанием.
type SchemeResult struct {
	Scheme         catalog.Scheme
	Verdict        model.Verdict
	AlreadyApplied bool
}

// AgentRun описывает результат подбора программ для пользователя.
type AgentRun struct {
	Profile             model.UserProfile
	Summary             matching.Summary
	AlreadyAppliedCount int
	Results             []SchemeResult
}

// RunAgent проверяет анкету пользователя по всему каталогу и отмечает программы, на которые заявка уже подана.
func (s *Service) RunAgent(ctx context.Context, userID int64) (*AgentRun, error) {
	profile, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !profile.Completed() {
		return nil, model.ErrProfileIncomplete
	}

	cat := s.catalogs.Current()
	verdicts := s.engine.Match(profile, cat, matching.Options{})

	apps, err := s.tracker.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	applied := make(map[string]bool, len(apps))
	for _, a := range apps {
		if a.Active() {
			applied[a.SchemeID] = true
		}
	}

	run := &AgentRun{
		Profile: profile,
		Summary: matching.Summarize(verdicts),
		Results: make([]SchemeResult, 0, len(verdicts)),
	}
	for _, v := range verdicts {
		scheme, err := cat.Get(v.SchemeID)
		if err != nil {
			return nil, err
		}
		res := SchemeResult{Scheme: scheme, Verdict: v, AlreadyApplied: applied[v.SchemeID]}
		if res.AlreadyApplied {
			run.AlreadyAppliedCount++
		}
		run.Results = append(run.Results, res)
	}

	s.logger.Info("agent run",
		zap.Int64("userID", userID),
		zap.Int("total", run.Summary.TotalSchemes),
		zap.Int("eligible", run.Summary.EligibleCount),
	)
	return run, nil
}

// CheckScheme проверяет право пользователя на одну программу.
func (s *Service) CheckScheme(ctx context.Context, userID int64, schemeID string) (model.Verdict, error) {
	cat := s.catalogs.Current()
	if _, err := cat.Get(schemeID); err != nil {
		return model.Verdict{}, err
	}
	profile, err := s.Profile(ctx, userID)
	if err != nil {
		return model.Verdict{}, err
	}
	return s.engine.MatchOne(profile, schemeID, cat)
}

// Recommend возвращает программы, на которые пользователь имеет право, в порядке каталога.
func (s *Service) Recommend(ctx context.Context, userID int64) ([]catalog.Scheme, error) {
	profile, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}

	cat := s.catalogs.Current()
	verdicts := s.engine.Match(profile, cat, matching.Options{SortEligibleFirst: true})

	res := []catalog.Scheme{}
	for _, v := range verdicts {
		if !v.Eligible {
			break
		}
		scheme, err := cat.Get(v.SchemeID)
		if err != nil {
			return nil, err
		}
		res = append(res, scheme)
	}
	return res, nil
}

// AgentApplication описывает результат подачи заявки после проверки права.
type AgentApplication struct {
	Application model.Application
	Scheme      catalog.Scheme
	Existing    bool
}

// AgentApply подаёт заявку только если пользователь проходит по условиям программы.
func (s *Service) AgentApply(ctx context.Context, userID int64, schemeID string) (*AgentApplication, error) {
	cat := s.catalogs.Current()
	scheme, err := cat.Get(schemeID)
	if err != nil {
		return nil, err
	}

	profile, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}

	verdict, err := s.engine.MatchOne(profile, schemeID, cat)
	if err != nil {
		return nil, err
	}
	if !verdict.Eligible {
		return nil, fmt.Errorf("%w: %s", model.ErrNotEligible, verdict.Reason)
	}

	app, existing, err := s.tracker.Apply(ctx, userID, schemeID)
	if err != nil {
		return nil, err
	}
	return &AgentApplication{Application: app, Scheme: scheme, Existing: existing}, nil
}

// Apply подаёт заявку без проверки права.
func (s *Service) Apply(ctx context.Context, userID int64, schemeID string) (model.Application, bool, error) {
	return s.tracker.Apply(ctx, userID, schemeID)
}

// UploadDocument сохраняет файл и прикрепляет его к заявке пользователя.
func (s *Service) UploadDocument(ctx context.Context, userID int64, applicationID, filename string, r io.Reader) (model.Application, error) {
	if s.docs == nil {
		return model.Application{}, errors.New("document storage not configured")
	}

	app, err := s.tracker.Get(ctx, applicationID)
	if err != nil {
		return model.Application{}, err
	}
	if app.UserID != userID {
		return model.Application{}, fmt.Errorf("application %s: %w", applicationID, model.ErrForbidden)
	}
	if app.Status == model.ApplicationStatusRejected {
		return model.Application{}, fmt.Errorf("application %s is %s: %w", applicationID, app.Status, model.ErrInvalidState)
	}

	ref, err := s.docs.Save(ctx, applicationID, filename, r)
	if err != nil {
		return model.Application{}, err
	}

	updated, err := s.tracker.AttachDocument(ctx, applicationID, ref)
	if err != nil {
		if rmErr := s.docs.Remove(ref); rmErr != nil {
			s.logger.Warn("remove orphaned document", zap.String("ref", ref), zap.Error(rmErr))
		}
		return model.Application{}, err
	}
	return updated, nil
}

// Applications возвращает заявки пользователя в порядке создания.
func (s *Service) Applications(ctx context.Context, userID int64) ([]model.Application, error) {
	return s.tracker.ListForUser(ctx, userID)
}

// SetStatus меняет статус заявки.
func (s *Service) SetStatus(ctx context.Context, applicationID string, status model.ApplicationStatus) (model.Application, error) {
	return s.tracker.SetStatus(ctx, applicationID, status)
}
