// Package handler содержит HTTP-обработчики API сервиса подбора программ.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/scheme-eligibility/internal/catalog"
	"github.com/mmeshcher/scheme-eligibility/internal/middleware"
	"github.com/mmeshcher/scheme-eligibility/internal/model"
	"github.com/mmeshcher/scheme-eligibility/internal/service"
)

const maxUploadSize = 10 << 20

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Schemes(skip, limit int) []catalog.Scheme
	Scheme(id string) (catalog.Scheme, error)
	Profile(ctx context.Context, userID int64) (model.UserProfile, error)
	UpdateProfile(ctx context.Context, userID int64, patch service.ProfilePatch) (model.UserProfile, error)
	RunAgent(ctx context.Context, userID int64) (*service.AgentRun, error)
	CheckScheme(ctx context.Context, userID int64, schemeID string) (model.Verdict, error)
	Recommend(ctx context.Context, userID int64) ([]catalog.Scheme, error)
	AgentApply(ctx context.Context, userID int64, schemeID string) (*service.AgentApplication, error)
	Apply(ctx context.Context, userID int64, schemeID string) (model.Application, bool, error)
	UploadDocument(ctx context.Context, userID int64, applicationID, filename string, r io.Reader) (model.Application, error)
	Applications(ctx context.Context, userID int64) ([]model.Application, error)
	SetStatus(ctx context.Context, applicationID string, status model.ApplicationStatus) (model.Application, error)
}

// Handler реализует HTTP-обработчики API сервиса.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	metrics        http.Handler
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов. metrics может быть nil.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, metrics http.Handler) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		metrics:        metrics,
	}
}

type schemeResponse struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Ministry          string   `json:"ministry,omitempty"`
	Description       string   `json:"description"`
	Benefits          string   `json:"benefits,omitempty"`
	DocumentsRequired []string `json:"documents_required"`
	Eligibility       string   `json:"eligibility,omitempty"`
}

func newSchemeResponse(s catalog.Scheme) schemeResponse {
	resp := schemeResponse{
		ID:                s.ID,
		Name:              s.Name,
		Ministry:          s.Ministry,
		Description:       s.Description,
		Benefits:          s.Benefits,
		DocumentsRequired: s.Documents,
	}
	if resp.DocumentsRequired == nil {
		resp.DocumentsRequired = []string{}
	}
	if s.Rule != nil {
		resp.Eligibility = s.Rule.String()
	}
	return resp
}

type verdictResponse struct {
	SchemeID         string   `json:"scheme_id"`
	Eligible         bool     `json:"eligible"`
	Reason           string   `json:"reason"`
	FailedConditions []string `json:"failed_conditions"`
}

func newVerdictResponse(v model.Verdict) verdictResponse {
	failed := v.FailedConditions
	if failed == nil {
		failed = []string{}
	}
	return verdictResponse{
		SchemeID:         v.SchemeID,
		Eligible:         v.Eligible,
		Reason:           v.Reason,
		FailedConditions: failed,
	}
}

type applicationResponse struct {
	ID        string   `json:"id"`
	UserID    int64    `json:"user_id"`
	SchemeID  string   `json:"scheme_id"`
	Status    string   `json:"status"`
	Documents []string `json:"documents"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt string   `json:"updated_at"`
}

func newApplicationResponse(a model.Application) applicationResponse {
	docs := a.Documents
	if docs == nil {
		docs = []string{}
	}
	return applicationResponse{
		ID:        a.ID,
		UserID:    a.UserID,
		SchemeID:  a.SchemeID,
		Status:    string(a.Status),
		Documents: docs,
		CreatedAt: a.CreatedAt.Format(time.RFC3339),
		UpdatedAt: a.UpdatedAt.Format(time.RFC3339),
	}
}

type profileResponse struct {
	model.UserProfile
	ProfileCompleted bool `json:"profile_completed"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// writeError отображает ошибку бизнес-логики в HTTP-статус.
func (h *Handler) writeError(w http.ResponseWriter, err error, msg string, fields ...zap.Field) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		writeDetail(w, http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrInvalidState), errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, model.ErrProfileReadOnly):
		writeDetail(w, http.StatusConflict, err.Error())
	case errors.Is(err, model.ErrProfileIncomplete):
		writeDetail(w, http.StatusBadRequest, "Please complete your profile first")
	case errors.Is(err, model.ErrValidation):
		writeDetail(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrNotEligible):
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, model.ErrForbidden):
		writeDetail(w, http.StatusForbidden, "Not allowed")
	default:
		h.logger.Error(msg, append(fields, zap.Error(err))...)
		writeDetail(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}

func currentUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Not authenticated")
	}
	return userID, ok
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}

// ListSchemes возвращает страницу каталога.
func (h *Handler) ListSchemes(w http.ResponseWriter, r *http.Request) {
	skip, err := queryInt(r, "skip", 0)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := queryInt(r, "limit", service.DefaultPageLimit)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	schemes := h.service.Schemes(skip, limit)
	resp := make([]schemeResponse, 0, len(schemes))
	for _, s := range schemes {
		resp = append(resp, newSchemeResponse(s))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetScheme возвращает одну программу.
func (h *Handler) GetScheme(w http.ResponseWriter, r *http.Request) {
	s, err := h.service.Scheme(chi.URLParam(r, "schemeID"))
	if err != nil {
		h.writeError(w, err, "get scheme error")
		return
	}
	writeJSON(w, http.StatusOK, newSchemeResponse(s))
}

// Recommend возвращает программы, на которые пользователь имеет право.
func (h *Handler) Recommend(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	requested, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "user id must be an integer")
		return
	}
	if requested != userID {
		writeDetail(w, http.StatusForbidden, "Not allowed")
		return
	}

	schemes, err := h.service.Recommend(r.Context(), userID)
	if err != nil {
		h.writeError(w, err, "recommend error", zap.Int64("userID", userID))
		return
	}

	resp := make([]schemeResponse, 0, len(schemes))
	for _, s := range schemes {
		resp = append(resp, newSchemeResponse(s))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CheckScheme проверяет право текущего пользователя на одну программу.
func (h *Handler) CheckScheme(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	schemeID := chi.URLParam(r, "schemeID")
	v, err := h.service.CheckScheme(r.Context(), userID, schemeID)
	if err != nil {
		h.writeError(w, err, "check scheme error", zap.Int64("userID", userID), zap.String("schemeID", schemeID))
		return
	}
	writeJSON(w, http.StatusOK, newVerdictResponse(v))
}

type agentResultResponse struct {
	SchemeID         string   `json:"scheme_id"`
	SchemeName       string   `json:"scheme_name"`
	Description      string   `json:"description"`
	Benefits         string   `json:"benefits,omitempty"`
	DocumentsNeeded  []string `json:"documents_needed"`
	Eligible         bool     `json:"eligible"`
	Reason           string   `json:"reason"`
	FailedConditions []string `json:"failed_conditions"`
	AlreadyApplied   bool     `json:"already_applied"`
}

type agentRunResponse struct {
	UserName            string                `json:"user_name"`
	TotalSchemes        int                   `json:"total_schemes"`
	EligibleCount       int                   `json:"eligible_count"`
	AlreadyAppliedCount int                   `json:"already_applied_count"`
	Results             []agentResultResponse `json:"results"`
}

// RunAgent проверяет анкету текущего пользователя по всему каталогу.
func (h *Handler) RunAgent(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	run, err := h.service.RunAgent(r.Context(), userID)
	if err != nil {
		h.writeError(w, err, "agent run error", zap.Int64("userID", userID))
		return
	}

	resp := agentRunResponse{
		UserName:            run.Profile.Name,
		TotalSchemes:        run.Summary.TotalSchemes,
		EligibleCount:       run.Summary.EligibleCount,
		AlreadyAppliedCount: run.AlreadyAppliedCount,
		Results:             make([]agentResultResponse, 0, len(run.Results)),
	}
	for _, res := range run.Results {
		v := newVerdictResponse(res.Verdict)
		s := newSchemeResponse(res.Scheme)
		resp.Results = append(resp.Results, agentResultResponse{
			SchemeID:         s.ID,
			SchemeName:       s.Name,
			Description:      s.Description,
			Benefits:         s.Benefits,
			DocumentsNeeded:  s.DocumentsRequired,
			Eligible:         v.Eligible,
			Reason:           v.Reason,
			FailedConditions: v.FailedConditions,
			AlreadyApplied:   res.AlreadyApplied,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type agentApplyResponse struct {
	Message         string              `json:"message"`
	ApplicationID   string              `json:"application_id"`
	DocumentsNeeded []string            `json:"documents_needed"`
	Application     applicationResponse `json:"application"`
}

// AgentApply подаёт заявку после проверки права.
func (h *Handler) AgentApply(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	schemeID := chi.URLParam(r, "schemeID")
	res, err := h.service.AgentApply(r.Context(), userID, schemeID)
	if err != nil {
		h.writeError(w, err, "agent apply error", zap.Int64("userID", userID), zap.String("schemeID", schemeID))
		return
	}

	msg := "Application created for " + res.Scheme.Name
	if res.Existing {
		msg = "Application already exists for " + res.Scheme.Name
	}
	docs := res.Scheme.Documents
	if docs == nil {
		docs = []string{}
	}
	writeJSON(w, http.StatusOK, agentApplyResponse{
		Message:         msg,
		ApplicationID:   res.Application.ID,
		DocumentsNeeded: docs,
		Application:     newApplicationResponse(res.Application),
	})
}

type applyRequest struct {
	SchemeID string `json:"scheme_id"`
	UserID   *int64 `json:"user_id,omitempty"`
}

// Apply подаёт заявку без проверки права.
func (h *Handler) Apply(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req applyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.SchemeID = strings.TrimSpace(req.SchemeID)
	if req.SchemeID == "" {
		writeDetail(w, http.StatusBadRequest, "scheme_id is required")
		return
	}
	if req.UserID != nil && *req.UserID != userID {
		writeDetail(w, http.StatusForbidden, "Not allowed")
		return
	}

	app, _, err := h.service.Apply(r.Context(), userID, req.SchemeID)
	if err != nil {
		h.writeError(w, err, "apply error", zap.Int64("userID", userID), zap.String("schemeID", req.SchemeID))
		return
	}
	writeJSON(w, http.StatusOK, newApplicationResponse(app))
}

// UploadDocument принимает файл в поле формы file и прикрепляет его к заявке.
func (h *Handler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeDetail(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeDetail(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	applicationID := chi.URLParam(r, "applicationID")
	app, err := h.service.UploadDocument(r.Context(), userID, applicationID, header.Filename, file)
	if err != nil {
		h.writeError(w, err, "upload document error", zap.Int64("userID", userID), zap.String("applicationID", applicationID))
		return
	}
	writeJSON(w, http.StatusOK, newApplicationResponse(app))
}

// ListApplications возвращает заявки текущего пользователя в порядке создания.
func (h *Handler) ListApplications(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	apps, err := h.service.Applications(r.Context(), userID)
	if err != nil {
		h.writeError(w, err, "list applications error", zap.Int64("userID", userID))
		return
	}

	resp := make([]applicationResponse, 0, len(apps))
	for _, a := range apps {
		resp = append(resp, newApplicationResponse(a))
	}
	writeJSON(w, http.StatusOK, resp)
}

type statusRequest struct {
	Status string `json:"status"`
}

// SetStatus меняет статус заявки. Доступно только проверяющим.
func (h *Handler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	status, ok := model.ParseApplicationStatus(req.Status)
	if !ok {
		writeDetail(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", req.Status))
		return
	}

	applicationID := chi.URLParam(r, "applicationID")
	app, err := h.service.SetStatus(r.Context(), applicationID, status)
	if err != nil {
		h.writeError(w, err, "set status error", zap.String("applicationID", applicationID))
		return
	}
	writeJSON(w, http.StatusOK, newApplicationResponse(app))
}

// GetProfile возвращает анкету текущего пользователя.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	p, err := h.service.Profile(r.Context(), userID)
	if err != nil {
		h.writeError(w, err, "get profile error", zap.Int64("userID", userID))
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{UserProfile: p, ProfileCompleted: p.Completed()})
}

type profileRequest struct {
	Name           *string `json:"name"`
	Age            *int64  `json:"age"`
	Gender         *string `json:"gender"`
	State          *string `json:"state"`
	District       *string `json:"district"`
	Address        *string `json:"address"`
	Pincode        *string `json:"pincode"`
	Occupation     *string `json:"occupation"`
	Income         *int64  `json:"income"`
	Caste          *string `json:"caste"`
	Education      *string `json:"education"`
	RationCardType *string `json:"ration_card_type"`
}

// UpdateProfile изменяет переданные поля анкеты текущего пользователя.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	p, err := h.service.UpdateProfile(r.Context(), userID, service.ProfilePatch{
		Name:           req.Name,
		Age:            req.Age,
		Gender:         req.Gender,
		State:          req.State,
		District:       req.District,
		Address:        req.Address,
		Pincode:        req.Pincode,
		Occupation:     req.Occupation,
		Income:         req.Income,
		Category:       req.Caste,
		Education:      req.Education,
		RationCardType: req.RationCardType,
	})
	if err != nil {
		h.writeError(w, err, "update profile error", zap.Int64("userID", userID))
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{UserProfile: p, ProfileCompleted: p.Completed()})
}
