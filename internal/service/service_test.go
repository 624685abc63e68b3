package service

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/spf13/afero"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/scheme-eligibility/internal/catalog"
	"github.com/mmeshcher/scheme-eligibility/internal/documents"
	"github.com/mmeshcher/scheme-eligibility/internal/matching"
	"github.com/mmeshcher/scheme-eligibility/internal/model"
	"github.com/mmeshcher/scheme-eligibility/internal/repository"
	"github.com/mmeshcher/scheme-eligibility/internal/tracker"
)

const testCatalog = `
schemes:
  - id: senior
    name: Senior Pension
    documents_required: [Aadhaar, Age Proof]
    eligibility:
      all:
        - {field: age, op: ">=", value: 60}
        - {field: income, op: "<", value: 50000}
  - id: youth
    name: Youth Skills
    eligibility: {field: age, op: "<", value: 30}
  - id: open
    name: Open For All
`

func intPtr(v int64) *int64 { return &v }

func strPtr(v string) *string { return &v }

type stubProfiles struct {
	profile model.UserProfile
	err     error
}

func (s *stubProfiles) GetProfile(ctx context.Context, userID int64) (model.UserProfile, error) {
	return s.profile, s.err
}

type stubDocs struct {
	saved   []string
	removed []string
	saveErr error
}

func (s *stubDocs) Save(ctx context.Context, applicationID, filename string, r io.Reader) (string, error) {
	if s.saveErr != nil {
		return "", s.saveErr
	}
	if _, err := io.ReadAll(r); err != nil {
		return "", err
	}
	ref := applicationID + "/" + filename
	s.saved = append(s.saved, ref)
	return ref, nil
}

func (s *stubDocs) Remove(ref string) error {
	s.removed = append(s.removed, ref)
	return nil
}

// flakyRepository отказывает в UpdateApplication, пока fail выставлен.
type flakyRepository struct {
	*repository.MemoryRepository
	fail atomic.Bool
}

func (r *flakyRepository) UpdateApplication(ctx context.Context, app model.Application) error {
	if r.fail.Load() {
		return errors.New("connection reset")
	}
	return r.MemoryRepository.UpdateApplication(ctx, app)
}

func readUpload(t *testing.T, fs afero.Fs, ref string) string {
	t.Helper()
	data, err := afero.ReadFile(fs, path.Join("up", ref))
	require.NoError(t, err)
	return string(data)
}

func senior() model.UserProfile {
	return model.UserProfile{
		UserID:     1,
		Name:       "Kamala",
		Age:        intPtr(66),
		Gender:     model.GenderFemale,
		State:      "Odisha",
		Occupation: "Retired",
		Income:     intPtr(20000),
	}
}

func newTestService(t *testing.T, repo Repository, opts ...Option) *Service {
	t.Helper()
	c, err := catalog.Load([]byte(testCatalog))
	require.NoError(t, err)
	holder := catalog.NewHolder(c)
	tr := tracker.New(repo, holder, zap.NewNop())
	return NewService(repo, holder, matching.NewEngine(nil), tr, zap.NewNop(), opts...)
}

func TestSchemes_Paging(t *testing.T) {
	svc := newTestService(t, repository.NewMemoryRepository())

	assert.Len(t, svc.Schemes(0, 0), 3)
	page := svc.Schemes(1, 1)
	require.Len(t, page, 1)
	assert.Equal(t, "youth", page[0].ID)
	assert.Empty(t, svc.Schemes(10, 5))
	assert.Len(t, svc.Schemes(-3, 2), 2)
}

func TestRunAgent_RequiresCompletedProfile(t *testing.T) {
	repo := repository.NewMemoryRepository()
	require.NoError(t, repo.SaveProfile(context.Background(), model.UserProfile{UserID: 1, Name: "Kamala"}))
	svc := newTestService(t, repo)

	_, err := svc.RunAgent(context.Background(), 1)
	assert.ErrorIs(t, err, model.ErrProfileIncomplete)
}

func TestRunAgent_MarksAlreadyApplied(t *testing.T) {
	repo := repository.NewMemoryRepository()
	ctx := context.Background()
	require.NoError(t, repo.SaveProfile(ctx, senior()))
	svc := newTestService(t, repo)

	_, _, err := svc.Apply(ctx, 1, "open")
	require.NoError(t, err)

	run, err := svc.RunAgent(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, run.Summary.TotalSchemes)
	assert.Equal(t, 2, run.Summary.EligibleCount)
	assert.Equal(t, 1, run.AlreadyAppliedCount)

	require.Len(t, run.Results, 3)
	assert.Equal(t, "senior", run.Results[0].Scheme.ID)
	assert.True(t, run.Results[0].Verdict.Eligible)
	assert.False(t, run.Results[0].AlreadyApplied)
	assert.False(t, run.Results[1].Verdict.Eligible)
	assert.Equal(t, []string{"age < 30"}, run.Results[1].Verdict.FailedConditions)
	assert.True(t, run.Results[2].AlreadyApplied)
}

func TestRecommend_EligibleInCatalogOrder(t *testing.T) {
	svc := newTestService(t, repository.NewMemoryRepository(), WithProfileSource(&stubProfiles{profile: senior()}))

	schemes, err := svc.Recommend(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, schemes, 2)
	assert.Equal(t, "senior", schemes[0].ID)
	assert.Equal(t, "open", schemes[1].ID)
}

func TestCheckScheme_UnknownScheme(t *testing.T) {
	svc := newTestService(t, repository.NewMemoryRepository(), WithProfileSource(&stubProfiles{profile: senior()}))

	_, err := svc.CheckScheme(context.Background(), 1, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestAgentApply_NotEligible(t *testing.T) {
	repo := repository.NewMemoryRepository()
	svc := newTestService(t, repo, WithProfileSource(&stubProfiles{profile: senior()}))

	_, err := svc.AgentApply(context.Background(), 1, "youth")
	require.ErrorIs(t, err, model.ErrNotEligible)
	assert.Contains(t, err.Error(), "Not eligible: age < 30")

	apps, err := svc.Applications(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, apps)
}

func TestAgentApply_EligibleIsIdempotent(t *testing.T) {
	svc := newTestService(t, repository.NewMemoryRepository(), WithProfileSource(&stubProfiles{profile: senior()}))
	ctx := context.Background()

	first, err := svc.AgentApply(ctx, 1, "senior")
	require.NoError(t, err)
	assert.False(t, first.Existing)
	assert.Equal(t, []string{"Aadhaar", "Age Proof"}, first.Scheme.Documents)

	second, err := svc.AgentApply(ctx, 1, "senior")
	require.NoError(t, err)
	assert.True(t, second.Existing)
	assert.Equal(t, first.Application.ID, second.Application.ID)
}

func TestAgentApply_ProfileError(t *testing.T) {
	boom := errors.New("user service down")
	svc := newTestService(t, repository.NewMemoryRepository(), WithProfileSource(&stubProfiles{err: boom}))

	_, err := svc.AgentApply(context.Background(), 1, "senior")
	assert.ErrorIs(t, err, boom)
}

func TestUploadDocument(t *testing.T) {
	docs := &stubDocs{}
	svc := newTestService(t, repository.NewMemoryRepository(), WithDocumentStorage(docs))
	ctx := context.Background()

	app, _, err := svc.Apply(ctx, 1, "open")
	require.NoError(t, err)

	updated, err := svc.UploadDocument(ctx, 1, app.ID, "aadhaar.pdf", strings.NewReader("scan"))
	require.NoError(t, err)
	assert.Equal(t, model.ApplicationStatusSubmitted, updated.Status)
	assert.Equal(t, []string{app.ID + "/aadhaar.pdf"}, updated.Documents)
}

func TestUploadDocument_OtherUser(t *testing.T) {
	docs := &stubDocs{}
	svc := newTestService(t, repository.NewMemoryRepository(), WithDocumentStorage(docs))
	ctx := context.Background()

	app, _, err := svc.Apply(ctx, 1, "open")
	require.NoError(t, err)

	_, err = svc.UploadDocument(ctx, 2, app.ID, "a.pdf", strings.NewReader("x"))
	assert.ErrorIs(t, err, model.ErrForbidden)
	assert.Empty(t, docs.saved)
}

func TestUploadDocument_RejectedNotStored(t *testing.T) {
	docs := &stubDocs{}
	svc := newTestService(t, repository.NewMemoryRepository(), WithDocumentStorage(docs))
	ctx := context.Background()

	app, _, err := svc.Apply(ctx, 1, "open")
	require.NoError(t, err)
	for _, st := range []model.ApplicationStatus{
		model.ApplicationStatusSubmitted, model.ApplicationStatusUnderReview, model.ApplicationStatusRejected,
	} {
		_, err = svc.SetStatus(ctx, app.ID, st)
		require.NoError(t, err)
	}

	_, err = svc.UploadDocument(ctx, 1, app.ID, "a.pdf", strings.NewReader("x"))
	assert.ErrorIs(t, err, model.ErrInvalidState)
	assert.Empty(t, docs.saved)
}

func TestUpdateProfile_MergesAndValidates(t *testing.T) {
	repo := repository.NewMemoryRepository()
	svc := newTestService(t, repo)
	ctx := context.Background()

	p, err := svc.UpdateProfile(ctx, 5, ProfilePatch{
		Name:     strPtr(" Arjun "),
		Age:      intPtr(34),
		Gender:   strPtr("male"),
		Category: strPtr("obc"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), p.UserID)
	assert.Equal(t, "Arjun", p.Name)
	assert.Equal(t, model.GenderMale, p.Gender)
	assert.Equal(t, model.CategoryOBC, p.Category)
	assert.False(t, p.Completed())

	p, err = svc.UpdateProfile(ctx, 5, ProfilePatch{
		State:      strPtr("Punjab"),
		Occupation: strPtr("Farmer"),
		Income:     intPtr(90000),
	})
	require.NoError(t, err)
	assert.Equal(t, "Arjun", p.Name)
	assert.True(t, p.Completed())

	_, err = svc.UpdateProfile(ctx, 5, ProfilePatch{Age: intPtr(-1), Pincode: strPtr("12")})
	require.ErrorIs(t, err, model.ErrValidation)

	stored, err := svc.Profile(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(34), *stored.Age)
}

func TestUpdateProfile_ReadOnlySource(t *testing.T) {
	svc := newTestService(t, repository.NewMemoryRepository(), WithProfileSource(&stubProfiles{profile: senior()}))

	_, err := svc.UpdateProfile(context.Background(), 1, ProfilePatch{Name: strPtr("x")})
	assert.ErrorIs(t, err, model.ErrProfileReadOnly)
}

func TestUploadDocument_SameNameKeepsEarlierFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	docs, err := documents.NewStorage(fs, "up")
	require.NoError(t, err)
	svc := newTestService(t, repository.NewMemoryRepository(), WithDocumentStorage(docs))
	ctx := context.Background()

	app, _, err := svc.Apply(ctx, 1, "open")
	require.NoError(t, err)

	_, err = svc.UploadDocument(ctx, 1, app.ID, "aadhaar.pdf", strings.NewReader("FIRST"))
	require.NoError(t, err)
	updated, err := svc.UploadDocument(ctx, 1, app.ID, "aadhaar.pdf", strings.NewReader("SECOND"))
	require.NoError(t, err)

	require.Len(t, updated.Documents, 2)
	assert.NotEqual(t, updated.Documents[0], updated.Documents[1])
	assert.Equal(t, "FIRST", readUpload(t, fs, updated.Documents[0]))
	assert.Equal(t, "SECOND", readUpload(t, fs, updated.Documents[1]))
}

func TestUploadDocument_FailedAttachRemovesOnlyNewFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	docs, err := documents.NewStorage(fs, "up")
	require.NoError(t, err)
	repo := &flakyRepository{MemoryRepository: repository.NewMemoryRepository()}
	svc := newTestService(t, repo, WithDocumentStorage(docs))
	ctx := context.Background()

	app, _, err := svc.Apply(ctx, 1, "open")
	require.NoError(t, err)
	first, err := svc.UploadDocument(ctx, 1, app.ID, "aadhaar.pdf", strings.NewReader("FIRST"))
	require.NoError(t, err)

	repo.fail.Store(true)
	_, err = svc.UploadDocument(ctx, 1, app.ID, "aadhaar.pdf", strings.NewReader("SECOND"))
	require.Error(t, err)

	assert.Equal(t, "FIRST", readUpload(t, fs, first.Documents[0]))
	entries, err := afero.ReadDir(fs, path.Join("up", app.ID))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	stored, err := svc.Applications(ctx, 1)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, first.Documents, stored[0].Documents)
}
