package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/scheme-eligibility/internal/model"
)

func newApp(id string, userID int64, schemeID string, status model.ApplicationStatus) model.Application {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return model.Application{
		ID:        id,
		UserID:    userID,
		SchemeID:  schemeID,
		Status:    status,
		Documents: []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestMemory_CreateRejectsSecondActive(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()

	require.NoError(t, r.CreateApplication(ctx, newApp("a", 1, "s", model.ApplicationStatusPending)))
	err := r.CreateApplication(ctx, newApp("b", 1, "s", model.ApplicationStatusPending))
	assert.ErrorIs(t, err, ErrDuplicateActive)

	// Другой пользователь или другая программа не конфликтуют.
	require.NoError(t, r.CreateApplication(ctx, newApp("c", 2, "s", model.ApplicationStatusPending)))
	require.NoError(t, r.CreateApplication(ctx, newApp("d", 1, "t", model.ApplicationStatusPending)))
}

func TestMemory_RejectedDoesNotBlock(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()

	require.NoError(t, r.CreateApplication(ctx, newApp("a", 1, "s", model.ApplicationStatusRejected)))
	require.NoError(t, r.CreateApplication(ctx, newApp("b", 1, "s", model.ApplicationStatusPending)))

	active, err := r.FindActiveApplication(ctx, 1, "s")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "b", active.ID)
}

func TestMemory_FindActiveNone(t *testing.T) {
	r := NewMemoryRepository()

	active, err := r.FindActiveApplication(context.Background(), 1, "s")
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestMemory_ReturnsCopies(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()

	app := newApp("a", 1, "s", model.ApplicationStatusPending)
	app.Documents = []string{"x"}
	require.NoError(t, r.CreateApplication(ctx, app))

	app.Documents[0] = "mutated"
	got, err := r.GetApplication(ctx, "a")
	require.NoError(t, err)
	got.Documents[0] = "mutated-again"

	again, err := r.GetApplication(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, again.Documents)
}

func TestMemory_UpdateUnknown(t *testing.T) {
	r := NewMemoryRepository()

	err := r.UpdateApplication(context.Background(), newApp("a", 1, "s", model.ApplicationStatusSubmitted))
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestMemory_UpdateKeepsIdentity(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()

	require.NoError(t, r.CreateApplication(ctx, newApp("a", 1, "s", model.ApplicationStatusPending)))

	upd := newApp("a", 99, "other", model.ApplicationStatusSubmitted)
	upd.Documents = []string{"doc"}
	upd.UpdatedAt = upd.UpdatedAt.Add(time.Hour)
	require.NoError(t, r.UpdateApplication(ctx, upd))

	got, err := r.GetApplication(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.UserID)
	assert.Equal(t, "s", got.SchemeID)
	assert.Equal(t, model.ApplicationStatusSubmitted, got.Status)
	assert.Equal(t, []string{"doc"}, got.Documents)
	assert.Equal(t, upd.UpdatedAt, got.UpdatedAt)
}

func TestMemory_ListByUserInOrder(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()

	require.NoError(t, r.CreateApplication(ctx, newApp("a", 1, "s1", model.ApplicationStatusPending)))
	require.NoError(t, r.CreateApplication(ctx, newApp("b", 2, "s1", model.ApplicationStatusPending)))
	require.NoError(t, r.CreateApplication(ctx, newApp("c", 1, "s2", model.ApplicationStatusPending)))

	apps, err := r.ListApplicationsByUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, apps, 2)
	assert.Equal(t, "a", apps[0].ID)
	assert.Equal(t, "c", apps[1].ID)

	none, err := r.ListApplicationsByUser(ctx, 3)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestMemory_Profiles(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()

	_, err := r.GetProfile(ctx, 1)
	assert.ErrorIs(t, err, model.ErrNotFound)

	age := int64(40)
	require.NoError(t, r.SaveProfile(ctx, model.UserProfile{UserID: 1, Name: "Meera", Age: &age}))
	age = 41

	got, err := r.GetProfile(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Meera", got.Name)
	require.NotNil(t, got.Age)
	assert.Equal(t, int64(40), *got.Age)
}
