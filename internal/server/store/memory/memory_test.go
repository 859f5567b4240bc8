package memory

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/releasekeeper/internal/common"
	"github.com/dmitrijs2005/releasekeeper/internal/server/models"
	"github.com/dmitrijs2005/releasekeeper/internal/server/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	userID    = "qwertyuiopasdfghjklzxcvb"
	releaseID = "abcdefghijklmnopqrstuvwx"
)

func seeded(t *testing.T) *Store {
	t.Helper()
	s := New()
	require.NoError(t, s.CreateUser(context.Background(), &models.User{ID: userID, Email: "Jane@Example.com", PasswordHash: []byte("h")}))
	return s
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)

	err := s.CreateUser(ctx, &models.User{ID: "otherotherotherotherothe", Email: "jane@example.com"})
	assert.ErrorIs(t, err, common.ErrAlreadyExists)

	u, err := s.FindUserByEmail(ctx, "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, userID, u.ID)

	_, err = s.FindUserByEmail(ctx, "ghost@example.com")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	require.NoError(t, s.SetSession(ctx, userID, "session"))
	u, err = s.FindUserByID(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "session", u.SessionID)

	assert.ErrorIs(t, s.SetSession(ctx, "nobody", "x"), common.ErrorNotFound)
	_, err = s.FindUserByID(ctx, "nobody")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestGetReleases_EmptyVersusAbsent(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)

	got, err := s.GetReleases(ctx, userID)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	_, err = s.GetReleases(ctx, "nobody")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestApplyRelease_CreateThenPartialMerge(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)

	create := &store.Update{
		ReleaseID: releaseID,
		Init:      models.NewRelease(),
		Assignments: []store.Assignment{
			{Path: []string{models.FieldCreated}, Value: int64(100)},
			{Path: []string{models.FieldModified}, Value: int64(100)},
			{Path: []string{models.FieldTitle}, Value: "first"},
			{Path: []string{models.FieldDescription}, Value: "desc"},
		},
	}
	require.NoError(t, s.ApplyRelease(ctx, userID, create))
	require.NoError(t, s.AppendSignatureRequest(ctx, userID, releaseID, &models.SignatureRequest{SignatureRequestID: "sr1"}))

	merge := &store.Update{
		ReleaseID: releaseID,
		Assignments: []store.Assignment{
			{Path: []string{models.FieldModified}, Value: int64(200)},
			{Path: []string{models.FieldTitle}, Value: "second"},
		},
	}
	require.NoError(t, s.ApplyRelease(ctx, userID, merge))

	got, err := s.GetReleases(ctx, userID)
	require.NoError(t, err)
	r := got[releaseID]
	require.NotNil(t, r)
	assert.Equal(t, "second", r.Title)
	assert.Equal(t, "desc", r.Description)
	assert.Equal(t, int64(100), r.Created)
	assert.Equal(t, int64(200), r.Modified)
	require.Len(t, r.RequestedSignatures, 1)
	assert.Equal(t, "sr1", r.RequestedSignatures[0].SignatureRequestID)
}

func TestApplyRelease_MissingRelease(t *testing.T) {
	s := seeded(t)
	err := s.ApplyRelease(context.Background(), userID, &store.Update{
		ReleaseID:   releaseID,
		Assignments: []store.Assignment{{Path: []string{models.FieldTitle}, Value: "x"}},
	})
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestSignatureRequests_AppendRemove(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)
	require.NoError(t, s.ReplaceReleases(ctx, userID, map[string]*models.Release{releaseID: models.NewRelease()}))

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.AppendSignatureRequest(ctx, userID, releaseID, &models.SignatureRequest{SignatureRequestID: id}))
	}
	require.NoError(t, s.RemoveSignatureRequest(ctx, userID, releaseID, "b"))

	got, err := s.GetReleases(ctx, userID)
	require.NoError(t, err)
	ids := []string{}
	for _, sr := range got[releaseID].RequestedSignatures {
		ids = append(ids, sr.SignatureRequestID)
	}
	assert.Equal(t, []string{"a", "c"}, ids)

	assert.ErrorIs(t, s.RemoveSignatureRequest(ctx, userID, releaseID, "zzz"), common.ErrorNotFound)
	assert.ErrorIs(t, s.AppendSignatureRequest(ctx, userID, "missingmissingmissingmis", &models.SignatureRequest{}), common.ErrorNotFound)
}

func TestRemoveRelease(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)
	require.NoError(t, s.ReplaceReleases(ctx, userID, map[string]*models.Release{releaseID: models.NewRelease()}))
	require.NoError(t, s.RemoveRelease(ctx, userID, releaseID))

	got, err := s.GetReleases(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGetReleases_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)
	require.NoError(t, s.ReplaceReleases(ctx, userID, map[string]*models.Release{releaseID: {Title: "t", RequestedSignatures: []*models.SignatureRequest{}}}))

	got, err := s.GetReleases(ctx, userID)
	require.NoError(t, err)
	got[releaseID].Title = "mutated"
	delete(got, releaseID)

	again, err := s.GetReleases(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "t", again[releaseID].Title)
}
