package store

import (
	"testing"

	"github.com/dmitrijs2005/releasekeeper/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdate_ApplyTo_MergesOnlyNamedFields(t *testing.T) {
	r := &models.Release{
		Title:               "old",
		Description:         "keep me",
		Created:             1,
		RequestedSignatures: []*models.SignatureRequest{{SignatureRequestID: "x"}},
	}
	u := &Update{
		ReleaseID: "abcdefghijklmnopqrstuvwx",
		Assignments: []Assignment{
			{Path: []string{models.FieldModified}, Value: int64(5)},
			{Path: []string{models.FieldTitle}, Value: "new"},
			{Path: []string{models.FieldSenderInfo}, Value: models.SenderInfo{EmailAddress: "a@b.com", Name: "A"}},
		},
	}

	require.NoError(t, u.ApplyTo(r))
	assert.Equal(t, "new", r.Title)
	assert.Equal(t, "keep me", r.Description)
	assert.Equal(t, int64(1), r.Created)
	assert.Equal(t, int64(5), r.Modified)
	assert.Equal(t, "A", r.SenderInfo.Name)
	assert.Len(t, r.RequestedSignatures, 1)
	assert.False(t, u.Create())
}

func TestUpdate_ApplyTo_RejectsUnknownPath(t *testing.T) {
	u := &Update{Assignments: []Assignment{{Path: []string{"requestedSignatures"}, Value: nil}}}
	assert.Error(t, u.ApplyTo(&models.Release{}))

	u = &Update{Assignments: []Assignment{{Path: []string{"a", "b"}, Value: nil}}}
	assert.Error(t, u.ApplyTo(&models.Release{}))
}

func TestUpdate_FieldsAndValue(t *testing.T) {
	u := &Update{
		Init: models.NewRelease(),
		Assignments: []Assignment{
			{Path: []string{"created"}, Value: int64(1)},
			{Path: []string{"modified"}, Value: int64(1)},
		},
	}
	assert.True(t, u.Create())
	assert.Equal(t, []string{"created", "modified"}, u.Fields())

	v, ok := u.Value("created")
	assert.True(t, ok)
	assert.Equal(t, int64(1), v)

	_, ok = u.Value("title")
	assert.False(t, ok)
}

func TestFullPath(t *testing.T) {
	assert.Equal(t, []string{"releases", "id", "title"}, FullPath("id", "title"))
	assert.Equal(t, []string{"releases", "id"}, FullPath("id"))
}
