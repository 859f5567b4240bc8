package releases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dmitrijs2005/releasekeeper/internal/common"
	"github.com/dmitrijs2005/releasekeeper/internal/logging"
	"github.com/dmitrijs2005/releasekeeper/internal/server/models"
	"github.com/dmitrijs2005/releasekeeper/internal/server/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedStore(t *testing.T, releases map[string]*models.Release) *memory.Store {
	t.Helper()
	s := memory.New()
	require.NoError(t, s.CreateUser(context.Background(), &models.User{ID: testUserID, Email: "owner@example.com"}))
	if releases != nil {
		require.NoError(t, s.ReplaceReleases(context.Background(), testUserID, releases))
	}
	return s
}

func refs(ids ...string) []*models.SignatureRequest {
	out := make([]*models.SignatureRequest, 0, len(ids))
	for _, id := range ids {
		out = append(out, &models.SignatureRequest{SignatureRequestID: id})
	}
	return out
}

func refIDs(rs []*models.SignatureRequest) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.SignatureRequestID)
	}
	return out
}

func TestReconcile_ReplaceDropKeep(t *testing.T) {
	ctx := context.Background()
	st := seedStore(t, map[string]*models.Release{
		testReleaseID: {Title: "X", RequestedSignatures: refs("a", "b", "c")},
	})
	p := newFakeProvider()
	p.statuses["a"] = &models.SignatureRequest{SignatureRequestID: "a", IsComplete: true, Subject: "fresh"}
	p.gone["b"] = true
	p.failing["c"] = errUpstream

	r := NewReconciler(st, p, logging.NewNop())
	res, err := r.Reconcile(ctx, testUserID)
	require.NoError(t, err)
	require.NoError(t, res.PersistErr)

	got := res.Releases[testReleaseID]
	assert.Equal(t, []string{"a", "c"}, refIDs(got.RequestedSignatures))
	assert.Equal(t, "fresh", got.RequestedSignatures[0].Subject)
	assert.True(t, got.RequestedSignatures[0].IsComplete)
	assert.Equal(t, "X", got.Title)
	assert.Equal(t, 1, res.Dropped)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "c", res.Failures[0].SignatureRequestID)
	assert.Equal(t, 2, res.Failures[0].Index)
	assert.ErrorIs(t, res.Failures[0].Err, errUpstream)

	stored, err := st.GetReleases(ctx, testUserID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, refIDs(stored[testReleaseID].RequestedSignatures))
}

func TestReconcile_PreservesOrderUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	releases := map[string]*models.Release{}
	p := newFakeProvider()
	want := map[string][]string{}

	for r, rid := range []string{"aaaaaaaaaaaaaaaaaaaaaaaa", "bbbbbbbbbbbbbbbbbbbbbbbb", "cccccccccccccccccccccccc"} {
		var ids []string
		for i := 0; i < 7; i++ {
			id := fmt.Sprintf("%d-%d", r, i)
			ids = append(ids, id)
			// later refs answer first
			p.delays[id] = time.Duration(7-i) * 3 * time.Millisecond
		}
		releases[rid] = &models.Release{RequestedSignatures: refs(ids...)}
		want[rid] = ids
	}

	st := seedStore(t, releases)
	res, err := NewReconciler(st, p, logging.NewNop(), WithConcurrency(5)).Reconcile(ctx, testUserID)
	require.NoError(t, err)

	for rid, ids := range want {
		assert.Equal(t, ids, refIDs(res.Releases[rid].RequestedSignatures), "release %s", rid)
	}
	assert.Empty(t, res.Failures)
}

func TestReconcile_BoundsConcurrency(t *testing.T) {
	ids := make([]string, 0, 12)
	p := newFakeProvider()
	for i := 0; i < 12; i++ {
		id := fmt.Sprintf("r%d", i)
		ids = append(ids, id)
		p.delays[id] = 10 * time.Millisecond
	}
	st := seedStore(t, map[string]*models.Release{testReleaseID: {RequestedSignatures: refs(ids...)}})

	_, err := NewReconciler(st, p, logging.NewNop(), WithConcurrency(3)).Reconcile(context.Background(), testUserID)
	require.NoError(t, err)

	assert.Equal(t, int32(12), p.getCalls.Load())
	assert.LessOrEqual(t, p.maxInFlight.Load(), int32(3))
}

func TestReconcile_FetchTimeoutCountsAsFailure(t *testing.T) {
	p := newFakeProvider()
	p.delays["slow"] = time.Second
	st := seedStore(t, map[string]*models.Release{testReleaseID: {RequestedSignatures: refs("slow", "fast")}})

	res, err := NewReconciler(st, p, logging.NewNop(), WithFetchTimeout(20*time.Millisecond)).Reconcile(context.Background(), testUserID)
	require.NoError(t, err)

	assert.Equal(t, []string{"slow", "fast"}, refIDs(res.Releases[testReleaseID].RequestedSignatures))
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "slow", res.Failures[0].SignatureRequestID)
	assert.ErrorIs(t, res.Failures[0].Err, context.DeadlineExceeded)
}

func TestReconcile_MissingUser(t *testing.T) {
	p := newFakeProvider()
	st := memory.New()

	_, err := NewReconciler(st, p, logging.NewNop()).Reconcile(context.Background(), testUserID)
	assert.ErrorIs(t, err, common.ErrorNotFound)
	assert.Zero(t, p.getCalls.Load())
}

func TestReconcile_EmptyCollection(t *testing.T) {
	st := seedStore(t, nil)
	res, err := NewReconciler(st, newFakeProvider(), logging.NewNop()).Reconcile(context.Background(), testUserID)
	require.NoError(t, err)
	assert.NotNil(t, res.Releases)
	assert.Empty(t, res.Releases)
}

type failingReplaceStore struct {
	*memory.Store
}

func (failingReplaceStore) ReplaceReleases(context.Context, string, map[string]*models.Release) error {
	return errors.New("throttled")
}

func TestReconcile_PersistFailureStillReturnsView(t *testing.T) {
	st := failingReplaceStore{seedStore(t, map[string]*models.Release{testReleaseID: {RequestedSignatures: refs("a", "b")}})}
	p := newFakeProvider()
	p.gone["a"] = true

	res, err := NewReconciler(st, p, logging.NewNop()).Reconcile(context.Background(), testUserID)
	require.NoError(t, err)
	require.Error(t, res.PersistErr)
	assert.Equal(t, []string{"b"}, refIDs(res.Releases[testReleaseID].RequestedSignatures))

	stored, err := st.GetReleases(context.Background(), testUserID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, refIDs(stored[testReleaseID].RequestedSignatures))
}

func TestReconcile_Idempotent(t *testing.T) {
	ctx := context.Background()
	st := seedStore(t, map[string]*models.Release{
		testReleaseID:              {Title: "one", RequestedSignatures: refs("a", "b", "c")},
		"zzzzzzzzzzzzzzzzzzzzzzzz": {Title: "two", RequestedSignatures: refs("d")},
	})
	p := newFakeProvider()
	p.gone["b"] = true
	p.failing["d"] = errUpstream
	r := NewReconciler(st, p, logging.NewNop())

	_, err := r.Reconcile(ctx, testUserID)
	require.NoError(t, err)
	first, err := st.GetReleases(ctx, testUserID)
	require.NoError(t, err)

	_, err = r.Reconcile(ctx, testUserID)
	require.NoError(t, err)
	second, err := st.GetReleases(ctx, testUserID)
	require.NoError(t, err)

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	assert.JSONEq(t, string(a), string(b))
}

func TestReconcile_CancelledContextStartsNoCalls(t *testing.T) {
	st := seedStore(t, map[string]*models.Release{testReleaseID: {RequestedSignatures: refs("a", "b")}})
	p := newFakeProvider()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := NewReconciler(st, p, logging.NewNop()).Reconcile(ctx, testUserID)
	require.NoError(t, err)
	assert.Zero(t, p.getCalls.Load())
	assert.Equal(t, []string{"a", "b"}, refIDs(res.Releases[testReleaseID].RequestedSignatures))
	assert.Len(t, res.Failures, 2)
	assert.ErrorIs(t, res.Failures[0].Err, context.Canceled)
}

func TestReconcile_RefWithoutIDIsKept(t *testing.T) {
	st := seedStore(t, map[string]*models.Release{testReleaseID: {RequestedSignatures: refs("", "a")}})
	p := newFakeProvider()

	res, err := NewReconciler(st, p, logging.NewNop()).Reconcile(context.Background(), testUserID)
	require.NoError(t, err)
	assert.Equal(t, []string{"", "a"}, refIDs(res.Releases[testReleaseID].RequestedSignatures))
	assert.Len(t, res.Failures, 1)
	assert.Equal(t, int32(1), p.getCalls.Load())
}

func TestReconcile_MismatchedSnapshotKeepsRef(t *testing.T) {
	ctx := context.Background()
	st := seedStore(t, map[string]*models.Release{testReleaseID: {RequestedSignatures: refs("abc123", "b")}})
	p := newFakeProvider()
	p.statuses["abc123"] = &models.SignatureRequest{IsComplete: true}
	p.statuses["b"] = &models.SignatureRequest{SignatureRequestID: "other"}

	res, err := NewReconciler(st, p, logging.NewNop()).Reconcile(ctx, testUserID)
	require.NoError(t, err)
	assert.Equal(t, []string{"abc123", "b"}, refIDs(res.Releases[testReleaseID].RequestedSignatures))
	require.Len(t, res.Failures, 2)
	assert.Equal(t, "abc123", res.Failures[0].SignatureRequestID)
	assert.Equal(t, "b", res.Failures[1].SignatureRequestID)

	stored, err := st.GetReleases(ctx, testUserID)
	require.NoError(t, err)
	assert.Equal(t, []string{"abc123", "b"}, refIDs(stored[testReleaseID].RequestedSignatures))
}
