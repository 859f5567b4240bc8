package releases

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dmitrijs2005/releasekeeper/internal/common"
	"github.com/dmitrijs2005/releasekeeper/internal/logging"
	"github.com/dmitrijs2005/releasekeeper/internal/server/models"
	"github.com/dmitrijs2005/releasekeeper/internal/server/signature"
	"github.com/dmitrijs2005/releasekeeper/internal/server/store"
	"golang.org/x/sync/errgroup"
)

const (
	defaultConcurrency  = 4
	defaultFetchTimeout = 10 * time.Second
)

type outcome int

const (
	outcomeFailed outcome = iota
	outcomeReplaced
	outcomeGone
)

// RefFailure records a signature ref that was kept unchanged because its
// status could not be fetched.
type RefFailure struct {
	ReleaseID          string
	Index              int
	SignatureRequestID string
	Err                error
}

// Result is the reconciled view of a user's releases. PersistErr is set
// when the view could not be written back; Releases is still valid.
type Result struct {
	Releases   map[string]*models.Release
	Failures   []RefFailure
	Dropped    int
	PersistErr error
}

type ReconcilerOption func(*Reconciler)

// WithConcurrency bounds the number of in-flight status fetches.
func WithConcurrency(n int) ReconcilerOption {
	return func(r *Reconciler) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithFetchTimeout bounds each status fetch.
func WithFetchTimeout(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) {
		if d > 0 {
			r.fetchTimeout = d
		}
	}
}

// Reconciler refreshes every stored signature snapshot from the provider.
type Reconciler struct {
	store        store.ReleaseStore
	provider     signature.Provider
	logger       logging.Logger
	concurrency  int
	fetchTimeout time.Duration
}

func NewReconciler(st store.ReleaseStore, p signature.Provider, logger logging.Logger, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		store:        st,
		provider:     p,
		logger:       logger.With("module", "reconciler"),
		concurrency:  defaultConcurrency,
		fetchTimeout: defaultFetchTimeout,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

type slot struct {
	releaseID string
	index     int
	ref       *models.SignatureRequest
	outcome   outcome
	fresh     *models.SignatureRequest
	err       error
}

// Reconcile fetches the current status of every signature ref of userID,
// replaces refs that answered, drops refs the provider reports gone and
// keeps the rest unchanged. The rebuilt collection is written back with a
// single full replace.
//
// A missing user returns common.ErrorNotFound. A failed write is reported
// in Result.PersistErr, not as an error.
func (r *Reconciler) Reconcile(ctx context.Context, userID string) (*Result, error) {
	current, err := r.store.GetReleases(ctx, userID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(current))
	for id := range current {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	releases := make(map[string]*models.Release, len(current))
	var slots []slot
	for _, id := range ids {
		rel := current[id].Clone()
		if rel == nil {
			rel = models.NewRelease()
		}
		releases[id] = rel
		for i, ref := range rel.RequestedSignatures {
			slots = append(slots, slot{releaseID: id, index: i, ref: ref})
		}
	}

	r.fetchAll(ctx, slots)

	result := &Result{Releases: releases}
	pos := 0
	for _, id := range ids {
		rel := releases[id]
		rebuilt := make([]*models.SignatureRequest, 0, len(rel.RequestedSignatures))
		for range rel.RequestedSignatures {
			s := slots[pos]
			pos++
			switch s.outcome {
			case outcomeReplaced:
				rebuilt = append(rebuilt, s.fresh)
			case outcomeGone:
				result.Dropped++
			default:
				rebuilt = append(rebuilt, s.ref)
				result.Failures = append(result.Failures, RefFailure{
					ReleaseID:          s.releaseID,
					Index:              s.index,
					SignatureRequestID: refID(s.ref),
					Err:                s.err,
				})
			}
		}
		rel.RequestedSignatures = rebuilt
	}

	if err := r.store.ReplaceReleases(ctx, userID, releases); err != nil {
		r.logger.Error(ctx, "failed to persist reconciled releases", "user_id", userID, "error", err)
		result.PersistErr = err
	}

	return result, nil
}

// fetchAll fills in every slot. Slots are written by index so the result
// does not depend on completion order.
func (r *Reconciler) fetchAll(ctx context.Context, slots []slot) {
	var g errgroup.Group
	g.SetLimit(r.concurrency)

	for i := range slots {
		if err := ctx.Err(); err != nil {
			for j := i; j < len(slots); j++ {
				slots[j].err = fmt.Errorf("not started: %w", err)
			}
			break
		}

		s := &slots[i]
		g.Go(func() error {
			r.fetchOne(ctx, s)
			return nil
		})
	}

	_ = g.Wait()
}

func (r *Reconciler) fetchOne(ctx context.Context, s *slot) {
	id := refID(s.ref)
	if id == "" {
		s.err = errors.New("signature ref has no id")
		r.logger.Warn(ctx, "skipping signature ref without id", "release_id", s.releaseID, "index", s.index)
		return
	}

	fctx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	defer cancel()

	fresh, err := r.provider.Get(fctx, id)
	switch {
	case err == nil && fresh != nil && fresh.SignatureRequestID == id:
		s.outcome = outcomeReplaced
		s.fresh = fresh
	case errors.Is(err, common.ErrResourceGone):
		s.outcome = outcomeGone
		r.logger.Info(ctx, "signature request gone, dropping ref", "release_id", s.releaseID, "signature_request_id", id)
	default:
		if err == nil {
			err = errors.New("status response does not match ref")
		}
		s.err = err
		r.logger.Warn(ctx, "failed to fetch signature status", "release_id", s.releaseID, "signature_request_id", id, "error", err)
	}
}

func refID(ref *models.SignatureRequest) string {
	if ref == nil {
		return ""
	}
	return ref.SignatureRequestID
}
