package releases

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/releasekeeper/internal/common"
	"github.com/dmitrijs2005/releasekeeper/internal/server/models"
	"github.com/dmitrijs2005/releasekeeper/internal/server/signature"
)

// fakeProvider answers from in-memory tables and records calls.
type fakeProvider struct {
	mu        sync.Mutex
	statuses  map[string]*models.SignatureRequest
	gone      map[string]bool
	failing   map[string]error
	delays    map[string]time.Duration
	sent      []*signature.SendRequest
	sendErrs  map[string]error // by signer email
	cancelled []string
	cancelErr error
	reminded  []string
	fileURL   string
	fileErr   error
	seq       int

	getCalls    atomic.Int32
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		statuses: map[string]*models.SignatureRequest{},
		gone:     map[string]bool{},
		failing:  map[string]error{},
		delays:   map[string]time.Duration{},
		sendErrs: map[string]error{},
	}
}

func (f *fakeProvider) SendWithTemplate(_ context.Context, req *signature.SendRequest) (*models.SignatureRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sent = append(f.sent, req)
	if err := f.sendErrs[req.Signers[0].EmailAddress]; err != nil {
		return nil, err
	}
	f.seq++
	return &models.SignatureRequest{
		SignatureRequestID: fmt.Sprintf("sr%d", f.seq),
		Subject:            req.Subject,
		TestMode:           req.TestMode,
	}, nil
}

func (f *fakeProvider) Get(ctx context.Context, id string) (*models.SignatureRequest, error) {
	f.getCalls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}

	f.mu.Lock()
	delay := f.delays[id]
	gone := f.gone[id]
	failErr := f.failing[id]
	status := f.statuses[id]
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", common.ErrCollaborator, ctx.Err())
		}
	}

	switch {
	case gone:
		return nil, fmt.Errorf("lookup %s: %w", id, common.ErrResourceGone)
	case failErr != nil:
		return nil, failErr
	case status != nil:
		c := *status
		return &c, nil
	default:
		return &models.SignatureRequest{SignatureRequestID: id, IsComplete: true}, nil
	}
}

func (f *fakeProvider) Cancel(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled = append(f.cancelled, id)
	return nil
}

func (f *fakeProvider) Remind(_ context.Context, id, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reminded = append(f.reminded, id+"/"+email)
	return nil
}

func (f *fakeProvider) FileURL(_ context.Context, id, fileType string) (string, error) {
	if f.fileErr != nil {
		return "", f.fileErr
	}
	if f.fileURL != "" {
		return f.fileURL, nil
	}
	return "https://files.example/" + id + "." + fileType, nil
}

var errUpstream = errors.New("upstream 500")
