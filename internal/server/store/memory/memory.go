// Package memory is an in-process store backend for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/dmitrijs2005/releasekeeper/internal/common"
	"github.com/dmitrijs2005/releasekeeper/internal/server/models"
	"github.com/dmitrijs2005/releasekeeper/internal/server/store"
)

type Store struct {
	mu      sync.RWMutex
	users   map[string]*models.User
	byEmail map[string]string
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:   make(map[string]*models.User),
		byEmail: make(map[string]string),
	}
}

func (s *Store) CreateUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(u.Email)
	if _, ok := s.byEmail[email]; ok {
		return common.ErrAlreadyExists
	}
	if _, ok := s.users[u.ID]; ok {
		return common.ErrAlreadyExists
	}

	s.users[u.ID] = copyUser(u)
	s.byEmail[email] = u.ID
	return nil
}

func (s *Store) FindUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return copyUser(s.users[id]), nil
}

func (s *Store) FindUserByID(_ context.Context, userID string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return copyUser(u), nil
}

func (s *Store) SetSession(_ context.Context, userID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return common.ErrorNotFound
	}
	u.SessionID = sessionID
	return nil
}

func (s *Store) GetReleases(_ context.Context, userID string) (map[string]*models.Release, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return copyReleases(u.Releases), nil
}

func (s *Store) ApplyRelease(_ context.Context, userID string, upd *store.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return common.ErrorNotFound
	}

	var r *models.Release
	if upd.Create() {
		r = upd.Init.Clone()
	} else {
		existing, ok := u.Releases[upd.ReleaseID]
		if !ok {
			return fmt.Errorf("release %s: %w", upd.ReleaseID, common.ErrorNotFound)
		}
		r = existing.Clone()
	}

	if err := upd.ApplyTo(r); err != nil {
		return err
	}
	u.Releases[upd.ReleaseID] = r
	return nil
}

func (s *Store) ReplaceReleases(_ context.Context, userID string, releases map[string]*models.Release) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return common.ErrorNotFound
	}
	u.Releases = copyReleases(releases)
	return nil
}

func (s *Store) RemoveRelease(_ context.Context, userID, releaseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return common.ErrorNotFound
	}
	delete(u.Releases, releaseID)
	return nil
}

func (s *Store) AppendSignatureRequest(_ context.Context, userID, releaseID string, sr *models.SignatureRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.release(userID, releaseID)
	if err != nil {
		return err
	}
	r.RequestedSignatures = append(r.RequestedSignatures, sr)
	return nil
}

func (s *Store) RemoveSignatureRequest(_ context.Context, userID, releaseID, requestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.release(userID, releaseID)
	if err != nil {
		return err
	}
	idx := r.FindSignatureRequest(requestID)
	if idx < 0 {
		return fmt.Errorf("signature request %s: %w", requestID, common.ErrorNotFound)
	}
	r.RequestedSignatures = append(r.RequestedSignatures[:idx:idx], r.RequestedSignatures[idx+1:]...)
	return nil
}

// release must be called with the lock held.
func (s *Store) release(userID, releaseID string) (*models.Release, error) {
	u, ok := s.users[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	r, ok := u.Releases[releaseID]
	if !ok {
		return nil, fmt.Errorf("release %s: %w", releaseID, common.ErrorNotFound)
	}
	return r, nil
}

func copyUser(u *models.User) *models.User {
	c := *u
	c.PasswordHash = append([]byte(nil), u.PasswordHash...)
	c.Releases = copyReleases(u.Releases)
	return &c
}

func copyReleases(in map[string]*models.Release) map[string]*models.Release {
	out := make(map[string]*models.Release, len(in))
	for id, r := range in {
		out[id] = r.Clone()
	}
	return out
}
