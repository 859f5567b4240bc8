// Package store declares the persistence contracts for users and their
// release collections. Backends live in the dynamo, postgres and memory
// subpackages.
package store

import (
	"context"

	"github.com/dmitrijs2005/releasekeeper/internal/server/models"
)

// ReleaseStore persists a user's release collection.
//
// Every method returns common.ErrorNotFound when the user does not exist.
// ApplyRelease, AppendSignatureRequest and RemoveSignatureRequest also return
// it when the target release is absent (and the update is not a creation).
type ReleaseStore interface {
	GetReleases(ctx context.Context, userID string) (map[string]*models.Release, error)
	ApplyRelease(ctx context.Context, userID string, u *Update) error
	ReplaceReleases(ctx context.Context, userID string, releases map[string]*models.Release) error
	RemoveRelease(ctx context.Context, userID, releaseID string) error
	AppendSignatureRequest(ctx context.Context, userID, releaseID string, sr *models.SignatureRequest) error
	RemoveSignatureRequest(ctx context.Context, userID, releaseID, requestID string) error
}

// UserStore persists accounts. CreateUser returns common.ErrAlreadyExists
// when the email is taken.
type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindUserByID(ctx context.Context, userID string) (*models.User, error)
	SetSession(ctx context.Context, userID, sessionID string) error
}

// Store is implemented by every backend.
type Store interface {
	ReleaseStore
	UserStore
}
