// Package signature talks to the e-signature provider (Dropbox Sign API v3).
package signature

import (
	"context"

	"github.com/dmitrijs2005/releasekeeper/internal/server/models"
)

// Signer roles defined on the release template.
const (
	RoleSubject = "Subject"
	RoleSender  = "Sender"
)

type Signer struct {
	Role         string `json:"role"`
	Name         string `json:"name"`
	EmailAddress string `json:"email_address"`
}

type CustomField struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Editor   string `json:"editor,omitempty"`
	Required bool   `json:"required"`
}

type SigningOptions struct {
	Draw        bool   `json:"draw"`
	Type        bool   `json:"type"`
	Upload      bool   `json:"upload"`
	Phone       bool   `json:"phone"`
	DefaultType string `json:"default_type"`
}

// SendRequest is the payload of a templated signature request.
type SendRequest struct {
	TemplateIDs    []string        `json:"template_ids"`
	Subject        string          `json:"subject,omitempty"`
	Message        string          `json:"message,omitempty"`
	Signers        []Signer        `json:"signers"`
	CustomFields   []CustomField   `json:"custom_fields,omitempty"`
	SigningOptions *SigningOptions `json:"signing_options,omitempty"`
	TestMode       bool            `json:"test_mode"`
}

// Provider is the subset of the signature API the service relies on.
//
// Get returns an error wrapping common.ErrResourceGone when the provider no
// longer knows the request. Any other failure wraps common.ErrCollaborator.
type Provider interface {
	SendWithTemplate(ctx context.Context, req *SendRequest) (*models.SignatureRequest, error)
	Get(ctx context.Context, requestID string) (*models.SignatureRequest, error)
	Cancel(ctx context.Context, requestID string) error
	Remind(ctx context.Context, requestID, emailAddress string) error
	FileURL(ctx context.Context, requestID, fileType string) (string, error)
}
