// Package models holds the records persisted by the store backends and
// returned through the envelope API.
package models

// Release field names as they appear on the wire and in storage.
const (
	FieldTitle               = "title"
	FieldDescription         = "description"
	FieldSenderInfo          = "senderInfo"
	FieldCreated             = "created"
	FieldModified            = "modified"
	FieldRequestedSignatures = "requestedSignatures"
)

// SenderInfo identifies the party sending a release for signature.
type SenderInfo struct {
	EmailAddress string `json:"emailAddress" dynamodbav:"emailAddress" validate:"required,plainemail"`
	Name         string `json:"name" dynamodbav:"name" validate:"required,freetext"`
}

// Release is one media release. Created and Modified are Unix milliseconds.
// RequestedSignatures is ordered by append time.
type Release struct {
	Title               string              `json:"title,omitempty" dynamodbav:"title,omitempty"`
	Description         string              `json:"description,omitempty" dynamodbav:"description,omitempty"`
	SenderInfo          *SenderInfo         `json:"senderInfo,omitempty" dynamodbav:"senderInfo,omitempty"`
	Created             int64               `json:"created,omitempty" dynamodbav:"created,omitempty"`
	Modified            int64               `json:"modified,omitempty" dynamodbav:"modified,omitempty"`
	RequestedSignatures []*SignatureRequest `json:"requestedSignatures" dynamodbav:"requestedSignatures"`
}

// NewRelease returns an initialized release with an empty, non-nil
// signature list.
func NewRelease() *Release {
	return &Release{RequestedSignatures: []*SignatureRequest{}}
}

// Clone copies r so that the signature slice can be rebuilt without
// touching the original. Signature snapshots are shared.
func (r *Release) Clone() *Release {
	if r == nil {
		return nil
	}
	c := *r
	if r.SenderInfo != nil {
		si := *r.SenderInfo
		c.SenderInfo = &si
	}
	c.RequestedSignatures = make([]*SignatureRequest, len(r.RequestedSignatures))
	copy(c.RequestedSignatures, r.RequestedSignatures)
	return &c
}

// FindSignatureRequest returns the index of the request with the given id
// or -1.
func (r *Release) FindSignatureRequest(requestID string) int {
	for i, sr := range r.RequestedSignatures {
		if sr != nil && sr.SignatureRequestID == requestID {
			return i
		}
	}
	return -1
}
