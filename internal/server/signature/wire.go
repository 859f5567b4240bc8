package signature

import (
	"fmt"

	"github.com/dmitrijs2005/releasekeeper/internal/common"
	"github.com/dmitrijs2005/releasekeeper/internal/server/models"
)

type signatureRequestEnvelope struct {
	SignatureRequest wireSignatureRequest `json:"signature_request"`
}

// snapshot rejects replies that carry no signature request id.
func (e signatureRequestEnvelope) snapshot() (*models.SignatureRequest, error) {
	if e.SignatureRequest.SignatureRequestID == "" {
		return nil, fmt.Errorf("signature api: response without signature_request_id: %w", common.ErrCollaborator)
	}
	return e.SignatureRequest.toModel(), nil
}

type wireSignatureRequest struct {
	SignatureRequestID string          `json:"signature_request_id"`
	Title              string          `json:"title"`
	Subject            string          `json:"subject"`
	Message            string          `json:"message"`
	IsComplete         bool            `json:"is_complete"`
	IsDeclined         bool            `json:"is_declined"`
	HasError           bool            `json:"has_error"`
	TestMode           bool            `json:"test_mode"`
	CreatedAt          int64           `json:"created_at"`
	DetailsURL         string          `json:"details_url"`
	FilesURL           string          `json:"files_url"`
	Signatures         []wireSignature `json:"signatures"`
}

type wireSignature struct {
	SignatureID        string `json:"signature_id"`
	SignerEmailAddress string `json:"signer_email_address"`
	SignerName         string `json:"signer_name"`
	SignerRole         string `json:"signer_role"`
	StatusCode         string `json:"status_code"`
	SignedAt           *int64 `json:"signed_at"`
	LastViewedAt       *int64 `json:"last_viewed_at"`
	LastRemindedAt     *int64 `json:"last_reminded_at"`
}

func (w wireSignatureRequest) toModel() *models.SignatureRequest {
	m := &models.SignatureRequest{
		SignatureRequestID: w.SignatureRequestID,
		Title:              w.Title,
		Subject:            w.Subject,
		Message:            w.Message,
		IsComplete:         w.IsComplete,
		IsDeclined:         w.IsDeclined,
		HasError:           w.HasError,
		TestMode:           w.TestMode,
		CreatedAt:          w.CreatedAt,
		DetailsURL:         w.DetailsURL,
		FilesURL:           w.FilesURL,
	}
	for _, s := range w.Signatures {
		m.Signatures = append(m.Signatures, &models.Signature{
			SignatureID:        s.SignatureID,
			SignerEmailAddress: s.SignerEmailAddress,
			SignerName:         s.SignerName,
			SignerRole:         s.SignerRole,
			StatusCode:         s.StatusCode,
			SignedAt:           s.SignedAt,
			LastViewedAt:       s.LastViewedAt,
			LastRemindedAt:     s.LastRemindedAt,
		})
	}
	return m
}
