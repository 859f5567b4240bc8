package models

// SignatureRequest is a snapshot of a provider-side signature request as
// last observed. It is replaced wholesale on reconciliation.
type SignatureRequest struct {
	SignatureRequestID string       `json:"signatureRequestId" dynamodbav:"signatureRequestId"`
	Title              string       `json:"title,omitempty" dynamodbav:"title,omitempty"`
	Subject            string       `json:"subject,omitempty" dynamodbav:"subject,omitempty"`
	Message            string       `json:"message,omitempty" dynamodbav:"message,omitempty"`
	IsComplete         bool         `json:"isComplete" dynamodbav:"isComplete"`
	IsDeclined         bool         `json:"isDeclined" dynamodbav:"isDeclined"`
	HasError           bool         `json:"hasError" dynamodbav:"hasError"`
	TestMode           bool         `json:"testMode" dynamodbav:"testMode"`
	CreatedAt          int64        `json:"createdAt,omitempty" dynamodbav:"createdAt,omitempty"`
	DetailsURL         string       `json:"detailsUrl,omitempty" dynamodbav:"detailsUrl,omitempty"`
	FilesURL           string       `json:"filesUrl,omitempty" dynamodbav:"filesUrl,omitempty"`
	Signatures         []*Signature `json:"signatures,omitempty" dynamodbav:"signatures,omitempty"`
}

// Signature is one signer's slot on a request.
type Signature struct {
	SignatureID        string `json:"signatureId" dynamodbav:"signatureId"`
	SignerEmailAddress string `json:"signerEmailAddress" dynamodbav:"signerEmailAddress"`
	SignerName         string `json:"signerName,omitempty" dynamodbav:"signerName,omitempty"`
	SignerRole         string `json:"signerRole,omitempty" dynamodbav:"signerRole,omitempty"`
	StatusCode         string `json:"statusCode" dynamodbav:"statusCode"`
	SignedAt           *int64 `json:"signedAt,omitempty" dynamodbav:"signedAt,omitempty"`
	LastViewedAt       *int64 `json:"lastViewedAt,omitempty" dynamodbav:"lastViewedAt,omitempty"`
	LastRemindedAt     *int64 `json:"lastRemindedAt,omitempty" dynamodbav:"lastRemindedAt,omitempty"`
}
