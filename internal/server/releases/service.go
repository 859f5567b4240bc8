package releases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/releasekeeper/internal/common"
	"github.com/dmitrijs2005/releasekeeper/internal/logging"
	"github.com/dmitrijs2005/releasekeeper/internal/server/events"
	"github.com/dmitrijs2005/releasekeeper/internal/server/models"
	"github.com/dmitrijs2005/releasekeeper/internal/server/signature"
	"github.com/dmitrijs2005/releasekeeper/internal/server/store"
	"github.com/dmitrijs2005/releasekeeper/internal/server/validate"
)

// Archiver copies a signed file out of the provider and returns a URL the
// caller can download it from.
type Archiver interface {
	Archive(ctx context.Context, userID, requestID, sourceURL string) (string, error)
}

// Party is a signer or sender as submitted by the client.
type Party struct {
	EmailAddress string `json:"emailAddress"`
	Name         string `json:"name"`
}

// SignatureRequestParams describes a batch of signature requests for one
// release: one provider request is sent per signer.
type SignatureRequestParams struct {
	ReleaseID string
	Subject   string
	Message   string
	Signers   []Party
	Sender    any
}

// SendResult lists the created request ids and the number of signers that
// could not be sent or recorded.
type SendResult struct {
	RequestIDs []string
	Failed     int
}

// ServiceConfig carries the settings the service needs from server config.
type ServiceConfig struct {
	TemplateID      string
	TestMode        bool
	ProviderTimeout time.Duration
}

type ServiceOption func(*Service)

func WithArchiver(a Archiver) ServiceOption {
	return func(s *Service) { s.archive = a }
}

func WithPublisher(p events.Publisher) ServiceOption {
	return func(s *Service) { s.events = p }
}

func WithCompiler(c *Compiler) ServiceOption {
	return func(s *Service) { s.compiler = c }
}

func WithReconciler(r *Reconciler) ServiceOption {
	return func(s *Service) { s.reconciler = r }
}

// Service implements the release actions.
type Service struct {
	store      store.ReleaseStore
	provider   signature.Provider
	compiler   *Compiler
	reconciler *Reconciler
	archive    Archiver
	events     events.Publisher
	logger     logging.Logger
	cfg        ServiceConfig
}

func NewService(st store.ReleaseStore, p signature.Provider, cfg ServiceConfig, logger logging.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		store:    st,
		provider: p,
		events:   events.Nop{},
		logger:   logger.With("module", "releases"),
		cfg:      cfg,
	}
	for _, o := range opts {
		o(s)
	}
	if s.compiler == nil {
		s.compiler = NewCompiler()
	}
	if s.reconciler == nil {
		s.reconciler = NewReconciler(st, p, logger, WithFetchTimeout(cfg.ProviderTimeout))
	}
	return s
}

// Save creates a release (nil releaseID) or merges fields into an existing
// one, returning the release id.
func (s *Service) Save(ctx context.Context, userID string, releaseID *string, fields map[string]any) (string, error) {
	u, err := s.compiler.Compile(releaseID, fields)
	if err != nil {
		return "", err
	}

	if err := s.store.ApplyRelease(ctx, userID, u); err != nil {
		return "", fmt.Errorf("save release %s: %w", u.ReleaseID, err)
	}

	s.logger.Info(ctx, "release saved", "user_id", userID, "release_id", u.ReleaseID, "created", u.Create(), "fields", u.Fields())
	s.publish(ctx, events.New(events.ReleaseSaved, userID, u.ReleaseID))
	return u.ReleaseID, nil
}

// Delete cancels the release's outstanding signature requests at the
// provider, best effort, and removes the release.
func (s *Service) Delete(ctx context.Context, userID, releaseID string) error {
	if _, err := validate.String(releaseID, validate.KindReleaseID); err != nil {
		return err
	}

	all, err := s.store.GetReleases(ctx, userID)
	if err != nil {
		return err
	}

	var cancelled []string
	if rel, ok := all[releaseID]; ok && rel != nil {
		for _, sr := range rel.RequestedSignatures {
			if sr == nil || sr.SignatureRequestID == "" || sr.IsComplete || sr.IsDeclined {
				continue
			}
			if err := s.cancel(ctx, sr.SignatureRequestID); err != nil {
				s.logger.Warn(ctx, "failed to cancel signature request", "release_id", releaseID, "signature_request_id", sr.SignatureRequestID, "error", err)
				continue
			}
			cancelled = append(cancelled, sr.SignatureRequestID)
		}
	}

	if err := s.store.RemoveRelease(ctx, userID, releaseID); err != nil {
		return fmt.Errorf("delete release %s: %w", releaseID, err)
	}

	s.logger.Info(ctx, "release deleted", "user_id", userID, "release_id", releaseID, "cancelled", len(cancelled))
	s.publish(ctx, events.New(events.ReleaseDeleted, userID, releaseID, cancelled...))
	return nil
}

// List reconciles signature statuses and returns the fresh view.
func (s *Service) List(ctx context.Context, userID string) (*Result, error) {
	res, err := s.reconciler.Reconcile(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.New(events.SignatureReconciled, userID, ""))
	return res, nil
}

// SendSignatureRequests sends one templated request per signer and records
// each created request on the release. Every signer is attempted; when any
// fails the returned error wraps common.ErrCollaborator.
func (s *Service) SendSignatureRequests(ctx context.Context, userID string, p SignatureRequestParams) (*SendResult, error) {
	sender, err := s.checkSignatureParams(p)
	if err != nil {
		return nil, err
	}

	all, err := s.store.GetReleases(ctx, userID)
	if err != nil {
		return nil, err
	}
	if _, ok := all[p.ReleaseID]; !ok {
		return nil, fmt.Errorf("release %s: %w", p.ReleaseID, common.ErrorNotFound)
	}

	res := &SendResult{}
	for _, signer := range p.Signers {
		req := s.buildSendRequest(p, signer, sender)

		sr, err := s.send(ctx, req)
		if err != nil {
			s.logger.Warn(ctx, "failed to send signature request", "release_id", p.ReleaseID, "signer", signer.EmailAddress, "error", err)
			res.Failed++
			continue
		}
		if err := s.store.AppendSignatureRequest(ctx, userID, p.ReleaseID, sr); err != nil {
			s.logger.Error(ctx, "failed to record signature request", "release_id", p.ReleaseID, "signature_request_id", sr.SignatureRequestID, "error", err)
			res.Failed++
			continue
		}
		res.RequestIDs = append(res.RequestIDs, sr.SignatureRequestID)
	}

	if len(res.RequestIDs) > 0 {
		s.publish(ctx, events.New(events.SignatureRequested, userID, p.ReleaseID, res.RequestIDs...))
	}
	if res.Failed > 0 {
		return res, fmt.Errorf("%d of %d signature requests failed: %w", res.Failed, len(p.Signers), common.ErrCollaborator)
	}
	return res, nil
}

func (s *Service) checkSignatureParams(p SignatureRequestParams) (models.SenderInfo, error) {
	if _, err := validate.String(p.ReleaseID, validate.KindReleaseID); err != nil {
		return models.SenderInfo{}, err
	}
	if _, err := validate.String(p.Subject, validate.KindTitle); err != nil {
		return models.SenderInfo{}, fmt.Errorf("subject: %w", err)
	}
	if p.Message != "" {
		if _, err := validate.String(p.Message, validate.KindDescription); err != nil {
			return models.SenderInfo{}, fmt.Errorf("message: %w", err)
		}
	}
	if len(p.Signers) == 0 {
		return models.SenderInfo{}, fmt.Errorf("%w: at least one signer is required", validate.ErrRejected)
	}
	for _, signer := range p.Signers {
		if _, err := validate.String(signer.EmailAddress, validate.KindEmail); err != nil {
			return models.SenderInfo{}, fmt.Errorf("signer: %w", err)
		}
		if _, err := validate.String(signer.Name, validate.KindName); err != nil {
			return models.SenderInfo{}, fmt.Errorf("signer: %w", err)
		}
	}
	v, err := validate.Validate(p.Sender, validate.KindSenderInfo)
	if err != nil {
		return models.SenderInfo{}, err
	}
	return v.(models.SenderInfo), nil
}

func (s *Service) buildSendRequest(p SignatureRequestParams, signer Party, sender models.SenderInfo) *signature.SendRequest {
	return &signature.SendRequest{
		TemplateIDs: []string{s.cfg.TemplateID},
		Subject:     p.Subject,
		Message:     p.Message,
		Signers: []signature.Signer{
			{Role: signature.RoleSubject, Name: signer.Name, EmailAddress: signer.EmailAddress},
			{Role: signature.RoleSender, Name: sender.Name, EmailAddress: sender.EmailAddress},
		},
		CustomFields: []signature.CustomField{
			{Name: "CompanyName", Value: sender.Name, Editor: signature.RoleSender, Required: true},
		},
		SigningOptions: &signature.SigningOptions{
			Draw:        true,
			Type:        true,
			Upload:      true,
			Phone:       false,
			DefaultType: "draw",
		},
		TestMode: s.cfg.TestMode,
	}
}

// CancelRequest cancels a request at the provider and removes it from the
// release. A request the provider no longer knows is still removed.
func (s *Service) CancelRequest(ctx context.Context, userID, releaseID, requestID string) error {
	if _, err := validate.String(releaseID, validate.KindReleaseID); err != nil {
		return err
	}
	if err := s.ownRequest(ctx, userID, releaseID, requestID); err != nil {
		return err
	}

	if err := s.cancel(ctx, requestID); err != nil && !errors.Is(err, common.ErrResourceGone) {
		return fmt.Errorf("cancel signature request %s: %w", requestID, err)
	}

	if err := s.store.RemoveSignatureRequest(ctx, userID, releaseID, requestID); err != nil {
		return fmt.Errorf("remove signature request %s: %w", requestID, err)
	}

	s.publish(ctx, events.New(events.SignatureCancelled, userID, releaseID, requestID))
	return nil
}

// Remind asks the provider to re-send the signing email to emailAddress.
func (s *Service) Remind(ctx context.Context, userID, requestID, emailAddress string) error {
	if _, err := validate.String(emailAddress, validate.KindEmail); err != nil {
		return err
	}
	if err := s.ownRequest(ctx, userID, "", requestID); err != nil {
		return err
	}

	pctx, cancel := s.providerContext(ctx)
	defer cancel()

	if err := s.provider.Remind(pctx, requestID, emailAddress); err != nil {
		return fmt.Errorf("remind %s: %w", requestID, err)
	}
	return nil
}

// SignatureFile returns a download URL for the signed PDF. With an archiver
// configured the file is copied to the archive first; if that fails the
// provider URL is returned.
func (s *Service) SignatureFile(ctx context.Context, userID, requestID string) (string, error) {
	if err := s.ownRequest(ctx, userID, "", requestID); err != nil {
		return "", err
	}

	pctx, cancel := s.providerContext(ctx)
	defer cancel()

	fileURL, err := s.provider.FileURL(pctx, requestID, "pdf")
	if err != nil {
		return "", fmt.Errorf("signed file %s: %w", requestID, err)
	}

	if s.archive == nil {
		return fileURL, nil
	}

	archived, err := s.archive.Archive(ctx, userID, requestID, fileURL)
	if err != nil {
		s.logger.Warn(ctx, "failed to archive signed file", "signature_request_id", requestID, "error", err)
		return fileURL, nil
	}
	return archived, nil
}

// ownRequest checks that requestID belongs to one of the user's releases,
// or to releaseID when given.
func (s *Service) ownRequest(ctx context.Context, userID, releaseID, requestID string) error {
	if requestID == "" {
		return fmt.Errorf("%w: missing requestId", validate.ErrRejected)
	}

	all, err := s.store.GetReleases(ctx, userID)
	if err != nil {
		return err
	}

	for id, rel := range all {
		if releaseID != "" && id != releaseID {
			continue
		}
		if rel != nil && rel.FindSignatureRequest(requestID) >= 0 {
			return nil
		}
	}
	return fmt.Errorf("signature request %s: %w", requestID, common.ErrorNotFound)
}

func (s *Service) send(ctx context.Context, req *signature.SendRequest) (*models.SignatureRequest, error) {
	pctx, cancel := s.providerContext(ctx)
	defer cancel()
	return s.provider.SendWithTemplate(pctx, req)
}

func (s *Service) cancel(ctx context.Context, requestID string) error {
	pctx, cancel := s.providerContext(ctx)
	defer cancel()
	return s.provider.Cancel(pctx, requestID)
}

func (s *Service) providerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.ProviderTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.ProviderTimeout)
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if err := s.events.Publish(ctx, e); err != nil {
		s.logger.Warn(ctx, "failed to publish event", "type", e.Type, "error", err)
	}
}
