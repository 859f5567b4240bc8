// Package api serves the action envelope: it decodes {action, auth, params},
// authenticates the caller, dispatches to the account and release services
// and maps their errors to {statusCode, body} responses.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/releasekeeper/internal/common"
	"github.com/dmitrijs2005/releasekeeper/internal/logging"
	"github.com/dmitrijs2005/releasekeeper/internal/server/releases"
	"github.com/dmitrijs2005/releasekeeper/internal/server/users"
	"github.com/dmitrijs2005/releasekeeper/internal/server/validate"
)

type AccountService interface {
	Register(ctx context.Context, email, password string) (string, error)
	Login(ctx context.Context, email, password string) (*users.Session, error)
	Authenticate(ctx context.Context, userID, token string) error
}

type ReleaseService interface {
	Save(ctx context.Context, userID string, releaseID *string, fields map[string]any) (string, error)
	Delete(ctx context.Context, userID, releaseID string) error
	List(ctx context.Context, userID string) (*releases.Result, error)
	SendSignatureRequests(ctx context.Context, userID string, p releases.SignatureRequestParams) (*releases.SendResult, error)
	CancelRequest(ctx context.Context, userID, releaseID, requestID string) error
	Remind(ctx context.Context, userID, requestID, emailAddress string) error
	SignatureFile(ctx context.Context, userID, requestID string) (string, error)
}

// invocation is the per-request state handed to an action handler.
type invocation struct {
	action Action
	userID string
	params json.RawMessage
	logger logging.Logger
}

type handlerFunc func(ctx context.Context, inv *invocation) Response

type Handler struct {
	accounts AccountService
	releases ReleaseService
	logger   logging.Logger
	routes   map[Action]handlerFunc
}

func NewHandler(accounts AccountService, rs ReleaseService, logger logging.Logger) *Handler {
	h := &Handler{
		accounts: accounts,
		releases: rs,
		logger:   logger.With("module", "api"),
	}
	h.routes = map[Action]handlerFunc{
		ActionCreateAccount:    h.createAccount,
		ActionLogin:            h.login,
		ActionGetAllReleases:   h.getAllReleases,
		ActionSaveRelease:      h.saveRelease,
		ActionDeleteRelease:    h.deleteRelease,
		ActionSignatureRequest: h.signatureRequest,
		ActionDeleteRequest:    h.deleteRequest,
		ActionSendReminder:     h.sendReminder,
		ActionGetSignatureFile: h.getSignatureFile,
	}
	return h
}

// Invoke processes one raw envelope. logger carries request-scoped fields.
func (h *Handler) Invoke(ctx context.Context, logger logging.Logger, raw []byte) Response {
	env, fail := decodeEnvelope(raw)
	if fail != nil {
		return *fail
	}

	action, parseErr := ParseAction(env.action)

	if !env.hasParams && action != ActionGetAllReleases {
		return invalid("missing required params attribute")
	}

	inv := &invocation{
		action: action,
		params: env.params,
		logger: logger.With("action", env.action),
	}

	if parseErr == nil && action.public() {
		return h.routes[action](ctx, inv)
	}

	if !env.hasAuth {
		return invalid("missing auth attribute")
	}
	if _, err := validate.String(env.auth.UserID, validate.KindUserID); err != nil {
		return Response{StatusCode: http.StatusForbidden, Body: msgAccessDenied}
	}
	if err := h.accounts.Authenticate(ctx, env.auth.UserID, env.auth.Token); err != nil {
		if !errors.Is(err, common.ErrorUnauthorized) {
			inv.logger.Error(ctx, "authentication failed", "error", err)
		}
		return Response{StatusCode: http.StatusForbidden, Body: msgAccessDenied}
	}

	route, found := h.routes[action]
	if parseErr != nil || !found {
		return Response{StatusCode: http.StatusForbidden, Body: msgInvalidAction}
	}

	inv.userID = env.auth.UserID
	inv.logger = inv.logger.With("user_id", inv.userID)
	return route(ctx, inv)
}

// decodeParams unmarshals the params member into v.
func decodeParams(inv *invocation, v any) *Response {
	if len(inv.params) == 0 {
		r := invalid("missing required params attribute")
		return &r
	}
	if err := json.Unmarshal(inv.params, v); err != nil {
		r := invalid("params must be an object")
		return &r
	}
	return nil
}

// errorResponse maps a service error to its status and message.
func (h *Handler) errorResponse(ctx context.Context, inv *invocation, err error) Response {
	switch {
	case errors.Is(err, common.ErrNothingToUpdate):
		return invalid(common.ErrNothingToUpdate.Error())
	case errors.Is(err, common.ErrValidation), errors.Is(err, common.ErrMalformedRequest):
		return invalid(err.Error())
	case errors.Is(err, common.ErrorUnauthorized):
		return Response{StatusCode: http.StatusForbidden, Body: msgAccessDenied}
	case errors.Is(err, common.ErrAlreadyExists):
		return Response{StatusCode: http.StatusUnprocessableEntity, Body: "Account creation failed - a user with that email already exists"}
	case errors.Is(err, common.ErrorNotFound):
		return Response{StatusCode: http.StatusNotFound, Body: "Not found - " + err.Error()}
	case errors.Is(err, common.ErrResourceGone):
		return Response{StatusCode: http.StatusGone, Body: "Signature request no longer exists"}
	case errors.Is(err, common.ErrCollaborator):
		inv.logger.Error(ctx, "collaborator failure", "error", err)
		return Response{StatusCode: http.StatusBadGateway, Body: msgProviderFailed}
	default:
		inv.logger.Error(ctx, "request failed", "error", err)
		return Response{StatusCode: http.StatusInternalServerError, Body: msgInternal}
	}
}
