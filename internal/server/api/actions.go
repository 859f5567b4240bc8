package api

import (
	"context"
	"errors"
	"net/http"
	"sort"

	"github.com/dmitrijs2005/releasekeeper/internal/common"
	"github.com/dmitrijs2005/releasekeeper/internal/server/models"
	"github.com/dmitrijs2005/releasekeeper/internal/server/releases"
	"github.com/dmitrijs2005/releasekeeper/internal/server/users"
	"github.com/dmitrijs2005/releasekeeper/internal/server/validate"
)

type accountParams struct {
	Email    string `json:"email" validate:"required,plainemail"`
	Password string `json:"password" validate:"required"`
}

type releaseRef struct {
	ReleaseID string `json:"releaseId"`
}

type requestRef struct {
	ReleaseID string `json:"releaseId"`
	RequestID string `json:"requestId"`
}

type reminderParams struct {
	RequestID    string `json:"requestId"`
	EmailAddress string `json:"emailAddress"`
}

type signatureRequestParams struct {
	ReleaseID  string           `json:"releaseId"`
	Subject    string           `json:"subject"`
	Message    string           `json:"message"`
	SignerInfo []releases.Party `json:"signerInfo"`
	SenderInfo any              `json:"senderInfo"`
}

type loginBody struct {
	Message   string `json:"message"`
	AccessJWT string `json:"accessJWT"`
	UserID    string `json:"userId"`
}

type saveBody struct {
	Message   string `json:"message"`
	ReleaseID string `json:"releaseId"`
}

type unreconciledRef struct {
	ReleaseID          string `json:"releaseId"`
	SignatureRequestID string `json:"signatureRequestId"`
	Error              string `json:"error"`
}

type releasesBody struct {
	Releases     map[string]*models.Release `json:"releases"`
	Unreconciled []unreconciledRef          `json:"unreconciled,omitempty"`
}

type fileBody struct {
	FileURL string `json:"fileUrl"`
}

func (h *Handler) createAccount(ctx context.Context, inv *invocation) Response {
	var p accountParams
	if r := decodeParams(inv, &p); r != nil {
		return *r
	}
	if err := validate.Struct(p); err != nil {
		return invalid("email and password are required")
	}

	userID, err := h.accounts.Register(ctx, p.Email, p.Password)
	if err != nil {
		return h.errorResponse(ctx, inv, err)
	}

	inv.logger.Info(ctx, "account created", "user_id", userID)
	return ok("Account created successfully!")
}

func (h *Handler) login(ctx context.Context, inv *invocation) Response {
	var p accountParams
	if r := decodeParams(inv, &p); r != nil {
		return *r
	}
	if err := validate.Struct(p); err != nil {
		return invalid("email and password are required")
	}

	sess, err := h.accounts.Login(ctx, p.Email, p.Password)
	switch {
	case errors.Is(err, users.ErrNoSuchUser):
		return Response{StatusCode: http.StatusBadRequest, Body: "Login failed - no user with that email address"}
	case errors.Is(err, users.ErrWrongPassword):
		return Response{StatusCode: http.StatusBadRequest, Body: "Login failed - check your password and try again"}
	case err != nil:
		return h.errorResponse(ctx, inv, err)
	}

	return okJSON(loginBody{Message: "Login successful!", AccessJWT: sess.AccessToken, UserID: sess.UserID})
}

func (h *Handler) getAllReleases(ctx context.Context, inv *invocation) Response {
	res, err := h.releases.List(ctx, inv.userID)
	if err != nil {
		return h.errorResponse(ctx, inv, err)
	}

	body := releasesBody{Releases: res.Releases}
	for _, f := range res.Failures {
		msg := ""
		if f.Err != nil {
			msg = f.Err.Error()
		}
		body.Unreconciled = append(body.Unreconciled, unreconciledRef{
			ReleaseID:          f.ReleaseID,
			SignatureRequestID: f.SignatureRequestID,
			Error:              msg,
		})
	}
	sort.SliceStable(body.Unreconciled, func(i, j int) bool {
		return body.Unreconciled[i].ReleaseID < body.Unreconciled[j].ReleaseID
	})

	return okJSON(body)
}

func (h *Handler) saveRelease(ctx context.Context, inv *invocation) Response {
	var fields map[string]any
	if r := decodeParams(inv, &fields); r != nil {
		return *r
	}
	if fields == nil {
		return invalid("params must be an object")
	}

	var releaseID *string
	if raw, ok := fields["releaseId"]; ok {
		id, isString := raw.(string)
		if !isString {
			return invalid("invalid releaseId")
		}
		releaseID = &id
		delete(fields, "releaseId")
	}

	id, err := h.releases.Save(ctx, inv.userID, releaseID, fields)
	if err != nil {
		return h.errorResponse(ctx, inv, err)
	}

	return okJSON(saveBody{Message: "Release data saved!", ReleaseID: id})
}

func (h *Handler) deleteRelease(ctx context.Context, inv *invocation) Response {
	var p releaseRef
	if r := decodeParams(inv, &p); r != nil {
		return *r
	}

	if err := h.releases.Delete(ctx, inv.userID, p.ReleaseID); err != nil {
		return h.errorResponse(ctx, inv, err)
	}
	return ok("Release data deleted!")
}

func (h *Handler) signatureRequest(ctx context.Context, inv *invocation) Response {
	var p signatureRequestParams
	if r := decodeParams(inv, &p); r != nil {
		return *r
	}

	res, err := h.releases.SendSignatureRequests(ctx, inv.userID, releases.SignatureRequestParams{
		ReleaseID: p.ReleaseID,
		Subject:   p.Subject,
		Message:   p.Message,
		Signers:   p.SignerInfo,
		Sender:    p.SenderInfo,
	})
	if err != nil {
		if errors.Is(err, common.ErrCollaborator) && res != nil {
			inv.logger.Warn(ctx, "signature requests incomplete", "sent", len(res.RequestIDs), "failed", res.Failed)
			return Response{StatusCode: http.StatusBadGateway, Body: "Unable to complete some/all signature requests - something went wrong."}
		}
		return h.errorResponse(ctx, inv, err)
	}
	return ok("All requests have been made!")
}

func (h *Handler) deleteRequest(ctx context.Context, inv *invocation) Response {
	var p requestRef
	if r := decodeParams(inv, &p); r != nil {
		return *r
	}

	if err := h.releases.CancelRequest(ctx, inv.userID, p.ReleaseID, p.RequestID); err != nil {
		return h.errorResponse(ctx, inv, err)
	}
	return ok("Request deleted!")
}

func (h *Handler) sendReminder(ctx context.Context, inv *invocation) Response {
	var p reminderParams
	if r := decodeParams(inv, &p); r != nil {
		return *r
	}

	if err := h.releases.Remind(ctx, inv.userID, p.RequestID, p.EmailAddress); err != nil {
		return h.errorResponse(ctx, inv, err)
	}
	return ok("Reminder sent!")
}

func (h *Handler) getSignatureFile(ctx context.Context, inv *invocation) Response {
	var p requestRef
	if r := decodeParams(inv, &p); r != nil {
		return *r
	}

	url, err := h.releases.SignatureFile(ctx, inv.userID, p.RequestID)
	if err != nil {
		return h.errorResponse(ctx, inv, err)
	}
	return okJSON(fileBody{FileURL: url})
}
