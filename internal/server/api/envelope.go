package api

import (
	"encoding/json"
	"net/http"
)

// Messages the envelope layer answers with.
const (
	msgInvalidData    = "Unable to process request due to invalid data"
	msgInvalidAction  = "Unable to route request due to invalid action."
	msgAccessDenied   = "Access denied - authentication failed"
	msgInternal       = "Internal server error"
	msgProviderFailed = "Exception when calling signature provider"
	msgTimedOut       = "Request timed out"
)

// Auth carries the caller's identity.
type Auth struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
}

// Response is the envelope every action answers with. Body is a string,
// JSON encoded for actions that return data.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

func ok(body string) Response {
	return Response{StatusCode: http.StatusOK, Body: body}
}

func okJSON(v any) Response {
	b, err := json.Marshal(v)
	if err != nil {
		return Response{StatusCode: http.StatusInternalServerError, Body: msgInternal}
	}
	return ok(string(b))
}

func invalid(detail string) Response {
	return Response{StatusCode: http.StatusBadRequest, Body: msgInvalidData + " - " + detail}
}

// envelope is the decoded top level of a request. Presence of each member
// is tracked separately from its value.
type envelope struct {
	action    string
	hasAction bool
	auth      *Auth
	hasAuth   bool
	params    json.RawMessage
	hasParams bool
}

// decodeEnvelope parses raw into its members. A failure is returned as the
// response to send.
func decodeEnvelope(raw []byte) (*envelope, *Response) {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(raw, &members); err != nil || members == nil {
		r := invalid("request must be in JSON format")
		return nil, &r
	}

	env := &envelope{}

	if a, ok := members["action"]; ok {
		env.hasAction = true
		// a non-string action is routed as unknown
		_ = json.Unmarshal(a, &env.action)
	}
	if p, ok := members["params"]; ok {
		env.hasParams = true
		env.params = p
	}
	if a, ok := members["auth"]; ok {
		env.hasAuth = true
		var auth Auth
		if err := json.Unmarshal(a, &auth); err != nil {
			r := invalid("malformed auth attribute")
			return nil, &r
		}
		env.auth = &auth
	}

	if !env.hasAction {
		r := invalid("missing action attribute")
		return nil, &r
	}
	return env, nil
}
