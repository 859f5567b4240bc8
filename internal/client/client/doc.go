// Package client talks to the release server's envelope endpoint.
//
// Every call is a POST of {action, auth, params}; the server answers with
// {statusCode, body}. Client keeps the session returned by Login and
// attaches it to authenticated actions.
//
// Errors: transport failures wrap ErrUnavailable, a missing session is
// ErrUnauthorized, and non-200 envelopes come back as *APIError.
package client
