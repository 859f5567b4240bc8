package models

// User is an account record. Releases are the user's release collection
// keyed by release id; they travel with the user item in the document
// store backends.
type User struct {
	ID           string
	Email        string
	PasswordHash []byte
	SessionID    string
	Releases     map[string]*Release
}
