// Package cli implements releasectl, an interactive shell over the release
// server's envelope API: account registration, login, and listing, saving
// and deleting releases.
package cli
