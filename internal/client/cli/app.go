package cli

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"os"

	"github.com/dmitrijs2005/releasekeeper/internal/client/client"
	"github.com/dmitrijs2005/releasekeeper/internal/client/config"
)

// ReleaseAPI is the subset of the envelope client the shell uses.
type ReleaseAPI interface {
	Register(ctx context.Context, email string, password []byte) (string, error)
	Login(ctx context.Context, email string, password []byte) error
	Logout()
	LoggedIn() bool
	UserID() string
	ListReleases(ctx context.Context) (*client.ReleaseList, error)
	SaveRelease(ctx context.Context, releaseID string, fields map[string]any) (string, error)
	DeleteRelease(ctx context.Context, releaseID string) error
}

type App struct {
	config *config.Config
	api    ReleaseAPI
	reader *bufio.Reader
	out    io.Writer
}

func NewApp(c *config.Config) (*App, error) {
	api := client.New(c.ServerURL, &http.Client{Timeout: c.RequestTimeout})
	return &App{config: c, api: api, reader: bufio.NewReader(os.Stdin), out: os.Stdout}, nil
}

func (a *App) Run(ctx context.Context) {
	printlnFn("Welcome to releasectl (type 'help' for commands)")
	runREPL(ctx, a, a.getStatus, a.reader)
}

func (a *App) isLoggedIn() bool {
	return a.api.LoggedIn()
}

func (a *App) getStatus() string {
	if id := a.api.UserID(); id != "" {
		return "(" + id + ")"
	}
	return ""
}
