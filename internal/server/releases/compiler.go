// Package releases implements release editing, the signature status
// reconciler and the service behind the release actions.
package releases

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/releasekeeper/internal/common"
	"github.com/dmitrijs2005/releasekeeper/internal/server/models"
	"github.com/dmitrijs2005/releasekeeper/internal/server/store"
	"github.com/dmitrijs2005/releasekeeper/internal/server/validate"
)

// FieldError reports the field that failed in strict mode.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid field %s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// editable lists the client-settable fields in the order they are applied.
var editable = []struct {
	name string
	kind validate.Kind
}{
	{models.FieldTitle, validate.KindTitle},
	{models.FieldDescription, validate.KindDescription},
	{models.FieldSenderInfo, validate.KindSenderInfo},
}

type CompilerOption func(*Compiler)

// WithClock overrides time.Now for timestamps.
func WithClock(now func() time.Time) CompilerOption {
	return func(c *Compiler) { c.now = now }
}

// WithIDGenerator overrides NewReleaseID.
func WithIDGenerator(gen func() (string, error)) CompilerOption {
	return func(c *Compiler) { c.newID = gen }
}

// WithStrict makes an invalid field fail the whole compile instead of being
// dropped.
func WithStrict(strict bool) CompilerOption {
	return func(c *Compiler) { c.strict = strict }
}

// Compiler turns client-supplied release fields into a store.Update.
type Compiler struct {
	now    func() time.Time
	newID  func() (string, error)
	strict bool
}

func NewCompiler(opts ...CompilerOption) *Compiler {
	c := &Compiler{now: time.Now, newID: NewReleaseID}
	for _, o := range opts {
		o(c)
	}
	return c
}

// NewReleaseID returns 24 random lowercase letters. Collisions are not
// checked against existing releases.
func NewReleaseID() (string, error) {
	return common.RandomString(24, common.LowerAlpha)
}

// Compile validates fields and builds the update for one release.
//
// A nil existingID creates a new release. Invalid fields are dropped unless
// the compiler is strict. The result always carries a modified timestamp,
// and created when the release is new. When no editable field survives the
// compile fails with common.ErrNothingToUpdate.
func (c *Compiler) Compile(existingID *string, fields map[string]any) (*store.Update, error) {
	if !hasEditable(fields) {
		return nil, common.ErrNothingToUpdate
	}

	now := c.now().UnixMilli()
	u := &store.Update{}

	if existingID != nil {
		id, err := validate.String(*existingID, validate.KindReleaseID)
		if err != nil {
			return nil, &FieldError{Field: "releaseId", Err: err}
		}
		u.ReleaseID = id
	} else {
		id, err := c.newID()
		if err != nil {
			return nil, fmt.Errorf("generate release id: %w", err)
		}
		u.ReleaseID = id
		u.Init = models.NewRelease()
		u.Assignments = append(u.Assignments, store.Assignment{Path: []string{models.FieldCreated}, Value: now})
	}

	u.Assignments = append(u.Assignments, store.Assignment{Path: []string{models.FieldModified}, Value: now})

	applied := 0
	for _, f := range editable {
		raw, ok := fields[f.name]
		if !ok {
			continue
		}
		v, err := validate.Validate(raw, f.kind)
		if err != nil {
			if c.strict {
				return nil, &FieldError{Field: f.name, Err: err}
			}
			continue
		}
		u.Assignments = append(u.Assignments, store.Assignment{Path: []string{f.name}, Value: v})
		applied++
	}

	if applied == 0 {
		return nil, common.ErrNothingToUpdate
	}
	return u, nil
}

func hasEditable(fields map[string]any) bool {
	for _, f := range editable {
		if _, ok := fields[f.name]; ok {
			return true
		}
	}
	return false
}

// IsValidationError reports whether err is a client-side rejection.
func IsValidationError(err error) bool {
	return errors.Is(err, common.ErrValidation) || errors.Is(err, common.ErrNothingToUpdate)
}
