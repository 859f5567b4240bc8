package store

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/releasekeeper/internal/server/models"
)

// ReleasesAttr is the name of the per-user release collection.
const ReleasesAttr = "releases"

// Assignment sets Value at Path, where Path is relative to the release
// (for example []string{"title"}).
type Assignment struct {
	Path  []string
	Value any
}

// Update is a compiled partial update of one release.
//
// When Init is non-nil the release does not exist yet and must be written
// as Init before the assignments are applied. Assignments are applied in
// order and overwrite only the fields they name.
type Update struct {
	ReleaseID   string
	Init        *models.Release
	Assignments []Assignment
}

// Create reports whether u creates a new release.
func (u *Update) Create() bool {
	return u.Init != nil
}

// Fields lists the assigned field paths, dot joined.
func (u *Update) Fields() []string {
	out := make([]string, 0, len(u.Assignments))
	for _, a := range u.Assignments {
		out = append(out, strings.Join(a.Path, "."))
	}
	return out
}

// Value returns the value assigned to the dot-joined path.
func (u *Update) Value(path string) (any, bool) {
	for _, a := range u.Assignments {
		if strings.Join(a.Path, ".") == path {
			return a.Value, true
		}
	}
	return nil, false
}

// FullPath prefixes a release-relative path with the collection and
// release id, giving the document path "releases.<id>.<field>".
func FullPath(releaseID string, path ...string) []string {
	out := make([]string, 0, len(path)+2)
	out = append(out, ReleasesAttr, releaseID)
	return append(out, path...)
}

// ApplyTo merges u into r. It is the reference semantics every backend
// implements natively.
func (u *Update) ApplyTo(r *models.Release) error {
	for _, a := range u.Assignments {
		if len(a.Path) != 1 {
			return fmt.Errorf("unsupported release path %q", strings.Join(a.Path, "."))
		}
		switch a.Path[0] {
		case models.FieldTitle:
			r.Title, _ = a.Value.(string)
		case models.FieldDescription:
			r.Description, _ = a.Value.(string)
		case models.FieldSenderInfo:
			switch si := a.Value.(type) {
			case models.SenderInfo:
				r.SenderInfo = &si
			case *models.SenderInfo:
				r.SenderInfo = si
			default:
				return fmt.Errorf("unexpected senderInfo value %T", a.Value)
			}
		case models.FieldCreated:
			r.Created, _ = a.Value.(int64)
		case models.FieldModified:
			r.Modified, _ = a.Value.(int64)
		default:
			return fmt.Errorf("unsupported release field %q", a.Path[0])
		}
	}
	return nil
}
