// Package validate checks untrusted request values against the fixed rule
// set for release data and account fields.
//
// The same rules are registered as validator/v10 tags (releaseid, userid,
// freetext, plainemail) so that request structs can reuse them.
package validate

import (
	"fmt"
	"regexp"

	"github.com/dmitrijs2005/releasekeeper/internal/common"
	"github.com/dmitrijs2005/releasekeeper/internal/server/models"
	"github.com/go-playground/validator/v10"
)

// Kind names the rule a value is checked against.
type Kind string

const (
	KindUserID      Kind = "userId"
	KindReleaseID   Kind = "releaseId"
	KindTitle       Kind = "title"
	KindDescription Kind = "description"
	KindName        Kind = "name"
	KindEmail       Kind = "email"
	KindSenderInfo  Kind = "senderInfo"
)

var (
	// ErrRejected is returned for a value that fails its rule.
	ErrRejected = fmt.Errorf("%w: value rejected", common.ErrValidation)
	// ErrUnsupportedKind is returned for a kind outside the known set.
	ErrUnsupportedKind = common.ErrUnsupportedKind
)

var (
	identifierRe = regexp.MustCompile(`^[a-zA-Z]{24}$`)
	freeTextRe   = regexp.MustCompile(`^[a-zA-Z0-9.,/'";:\]}!@#$%^&*()_\-+= ]{1,}$`)
	emailRe      = regexp.MustCompile(`^[a-zA-Z0-9._-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,4}$`)
)

var tags = map[Kind]string{
	KindUserID:      "required,userid",
	KindReleaseID:   "required,releaseid",
	KindTitle:       "required,freetext",
	KindDescription: "required,freetext",
	KindName:        "required,freetext",
	KindEmail:       "required,plainemail",
}

var std = New()

// New returns a validator with the release rules registered as tags.
func New() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	mustRegister(v, "userid", identifierRe)
	mustRegister(v, "releaseid", identifierRe)
	mustRegister(v, "freetext", freeTextRe)
	mustRegister(v, "plainemail", emailRe)
	return v
}

func mustRegister(v *validator.Validate, tag string, re *regexp.Regexp) {
	err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		return re.MatchString(fl.Field().String())
	})
	if err != nil {
		panic(err)
	}
}

// Struct validates a request struct carrying validate tags.
func Struct(s any) error {
	if err := std.Struct(s); err != nil {
		return fmt.Errorf("%w: %v", ErrRejected, err)
	}
	return nil
}

// Validate checks value against kind and returns the sanitized value.
// Scalar kinds return a string; KindSenderInfo returns a models.SenderInfo.
// Values of the wrong type are rejected, never coerced.
func Validate(value any, kind Kind) (any, error) {
	if kind == KindSenderInfo {
		return senderInfo(value)
	}

	tag, ok := tags[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, string(kind))
	}

	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be a string", ErrRejected, kind)
	}
	if err := std.Var(s, tag); err != nil {
		return nil, fmt.Errorf("%w: invalid %s", ErrRejected, kind)
	}
	return s, nil
}

// String is Validate for callers that already hold a string.
func String(value string, kind Kind) (string, error) {
	v, err := Validate(value, kind)
	if err != nil {
		return "", err
	}
	s, _ := v.(string)
	return s, nil
}

func senderInfo(value any) (any, error) {
	var si models.SenderInfo

	switch v := value.(type) {
	case models.SenderInfo:
		si = v
	case *models.SenderInfo:
		if v == nil {
			return nil, fmt.Errorf("%w: senderInfo is null", ErrRejected)
		}
		si = *v
	case map[string]any:
		if len(v) != 2 {
			return nil, fmt.Errorf("%w: senderInfo must have exactly emailAddress and name", ErrRejected)
		}
		email, ok1 := v["emailAddress"].(string)
		name, ok2 := v["name"].(string)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("%w: senderInfo must have exactly emailAddress and name", ErrRejected)
		}
		si = models.SenderInfo{EmailAddress: email, Name: name}
	default:
		return nil, fmt.Errorf("%w: senderInfo must be an object", ErrRejected)
	}

	if err := std.Struct(si); err != nil {
		return nil, fmt.Errorf("%w: invalid senderInfo", ErrRejected)
	}
	return si, nil
}
