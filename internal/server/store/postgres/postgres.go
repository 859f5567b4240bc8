// Package postgres is the PostgreSQL store backend. Each user is one row of
// the users table; the release collection is a jsonb document in the
// releases column and release edits are jsonb_set updates on that document.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/releasekeeper/internal/common"
	"github.com/dmitrijs2005/releasekeeper/internal/dbx"
	"github.com/dmitrijs2005/releasekeeper/internal/server/migrations"
	"github.com/dmitrijs2005/releasekeeper/internal/server/models"
	"github.com/dmitrijs2005/releasekeeper/internal/server/store"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

const uniqueViolation = "23505"

type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open opens a pgx-backed database handle for dsn.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	return db, nil
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations applies the embedded migrations.
func (s *Store) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, s.db, "."); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	releases, err := encodeReleases(u.Releases)
	if err != nil {
		return err
	}

	query :=
		`INSERT INTO users (user_id, email, password, session_id, releases)
		 VALUES ($1, $2, $3, $4, $5::jsonb)
		 `

	_, err = s.db.ExecContext(ctx, query, u.ID, strings.ToLower(u.Email), u.PasswordHash, u.SessionID, releases)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return common.ErrAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query :=
		`SELECT user_id, email, password, session_id, releases FROM users
		 WHERE email = $1
		 `
	return s.findUser(ctx, query, strings.ToLower(email))
}

func (s *Store) FindUserByID(ctx context.Context, userID string) (*models.User, error) {
	query :=
		`SELECT user_id, email, password, session_id, releases FROM users
		 WHERE user_id = $1
		 `
	return s.findUser(ctx, query, userID)
}

func (s *Store) findUser(ctx context.Context, query string, arg string) (*models.User, error) {
	var (
		u        models.User
		releases []byte
	)

	err := s.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.SessionID, &releases)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if u.Releases, err = decodeReleases(releases); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) SetSession(ctx context.Context, userID, sessionID string) error {
	query :=
		`UPDATE users SET session_id = $2
		 WHERE user_id = $1
		 `
	return s.exec(ctx, s.db, query, userID, sessionID)
}

func (s *Store) GetReleases(ctx context.Context, userID string) (map[string]*models.Release, error) {
	query :=
		`SELECT releases FROM users
		 WHERE user_id = $1
		 `

	var releases []byte
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&releases)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return decodeReleases(releases)
}

// ApplyRelease writes the initial document for a creation and then merges
// the assignments with one chained jsonb_set, inside one transaction.
func (s *Store) ApplyRelease(ctx context.Context, userID string, u *store.Update) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if u.Create() {
			doc, err := json.Marshal(u.Init)
			if err != nil {
				return fmt.Errorf("encode release: %w", err)
			}

			query :=
				`UPDATE users SET releases = jsonb_set(releases, ARRAY[$2::text], $3::jsonb, true)
				 WHERE user_id = $1
				 `
			if err := s.exec(ctx, tx, query, userID, u.ReleaseID, string(doc)); err != nil {
				return err
			}
		}

		if len(u.Assignments) == 0 {
			return nil
		}

		query, args, err := mergeQuery(userID, u)
		if err != nil {
			return err
		}
		if err := s.exec(ctx, tx, query, args...); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return fmt.Errorf("release %s: %w", u.ReleaseID, err)
			}
			return err
		}
		return nil
	})
}

// mergeQuery builds
//
//	UPDATE users SET releases = jsonb_set(jsonb_set(releases, ARRAY[$2::text, $3::text], $4::jsonb, true), ...)
//	WHERE user_id = $1 AND releases -> $2::text IS NOT NULL
func mergeQuery(userID string, u *store.Update) (string, []any, error) {
	args := []any{userID, u.ReleaseID}
	expr := store.ReleasesAttr

	for _, a := range u.Assignments {
		path := []string{"$2::text"}
		for _, p := range a.Path {
			args = append(args, p)
			path = append(path, "$"+strconv.Itoa(len(args))+"::text")
		}

		value, err := json.Marshal(a.Value)
		if err != nil {
			return "", nil, fmt.Errorf("encode %s: %w", strings.Join(a.Path, "."), err)
		}
		args = append(args, string(value))

		expr = fmt.Sprintf("jsonb_set(%s, ARRAY[%s], $%d::jsonb, true)", expr, strings.Join(path, ", "), len(args))
	}

	query := "UPDATE users SET releases = " + expr + "\n" +
		"WHERE user_id = $1 AND releases -> $2::text IS NOT NULL"
	return query, args, nil
}

func (s *Store) ReplaceReleases(ctx context.Context, userID string, releases map[string]*models.Release) error {
	doc, err := encodeReleases(releases)
	if err != nil {
		return err
	}

	query :=
		`UPDATE users SET releases = $2::jsonb
		 WHERE user_id = $1
		 `
	return s.exec(ctx, s.db, query, userID, doc)
}

func (s *Store) RemoveRelease(ctx context.Context, userID, releaseID string) error {
	query :=
		`UPDATE users SET releases = releases - $2::text
		 WHERE user_id = $1
		 `
	return s.exec(ctx, s.db, query, userID, releaseID)
}

func (s *Store) AppendSignatureRequest(ctx context.Context, userID, releaseID string, sr *models.SignatureRequest) error {
	item, err := json.Marshal([]*models.SignatureRequest{sr})
	if err != nil {
		return fmt.Errorf("encode signature request: %w", err)
	}

	query :=
		`UPDATE users SET releases = jsonb_set(releases, ARRAY[$2::text, 'requestedSignatures'],
		     COALESCE(releases #> ARRAY[$2::text, 'requestedSignatures'], '[]'::jsonb) || $3::jsonb, true)
		 WHERE user_id = $1 AND releases -> $2::text IS NOT NULL
		 `
	if err := s.exec(ctx, s.db, query, userID, releaseID, string(item)); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return fmt.Errorf("release %s: %w", releaseID, err)
		}
		return err
	}
	return nil
}

// RemoveSignatureRequest locks the user row, finds the request's index and
// deletes that array element.
func (s *Store) RemoveSignatureRequest(ctx context.Context, userID, releaseID, requestID string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		query :=
			`SELECT releases -> $2::text FROM users
			 WHERE user_id = $1
			 FOR UPDATE
			 `

		var doc []byte
		if err := tx.QueryRowContext(ctx, query, userID, releaseID).Scan(&doc); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return common.ErrorNotFound
			}
			return fmt.Errorf("db error: %w", err)
		}
		if len(doc) == 0 || string(doc) == "null" {
			return fmt.Errorf("release %s: %w", releaseID, common.ErrorNotFound)
		}

		var rel models.Release
		if err := json.Unmarshal(doc, &rel); err != nil {
			return fmt.Errorf("decode release: %w", err)
		}

		idx := rel.FindSignatureRequest(requestID)
		if idx < 0 {
			return fmt.Errorf("signature request %s: %w", requestID, common.ErrorNotFound)
		}

		remove :=
			`UPDATE users SET releases = releases #- ARRAY[$2::text, 'requestedSignatures', $3::text]
			 WHERE user_id = $1
			 `
		return s.exec(ctx, tx, remove, userID, releaseID, strconv.Itoa(idx))
	})
}

func (s *Store) exec(ctx context.Context, db dbx.DBTX, query string, args ...any) error {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return dbx.RequireRows(res)
}

func encodeReleases(releases map[string]*models.Release) (string, error) {
	if releases == nil {
		releases = map[string]*models.Release{}
	}
	b, err := json.Marshal(releases)
	if err != nil {
		return "", fmt.Errorf("encode releases: %w", err)
	}
	return string(b), nil
}

func decodeReleases(b []byte) (map[string]*models.Release, error) {
	out := map[string]*models.Release{}
	if len(b) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode releases: %w", err)
	}
	if out == nil {
		out = map[string]*models.Release{}
	}
	for _, r := range out {
		if r != nil && r.RequestedSignatures == nil {
			r.RequestedSignatures = []*models.SignatureRequest{}
		}
	}
	return out, nil
}
