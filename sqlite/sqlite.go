// Package sqlite implements pester.ThreadStore on a Sqlite3 database, for
// deployments that prefer a real database file over the JSON-document store.
// It honors the same contract, including read-back verification of writes.
package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/bobg/sqlutil"
	"github.com/pkg/errors"

	"pester"
)

const schema = `
CREATE TABLE IF NOT EXISTS threads (
  pr INTEGER NOT NULL PRIMARY KEY,
  repo TEXT NOT NULL,
  thread_id TEXT NOT NULL,
  updated_at TEXT NOT NULL
);
`

func Open(ctx context.Context, conn string) (*Store, error) {
	db, err := sql.Open("sqlite3", conn)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", conn)
	}
	_, err = db.ExecContext(ctx, schema)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "instantiating schema")
	}
	return &Store{db: db}, nil
}

type Store struct {
	db *sql.DB
}

var _ pester.ThreadStore = &Store{}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Lookup(ctx context.Context, pr int) (*pester.ThreadRecord, error) {
	const q = `SELECT thread_id, repo, updated_at FROM threads WHERE pr = $1`

	var (
		result  pester.ThreadRecord
		updated string
	)
	err := sqlutil.QueryRowContext(ctx, s.db, q, pr).Scan(&result.ThreadID, &result.Repo, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pester.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	result.UpdatedAt, err = time.Parse(time.RFC3339, updated)
	return &result, errors.Wrapf(err, "parsing timestamp of record for PR %d", pr)
}

func (s *Store) Put(ctx context.Context, pr int, threadID, repo string) error {
	if pr <= 0 {
		return pester.ValidationError("pull-request id must be positive")
	}
	if threadID == "" {
		return pester.ValidationError("thread id must not be empty")
	}
	if repo == "" {
		return pester.ValidationError("repository must not be empty")
	}

	const q = `
		INSERT INTO threads (pr, repo, thread_id, updated_at) VALUES ($1, $2, $3, $4)
			ON CONFLICT (pr) DO UPDATE SET repo = $2, thread_id = $3, updated_at = $4
	`
	_, err := s.db.ExecContext(ctx, q, pr, repo, threadID, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return errors.Wrapf(err, "upserting thread record for PR %d", pr)
	}

	const check = `SELECT repo, thread_id FROM threads WHERE pr = $1`
	var gotRepo, gotThread string
	err = sqlutil.QueryRowContext(ctx, s.db, check, pr).Scan(&gotRepo, &gotThread)
	if err != nil {
		return errors.Wrap(err, "reading back after put")
	}
	if gotRepo != repo || gotThread != threadID {
		return pester.IntegrityError("thread record did not read back as written")
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, pr int, repo string) error {
	const q = `SELECT repo FROM threads WHERE pr = $1`

	var gotRepo string
	err := sqlutil.QueryRowContext(ctx, s.db, q, pr).Scan(&gotRepo)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	if gotRepo != repo {
		return nil
	}

	_, err = s.db.ExecContext(ctx, `DELETE FROM threads WHERE pr = $1`, pr)
	if err != nil {
		return errors.Wrapf(err, "deleting thread record for PR %d", pr)
	}

	err = sqlutil.QueryRowContext(ctx, s.db, q, pr).Scan(&gotRepo)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "reading back after remove")
	}
	return pester.IntegrityError("thread record still present after remove")
}

func (s *Store) All(ctx context.Context) ([]pester.TrackedPR, error) {
	const q = `SELECT pr, repo, thread_id FROM threads`

	var result []pester.TrackedPR
	err := sqlutil.ForQueryRows(ctx, s.db, q, func(pr int64, repo, threadID string) {
		result = append(result, pester.TrackedPR{
			PR:       int(pr),
			Repo:     repo,
			ThreadID: threadID,
		})
	})
	return result, errors.Wrap(err, "listing thread records")
}
