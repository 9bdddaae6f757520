// Package filestore implements pester.ThreadStore as a single JSON document
// on disk. Every mutation rewrites the whole document and reads it back to
// verify the write, trading write efficiency for corruption detection.
package filestore

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"

	"pester"
)

type Store struct {
	mu   sync.Mutex
	path string
}

var _ pester.ThreadStore = &Store{}

// record is the on-disk shape of one thread record. The timestamp is kept as
// an ISO-8601 string so that read-back verification can compare values
// exactly as persisted.
type record struct {
	ThreadID  string `json:"thread_id"`
	Repo      string `json:"repo"`
	UpdatedAt string `json:"updated_at"`
}

// Open opens the store at path. A missing file is created holding an empty
// document; any other read or parse failure is an error (and fatal to
// process startup).
func Open(path string) (*Store, error) {
	s := &Store{path: path}

	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return s, errors.Wrapf(s.write(map[string]record{}), "creating %s", path)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "statting %s", path)
	}
	_, err = s.load()
	return s, err
}

func (s *Store) Lookup(ctx context.Context, pr int) (*pester.ThreadRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return nil, err
	}
	rec, ok := m[key(pr)]
	if !ok {
		return nil, pester.ErrNotFound
	}
	updated, err := time.Parse(time.RFC3339, rec.UpdatedAt)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing timestamp of record for PR %d", pr)
	}
	return &pester.ThreadRecord{
		ThreadID:  rec.ThreadID,
		Repo:      rec.Repo,
		UpdatedAt: updated,
	}, nil
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

	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return err
	}
	rec := record{
		ThreadID:  threadID,
		Repo:      repo,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	m[key(pr)] = rec
	if err = s.write(m); err != nil {
		return err
	}

	check, err := s.load()
	if err != nil {
		return errors.Wrap(err, "reading back after put")
	}
	if check[key(pr)] != rec {
		return pester.IntegrityError("thread record for PR " + key(pr) + " did not read back as written")
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, pr int, repo string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return err
	}
	rec, ok := m[key(pr)]
	if !ok || rec.Repo != repo {
		// Absent record or stale repository: nothing to do.
		return nil
	}
	delete(m, key(pr))
	if err = s.write(m); err != nil {
		return err
	}

	check, err := s.load()
	if err != nil {
		return errors.Wrap(err, "reading back after remove")
	}
	if _, ok = check[key(pr)]; ok {
		return pester.IntegrityError("thread record for PR " + key(pr) + " still present after remove")
	}
	return nil
}

func (s *Store) All(ctx context.Context) ([]pester.TrackedPR, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return nil, err
	}
	result := make([]pester.TrackedPR, 0, len(m))
	for k, rec := range m {
		pr, err := strconv.Atoi(k)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing key %q in %s", k, s.path)
		}
		result = append(result, pester.TrackedPR{
			PR:       pr,
			Repo:     rec.Repo,
			ThreadID: rec.ThreadID,
		})
	}
	return result, nil
}

func (s *Store) load() (map[string]record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", s.path)
	}
	m := make(map[string]record)
	err = json.Unmarshal(data, &m)
	return m, errors.Wrapf(err, "parsing %s", s.path)
}

func (s *Store) write(m map[string]record) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling store")
	}
	tmp := s.path + ".tmp"
	if err = os.WriteFile(tmp, data, 0644); err != nil {
		return errors.Wrapf(err, "writing %s", tmp)
	}
	return errors.Wrapf(os.Rename(tmp, s.path), "renaming %s into place", tmp)
}

func key(pr int) string {
	return strconv.Itoa(pr)
}
