package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"hwtrack-backend/internal/assert"
	"hwtrack-backend/internal/components/chrono"
	"hwtrack-backend/internal/components/telemetry"
	"hwtrack-backend/internal/homework"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	filePrefix = "homework_"
	fileSuffix = ".json"

	// DefaultMaxAge is how long an entry stays fresh unless configured otherwise.
	DefaultMaxAge = 24 * time.Hour
)

const (
	report_store_read   = "store.read"
	report_store_remove = "store.remove"
)

// Entry is the persisted result of one refresh of an account.
type Entry struct {
	AccountID string `json:"accountId"`
	// FetchedAt is in unix milliseconds.
	FetchedAt   int64                 `json:"fetchedAt"`
	TermCode    string                `json:"termCode"`
	Summary     homework.Summary      `json:"summary"`
	Assignments []homework.Assignment `json:"assignments"`
}

func (e Entry) FetchedTime() time.Time {
	return time.UnixMilli(e.FetchedAt)
}

func (e Entry) Result() homework.Result {
	return homework.Result{
		Assignments: e.Assignments,
		Summary:     e.Summary,
		TermCode:    e.TermCode,
		FetchedAt:   e.FetchedTime(),
	}
}

type Listing struct {
	AccountID string
	FetchedAt time.Time
	Age       time.Duration
}

// Key is the hex SHA-256 of the account id, it names the account's cache file.
func Key(accountID string) string {
	sum := sha256.Sum256([]byte(accountID))
	return hex.EncodeToString(sum[:])
}

type memoEntry struct {
	modTime time.Time
	size    int64
	entry   Entry
}

// Store keeps one JSON file per account under a directory. Decoded entries are
// memoized in memory for as long as the file on disk is unchanged.
type Store struct {
	dir   string
	clock chrono.API
	tel   telemetry.API
	memo  *lru.Cache[string, memoEntry]
}

func NewStore(dir string, clock chrono.API, tel telemetry.API) *Store {
	assert.NotEmptyStr(dir)
	assert.NotNil(clock)
	assert.NotNil(tel)
	memo, err := lru.New[string, memoEntry](256)
	if err != nil {
		panic(err)
	}
	return &Store{
		dir:   dir,
		clock: clock,
		tel:   telemetry.NewScopedAPI("cache", tel),
		memo:  memo,
	}
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, filePrefix+key+fileSuffix)
}

// Save replaces the account's entry with result.
func (s *Store) Save(accountID string, result homework.Result) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	assignments := result.Assignments
	if assignments == nil {
		assignments = []homework.Assignment{}
	}
	fetchedAt := result.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = s.clock.Now()
	}
	entry := Entry{
		AccountID:   accountID,
		FetchedAt:   fetchedAt.UnixMilli(),
		TermCode:    result.TermCode,
		Summary:     result.Summary,
		Assignments: assignments,
	}
	buf, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return err
	}

	key := Key(accountID)
	tmp, err := os.CreateTemp(s.dir, filePrefix+key+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	s.memo.Remove(key)
	if err := os.Rename(tmp.Name(), s.path(key)); err != nil {
		return fmt.Errorf("replace cache file: %w", err)
	}
	return nil
}

func (s *Store) read(path string) (Entry, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return Entry{}, false
	}

	key := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), filePrefix), fileSuffix)
	if m, ok := s.memo.Get(key); ok && m.modTime.Equal(info.ModTime()) && m.size == info.Size() {
		return m.entry, true
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		return Entry{}, false
	}
	var entry Entry
	if err := json.Unmarshal(buf, &entry); err != nil {
		s.tel.ReportWarning(report_store_read, path, err)
		return Entry{}, false
	}

	s.memo.Add(key, memoEntry{modTime: info.ModTime(), size: info.Size(), entry: entry})
	return entry, true
}

// Get returns the account's entry, missing and unparsable files both count as
// no entry.
func (s *Store) Get(accountID string) (Entry, bool) {
	return s.read(s.path(Key(accountID)))
}

func (s *Store) Age(accountID string) (time.Duration, bool) {
	entry, ok := s.Get(accountID)
	if !ok {
		return 0, false
	}
	return s.clock.Now().Sub(entry.FetchedTime()), true
}

// IsExpired reports whether the account has no entry or one older than maxAge.
func (s *Store) IsExpired(accountID string, maxAge time.Duration) bool {
	age, ok := s.Age(accountID)
	if !ok {
		return true
	}
	return age > maxAge
}

// Delete removes the account's entry, deleting a missing entry is not an error.
func (s *Store) Delete(accountID string) error {
	key := Key(accountID)
	s.memo.Remove(key)
	err := os.Remove(s.path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Store) files() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	out := []string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		out = append(out, filepath.Join(s.dir, name))
	}
	return out, nil
}

// ListAll lists every readable entry, most recently fetched first.
func (s *Store) ListAll() ([]Listing, error) {
	files, err := s.files()
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	out := []Listing{}
	for _, path := range files {
		entry, ok := s.read(path)
		if !ok {
			continue
		}
		out = append(out, Listing{
			AccountID: entry.AccountID,
			FetchedAt: entry.FetchedTime(),
			Age:       now.Sub(entry.FetchedTime()),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FetchedAt.After(out[j].FetchedAt)
	})
	return out, nil
}

// ClearAll removes every entry. Files that fail to be removed are reported and
// skipped.
func (s *Store) ClearAll() error {
	files, err := s.files()
	if err != nil {
		return err
	}
	s.memo.Purge()
	for _, path := range files {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.tel.ReportBroken(report_store_remove, path, err)
		}
	}
	return nil
}
