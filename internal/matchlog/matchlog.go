// Package matchlog keeps finished matches (players, result and every shot)
// in memory and, when a directory is configured, as one JSON file per match.
package matchlog

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/pefman/seabattle/internal/match"
)

var ErrNotFound = errors.New("match record not found")

// Record is one finished match as stored and served on /api/matches/{id}.
type Record struct {
	ID      string `json:"id"`
	Created int64  `json:"created"`
	Updated int64  `json:"updated"`
	match.Outcome
}

type Log struct {
	mu   sync.Mutex
	recs map[string]*Record
	dir  string
	log  zerolog.Logger
}

// New returns a log persisting to dir, or memory only when dir is empty.
// Relative dirs are anchored to the working directory.
func New(dir string, log zerolog.Logger) (*Log, error) {
	l := &Log{recs: map[string]*Record{}, log: log.With().Str("component", "matchlog").Logger()}
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return l, nil
	}
	if !filepath.IsAbs(dir) {
		if abs, err := filepath.Abs(dir); err == nil {
			dir = abs
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create match log dir %s", dir)
	}
	l.dir = dir
	return l, nil
}

func (l *Log) Dir() string { return l.dir }

// Record implements match.Recorder.
func (l *Log) Record(_ context.Context, o match.Outcome) error {
	if strings.TrimSpace(o.MatchID) == "" {
		return nil
	}
	rec := &Record{ID: o.MatchID, Created: o.Started.Unix(), Updated: o.Finished.Unix(), Outcome: o}
	l.mu.Lock()
	l.recs[rec.ID] = rec
	l.mu.Unlock()

	if l.dir == "" {
		return nil
	}
	if err := l.save(rec); err != nil {
		return err
	}
	l.log.Debug().Str("match", rec.ID).Str("dir", l.dir).Msg("match log saved")
	return nil
}

// Get returns a record from memory, falling back to disk.
func (l *Log) Get(id string) (*Record, error) {
	l.mu.Lock()
	rec, ok := l.recs[id]
	l.mu.Unlock()
	if ok {
		return rec, nil
	}
	if l.dir == "" || strings.TrimSpace(id) == "" {
		return nil, ErrNotFound
	}
	rec, err := l.load(id)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.recs[rec.ID] = rec
	l.mu.Unlock()
	return rec, nil
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.recs)
}

// sanitizeIDForFile keeps alnum, dash and underscore.
func sanitizeIDForFile(id string) string {
	b := make([]rune, 0, len(id))
	for _, r := range id {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b = append(b, r)
		} else {
			b = append(b, '-')
		}
	}
	out := strings.Trim(strings.ReplaceAll(string(b), "--", "-"), "-")
	if out == "" {
		out = "match"
	}
	return out
}

func (l *Log) path(id string) string {
	return filepath.Join(l.dir, sanitizeIDForFile(id)+".json")
}

func (l *Log) save(rec *Record) error {
	path := l.path(rec.ID)
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode match record")
	}
	// write atomically
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrapf(err, "write %s", tmp)
	}
	return errors.Wrapf(os.Rename(tmp, path), "rename %s", tmp)
}

func (l *Log) load(id string) (*Record, error) {
	data, err := os.ReadFile(l.path(id))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read match %s", id)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.Wrapf(err, "decode match %s", id)
	}
	if strings.TrimSpace(rec.ID) == "" {
		rec.ID = id
	}
	return &rec, nil
}
