package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "pagewatch/pkg/logx"
)

// fileStore appends one JSON object per cycle to <prefix>.checks.jsonl.
// Retention is applied by rewriting the file (tmp + rename).
type fileStore struct {
	log       logx.Logger
	path      string
	retention time.Duration

	mu      sync.Mutex
	f       *os.File
	appends int
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{
		log:       log,
		path:      filepath.Join(dir, base) + ".checks.jsonl",
		retention: cfg.Retention,
	}
	if s.retention > 0 {
		if err := s.compact(time.Now().Add(-s.retention)); err != nil {
			log.Warn("check history compaction failed", logx.String("path", s.path), logx.Err(err))
		}
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	s.f = f
	return s, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func (s *fileStore) AppendCheck(ctx context.Context, e CheckEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return errors.New("check history file closed")
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	if err := json.NewEncoder(s.f).Encode(e); err != nil {
		return err
	}
	s.appends++
	if s.retention > 0 && s.appends%pruneEvery == 0 {
		if err := s.reopenCompacted(time.Now().Add(-s.retention)); err != nil {
			s.log.Warn("check history compaction failed", logx.String("path", s.path), logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) RecentChecks(ctx context.Context, n int) ([]CheckEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := readEntries(s.path)
	if err != nil {
		return nil, err
	}
	out := make([]CheckEntry, 0, n)
	for i := len(all) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

// reopenCompacted compacts the file under s.mu and reopens the append handle.
func (s *fileStore) reopenCompacted(cutoff time.Time) error {
	if s.f != nil {
		_ = s.f.Close()
		s.f = nil
	}
	cerr := s.compact(cutoff)
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	s.f = f
	return cerr
}

func (s *fileStore) compact(cutoff time.Time) error {
	all, err := readEntries(s.path)
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, e := range all {
		if e.At.Before(cutoff) {
			continue
		}
		if err := enc.Encode(e); err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
			return err
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, s.path)
}

// readEntries loads all decodable lines; corrupt lines (e.g. a torn final
// write) are skipped.
func readEntries(path string) ([]CheckEntry, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []CheckEntry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var e CheckEntry
		if json.Unmarshal([]byte(line), &e) != nil {
			continue
		}
		out = append(out, e)
	}
	return out, sc.Err()
}
