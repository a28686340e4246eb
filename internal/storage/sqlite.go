package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	logx "pagewatch/pkg/logx"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS checks (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	at         INTEGER NOT NULL,
	result     TEXT    NOT NULL,
	detail     TEXT,
	action     TEXT    NOT NULL,
	fell_back  INTEGER NOT NULL DEFAULT 0,
	message_id INTEGER,
	err        TEXT,
	took_ms    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS checks_at ON checks(at);
`

type sqliteStore struct {
	db        *sql.DB
	log       logx.Logger
	retention time.Duration

	opCount atomic.Uint64
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log, retention: cfg.Retention}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(context.Background(), sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	if st.retention > 0 {
		_ = st.pruneExpired(context.Background())
	}
	return st, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendCheck(ctx context.Context, e CheckEntry) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checks(at, result, detail, action, fell_back, message_id, err, took_ms)
		 VALUES(?,?,?,?,?,?,?,?)`,
		e.At.UnixMilli(), e.Result, nullStr(e.Detail), e.Action, boolInt(e.FellBack),
		nullInt(e.MessageID), nullStr(e.Error), e.TookMS,
	)
	if err == nil && s.retention > 0 && s.opCount.Add(1)%pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		if perr := s.pruneExpired(pctx); perr != nil {
			s.log.Debug("check history prune failed", logx.Err(perr))
		}
		cancel()
	}
	return err
}

func (s *sqliteStore) RecentChecks(ctx context.Context, n int) ([]CheckEntry, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT at, result, detail, action, fell_back, message_id, err, took_ms
		 FROM checks ORDER BY at DESC, id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CheckEntry
	for rows.Next() {
		var (
			at       int64
			e        CheckEntry
			detail   sql.NullString
			errStr   sql.NullString
			msgID    sql.NullInt64
			fellBack int
		)
		if err := rows.Scan(&at, &e.Result, &detail, &e.Action, &fellBack, &msgID, &errStr, &e.TookMS); err != nil {
			return nil, err
		}
		e.At = time.UnixMilli(at)
		e.Detail = detail.String
		e.Error = errStr.String
		e.MessageID = int(msgID.Int64)
		e.FellBack = fellBack != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *sqliteStore) pruneExpired(ctx context.Context) error {
	cutoff := time.Now().Add(-s.retention).UnixMilli()
	_, err := s.db.ExecContext(ctx, `DELETE FROM checks WHERE at < ?`, cutoff)
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func nullInt(v int) any {
	if v == 0 {
		return nil
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
