package chatstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

type SQLiteTranscriptStore struct {
	db *sql.DB
}

var _ TranscriptStore = &SQLiteTranscriptStore{}

func NewSQLiteTranscriptStore(dsn string) (*SQLiteTranscriptStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sqlite transcript store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLiteTranscriptStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// SQLiteDSNForFile builds a DSN with WAL and a busy timeout for a database file.
func SQLiteDSNForFile(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("sqlite transcript store: empty path")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path), nil
}

func (s *SQLiteTranscriptStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteTranscriptStore) migrate() error {
	if s == nil || s.db == nil {
		return errors.New("sqlite transcript store: db is nil")
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS exchanges (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			client_id TEXT NOT NULL,
			topic_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			user_text TEXT NOT NULL,
			assistant_text TEXT NOT NULL,
			settings_json TEXT NOT NULL DEFAULT '{}',
			started_at_ms INTEGER NOT NULL,
			completed_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS exchanges_by_topic ON exchanges(topic_id, completed_at_ms DESC);`,
		`CREATE INDEX IF NOT EXISTS exchanges_by_client ON exchanges(client_id, completed_at_ms DESC);`,
	}
	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite transcript store: migrate")
		}
	}
	return nil
}

func (s *SQLiteTranscriptStore) Save(ctx context.Context, ex Exchange) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite transcript store: db is nil")
	}
	if strings.TrimSpace(ex.TopicID) == "" {
		return errors.New("sqlite transcript store: topicID is empty")
	}
	settings := ex.SettingsJSON
	if strings.TrimSpace(settings) == "" {
		settings = "{}"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO exchanges(
			client_id, topic_id, agent_id, user_text, assistant_text,
			settings_json, started_at_ms, completed_at_ms
		) VALUES(?, ?, ?, ?, ?, ?, ?, ?)
	`,
		ex.ClientID, ex.TopicID, ex.AgentID, ex.UserText, ex.AssistantText,
		settings, ex.StartedAt.UnixMilli(), ex.CompletedAt.UnixMilli(),
	)
	if err != nil {
		return errors.Wrap(err, "sqlite transcript store: insert")
	}
	return nil
}

// List returns exchanges newest first.
func (s *SQLiteTranscriptStore) List(ctx context.Context, q ExchangeQuery) ([]Exchange, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite transcript store: db is nil")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 200
	}

	clauses := []string{}
	args := []any{}
	if v := strings.TrimSpace(q.TopicID); v != "" {
		clauses = append(clauses, "topic_id = ?")
		args = append(args, v)
	}
	if v := strings.TrimSpace(q.ClientID); v != "" {
		clauses = append(clauses, "client_id = ?")
		args = append(args, v)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT client_id, topic_id, agent_id, user_text, assistant_text,
			settings_json, started_at_ms, completed_at_ms
		FROM exchanges
		%s
		ORDER BY completed_at_ms DESC, id DESC
		LIMIT ?
	`, where), args...)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite transcript store: query")
	}
	defer func() { _ = rows.Close() }()

	out := []Exchange{}
	for rows.Next() {
		var ex Exchange
		var startedMs, completedMs int64
		if err := rows.Scan(
			&ex.ClientID, &ex.TopicID, &ex.AgentID, &ex.UserText, &ex.AssistantText,
			&ex.SettingsJSON, &startedMs, &completedMs,
		); err != nil {
			return nil, errors.Wrap(err, "sqlite transcript store: scan")
		}
		ex.StartedAt = time.UnixMilli(startedMs)
		ex.CompletedAt = time.UnixMilli(completedMs)
		out = append(out, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "sqlite transcript store: rows")
	}
	return out, nil
}
