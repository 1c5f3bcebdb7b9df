package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/yaoapp/kun/log"
	_ "modernc.org/sqlite" // pure Go driver

	"github.com/askiada/go-query-pipeline/pkg/chatstore"
	"github.com/askiada/go-query-pipeline/pkg/llm"
)

const DefaultTable = "chat_messages"

var ErrInvalidTable = errors.New("invalid table name")

// SQLiteChatStore persists conversations in SQLite.
type SQLiteChatStore struct {
	db    *sql.DB
	table string
	owned bool
}

// Option configures a [SQLiteChatStore].
type Option func(*SQLiteChatStore)

// WithTable stores messages in table instead of "chat_messages".
func WithTable(table string) Option {
	return func(s *SQLiteChatStore) {
		s.table = table
	}
}

func validTable(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		if !(r == '_' || (r >= 'a' && r <= 'z') || (i > 0 && r >= '0' && r <= '9')) {
			return false
		}
	}

	return true
}

// Open opens or creates the database file at path. ":memory:" opens a private in-memory
// database.
func Open(ctx context.Context, path string, opts ...Option) (*SQLiteChatStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open %s", path)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	s, err := New(ctx, db, opts...)
	if err != nil {
		_ = db.Close()

		return nil, err
	}
	s.owned = true

	return s, nil
}

// New uses an already opened database and creates the table when missing.
func New(ctx context.Context, db *sql.DB, opts ...Option) (*SQLiteChatStore, error) {
	s := &SQLiteChatStore{db: db, table: DefaultTable}
	for _, opt := range opts {
		opt(s)
	}

	if !validTable(s.table) {
		return nil, errors.Wrapf(ErrInvalidTable, "%q", s.table)
	}

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_key TEXT NOT NULL,
			message TEXT NOT NULL
		)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_chat_key ON %s(chat_key, seq)`, s.table, s.table),
	}
	for _, stmt := range stmts {
		_, err := db.ExecContext(ctx, stmt)
		if err != nil {
			return nil, errors.Wrap(err, "unable to create schema")
		}
	}

	return s, nil
}

// Close closes the database when the store opened it.
func (s *SQLiteChatStore) Close() error {
	if !s.owned {
		return nil
	}

	return s.db.Close()
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteChatStore) insert(ctx context.Context, q querier, key string, message llm.ChatMessage) error {
	raw, err := jsoniter.MarshalToString(message)
	if err != nil {
		return errors.Wrap(err, "unable to encode message")
	}

	_, err = q.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s (chat_key, message) VALUES (?, ?)`, s.table), key, raw)
	if err != nil {
		return errors.Wrapf(err, "unable to insert message of %s", key)
	}

	return nil
}

func (s *SQLiteChatStore) messages(ctx context.Context, q querier, key string) ([]llm.ChatMessage, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf(`SELECT message FROM %s WHERE chat_key = ? ORDER BY seq`, s.table), key)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to query messages of %s", key)
	}
	defer rows.Close()

	res := []llm.ChatMessage{}
	for rows.Next() {
		var raw string

		err = rows.Scan(&raw)
		if err != nil {
			return nil, errors.Wrap(err, "unable to scan message")
		}

		var msg llm.ChatMessage

		err = jsoniter.UnmarshalFromString(raw, &msg)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to decode message of %s", key)
		}
		res = append(res, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "unable to read messages")
	}

	return res, nil
}

// inTx runs fn in a transaction committed when fn succeeds.
func (s *SQLiteChatStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "unable to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	err = fn(tx)
	if err != nil {
		return err
	}

	err = tx.Commit()
	if err != nil {
		return errors.Wrap(err, "unable to commit")
	}

	return nil
}

func (s *SQLiteChatStore) SetMessages(ctx context.Context, key string, messages []llm.ChatMessage) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE chat_key = ?`, s.table), key)
		if err != nil {
			return errors.Wrapf(err, "unable to clear %s", key)
		}

		for _, msg := range messages {
			err = s.insert(ctx, tx, key, msg)
			if err != nil {
				return err
			}
		}

		log.With(log.F{"table": s.table, "key": key, "messages": len(messages)}).Trace("chat replaced")

		return nil
	})
}

func (s *SQLiteChatStore) GetMessages(ctx context.Context, key string) ([]llm.ChatMessage, error) {
	return s.messages(ctx, s.db, key)
}

func (s *SQLiteChatStore) AddMessage(ctx context.Context, key string, message llm.ChatMessage) error {
	return s.insert(ctx, s.db, key, message)
}

func (s *SQLiteChatStore) DeleteMessages(ctx context.Context, key string) ([]llm.ChatMessage, error) {
	var res []llm.ChatMessage

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error

		res, err = s.messages(ctx, tx, key)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE chat_key = ?`, s.table), key)
		if err != nil {
			return errors.Wrapf(err, "unable to delete %s", key)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

// deleteRow removes the message selected by query, which returns seq and message.
func (s *SQLiteChatStore) deleteRow(ctx context.Context, key, query string, args ...any) (*llm.ChatMessage, error) {
	var res *llm.ChatMessage

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var (
			seq int64
			raw string
		)

		err := tx.QueryRowContext(ctx, query, args...).Scan(&seq, &raw)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "unable to find message of %s", key)
		}

		var msg llm.ChatMessage

		err = jsoniter.UnmarshalFromString(raw, &msg)
		if err != nil {
			return errors.Wrapf(err, "unable to decode message of %s", key)
		}

		_, err = tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE seq = ?`, s.table), seq)
		if err != nil {
			return errors.Wrapf(err, "unable to delete message of %s", key)
		}
		res = &msg

		return nil
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

func (s *SQLiteChatStore) DeleteMessage(ctx context.Context, key string, idx int) (*llm.ChatMessage, error) {
	if idx < 0 {
		return nil, nil
	}

	return s.deleteRow(ctx, key, fmt.Sprintf(`SELECT seq, message FROM %s WHERE chat_key = ? ORDER BY seq LIMIT 1 OFFSET ?`, s.table), key, idx)
}

func (s *SQLiteChatStore) DeleteLastMessage(ctx context.Context, key string) (*llm.ChatMessage, error) {
	return s.deleteRow(ctx, key, fmt.Sprintf(`SELECT seq, message FROM %s WHERE chat_key = ? ORDER BY seq DESC LIMIT 1`, s.table), key)
}

func (s *SQLiteChatStore) GetKeys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT DISTINCT chat_key FROM %s ORDER BY chat_key`, s.table))
	if err != nil {
		return nil, errors.Wrap(err, "unable to query chat keys")
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var key string

		err = rows.Scan(&key)
		if err != nil {
			return nil, errors.Wrap(err, "unable to scan chat key")
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "unable to read chat keys")
	}

	return keys, nil
}

var _ chatstore.ChatStore = (*SQLiteChatStore)(nil)
