package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/yaoapp/kun/log"
	_ "modernc.org/sqlite" // pure Go driver

	"github.com/askiada/go-query-pipeline/pkg/embedding"
	"github.com/askiada/go-query-pipeline/pkg/schema"
	"github.com/askiada/go-query-pipeline/pkg/vectorstore"
)

const DefaultTable = "nodes"

var (
	ErrInvalidTable = errors.New("invalid table name")
	ErrCorruptBlob  = errors.New("embedding blob length is not a multiple of 4")
)

// SQLiteStore persists nodes in SQLite.
type SQLiteStore struct {
	db    *sql.DB
	table string
	owned bool
}

// Option configures a [SQLiteStore].
type Option func(*SQLiteStore)

// WithTable stores nodes in table instead of "nodes".
func WithTable(table string) Option {
	return func(s *SQLiteStore) {
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
func Open(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open %s", path)
	}
	if path == ":memory:" {
		// every connection would see its own database
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
func New(ctx context.Context, db *sql.DB, opts ...Option) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db, table: DefaultTable}
	for _, opt := range opts {
		opt(s)
	}

	if !validTable(s.table) {
		return nil, errors.Wrapf(ErrInvalidTable, "%q", s.table)
	}

	err := s.ensureSchema(ctx)
	if err != nil {
		return nil, err
	}

	return s, nil
}

func (s *SQLiteStore) ensureSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			text TEXT NOT NULL,
			metadata TEXT NOT NULL,
			ref_doc_id TEXT NOT NULL DEFAULT '',
			start_char INTEGER NOT NULL DEFAULT 0,
			end_char INTEGER NOT NULL DEFAULT 0,
			relationships TEXT NOT NULL,
			image_url TEXT NOT NULL DEFAULT '',
			embedding BLOB NOT NULL
		)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_ref_doc_id ON %s(ref_doc_id)`, s.table, s.table),
	}

	for _, stmt := range stmts {
		_, err := s.db.ExecContext(ctx, stmt)
		if err != nil {
			return errors.Wrap(err, "unable to create schema")
		}
	}

	return nil
}

// Close closes the database when the store opened it.
func (s *SQLiteStore) Close() error {
	if !s.owned {
		return nil
	}

	return s.db.Close()
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 0, 4*len(vec))
	for _, v := range vec {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
	}

	return buf
}

func decodeVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, errors.Wrapf(ErrCorruptBlob, "%d bytes", len(blob))
	}

	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[4*i:]))
	}

	return vec, nil
}

// Add stores nodes in a single transaction, replacing nodes with the same id.
func (s *SQLiteStore) Add(ctx context.Context, nodes []*schema.Node) ([]string, error) {
	for _, node := range nodes {
		if len(node.Embedding) == 0 {
			return nil, errors.Wrapf(vectorstore.ErrMissingEmbedding, "node %s", node.ID)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "unable to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT OR REPLACE INTO %s
		(id, kind, text, metadata, ref_doc_id, start_char, end_char, relationships, image_url, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table))
	if err != nil {
		return nil, errors.Wrap(err, "unable to prepare insert")
	}
	defer stmt.Close()

	ids := make([]string, len(nodes))
	for i, node := range nodes {
		metadata, err := jsoniter.MarshalToString(node.Metadata)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to encode metadata of node %s", node.ID)
		}
		relationships, err := jsoniter.MarshalToString(node.Relationships)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to encode relationships of node %s", node.ID)
		}

		kind := node.Kind
		if kind == "" {
			kind = schema.TextNode
		}

		_, err = stmt.ExecContext(ctx, node.ID, string(kind), node.Text, metadata, node.RefDocID,
			node.StartChar, node.EndChar, relationships, node.ImageURL, encodeVector(node.Embedding))
		if err != nil {
			return nil, errors.Wrapf(err, "unable to insert node %s", node.ID)
		}
		ids[i] = node.ID
	}

	err = tx.Commit()
	if err != nil {
		return nil, errors.Wrap(err, "unable to commit")
	}

	log.With(log.F{"table": s.table, "nodes": len(nodes)}).Trace("nodes stored")

	return ids, nil
}

func scanNode(rows *sql.Rows) (*schema.Node, error) {
	var (
		node             schema.Node
		kind, meta, rels string
		blob             []byte
	)

	err := rows.Scan(&node.ID, &kind, &node.Text, &meta, &node.RefDocID, &node.StartChar, &node.EndChar, &rels, &node.ImageURL, &blob)
	if err != nil {
		return nil, errors.Wrap(err, "unable to scan node")
	}

	node.Kind, err = schema.ParseNodeKind(kind)
	if err != nil {
		return nil, err
	}

	err = jsoniter.UnmarshalFromString(meta, &node.Metadata)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to decode metadata of node %s", node.ID)
	}
	err = jsoniter.UnmarshalFromString(rels, &node.Relationships)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to decode relationships of node %s", node.ID)
	}

	node.Embedding, err = decodeVector(blob)
	if err != nil {
		return nil, errors.Wrapf(err, "node %s", node.ID)
	}

	return &node, nil
}

// Query ranks every node matching the filters by cosine similarity.
func (s *SQLiteStore) Query(ctx context.Context, query vectorstore.Query) (*vectorstore.Result, error) {
	err := vectorstore.ValidateQuery(query)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT
		id, kind, text, metadata, ref_doc_id, start_char, end_char, relationships, image_url, embedding
		FROM %s`, s.table))
	if err != nil {
		return nil, errors.Wrap(err, "unable to query nodes")
	}
	defer rows.Close()

	scored := schema.NodesWithScore{}
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		if !vectorstore.MatchFilters(node.Metadata, query.Filters) {
			continue
		}

		score, err := embedding.CosineSimilarity(query.Embedding, node.Embedding)
		if err != nil {
			return nil, errors.Wrapf(err, "node %s", node.ID)
		}
		scored = append(scored, schema.NodeWithScore{Node: node, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "unable to read nodes")
	}

	vectorstore.Rank(scored)
	if len(scored) > query.TopK {
		scored = scored[:query.TopK]
	}

	return &vectorstore.Result{Nodes: scored}, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, refDocID string) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE ref_doc_id = ?`, s.table), refDocID)
	if err != nil {
		return errors.Wrapf(err, "unable to delete document %s", refDocID)
	}

	return nil
}

// Len returns the number of stored nodes.
func (s *SQLiteStore) Len(ctx context.Context) (int, error) {
	var count int

	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table)).Scan(&count)
	if err != nil {
		return 0, errors.Wrap(err, "unable to count nodes")
	}

	return count, nil
}

var _ vectorstore.VectorStore = (*SQLiteStore)(nil)
