package vectorindex

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	_ "github.com/mattn/go-sqlite3"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"

	"github.com/nickcecere/docvec/internal/embeddings"
)

func init() {
	// Register sqlite-vec extension
	sqlite_vec.Auto()
}

const entriesTable = `
CREATE TABLE IF NOT EXISTS entries (
	pk INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	content TEXT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}'
);
`

const indexMetaTable = `
CREATE TABLE IF NOT EXISTS index_meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// SQLiteIndex stores entries in SQLite with a sqlite-vec virtual table for
// the embeddings. Filters are evaluated with json_extract on metadata.
type SQLiteIndex struct {
	db    *sql.DB
	mu    sync.RWMutex
	emb   embeddings.Service
	batch embeddings.BatchOptions

	dimensions int // 0 until the vector table exists
}

// NewSQLiteIndex opens (or creates) a sqlite-vec index at dbPath.
func NewSQLiteIndex(dbPath string, emb embeddings.Service, batch embeddings.BatchOptions) (*SQLiteIndex, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open index database: %w", err)
	}

	for _, stmt := range []string{entriesTable, indexMetaTable} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize index schema: %w", err)
		}
	}

	idx := &SQLiteIndex{db: db, emb: emb, batch: batch}

	var dims string
	err = db.QueryRow("SELECT value FROM index_meta WHERE key = 'dimensions'").Scan(&dims)
	if err != nil && err != sql.ErrNoRows {
		db.Close()
		return nil, fmt.Errorf("failed to read index metadata: %w", err)
	}
	if dims != "" {
		fmt.Sscanf(dims, "%d", &idx.dimensions)
	}

	log.Debug("Opened sqlite-vec index", "path", dbPath, "dimensions", idx.dimensions)
	return idx, nil
}

// Add implements Index.
func (s *SQLiteIndex) Add(ctx context.Context, docs []Document) ([]string, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	ids, vectors, err := embedDocuments(ctx, s.emb, s.batch, docs)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureVectorTable(len(vectors[0])); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i, d := range docs {
		if len(vectors[i]) != s.dimensions {
			return nil, fmt.Errorf("embedding has %d dimensions, index has %d", len(vectors[i]), s.dimensions)
		}

		meta, err := json.Marshal(d.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to encode metadata: %w", err)
		}

		// Replace any previous entry with the same ID
		if _, err := tx.ExecContext(ctx, "DELETE FROM entry_vectors WHERE entry_rowid IN (SELECT pk FROM entries WHERE id = ?)", d.ID); err != nil {
			return nil, fmt.Errorf("failed to replace vector: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM entries WHERE id = ?", d.ID); err != nil {
			return nil, fmt.Errorf("failed to replace entry: %w", err)
		}

		result, err := tx.ExecContext(ctx, "INSERT INTO entries (id, content, metadata) VALUES (?, ?, ?)", d.ID, d.Content, string(meta))
		if err != nil {
			return nil, fmt.Errorf("failed to insert entry %d: %w", i, err)
		}
		rowID, _ := result.LastInsertId()

		if _, err := tx.ExecContext(ctx, "INSERT INTO entry_vectors (entry_rowid, embedding) VALUES (?, ?)", rowID, serializeEmbedding(vectors[i])); err != nil {
			return nil, fmt.Errorf("failed to insert vector %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit entries: %w", err)
	}

	return ids, nil
}

// SimilaritySearch implements Index.
func (s *SQLiteIndex) SimilaritySearch(ctx context.Context, req SearchRequest) ([]Document, error) {
	if req.Query == "" {
		return s.scan(ctx, req)
	}

	query, err := s.emb.EmbedQuery(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.dimensions == 0 {
		return nil, nil
	}
	if len(query) != s.dimensions {
		return nil, fmt.Errorf("query embedding has %d dimensions, index has %d", len(query), s.dimensions)
	}

	topK := req.TopK
	if topK <= 0 {
		topK = 10
	}
	queryBlob := serializeEmbedding(query)

	var rows *sql.Rows
	if len(req.Filter) == 0 {
		rows, err = s.db.QueryContext(ctx, `
			SELECT e.id, e.content, e.metadata, v.distance
			FROM entry_vectors v
			JOIN entries e ON e.pk = v.entry_rowid
			WHERE v.embedding MATCH ? AND k = ?
			ORDER BY v.distance ASC
		`, queryBlob, topK)
	} else {
		// Exact distances over the filtered subset
		where, args := filterClause(req.Filter)
		args = append([]any{queryBlob}, args...)
		args = append(args, topK)
		rows, err = s.db.QueryContext(ctx, `
			SELECT e.id, e.content, e.metadata, vec_distance_cosine(v.embedding, ?) AS distance
			FROM entries e
			JOIN entry_vectors v ON v.entry_rowid = e.pk
			WHERE `+where+`
			ORDER BY distance ASC
			LIMIT ?
		`, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		var meta string
		var distance float64
		if err := rows.Scan(&d.ID, &d.Content, &meta, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &d.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
		d.Score = 1 - distance // Convert distance to similarity
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return rank(docs, req.Threshold, topK), nil
}

// scan returns entries in insertion order without ranking.
func (s *SQLiteIndex) scan(ctx context.Context, req SearchRequest) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT e.id, e.content, e.metadata FROM entries e"
	var args []any
	if len(req.Filter) > 0 {
		where, fargs := filterClause(req.Filter)
		query += " WHERE " + where
		args = fargs
	}
	query += " ORDER BY e.pk"
	if req.TopK > 0 {
		query += " LIMIT ?"
		args = append(args, req.TopK)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to scan entries: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		var meta string
		if err := rows.Scan(&d.ID, &d.Content, &meta); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &d.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// Delete implements Index.
func (s *SQLiteIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	const batch = 500
	for start := 0; start < len(ids); start += batch {
		end := start + batch
		if end > len(ids) {
			end = len(ids)
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", end-start), ",")
		args := make([]any, 0, end-start)
		for _, id := range ids[start:end] {
			args = append(args, id)
		}

		if s.dimensions > 0 {
			if _, err := tx.ExecContext(ctx, "DELETE FROM entry_vectors WHERE entry_rowid IN (SELECT pk FROM entries WHERE id IN ("+placeholders+"))", args...); err != nil {
				return fmt.Errorf("failed to delete vectors: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM entries WHERE id IN ("+placeholders+")", args...); err != nil {
			return fmt.Errorf("failed to delete entries: %w", err)
		}
	}

	return tx.Commit()
}

// Count implements Index.
func (s *SQLiteIndex) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return count, nil
}

// SupportsFilter implements Index.
func (s *SQLiteIndex) SupportsFilter() bool {
	return true
}

// Close implements Index.
func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}

// ensureVectorTable creates the vec0 table on first use. The caller holds
// the write lock.
func (s *SQLiteIndex) ensureVectorTable(dimensions int) error {
	if s.dimensions != 0 {
		if s.dimensions != dimensions {
			return fmt.Errorf("embedding has %d dimensions, index has %d", dimensions, s.dimensions)
		}
		return nil
	}
	if dimensions <= 0 {
		return fmt.Errorf("invalid embedding dimensions: %d", dimensions)
	}

	log.Debug("Creating vector table", "dimensions", dimensions)

	query := fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS entry_vectors USING vec0(
			entry_rowid INTEGER PRIMARY KEY,
			embedding float[%d] distance_metric=cosine
		);
	`, dimensions)
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create vector table: %w", err)
	}

	if _, err := s.db.Exec("INSERT OR REPLACE INTO index_meta (key, value) VALUES ('dimensions', ?)", fmt.Sprint(dimensions)); err != nil {
		return fmt.Errorf("failed to record dimensions: %w", err)
	}

	s.dimensions = dimensions
	return nil
}

// filterClause renders a Filter as json_extract equality tests. Keys are
// sorted so the SQL is stable.
func filterClause(f Filter) (string, []any) {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys)*2)
	for _, k := range keys {
		parts = append(parts, "json_extract(e.metadata, ?) = ?")
		args = append(args, "$."+k, f[k])
	}
	return strings.Join(parts, " AND "), args
}

// serializeEmbedding converts a float32 slice to bytes for sqlite-vec.
func serializeEmbedding(embedding []float32) []byte {
	buf := make([]byte, len(embedding)*4)
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}
