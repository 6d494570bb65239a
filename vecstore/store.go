// Package vecstore persists incident embeddings in SQLite via sqlite-vec
// and serves KNN queries over them. It also carries the query audit log
// and user feedback, which live naturally next to the vectors.
package vecstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/sherlockai/sherlock/corpus"
)

func init() {
	sqlite_vec.Auto()
}

// payloadFieldPattern restricts filterable field names; they are spliced
// into the json_extract path.
var payloadFieldPattern = regexp.MustCompile(`^[a-z_]+$`)

// Index is the interface the retrieval layer consumes: KNN queries and
// vector upserts. Store is the production implementation.
type Index interface {
	Query(ctx context.Context, vector []float32, k int, filter map[string]string) ([]Match, error)
	Upsert(ctx context.Context, inc corpus.Incident, embedding []float32) error
}

// Match is a KNN hit: cosine similarity plus the full incident payload.
type Match struct {
	ID       string          `json:"id"`
	Score    float64         `json:"score"`
	Incident corpus.Incident `json:"incident"`
}

// QueryLog represents a row in the query_log table.
type QueryLog struct {
	Query      string      `json:"query"`
	Strategy   string      `json:"strategy"`
	Complexity string      `json:"complexity"`
	Confidence float64     `json:"confidence"`
	Sources    interface{} `json:"sources"`
}

// Feedback represents a row in the feedback_log table.
type Feedback struct {
	Query   string `json:"query"`
	Helpful bool   `json:"helpful"`
	Comment string `json:"comment,omitempty"`
}

// Stats holds counts of key store objects.
type Stats struct {
	Incidents  int `json:"incidents"`
	Embeddings int `json:"embeddings"`
	Queries    int `json:"queries"`
	Feedback   int `json:"feedback"`
}

// Store wraps the SQLite database holding vectors and audit data.
type Store struct {
	db           *sql.DB
	embeddingDim int
}

// New opens (or creates) a SQLite database at the given path and
// initialises the schema including the sqlite-vec virtual table.
func New(dbPath string, embeddingDim int) (*Store, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schemaSQL(embeddingDim)); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	// Connection pool settings for SQLite.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, embeddingDim: embeddingDim}

	// Run pending migrations.
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// EmbeddingDim returns the configured embedding dimension.
func (s *Store) EmbeddingDim() int {
	return s.embeddingDim
}

// Upsert stores (or replaces) an incident and its embedding in one
// transaction so the registry and the vec0 table never disagree.
func (s *Store) Upsert(ctx context.Context, inc corpus.Incident, embedding []float32) error {
	if len(embedding) != s.embeddingDim {
		return fmt.Errorf("embedding dimension %d, want %d", len(embedding), s.embeddingDim)
	}

	payload, err := json.Marshal(inc)
	if err != nil {
		return fmt.Errorf("encoding incident %s: %w", inc.ID, err)
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO incidents (incident_id, payload)
			VALUES (?, ?)
			ON CONFLICT(incident_id) DO UPDATE SET
				payload = excluded.payload,
				updated_at = CURRENT_TIMESTAMP
		`, inc.ID, string(payload)); err != nil {
			return err
		}

		// LastInsertId is unreliable on the UPDATE path of an upsert, so
		// always resolve the rowid by incident id.
		var rowid int64
		row := tx.QueryRowContext(ctx,
			"SELECT rowid FROM incidents WHERE incident_id = ?", inc.ID)
		if err := row.Scan(&rowid); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			"DELETE FROM vec_incidents WHERE incident_rowid = ?", rowid); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO vec_incidents (incident_rowid, embedding) VALUES (?, ?)",
			rowid, serializeFloat32(embedding))
		return err
	})
}

// Query performs a KNN search returning the top-k nearest incidents.
// Cosine distance is converted to a similarity in [0, 1]. filter is an
// optional equality match on top-level fields of the incident payload
// (e.g. {"resolved_by": "ops"}); nil means no filtering.
func (s *Store) Query(ctx context.Context, queryEmbedding []float32, k int, filter map[string]string) ([]Match, error) {
	if len(queryEmbedding) != s.embeddingDim {
		return nil, fmt.Errorf("embedding dimension %d, want %d", len(queryEmbedding), s.embeddingDim)
	}
	if k <= 0 {
		return nil, nil
	}

	query := `
		SELECT i.incident_id, v.distance, i.payload
		FROM vec_incidents v
		JOIN incidents i ON i.rowid = v.incident_rowid
		WHERE v.embedding MATCH ? AND k = ?`
	args := []interface{}{serializeFloat32(queryEmbedding), k}
	for field, want := range filter {
		if !payloadFieldPattern.MatchString(field) {
			return nil, fmt.Errorf("invalid filter field %q", field)
		}
		query += fmt.Sprintf(" AND json_extract(i.payload, '$.%s') = ?", field)
		args = append(args, want)
	}
	query += " ORDER BY v.distance"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		var distance float64
		var payload string
		if err := rows.Scan(&m.ID, &distance, &payload); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &m.Incident); err != nil {
			return nil, fmt.Errorf("decoding incident %s: %w", m.ID, err)
		}
		// Convert cosine distance to similarity, clamped to [0, 1].
		m.Score = 1.0 - distance
		if m.Score < 0 {
			m.Score = 0
		} else if m.Score > 1 {
			m.Score = 1
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// Count returns the number of stored incidents.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM incidents").Scan(&n)
	return n, err
}

// LogQuery writes an entry to the query audit log.
func (s *Store) LogQuery(ctx context.Context, q QueryLog) error {
	sourcesJSON, _ := json.Marshal(q.Sources)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO query_log (query, strategy, complexity, confidence, sources)
		VALUES (?, ?, ?, ?, ?)
	`, q.Query, q.Strategy, q.Complexity, q.Confidence, string(sourcesJSON))
	return err
}

// LogFeedback records user feedback on an answer.
func (s *Store) LogFeedback(ctx context.Context, f Feedback) error {
	helpful := 0
	if f.Helpful {
		helpful = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback_log (query, helpful, comment)
		VALUES (?, ?, ?)
	`, f.Query, helpful, f.Comment)
	return err
}

// DBStats returns counts of incidents, embeddings, queries, and feedback.
func (s *Store) DBStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM incidents", &stats.Incidents},
		{"SELECT COUNT(*) FROM vec_incidents", &stats.Embeddings},
		{"SELECT COUNT(*) FROM query_log", &stats.Queries},
		{"SELECT COUNT(*) FROM feedback_log", &stats.Feedback},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("counting %s: %w", q.query, err)
		}
	}
	return stats, nil
}

// --- helpers ---

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// serializeFloat32 converts a float32 slice to little-endian bytes for sqlite-vec.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
