package vecstore

import "fmt"

// schemaSQL returns the DDL for the vector store. embeddingDim controls
// the vec0 virtual table dimension.
func schemaSQL(embeddingDim int) string {
	return fmt.Sprintf(`
-- Incident registry. rowid is the join key into the vec0 table; the
-- payload column carries the full incident record so a search hit can be
-- materialized without any other store being available.
CREATE TABLE IF NOT EXISTS incidents (
    rowid INTEGER PRIMARY KEY,
    incident_id TEXT NOT NULL UNIQUE,
    payload JSON NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Vector embeddings via sqlite-vec
CREATE VIRTUAL TABLE IF NOT EXISTS vec_incidents USING vec0(
    incident_rowid INTEGER PRIMARY KEY,
    embedding float[%d] distance_metric=cosine
);

-- Query audit log
CREATE TABLE IF NOT EXISTS query_log (
    id INTEGER PRIMARY KEY,
    query TEXT NOT NULL,
    strategy TEXT,
    complexity TEXT,
    confidence REAL,
    sources JSON,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- User feedback on answers
CREATE TABLE IF NOT EXISTS feedback_log (
    id INTEGER PRIMARY KEY,
    query TEXT NOT NULL,
    helpful INTEGER NOT NULL,
    comment TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_incidents_id ON incidents(incident_id);
CREATE INDEX IF NOT EXISTS idx_query_log_created ON query_log(created_at);
`, embeddingDim)
}
