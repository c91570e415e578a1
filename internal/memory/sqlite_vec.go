package memory

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// SQLiteVecStore implements VectorStore on a SQLite database. Embeddings are
// stored as BLOBs (little-endian float32 arrays) in the memory_records
// table. Cosine similarity is computed in Go; per-thread record counts stay
// small enough that a linear scan is sub-millisecond.
type SQLiteVecStore struct {
	db        *sql.DB
	dimension int
}

// NewSQLiteVecStore creates a new SQLiteVecStore with the given database
// connection and expected embedding dimension.
func NewSQLiteVecStore(db *sql.DB, dimension int) *SQLiteVecStore {
	return &SQLiteVecStore{db: db, dimension: dimension}
}

// EnsureCollection creates the memory_records table if needed.
func (s *SQLiteVecStore) EnsureCollection(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS memory_records (
			id TEXT PRIMARY KEY,
			thread_id TEXT NOT NULL,
			content TEXT NOT NULL,
			kind TEXT NOT NULL DEFAULT 'turn',
			turn_index INTEGER NOT NULL DEFAULT 0,
			embedding BLOB,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`)
	if err != nil {
		return fmt.Errorf("failed to create memory_records: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_memory_records_thread ON memory_records(thread_id)`)
	return err
}

// Upsert stores or updates a memory record with its embedding. Vectors of
// the wrong dimension are rejected.
func (s *SQLiteVecStore) Upsert(ctx context.Context, id string, vector []float32, payload map[string]interface{}) error {
	if len(vector) != s.dimension {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), s.dimension)
	}
	content, _ := payload[PayloadContent].(string)
	threadID, _ := payload[PayloadThreadID].(string)
	kind, _ := payload[PayloadKind].(string)
	turnIndex, _ := payload[PayloadTurnIndex].(int)
	if kind == "" {
		kind = KindTurn
	}

	blob := encodeFloat32s(vector)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memory_records (id, thread_id, content, kind, turn_index, embedding)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			thread_id = excluded.thread_id,
			content = excluded.content,
			kind = excluded.kind,
			turn_index = excluded.turn_index,
			embedding = excluded.embedding
	`, id, threadID, content, kind, turnIndex, blob)
	return err
}

// Search finds the top-k most similar records in one thread by cosine
// similarity.
func (s *SQLiteVecStore) Search(ctx context.Context, threadID string, vector []float32, limit int) ([]Result, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, kind, turn_index, embedding
		FROM memory_records
		WHERE thread_id = ? AND embedding IS NOT NULL
	`, threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []Result

	for rows.Next() {
		var id, content, kind string
		var turnIndex int
		var blob []byte

		if err := rows.Scan(&id, &content, &kind, &turnIndex, &blob); err != nil {
			continue
		}

		stored := decodeFloat32s(blob)
		if len(stored) != len(vector) {
			continue // dimension mismatch, skip
		}

		candidates = append(candidates, Result{
			ID:    id,
			Score: cosineSimilarity(vector, stored),
			Payload: map[string]interface{}{
				PayloadContent:   content,
				PayloadThreadID:  threadID,
				PayloadKind:      kind,
				PayloadTurnIndex: turnIndex,
			},
		})
	}

	// Sort by similarity descending
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// encodeFloat32s converts a float32 slice to little-endian bytes.
func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeFloat32s converts little-endian bytes back to a float32 slice.
func decodeFloat32s(b []byte) []float32 {
	if len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

// cosineSimilarity computes the cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		ai, bi := float64(a[i]), float64(b[i])
		dot += ai * bi
		normA += ai * ai
		normB += bi * bi
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return float32(dot / denom)
}
