package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"math"

	"go.uber.org/zap"

	"github.com/innoscope/innoscope/errors"
)

// EmbeddingDimensions is the fixed width of stored embeddings; it must match
// the vec_innovations table definition.
const EmbeddingDimensions = 768

// VectorStore provides vector similarity operations over innovation
// embeddings via sqlite-vec.
type VectorStore struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewVectorStore creates a new vector store.
func NewVectorStore(db *sql.DB, logger *zap.SugaredLogger) *VectorStore {
	return &VectorStore{db: db, logger: logger}
}

// Ping verifies the vec0 module is loaded and responding.
func (s *VectorStore) Ping(ctx context.Context) error {
	var version string
	if err := s.db.QueryRowContext(ctx, "SELECT vec_version()").Scan(&version); err != nil {
		return errors.Wrap(err, "vector extension unavailable")
	}
	return nil
}

// SaveEmbedding stores the embedding for an innovation, replacing any
// existing one. Virtual tables don't support UPSERT, so delete then insert.
func (s *VectorStore) SaveEmbedding(innovationID string, embedding []float32) error {
	if len(embedding) != EmbeddingDimensions {
		return errors.Newf("embedding has %d dimensions, expected %d",
			len(embedding), EmbeddingDimensions)
	}

	blob := SerializeFloat32(embedding)

	_, _ = s.db.Exec("DELETE FROM vec_innovations WHERE innovation_id = ?", innovationID)

	_, err := s.db.Exec(
		"INSERT INTO vec_innovations (innovation_id, embedding) VALUES (?, ?)",
		innovationID, blob,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to save embedding for %s", innovationID)
	}

	s.logger.Debugw("Saved embedding",
		"innovation_id", innovationID,
		"dimensions", len(embedding))

	return nil
}

// SimilarInnovation is one nearest-neighbor search result.
type SimilarInnovation struct {
	InnovationID string  `json:"innovation_id"`
	Distance     float64 `json:"distance"`
}

// SearchSimilar returns the limit nearest innovations to the query embedding
// by L2 distance, nearest first.
func (s *VectorStore) SearchSimilar(embedding []float32, limit int) ([]SimilarInnovation, error) {
	if len(embedding) != EmbeddingDimensions {
		return nil, errors.Newf("query embedding has %d dimensions, expected %d",
			len(embedding), EmbeddingDimensions)
	}

	rows, err := s.db.Query(`
		SELECT innovation_id, distance
		FROM vec_innovations
		WHERE embedding MATCH ?
		ORDER BY distance
		LIMIT ?
	`, SerializeFloat32(embedding), limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to search embeddings")
	}
	defer rows.Close()

	var results []SimilarInnovation
	for rows.Next() {
		var r SimilarInnovation
		if err := rows.Scan(&r.InnovationID, &r.Distance); err != nil {
			return nil, errors.Wrap(err, "failed to scan search result")
		}
		results = append(results, r)
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating search results")
	}

	return results, nil
}

// DeleteEmbedding removes an innovation's embedding if present.
func (s *VectorStore) DeleteEmbedding(innovationID string) error {
	_, err := s.db.Exec("DELETE FROM vec_innovations WHERE innovation_id = ?", innovationID)
	if err != nil {
		return errors.Wrapf(err, "failed to delete embedding for %s", innovationID)
	}
	return nil
}

// SerializeFloat32 converts an embedding to the little-endian FLOAT32 blob
// format sqlite-vec expects.
func SerializeFloat32(embedding []float32) []byte {
	buf := make([]byte, len(embedding)*4)
	for i, val := range embedding {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(val))
	}
	return buf
}

// DeserializeFloat32 converts a FLOAT32 blob back to an embedding.
func DeserializeFloat32(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, errors.Newf("invalid embedding blob length %d", len(blob))
	}
	embedding := make([]float32, len(blob)/4)
	for i := range embedding {
		embedding[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return embedding, nil
}
