package storage

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/innoscope/innoscope/errors"
)

// Innovation is one ingested record from any of the collection pipelines.
type Innovation struct {
	ID                 string     `json:"id"`
	Title              string     `json:"title"`
	Summary            string     `json:"summary"`
	URL                string     `json:"url"`
	SourcePipeline     string     `json:"source_pipeline"`
	PublishedAt        *time.Time `json:"published_at,omitempty"`
	IntelligenceType   string     `json:"intelligence_type"`
	GeographicFocus    string     `json:"geographic_focus"`
	EnrichedAt         *time.Time `json:"enriched_at,omitempty"`
	EnrichmentProvider *string    `json:"enrichment_provider,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Enriched reports whether the record has been through an enrichment pass.
func (i *Innovation) Enriched() bool {
	return i.EnrichedAt != nil
}

// InnovationStore provides database operations for innovation records.
type InnovationStore struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewInnovationStore creates a new innovation store.
func NewInnovationStore(db *sql.DB, logger *zap.SugaredLogger) *InnovationStore {
	return &InnovationStore{db: db, logger: logger}
}

// Save upserts an innovation, deduplicating on URL. Returns true when a new
// row was inserted, false when an existing record was refreshed.
func (s *InnovationStore) Save(inn *Innovation) (bool, error) {
	if inn == nil {
		return false, errors.New("innovation is nil")
	}
	if inn.URL == "" {
		return false, errors.New("innovation URL is required")
	}
	if inn.ID == "" {
		inn.ID = "INV_" + uuid.NewString()
	}

	now := time.Now().UTC()
	if inn.CreatedAt.IsZero() {
		inn.CreatedAt = now
	}
	inn.UpdatedAt = now

	var existingID string
	err := s.db.QueryRow("SELECT id FROM innovations WHERE url = ?", inn.URL).Scan(&existingID)
	switch {
	case err == sql.ErrNoRows:
		// New record
	case err != nil:
		return false, errors.Wrapf(err, "failed to check for existing innovation %s", inn.URL)
	default:
		inn.ID = existingID
	}

	inserted := existingID == ""

	if inserted {
		_, err = s.db.Exec(`
			INSERT INTO innovations (
				id, title, summary, url, source_pipeline, published_at,
				intelligence_type, geographic_focus,
				enriched_at, enrichment_provider,
				created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			inn.ID,
			inn.Title,
			inn.Summary,
			inn.URL,
			inn.SourcePipeline,
			formatNullableTime(inn.PublishedAt),
			inn.IntelligenceType,
			inn.GeographicFocus,
			formatNullableTime(inn.EnrichedAt),
			nullableString(inn.EnrichmentProvider),
			inn.CreatedAt.Format(time.RFC3339),
			inn.UpdatedAt.Format(time.RFC3339),
		)
	} else {
		// Re-ingested record: refresh the content, keep original provenance
		// and enrichment state.
		_, err = s.db.Exec(`
			UPDATE innovations
			SET title = ?, summary = ?, updated_at = ?
			WHERE id = ?
		`,
			inn.Title,
			inn.Summary,
			inn.UpdatedAt.Format(time.RFC3339),
			inn.ID,
		)
	}
	if err != nil {
		return false, errors.Wrapf(err, "failed to save innovation %s", inn.URL)
	}

	s.logger.Debugw("Saved innovation",
		"id", inn.ID,
		"source_pipeline", inn.SourcePipeline,
		"inserted", inserted)

	return inserted, nil
}

// GetByID retrieves an innovation by ID.
func (s *InnovationStore) GetByID(id string) (*Innovation, error) {
	row := s.db.QueryRow(selectInnovation+" WHERE id = ?", id)
	inn, err := scanInnovation(row)
	if err == sql.ErrNoRows {
		return nil, errors.Mark(errors.Newf("innovation not found: %s", id), errors.ErrNotFound)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get innovation %s", id)
	}
	return inn, nil
}

// ListUnenriched retrieves up to limit records that have never been enriched,
// oldest first.
func (s *InnovationStore) ListUnenriched(limit int) ([]*Innovation, error) {
	rows, err := s.db.Query(selectInnovation+`
		WHERE enriched_at IS NULL
		ORDER BY created_at ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list unenriched innovations")
	}
	defer rows.Close()

	var innovations []*Innovation
	for rows.Next() {
		inn, err := scanInnovation(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan innovation")
		}
		innovations = append(innovations, inn)
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating innovations")
	}

	return innovations, nil
}

// MarkEnriched records a completed enrichment pass against the innovation.
func (s *InnovationStore) MarkEnriched(id, provider string, intelligenceType string, enrichedAt time.Time) error {
	result, err := s.db.Exec(`
		UPDATE innovations
		SET enriched_at = ?,
		    enrichment_provider = ?,
		    intelligence_type = ?,
		    updated_at = ?
		WHERE id = ?
	`,
		enrichedAt.UTC().Format(time.RFC3339),
		provider,
		intelligenceType,
		time.Now().UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to mark innovation %s enriched", id)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check rows affected")
	}
	if rowsAffected == 0 {
		return errors.Mark(errors.Newf("innovation not found: %s", id), errors.ErrNotFound)
	}

	return nil
}

// Count returns the total number of stored innovations.
func (s *InnovationStore) Count() (int, error) {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM innovations").Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count innovations")
	}
	return count, nil
}

const selectInnovation = `
	SELECT id, title, summary, url, source_pipeline, published_at,
	       intelligence_type, geographic_focus,
	       enriched_at, enrichment_provider,
	       created_at, updated_at
	FROM innovations
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInnovation(row rowScanner) (*Innovation, error) {
	var inn Innovation
	var publishedAt, enrichedAt, enrichmentProvider sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&inn.ID,
		&inn.Title,
		&inn.Summary,
		&inn.URL,
		&inn.SourcePipeline,
		&publishedAt,
		&inn.IntelligenceType,
		&inn.GeographicFocus,
		&enrichedAt,
		&enrichmentProvider,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	inn.PublishedAt = parseNullableTime(publishedAt)
	inn.EnrichedAt = parseNullableTime(enrichedAt)
	if enrichmentProvider.Valid {
		inn.EnrichmentProvider = &enrichmentProvider.String
	}
	inn.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	inn.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	return &inn, nil
}

func formatNullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func parseNullableTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullableString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}
