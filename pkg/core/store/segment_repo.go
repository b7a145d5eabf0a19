package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"filing_segmenter/pkg/core/segment"
)

// SegmentRepo handles persistence of extracted filing segments.
type SegmentRepo struct{}

// NewSegmentRepo creates a new repository instance.
func NewSegmentRepo() *SegmentRepo {
	return &SegmentRepo{}
}

// Save upserts one section's segments, keyed by provenance id so re-running
// a filing replaces rather than duplicates its rows.
func (r *SegmentRepo) Save(ctx context.Context, segments []segment.Segment) error {
	pool := GetPool()
	if pool == nil {
		return fmt.Errorf("database pool not initialized")
	}

	query := `
		INSERT INTO filing_segments (provenance_id, accession, section_id, sequence_index, segment_json, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (provenance_id)
		DO UPDATE SET
			segment_json = EXCLUDED.segment_json,
			updated_at = EXCLUDED.updated_at;
	`

	now := time.Now()
	for _, seg := range segments {
		accession, sectionID, _, err := segment.ParseProvenanceID(seg.ProvenanceID)
		if err != nil {
			return fmt.Errorf("invalid provenance id %q: %w", seg.ProvenanceID, err)
		}

		jsonData, err := json.Marshal(seg)
		if err != nil {
			return fmt.Errorf("failed to marshal segment: %w", err)
		}

		_, err = pool.Exec(ctx, query,
			seg.ProvenanceID, accession, sectionID, seg.SequenceIndex, jsonData, now)
		if err != nil {
			return fmt.Errorf("failed to save segment %s: %w", seg.ProvenanceID, err)
		}
	}
	return nil
}

// LoadSection retrieves all segments for one filing section in sequence order.
func (r *SegmentRepo) LoadSection(ctx context.Context, accession, sectionID string) ([]segment.Segment, error) {
	pool := GetPool()
	if pool == nil {
		return nil, fmt.Errorf("database pool not initialized")
	}

	query := `
		SELECT segment_json FROM filing_segments
		WHERE accession = $1 AND section_id = $2
		ORDER BY sequence_index;
	`

	rows, err := pool.Query(ctx, query, accession, sectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load segments: %w", err)
	}
	defer rows.Close()

	var segments []segment.Segment
	for rows.Next() {
		var jsonData []byte
		if err := rows.Scan(&jsonData); err != nil {
			return nil, fmt.Errorf("failed to scan segment: %w", err)
		}
		var seg segment.Segment
		if err := json.Unmarshal(jsonData, &seg); err != nil {
			return nil, fmt.Errorf("failed to decode segment: %w", err)
		}
		segments = append(segments, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate segments: %w", err)
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("no segments found for %s item %s: %w", accession, sectionID, pgx.ErrNoRows)
	}
	return segments, nil
}
