package storage

import (
	"context"
	"fmt"

	"github.com/wagnerlima/graph-memory/internal/models"
)

// searchLimit caps the number of full-text observation matches per query.
const searchLimit = 20

// Search runs two independent lookups and returns both result sets without
// deduplicating between them: a case-insensitive substring match over entity
// name and type, and an FTS5 match over observation content ordered by
// relevance. Callers wanting a merged per-entity view join the lists
// themselves.
func (s *Store) Search(ctx context.Context, query string) (*models.SearchResult, error) {
	result := &models.SearchResult{}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, entity_type, created_at, updated_at FROM entities
		 WHERE name LIKE '%' || ? || '%' OR entity_type LIKE '%' || ? || '%'
		 ORDER BY name`,
		query, query,
	)
	if err != nil {
		return nil, fmt.Errorf("search entities: %w", err)
	}
	result.Entities, err = scanEntities(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	obsRows, err := s.db.QueryContext(ctx,
		`SELECT e.name, e.entity_type, o.content
		 FROM observations_fts
		 JOIN observations o ON o.rowid = observations_fts.rowid
		 JOIN entities e ON e.id = o.entity_id
		 WHERE observations_fts MATCH ?
		 ORDER BY observations_fts.rank
		 LIMIT ?`,
		query, searchLimit,
	)
	if err != nil {
		return nil, fmt.Errorf("search observations: %w", err)
	}
	defer obsRows.Close()

	for obsRows.Next() {
		var m models.ObservationMatch
		if err := obsRows.Scan(&m.EntityName, &m.EntityType, &m.Content); err != nil {
			return nil, fmt.Errorf("scan observation match: %w", err)
		}
		result.Observations = append(result.Observations, m)
	}
	return result, obsRows.Err()
}
