package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"golang.org/x/sync/errgroup"

	"github.com/wagnerlima/graph-memory/internal/models"
)

// ErrEntityNotFound is returned when an operation references an entity
// name that does not exist in the store.
var ErrEntityNotFound = errors.New("entity not found")

// readGraphConcurrency bounds the parallel per-entity observation fetches
// issued by ReadGraph.
const readGraphConcurrency = 8

// Store manages the knowledge graph database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the graph database at dbPath and runs migrations.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", "file:"+dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("open graph db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping graph db: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate graph db: %w", err)
	}
	if _, err := db.Exec(Triggers); err != nil {
		db.Close()
		return nil, fmt.Errorf("create fts triggers: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateEntities inserts entities by unique name, appending their initial
// observations. An entity whose name already exists is not an error: its
// observations are appended to the existing row. Each entity commits
// independently, so a failure midway leaves earlier entities in place.
// Returns the number of entities processed, duplicates included.
func (s *Store) CreateEntities(ctx context.Context, entities []models.EntityInput) (int, error) {
	for _, e := range entities {
		if err := s.createEntity(ctx, e); err != nil {
			return 0, fmt.Errorf("create entity %q: %w", e.Name, err)
		}
	}
	return len(entities), nil
}

func (s *Store) createEntity(ctx context.Context, e models.EntityInput) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Insert-or-ignore by unique name; on conflict the existing row wins
	// and we resolve its id below.
	_, err = tx.ExecContext(ctx,
		`INSERT INTO entities (id, name, entity_type) VALUES (?, ?, ?) ON CONFLICT(name) DO NOTHING`,
		uuid.New().String(), e.Name, e.EntityType,
	)
	if err != nil {
		return fmt.Errorf("insert entity: %w", err)
	}

	var entityID string
	if err := tx.QueryRowContext(ctx, `SELECT id FROM entities WHERE name = ?`, e.Name).Scan(&entityID); err != nil {
		return fmt.Errorf("resolve entity id: %w", err)
	}

	if len(e.Observations) > 0 {
		if err := insertObservations(ctx, tx, entityID, e.Observations); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// insertObservations appends contents to an entity inside tx and refreshes
// the entity's updated_at.
func insertObservations(ctx context.Context, tx *sql.Tx, entityID string, contents []string) error {
	for _, content := range contents {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO observations (id, entity_id, content) VALUES (?, ?, ?)`,
			uuid.New().String(), entityID, content,
		)
		if err != nil {
			return fmt.Errorf("insert observation: %w", err)
		}
	}
	_, err := tx.ExecContext(ctx,
		`UPDATE entities SET updated_at = datetime('now') WHERE id = ?`, entityID,
	)
	if err != nil {
		return fmt.Errorf("refresh updated_at: %w", err)
	}
	return nil
}

// AddObservations appends contents to the named entity in one atomic batch
// and refreshes its updated_at. Returns ErrEntityNotFound when the name
// does not exist, and the number of observations added otherwise.
func (s *Store) AddObservations(ctx context.Context, entityName string, contents []string) (int, error) {
	entityID, err := s.resolveEntity(ctx, entityName)
	if err != nil {
		return 0, err
	}
	if len(contents) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := insertObservations(ctx, tx, entityID, contents); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(contents), nil
}

// CreateRelations inserts directed relations between entities identified by
// name. A relation whose endpoint is missing is skipped silently; a
// duplicate (from, to, relationType) triple is a no-op. Returns the number
// of relations attempted.
func (s *Store) CreateRelations(ctx context.Context, relations []models.Relation) (int, error) {
	for _, r := range relations {
		fromID, err := s.resolveEntity(ctx, r.From)
		if errors.Is(err, ErrEntityNotFound) {
			continue
		}
		if err != nil {
			return 0, err
		}
		toID, err := s.resolveEntity(ctx, r.To)
		if errors.Is(err, ErrEntityNotFound) {
			continue
		}
		if err != nil {
			return 0, err
		}

		_, err = s.db.ExecContext(ctx,
			`INSERT INTO relations (id, from_entity, to_entity, relation_type) VALUES (?, ?, ?, ?)
			 ON CONFLICT(from_entity, to_entity, relation_type) DO NOTHING`,
			uuid.New().String(), fromID, toID, r.RelationType,
		)
		if err != nil {
			return 0, fmt.Errorf("insert relation %q-[%s]->%q: %w", r.From, r.RelationType, r.To, err)
		}
	}
	return len(relations), nil
}

// DeleteEntity removes the named entity, cascading to its observations and
// to every relation referencing it as source or target. Reports whether
// the entity existed; a missing name is a no-op, not an error.
func (s *Store) DeleteEntity(ctx context.Context, name string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var entityID string
	err = tx.QueryRowContext(ctx, `SELECT id FROM entities WHERE name = ?`, name).Scan(&entityID)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup entity %q: %w", name, err)
	}

	// Relations first, then observations (firing the FTS delete trigger),
	// then the entity row itself.
	_, err = tx.ExecContext(ctx,
		`DELETE FROM relations WHERE from_entity = ? OR to_entity = ?`, entityID, entityID,
	)
	if err != nil {
		return false, fmt.Errorf("delete relations: %w", err)
	}
	_, err = tx.ExecContext(ctx, `DELETE FROM observations WHERE entity_id = ?`, entityID)
	if err != nil {
		return false, fmt.Errorf("delete observations: %w", err)
	}
	_, err = tx.ExecContext(ctx, `DELETE FROM entities WHERE id = ?`, entityID)
	if err != nil {
		return false, fmt.Errorf("delete entity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// DeleteEntities cascade-deletes each named entity; missing names are
// no-ops. Returns the number of names requested.
func (s *Store) DeleteEntities(ctx context.Context, names []string) (int, error) {
	for _, name := range names {
		if _, err := s.DeleteEntity(ctx, name); err != nil {
			return 0, err
		}
	}
	return len(names), nil
}

// DeleteRelation removes the relation matching the given triple. Reports
// whether a matching row existed; missing endpoints or triples are no-ops.
func (s *Store) DeleteRelation(ctx context.Context, from, to, relationType string) (bool, error) {
	fromID, err := s.resolveEntity(ctx, from)
	if errors.Is(err, ErrEntityNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	toID, err := s.resolveEntity(ctx, to)
	if errors.Is(err, ErrEntityNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM relations WHERE from_entity = ? AND to_entity = ? AND relation_type = ?`,
		fromID, toID, relationType,
	)
	if err != nil {
		return false, fmt.Errorf("delete relation: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// DeleteRelations removes each matching triple; unmatched triples are
// no-ops. Returns the number of triples requested.
func (s *Store) DeleteRelations(ctx context.Context, relations []models.Relation) (int, error) {
	for _, r := range relations {
		if _, err := s.DeleteRelation(ctx, r.From, r.To, r.RelationType); err != nil {
			return 0, err
		}
	}
	return len(relations), nil
}

// GetEntity retrieves one entity by exact name with its observations, or
// ErrEntityNotFound.
func (s *Store) GetEntity(ctx context.Context, name string) (*models.Entity, error) {
	var e models.Entity
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, entity_type, created_at, updated_at FROM entities WHERE name = ?`, name,
	).Scan(&e.ID, &e.Name, &e.EntityType, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrEntityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query entity %q: %w", name, err)
	}

	obs, err := s.getObservations(ctx, e.ID)
	if err != nil {
		return nil, err
	}
	e.Observations = obs
	return &e, nil
}

// GetEntities retrieves multiple entities by exact name, skipping names
// with no match.
func (s *Store) GetEntities(ctx context.Context, names []string) ([]models.Entity, error) {
	var entities []models.Entity
	for _, name := range names {
		e, err := s.GetEntity(ctx, name)
		if errors.Is(err, ErrEntityNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		entities = append(entities, *e)
	}
	return entities, nil
}

// ListEntities returns all entities without observations, most recently
// updated first.
func (s *Store) ListEntities(ctx context.Context) ([]models.Entity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, entity_type, created_at, updated_at FROM entities ORDER BY updated_at DESC, name`,
	)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	defer rows.Close()
	return scanEntities(rows)
}

// ListRelations returns all relations with endpoint names resolved.
func (s *Store) ListRelations(ctx context.Context) ([]models.Relation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ef.name, et.name, r.relation_type
		 FROM relations r
		 JOIN entities ef ON ef.id = r.from_entity
		 JOIN entities et ON et.id = r.to_entity
		 ORDER BY r.rowid`,
	)
	if err != nil {
		return nil, fmt.Errorf("query relations: %w", err)
	}
	defer rows.Close()

	var relations []models.Relation
	for rows.Next() {
		var r models.Relation
		if err := rows.Scan(&r.From, &r.To, &r.RelationType); err != nil {
			return nil, fmt.Errorf("scan relation: %w", err)
		}
		relations = append(relations, r)
	}
	return relations, rows.Err()
}

// ReadGraph returns the complete graph snapshot: entities alphabetical by
// name with their observations, relations with resolved names. Observation
// lists are fetched concurrently per entity; ordering stays by name.
func (s *Store) ReadGraph(ctx context.Context) (*models.KnowledgeGraph, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, entity_type, created_at, updated_at FROM entities ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	entities, err := scanEntities(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(readGraphConcurrency)
	for i := range entities {
		g.Go(func() error {
			obs, err := s.getObservations(gctx, entities[i].ID)
			if err != nil {
				return err
			}
			entities[i].Observations = obs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	relations, err := s.ListRelations(ctx)
	if err != nil {
		return nil, err
	}

	return &models.KnowledgeGraph{Entities: entities, Relations: relations}, nil
}

// ImportGraph loads a snapshot: entities first, then relations. The two
// phases are not atomic as a unit, so repeated imports must be (and are)
// idempotent. Returns the request-size counts for each phase.
func (s *Store) ImportGraph(ctx context.Context, graph *models.KnowledgeGraph) (int, int, error) {
	inputs := make([]models.EntityInput, len(graph.Entities))
	for i, e := range graph.Entities {
		inputs[i] = models.EntityInput{Name: e.Name, EntityType: e.EntityType, Observations: e.Observations}
	}

	nEntities, err := s.CreateEntities(ctx, inputs)
	if err != nil {
		return 0, 0, err
	}
	nRelations, err := s.CreateRelations(ctx, graph.Relations)
	if err != nil {
		return nEntities, 0, err
	}
	return nEntities, nRelations, nil
}

// resolveEntity maps a name to its entity id, or ErrEntityNotFound.
func (s *Store) resolveEntity(ctx context.Context, name string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM entities WHERE name = ?`, name).Scan(&id)
	if err == sql.ErrNoRows {
		return "", ErrEntityNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup entity %q: %w", name, err)
	}
	return id, nil
}

// getObservations loads an entity's observation texts in insertion order.
func (s *Store) getObservations(ctx context.Context, entityID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT content FROM observations WHERE entity_id = ? ORDER BY rowid`, entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	var obs []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		obs = append(obs, content)
	}
	return obs, rows.Err()
}

func scanEntities(rows *sql.Rows) ([]models.Entity, error) {
	var entities []models.Entity
	for rows.Next() {
		var e models.Entity
		if err := rows.Scan(&e.ID, &e.Name, &e.EntityType, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}
