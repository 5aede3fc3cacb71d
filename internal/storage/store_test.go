package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/wagnerlima/graph-memory/internal/models"
)

// setupStore creates a fresh graph DB in a temp directory.
func setupStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateEntities(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	count, err := s.CreateEntities(ctx, []models.EntityInput{
		{Name: "Go", EntityType: "technology", Observations: []string{"Fast compiled language", "Great for CLI tools"}},
		{Name: "SQLite", EntityType: "technology", Observations: []string{"Embedded database"}},
	})
	if err != nil {
		t.Fatalf("CreateEntities: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}

	e, err := s.GetEntity(ctx, "Go")
	if err != nil {
		t.Fatalf("GetEntity: %v", err)
	}
	if e.EntityType != "technology" {
		t.Errorf("EntityType = %q, want %q", e.EntityType, "technology")
	}
	if len(e.Observations) != 2 {
		t.Errorf("Expected 2 observations, got %d", len(e.Observations))
	}
	if e.ID == "" {
		t.Error("Entity ID should not be empty")
	}
}

func TestCreateEntitiesIdempotent(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	if _, err := s.CreateEntities(ctx, []models.EntityInput{
		{Name: "Go", EntityType: "technology", Observations: []string{"first"}},
	}); err != nil {
		t.Fatalf("CreateEntities: %v", err)
	}

	// Same name again: no duplicate row, new observations still appended.
	count, err := s.CreateEntities(ctx, []models.EntityInput{
		{Name: "Go", EntityType: "technology", Observations: []string{"second"}},
	})
	if err != nil {
		t.Fatalf("CreateEntities (duplicate): %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM entities WHERE name = 'Go'`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("entity rows = %d, want 1", n)
	}

	e, err := s.GetEntity(ctx, "Go")
	if err != nil {
		t.Fatalf("GetEntity: %v", err)
	}
	if len(e.Observations) != 2 {
		t.Errorf("observations = %v, want both appended", e.Observations)
	}
}

func TestAddObservations(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	s.CreateEntities(ctx, []models.EntityInput{{Name: "Go", EntityType: "technology"}})

	added, err := s.AddObservations(ctx, "Go", []string{"Version 1.25", "Supports generics"})
	if err != nil {
		t.Fatalf("AddObservations: %v", err)
	}
	if added != 2 {
		t.Fatalf("added = %d, want 2", added)
	}

	e, _ := s.GetEntity(ctx, "Go")
	if len(e.Observations) != 2 {
		t.Fatalf("Expected 2 observations, got %d", len(e.Observations))
	}
	if e.Observations[0] != "Version 1.25" {
		t.Errorf("Observations[0] = %q, want %q", e.Observations[0], "Version 1.25")
	}
}

func TestAddObservationsNonExistent(t *testing.T) {
	s := setupStore(t)

	_, err := s.AddObservations(context.Background(), "DoesNotExist", []string{"test"})
	if !errors.Is(err, ErrEntityNotFound) {
		t.Errorf("err = %v, want ErrEntityNotFound", err)
	}
}

func TestCreateRelations(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	s.CreateEntities(ctx, []models.EntityInput{
		{Name: "A", EntityType: "person"},
		{Name: "B", EntityType: "person"},
	})

	count, err := s.CreateRelations(ctx, []models.Relation{
		{From: "A", To: "B", RelationType: "knows"},
	})
	if err != nil {
		t.Fatalf("CreateRelations: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}

	rels, err := s.ListRelations(ctx)
	if err != nil {
		t.Fatalf("ListRelations: %v", err)
	}
	if len(rels) != 1 {
		t.Fatalf("Expected 1 relation, got %d", len(rels))
	}
	if rels[0].From != "A" || rels[0].To != "B" || rels[0].RelationType != "knows" {
		t.Errorf("relation = %+v", rels[0])
	}
}

func TestCreateRelationsUniqueTriple(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	s.CreateEntities(ctx, []models.EntityInput{
		{Name: "A", EntityType: "person"},
		{Name: "B", EntityType: "person"},
	})

	rel := models.Relation{From: "A", To: "B", RelationType: "knows"}
	for i := 0; i < 2; i++ {
		if _, err := s.CreateRelations(ctx, []models.Relation{rel}); err != nil {
			t.Fatalf("CreateRelations #%d: %v", i+1, err)
		}
	}

	rels, _ := s.ListRelations(ctx)
	if len(rels) != 1 {
		t.Errorf("Expected exactly 1 relation row, got %d", len(rels))
	}
}

func TestCreateRelationsSkipsMissingEndpoints(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	count, err := s.CreateRelations(ctx, []models.Relation{
		{From: "X", To: "Y", RelationType: "r"},
	})
	if err != nil {
		t.Fatalf("CreateRelations should not error on missing endpoints: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1 (attempted)", count)
	}

	rels, _ := s.ListRelations(ctx)
	if len(rels) != 0 {
		t.Errorf("relations table should be unchanged, got %d rows", len(rels))
	}
}

func TestDeleteEntityCascade(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	s.CreateEntities(ctx, []models.EntityInput{
		{Name: "A", EntityType: "person", Observations: []string{"obs one", "obs two"}},
		{Name: "B", EntityType: "person"},
		{Name: "C", EntityType: "person"},
	})
	s.CreateRelations(ctx, []models.Relation{
		{From: "A", To: "B", RelationType: "knows"},
		{From: "C", To: "A", RelationType: "manages"},
		{From: "B", To: "C", RelationType: "knows"},
	})

	deleted, err := s.DeleteEntity(ctx, "A")
	if err != nil {
		t.Fatalf("DeleteEntity: %v", err)
	}
	if !deleted {
		t.Fatal("DeleteEntity should report true for existing entity")
	}

	if _, err := s.GetEntity(ctx, "A"); !errors.Is(err, ErrEntityNotFound) {
		t.Errorf("GetEntity after delete: err = %v, want ErrEntityNotFound", err)
	}

	// Relations touching A are gone in both directions, B->C survives.
	rels, _ := s.ListRelations(ctx)
	if len(rels) != 1 || rels[0].From != "B" {
		t.Errorf("relations after cascade = %+v, want only B->C", rels)
	}

	var obsCount int
	s.db.QueryRow(`SELECT COUNT(*) FROM observations`).Scan(&obsCount)
	if obsCount != 0 {
		t.Errorf("observations after cascade = %d, want 0", obsCount)
	}
}

func TestDeleteEntityMissingIsNoop(t *testing.T) {
	s := setupStore(t)

	deleted, err := s.DeleteEntity(context.Background(), "Ghost")
	if err != nil {
		t.Fatalf("DeleteEntity: %v", err)
	}
	if deleted {
		t.Error("DeleteEntity should report false for missing entity")
	}
}

func TestDeleteRelations(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	s.CreateEntities(ctx, []models.EntityInput{
		{Name: "A", EntityType: "person"},
		{Name: "B", EntityType: "person"},
	})
	s.CreateRelations(ctx, []models.Relation{{From: "A", To: "B", RelationType: "knows"}})

	count, err := s.DeleteRelations(ctx, []models.Relation{
		{From: "A", To: "B", RelationType: "knows"},
		{From: "A", To: "B", RelationType: "never-existed"},
	})
	if err != nil {
		t.Fatalf("DeleteRelations: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2 (requested)", count)
	}

	rels, _ := s.ListRelations(ctx)
	if len(rels) != 0 {
		t.Errorf("Expected 0 relations, got %d", len(rels))
	}
}

func TestGetEntitiesSkipsMissing(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	s.CreateEntities(ctx, []models.EntityInput{
		{Name: "A", EntityType: "person"},
		{Name: "B", EntityType: "person"},
	})

	entities, err := s.GetEntities(ctx, []string{"A", "Ghost", "B"})
	if err != nil {
		t.Fatalf("GetEntities: %v", err)
	}
	if len(entities) != 2 {
		t.Fatalf("Expected 2 entities, got %d", len(entities))
	}
	if entities[0].Name != "A" || entities[1].Name != "B" {
		t.Errorf("entities = %v", entities)
	}
}

func TestListEntitiesMostRecentFirst(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	s.CreateEntities(ctx, []models.EntityInput{
		{Name: "Old", EntityType: "t"},
		{Name: "Fresh", EntityType: "t"},
	})
	// Nudge Fresh's updated_at forward; datetime('now') has second resolution.
	if _, err := s.db.Exec(`UPDATE entities SET updated_at = datetime('now', '+1 hour') WHERE name = 'Fresh'`); err != nil {
		t.Fatal(err)
	}

	entities, err := s.ListEntities(ctx)
	if err != nil {
		t.Fatalf("ListEntities: %v", err)
	}
	if len(entities) != 2 || entities[0].Name != "Fresh" {
		t.Errorf("order = %v, want Fresh first", names(entities))
	}
	if len(entities[0].Observations) != 0 {
		t.Error("list view should not carry observations")
	}
}

func TestReadGraphRoundTrip(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	snapshot := &models.KnowledgeGraph{
		Entities: []models.Entity{
			{Name: "Zebra", EntityType: "animal", Observations: []string{"striped"}},
			{Name: "Apple", EntityType: "fruit", Observations: []string{"red", "crunchy"}},
			{Name: "Mango", EntityType: "fruit"},
		},
		Relations: []models.Relation{
			{From: "Zebra", To: "Apple", RelationType: "eats"},
			{From: "Mango", To: "Apple", RelationType: "resembles"},
		},
	}

	nE, nR, err := s.ImportGraph(ctx, snapshot)
	if err != nil {
		t.Fatalf("ImportGraph: %v", err)
	}
	if nE != 3 || nR != 2 {
		t.Errorf("counts = (%d, %d), want (3, 2)", nE, nR)
	}

	graph, err := s.ReadGraph(ctx)
	if err != nil {
		t.Fatalf("ReadGraph: %v", err)
	}

	// Alphabetical entity ordering.
	got := names(graph.Entities)
	want := []string{"Apple", "Mango", "Zebra"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entity order = %v, want %v", got, want)
		}
	}

	if len(graph.Entities[0].Observations) != 2 {
		t.Errorf("Apple observations = %v", graph.Entities[0].Observations)
	}
	if len(graph.Relations) != 2 {
		t.Errorf("relations = %v", graph.Relations)
	}

	// Re-importing the same snapshot adds no entity or relation rows.
	// Observations are append-only and may duplicate.
	if _, _, err := s.ImportGraph(ctx, snapshot); err != nil {
		t.Fatalf("ImportGraph (again): %v", err)
	}
	again, _ := s.ReadGraph(ctx)
	if len(again.Entities) != 3 || len(again.Relations) != 2 {
		t.Errorf("after re-import: %d entities, %d relations", len(again.Entities), len(again.Relations))
	}
}

func names(entities []models.Entity) []string {
	out := make([]string, len(entities))
	for i, e := range entities {
		out[i] = e.Name
	}
	return out
}
