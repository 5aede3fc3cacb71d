package models

// Entity represents a node in the knowledge graph. Observations holds the
// entity's note texts in insertion order; list views leave it empty.
type Entity struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	EntityType   string   `json:"entityType"`
	Observations []string `json:"observations,omitempty"`
	CreatedAt    string   `json:"createdAt"`
	UpdatedAt    string   `json:"updatedAt"`
}

// Relation represents a directed, typed edge between two entities,
// rendered with entity names rather than internal IDs.
type Relation struct {
	From         string `json:"from"`
	To           string `json:"to"`
	RelationType string `json:"relationType"`
}

// EntityInput describes an entity to create, with optional initial observations.
type EntityInput struct {
	Name         string   `json:"name"`
	EntityType   string   `json:"entityType"`
	Observations []string `json:"observations,omitempty"`
}

// KnowledgeGraph is the full serialized view of the store: every entity with
// its observations plus every relation. It is the unit exchanged with bulk
// import and whole-graph reads.
type KnowledgeGraph struct {
	Entities  []Entity   `json:"entities"`
	Relations []Relation `json:"relations"`
}

// ObservationMatch is one full-text search hit: the matched observation text
// together with its owning entity.
type ObservationMatch struct {
	EntityName string `json:"entityName"`
	EntityType string `json:"entityType"`
	Content    string `json:"content"`
}

// SearchResult unions entity-metadata matches and observation-content matches.
// The two lists are independent; an entity may appear in both.
type SearchResult struct {
	Entities     []Entity           `json:"entities"`
	Observations []ObservationMatch `json:"observations"`
}
