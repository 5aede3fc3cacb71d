package server

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wagnerlima/graph-memory/internal/storage"
	"github.com/wagnerlima/graph-memory/internal/tools"
)

// New creates a fully configured MCP server with the knowledge graph tool
// registry. The registry is a fixed set of eight tools; the SDK handles
// initialize, tools/list and unknown-tool errors.
func New(store *storage.Store) *mcp.Server {
	kt := &tools.KnowledgeTools{Store: store}

	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "graph-memory",
		Version: "0.1.0",
	}, nil)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "create_entities",
		Description: "Create one or more entities in the knowledge graph; existing names are reused, not duplicated",
	}, kt.CreateEntities)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "create_relations",
		Description: "Create directed relations between entities; relations with unknown endpoints are skipped",
	}, kt.CreateRelations)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "add_observations",
		Description: "Add observations to existing entities; unknown entity names are skipped",
	}, kt.AddObservations)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "read_graph",
		Description: "Read the entire knowledge graph: all entities with observations plus all relations",
	}, kt.ReadGraph)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "search_nodes",
		Description: "Search entity names/types by substring and observation content by full-text match",
	}, kt.SearchNodes)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "open_nodes",
		Description: "Retrieve specific entities by exact name match; unknown names are omitted",
	}, kt.OpenNodes)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "delete_entities",
		Description: "Delete entities, cascading to their observations and any relation referencing them",
	}, kt.DeleteEntities)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "delete_relations",
		Description: "Delete specific relations by their (from, to, relationType) triple",
	}, kt.DeleteRelations)

	return srv
}
