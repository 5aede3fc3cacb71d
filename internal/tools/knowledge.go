package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wagnerlima/graph-memory/internal/models"
	"github.com/wagnerlima/graph-memory/internal/storage"
)

// KnowledgeTools holds the store reference shared by all tool handlers.
// Handlers are stateless: every call is self-contained.
type KnowledgeTools struct {
	Store *storage.Store
}

// --- Input types ---

type CreateEntitiesInput struct {
	Entities []models.EntityInput `json:"entities" jsonschema:"Array of entities to create"`
}

type CreateRelationsInput struct {
	Relations []models.Relation `json:"relations" jsonschema:"Array of relations to create"`
}

type AddObservationsInput struct {
	Observations []ObservationInput `json:"observations" jsonschema:"Array of observations to add"`
}

type ObservationInput struct {
	EntityName string   `json:"entityName" jsonschema:"Name of the entity"`
	Contents   []string `json:"contents" jsonschema:"Observation texts to add"`
}

type SearchNodesInput struct {
	Query string `json:"query" jsonschema:"Search query matched against entity names, types and observation content"`
}

type OpenNodesInput struct {
	Names []string `json:"names" jsonschema:"Exact entity names to retrieve"`
}

type DeleteEntitiesInput struct {
	Names []string `json:"names" jsonschema:"Entity names to delete"`
}

type DeleteRelationsInput struct {
	Relations []models.Relation `json:"relations" jsonschema:"Array of relations to delete"`
}

// --- Handlers ---

func (t *KnowledgeTools) CreateEntities(ctx context.Context, _ *mcp.CallToolRequest, input CreateEntitiesInput) (*mcp.CallToolResult, any, error) {
	count, err := t.Store.CreateEntities(ctx, input.Entities)
	if err != nil {
		return toolError("Failed to create entities: %v", err), nil, nil
	}
	return toolJSON(map[string]int{"created": count})
}

func (t *KnowledgeTools) CreateRelations(ctx context.Context, _ *mcp.CallToolRequest, input CreateRelationsInput) (*mcp.CallToolResult, any, error) {
	count, err := t.Store.CreateRelations(ctx, input.Relations)
	if err != nil {
		return toolError("Failed to create relations: %v", err), nil, nil
	}
	return toolJSON(map[string]int{"created": count})
}

func (t *KnowledgeTools) AddObservations(ctx context.Context, _ *mcp.CallToolRequest, input AddObservationsInput) (*mcp.CallToolResult, any, error) {
	total := 0
	for _, obs := range input.Observations {
		added, err := t.Store.AddObservations(ctx, obs.EntityName, obs.Contents)
		if errors.Is(err, storage.ErrEntityNotFound) {
			continue // unknown entities are skipped, not errors
		}
		if err != nil {
			return toolError("Failed to add observations for %q: %v", obs.EntityName, err), nil, nil
		}
		total += added
	}
	return toolJSON(map[string]int{"added": total})
}

func (t *KnowledgeTools) ReadGraph(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
	graph, err := t.Store.ReadGraph(ctx)
	if err != nil {
		return toolError("Failed to read graph: %v", err), nil, nil
	}
	return toolJSON(graph)
}

func (t *KnowledgeTools) SearchNodes(ctx context.Context, _ *mcp.CallToolRequest, input SearchNodesInput) (*mcp.CallToolResult, any, error) {
	if input.Query == "" {
		return toolError("Query is required"), nil, nil
	}
	result, err := t.Store.Search(ctx, input.Query)
	if err != nil {
		return toolError("Search failed: %v", err), nil, nil
	}
	return toolJSON(result)
}

func (t *KnowledgeTools) OpenNodes(ctx context.Context, _ *mcp.CallToolRequest, input OpenNodesInput) (*mcp.CallToolResult, any, error) {
	entities, err := t.Store.GetEntities(ctx, input.Names)
	if err != nil {
		return toolError("Failed to open nodes: %v", err), nil, nil
	}
	if entities == nil {
		entities = []models.Entity{}
	}
	return toolJSON(entities)
}

func (t *KnowledgeTools) DeleteEntities(ctx context.Context, _ *mcp.CallToolRequest, input DeleteEntitiesInput) (*mcp.CallToolResult, any, error) {
	count, err := t.Store.DeleteEntities(ctx, input.Names)
	if err != nil {
		return toolError("Failed to delete entities: %v", err), nil, nil
	}
	return toolText(fmt.Sprintf("Deleted %d entities.", count)), nil, nil
}

func (t *KnowledgeTools) DeleteRelations(ctx context.Context, _ *mcp.CallToolRequest, input DeleteRelationsInput) (*mcp.CallToolResult, any, error) {
	count, err := t.Store.DeleteRelations(ctx, input.Relations)
	if err != nil {
		return toolError("Failed to delete relations: %v", err), nil, nil
	}
	return toolText(fmt.Sprintf("Deleted %d relations.", count)), nil, nil
}

// --- Helpers ---

func toolText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func toolError(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}

func toolJSON(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError("Failed to marshal result: %v", err), nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}
