package tools

import (
	"encoding/json"

	"github.com/contextkit/orchestrator/internal/domain"
)

// Builtin returns the descriptors for the built-in context repository tools.
func Builtin() []domain.ToolDescriptor {
	return []domain.ToolDescriptor{
		{
			ID:          "context.read",
			Title:       "Read context entity",
			Description: "Read a specific context entity from the repository, including metadata, relationships, and content.",
			Capability:  domain.CapabilityRead,
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"entity_type": {"type": "string", "description": "Entity type (e.g. 'feature', 'userstory', 'service')"},
					"entity_id": {"type": "string", "description": "Entity ID (filename without extension)"}
				},
				"required": ["entity_type", "entity_id"],
				"additionalProperties": false
			}`),
		},
		{
			ID:          "context.search",
			Title:       "Search context entities",
			Description: "Search context entities by query string, optionally filtered by entity type.",
			Capability:  domain.CapabilitySearch,
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"query": {"type": "string"},
					"entity_type": {"type": "string"}
				},
				"required": ["query"],
				"additionalProperties": false
			}`),
		},
		{
			ID:               "context.write",
			Title:            "Write context entity",
			Description:      "Create or update a context entity. The write is staged behind a human approval with a diff preview.",
			Capability:       domain.CapabilityWrite,
			RequiresApproval: true,
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"entity_type": {"type": "string"},
					"entity_id": {"type": "string"},
					"content": {"type": "string", "description": "Full YAML document to write"}
				},
				"required": ["entity_type", "entity_id", "content"],
				"additionalProperties": false
			}`),
		},
		{
			ID:          "pipeline.run",
			Title:       "Run pipeline",
			Description: "Run one repository pipeline (validate, build-graph, impact, or generate).",
			Capability:  domain.CapabilityExecute,
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"pipeline": {"type": "string", "enum": ["validate", "build-graph", "impact", "generate"]},
					"args": {"type": "object"}
				},
				"required": ["pipeline"],
				"additionalProperties": false
			}`),
		},
		{
			ID:               "repo.commit",
			Title:            "Commit repository changes",
			Description:      "Commit staged repository changes with a message. Deferred behind a human approval.",
			Capability:       domain.CapabilityWrite,
			RequiresApproval: true,
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"message": {"type": "string", "minLength": 1},
					"paths": {"type": "array", "items": {"type": "string"}}
				},
				"required": ["message"],
				"additionalProperties": false
			}`),
		},
	}
}
