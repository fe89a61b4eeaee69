// Package contextrepo reads and searches the YAML entities of a context
// repository. Entities live under contexts/<type>/<id>.yaml.
package contextrepo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Entity is one loaded context entity.
type Entity struct {
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Data       map[string]any `json:"data"`
	Path       string         `json:"path"`
}

// SearchResult is one row of a repository search.
type SearchResult struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Name       string `json:"name"`
	Summary    string `json:"summary,omitempty"`
}

const summaryLimit = 200

// EntityPath returns the on-disk path for an entity.
func EntityPath(repoPath, entityType, entityID string) string {
	return filepath.Join(repoPath, "contexts", entityType, entityID+".yaml")
}

// Read loads one entity. A missing file is reported as os.ErrNotExist.
func Read(repoPath, entityType, entityID string) (*Entity, error) {
	path := EntityPath(repoPath, entityType, entityID)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("entity not found: %s/%s: %w", entityType, entityID, os.ErrNotExist)
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var data map[string]any
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return &Entity{
		EntityType: entityType,
		EntityID:   entityID,
		Data:       data,
		Path:       path,
	}, nil
}

// Search scans entity files for a case-insensitive substring match. When
// entityType is empty every type directory under contexts/ is searched.
// Unreadable or malformed files are skipped.
func Search(repoPath, query, entityType string) ([]SearchResult, error) {
	contextsDir := filepath.Join(repoPath, "contexts")

	var types []string
	if entityType != "" {
		types = []string{entityType}
	} else {
		dirs, err := os.ReadDir(contextsDir)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", contextsDir, err)
		}
		for _, d := range dirs {
			if d.IsDir() {
				types = append(types, d.Name())
			}
		}
	}

	queryLower := strings.ToLower(query)
	var results []SearchResult

	for _, etype := range types {
		typeDir := filepath.Join(contextsDir, etype)
		files, err := os.ReadDir(typeDir)
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.IsDir() || !strings.HasSuffix(f.Name(), ".yaml") {
				continue
			}
			raw, err := os.ReadFile(filepath.Join(typeDir, f.Name()))
			if err != nil {
				continue
			}
			var data map[string]any
			if err := yaml.Unmarshal(raw, &data); err != nil {
				continue
			}
			if !strings.Contains(strings.ToLower(string(raw)), queryLower) {
				continue
			}

			id := strings.TrimSuffix(f.Name(), ".yaml")
			results = append(results, SearchResult{
				EntityType: etype,
				EntityID:   id,
				Name:       stringField(data, "name", id),
				Summary:    truncate(stringField(data, "summary", ""), summaryLimit),
			})
		}
	}
	return results, nil
}

func stringField(data map[string]any, key, fallback string) string {
	if v, ok := data[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
