package contextrepo

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// CurrentContent returns the stored YAML document for an entity, or an empty
// string when the entity does not exist yet.
func CurrentContent(repoPath, entityType, entityID string) (string, error) {
	raw, err := os.ReadFile(EntityPath(repoPath, entityType, entityID))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("reading entity: %w", err)
	}
	return string(raw), nil
}

// Write persists a full YAML document for an entity, creating the type
// directory as needed. The document is parsed first so malformed YAML never
// reaches the repository.
func Write(repoPath, entityType, entityID, content string) (string, error) {
	var probe map[string]any
	if err := yaml.Unmarshal([]byte(content), &probe); err != nil {
		return "", fmt.Errorf("invalid YAML document: %w", err)
	}

	path := EntityPath(repoPath, entityType, entityID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}
