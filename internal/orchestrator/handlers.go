package orchestrator

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/contextkit/orchestrator/internal/contextrepo"
	"github.com/contextkit/orchestrator/internal/domain"
	"github.com/contextkit/orchestrator/internal/pipeline"
)

// buildHandlers wires the capability handlers for the builtin tools.
func (o *Orchestrator) buildHandlers() map[string]handler {
	return map[string]handler{
		"context.read":   o.handleContextRead,
		"context.search": o.handleContextSearch,
		"context.write":  o.handleContextWrite,
		"pipeline.run":   o.handlePipelineRun,
		"repo.commit":    o.handleRepoCommit,
	}
}

func (o *Orchestrator) handleContextRead(_ context.Context, req domain.ExecuteToolRequest) (map[string]any, string, error) {
	entityType := stringParam(req.Parameters, "entity_type")
	entityID := stringParam(req.Parameters, "entity_id")

	entity, err := contextrepo.Read(req.RepoPath, entityType, entityID)
	if err != nil {
		return nil, "", err
	}
	result := map[string]any{
		"id":   entity.EntityID,
		"type": entity.EntityType,
		"path": entity.Path,
		"data": entity.Data,
	}
	return result, fmt.Sprintf("read %s/%s", entityType, entityID), nil
}

func (o *Orchestrator) handleContextSearch(_ context.Context, req domain.ExecuteToolRequest) (map[string]any, string, error) {
	query := stringParam(req.Parameters, "query")
	entityType := stringParam(req.Parameters, "entity_type")

	matches, err := contextrepo.Search(req.RepoPath, query, entityType)
	if err != nil {
		return nil, "", err
	}
	items := make([]map[string]any, len(matches))
	for i, m := range matches {
		items[i] = map[string]any{
			"id":      m.EntityID,
			"type":    m.EntityType,
			"name":    m.Name,
			"summary": m.Summary,
		}
	}
	result := map[string]any{"query": query, "matches": items, "total": len(items)}
	return result, fmt.Sprintf("search %q matched %d entities", query, len(items)), nil
}

func (o *Orchestrator) handleContextWrite(_ context.Context, req domain.ExecuteToolRequest) (map[string]any, string, error) {
	entityType := stringParam(req.Parameters, "entity_type")
	entityID := stringParam(req.Parameters, "entity_id")
	content := stringParam(req.Parameters, "content")

	path, err := contextrepo.Write(req.RepoPath, entityType, entityID, content)
	if err != nil {
		return nil, "", err
	}
	return map[string]any{"path": path}, fmt.Sprintf("wrote %s/%s to %s", entityType, entityID, path), nil
}

func (o *Orchestrator) handlePipelineRun(ctx context.Context, req domain.ExecuteToolRequest) (map[string]any, string, error) {
	name := domain.PipelineName(stringParam(req.Parameters, "pipeline"))
	args, _ := req.Parameters["args"].(map[string]any)

	run, err := o.runner.Run(ctx, pipeline.RunRequest{
		RepoPath: req.RepoPath,
		Pipeline: name,
		Args:     args,
	})
	if err != nil {
		return nil, "", err
	}

	result := map[string]any{
		"status":      string(run.Status),
		"output":      run.Output,
		"exit_code":   run.ExitCode,
		"duration_ms": run.DurationMs,
	}
	if len(run.Artifacts) > 0 {
		result["artifacts"] = run.Artifacts
	}
	if run.LogPath != "" {
		result["log_path"] = run.LogPath
	}
	if run.Status == domain.StageFailed {
		return result, "", domain.NewErrorf(domain.ErrCodeUnknown, "pipeline %s failed: %s", name, run.Message)
	}
	return result, fmt.Sprintf("pipeline %s succeeded in %dms", name, run.DurationMs), nil
}

func (o *Orchestrator) handleRepoCommit(ctx context.Context, req domain.ExecuteToolRequest) (map[string]any, string, error) {
	message := stringParam(req.Parameters, "message")
	paths := stringSliceParam(req.Parameters, "paths")

	addArgs := append([]string{"add", "--"}, paths...)
	if len(paths) == 0 {
		addArgs = []string{"add", "-A"}
	}
	if out, err := gitRun(ctx, req.RepoPath, addArgs...); err != nil {
		return nil, "", domain.WrapError(domain.ErrCodeUnknown, "git add failed: "+out, err)
	}
	if out, err := gitRun(ctx, req.RepoPath, "commit", "-m", message); err != nil {
		return nil, "", domain.WrapError(domain.ErrCodeUnknown, "git commit failed: "+out, err)
	}

	sha, err := gitRun(ctx, req.RepoPath, "rev-parse", "HEAD")
	if err != nil {
		return nil, "", domain.WrapError(domain.ErrCodeUnknown, "git rev-parse failed", err)
	}
	sha = strings.TrimSpace(sha)
	result := map[string]any{"commit": sha, "message": message}
	return result, fmt.Sprintf("committed %s", shortSHA(sha)), nil
}

// buildPreview produces the human-readable diff preview attached to a
// pending action.
func (o *Orchestrator) buildPreview(tool *domain.ToolDescriptor, req domain.ExecuteToolRequest) string {
	switch tool.ID {
	case "context.write":
		entityType := stringParam(req.Parameters, "entity_type")
		entityID := stringParam(req.Parameters, "entity_id")
		after := stringParam(req.Parameters, "content")
		before, err := contextrepo.CurrentContent(req.RepoPath, entityType, entityID)
		if err != nil {
			before = ""
		}
		return o.previewer.Preview(contextrepo.EntityPath(req.RepoPath, entityType, entityID), before, after)
	case "repo.commit":
		message := stringParam(req.Parameters, "message")
		paths := stringSliceParam(req.Parameters, "paths")
		scope := "all staged changes"
		if len(paths) > 0 {
			scope = strings.Join(paths, ", ")
		}
		return fmt.Sprintf("commit %s\nmessage: %s", scope, message)
	default:
		return fmt.Sprintf("execute %s with parameters %v", tool.ID, req.Parameters)
	}
}

func gitRun(ctx context.Context, repoPath string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = repoPath
	out, err := cmd.CombinedOutput()
	return string(out), err
}

func stringParam(params map[string]any, key string) string {
	v, _ := params[key].(string)
	return v
}

func stringSliceParam(params map[string]any, key string) []string {
	raw, ok := params[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
