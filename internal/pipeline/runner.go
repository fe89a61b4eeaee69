// Package pipeline runs the fixed four-stage document pipeline and
// aggregates batch reports.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"time"

	"github.com/contextkit/orchestrator/internal/domain"
)

// DefaultTimeout bounds a single stage invocation.
const DefaultTimeout = 30 * time.Second

// RunRequest invokes one pipeline stage against a repository.
type RunRequest struct {
	RepoPath  string
	Pipeline  domain.PipelineName
	Args      map[string]any
	EntityIDs []string
}

// RunResult is the outcome of one stage invocation. EntityErrors carries
// per-entity validation messages; Generated and GeneratedPaths carry the
// generate stage's output map.
type RunResult struct {
	Status         domain.StageStatus
	Message        string
	Output         string
	ExitCode       int
	DurationMs     int64
	Artifacts      []string
	LogPath        string
	EntityErrors   map[string]string
	Generated      []string
	GeneratedPaths map[string]string
}

// Runner executes a single pipeline stage. Implementations are treated as
// opaque deterministic executables.
type Runner interface {
	Run(ctx context.Context, req RunRequest) (*RunResult, error)
}

// ExecRunner shells out to the repository's package scripts, one script per
// stage.
type ExecRunner struct {
	Command string
	Timeout time.Duration
}

// NewExecRunner creates a runner invoking `command run <stage>`. Empty
// command defaults to pnpm, non-positive timeout to DefaultTimeout.
func NewExecRunner(command string, timeout time.Duration) *ExecRunner {
	if command == "" {
		command = "pnpm"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ExecRunner{Command: command, Timeout: timeout}
}

// stageOutput is the optional structured trailer a stage may print as its
// final stdout line.
type stageOutput struct {
	Errors    map[string]string `json:"errors"`
	Generated []string          `json:"generated"`
	Paths     map[string]string `json:"paths"`
	Artifacts []string          `json:"artifacts"`
	LogPath   string            `json:"logPath"`
}

func (r *ExecRunner) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	if !domain.KnownPipeline(req.Pipeline) {
		return nil, domain.NewErrorf(domain.ErrCodeValidation, "unknown pipeline %q", req.Pipeline)
	}
	if _, err := os.Stat(req.RepoPath); err != nil {
		return nil, domain.NewErrorf(domain.ErrCodeValidation, "repository not found: %s", req.RepoPath)
	}

	args := []string{"run", string(req.Pipeline)}
	args = append(args, flattenArgs(req.Args)...)
	for _, id := range req.EntityIDs {
		args = append(args, "--entity", id)
	}

	runCtx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.Command, args...)
	cmd.Dir = req.RepoPath
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start).Milliseconds()

	if runCtx.Err() == context.DeadlineExceeded {
		return nil, domain.NewErrorf(domain.ErrCodeTimeout, "pipeline %s exceeded %s budget", req.Pipeline, r.Timeout)
	}

	output := stdout.String()
	if s := stderr.String(); s != "" {
		output += "\n\nSTDERR:\n" + s
	}

	result := &RunResult{
		Status:     domain.StageSucceeded,
		Output:     output,
		DurationMs: duration,
	}
	if trailer := parseTrailer(stdout.Bytes()); trailer != nil {
		result.EntityErrors = trailer.Errors
		result.Generated = trailer.Generated
		result.GeneratedPaths = trailer.Paths
		result.Artifacts = trailer.Artifacts
		result.LogPath = trailer.LogPath
	}

	if err != nil {
		result.Status = domain.StageFailed
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			result.Message = fmt.Sprintf("pipeline %s failed with exit code %d", req.Pipeline, result.ExitCode)
		} else {
			result.ExitCode = 1
			result.Message = fmt.Sprintf("pipeline %s failed to start: %v", req.Pipeline, err)
		}
		if len(result.EntityErrors) > 0 {
			result.Message = aggregateEntityErrors(result.EntityErrors)
		}
	}
	return result, nil
}

// flattenArgs turns an args map into CLI flags: booleans become bare flags
// when true, lists repeat the flag per item, everything else becomes a
// flag/value pair. Keys are emitted in sorted order for determinism.
func flattenArgs(args map[string]any) []string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []string
	for _, key := range keys {
		switch value := args[key].(type) {
		case bool:
			if value {
				out = append(out, "--"+key)
			}
		case []any:
			for _, item := range value {
				out = append(out, "--"+key, fmt.Sprint(item))
			}
		default:
			out = append(out, "--"+key, fmt.Sprint(value))
		}
	}
	return out
}

// parseTrailer reads the last non-empty stdout line as a JSON stage trailer.
// Stages without a trailer just produce human-readable logs.
func parseTrailer(stdout []byte) *stageOutput {
	lines := bytes.Split(bytes.TrimSpace(stdout), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		line := bytes.TrimSpace(lines[i])
		if len(line) == 0 {
			continue
		}
		if line[0] != '{' {
			return nil
		}
		var trailer stageOutput
		if err := json.Unmarshal(line, &trailer); err != nil {
			return nil
		}
		return &trailer
	}
	return nil
}

func aggregateEntityErrors(entityErrors map[string]string) string {
	ids := make([]string, 0, len(entityErrors))
	for id := range entityErrors {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	msg := "validation failed:"
	for _, id := range ids {
		msg += fmt.Sprintf(" %s: %s;", id, entityErrors[id])
	}
	return msg[:len(msg)-1]
}
