package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextkit/orchestrator/internal/domain"
	"github.com/contextkit/orchestrator/internal/observability"
)

// stubRunner returns canned results per stage and counts invocations.
type stubRunner struct {
	results map[domain.PipelineName]*RunResult
	calls   map[domain.PipelineName]int
	lastIDs map[domain.PipelineName][]string
}

func newStubRunner() *stubRunner {
	return &stubRunner{
		results: make(map[domain.PipelineName]*RunResult),
		calls:   make(map[domain.PipelineName]int),
		lastIDs: make(map[domain.PipelineName][]string),
	}
}

func (s *stubRunner) Run(_ context.Context, req RunRequest) (*RunResult, error) {
	s.calls[req.Pipeline]++
	s.lastIDs[req.Pipeline] = req.EntityIDs
	if result, ok := s.results[req.Pipeline]; ok {
		return result, nil
	}
	return &RunResult{Status: domain.StageSucceeded}, nil
}

func testBatch() []domain.BatchEntity {
	return []domain.BatchEntity{
		{ID: "FEAT-123", Type: "feature", SourcePath: "inbox/feat-123.md"},
		{ID: "US-12301", Type: "userstory", SourcePath: "inbox/us-12301.md"},
	}
}

func TestRunBatchValidateFailureBlocksEverything(t *testing.T) {
	runner := newStubRunner()
	runner.results[domain.PipelineValidate] = &RunResult{
		Status:       domain.StageFailed,
		Message:      "validation failed: US-12301: missing acceptance criteria",
		EntityErrors: map[string]string{"US-12301": "missing acceptance criteria"},
	}
	o := NewOrchestrator(runner, observability.NewLogger("error", false))

	report, err := o.RunBatch(context.Background(), "/repo", testBatch())
	require.NoError(t, err)

	assert.Equal(t, domain.StageFailed, report.Stages.Validate.Status)
	for _, stage := range []domain.StageResult{report.Stages.BuildGraph, report.Stages.Impact, report.Stages.Generate} {
		assert.Equal(t, domain.StageFailed, stage.Status)
		assert.Contains(t, stage.Message, "validate failed")
	}

	// Downstream stages never ran.
	assert.Zero(t, runner.calls[domain.PipelineBuildGraph])
	assert.Zero(t, runner.calls[domain.PipelineImpact])
	assert.Zero(t, runner.calls[domain.PipelineGenerate])

	// The named entity carries its message; the sibling fails without one.
	byID := entityByID(t, report)
	us := byID["US-12301"]
	assert.Equal(t, domain.EntityFailed, us.Status)
	assert.Equal(t, []string{"missing acceptance criteria"}, us.Errors)

	feat := byID["FEAT-123"]
	assert.Equal(t, domain.EntityFailed, feat.Status)
	assert.Empty(t, feat.Errors)
}

func TestRunBatchAllStagesSucceed(t *testing.T) {
	runner := newStubRunner()
	runner.results[domain.PipelineGenerate] = &RunResult{
		Status:    domain.StageSucceeded,
		Generated: []string{"FEAT-123", "US-12301"},
		GeneratedPaths: map[string]string{
			"FEAT-123": "contexts/features/FEAT-123.yaml",
			"US-12301": "contexts/userstories/US-12301.yaml",
		},
	}
	o := NewOrchestrator(runner, observability.NewLogger("error", false))

	report, err := o.RunBatch(context.Background(), "/repo", testBatch())
	require.NoError(t, err)

	assert.Equal(t, domain.StageSucceeded, report.Stages.Validate.Status)
	assert.Equal(t, domain.StageSucceeded, report.Stages.BuildGraph.Status)
	assert.Equal(t, domain.StageSucceeded, report.Stages.Impact.Status)
	assert.Equal(t, domain.StageSucceeded, report.Stages.Generate.Status)

	byID := entityByID(t, report)
	assert.Equal(t, domain.EntitySucceeded, byID["FEAT-123"].Status)
	assert.Equal(t, "contexts/features/FEAT-123.yaml", byID["FEAT-123"].Path)
	assert.Equal(t, domain.EntitySucceeded, byID["US-12301"].Status)
	assert.Equal(t, "contexts/userstories/US-12301.yaml", byID["US-12301"].Path)

	assert.ElementsMatch(t, []string{
		"contexts/features/FEAT-123.yaml",
		"contexts/userstories/US-12301.yaml",
	}, report.GeneratedFiles)
	assert.ElementsMatch(t, []string{"inbox/feat-123.md", "inbox/us-12301.md"}, report.SourcePreviews)

	// Impact and generate are scoped to the batch ids.
	assert.Equal(t, []string{"FEAT-123", "US-12301"}, runner.lastIDs[domain.PipelineImpact])
	assert.Equal(t, []string{"FEAT-123", "US-12301"}, runner.lastIDs[domain.PipelineGenerate])
	// Validate covers the whole repository.
	assert.Empty(t, runner.lastIDs[domain.PipelineValidate])
}

func TestRunBatchBuildGraphFailureCascadesDownstreamOnly(t *testing.T) {
	runner := newStubRunner()
	runner.results[domain.PipelineBuildGraph] = &RunResult{Status: domain.StageFailed, Message: "cycle detected"}
	o := NewOrchestrator(runner, observability.NewLogger("error", false))

	report, err := o.RunBatch(context.Background(), "/repo", testBatch())
	require.NoError(t, err)

	assert.Equal(t, domain.StageSucceeded, report.Stages.Validate.Status)
	assert.Equal(t, domain.StageFailed, report.Stages.BuildGraph.Status)
	assert.Contains(t, report.Stages.Impact.Message, "build-graph failed")
	assert.Contains(t, report.Stages.Generate.Message, "build-graph failed")
	assert.Zero(t, runner.calls[domain.PipelineImpact])
	assert.Zero(t, runner.calls[domain.PipelineGenerate])

	// Entities keep their prior status; only validate failure fails them.
	for _, entity := range report.Entities {
		assert.Equal(t, domain.EntityPending, entity.Status)
	}
}

func TestRunBatchEntityAbsentFromGenerateOutputKeepsStatus(t *testing.T) {
	runner := newStubRunner()
	runner.results[domain.PipelineGenerate] = &RunResult{
		Status:         domain.StageSucceeded,
		GeneratedPaths: map[string]string{"FEAT-123": "contexts/features/FEAT-123.yaml"},
	}
	o := NewOrchestrator(runner, observability.NewLogger("error", false))

	report, err := o.RunBatch(context.Background(), "/repo", testBatch())
	require.NoError(t, err)

	byID := entityByID(t, report)
	assert.Equal(t, domain.EntitySucceeded, byID["FEAT-123"].Status)
	assert.Equal(t, domain.EntityPending, byID["US-12301"].Status)
	assert.Equal(t, []string{"contexts/features/FEAT-123.yaml"}, report.GeneratedFiles)
}

func TestRunBatchRejectsEmptyBatch(t *testing.T) {
	o := NewOrchestrator(newStubRunner(), observability.NewLogger("error", false))
	_, err := o.RunBatch(context.Background(), "/repo", nil)
	require.Error(t, err)
}

func entityByID(t *testing.T, report *domain.PipelineRunReport) map[string]domain.EntityReport {
	t.Helper()
	out := make(map[string]domain.EntityReport, len(report.Entities))
	for _, entity := range report.Entities {
		out[entity.ID] = entity
	}
	return out
}
