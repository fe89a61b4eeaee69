package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/contextkit/orchestrator/internal/domain"
	"github.com/contextkit/orchestrator/internal/observability"
)

// Orchestrator drives the fixed validate, build-graph, impact, generate
// sequence over a batch of entities and folds the stage outcomes into one
// report.
type Orchestrator struct {
	runner Runner
	logger *slog.Logger
}

// NewOrchestrator creates a batch orchestrator on top of a stage runner.
func NewOrchestrator(runner Runner, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{runner: runner, logger: logger}
}

// RunBatch processes a batch of entities through the four stages. Stages run
// strictly in order and an upstream failure fails every downstream stage
// with a cascade message without invoking it. The report is only returned
// complete; there is no partial emission.
func (o *Orchestrator) RunBatch(ctx context.Context, repoPath string, entities []domain.BatchEntity) (*domain.PipelineRunReport, error) {
	if len(entities) == 0 {
		return nil, domain.NewError(domain.ErrCodeValidation, "batch contains no entities")
	}

	batchID := uuid.NewString()
	report := &domain.PipelineRunReport{
		BatchID:  batchID,
		Entities: make([]domain.EntityReport, len(entities)),
	}
	entityIDs := make([]string, len(entities))
	for i, entity := range entities {
		entityIDs[i] = entity.ID
		report.Entities[i] = domain.EntityReport{
			ID:         entity.ID,
			Type:       entity.Type,
			Status:     domain.EntityPending,
			Path:       entity.Path,
			SourcePath: entity.SourcePath,
		}
		if entity.SourcePath != "" {
			report.SourcePreviews = appendUnique(report.SourcePreviews, entity.SourcePath)
		}
	}

	o.logger.Info("pipeline batch started",
		observability.FieldBatchID, batchID, "entities", len(entities))

	// Validate covers the whole repository; a failure blocks the batch.
	validate := o.runStage(ctx, repoPath, domain.PipelineValidate, nil)
	report.Stages.Validate = toStageResult(validate)
	if validate.Status == domain.StageFailed {
		cascade := fmt.Sprintf("skipped: validate failed (%s)", validate.Message)
		report.Stages.BuildGraph = cascadeResult(cascade)
		report.Stages.Impact = cascadeResult(cascade)
		report.Stages.Generate = cascadeResult(cascade)

		// Every entity fails; only those named by the validator carry a
		// specific message. The unnamed ones are blocked by a sibling,
		// which the report deliberately does not distinguish.
		for i := range report.Entities {
			report.Entities[i].Status = domain.EntityFailed
			if msg, ok := validate.EntityErrors[report.Entities[i].ID]; ok {
				report.Entities[i].Errors = append(report.Entities[i].Errors, msg)
			}
		}
		return report, nil
	}

	buildGraph := o.runStage(ctx, repoPath, domain.PipelineBuildGraph, nil)
	report.Stages.BuildGraph = toStageResult(buildGraph)
	if buildGraph.Status == domain.StageFailed {
		cascade := fmt.Sprintf("skipped: build-graph failed (%s)", buildGraph.Message)
		report.Stages.Impact = cascadeResult(cascade)
		report.Stages.Generate = cascadeResult(cascade)
		return report, nil
	}

	impact := o.runStage(ctx, repoPath, domain.PipelineImpact, entityIDs)
	report.Stages.Impact = toStageResult(impact)
	if impact.Status == domain.StageFailed {
		report.Stages.Generate = cascadeResult(fmt.Sprintf("skipped: impact failed (%s)", impact.Message))
		return report, nil
	}

	generate := o.runStage(ctx, repoPath, domain.PipelineGenerate, entityIDs)
	report.Stages.Generate = toStageResult(generate)
	if generate.Status == domain.StageSucceeded {
		// Entities absent from the output map keep their prior status.
		for i := range report.Entities {
			path, ok := generate.GeneratedPaths[report.Entities[i].ID]
			if !ok {
				continue
			}
			report.Entities[i].Status = domain.EntitySucceeded
			report.Entities[i].Path = path
			report.GeneratedFiles = appendUnique(report.GeneratedFiles, path)
		}
		sort.Strings(report.GeneratedFiles)
	}

	o.logger.Info("pipeline batch finished",
		observability.FieldBatchID, batchID,
		"generate_status", report.Stages.Generate.Status)
	return report, nil
}

// runStage normalizes runner errors into a failed stage result so the batch
// report is always complete.
func (o *Orchestrator) runStage(ctx context.Context, repoPath string, name domain.PipelineName, entityIDs []string) *RunResult {
	start := time.Now()
	result, err := o.runner.Run(ctx, RunRequest{
		RepoPath:  repoPath,
		Pipeline:  name,
		EntityIDs: entityIDs,
	})
	if err != nil {
		classified := domain.Classify(err)
		o.logger.Warn("pipeline stage errored",
			observability.FieldPipeline, string(name),
			observability.FieldErrorCode, string(classified.Code),
			"error", err)
		return &RunResult{
			Status:     domain.StageFailed,
			Message:    classified.Message,
			DurationMs: time.Since(start).Milliseconds(),
		}
	}
	if result.Status == domain.StageFailed && result.Message == "" {
		result.Message = fmt.Sprintf("pipeline %s failed", name)
	}
	return result
}

func toStageResult(result *RunResult) domain.StageResult {
	return domain.StageResult{
		Status:     result.Status,
		Message:    result.Message,
		DurationMs: result.DurationMs,
	}
}

func cascadeResult(message string) domain.StageResult {
	return domain.StageResult{Status: domain.StageFailed, Message: message}
}

func appendUnique(list []string, value string) []string {
	for _, existing := range list {
		if existing == value {
			return list
		}
	}
	return append(list, value)
}
