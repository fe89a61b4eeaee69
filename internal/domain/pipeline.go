package domain

// PipelineName identifies one of the fixed pipeline stages.
type PipelineName string

const (
	PipelineValidate   PipelineName = "validate"
	PipelineBuildGraph PipelineName = "build-graph"
	PipelineImpact     PipelineName = "impact"
	PipelineGenerate   PipelineName = "generate"
)

// KnownPipeline reports whether name is one of the fixed stages.
func KnownPipeline(name PipelineName) bool {
	switch name {
	case PipelineValidate, PipelineBuildGraph, PipelineImpact, PipelineGenerate:
		return true
	}
	return false
}

// BatchEntity is one newly created entity submitted for pipeline processing.
type BatchEntity struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Path       string `json:"path,omitempty"`
	SourcePath string `json:"source_path,omitempty"`
}

// EntityStatus is the per-entity outcome within a batch report.
type EntityStatus string

const (
	EntityPending   EntityStatus = "pending"
	EntitySucceeded EntityStatus = "succeeded"
	EntityFailed    EntityStatus = "failed"
)

// EntityReport is the final per-entity result in a PipelineRunReport.
type EntityReport struct {
	ID         string       `json:"id"`
	Type       string       `json:"type"`
	Status     EntityStatus `json:"status"`
	Errors     []string     `json:"errors,omitempty"`
	Path       string       `json:"path,omitempty"`
	SourcePath string       `json:"source_path,omitempty"`
}

// StageStatus is the outcome of one pipeline stage.
type StageStatus string

const (
	StageSucceeded StageStatus = "succeeded"
	StageFailed    StageStatus = "failed"
)

// StageResult records the outcome of one pipeline stage. A stage that never
// ran because an upstream stage failed is failed with a cascade message.
type StageResult struct {
	Status     StageStatus `json:"status"`
	Message    string      `json:"message,omitempty"`
	DurationMs int64       `json:"duration_ms"`
}

// StageResults holds the four fixed stage outcomes in execution order.
type StageResults struct {
	Validate   StageResult `json:"validate"`
	BuildGraph StageResult `json:"build_graph"`
	Impact     StageResult `json:"impact"`
	Generate   StageResult `json:"generate"`
}

// PipelineRunReport is the unified report for one batch. It is produced once
// per batch and immutable after completion; no partial report is emitted.
type PipelineRunReport struct {
	BatchID        string         `json:"batch_id"`
	Entities       []EntityReport `json:"entities"`
	GeneratedFiles []string       `json:"generated_files,omitempty"`
	SourcePreviews []string       `json:"source_previews,omitempty"`
	Stages         StageResults   `json:"pipelines"`
}
