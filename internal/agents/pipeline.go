package agents

import (
	"context"
	"fmt"

	"blackhole/internal/extract"
	"blackhole/internal/models"
)

// Payload is the value threaded through an agent's stages. Each stage
// receives the previous stage's payload and returns a new one.
type Payload struct {
	Input *Input

	// Data is the canonical binary payload, nil when the input is already text
	Data     []byte
	MimeType string
	Filename string

	Text        string
	Engine      string
	Placeholder bool
	Confidence  float64
	Languages   []string

	Image    *extract.PreprocessedImage
	PDF      *extract.PDFText
	Analysis models.TextAnalysis

	Candidates []models.Document
	Search     *models.SearchOutput
	Live       *models.LiveDataOutput
}

// StageFunc transforms a payload. It may read agent dependencies but must not
// modify them.
type StageFunc func(ctx context.Context, p Payload) (Payload, error)

// Stage is one named step of a pipeline
type Stage struct {
	Name string
	Fn   StageFunc
}

// RunStages runs stages in order. A failing stage stops the pipeline and its
// error is wrapped in a ProcessingError naming the stage.
func RunStages(ctx context.Context, agent string, stages []Stage, p Payload) (Payload, error) {
	for _, stage := range stages {
		next, err := stage.Fn(ctx, p)
		if err != nil {
			return p, &ProcessingError{Agent: agent, Stage: stage.Name, Err: err}
		}
		p = next
	}
	return p, nil
}

// WithStage returns a copy of stages with the stage called name replaced by fn
func WithStage(stages []Stage, name string, fn StageFunc) ([]Stage, error) {
	out := make([]Stage, len(stages))
	copy(out, stages)
	for i := range out {
		if out[i].Name == name {
			out[i].Fn = fn
			return out, nil
		}
	}
	return nil, fmt.Errorf("no stage named %q", name)
}

// StageNames lists stage names in execution order
func StageNames(stages []Stage) []string {
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.Name
	}
	return names
}
