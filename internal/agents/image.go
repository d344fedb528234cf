package agents

import (
	"context"

	"blackhole/internal/extract"
	"blackhole/internal/models"
	"blackhole/internal/ocr"
	"blackhole/internal/textproc"
)

// PlaceholderOCR is the extracted text when no OCR engine is configured
const PlaceholderOCR = "[OCR unavailable: no text recognition engine is configured]"

// ImageAgent recognizes text in images:
// extract -> preprocess -> recognize -> postprocess -> analyze
type ImageAgent struct {
	*Base
}

// NewImageAgent creates the OCR agent. Without deps.OCR it still runs and
// returns a placeholder result.
func NewImageAgent(deps Deps) *ImageAgent {
	deps = deps.withDefaults()
	return &ImageAgent{NewBase(Definition{
		Name:     NameImage,
		Validate: validateContent(NameImage, extract.IsPDFType),
		Stages: []Stage{
			{Name: "extract", Fn: extractStage(deps)},
			{Name: "preprocess", Fn: preprocessStage},
			{Name: "recognize", Fn: recognizeStage(deps.OCR, deps.Languages)},
			{Name: "postprocess", Fn: postprocessStage},
			{Name: "analyze", Fn: analyzeStage},
		},
		Output:  ocrOutput,
		Persist: documentPersister(deps),
	}, deps)}
}

func preprocessStage(_ context.Context, p Payload) (Payload, error) {
	if p.Data == nil || p.Text != "" {
		return p, nil
	}
	img, err := extract.Preprocess(p.Data)
	if err != nil {
		return p, err
	}
	p.Image = &img
	return p, nil
}

func recognizeStage(engine ocr.Engine, defaultLangs []string) StageFunc {
	return func(ctx context.Context, p Payload) (Payload, error) {
		if p.Image == nil {
			p.Engine = "none"
			return p, nil
		}
		if engine == nil {
			p.Text = PlaceholderOCR
			p.Placeholder = true
			p.Engine = "none"
			return p, nil
		}
		p.Languages = languages(p.Input, defaultLangs)
		rec, err := engine.Recognize(ctx, p.Image.Data, p.Languages)
		if err != nil {
			return p, err
		}
		p.Text = rec.Text
		p.Confidence = rec.Confidence
		p.Engine = engine.Name()
		return p, nil
	}
}

func postprocessStage(_ context.Context, p Payload) (Payload, error) {
	if !p.Placeholder {
		p.Text = textproc.Normalize(p.Text)
	}
	return p, nil
}

func analyzeStage(_ context.Context, p Payload) (Payload, error) {
	if p.Placeholder {
		p.Analysis = models.TextAnalysis{}
		return p, nil
	}
	p.Analysis = textproc.Analyze(p.Text)
	return p, nil
}

func languages(in *Input, fallback []string) []string {
	if in != nil && len(in.Options.Languages) > 0 {
		return in.Options.Languages
	}
	return fallback
}

func ocrOutput(p Payload) models.Output {
	out := models.OCROutput{
		ExtractedText: p.Text,
		Engine:        p.Engine,
		Placeholder:   p.Placeholder,
		Confidence:    p.Confidence,
		Languages:     p.Languages,
		Analysis:      p.Analysis,
	}
	if p.Image != nil {
		out.ImageFormat = p.Image.Format
		out.Width = p.Image.Width
		out.Height = p.Image.Height
	}
	return out
}
