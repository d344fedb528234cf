package agents

import (
	"context"
	"fmt"
	"strings"

	"blackhole/internal/extract"
	"blackhole/internal/models"
	"blackhole/internal/ocr"
)

// PlaceholderScannedPDF is the extracted text of an image-only PDF that could
// not be recognized. The argument is the page count.
const PlaceholderScannedPDF = "[No text layer: %d page(s) appear to be scanned images and no OCR engine produced text]"

// PDFAgent extracts the text layer of PDFs:
// extract -> parse -> postprocess -> analyze.
// Pages without a text layer are sent to the OCR engine when one is configured.
type PDFAgent struct {
	*Base
}

// NewPDFAgent creates the PDF agent
func NewPDFAgent(deps Deps) *PDFAgent {
	deps = deps.withDefaults()
	return &PDFAgent{NewBase(Definition{
		Name:     NamePDF,
		Validate: validateContent(NamePDF, extract.IsImageType),
		Stages: []Stage{
			{Name: "extract", Fn: extractStage(deps)},
			{Name: "parse", Fn: parseStage(deps.PDF, deps.OCR, deps.Languages)},
			{Name: "postprocess", Fn: postprocessStage},
			{Name: "analyze", Fn: analyzeStage},
		},
		Output:  pdfOutput,
		Persist: documentPersister(deps),
	}, deps)}
}

func parseStage(engine extract.PDFEngine, recognizer ocr.Engine, defaultLangs []string) StageFunc {
	return func(ctx context.Context, p Payload) (Payload, error) {
		if p.Data == nil || p.Text != "" {
			p.Engine = "none"
			return p, nil
		}

		text, err := engine.Extract(p.Data)
		if err != nil {
			return p, err
		}
		p.PDF = text
		p.Engine = engine.Name()
		p.Text = text.Text
		if text.PagesWithText > 0 {
			return p, nil
		}

		// image-only document
		if recognizer != nil {
			if images := extract.EmbeddedJPEGs(p.Data, extract.MaxPDFPages); len(images) > 0 {
				for i, img := range images {
					if pre, err := extract.Preprocess(img); err == nil {
						images[i] = pre.Data
					}
				}
				p.Languages = languages(p.Input, defaultLangs)
				rec, err := ocr.RecognizeAll(ctx, recognizer, images, p.Languages)
				if err != nil {
					return p, err
				}
				p.Text = rec.Text
				p.Confidence = rec.Confidence
				p.Engine = engine.Name() + "+" + recognizer.Name()
			}
		}
		if strings.TrimSpace(p.Text) == "" {
			p.Text = fmt.Sprintf(PlaceholderScannedPDF, text.PageCount)
			p.Placeholder = true
		}
		return p, nil
	}
}

func pdfOutput(p Payload) models.Output {
	out := models.PDFOutput{
		ExtractedText: p.Text,
		Engine:        p.Engine,
		Placeholder:   p.Placeholder,
		Analysis:      p.Analysis,
	}
	if p.PDF != nil {
		out.PageCount = p.PDF.PageCount
		out.PagesWithText = p.PDF.PagesWithText
		out.Truncated = p.PDF.Truncated
	}
	return out
}
