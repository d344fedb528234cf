// Package ocr defines the text-recognition engine used by the image and PDF agents.
package ocr

import (
	"context"
	"fmt"
	"strings"
)

// Recognition is the text recognized in one image
type Recognition struct {
	Text string
	// Confidence is the mean word confidence in [0, 1]
	Confidence float64
}

// Engine recognizes text in an encoded image
type Engine interface {
	Name() string
	Recognize(ctx context.Context, image []byte, languages []string) (Recognition, error)
}

// EngineFunc adapts a function to Engine
type EngineFunc struct {
	EngineName string
	Fn         func(ctx context.Context, image []byte, languages []string) (Recognition, error)
}

func (f EngineFunc) Name() string { return f.EngineName }

func (f EngineFunc) Recognize(ctx context.Context, image []byte, languages []string) (Recognition, error) {
	return f.Fn(ctx, image, languages)
}

// RecognizeAll runs the engine over images sequentially and joins the text
// with page markers. Confidence is averaged over images that produced text.
func RecognizeAll(ctx context.Context, engine Engine, images [][]byte, languages []string) (Recognition, error) {
	var (
		b     strings.Builder
		sum   float64
		count int
	)
	for i, img := range images {
		if err := ctx.Err(); err != nil {
			return Recognition{}, err
		}
		rec, err := engine.Recognize(ctx, img, languages)
		if err != nil {
			return Recognition{}, fmt.Errorf("recognize image %d: %w", i+1, err)
		}
		text := strings.TrimSpace(rec.Text)
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "\n--- Image %d ---\n%s\n", i+1, text)
		sum += rec.Confidence
		count++
	}
	out := Recognition{Text: b.String()}
	if count > 0 {
		out.Confidence = sum / float64(count)
	}
	return out, nil
}
