package agents

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"blackhole/internal/extract"
)

// validateContent requires a file, URL or text and rejects files that are
// clearly meant for another agent
func validateContent(agent string, rejects func(mime string) bool) func(in *Input) error {
	return func(in *Input) error {
		if !in.HasContent() {
			return &ValidationError{Agent: agent, Reason: "one of file, url or text is required"}
		}
		if in.File != nil && !in.File.Empty() {
			if mime := in.File.MimeType(); rejects(mime) {
				return &ValidationError{Agent: agent, Reason: fmt.Sprintf("unsupported file type %s", mime)}
			}
		}
		return nil
	}
}

// extractStage resolves the input into a canonical byte payload. Inline
// bytes win over a file path, which wins over a URL. Text-only inputs leave
// Data nil and carry the text through. Markdown and plain-text files are
// converted to text here.
func extractStage(deps Deps) StageFunc {
	return func(ctx context.Context, p Payload) (Payload, error) {
		in := p.Input
		declared := ""

		switch {
		case in.File != nil && len(in.File.Data) > 0:
			p.Data = in.File.Data
			p.Filename = in.File.Name
			declared = in.File.Type
		case in.File != nil && in.File.Path != "":
			data, err := readFile(in.File.Path, deps.MaxFileBytes)
			if err != nil {
				return p, err
			}
			p.Data = data
			p.Filename = in.File.Name
			if p.Filename == "" {
				p.Filename = filepath.Base(in.File.Path)
			}
			declared = in.File.Type
		case strings.TrimSpace(in.URL) != "":
			resp, err := deps.Fetcher.Get(ctx, strings.TrimSpace(in.URL))
			if err != nil {
				return p, err
			}
			p.Data = resp.Body
			p.Filename = urlFilename(resp.URL)
			declared = resp.ContentType
		}

		if p.Data == nil {
			p.Text = in.Text
			p.MimeType = "text/plain"
			return p, nil
		}

		p.MimeType = extract.DetectMime(p.Filename, declared, p.Data)
		switch p.MimeType {
		case "text/markdown":
			p.Text = extract.MarkdownToText(p.Data)
		case "text/plain":
			p.Text = string(p.Data)
		}
		return p, nil
	}
}

func readFile(name string, limit int64) ([]byte, error) {
	info, err := os.Stat(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", name)
	}
	if info.Size() > limit {
		return nil, fmt.Errorf("file is %d bytes, limit is %d", info.Size(), limit)
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

func urlFilename(u *url.URL) string {
	if u == nil {
		return ""
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" {
		return ""
	}
	return base
}

// urlExtType returns the MIME type implied by a URL's path extension
func urlExtType(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return extract.MimeTypeFromExtension(path.Ext(u.Path))
}
