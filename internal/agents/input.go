// Package agents implements the processing agents and the manager that
// routes inputs to them.
package agents

import (
	"fmt"
	"path/filepath"
	"strings"

	"blackhole/internal/extract"
	"blackhole/internal/textproc"
)

// Kind tags an Input with the agent family it targets
type Kind string

const (
	KindUnclassified Kind = ""
	KindAuto         Kind = "auto"
	KindPDF          Kind = "pdf"
	KindImage        Kind = "image"
	KindSearch       Kind = "search"
	KindLiveData     Kind = "live_data"
)

// ParseKind maps a transport type string onto a Kind
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindUnclassified, KindAuto:
		return KindAuto, nil
	case KindPDF, KindImage, KindSearch, KindLiveData:
		return k, nil
	}
	return "", &UnknownAgentError{Type: s}
}

// File is an uploaded or referenced file. Data holds inline bytes; Path
// names a file on local disk.
type File struct {
	Name string `json:"name,omitempty"`
	Type string `json:"type,omitempty"`
	Data []byte `json:"data,omitempty"`
	Path string `json:"path,omitempty"`
}

// Empty reports whether the file carries neither bytes nor a path
func (f *File) Empty() bool {
	return f == nil || (len(f.Data) == 0 && f.Path == "")
}

// MimeType resolves the file's MIME type from the declared type, the name
// (or the base of Path when unnamed) and the content
func (f *File) MimeType() string {
	if f == nil {
		return ""
	}
	name := f.Name
	if name == "" && f.Path != "" {
		name = filepath.Base(f.Path)
	}
	return extract.DetectMime(name, f.Type, f.Data)
}

// Options tune individual agents. Unused fields are ignored.
type Options struct {
	Title        string   `json:"title,omitempty"`
	Languages    []string `json:"languages,omitempty"`
	Limit        int      `json:"limit,omitempty"`
	Threshold    float64  `json:"threshold,omitempty"`
	DocumentType string   `json:"document_type,omitempty"`
	Semantic     bool     `json:"semantic,omitempty"`
	NoCache      bool     `json:"no_cache,omitempty"`
}

// Input is the payload handed to an agent. Kind is optional: an
// unclassified input is routed by shape.
type Input struct {
	Kind    Kind    `json:"kind,omitempty"`
	File    *File   `json:"file,omitempty"`
	URL     string  `json:"url,omitempty"`
	Text    string  `json:"text,omitempty"`
	Query   string  `json:"query,omitempty"`
	Source  string  `json:"source,omitempty"`
	Options Options `json:"options,omitempty"`
}

// HasContent reports whether the input carries a file, a URL or text
func (in *Input) HasContent() bool {
	return in != nil && (!in.File.Empty() || strings.TrimSpace(in.URL) != "" || strings.TrimSpace(in.Text) != "")
}

const summaryTextChars = 200

// Summary returns a copy of the input that is safe to persist and log:
// binary data is replaced with a size marker and long text is shortened.
func (in *Input) Summary() map[string]interface{} {
	if in == nil {
		return map[string]interface{}{}
	}
	out := map[string]interface{}{}
	if in.Kind != KindUnclassified {
		out["kind"] = string(in.Kind)
	}
	if in.File != nil {
		file := map[string]interface{}{}
		if in.File.Name != "" {
			file["name"] = in.File.Name
		}
		if in.File.Type != "" {
			file["type"] = in.File.Type
		}
		if in.File.Path != "" {
			file["path"] = in.File.Path
		}
		if len(in.File.Data) > 0 {
			file["data"] = sizeMarker(len(in.File.Data))
		}
		out["file"] = file
	}
	if in.URL != "" {
		out["url"] = in.URL
	}
	if in.Text != "" {
		if len(in.Text) > summaryTextChars {
			out["text"] = textproc.Preview(in.Text, summaryTextChars)
			out["text_length"] = len(in.Text)
		} else {
			out["text"] = in.Text
		}
	}
	if in.Query != "" {
		out["query"] = in.Query
	}
	if in.Source != "" {
		out["source"] = in.Source
	}
	return out
}

func sizeMarker(n int) string {
	return fmt.Sprintf("<%d bytes>", n)
}
