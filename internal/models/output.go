package models

import "time"

// Output kinds
const (
	OutputOCR      = "ocr"
	OutputPDF      = "pdf"
	OutputSearch   = "search"
	OutputLiveData = "live_data"
)

// Output is the agent-specific payload of an AgentResult
type Output interface {
	Kind() string
}

// TextAnalysis holds metrics derived from normalized text
type TextAnalysis struct {
	WordCount      int       `bson:"word_count" json:"word_count"`
	CharCount      int       `bson:"char_count" json:"char_count"`
	LineCount      int       `bson:"line_count" json:"line_count"`
	SentenceCount  int       `bson:"sentence_count" json:"sentence_count"`
	Entities       Entities  `bson:"entities" json:"entities"`
	Sentiment      Sentiment `bson:"sentiment" json:"sentiment"`
	Keywords       []string  `bson:"keywords,omitempty" json:"keywords,omitempty"`
	Summary        string    `bson:"summary" json:"summary"`
	Authors        []string  `bson:"authors,omitempty" json:"authors,omitempty"`
	ReadingSeconds int       `bson:"reading_seconds" json:"reading_seconds"`
}

// Entities are simple pattern-extracted signals
type Entities struct {
	Emails  []string `bson:"emails,omitempty" json:"emails,omitempty"`
	URLs    []string `bson:"urls,omitempty" json:"urls,omitempty"`
	Dates   []string `bson:"dates,omitempty" json:"dates,omitempty"`
	Numbers []string `bson:"numbers,omitempty" json:"numbers,omitempty"`
	Names   []string `bson:"names,omitempty" json:"names,omitempty"`
}

// Sentiment is a lexicon score in [-1, 1] with a label
type Sentiment struct {
	Score float64 `bson:"score" json:"score"`
	Label string  `bson:"label" json:"label"` // positive, negative, neutral
}

// OCROutput is produced by the image agent
type OCROutput struct {
	ExtractedText string       `bson:"extracted_text" json:"extracted_text"`
	Engine        string       `bson:"engine" json:"engine"`
	Placeholder   bool         `bson:"placeholder" json:"placeholder"`
	Confidence    float64      `bson:"confidence" json:"confidence"`
	Languages     []string     `bson:"languages,omitempty" json:"languages,omitempty"`
	ImageFormat   string       `bson:"image_format,omitempty" json:"image_format,omitempty"`
	Width         int          `bson:"width,omitempty" json:"width,omitempty"`
	Height        int          `bson:"height,omitempty" json:"height,omitempty"`
	Analysis      TextAnalysis `bson:"analysis" json:"analysis"`
}

func (OCROutput) Kind() string { return OutputOCR }

// PDFOutput is produced by the PDF agent
type PDFOutput struct {
	ExtractedText string       `bson:"extracted_text" json:"extracted_text"`
	Engine        string       `bson:"engine" json:"engine"`
	Placeholder   bool         `bson:"placeholder" json:"placeholder"`
	PageCount     int          `bson:"page_count" json:"page_count"`
	PagesWithText int          `bson:"pages_with_text" json:"pages_with_text"`
	Truncated     bool         `bson:"truncated" json:"truncated"`
	Analysis      TextAnalysis `bson:"analysis" json:"analysis"`
}

func (PDFOutput) Kind() string { return OutputPDF }

// SearchHit is one ranked search result
type SearchHit struct {
	DocumentID string       `bson:"document_id" json:"document_id"`
	Title      string       `bson:"title" json:"title"`
	Type       DocumentType `bson:"type" json:"type"`
	Score      float64      `bson:"score" json:"score"`
	Snippet    string       `bson:"snippet" json:"snippet"`
}

// SearchOutput is produced by the search agent
type SearchOutput struct {
	Query   string      `bson:"query" json:"query"`
	Mode    string      `bson:"mode" json:"mode"`
	Results []SearchHit `bson:"results" json:"results"`
	Total   int         `bson:"total" json:"total"`
	Message string      `bson:"message,omitempty" json:"message,omitempty"`
}

func (SearchOutput) Kind() string { return OutputSearch }

// LiveDataOutput is produced by the live-data agent
type LiveDataOutput struct {
	Source    string                 `bson:"source" json:"source"`
	Query     string                 `bson:"query" json:"query"`
	Data      map[string]interface{} `bson:"data" json:"data"`
	Cached    bool                   `bson:"cached" json:"cached"`
	CacheTier string                 `bson:"cache_tier,omitempty" json:"cache_tier,omitempty"`
	FetchedAt time.Time              `bson:"fetched_at" json:"fetched_at"`
	ExpiresAt time.Time              `bson:"expires_at" json:"expires_at"`
}

func (LiveDataOutput) Kind() string { return OutputLiveData }

// TextOf returns the extracted text carried by an output, if any
func TextOf(o Output) string {
	switch v := o.(type) {
	case OCROutput:
		return v.ExtractedText
	case *OCROutput:
		return v.ExtractedText
	case PDFOutput:
		return v.ExtractedText
	case *PDFOutput:
		return v.ExtractedText
	}
	return ""
}
