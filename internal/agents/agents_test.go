package agents

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"blackhole/internal/database"
	"blackhole/internal/extract/extracttest"
	"blackhole/internal/livedata"
	"blackhole/internal/metrics"
	"blackhole/internal/models"
	"blackhole/internal/ocr"
)

type staticStore struct {
	store database.Store
}

func (s staticStore) Connect(context.Context) database.Store { return s.store }

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *testClock {
	return &testClock{now: time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func testDeps(store database.Store) Deps {
	deps := Deps{Logger: quietLogger(), Clock: newClock().Now}
	if store != nil {
		deps.Store = staticStore{store}
	}
	return deps
}

func fakeOCR(text string) ocr.Engine {
	return ocr.EngineFunc{
		EngineName: "fake-ocr",
		Fn: func(context.Context, []byte, []string) (ocr.Recognition, error) {
			return ocr.Recognition{Text: text, Confidence: 0.9}, nil
		},
	}
}

func pdfInput(name string, pages ...string) *Input {
	return &Input{File: &File{Name: name, Type: "application/pdf", Data: extracttest.TextPDF(pages...)}}
}

func TestValidateRejectsInputWithoutContent(t *testing.T) {
	for _, agent := range []interface {
		Agent
		Override(string, StageFunc) error
	}{
		NewPDFAgent(testDeps(nil)),
		NewImageAgent(testDeps(nil)),
	} {
		t.Run(agent.Name(), func(t *testing.T) {
			var ran atomic.Bool
			require.NoError(t, agent.Override("extract", func(_ context.Context, p Payload) (Payload, error) {
				ran.Store(true)
				return p, nil
			}))

			for _, in := range []*Input{nil, {}, {Query: "only a query"}, {File: &File{Name: "empty.pdf"}}} {
				assert.Error(t, agent.Validate(in))

				result, err := agent.Process(context.Background(), in)
				var ve *ValidationError
				require.ErrorAs(t, err, &ve)
				require.NotNil(t, result)
				assert.Equal(t, models.StatusError, result.Metadata.Status)
				assert.NotEmpty(t, result.Metadata.Error)
			}
			assert.False(t, ran.Load(), "no stage may run for invalid input")
		})
	}
}

func TestValidateRejectsWrongFileType(t *testing.T) {
	img := &Input{File: &File{Name: "scan.png", Data: extracttest.PNG(4, 4)}}
	assert.Error(t, NewPDFAgent(testDeps(nil)).Validate(img))
	assert.NoError(t, NewImageAgent(testDeps(nil)).Validate(img))

	pdf := pdfInput("a.pdf", "x")
	assert.Error(t, NewImageAgent(testDeps(nil)).Validate(pdf))
	assert.NoError(t, NewPDFAgent(testDeps(nil)).Validate(pdf))
}

func TestProcessDocumentPDFEndToEnd(t *testing.T) {
	store := database.NewMemoryStore("test_db")
	m := NewDefaultManager(testDeps(store))

	result, err := m.ProcessDocument(context.Background(), pdfInput("a.pdf", "Quarterly report for the northern region"))
	require.NoError(t, err)

	assert.Equal(t, NamePDF, result.Agent)
	assert.NotEmpty(t, result.AgentID)
	assert.False(t, result.Timestamp.IsZero())
	assert.Equal(t, models.StatusCompleted, result.Metadata.Status)
	assert.NotNil(t, result.Metadata.StartedAt)
	assert.NotNil(t, result.Metadata.CompletedAt)
	assert.Empty(t, result.StorageError)

	out, ok := result.Output.(models.PDFOutput)
	require.True(t, ok)
	assert.NotEmpty(t, out.ExtractedText)
	assert.Contains(t, out.ExtractedText, "Quarterly")
	assert.Equal(t, 1, out.PageCount)
	assert.Positive(t, out.Analysis.WordCount)

	assert.Equal(t, map[string]interface{}{"name": "a.pdf", "type": "application/pdf", "data": sizeMarker(len(extracttest.TextPDF("Quarterly report for the northern region")))}, result.Input["file"])

	assert.Equal(t, 1, store.Len(database.CollectionAgentResults))
	assert.Equal(t, 1, store.Len(database.CollectionDocuments))
	require.NotNil(t, result.DocumentID)
	assert.False(t, result.ID.IsZero())
	assert.Len(t, result.VectorEmbedding, defaultEmbeddingDims)

	var doc models.Document
	found, err := store.Collection(database.CollectionDocuments).FindOne(context.Background(), bson.M{"_id": *result.DocumentID}, &doc)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "a", doc.Title)
	assert.Equal(t, models.DocumentPDF, doc.Type)
	assert.Equal(t, out.ExtractedText, doc.Content)
	assert.False(t, doc.CreatedAt.IsZero())
}

func TestReprocessingUpdatesTheSameDocument(t *testing.T) {
	store := database.NewMemoryStore("test_db")
	agent := NewPDFAgent(testDeps(store))
	ctx := context.Background()

	first, err := agent.Process(ctx, pdfInput("a.pdf", "same bytes"))
	require.NoError(t, err)
	second, err := agent.Process(ctx, pdfInput("a.pdf", "same bytes"))
	require.NoError(t, err)

	assert.Equal(t, 2, store.Len(database.CollectionAgentResults))
	assert.Equal(t, 1, store.Len(database.CollectionDocuments))
	require.NotNil(t, first.DocumentID)
	require.NotNil(t, second.DocumentID)
	assert.Equal(t, *first.DocumentID, *second.DocumentID)
	assert.NotEqual(t, first.Metadata.InvocationID, second.Metadata.InvocationID)
	assert.Equal(t, first.AgentID, second.AgentID)
}

func TestRelatedDocuments(t *testing.T) {
	store := database.NewMemoryStore("test_db")
	agent := NewPDFAgent(testDeps(store))
	ctx := context.Background()

	base := "The annual maintenance report covers the pumping stations of the eastern district, " +
		"including inspection results, replacement schedules and the budget for the coming year."

	first, err := agent.Process(ctx, pdfInput("report.pdf", base))
	require.NoError(t, err)
	second, err := agent.Process(ctx, pdfInput("report-v2.pdf", base+" Appendix attached."))
	require.NoError(t, err)
	_, err = agent.Process(ctx, pdfInput("menu.pdf", "Soup of the day, fresh bread and lemon cake."))
	require.NoError(t, err)

	var doc models.Document
	found, err := store.Collection(database.CollectionDocuments).FindOne(ctx, bson.M{"_id": *second.DocumentID}, &doc)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, doc.RelatedDocuments, 1)
	assert.Equal(t, *first.DocumentID, doc.RelatedDocuments[0].DocumentID)
	assert.Equal(t, RelationshipSimilar, doc.RelatedDocuments[0].Relationship)
	assert.GreaterOrEqual(t, doc.RelatedDocuments[0].Score, relatedThreshold)
}

func TestDetect(t *testing.T) {
	pdf := extracttest.TextPDF("x")
	png := extracttest.PNG(2, 2)
	tests := []struct {
		name string
		in   *Input
		want Kind
	}{
		{"pdf beats query", &Input{File: &File{Name: "a.pdf", Type: "application/pdf", Data: pdf}, Query: "find me"}, KindPDF},
		{"pdf sniffed from bytes", &Input{File: &File{Data: pdf}, Query: "find me"}, KindPDF},
		{"image beats query", &Input{File: &File{Name: "scan.jpg", Data: png}, Query: "q"}, KindImage},
		{"pdf on disk", &Input{File: &File{Path: "/srv/uploads/report.pdf"}}, KindPDF},
		{"image on disk", &Input{File: &File{Path: "/srv/uploads/scan.JPG"}, Query: "q"}, KindImage},
		{"pdf url", &Input{URL: "https://example.com/files/report.PDF?x=1"}, KindPDF},
		{"image url", &Input{URL: "https://example.com/photo.png"}, KindImage},
		{"source", &Input{Source: "weather", Query: "Paris"}, KindLiveData},
		{"query", &Input{Query: "invoices"}, KindSearch},
		{"explicit kind", &Input{Kind: KindSearch, File: &File{Name: "a.pdf", Data: pdf}, Query: "x"}, KindSearch},
		{"auto kind", &Input{Kind: KindAuto, Query: "x"}, KindSearch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Detect(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, in := range []*Input{
		{},
		{Text: "free text"},
		{URL: "https://example.com/page"},
		{File: &File{Name: "data.bin", Data: []byte{0x01, 0x02}}},
	} {
		_, err := Detect(in)
		var ae *AmbiguousInputError
		assert.ErrorAs(t, err, &ae)
	}
	_, err := Detect(nil)
	assert.Equal(t, ErrorKindValidation, Classify(err))
}

func TestProcessDocumentPrefersPDFOverQuery(t *testing.T) {
	m := NewDefaultManager(testDeps(database.NewMemoryStore("test_db")))
	in := pdfInput("a.pdf", "Hello")
	in.Query = "search terms"

	result, err := m.ProcessDocument(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, NamePDF, result.Agent)
}

func TestImageAgentWithoutEngineReturnsPlaceholder(t *testing.T) {
	store := database.NewMemoryStore("test_db")
	agent := NewImageAgent(testDeps(store))

	result, err := agent.Process(context.Background(), &Input{File: &File{Name: "scan.png", Data: extracttest.PNG(64, 32)}})
	require.NoError(t, err)

	out := result.Output.(models.OCROutput)
	assert.True(t, out.Placeholder)
	assert.Equal(t, PlaceholderOCR, out.ExtractedText)
	assert.Equal(t, "none", out.Engine)
	assert.Equal(t, 64, out.Width)
	assert.Zero(t, out.Analysis.WordCount)

	// placeholders are not archived as documents
	assert.Equal(t, 0, store.Len(database.CollectionDocuments))
	assert.Equal(t, 1, store.Len(database.CollectionAgentResults))
}

func TestImageAgentWithEngine(t *testing.T) {
	deps := testDeps(database.NewMemoryStore("test_db"))
	deps.OCR = fakeOCR("Invoice   42\r\n\n\n\nTotal due   $19.99  ")
	agent := NewImageAgent(deps)

	assert.Equal(t, []string{"extract", "preprocess", "recognize", "postprocess", "analyze"}, StageNames(agent.Stages()))

	result, err := agent.Process(context.Background(), &Input{File: &File{Name: "invoice.jpg", Data: extracttest.JPEG(40, 40)}})
	require.NoError(t, err)

	out := result.Output.(models.OCROutput)
	assert.False(t, out.Placeholder)
	assert.Equal(t, "Invoice 42\n\nTotal due $19.99", out.ExtractedText)
	assert.Equal(t, "fake-ocr", out.Engine)
	assert.Equal(t, []string{"eng"}, out.Languages)
	assert.Equal(t, "jpeg", out.ImageFormat)
	assert.InDelta(t, 0.9, out.Confidence, 1e-9)
	assert.Positive(t, out.Analysis.WordCount)
	require.NotNil(t, result.DocumentID)
}

func TestImageAgentEngineErrorIsProcessingError(t *testing.T) {
	deps := testDeps(nil)
	deps.OCR = ocr.EngineFunc{EngineName: "broken", Fn: func(context.Context, []byte, []string) (ocr.Recognition, error) {
		return ocr.Recognition{}, errors.New("engine crashed")
	}}
	result, err := NewImageAgent(deps).Process(context.Background(), &Input{File: &File{Name: "a.png", Data: extracttest.PNG(8, 8)}})

	var pe *ProcessingError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "recognize", pe.Stage)
	assert.Equal(t, models.StatusError, result.Metadata.Status)
	assert.Contains(t, result.Metadata.Error, "engine crashed")
	assert.Equal(t, http.StatusUnprocessableEntity, HTTPStatus(err))
}

func TestPDFAgentScannedDocument(t *testing.T) {
	jpg := extracttest.JPEG(40, 40)
	in := func() *Input {
		return &Input{File: &File{Name: "scan.pdf", Data: extracttest.ScannedPDF(jpg, jpg)}}
	}

	result, err := NewPDFAgent(testDeps(nil)).Process(context.Background(), in())
	require.NoError(t, err)
	out := result.Output.(models.PDFOutput)
	assert.True(t, out.Placeholder)
	assert.Contains(t, out.ExtractedText, "2 page(s)")
	assert.Equal(t, 2, out.PageCount)

	deps := testDeps(nil)
	deps.OCR = fakeOCR("scanned words")
	result, err = NewPDFAgent(deps).Process(context.Background(), in())
	require.NoError(t, err)
	out = result.Output.(models.PDFOutput)
	assert.False(t, out.Placeholder)
	assert.Equal(t, "ledongthuc/pdf+fake-ocr", out.Engine)
	assert.Contains(t, out.ExtractedText, "--- Image 2 ---")
	assert.Contains(t, out.ExtractedText, "scanned words")
}

func TestPDFAgentTextAndMarkdownInputs(t *testing.T) {
	agent := NewPDFAgent(testDeps(nil))

	result, err := agent.Process(context.Background(), &Input{Text: "  already   extracted text  "})
	require.NoError(t, err)
	assert.Equal(t, "already extracted text", result.Output.(models.PDFOutput).ExtractedText)

	result, err = agent.Process(context.Background(), &Input{File: &File{Name: "notes.md", Data: []byte("# Notes\n\nSome **bold** text.")}})
	require.NoError(t, err)
	text := result.Output.(models.PDFOutput).ExtractedText
	assert.True(t, strings.HasPrefix(text, "Notes"))
	assert.Contains(t, text, "Some bold text.")
	assert.NotContains(t, text, "**")

	_, err = agent.Process(context.Background(), &Input{File: &File{Name: "blob.bin", Data: []byte{0, 1, 2, 3}}})
	var pe *ProcessingError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "parse", pe.Stage)
}

func TestPersistenceFailureIsSwallowed(t *testing.T) {
	store := database.NewMemoryStore("test_db")
	store.SetFailure(errors.New("disk full"))

	reg := prometheus.NewRegistry()
	deps := testDeps(store)
	deps.Metrics = metrics.New(reg, nil)

	result, err := NewPDFAgent(deps).Process(context.Background(), pdfInput("a.pdf", "Hello"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, result.Metadata.Status)
	assert.Contains(t, result.StorageError, "disk full")
	assert.Nil(t, result.DocumentID)
	assert.NotEmpty(t, result.Output.(models.PDFOutput).ExtractedText)

	assert.Equal(t, 1.0, testutil.ToFloat64(deps.Metrics.PersistenceFailures.WithLabelValues(database.CollectionAgentResults)))
	assert.Equal(t, 1.0, testutil.ToFloat64(deps.Metrics.PersistenceFailures.WithLabelValues(database.CollectionDocuments)))
	assert.Equal(t, 1.0, testutil.ToFloat64(deps.Metrics.AgentInvocations.WithLabelValues(NamePDF, "completed")))
}

func TestFallbackStorePersistence(t *testing.T) {
	result, err := NewPDFAgent(testDeps(database.NewFallbackStore("test_db"))).Process(context.Background(), pdfInput("a.pdf", "Hello"))
	require.NoError(t, err)
	assert.Empty(t, result.StorageError)
	assert.Nil(t, result.DocumentID)
	assert.True(t, result.ID.IsZero())
}

func TestConnectionManagerBackedAgents(t *testing.T) {
	dialer := database.NewMemoryDialer("memory://localhost/agents_db")
	cm := database.NewConnectionManager(dialer, database.Options{URI: "memory://localhost/agents_db", Logger: quietLogger()})
	t.Cleanup(func() { _ = cm.Close(context.Background()) })

	deps := Deps{Store: cm, Logger: quietLogger()}
	m := NewDefaultManager(deps)
	_, err := m.ProcessDocument(context.Background(), pdfInput("a.pdf", "stored through the manager"))
	require.NoError(t, err)

	assert.Equal(t, 1, dialer.Store.Len(database.CollectionAgentResults))
	assert.Equal(t, int64(1), cm.DialAttempts())

	stats, err := m.Statistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Total)
	assert.Equal(t, int64(1), stats.PDFAgents)
	assert.Equal(t, int64(1), stats.AgentCounts[NamePDF])
	assert.False(t, stats.Fallback)
}

func TestSearchAgent(t *testing.T) {
	store := database.NewMemoryStore("test_db")
	deps := testDeps(store)
	m := NewDefaultManager(deps)
	ctx := context.Background()

	_, err := m.ProcessDocument(ctx, pdfInput("q3-report.pdf", "Quarterly report for the northern region"))
	require.NoError(t, err)
	_, err = m.ProcessDocument(ctx, pdfInput("recipes.pdf", "Lemon cake and fresh bread"))
	require.NoError(t, err)

	result, err := m.Search(ctx, "quarterly", Options{})
	require.NoError(t, err)
	assert.Equal(t, NameSearch, result.Agent)
	out := result.Output.(models.SearchOutput)
	assert.Equal(t, ModeText, out.Mode)
	require.Len(t, out.Results, 1)
	assert.Equal(t, "q3-report", out.Results[0].Title)
	assert.Equal(t, models.DocumentPDF, out.Results[0].Type)
	assert.NotEmpty(t, out.Results[0].DocumentID)

	// a typo misses the text index and falls back to fuzzy matching
	result, err = m.Search(ctx, "quartrly", Options{Semantic: true})
	require.NoError(t, err)
	out = result.Output.(models.SearchOutput)
	assert.Equal(t, ModeFuzzy+"+vector", out.Mode)
	require.NotEmpty(t, out.Results)
	assert.Equal(t, "q3-report", out.Results[0].Title)

	result, err = m.Search(ctx, "zzzzqqqq", Options{})
	require.NoError(t, err)
	out = result.Output.(models.SearchOutput)
	assert.Empty(t, out.Results)
	assert.Zero(t, out.Total)
	assert.Equal(t, "no matching documents", out.Message)

	// search results are stored like any other invocation
	assert.Equal(t, 5, store.Len(database.CollectionAgentResults))
}

func TestSearchValidationAndFallback(t *testing.T) {
	agent := NewSearchAgent(testDeps(database.NewFallbackStore("test_db")))

	_, err := agent.Process(context.Background(), &Input{Query: "   "})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))

	result, err := agent.Process(context.Background(), &Input{Query: "anything"})
	require.NoError(t, err)
	out := result.Output.(models.SearchOutput)
	assert.Empty(t, out.Results)
	assert.Contains(t, out.Message, "database unavailable")
}

type fakeSource struct {
	calls atomic.Int32
	err   error
}

func (f *fakeSource) Name() string { return "stocks" }

func (f *fakeSource) Fetch(_ context.Context, query string) (map[string]interface{}, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return map[string]interface{}{"symbol": strings.ToUpper(query), "price": "42.50"}, nil
}

func TestFuzzyScore(t *testing.T) {
	assert.Equal(t, 100.0, fuzzyScore("quantum", "An introduction to Quantum computing"))
	assert.GreaterOrEqual(t, fuzzyScore("quantm", "quantum computing"), DefaultFuzzyThreshold)
	assert.Less(t, fuzzyScore("zzzz", "quantum computing"), DefaultFuzzyThreshold)
	assert.Equal(t, fuzzyScore("abc", "xxabcxx"), fuzzyScore("xxabcxx", "abc"))
	assert.Zero(t, fuzzyScore("quantum", ""))
}

func TestLiveDataAgentTiers(t *testing.T) {
	store := database.NewMemoryStore("test_db")
	clock := newClock()
	src := &fakeSource{}
	deps := Deps{
		Store:       staticStore{store},
		Logger:      quietLogger(),
		Clock:       clock.Now,
		Sources:     livedata.NewSources(src),
		Cache:       livedata.NewMemoryCache(time.Hour),
		LiveDataTTL: 10 * time.Minute,
	}
	m := NewDefaultManager(deps)
	ctx := context.Background()

	result, err := m.GetLiveData(ctx, "stocks", "  ABC ")
	require.NoError(t, err)
	out := result.Output.(models.LiveDataOutput)
	assert.False(t, out.Cached)
	assert.Equal(t, "abc", out.Query)
	assert.Equal(t, "ABC", out.Data["symbol"])
	assert.Equal(t, clock.Now().Add(10*time.Minute), out.ExpiresAt)
	assert.Equal(t, 1, store.Len(database.CollectionLiveData))

	result, err = m.GetLiveData(ctx, "stocks", "abc")
	require.NoError(t, err)
	out = result.Output.(models.LiveDataOutput)
	assert.True(t, out.Cached)
	assert.Equal(t, "memory", out.CacheTier)
	assert.Equal(t, int32(1), src.calls.Load())

	// a second agent without a cache is served from the live_data collection
	noCache := deps
	noCache.Cache = nil
	result, err = NewLiveDataAgent(noCache).Process(ctx, &Input{Source: "stocks", Query: "abc"})
	require.NoError(t, err)
	out = result.Output.(models.LiveDataOutput)
	assert.True(t, out.Cached)
	assert.Equal(t, TierDatabase, out.CacheTier)
	assert.Equal(t, "ABC", out.Data["symbol"])
	assert.Equal(t, int32(1), src.calls.Load())

	// expired entries are refetched and the stored record replaced
	clock.Advance(11 * time.Minute)
	result, err = m.GetLiveData(ctx, "stocks", "abc")
	require.NoError(t, err)
	out = result.Output.(models.LiveDataOutput)
	assert.False(t, out.Cached)
	assert.Equal(t, int32(2), src.calls.Load())
	assert.Equal(t, 1, store.Len(database.CollectionLiveData))

	_, err = m.Process(ctx, KindLiveData, &Input{Source: "stocks", Query: "abc", Options: Options{NoCache: true}})
	require.NoError(t, err)
	assert.Equal(t, int32(3), src.calls.Load())
}

func TestLiveDataAgentErrors(t *testing.T) {
	src := &fakeSource{err: errors.New("upstream down")}
	deps := testDeps(nil)
	deps.Sources = livedata.NewSources(src)
	agent := NewLiveDataAgent(deps)

	_, err := agent.Process(context.Background(), &Input{Source: "weather", Query: "Paris"})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Reason, "stocks")

	_, err = agent.Process(context.Background(), &Input{})
	require.ErrorAs(t, err, &ve)

	_, err = agent.Process(context.Background(), &Input{Source: "stocks", Query: "abc"})
	var pe *ProcessingError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "fetch", pe.Stage)
}

func TestDispatch(t *testing.T) {
	m := NewDefaultManager(testDeps(database.NewMemoryStore("test_db")))
	ctx := context.Background()

	result, err := m.Dispatch(ctx, Request{Type: "search", Payload: Input{Query: "anything"}})
	require.NoError(t, err)
	assert.Equal(t, NameSearch, result.Agent)

	result, err = m.Dispatch(ctx, Request{Type: "auto", Payload: *pdfInput("a.pdf", "hi")})
	require.NoError(t, err)
	assert.Equal(t, NamePDF, result.Agent)

	result, err = m.Dispatch(ctx, Request{Type: "", Payload: Input{Query: "q"}})
	require.NoError(t, err)
	assert.Equal(t, NameSearch, result.Agent)

	_, err = m.Dispatch(ctx, Request{Type: "translate"})
	var ue *UnknownAgentError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, http.StatusNotFound, HTTPStatus(err))

	_, err = m.Dispatch(ctx, Request{Type: "auto", Payload: Input{Text: "hmm"}})
	assert.Equal(t, ErrorKindAmbiguousInput, Classify(err))
}

func TestManagerRegistry(t *testing.T) {
	m := NewManager(nil)
	_, err := m.Process(context.Background(), KindPDF, pdfInput("a.pdf", "x"))
	var ue *UnknownAgentError
	require.ErrorAs(t, err, &ue)

	pdf := NewPDFAgent(testDeps(nil))
	m.Register(KindPDF, pdf)
	m.Register(KindPDF, pdf)
	m.Register(KindSearch, NewSearchAgent(testDeps(nil)))
	assert.NotPanics(t, func() { m.Register(KindPDF, nil) })
	got, ok := m.Agent(KindPDF)
	require.True(t, ok)
	assert.Same(t, pdf, got)
	assert.NotPanics(t, func() { m.Register(KindImage, nil) })
	_, ok = m.Agent(KindImage)
	assert.False(t, ok)

	agents := m.Agents()
	require.Len(t, agents, 2)
	assert.Equal(t, KindPDF, agents[0].Type)
	assert.Equal(t, NamePDF, agents[0].Name)
	assert.Equal(t, pdf.ID(), agents[0].ID)
	assert.Equal(t, KindSearch, agents[1].Type)

	_, err = m.Statistics(context.Background())
	assert.ErrorIs(t, err, ErrNoStore)
}

func TestAgentIDsAreStable(t *testing.T) {
	assert.Equal(t, NewPDFAgent(testDeps(nil)).ID(), NewPDFAgent(Deps{}).ID())
	assert.NotEqual(t, NewPDFAgent(Deps{}).ID(), NewImageAgent(Deps{}).ID())
}

func TestInputSummary(t *testing.T) {
	in := &Input{
		Kind:  KindImage,
		File:  &File{Name: "a.png", Type: "image/png", Data: make([]byte, 1234)},
		Text:  strings.Repeat("word ", 100),
		Query: "q",
	}
	s := in.Summary()
	assert.Equal(t, "image", s["kind"])
	assert.Equal(t, "<1234 bytes>", s["file"].(map[string]interface{})["data"])
	assert.Equal(t, 500, s["text_length"])
	assert.True(t, strings.HasSuffix(s["text"].(string), "..."))
	assert.Equal(t, "q", s["query"])
	assert.Empty(t, (*Input)(nil).Summary())
}

func TestWithStage(t *testing.T) {
	stages := []Stage{{Name: "a", Fn: postprocessStage}, {Name: "b", Fn: analyzeStage}}
	replaced, err := WithStage(stages, "b", postprocessStage)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, StageNames(replaced))

	_, err = WithStage(stages, "c", postprocessStage)
	assert.Error(t, err)

	assert.Error(t, NewSearchAgent(Deps{}).Override("recognize", postprocessStage))
}

func TestPostprocessIsIdempotent(t *testing.T) {
	p := Payload{Text: "  Line one \t with  tabs\r\n\r\n\r\n\r\nLine two\x00  "}
	once, err := postprocessStage(context.Background(), p)
	require.NoError(t, err)
	twice, err := postprocessStage(context.Background(), once)
	require.NoError(t, err)
	assert.Equal(t, once.Text, twice.Text)
	assert.Equal(t, "Line one with tabs\n\nLine two", once.Text)
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{"": KindAuto, "AUTO": KindAuto, " pdf ": KindPDF, "live_data": KindLiveData} {
		got, err := ParseKind(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseKind("video")
	assert.Error(t, err)
}
