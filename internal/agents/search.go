package agents

import (
	"context"
	"sort"
	"strings"
	"unicode/utf8"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
	"go.mongodb.org/mongo-driver/bson"

	"blackhole/internal/database"
	"blackhole/internal/models"
	"blackhole/internal/textproc"
)

const (
	// DefaultFuzzyThreshold is the minimum partial-ratio score for a fuzzy match
	DefaultFuzzyThreshold = 60.0

	defaultSearchLimit = 10
	maxSearchLimit     = 100
	textCandidates     = 100
	scanCandidates     = 500
	fuzzyContentChars  = 2000
	snippetChars       = 200

	ModeText   = "text"
	ModeFuzzy  = "fuzzy"
	modeVector = "+vector"
)

// SearchAgent searches the document archive. Candidates come from a $text
// query, or from a scan of recent documents when that finds nothing; they
// are re-ranked by fuzzy similarity and optionally by embedding similarity.
type SearchAgent struct {
	*Base
}

// NewSearchAgent creates the archive search agent
func NewSearchAgent(deps Deps) *SearchAgent {
	deps = deps.withDefaults()
	s := &searchStages{deps: deps}
	return &SearchAgent{NewBase(Definition{
		Name:     NameSearch,
		Validate: validateQuery,
		Stages: []Stage{
			{Name: "query", Fn: queryStage},
			{Name: "retrieve", Fn: s.retrieve},
			{Name: "rank", Fn: s.rank},
		},
		Output: func(p Payload) models.Output { return *p.Search },
	}, deps)}
}

func validateQuery(in *Input) error {
	if strings.TrimSpace(in.Query) == "" {
		return &ValidationError{Agent: NameSearch, Reason: "query is required"}
	}
	return nil
}

func queryStage(_ context.Context, p Payload) (Payload, error) {
	p.Search = &models.SearchOutput{
		Query:   strings.Join(strings.Fields(p.Input.Query), " "),
		Mode:    ModeText,
		Results: []models.SearchHit{},
	}
	return p, nil
}

type searchStages struct {
	deps Deps
}

func (s *searchStages) retrieve(ctx context.Context, p Payload) (Payload, error) {
	out := *p.Search
	p.Search = &out

	if s.deps.Store == nil {
		out.Message = "document archive is not configured"
		return p, nil
	}
	store := s.deps.Store.Connect(ctx)
	if store.IsFallback() {
		out.Message = "database unavailable, no archived documents searched"
		return p, nil
	}
	coll := store.Collection(database.CollectionDocuments)

	filter := bson.M{"$text": bson.M{"$search": out.Query}}
	if t := p.Input.Options.DocumentType; t != "" {
		filter["type"] = t
	}
	var docs []models.Document
	err := coll.Find(ctx, filter, &docs, database.FindOptions{Limit: textCandidates})
	if err != nil {
		s.deps.Logger.WithError(err).Debug("text search failed, scanning recent documents")
	}

	if err != nil || len(docs) == 0 {
		out.Mode = ModeFuzzy
		scan := bson.M{}
		if t := p.Input.Options.DocumentType; t != "" {
			scan["type"] = t
		}
		docs = nil
		opts := database.FindOptions{Limit: scanCandidates, Sort: bson.D{{Key: "updated_at", Value: -1}}}
		if err := coll.Find(ctx, scan, &docs, opts); err != nil {
			s.deps.Logger.WithError(err).Warn("document scan failed")
			out.Message = "document archive could not be read"
			return p, nil
		}
	}
	p.Candidates = docs
	return p, nil
}

type scoredDoc struct {
	doc   models.Document
	score float64
}

// fuzzyScore is the case-insensitive partial ratio of query against text, 0-100
func fuzzyScore(query, text string) float64 {
	if query == "" || text == "" {
		return 0
	}
	return float64(fuzzy.PartialRatio(strings.ToLower(query), strings.ToLower(text)))
}

func (s *searchStages) rank(_ context.Context, p Payload) (Payload, error) {
	out := *p.Search
	p.Search = &out

	opts := p.Input.Options
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = DefaultFuzzyThreshold
	}
	var queryVec []float64
	if opts.Semantic {
		queryVec = textproc.Embed(out.Query, s.deps.EmbeddingDims)
		out.Mode += modeVector
	}

	var scored []scoredDoc
	for _, doc := range p.Candidates {
		match := max(
			fuzzyScore(out.Query, doc.Title),
			fuzzyScore(out.Query, textproc.Preview(doc.Content, fuzzyContentChars)),
		)
		if strings.HasPrefix(out.Mode, ModeFuzzy) && match < threshold {
			continue
		}
		score := match
		if queryVec != nil && len(doc.VectorEmbedding) > 0 {
			score = 0.6*match + 40*max(textproc.Cosine(queryVec, doc.VectorEmbedding), 0)
		}
		scored = append(scored, scoredDoc{doc: doc, score: score})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	limit = min(limit, maxSearchLimit)

	out.Total = len(scored)
	out.Results = make([]models.SearchHit, 0, min(limit, len(scored)))
	for _, sd := range scored {
		if len(out.Results) == limit {
			break
		}
		out.Results = append(out.Results, models.SearchHit{
			DocumentID: sd.doc.ID.Hex(),
			Title:      sd.doc.Title,
			Type:       sd.doc.Type,
			Score:      sd.score,
			Snippet:    snippet(sd.doc.Content, out.Query),
		})
	}
	if out.Total == 0 && out.Message == "" {
		out.Message = "no matching documents"
	}
	p.Candidates = nil
	return p, nil
}

// snippet returns text around the first occurrence of any query term
func snippet(content, query string) string {
	lower := strings.ToLower(content)
	at := -1
	for _, term := range strings.Fields(strings.ToLower(query)) {
		if i := strings.Index(lower, term); i >= 0 && (at < 0 || i < at) {
			at = i
		}
	}
	if at <= snippetChars/4 {
		return textproc.Preview(content, snippetChars)
	}
	start := min(at-snippetChars/4, len(content)-1)
	for start > 0 && (!utf8.RuneStart(content[start]) || (content[start-1] != ' ' && content[start-1] != '\n')) {
		start--
	}
	return "..." + textproc.Preview(content[start:], snippetChars)
}
