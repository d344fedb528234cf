package textproc

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"blackhole/internal/models"
)

const (
	summaryWords   = 50
	maxEntities    = 20
	maxKeywords    = 10
	wordsPerMinute = 200
)

var (
	emailPattern  = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	urlPattern    = regexp.MustCompile(`https?://[^\s<>"')\]]+`)
	datePattern   = regexp.MustCompile(`\b(?:\d{4}-\d{2}-\d{2}|\d{1,2}[/.\-]\d{1,2}[/.\-]\d{2,4}|(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Sept|Oct|Nov|Dec)[a-z]*\.? \d{1,2},? \d{4})\b`)
	numberPattern = regexp.MustCompile(`\b\d+(?:[.,]\d+)*%?`)
	namePattern   = regexp.MustCompile(`\b[A-Z][a-z]+(?: [A-Z][a-z]+){1,2}\b`)
	authorPattern = regexp.MustCompile(`(?im)^[ \t]*(?:authors?|author\(s\)|written by|by)[ \t]*:[ \t]*(.+)$`)
	sentenceEnd   = regexp.MustCompile(`[.!?]+(?:\s|$)`)
	authorSplit   = regexp.MustCompile(`\s*(?:,|;|&|\band\b)\s*`)
)

var positiveWords = toSet("good great excellent positive success successful happy love best improve improved improvement benefit gain growth strong win wonderful effective efficient")
var negativeWords = toSet("bad poor negative fail failed failure sad hate worst decline loss weak problem issue error risk crisis terrible broken")
var stopWords = toSet("the and for that this with from have were been will would could should their there which about into than then them they these those what when where while your also such only other some more most over very just like page")

func toSet(words string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(words) {
		set[w] = struct{}{}
	}
	return set
}

// Analyze derives counts, entities, sentiment, keywords, a summary and
// authors from text. The input is expected to be normalized.
func Analyze(text string) models.TextAnalysis {
	words := tokenize(text)
	analysis := models.TextAnalysis{
		WordCount:     CountWords(text),
		CharCount:     utf8.RuneCountInString(text),
		LineCount:     countLines(text),
		SentenceCount: countSentences(text),
		Entities:      extractEntities(text),
		Sentiment:     sentiment(words),
		Keywords:      keywords(words),
		Summary:       Summarize(text, summaryWords),
		Authors:       Authors(text),
	}
	analysis.ReadingSeconds = int(math.Ceil(float64(analysis.WordCount) * 60 / wordsPerMinute))
	return analysis
}

// Summarize returns the first n whitespace-separated words, with "..." when text was cut
func Summarize(text string, n int) string {
	fields := strings.Fields(text)
	if len(fields) <= n {
		return strings.Join(fields, " ")
	}
	return strings.Join(fields[:n], " ") + "..."
}

// Authors finds names after "Author(s):", "By:" and "Written by:" labels
func Authors(text string) []string {
	var authors []string
	seen := make(map[string]bool)
	for _, m := range authorPattern.FindAllStringSubmatch(text, -1) {
		for _, name := range authorSplit.Split(m[1], -1) {
			name = strings.TrimSpace(strings.TrimRight(name, "."))
			key := strings.ToLower(name)
			if name == "" || seen[key] {
				continue
			}
			seen[key] = true
			authors = append(authors, name)
		}
	}
	return authors
}

func countLines(text string) int {
	if text == "" {
		return 0
	}
	return strings.Count(text, "\n") + 1
}

func countSentences(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	n := 0
	for _, part := range sentenceEnd.Split(text, -1) {
		if strings.TrimSpace(part) != "" {
			n++
		}
	}
	return n
}

func extractEntities(text string) models.Entities {
	dates := unique(datePattern.FindAllString(text, -1))
	inDate := make(map[string]bool)
	for _, d := range dates {
		for _, n := range numberPattern.FindAllString(d, -1) {
			inDate[n] = true
		}
	}
	var numbers []string
	for _, n := range unique(numberPattern.FindAllString(text, -1)) {
		if !inDate[n] {
			numbers = append(numbers, n)
		}
	}
	return models.Entities{
		Emails:  unique(emailPattern.FindAllString(text, -1)),
		URLs:    unique(trimURLs(urlPattern.FindAllString(text, -1))),
		Dates:   dates,
		Numbers: limit(numbers),
		Names:   unique(namePattern.FindAllString(text, -1)),
	}
}

func trimURLs(urls []string) []string {
	for i, u := range urls {
		urls[i] = strings.TrimRight(u, ".,;:!?")
	}
	return urls
}

func unique(items []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, item := range items {
		if seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return limit(out)
}

func limit(items []string) []string {
	if len(items) > maxEntities {
		return items[:maxEntities]
	}
	return items
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func sentiment(words []string) models.Sentiment {
	var pos, neg int
	for _, w := range words {
		if _, ok := positiveWords[w]; ok {
			pos++
		}
		if _, ok := negativeWords[w]; ok {
			neg++
		}
	}
	s := models.Sentiment{Label: "neutral"}
	if pos+neg == 0 {
		return s
	}
	s.Score = math.Round(float64(pos-neg)/float64(pos+neg)*100) / 100
	switch {
	case s.Score > 0.1:
		s.Label = "positive"
	case s.Score < -0.1:
		s.Label = "negative"
	}
	return s
}

func keywords(words []string) []string {
	freq := make(map[string]int)
	for _, w := range words {
		if utf8.RuneCountInString(w) < 4 || isNumeric(w) {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		freq[w]++
	}
	out := make([]string, 0, len(freq))
	for w := range freq {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool {
		if freq[out[i]] != freq[out[j]] {
			return freq[out[i]] > freq[out[j]]
		}
		return out[i] < out[j]
	})
	if len(out) > maxKeywords {
		out = out[:maxKeywords]
	}
	return out
}

func isNumeric(w string) bool {
	for _, r := range w {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
