package search

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultClassifierCacheSize bounds the classification LRU. Queries repeat
// heavily: suggestion-as-you-type re-runs the same prefixes.
const DefaultClassifierCacheSize = 10000

// Lexical query shapes. A query matching any of these wants exact keyword
// retrieval: the user pasted an identifier, not a description.
var (
	// Hex literals: 0x80070005, 0xDEADBEEF.
	hexLiteralPattern = regexp.MustCompile(`\b0[xX][0-9a-fA-F]+\b`)

	// Long digit runs: error numbers, order ids, timestamps.
	digitRunPattern = regexp.MustCompile(`\d{4,}`)

	// All-caps identifiers of three or more characters: HTTP_500, ERR_IO,
	// NASDAQ. Underscores and digits allowed after the first letter.
	allCapsPattern = regexp.MustCompile(`\b[A-Z][A-Z0-9_]{2,}\b`)

	// A filename with extension: report.pdf, photo-2024.jpg, main.go.
	filenamePattern = regexp.MustCompile(`^[\w\-. ()\[\]]+\.[A-Za-z0-9]{1,6}$`)

	// A fully quoted phrase.
	quotedPattern = regexp.MustCompile(`^["'].+["']$`)

	// Forward- or backslash-separated paths with at least one separator.
	pathPattern = regexp.MustCompile(`^(?:[A-Za-z]:)?[\w\-. ]*[/\\][\w\-. /\\]+$`)
)

// Interrogative and descriptive openers that mark a natural-language
// query even when it is short.
var englishOpenerPattern = regexp.MustCompile(`(?i)^(how|what|where|why|when|which|who|can|could|does|do|is|are|should|explain|describe|show|find|list|give)\b`)

// chineseOpeners are checked as prefixes; regexp word boundaries don't
// apply to CJK text.
var chineseOpeners = []string{
	"如何", "怎么", "怎样", "什么", "为什么", "哪里", "哪个", "哪些",
	"帮我", "查找", "找到", "找一下", "搜索", "显示", "列出", "关于",
}

// cachedClassification is the LRU value: type and derived weights together,
// so a hit skips both the regex battery and the weight lookup.
type cachedClassification struct {
	queryType QueryType
	weights   Weights
}

// RuleClassifier classifies queries with regular-expression and token
// heuristics, memoized in an LRU cache. It never fails: unparseable input
// degrades to the mixed classification.
type RuleClassifier struct {
	cache *lru.Cache[string, cachedClassification]
}

// NewRuleClassifier returns a classifier with the default cache size.
func NewRuleClassifier() *RuleClassifier {
	return NewRuleClassifierWithCacheSize(DefaultClassifierCacheSize)
}

// NewRuleClassifierWithCacheSize returns a classifier whose memoization
// cache holds at most size entries.
func NewRuleClassifierWithCacheSize(size int) *RuleClassifier {
	if size <= 0 {
		size = DefaultClassifierCacheSize
	}
	cache, _ := lru.New[string, cachedClassification](size)
	return &RuleClassifier{cache: cache}
}

// Classify determines the query type and fusion weights.
// Every query yields exactly one of lexical, semantic, or mixed.
func (c *RuleClassifier) Classify(_ context.Context, query string) (QueryType, Weights, error) {
	key := normalizeQuery(query)
	if key == "" {
		return QueryTypeMixed, WeightsForQueryType(QueryTypeMixed), nil
	}

	if cached, ok := c.cache.Get(key); ok {
		return cached.queryType, cached.weights, nil
	}

	qt := classifyQuery(strings.TrimSpace(query))
	w := WeightsForQueryType(qt)
	c.cache.Add(key, cachedClassification{qt, w})
	return qt, w, nil
}

// classifyQuery applies the rules in specificity order: lexical shapes
// first, then natural-language signals, then the token-count heuristic.
func classifyQuery(query string) QueryType {
	if isLexicalQuery(query) {
		return QueryTypeLexical
	}
	if isNaturalLanguageQuery(query) {
		return QueryTypeSemantic
	}
	return QueryTypeMixed
}

func isLexicalQuery(query string) bool {
	if quotedPattern.MatchString(query) {
		return true
	}
	if filenamePattern.MatchString(query) || pathPattern.MatchString(query) {
		return true
	}
	// The identifier-shaped patterns only decide single-token queries; a
	// sentence that merely mentions 0x80070005 still reads as mixed or
	// natural language below.
	if !strings.ContainsAny(query, " \t") {
		if hexLiteralPattern.MatchString(query) ||
			digitRunPattern.MatchString(query) ||
			allCapsPattern.MatchString(query) {
			return true
		}
	}
	return false
}

func isNaturalLanguageQuery(query string) bool {
	if englishOpenerPattern.MatchString(query) {
		return true
	}
	for _, opener := range chineseOpeners {
		if strings.HasPrefix(query, opener) {
			return true
		}
	}
	// Three or more tokens reads as a description rather than a lookup key.
	// CJK text carries no spaces, so count runs of Han characters as tokens
	// of roughly two characters each.
	if countTokens(query) >= 3 {
		return true
	}
	return false
}

// countTokens counts whitespace-delimited words plus an estimate for
// unsegmented CJK runs.
func countTokens(query string) int {
	n := len(strings.Fields(query))
	han := 0
	for _, r := range query {
		if unicode.Is(unicode.Han, r) {
			han++
		}
	}
	if han > 0 {
		// A Han-only "word" averages about two characters. The run itself
		// already counted as one field; add the remainder.
		extra := han/2 - 1
		if extra > 0 {
			n += extra
		}
	}
	return n
}

// normalizeQuery canonicalizes a query for cache keying.
func normalizeQuery(query string) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " "))
}

var _ Classifier = (*RuleClassifier)(nil)
