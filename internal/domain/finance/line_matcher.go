package finance

import (
	"sort"
	"strings"

	"github.com/procure/backend/internal/domain/procurement"
)

// DescriptionMatchThreshold is the minimum designation similarity for two
// lines with different line numbers to be paired
const DescriptionMatchThreshold = 0.8

// SimilarityStrategy scores how alike two line designations are, on [0,1].
// Implementations must be symmetric and deterministic.
type SimilarityStrategy interface {
	Name() string
	Similarity(a, b string) float64
}

// normalizeDesignation lowercases and collapses whitespace so cosmetic
// differences do not defeat the match
func normalizeDesignation(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// CharacterOverlapSimilarity is the default strategy: a multiset character
// overlap coefficient, 2*|common| / (|a|+|b|). Cheap and order-insensitive,
// good enough for catalogue designations that differ by word order or
// abbreviations.
type CharacterOverlapSimilarity struct{}

// NewCharacterOverlapSimilarity creates the default similarity strategy
func NewCharacterOverlapSimilarity() *CharacterOverlapSimilarity {
	return &CharacterOverlapSimilarity{}
}

// Name returns the strategy name
func (s *CharacterOverlapSimilarity) Name() string {
	return "character_overlap"
}

// Similarity computes the multiset character overlap of the two designations
func (s *CharacterOverlapSimilarity) Similarity(a, b string) float64 {
	a = normalizeDesignation(a)
	b = normalizeDesignation(b)
	if a == b {
		return 1.0
	}
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0.0
	}

	counts := make(map[rune]int, len(ra))
	for _, r := range ra {
		counts[r]++
	}
	common := 0
	for _, r := range rb {
		if counts[r] > 0 {
			counts[r]--
			common++
		}
	}
	return 2.0 * float64(common) / float64(len(ra)+len(rb))
}

// LevenshteinSimilarity is an alternative strategy based on edit distance,
// 1 - distance/maxLen. Stricter than character overlap about ordering.
type LevenshteinSimilarity struct{}

// NewLevenshteinSimilarity creates a Levenshtein-based similarity strategy
func NewLevenshteinSimilarity() *LevenshteinSimilarity {
	return &LevenshteinSimilarity{}
}

// Name returns the strategy name
func (s *LevenshteinSimilarity) Name() string {
	return "levenshtein"
}

// Similarity computes 1 - editDistance/maxLen over normalized designations
func (s *LevenshteinSimilarity) Similarity(a, b string) float64 {
	a = normalizeDesignation(a)
	b = normalizeDesignation(b)
	if a == b {
		return 1.0
	}
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0.0
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := 0; j <= len(rb); j++ {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, min(curr[j-1]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}

	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	return 1.0 - float64(prev[len(rb)])/float64(maxLen)
}

// LinePair is a purchase order line paired with its invoice counterpart.
// Similarity is 1 for pairs matched by line number.
type LinePair struct {
	OrderLine   procurement.PurchaseOrderLine
	InvoiceLine InvoiceLine
	Similarity  float64
}

// LineMatchResult is the outcome of pairing order lines with invoice lines
type LineMatchResult struct {
	Pairs                 []LinePair
	UnmatchedOrderLines   []procurement.PurchaseOrderLine
	UnmatchedInvoiceLines []InvoiceLine
}

// LineMatcher pairs purchase order lines with invoice lines. Matching is
// injective: each line appears in at most one pair.
type LineMatcher struct {
	similarity SimilarityStrategy
}

// LineMatcherOption configures a LineMatcher
type LineMatcherOption func(*LineMatcher)

// WithSimilarityStrategy overrides the designation similarity strategy
func WithSimilarityStrategy(s SimilarityStrategy) LineMatcherOption {
	return func(m *LineMatcher) {
		m.similarity = s
	}
}

// NewLineMatcher creates a line matcher with character overlap similarity by
// default
func NewLineMatcher(opts ...LineMatcherOption) *LineMatcher {
	m := &LineMatcher{
		similarity: NewCharacterOverlapSimilarity(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Match pairs the given order and invoice lines. Identity by line number
// takes precedence; leftover lines are then paired by designation similarity
// above DescriptionMatchThreshold, best score first, ties broken by the
// lowest invoice line number. The result is deterministic for a given input.
func (m *LineMatcher) Match(orderLines []procurement.PurchaseOrderLine, invoiceLines []InvoiceLine) LineMatchResult {
	ordered := make([]procurement.PurchaseOrderLine, len(orderLines))
	copy(ordered, orderLines)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].LineNumber < ordered[j].LineNumber })

	invoiced := make([]InvoiceLine, len(invoiceLines))
	copy(invoiced, invoiceLines)
	sort.Slice(invoiced, func(i, j int) bool { return invoiced[i].LineNumber < invoiced[j].LineNumber })

	result := LineMatchResult{}
	claimed := make(map[int]bool, len(invoiced))

	invoiceByNumber := make(map[int]int, len(invoiced))
	for idx, line := range invoiced {
		invoiceByNumber[line.LineNumber] = idx
	}

	// First pass: identical line numbers pair unconditionally
	remaining := make([]procurement.PurchaseOrderLine, 0, len(ordered))
	for _, ol := range ordered {
		if idx, ok := invoiceByNumber[ol.LineNumber]; ok && !claimed[idx] {
			claimed[idx] = true
			result.Pairs = append(result.Pairs, LinePair{
				OrderLine:   ol,
				InvoiceLine: invoiced[idx],
				Similarity:  1.0,
			})
			continue
		}
		remaining = append(remaining, ol)
	}

	// Second pass: pair leftovers by designation similarity
	for _, ol := range remaining {
		bestIdx := -1
		bestScore := 0.0
		for idx, il := range invoiced {
			if claimed[idx] {
				continue
			}
			score := m.similarity.Similarity(ol.Designation, il.Designation)
			if score < DescriptionMatchThreshold {
				continue
			}
			if score > bestScore {
				bestIdx = idx
				bestScore = score
			}
		}
		if bestIdx < 0 {
			result.UnmatchedOrderLines = append(result.UnmatchedOrderLines, ol)
			continue
		}
		claimed[bestIdx] = true
		result.Pairs = append(result.Pairs, LinePair{
			OrderLine:   ol,
			InvoiceLine: invoiced[bestIdx],
			Similarity:  bestScore,
		})
	}

	for idx, il := range invoiced {
		if !claimed[idx] {
			result.UnmatchedInvoiceLines = append(result.UnmatchedInvoiceLines, il)
		}
	}

	return result
}
