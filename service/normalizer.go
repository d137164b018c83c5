package service

import (
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ruchikakengal/AI-Powered-Regulatory-Compilance-Checker/model"
)

// Normalizer converts raw document text into the ordered clause list every
// later stage works from. Segmentation is deterministic: the same input
// always yields the same clauses in the same order.
type Normalizer struct {
	minWords   int
	maxSegment int
}

func NewNormalizer() *Normalizer {
	return &Normalizer{
		minWords:   5,
		maxSegment: 2000,
	}
}

// separators are tried in order; oversized segments fall through to the next
var separators = []string{"\n\n", "\n", ". ", "; "}

// junkPrefixes mark boilerplate segments that carry no clause content
var junkPrefixes = []string{
	"table of contents",
	"exhibit",
	"signature",
	"page ",
	"schedule",
	"index",
}

// Normalize parses an uploaded document into clauses. Plain text and markdown
// are handled inline; anything else must go through extraction first.
func (n *Normalizer) Normalize(filename string, data []byte) ([]model.Clause, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt", ".md", ".markdown":
		return n.NormalizeText(string(data))
	default:
		return nil, &model.ParseError{Format: strings.TrimPrefix(ext, "."), Reason: "unsupported format"}
	}
}

// NormalizeText segments document text into typed clauses
func (n *Normalizer) NormalizeText(text string) ([]model.Clause, error) {
	if !utf8.ValidString(text) {
		return nil, &model.ParseError{Format: "text", Reason: "content is not valid UTF-8"}
	}
	if strings.TrimSpace(text) == "" {
		return nil, &model.ParseError{Format: "text", Reason: "document is empty"}
	}

	segments := n.split(text, 0)

	var clauses []model.Clause
	var pendingHeading string
	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" || isJunk(seg) {
			continue
		}

		heading, body := splitHeading(seg)
		if heading != "" && body == "" {
			// A bare heading labels the next substantive segment
			pendingHeading = heading
			continue
		}
		if heading == "" {
			heading = pendingHeading
		}
		pendingHeading = ""

		words := len(strings.Fields(body))
		if words < n.minWords {
			continue
		}

		clauses = append(clauses, model.Clause{
			Index:     len(clauses),
			Type:      classifyClause(heading, body),
			Heading:   heading,
			Text:      body,
			WordCount: words,
		})
	}

	if len(clauses) == 0 {
		return nil, &model.ParseError{Format: "text", Reason: "no clauses could be extracted"}
	}
	return clauses, nil
}

// split cuts text on the separator at the given depth, re-splitting any
// segment that is still longer than maxSegment with the next separator
func (n *Normalizer) split(text string, depth int) []string {
	if depth >= len(separators) {
		return []string{text}
	}
	var out []string
	for _, part := range strings.Split(text, separators[depth]) {
		if len(part) > n.maxSegment {
			out = append(out, n.split(part, depth+1)...)
			continue
		}
		out = append(out, part)
	}
	return out
}

func isJunk(seg string) bool {
	lower := strings.ToLower(seg)
	for _, p := range junkPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

// splitHeading separates a leading heading line from the clause body.
// Markdown headings, numbered section titles and short all-caps lines count.
func splitHeading(seg string) (heading, body string) {
	lines := strings.SplitN(seg, "\n", 2)
	first := strings.TrimSpace(lines[0])
	rest := ""
	if len(lines) > 1 {
		rest = strings.TrimSpace(lines[1])
	}

	if strings.HasPrefix(first, "#") {
		return strings.TrimSpace(strings.TrimLeft(first, "# ")), rest
	}
	if looksLikeHeading(first) {
		return first, rest
	}
	return "", seg
}

func looksLikeHeading(line string) bool {
	if line == "" || len(strings.Fields(line)) > 12 {
		return false
	}
	if strings.HasSuffix(line, ".") && !isNumberedTitle(line) {
		return false
	}
	if isNumberedTitle(line) {
		return true
	}

	letters := 0
	upper := 0
	for _, r := range line {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	return letters > 0 && upper == letters
}

func isNumberedTitle(line string) bool {
	lower := strings.ToLower(line)
	if strings.HasPrefix(lower, "section ") || strings.HasPrefix(lower, "article ") || strings.HasPrefix(lower, "clause ") {
		return true
	}
	if r, _ := utf8.DecodeRuneInString(line); unicode.IsDigit(r) {
		// "7." or "7.2 Data Retention"
		rest := strings.TrimLeft(line, "0123456789.")
		return rest == "" || strings.HasPrefix(rest, " ")
	}
	return false
}

// clauseKeywords maps clause types to the phrases that identify them.
// Checked in order, so specific categories win over broad ones.
var clauseKeywords = []struct {
	clauseType string
	phrases    []string
}{
	{model.ClauseDataRetention, []string{"data retention", "retention period", "retain personal data", "storage period", "retained for"}},
	{model.ClauseBreachNotification, []string{"breach notification", "security breach", "data breach", "security incident"}},
	{model.ClauseDataProtection, []string{"personal data", "data protection", "data subject", "gdpr", "privacy", "data processing"}},
	{model.ClauseForceMajeure, []string{"force majeure", "act of god", "beyond the reasonable control"}},
	{model.ClauseIP, []string{"intellectual property", "copyright", "trademark", "patent"}},
	{model.ClauseDispute, []string{"dispute resolution", "arbitration", "mediation", "dispute"}},
	{model.ClauseGoverningLaw, []string{"governing law", "governed by the laws", "governed by and construed"}},
	{model.ClauseIndemnification, []string{"indemnif", "hold harmless"}},
	{model.ClauseConfidentiality, []string{"confidential", "non-disclosure", "proprietary information"}},
	{model.ClauseLiability, []string{"limitation of liability", "liability", "liable for"}},
	{model.ClauseTermination, []string{"termination", "terminate this agreement", "expiration of this agreement"}},
	{model.ClauseWarranty, []string{"warrant", "as is", "merchantability"}},
	{model.ClausePayment, []string{"payment", "invoice", "fees", "compensation"}},
}

func classifyClause(heading, body string) string {
	// The heading is the stronger signal when present
	lowerHeading := strings.ToLower(heading)
	if lowerHeading != "" {
		for _, entry := range clauseKeywords {
			for _, p := range entry.phrases {
				if strings.Contains(lowerHeading, p) {
					return entry.clauseType
				}
			}
		}
	}

	lowerBody := strings.ToLower(body)
	for _, entry := range clauseKeywords {
		for _, p := range entry.phrases {
			if strings.Contains(lowerBody, p) {
				return entry.clauseType
			}
		}
	}
	return model.ClauseGeneral
}
