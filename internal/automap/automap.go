// Package automap proposes field mappings for freshly extracted PDF form
// fields by scoring them against the data-schema catalog. Scoring is
// deterministic and explainable: the same inputs always produce the same
// proposals, and every proposal names the rule and score behind it, since
// the output is reviewed by a non-technical user before it touches a legal
// document.
package automap

import (
	"strings"

	"github.com/sahilm/fuzzy"
	"go.uber.org/zap"

	"github.com/lotworks/dealdocs/internal/catalog"
	"github.com/lotworks/dealdocs/internal/model"
)

// Match rule names, in descending confidence order.
const (
	RuleManual    = "manual"
	RuleExact     = "exact"
	RuleSubstring = "substring"
	RuleFuzzy     = "fuzzy"
	RuleNone      = "none"
)

// Tier scores. Exact beats substring beats fuzzy; the default threshold
// sits above the fuzzy tier so subsequence matches only apply when a
// deployment opts in by lowering the threshold. A false negative leaves a
// field for the user to map by hand; a false positive puts a wrong value on
// a sales contract.
const (
	scoreExact     = 100
	scoreSubstring = 60
	scoreFuzzy     = 40

	// DefaultMinScore is the minimum-confidence threshold below which a
	// field is left unmapped.
	DefaultMinScore = 50

	// minSubstringLen guards the containment tier against trivially short
	// normalized names matching everything.
	minSubstringLen = 3
)

// Config tunes the mapper.
type Config struct {
	// MinScore is the minimum-confidence threshold. Zero means
	// DefaultMinScore.
	MinScore int
}

// Mapper scores PDF field names against a catalog.
type Mapper struct {
	entries []candidate
	cfg     Config
}

// candidate is one catalog entry with its pre-normalized match set.
type candidate struct {
	entry catalog.Entry
	norms []string
}

// New builds a Mapper over the given catalog. The catalog's declaration
// order is the final tie-break, so the same catalog always reproduces the
// same proposals.
func New(cat *catalog.Catalog, cfg Config) *Mapper {
	if cfg.MinScore <= 0 {
		cfg.MinScore = DefaultMinScore
	}
	m := &Mapper{cfg: cfg}
	for _, e := range cat.All() {
		c := candidate{entry: e, norms: make([]string, 0, 1+len(e.Synonyms))}
		if n := Normalize(e.Label); n != "" {
			c.norms = append(c.norms, n)
		}
		for _, syn := range e.Synonyms {
			if n := Normalize(syn); n != "" {
				c.norms = append(c.norms, n)
			}
		}
		m.entries = append(m.entries, c)
	}
	return m
}

// Normalize lower-cases a field name and strips everything that is not a
// letter or digit, collapsing separators. "Buyer 2 - Name" and "Buyer2Name"
// normalize identically.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Proposal explains one auto-map decision for the review UI.
type Proposal struct {
	PDFFieldName string `json:"pdfFieldName"`
	DataPath     string `json:"dataPath"`
	Label        string `json:"label,omitempty"`
	Rule         string `json:"rule"`
	Score        int    `json:"score"`
}

// Result is the output of one auto-map run: the full replacement mapping
// list (1:1 with the input PDF fields, in order) plus the per-field
// proposals and summary counts.
type Result struct {
	Mappings  []model.FieldMapping `json:"mappings"`
	Proposals []Proposal           `json:"proposals"`
	Mapped    int                  `json:"mapped"`
	Unmapped  int                  `json:"unmapped"`
	Manual    int                  `json:"manual"`
}

// AutoMapAll proposes a mapping for every PDF field that is not already
// manually mapped. Manual mappings (autoMapped false with a user-set path)
// are carried through untouched; blank and previously auto-mapped entries
// are recomputed. The function has no side effects beyond computing the new
// mapping array.
func (m *Mapper) AutoMapAll(pdfFields []model.PdfField, existing []model.FieldMapping) Result {
	prior := make(map[string]model.FieldMapping, len(existing))
	for _, fm := range existing {
		prior[fm.PDFFieldName] = fm
	}

	res := Result{
		Mappings:  make([]model.FieldMapping, 0, len(pdfFields)),
		Proposals: make([]Proposal, 0, len(pdfFields)),
	}

	for _, pf := range pdfFields {
		if fm, ok := prior[pf.Name]; ok && fm.IsManual() {
			res.Mappings = append(res.Mappings, fm)
			res.Proposals = append(res.Proposals, Proposal{
				PDFFieldName: pf.Name,
				DataPath:     fm.DataPath,
				Rule:         RuleManual,
			})
			res.Manual++
			continue
		}

		best := m.bestMatch(pf.Name)
		if best.score >= m.cfg.MinScore {
			res.Mappings = append(res.Mappings, model.FieldMapping{
				PDFFieldName: pf.Name,
				DataPath:     best.entry.Value,
				AutoMapped:   true,
			})
			res.Proposals = append(res.Proposals, Proposal{
				PDFFieldName: pf.Name,
				DataPath:     best.entry.Value,
				Label:        best.entry.Label,
				Rule:         best.rule,
				Score:        best.score,
			})
			res.Mapped++
			continue
		}

		// Below threshold: leave unmapped rather than force-assign.
		res.Mappings = append(res.Mappings, model.FieldMapping{
			PDFFieldName: pf.Name,
		})
		res.Proposals = append(res.Proposals, Proposal{
			PDFFieldName: pf.Name,
			Rule:         RuleNone,
		})
		res.Unmapped++
	}

	zap.L().Debug("automap: run complete",
		zap.Int("fields", len(pdfFields)),
		zap.Int("mapped", res.Mapped),
		zap.Int("unmapped", res.Unmapped),
		zap.Int("manual", res.Manual),
	)

	return res
}

// match is an internal scoring record.
type match struct {
	entry   catalog.Entry
	rule    string
	score   int
	subRank int // within-tier rank (fuzzy score); higher wins
	normLen int // matched normalized label length; shorter wins
}

// beats implements the total order: score, then within-tier rank, then
// shortest matched label, then declaration order (the incumbent wins ties).
func (a match) beats(b match) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	if a.subRank != b.subRank {
		return a.subRank > b.subRank
	}
	return a.normLen < b.normLen
}

func (m *Mapper) bestMatch(fieldName string) match {
	field := Normalize(fieldName)
	best := match{rule: RuleNone}
	if field == "" {
		return best
	}

	for _, c := range m.entries {
		for _, norm := range c.norms {
			cur := scoreOne(field, norm)
			if cur.rule == RuleNone {
				continue
			}
			cur.entry = c.entry
			if cur.beats(best) {
				best = cur
			}
		}
	}
	return best
}

func scoreOne(field, norm string) match {
	if field == norm {
		return match{rule: RuleExact, score: scoreExact, normLen: len(norm)}
	}
	if len(norm) >= minSubstringLen && len(field) >= minSubstringLen &&
		(strings.Contains(field, norm) || strings.Contains(norm, field)) {
		return match{rule: RuleSubstring, score: scoreSubstring, normLen: len(norm)}
	}
	if matches := fuzzy.Find(field, []string{norm}); len(matches) > 0 {
		return match{rule: RuleFuzzy, score: scoreFuzzy, subRank: matches[0].Score, normLen: len(norm)}
	}
	return match{rule: RuleNone}
}
