// Package service implements the phenotyping-and-matching engine: factor
// normalization, genotype index expansion, phenotyping, recommendation
// matching and the per-drug aggregation that ties them together.
package service

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/monigenomi/openpgx/internal/domain"
)

// factorVocabulary is the static cross-source vocabulary table. It maps
// every categorical label the three guideline databases emit to the single
// canonical lowercase form used for matching. An empty value marks a label
// that is recognized but carries no comparable factor (indeterminate-style
// results). Identity entries keep normalization idempotent for labels that
// are already canonical.
var factorVocabulary = map[string]string{
	// CPIC metabolizer phenotypes
	"Ultrarapid Metabolizer":          "ultrarapid metabolizer",
	"Rapid Metabolizer":               "ultrarapid metabolizer",
	"Likely Intermediate Metabolizer": "intermediate metabolizer",
	"Possible Intermediate Metabolizer": "intermediate metabolizer",
	"Intermediate Metabolizer":        "intermediate metabolizer",
	"Likely Poor Metabolizer":         "poor metabolizer",
	"Poor Metabolizer":                "poor metabolizer",
	"Normal Metabolizer":              "normal metabolizer",

	// DPWG abbreviations
	"PM": "poor metabolizer",
	"UM": "ultrarapid metabolizer",
	"NM": "normal metabolizer",
	"IM": "intermediate metabolizer",

	// G6PD
	"Variable":  "variable",
	"Deficient": "deficient",
	"Normal":    "normal",

	// SLCO1B1 transporter function
	"Increased Function":          "normal function",
	"Possible Increased Function": "intermediate function",
	"Decreased Function":          "intermediate function",
	"Possible Decreased Function": "intermediate function",
	"Possible Poor Function":      "poor function",
	"Poor Function":               "poor function",
	"Normal Function":             "normal function",

	// Presence calls (HLA markers)
	"positive": "positive",
	"negative": "negative",

	// Recognized but not comparable
	"Indeterminate":                       "",
	"Uncertain Susceptibility":            "",
	"Malignant Hyperthermia Susceptibility": "",
	"uncertain risk of aminoglycoside-induced hearing loss":  "",
	"normal risk of aminoglycoside-induced hearing loss":     "",
	"increased risk of aminoglycoside-induced hearing loss":  "",
	"ivacaftor responsive in CF patients":     "",
	"ivacaftor non-responsive in CF patients": "",

	// Allele-level and variant-level factors that pass through unchanged
	"Factor V Leiden heterozygous": "Factor V Leiden heterozygous",
	"Factor V Leiden homozygous":   "Factor V Leiden homozygous",
	"CYP3A5 heterozygote expressor": "CYP3A5 heterozygote expressor",
	"CYP3A5 homozygous expressor":   "CYP3A5 homozygous expressor",
	"rs9923231 variant (T)":   "rs9923231 variant (T)",
	"rs9923231 reference (C)": "rs9923231 reference (C)",
	"521 TC": "521 TC",
	"521 CC": "521 CC",
}

// canonicalLabels is the set of normalized vocabulary outputs; a label in
// this set passes through normalization unchanged.
var canonicalLabels = func() map[string]struct{} {
	set := make(map[string]struct{}, len(factorVocabulary))
	for _, v := range factorVocabulary {
		if v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}()

var (
	// noResultPattern matches the "missing result" spellings the sources
	// use: "No Result", "No CYP2D6 Result", "n/a".
	noResultPattern = regexp.MustCompile(`(?i)^(no (.+ )?result|n/a)$`)

	// scorePattern matches a bare activity score, optionally marked as a
	// lower bound with the "≥" glyph the CPIC tables use.
	scorePattern = regexp.MustCompile(`^(≥)?(\d+(?:\.\d+)?)$`)
)

// LookupVocabulary resolves a raw source label against the cross-source
// vocabulary. known is false when the label was never registered; a known
// label with an empty normalized form is indeterminate.
func LookupVocabulary(label string) (normalized string, known bool) {
	normalized, known = factorVocabulary[label]
	if !known {
		if _, canonical := canonicalLabels[label]; canonical {
			return label, true
		}
	}
	return normalized, known
}

// NormalizeFactor canonicalizes a raw factor string for a gene into one of
// the three comparable factor shapes. For HLA genes the allele designator
// is folded out of the factor text into the gene symbol, so the returned
// symbol may differ from the input. The function is pure and idempotent:
// normalizing an already-normalized factor returns it unchanged.
//
// A categorical label missing from the vocabulary table returns a
// VocabularyError: it means the static table is stale relative to upstream
// data and must surface at normalization time, not be dropped.
func NormalizeFactor(gene, raw string) (string, domain.Factor, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || noResultPattern.MatchString(raw) {
		return gene, domain.Unknown(), nil
	}

	// Already-normalized activity-score expressions pass through.
	if strings.HasPrefix(raw, string(domain.OpEqual)+" ") ||
		strings.HasPrefix(raw, string(domain.OpAtLeast)+" ") {
		factor, err := domain.ParseFactor(raw)
		if err != nil {
			return gene, domain.Factor{}, err
		}
		return gene, factor, nil
	}

	if m := scorePattern.FindStringSubmatch(raw); m != nil {
		value, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			return gene, domain.Factor{}, err
		}
		op := domain.OpEqual
		if m[1] != "" {
			op = domain.OpAtLeast
		}
		return gene, domain.ActivityScore(op, roundQuarter(value)), nil
	}

	if strings.Contains(gene, "HLA-") {
		gene, raw = NormalizeHLAGeneAndFactor(gene, raw)
	}

	normalized, known := LookupVocabulary(raw)
	if !known {
		return gene, domain.Factor{}, &domain.VocabularyError{Gene: gene, Label: raw}
	}
	if normalized == "" {
		return gene, domain.Unknown(), nil
	}
	return gene, domain.Categorical(normalized), nil
}

// NormalizeHLAGeneAndFactor splits the allele designator out of an HLA
// factor text: ("HLA-B", "*57:01 positive") becomes ("HLA-B*57:01",
// "positive"). A gene symbol already carrying an allele designator is kept
// as is.
func NormalizeHLAGeneAndFactor(gene, factor string) (string, string) {
	if !strings.Contains(gene, "HLA-") {
		return gene, factor
	}
	for _, call := range []string{"positive", "negative"} {
		if !strings.Contains(factor, " "+call) {
			continue
		}
		if !strings.Contains(gene, "*") {
			gene = gene + strings.TrimSpace(strings.ReplaceAll(factor, " "+call, ""))
		}
		return gene, call
	}
	return gene, factor
}

// roundQuarter rounds an activity score to the nearest 0.25; metabolizer
// activity scores are defined at quarter-point granularity.
func roundQuarter(value float64) float64 {
	return math.Round(value*4) / 4
}
