// Package domain contains the core entities for pharmacogenomic
// recommendation matching: guideline sources, recommendation rules, factor
// encodings and the patient factor map derived from star-allele genotypes.
//
// Terminology follows CPIC (Clinical Pharmacogenetics Implementation
// Consortium) usage: a diplotype "A/B" resolves to a metabolizer phenotype
// and, for activity-score genes such as CYP2D6 or DPYD, a numeric activity
// score at quarter-point granularity.
package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Source identifies one of the supported guideline databases.
type Source string

const (
	// SourceCPIC is the consortium guideline database and the primary
	// source for phenotyping: it is the only source carrying activity
	// scores alongside phenotype labels.
	SourceCPIC Source = "cpic"
	// SourceDPWG is the Dutch pharmacogenetics working group database.
	SourceDPWG Source = "dpwg"
	// SourceFDA is the regulatory-agency drug labeling database.
	SourceFDA Source = "fda"
)

// Sources lists the known guideline databases in evaluation order.
// CPIC comes first because its encodings drive phenotyping.
var Sources = []Source{SourceCPIC, SourceDPWG, SourceFDA}

// IsValid reports whether the source is one of the known databases.
func (s Source) IsValid() bool {
	switch s {
	case SourceCPIC, SourceDPWG, SourceFDA:
		return true
	default:
		return false
	}
}

// String returns the string representation of the source.
func (s Source) String() string {
	return string(s)
}

// Strength represents the strength class of a recommendation.
type Strength string

const (
	StrengthStrong   Strength = "strong"
	StrengthModerate Strength = "moderate"
	StrengthOptional Strength = "optional"
)

// IsValid reports whether the strength is a known class.
func (s Strength) IsValid() bool {
	switch s {
	case StrengthStrong, StrengthModerate, StrengthOptional:
		return true
	default:
		return false
	}
}

// FactorKind discriminates the shapes a factor can take.
type FactorKind int

const (
	// FactorUnknown marks an intentionally absent factor: "no result",
	// "n/a", indeterminate. A rule requiring an unknown factor matches
	// only a patient whose value for that gene is also unknown.
	FactorUnknown FactorKind = iota
	// FactorCategorical is a phenotype or presence label, e.g.
	// "poor metabolizer", "normal function", "positive".
	FactorCategorical
	// FactorActivityScore is a numeric comparison against the patient's
	// gene activity score, e.g. "== 2.00" or ">= 4.00".
	FactorActivityScore
)

// ScoreOp is the comparison operator of an activity-score factor.
type ScoreOp string

const (
	// OpEqual requires an exact activity score.
	OpEqual ScoreOp = "=="
	// OpAtLeast is a lower bound, produced by "at least N copies"
	// allele notation such as "*1x3".
	OpAtLeast ScoreOp = ">="
)

// Factor is the canonical comparable encoding of a gene's patient state.
// It is an explicit tagged variant: exactly one of the three kinds applies,
// so comparison sites never sniff string prefixes.
type Factor struct {
	Kind  FactorKind
	Label string  // FactorCategorical only
	Op    ScoreOp // FactorActivityScore only
	Value float64 // FactorActivityScore only
}

// Categorical returns a categorical factor with the given label.
func Categorical(label string) Factor {
	return Factor{Kind: FactorCategorical, Label: label}
}

// ActivityScore returns an activity-score comparison factor.
func ActivityScore(op ScoreOp, value float64) Factor {
	return Factor{Kind: FactorActivityScore, Op: op, Value: value}
}

// Unknown returns the absent factor.
func Unknown() Factor {
	return Factor{Kind: FactorUnknown}
}

// ParseFactor converts the snapshot's string encoding of a factor into the
// tagged representation. The two-character operator prefix ("== " / ">= ")
// marks an activity-score expression; everything else is categorical.
func ParseFactor(raw string) (Factor, error) {
	for _, op := range []ScoreOp{OpEqual, OpAtLeast} {
		if !strings.HasPrefix(raw, string(op)+" ") {
			continue
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(raw[2:]), 64)
		if err != nil {
			return Factor{}, fmt.Errorf("parsing activity score %q: %w", raw, err)
		}
		return ActivityScore(op, value), nil
	}
	return Categorical(raw), nil
}

// String renders the factor in the snapshot's string encoding. Unknown
// factors render as an empty string; JSON marshaling emits null for them.
func (f Factor) String() string {
	switch f.Kind {
	case FactorCategorical:
		return f.Label
	case FactorActivityScore:
		return fmt.Sprintf("%s %.2f", f.Op, f.Value)
	default:
		return ""
	}
}

// IsUnknown reports whether the factor is intentionally absent.
func (f Factor) IsUnknown() bool {
	return f.Kind == FactorUnknown
}

// Matches reports whether a patient's values satisfy this required factor.
// label is the patient's categorical label for the comparison source (the
// raw CPIC label for CPIC rules, the cross-source normalized label for the
// others); score is the patient's activity score. Either may be nil when
// phenotyping could not resolve it.
func (f Factor) Matches(label *string, score *float64) bool {
	switch f.Kind {
	case FactorUnknown:
		return label == nil
	case FactorActivityScore:
		if score == nil {
			return false
		}
		if f.Op == OpAtLeast {
			return *score >= f.Value
		}
		return *score == f.Value
	default:
		return label != nil && *label == f.Label
	}
}

// MarshalJSON encodes the factor as its snapshot string form, or null for
// an unknown factor.
func (f Factor) MarshalJSON() ([]byte, error) {
	if f.Kind == FactorUnknown {
		return []byte("null"), nil
	}
	return json.Marshal(f.String())
}

// UnmarshalJSON decodes null or a snapshot factor string.
func (f *Factor) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = Unknown()
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("factor must be a string or null: %w", err)
	}
	parsed, err := ParseFactor(raw)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Validation errors for recommendation data integrity.
var (
	ErrInvalidSource   = errors.New("invalid guideline source")
	ErrInvalidStrength = errors.New("invalid recommendation strength")
)
