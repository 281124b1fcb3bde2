package service

import (
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/monigenomi/openpgx/internal/domain"
)

// Matcher evaluates one source's rule list for a drug against a patient's
// factor map and selects the single best applicable recommendation.
type Matcher struct {
	log *logrus.Logger
}

// NewMatcher creates a matcher.
func NewMatcher(logger *logrus.Logger) *Matcher {
	return &Matcher{log: logger}
}

// Match returns the most specific recommendation whose factor requirements
// the patient satisfies. When no rule matches but the source has rules for
// the drug and the patient is missing genotypes for some referenced genes,
// a synthesized "more genotyping needed" recommendation is returned
// instead. Match returns nil when there is nothing to report: no rules at
// all, or no match with every referenced gene already typed.
func (m *Matcher) Match(source domain.Source, rules []*domain.Recommendation, factors domain.FactorMap) *domain.Recommendation {
	if len(rules) == 0 {
		return nil
	}

	var matched []*domain.Recommendation
	for _, rule := range rules {
		if m.matchesFactors(source, rule, factors) {
			matched = append(matched, rule)
		}
	}
	if len(matched) > 0 {
		return bestMatch(matched)
	}
	return m.fallback(rules, factors)
}

// matchesFactors reports whether the patient satisfies every factor
// requirement of the rule. An empty patient factor map matches nothing,
// including unconditional rules: absence of genotype information must never
// trigger a drug's default recommendation.
func (m *Matcher) matchesFactors(source domain.Source, rule *domain.Recommendation, factors domain.FactorMap) bool {
	if len(factors) == 0 {
		return false
	}
	for gene, required := range rule.Factors {
		patient, ok := factors[gene]
		if !ok {
			return false
		}
		label := patient.Factor
		if source == domain.SourceCPIC {
			label = patient.CPICFactor
		}
		if !required.Matches(label, patient.ActivityScore) {
			return false
		}
	}
	return true
}

// bestMatch selects the rule requiring the most genes. Equally specific
// rules tie-break on rule-list order: the first discovered wins.
func bestMatch(matched []*domain.Recommendation) *domain.Recommendation {
	best := matched[0]
	for _, rule := range matched[1:] {
		if len(rule.Factors) > len(best.Factors) {
			best = rule
		}
	}
	return best
}

// fallback synthesizes the "more genotyping needed" recommendation naming
// the genes the drug's rules reference that the patient has no factors for.
// It points at the first rule's guideline and carries no strength.
func (m *Matcher) fallback(rules []*domain.Recommendation, factors domain.FactorMap) *domain.Recommendation {
	referenced := map[string]struct{}{}
	for _, rule := range rules {
		for gene := range rule.Factors {
			referenced[gene] = struct{}{}
		}
	}
	var missing []string
	for gene := range referenced {
		if _, ok := factors[gene]; !ok {
			missing = append(missing, gene)
		}
	}
	if len(missing) == 0 {
		// Every referenced gene is typed but nothing matched; stay
		// silent for this source.
		return nil
	}
	sort.Strings(missing)

	return &domain.Recommendation{
		Factors:        map[string]domain.Factor{},
		Recommendation: "Recommendations are available, but they require genotypes of following genes: " + wordsToSentence(missing),
		Guideline:      rules[0].Guideline,
	}
}

// wordsToSentence joins gene names the way the fallback message phrases
// them: "A", "A and B", "A, B and C".
func wordsToSentence(words []string) string {
	if len(words) == 1 {
		return words[0]
	}
	return strings.Join(words[:len(words)-1], ", ") + " and " + words[len(words)-1]
}
