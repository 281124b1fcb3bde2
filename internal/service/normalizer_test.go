package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monigenomi/openpgx/internal/domain"
)

func TestNormalizeFactor_Categorical(t *testing.T) {
	tests := []struct {
		name     string
		gene     string
		raw      string
		wantGene string
		want     domain.Factor
	}{
		{"cpic phenotype", "CYP2D6", "Poor Metabolizer", "CYP2D6", domain.Categorical("poor metabolizer")},
		{"rapid folds into ultrarapid", "CYP2C19", "Rapid Metabolizer", "CYP2C19", domain.Categorical("ultrarapid metabolizer")},
		{"likely variant folds", "CYP2D6", "Likely Poor Metabolizer", "CYP2D6", domain.Categorical("poor metabolizer")},
		{"dpwg abbreviation", "CYP2D6", "PM", "CYP2D6", domain.Categorical("poor metabolizer")},
		{"transporter function", "SLCO1B1", "Decreased Function", "SLCO1B1", domain.Categorical("intermediate function")},
		{"increased folds into normal", "SLCO1B1", "Increased Function", "SLCO1B1", domain.Categorical("normal function")},
		{"allele label passes through", "F5", "Factor V Leiden heterozygous", "F5", domain.Categorical("Factor V Leiden heterozygous")},
		{"g6pd class", "G6PD", "Deficient", "G6PD", domain.Categorical("deficient")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gene, factor, err := NormalizeFactor(tt.gene, tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.wantGene, gene)
			assert.Equal(t, tt.want, factor)
		})
	}
}

func TestNormalizeFactor_Idempotent(t *testing.T) {
	gene, first, err := NormalizeFactor("CYP2D6", "Intermediate Metabolizer")
	require.NoError(t, err)

	gene2, second, err := NormalizeFactor(gene, first.String())
	require.NoError(t, err)
	assert.Equal(t, gene, gene2)
	assert.Equal(t, first, second)
}

func TestNormalizeFactor_ActivityScores(t *testing.T) {
	_, factor, err := NormalizeFactor("DPYD", "2")
	require.NoError(t, err)
	assert.Equal(t, domain.ActivityScore(domain.OpEqual, 2.0), factor)

	_, factor, err = NormalizeFactor("CYP2D6", "≥6")
	require.NoError(t, err)
	assert.Equal(t, domain.ActivityScore(domain.OpAtLeast, 6.0), factor)

	// Scores snap to quarter-point granularity.
	_, factor, err = NormalizeFactor("DPYD", "1.3")
	require.NoError(t, err)
	assert.Equal(t, domain.ActivityScore(domain.OpEqual, 1.25), factor)

	// Already-normalized expressions pass through unchanged.
	_, factor, err = NormalizeFactor("CYP2D6", ">= 4.00")
	require.NoError(t, err)
	assert.Equal(t, domain.ActivityScore(domain.OpAtLeast, 4.0), factor)
}

func TestNormalizeFactor_NumericLikeLabelStaysCategorical(t *testing.T) {
	// "521 TC" starts with digits but is a genotype label, not a score.
	_, factor, err := NormalizeFactor("SLCO1B1", "521 TC")
	require.NoError(t, err)
	assert.Equal(t, domain.Categorical("521 TC"), factor)
}

func TestNormalizeFactor_NoResult(t *testing.T) {
	for _, raw := range []string{"", "No Result", "no result", "No CYP2D6 Result", "n/a", "N/A"} {
		_, factor, err := NormalizeFactor("CYP2D6", raw)
		require.NoError(t, err, raw)
		assert.True(t, factor.IsUnknown(), raw)
	}
}

func TestNormalizeFactor_Indeterminate(t *testing.T) {
	_, factor, err := NormalizeFactor("CYP2D6", "Indeterminate")
	require.NoError(t, err)
	assert.True(t, factor.IsUnknown())
}

func TestNormalizeFactor_UnknownVocabulary(t *testing.T) {
	_, _, err := NormalizeFactor("CYP2D6", "Hyperspeed Metabolizer")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnknownVocabulary)

	var vocabErr *domain.VocabularyError
	require.True(t, errors.As(err, &vocabErr))
	assert.Equal(t, "CYP2D6", vocabErr.Gene)
	assert.Equal(t, "Hyperspeed Metabolizer", vocabErr.Label)
}

func TestNormalizeFactor_HLAFolding(t *testing.T) {
	gene, factor, err := NormalizeFactor("HLA-B", "*57:01 positive")
	require.NoError(t, err)
	assert.Equal(t, "HLA-B*57:01", gene)
	assert.Equal(t, domain.Categorical("positive"), factor)

	// Gene symbol already carrying the allele keeps it.
	gene, factor, err = NormalizeFactor("HLA-B*58:01", "negative")
	require.NoError(t, err)
	assert.Equal(t, "HLA-B*58:01", gene)
	assert.Equal(t, domain.Categorical("negative"), factor)
}

func TestNormalizeHLAGeneAndFactor(t *testing.T) {
	tests := []struct {
		gene, factor     string
		wantGene, wantFa string
	}{
		{"HLA-B", "*57:01 positive", "HLA-B*57:01", "positive"},
		{"HLA-A", "*31:01 negative", "HLA-A*31:01", "negative"},
		{"HLA-B*57:01", "*57:01 positive", "HLA-B*57:01", "positive"},
		{"HLA-B*44", "positive", "HLA-B*44", "positive"},
		{"CYP2D6", "Poor Metabolizer", "CYP2D6", "Poor Metabolizer"},
	}

	for _, tt := range tests {
		gene, factor := NormalizeHLAGeneAndFactor(tt.gene, tt.factor)
		assert.Equal(t, tt.wantGene, gene)
		assert.Equal(t, tt.wantFa, factor)
	}
}

func TestLookupVocabulary(t *testing.T) {
	normalized, known := LookupVocabulary("Ultrarapid Metabolizer")
	assert.True(t, known)
	assert.Equal(t, "ultrarapid metabolizer", normalized)

	// Canonical outputs resolve to themselves.
	normalized, known = LookupVocabulary("poor metabolizer")
	assert.True(t, known)
	assert.Equal(t, "poor metabolizer", normalized)

	_, known = LookupVocabulary("Hyperspeed Metabolizer")
	assert.False(t, known)
}
