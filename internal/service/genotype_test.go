package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandAlleleRange(t *testing.T) {
	tests := []struct {
		allele string
		want   []string
	}{
		{"*1x5", []string{"*1x5", "*1≥5", "*1≥4", "*1≥3", "*1≥2", "*1≥1"}},
		{"*2Ax2", []string{"*2Ax2", "*2A≥2", "*2A≥1"}},
		{"*1", []string{"*1"}},
		{"Reference", []string{"Reference"}},
		{"*1x100", []string{"*1x100"}}, // copy count capped at two digits
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, expandAlleleRange(tt.allele), tt.allele)
	}
}

func TestExpandGenotypeKeys_Diplotype(t *testing.T) {
	keys := ExpandGenotypeKeys("CYP2D6", "*1/*2")
	assert.Equal(t, []string{"CYP2D6:*1/*2"}, keys)
}

func TestExpandGenotypeKeys_OrderInsensitive(t *testing.T) {
	assert.Equal(t,
		ExpandGenotypeKeys("CYP2D6", "*2/*1"),
		ExpandGenotypeKeys("CYP2D6", "*1/*2"))
}

func TestExpandGenotypeKeys_RangeExpansion(t *testing.T) {
	keys := ExpandGenotypeKeys("CYP2D6", "*1x2/*2")

	// Literal key first, then at-least keys in descending copy count.
	assert.Equal(t, []string{
		"CYP2D6:*1x2/*2",
		"CYP2D6:*1≥2/*2",
		"CYP2D6:*1≥1/*2",
	}, keys)
}

func TestExpandGenotypeKeys_BothSidesRanged(t *testing.T) {
	keys := ExpandGenotypeKeys("CYP2D6", "*1x2/*2x2")

	// Cartesian product of both expansions, each pair sorted.
	assert.Len(t, keys, 9)
	assert.Equal(t, "CYP2D6:*1x2/*2x2", keys[0])
	assert.Contains(t, keys, "CYP2D6:*1≥1/*2≥1")
}

func TestExpandGenotypeKeys_SingleToken(t *testing.T) {
	assert.Equal(t, []string{"HLA-B*57:01:positive"}, ExpandGenotypeKeys("HLA-B*57:01", "positive"))
	assert.Equal(t, []string{"F5:Factor V Leiden heterozygous"}, ExpandGenotypeKeys("F5", "Factor V Leiden heterozygous"))
}

func TestExpandGenotypeKeys_Malformed(t *testing.T) {
	// More than two alleles degrades to a literal key that matches no
	// encoding instead of failing.
	keys := ExpandGenotypeKeys("CYP2D6", "*1/*2/*3")
	assert.Equal(t, []string{"CYP2D6:*1/*2/*3"}, keys)
}
