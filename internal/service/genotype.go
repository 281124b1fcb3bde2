package service

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// alleleRangePattern matches the multiplication notation for star alleles,
// e.g. "*1x5" (five copies of *1) or "*2Ax3".
var alleleRangePattern = regexp.MustCompile(`^(\*\d+[A-Z]?)x(\d{1,2})$`)

// expandAlleleRange expands an allele token into itself plus, for
// multiplication notation, one "at-least-N-copies" key for every N from the
// copy count down to 1, using the "≥" marker the encoding tables use. An
// exact high copy number can then match a rule written for "at least N
// copies" without the database enumerating every possible count.
func expandAlleleRange(allele string) []string {
	result := []string{allele}
	m := alleleRangePattern.FindStringSubmatch(allele)
	if m == nil {
		return result
	}
	count, err := strconv.Atoi(m[2])
	if err != nil {
		return result
	}
	for n := count; n >= 1; n-- {
		result = append(result, m[1]+"≥"+strconv.Itoa(n))
	}
	return result
}

// ExpandGenotypeKeys produces every encoding-table lookup key a raw
// genotype string can resolve through, most specific first. Diplotypes are
// split on "/", each allele is range-expanded, and every pair of the
// cartesian product is sorted alphabetically before joining, which makes
// "A/B" and "B/A" produce the same key set. Callers walk the keys in order
// and stop at the first hit.
//
// A string that does not parse into an allele or diplotype shape simply
// yields its literal key; an unknown key finds no encoding, so malformed
// genotypes degrade to "no match" rather than failing the request.
func ExpandGenotypeKeys(gene, genotype string) []string {
	parts := strings.Split(genotype, "/")
	if len(parts) != 2 {
		keys := make([]string, 0, 1)
		for _, allele := range expandAlleleRange(genotype) {
			keys = append(keys, gene+":"+allele)
		}
		return keys
	}

	first := expandAlleleRange(parts[0])
	second := expandAlleleRange(parts[1])
	keys := make([]string, 0, len(first)*len(second))
	for _, a := range first {
		for _, b := range second {
			pair := []string{a, b}
			sort.Strings(pair)
			keys = append(keys, gene+":"+pair[0]+"/"+pair[1])
		}
	}
	return keys
}
