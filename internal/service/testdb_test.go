package service

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/monigenomi/openpgx/internal/domain"
)

// testLogger returns a quiet logger for tests.
func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return logger
}

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }

// testDatabase builds a small three-source database exercising the shapes
// the real snapshot has: CPIC diplotype encodings with activity scores,
// label-only DPWG/FDA encodings, activity-score rules, presence-call rules
// and multi-gene rules.
func testDatabase(t *testing.T) *domain.Database {
	t.Helper()

	strong := domain.StrengthStrong
	moderate := domain.StrengthModerate

	db, err := domain.NewDatabase(map[domain.Source]*domain.SourceSnapshot{
		domain.SourceCPIC: {
			Recommendations: map[string][]*domain.Recommendation{
				"abacavir": {
					{
						Factors:        map[string]domain.Factor{"HLA-B*57:01": domain.Categorical("negative")},
						Recommendation: "Use abacavir per standard dosing guidelines",
						Strength:       &strong,
						Guideline:      "https://cpicpgx.org/guidelines/guideline-for-abacavir-and-hla-b/",
					},
					{
						Factors:        map[string]domain.Factor{"HLA-B*57:01": domain.Categorical("positive")},
						Recommendation: "Abacavir is not recommended",
						Strength:       &strong,
						Guideline:      "https://cpicpgx.org/guidelines/guideline-for-abacavir-and-hla-b/",
					},
				},
				"codeine": {
					{
						Factors:        map[string]domain.Factor{"CYP2D6": domain.ActivityScore(domain.OpEqual, 0)},
						Recommendation: "Avoid codeine use because of possible lack of effect",
						Strength:       &strong,
						Guideline:      "https://cpicpgx.org/guidelines/guideline-for-codeine-and-cyp2d6/",
					},
					{
						Factors:        map[string]domain.Factor{"CYP2D6": domain.ActivityScore(domain.OpAtLeast, 4)},
						Recommendation: "Avoid codeine use because of potential toxicity",
						Strength:       &strong,
						Guideline:      "https://cpicpgx.org/guidelines/guideline-for-codeine-and-cyp2d6/",
					},
				},
				"trimipramine": {
					{
						Factors: map[string]domain.Factor{
							"CYP2D6":  domain.ActivityScore(domain.OpEqual, 0),
							"CYP2C19": domain.Categorical("Intermediate Metabolizer"),
						},
						Recommendation: "Avoid trimipramine",
						Strength:       &moderate,
						Guideline:      "https://cpicpgx.org/guidelines",
					},
					{
						Factors: map[string]domain.Factor{
							"CYP2D6": domain.ActivityScore(domain.OpEqual, 0),
						},
						Recommendation: "Consider a 50% dose reduction",
						Strength:       &moderate,
						Guideline:      "https://cpicpgx.org/guidelines",
					},
				},
			},
			Encodings: map[string]map[string]domain.EncodingValues{
				"CYP2D6": {
					"*1/*1":     {Label: strPtr("Normal Metabolizer"), ActivityScore: floatPtr(2.0)},
					"*7/*7":     {Label: strPtr("Poor Metabolizer"), ActivityScore: floatPtr(0.0)},
					"*1≥3/*2≥3": {Label: strPtr("Ultrarapid Metabolizer"), ActivityScore: floatPtr(6.0)},
					"*104/*1x5": {Label: strPtr("Indeterminate")},
				},
				"CYP2C19": {
					"*1/*2": {Label: strPtr("Intermediate Metabolizer")},
				},
				"HLA-B*57:01": {
					"positive": {Label: strPtr("positive")},
					"negative": {Label: strPtr("negative")},
				},
			},
		},
		domain.SourceDPWG: {
			Recommendations: map[string][]*domain.Recommendation{
				"abacavir": {
					{
						Factors:        map[string]domain.Factor{"HLA-B*57:01": domain.Categorical("positive")},
						Recommendation: "Abacavir is contra-indicated",
						Guideline:      "https://www.knmp.nl",
					},
				},
				"simvastatin": {
					{
						Factors:        map[string]domain.Factor{"SLCO1B1": domain.Categorical("521 CC")},
						Recommendation: "Choose an alternative statin",
						Guideline:      "https://www.knmp.nl",
					},
				},
			},
			Encodings: map[string]map[string]domain.EncodingValues{
				"SLCO1B1": {
					"521 CC": {Label: strPtr("521 CC")},
					"521 TC": {Label: strPtr("521 TC")},
				},
			},
		},
		domain.SourceFDA: {
			Recommendations: map[string][]*domain.Recommendation{
				"abacavir": {
					{
						Factors:        map[string]domain.Factor{"HLA-B*57:01": domain.Categorical("positive")},
						Recommendation: "Results in higher adverse reaction risk",
						Guideline:      "https://www.fda.gov/medical-devices/precision-medicine/table-pharmacogenetic-associations",
					},
				},
			},
			Encodings: map[string]map[string]domain.EncodingValues{
				"F5": {
					"Factor V Leiden heterozygous": {Label: strPtr("Factor V Leiden heterozygous")},
				},
			},
		},
	})
	require.NoError(t, err)
	return db
}
