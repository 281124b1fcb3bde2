package service

import (
	"github.com/sirupsen/logrus"

	"github.com/monigenomi/openpgx/internal/domain"
)

// Phenotyper resolves a patient's per-gene genotypes to comparable factors
// using one loaded database. CPIC encodings are consulted first: they carry
// the raw label and, for activity-score genes, the numeric score. When no
// normalized factor falls out of the CPIC label, the DPWG and FDA label
// tables are tried with the same keys.
type Phenotyper struct {
	db  *domain.Database
	log *logrus.Logger
}

// NewPhenotyper creates a phenotyper over an immutable database.
func NewPhenotyper(db *domain.Database, logger *logrus.Logger) *Phenotyper {
	return &Phenotyper{db: db, log: logger}
}

// Phenotype derives the patient factor map from raw genotypes. A gene that
// resolves nowhere gets an all-nil entry; that is insufficient data, not an
// error, and downstream matching treats it as "requirement unsatisfiable".
func (p *Phenotyper) Phenotype(genotypes map[string]string) domain.FactorMap {
	factors := make(domain.FactorMap, len(genotypes))
	for gene, genotype := range genotypes {
		factors[gene] = p.phenotypeGene(gene, genotype)
	}
	return factors
}

func (p *Phenotyper) phenotypeGene(gene, genotype string) domain.GeneFactor {
	var result domain.GeneFactor

	cpic, hasCPIC := p.db.Source(domain.SourceCPIC)
	dpwg, hasDPWG := p.db.Source(domain.SourceDPWG)
	fda, hasFDA := p.db.Source(domain.SourceFDA)

	for _, key := range ExpandGenotypeKeys(gene, genotype) {
		if result.Factor != nil && result.CPICFactor != nil {
			break
		}

		if result.CPICFactor == nil && hasCPIC {
			if values, ok := cpic.Encoding(key); ok {
				result.CPICFactor = values.Label
				result.ActivityScore = values.ActivityScore
				if values.Label != nil {
					if normalized, known := LookupVocabulary(*values.Label); known && normalized != "" {
						result.Factor = &normalized
					}
				}
			}
		}

		if result.Factor == nil {
			if hasDPWG {
				if values, ok := dpwg.Encoding(key); ok && values.Label != nil {
					result.Factor = values.Label
					continue
				}
			}
			if hasFDA {
				if values, ok := fda.Encoding(key); ok && values.Label != nil {
					result.Factor = values.Label
				}
			}
		}
	}

	if result.Factor == nil && result.CPICFactor == nil && result.ActivityScore == nil {
		p.log.WithFields(logrus.Fields{
			"gene":     gene,
			"genotype": genotype,
		}).Debug("Genotype resolved to no factor in any source")
	}
	return result
}
