package service

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/monigenomi/openpgx/internal/domain"
)

// RecommendationService is the core engine: it phenotypes a patient's
// genotypes and matches the resulting factors against every source's rules
// for every known drug.
//
// The backing database is held behind an atomic pointer so a snapshot
// reload can swap it in without blocking in-flight requests. Requests that
// began against the previous snapshot finish against it.
type RecommendationService struct {
	db      atomic.Pointer[domain.Database]
	matcher *Matcher
	log     *logrus.Logger
}

// NewRecommendationService creates the engine over an initial database.
func NewRecommendationService(db *domain.Database, logger *logrus.Logger) *RecommendationService {
	s := &RecommendationService{
		matcher: NewMatcher(logger),
		log:     logger,
	}
	s.db.Store(db)
	return s
}

// Swap replaces the backing database. Safe to call concurrently with
// readers.
func (s *RecommendationService) Swap(db *domain.Database) {
	s.db.Store(db)
	s.log.WithField("drugs", len(db.Drugs())).Info("Recommendation database swapped")
}

// Database returns the current backing database.
func (s *RecommendationService) Database() *domain.Database {
	return s.db.Load()
}

// Drugs returns the sorted union of drug names across all sources.
func (s *RecommendationService) Drugs() []string {
	return s.db.Load().Drugs()
}

// Phenotype converts raw genotypes into per-gene factors without matching
// any drug rules.
func (s *RecommendationService) Phenotype(genotypes map[string]string) domain.FactorMap {
	db := s.db.Load()
	return NewPhenotyper(db, s.log).Phenotype(genotypes)
}

// GetRecommendations phenotypes the genotypes and evaluates every drug the
// database knows against every source. The result always contains a key
// for every drug; a drug's inner map omits sources that produced nothing.
func (s *RecommendationService) GetRecommendations(ctx context.Context, genotypes map[string]string) (map[string]map[domain.Source]*domain.Recommendation, error) {
	db := s.db.Load()
	if db == nil {
		return nil, fmt.Errorf("recommendation database not loaded")
	}

	factors := NewPhenotyper(db, s.log).Phenotype(genotypes)

	result := make(map[string]map[domain.Source]*domain.Recommendation)
	for _, drug := range db.Drugs() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		perSource := make(map[domain.Source]*domain.Recommendation)
		for _, src := range db.SourceList() {
			rules := src.Recommendations(drug)
			if rec := s.matcher.Match(src.Source(), rules, factors); rec != nil {
				perSource[src.Source()] = rec
			}
		}
		result[drug] = perSource
	}

	s.log.WithFields(logrus.Fields{
		"genes": len(genotypes),
		"drugs": len(result),
	}).Debug("Recommendations evaluated")

	return result, nil
}
