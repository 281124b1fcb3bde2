package domain

import (
	"context"
)

// DataSource is the closed interface one guideline database exposes to the
// matching engine: a drug-to-rules table and a genotype-key encoding index.
// The three concrete variants are the SourceData instances for CPIC, DPWG
// and FDA; the aggregator iterates the known variant set, never a dynamic
// registry.
type DataSource interface {
	Source() Source
	Recommendations(drug string) []*Recommendation
	Drugs() []string
	Encoding(key string) (EncodingValues, bool)
}

// RecommendationEngine converts a patient's per-gene genotypes into per-drug,
// per-source dosing recommendations. Implementations are pure over an
// immutable database: deterministic, no hidden state across calls.
type RecommendationEngine interface {
	// GetRecommendations returns the nested drug -> source -> rule map.
	// A request with partial or unknown genotype data never fails; it
	// returns fewer entries or "more genotyping needed" fallbacks.
	GetRecommendations(ctx context.Context, genotypes map[string]string) (map[string]map[Source]*Recommendation, error)

	// Phenotype resolves the patient's genotypes to the per-gene factor
	// triple without matching any rules.
	Phenotype(genotypes map[string]string) FactorMap

	// Drugs returns every drug name the loaded database covers.
	Drugs() []string
}

// SnapshotStore loads and saves recommendation database snapshots. The
// engine only ever sees the built Database; stores own the serialized shape.
type SnapshotStore interface {
	Load(ctx context.Context) (*Database, error)
	Save(ctx context.Context, snapshot map[Source]*SourceSnapshot) error
}
