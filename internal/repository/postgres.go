package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/monigenomi/openpgx/internal/domain"
)

// PostgresStore persists the guideline snapshot in PostgreSQL. The schema
// is managed by migrations, not by the store.
type PostgresStore struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewPostgresStore creates a postgres-backed snapshot store.
func NewPostgresStore(db *pgxpool.Pool, logger *logrus.Logger) *PostgresStore {
	return &PostgresStore{db: db, log: logger}
}

// Load reads every source's rules and encodings into a database.
func (s *PostgresStore) Load(ctx context.Context) (*domain.Database, error) {
	snapshot := make(map[domain.Source]*domain.SourceSnapshot)

	rows, err := s.db.Query(ctx, `
		SELECT source, drug, factors, recommendation, strength, guideline
		FROM recommendations
		ORDER BY source, drug, position`)
	if err != nil {
		s.log.WithError(err).Error("Failed to query recommendations")
		return nil, fmt.Errorf("querying recommendations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			source, drug, recommendation, guideline string
			factorsJSON                             []byte
			strength                                *string
		)
		if err := rows.Scan(&source, &drug, &factorsJSON, &recommendation, &strength, &guideline); err != nil {
			return nil, fmt.Errorf("scanning recommendation row: %w", err)
		}

		var factors map[string]domain.Factor
		if err := json.Unmarshal(factorsJSON, &factors); err != nil {
			return nil, fmt.Errorf("decoding factors for %s/%s: %w", source, drug, err)
		}
		rec := &domain.Recommendation{
			Factors:        factors,
			Recommendation: recommendation,
			Guideline:      guideline,
		}
		if strength != nil {
			str := domain.Strength(*strength)
			rec.Strength = &str
		}

		snap := ensureSource(snapshot, domain.Source(source))
		snap.Recommendations[drug] = append(snap.Recommendations[drug], rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating recommendation rows: %w", err)
	}

	encRows, err := s.db.Query(ctx, `
		SELECT source, gene, genotype_key, phenotype
		FROM encodings`)
	if err != nil {
		s.log.WithError(err).Error("Failed to query encodings")
		return nil, fmt.Errorf("querying encodings: %w", err)
	}
	defer encRows.Close()

	for encRows.Next() {
		var (
			source, gene, key string
			phenotypeJSON     []byte
		)
		if err := encRows.Scan(&source, &gene, &key, &phenotypeJSON); err != nil {
			return nil, fmt.Errorf("scanning encoding row: %w", err)
		}

		var values domain.EncodingValues
		if err := json.Unmarshal(phenotypeJSON, &values); err != nil {
			return nil, fmt.Errorf("decoding encoding for %s/%s: %w", source, gene, err)
		}

		snap := ensureSource(snapshot, domain.Source(source))
		if snap.Encodings[gene] == nil {
			snap.Encodings[gene] = make(map[string]domain.EncodingValues)
		}
		snap.Encodings[gene][key] = values
	}
	if err := encRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating encoding rows: %w", err)
	}

	if len(snapshot) == 0 {
		return nil, domain.ErrSnapshotNotFound
	}

	db, err := domain.NewDatabase(snapshot)
	if err != nil {
		return nil, fmt.Errorf("building database: %w", err)
	}
	s.log.WithField("drugs", len(db.Drugs())).Info("Snapshot loaded from postgres")
	return db, nil
}

// Save replaces stored snapshot data in a single transaction.
func (s *PostgresStore) Save(ctx context.Context, snapshot map[domain.Source]*domain.SourceSnapshot) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("beginning snapshot transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, table := range []string{"recommendations", "encodings"} {
		if _, err := tx.Exec(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	for source, snap := range snapshot {
		for drug, rules := range snap.Recommendations {
			for position, rec := range rules {
				factorsJSON, err := json.Marshal(rec.Factors)
				if err != nil {
					return fmt.Errorf("encoding factors for %s/%s: %w", source, drug, err)
				}
				var strength *string
				if rec.Strength != nil {
					str := string(*rec.Strength)
					strength = &str
				}
				_, err = tx.Exec(ctx, `
					INSERT INTO recommendations (source, drug, position, factors, recommendation, strength, guideline)
					VALUES ($1, $2, $3, $4, $5, $6, $7)`,
					string(source), drug, position, factorsJSON, rec.Recommendation, strength, rec.Guideline)
				if err != nil {
					return fmt.Errorf("inserting recommendation %s/%s: %w", source, drug, err)
				}
			}
		}
		for gene, keys := range snap.Encodings {
			for key, values := range keys {
				phenotypeJSON, err := json.Marshal(values)
				if err != nil {
					return fmt.Errorf("encoding phenotype for %s/%s: %w", source, gene, err)
				}
				_, err = tx.Exec(ctx, `
					INSERT INTO encodings (source, gene, genotype_key, phenotype)
					VALUES ($1, $2, $3, $4)`,
					string(source), gene, key, phenotypeJSON)
				if err != nil {
					return fmt.Errorf("inserting encoding %s/%s: %w", source, gene, err)
				}
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}

	s.log.WithField("sources", len(snapshot)).Info("Snapshot saved to postgres")
	return nil
}
