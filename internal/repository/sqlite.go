package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/monigenomi/openpgx/internal/domain"
)

// SQLiteStore persists the guideline snapshot in an embedded SQLite
// database. Rule order within a drug is significant for tie-breaking, so
// rows carry an explicit position.
type SQLiteStore struct {
	db  *sql.DB
	log *logrus.Logger
}

// NewSQLiteStore opens (creating if needed) the SQLite database at path
// and ensures the snapshot schema exists.
func NewSQLiteStore(path string, logger *logrus.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS recommendations (
			source         TEXT    NOT NULL,
			drug           TEXT    NOT NULL,
			position       INTEGER NOT NULL,
			factors        TEXT    NOT NULL,
			recommendation TEXT    NOT NULL,
			strength       TEXT,
			guideline      TEXT    NOT NULL,
			PRIMARY KEY (source, drug, position)
		);
		CREATE TABLE IF NOT EXISTS encodings (
			source       TEXT NOT NULL,
			gene         TEXT NOT NULL,
			genotype_key TEXT NOT NULL,
			phenotype    TEXT NOT NULL,
			PRIMARY KEY (source, gene, genotype_key)
		);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating snapshot schema: %w", err)
	}

	return &SQLiteStore{db: db, log: logger}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load reads every source's rules and encodings into a database.
func (s *SQLiteStore) Load(ctx context.Context) (*domain.Database, error) {
	snapshot := make(map[domain.Source]*domain.SourceSnapshot)

	rows, err := s.db.QueryContext(ctx, `
		SELECT source, drug, factors, recommendation, strength, guideline
		FROM recommendations
		ORDER BY source, drug, position`)
	if err != nil {
		return nil, fmt.Errorf("querying recommendations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			source, drug, factorsJSON, recommendation, guideline string
			strength                                             sql.NullString
		)
		if err := rows.Scan(&source, &drug, &factorsJSON, &recommendation, &strength, &guideline); err != nil {
			return nil, fmt.Errorf("scanning recommendation row: %w", err)
		}

		var factors map[string]domain.Factor
		if err := json.Unmarshal([]byte(factorsJSON), &factors); err != nil {
			return nil, fmt.Errorf("decoding factors for %s/%s: %w", source, drug, err)
		}
		rec := &domain.Recommendation{
			Factors:        factors,
			Recommendation: recommendation,
			Guideline:      guideline,
		}
		if strength.Valid {
			str := domain.Strength(strength.String)
			rec.Strength = &str
		}

		snap := ensureSource(snapshot, domain.Source(source))
		snap.Recommendations[drug] = append(snap.Recommendations[drug], rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating recommendation rows: %w", err)
	}

	encRows, err := s.db.QueryContext(ctx, `
		SELECT source, gene, genotype_key, phenotype
		FROM encodings`)
	if err != nil {
		return nil, fmt.Errorf("querying encodings: %w", err)
	}
	defer encRows.Close()

	for encRows.Next() {
		var source, gene, key, phenotypeJSON string
		if err := encRows.Scan(&source, &gene, &key, &phenotypeJSON); err != nil {
			return nil, fmt.Errorf("scanning encoding row: %w", err)
		}

		var values domain.EncodingValues
		if err := json.Unmarshal([]byte(phenotypeJSON), &values); err != nil {
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
	s.log.WithField("drugs", len(db.Drugs())).Info("Snapshot loaded from sqlite")
	return db, nil
}

// Save replaces stored snapshot data in a single transaction.
func (s *SQLiteStore) Save(ctx context.Context, snapshot map[domain.Source]*domain.SourceSnapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning snapshot transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"recommendations", "encodings"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	recStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO recommendations (source, drug, position, factors, recommendation, strength, guideline)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing recommendation insert: %w", err)
	}
	defer recStmt.Close()

	encStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO encodings (source, gene, genotype_key, phenotype)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing encoding insert: %w", err)
	}
	defer encStmt.Close()

	for source, snap := range snapshot {
		for drug, rules := range snap.Recommendations {
			for position, rec := range rules {
				factorsJSON, err := json.Marshal(rec.Factors)
				if err != nil {
					return fmt.Errorf("encoding factors for %s/%s: %w", source, drug, err)
				}
				var strength sql.NullString
				if rec.Strength != nil {
					strength = sql.NullString{String: string(*rec.Strength), Valid: true}
				}
				if _, err := recStmt.ExecContext(ctx, string(source), drug, position,
					string(factorsJSON), rec.Recommendation, strength, rec.Guideline); err != nil {
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
				if _, err := encStmt.ExecContext(ctx, string(source), gene, key, string(phenotypeJSON)); err != nil {
					return fmt.Errorf("inserting encoding %s/%s: %w", source, gene, err)
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}

	s.log.WithField("sources", len(snapshot)).Info("Snapshot saved to sqlite")
	return nil
}

func ensureSource(snapshot map[domain.Source]*domain.SourceSnapshot, source domain.Source) *domain.SourceSnapshot {
	snap, ok := snapshot[source]
	if !ok {
		snap = &domain.SourceSnapshot{
			Recommendations: make(map[string][]*domain.Recommendation),
			Encodings:       make(map[string]map[string]domain.EncodingValues),
		}
		snapshot[source] = snap
	}
	return snap
}
