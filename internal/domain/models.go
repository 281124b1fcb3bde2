package domain

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Recommendation is a single dosing recommendation rule belonging to one
// (source, drug) pair. An empty Factors map marks an unconditional default
// for the drug in that source. Rule tables always hold lists of
// recommendations, even for a single rule; the best-match reduction happens
// at query time, never at storage time.
type Recommendation struct {
	// Factors maps gene symbol to the factor required of the patient.
	// A gene absent from the map is not required; a gene mapped to an
	// unknown factor requires the patient's value to be unknown too.
	Factors map[string]Factor `json:"factors"`

	// Recommendation is the free-text dosing guidance.
	Recommendation string `json:"recommendation"`

	// Strength classifies the recommendation; nil when the source does
	// not grade its guidance.
	Strength *Strength `json:"strength,omitempty"`

	// Guideline is the URL of the source guideline document.
	Guideline string `json:"guideline"`
}

// EncodingValues is one entry of an encoding table: the factor values a
// normalized genotype key resolves to. The snapshot stores it as a
// heterogeneous JSON array, e.g. ["Ultrarapid Metabolizer", 6.0] for CPIC
// diplotypes or ["positive"] for presence calls.
type EncodingValues struct {
	// Label is the source's phenotype or presence label; nil for
	// score-only genes such as DPYD.
	Label *string
	// ActivityScore is the numeric activity score; nil for sources that
	// key purely by label.
	ActivityScore *float64
}

// UnmarshalJSON decodes the snapshot's mixed array form: strings become the
// label, numbers the activity score, nulls are skipped.
func (ev *EncodingValues) UnmarshalJSON(data []byte) error {
	var values []json.RawMessage
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("encoding values must be an array: %w", err)
	}
	*ev = EncodingValues{}
	for _, raw := range values {
		if string(raw) == "null" {
			continue
		}
		var label string
		if err := json.Unmarshal(raw, &label); err == nil {
			if ev.Label == nil {
				ev.Label = &label
			}
			continue
		}
		var score float64
		if err := json.Unmarshal(raw, &score); err == nil {
			if ev.ActivityScore == nil {
				ev.ActivityScore = &score
			}
			continue
		}
		return fmt.Errorf("encoding value %s is neither a label nor a score", raw)
	}
	return nil
}

// MarshalJSON re-encodes the entry in the snapshot's array form.
func (ev EncodingValues) MarshalJSON() ([]byte, error) {
	values := make([]interface{}, 0, 2)
	if ev.Label != nil {
		values = append(values, *ev.Label)
	}
	if ev.ActivityScore != nil {
		values = append(values, *ev.ActivityScore)
	}
	return json.Marshal(values)
}

// GeneFactor is a patient's resolved state for one gene. All fields nil
// means phenotyping found nothing for the gene; that is not an error, it
// signals insufficient genotype data.
type GeneFactor struct {
	// Factor is the cross-source normalized label used for DPWG and FDA
	// rule matching.
	Factor *string `json:"factor"`
	// CPICFactor is the raw CPIC label used for CPIC rule matching.
	CPICFactor *string `json:"cpic_factor"`
	// ActivityScore is the numeric activity score, where the gene has one.
	ActivityScore *float64 `json:"activityscore"`
}

// FactorMap holds a patient's per-gene resolved factors. It is ephemeral:
// built once per recommendation request and discarded with the response.
type FactorMap map[string]GeneFactor

// SourceSnapshot is the serialized form of one source's data inside a
// recommendation database snapshot.
type SourceSnapshot struct {
	Recommendations map[string][]*Recommendation        `json:"recommendations"`
	Encodings       map[string]map[string]EncodingValues `json:"encodings"`
}

// SourceData is one guideline database: its drug rule tables plus its
// genotype-to-factor encoding index. Built once from a snapshot and
// read-only afterwards.
type SourceData struct {
	source          Source
	recommendations map[string][]*Recommendation
	index           map[string]EncodingValues
}

// NewSourceData builds a source's data from its snapshot form, flattening
// the per-gene encoding tables into a single "GENE:key" lookup index.
func NewSourceData(source Source, snap *SourceSnapshot) (*SourceData, error) {
	if !source.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSource, source)
	}
	sd := &SourceData{
		source:          source,
		recommendations: snap.Recommendations,
		index:           make(map[string]EncodingValues),
	}
	if sd.recommendations == nil {
		sd.recommendations = map[string][]*Recommendation{}
	}
	for gene, table := range snap.Encodings {
		for key, values := range table {
			sd.index[gene+":"+key] = values
		}
	}
	return sd, nil
}

// Source returns which guideline database this data belongs to.
func (sd *SourceData) Source() Source {
	return sd.source
}

// Recommendations returns the rule list for a drug, in stable source order.
// The slice must not be mutated.
func (sd *SourceData) Recommendations(drug string) []*Recommendation {
	return sd.recommendations[drug]
}

// Drugs returns the drug names this source has rules for.
func (sd *SourceData) Drugs() []string {
	drugs := make([]string, 0, len(sd.recommendations))
	for drug := range sd.recommendations {
		drugs = append(drugs, drug)
	}
	sort.Strings(drugs)
	return drugs
}

// Encoding resolves a genotype index key ("GENE:key") against this source's
// encoding tables.
func (sd *SourceData) Encoding(key string) (EncodingValues, bool) {
	values, ok := sd.index[key]
	return values, ok
}

// Database is the aggregate recommendation database across all sources.
// It is immutable once built; concurrent readers share it without locking.
// Hot reload is done by building a replacement off to the side and
// publishing it with an atomic pointer swap.
type Database struct {
	sources map[Source]*SourceData
}

// NewDatabase builds a database from its snapshot form. Unknown source
// names are rejected; sources missing from the snapshot are simply absent.
func NewDatabase(snapshot map[Source]*SourceSnapshot) (*Database, error) {
	db := &Database{sources: make(map[Source]*SourceData, len(snapshot))}
	for source, snap := range snapshot {
		if snap == nil {
			continue
		}
		sd, err := NewSourceData(source, snap)
		if err != nil {
			return nil, err
		}
		db.sources[source] = sd
	}
	return db, nil
}

// Source returns the data for one guideline database, if present.
func (db *Database) Source(source Source) (*SourceData, bool) {
	sd, ok := db.sources[source]
	return sd, ok
}

// SourceList returns the present sources in canonical evaluation order.
func (db *Database) SourceList() []*SourceData {
	result := make([]*SourceData, 0, len(db.sources))
	for _, source := range Sources {
		if sd, ok := db.sources[source]; ok {
			result = append(result, sd)
		}
	}
	return result
}

// Drugs returns the sorted union of drug names across all sources.
func (db *Database) Drugs() []string {
	seen := map[string]struct{}{}
	for _, sd := range db.sources {
		for drug := range sd.recommendations {
			seen[drug] = struct{}{}
		}
	}
	drugs := make([]string, 0, len(seen))
	for drug := range seen {
		drugs = append(drugs, drug)
	}
	sort.Strings(drugs)
	return drugs
}

// Validate runs the integrity checks that matching skips for performance:
// duplicate factor sets within one (source, drug) rule list and categorical
// labels that look like bare numbers (stale normalization). Intended for
// invariant tests and post-ETL verification, not the request path.
func (db *Database) Validate() error {
	for _, sd := range db.SourceList() {
		for drug, rules := range sd.recommendations {
			seen := map[string]*Recommendation{}
			for _, rule := range rules {
				if rule.Strength != nil && !rule.Strength.IsValid() {
					return fmt.Errorf("%w: %q (%s, %s)", ErrInvalidStrength, *rule.Strength, sd.source, drug)
				}
				for gene, factor := range rule.Factors {
					if factor.Kind == FactorCategorical && looksNumeric(factor.Label) {
						return fmt.Errorf("%s %s %s: categorical factor %q looks like a bare number",
							sd.source, drug, gene, factor.Label)
					}
				}
				key := factorSetKey(rule.Factors)
				if _, dup := seen[key]; dup {
					return fmt.Errorf("%s %s: duplicate factor set %s", sd.source, drug, key)
				}
				seen[key] = rule
			}
		}
	}
	return nil
}

// factorSetKey builds a canonical string for a rule's factor requirements,
// used only for duplicate detection.
func factorSetKey(factors map[string]Factor) string {
	genes := make([]string, 0, len(factors))
	for gene := range factors {
		genes = append(genes, gene)
	}
	sort.Strings(genes)
	key := ""
	for _, gene := range genes {
		key += gene + "=" + factors[gene].String() + ";"
	}
	return key
}

func looksNumeric(label string) bool {
	if label == "" {
		return false
	}
	dot := false
	for i, r := range label {
		switch {
		case r >= '0' && r <= '9':
		case r == '.' && !dot && i > 0:
			dot = true
		default:
			return false
		}
	}
	return true
}
