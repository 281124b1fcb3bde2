// Command openpgx evaluates a patient's genotypes against the guideline
// snapshot and prints per-drug recommendations as JSON.
//
// Usage:
//
//	openpgx -input genotypes.json [-snapshot recommendations.json]
//
// The input file maps gene symbols to genotype strings, for example
// {"CYP2D6": "*1/*2x2", "HLA-B": "*57:01 positive"}.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/monigenomi/openpgx/internal/config"
	"github.com/monigenomi/openpgx/internal/repository"
	"github.com/monigenomi/openpgx/internal/service"
)

func main() {
	cfg := config.LoadLiteConfig()

	inputPath := flag.String("input", "", "path to genotypes JSON file (gene to genotype)")
	snapshotPath := flag.String("snapshot", cfg.SnapshotPath, "path to guideline snapshot JSON")
	phenotypeOnly := flag.Bool("phenotype", false, "print per-gene factors instead of recommendations")
	flag.Parse()

	if *inputPath == "" {
		fmt.Fprintln(os.Stderr, "usage: openpgx -input genotypes.json [-snapshot recommendations.json]")
		os.Exit(2)
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	if err := run(*inputPath, *snapshotPath, *phenotypeOnly, cfg.Pretty, logger); err != nil {
		fmt.Fprintf(os.Stderr, "openpgx: %v\n", err)
		os.Exit(1)
	}
}

func run(inputPath, snapshotPath string, phenotypeOnly, pretty bool, logger *logrus.Logger) error {
	raw, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("reading genotypes: %w", err)
	}

	var genotypes map[string]string
	if err := json.Unmarshal(raw, &genotypes); err != nil {
		return fmt.Errorf("decoding genotypes: %w", err)
	}

	ctx := context.Background()
	store := repository.NewFileStore(snapshotPath, logger)
	db, err := store.Load(ctx)
	if err != nil {
		return err
	}

	engine := service.NewRecommendationService(db, logger)

	var result any
	if phenotypeOnly {
		result = engine.Phenotype(genotypes)
	} else {
		result, err = engine.GetRecommendations(ctx, genotypes)
		if err != nil {
			return err
		}
	}

	enc := json.NewEncoder(os.Stdout)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(result)
}
