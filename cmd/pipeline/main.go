package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"filing_segmenter/pkg/core/batch"
	"filing_segmenter/pkg/core/config"
	"filing_segmenter/pkg/core/filing"
	"filing_segmenter/pkg/core/pipeline"
	"filing_segmenter/pkg/core/segment"
	"filing_segmenter/pkg/core/store"
)

func main() {
	configPath := flag.String("config", "", "path to YAML or HJSON config file (defaults used when empty)")
	inputDir := flag.String("input", "", "directory of .txt filing containers to process")
	inputFile := flag.String("file", "", "single container to process (overrides -input)")
	artifacts := flag.Bool("artifacts", false, "write debug artifacts (node dumps, table markdown) per document")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, assuming environment variables are set.")
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Error loading config: %v", err)
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	items, err := buildWorklist(*inputDir, *inputFile)
	if err != nil {
		log.Fatalf("Error building worklist: %v", err)
	}
	if len(items) == 0 {
		log.Fatal("No input containers found. Use -input <dir> or -file <path>.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sections := make([]filing.SectionID, 0, len(cfg.Sections))
	for _, s := range cfg.Sections {
		sections = append(sections, filing.SectionID(s))
	}

	limits := segment.Limits{
		FloorWords:   cfg.FloorWords,
		CeilingWords: cfg.CeilingWords,
		MinSegments:  cfg.MinSegments,
	}
	if cfg.TokenBudget > 0 {
		limits.CeilingWords = segment.CeilingFromTokenBudget(cfg.TokenBudget, cfg.TokensPerWord, 0.9)
	}

	popts := pipeline.Options{
		Sections:         sections,
		FlattenThreshold: cfg.FlattenThresholdBytes,
		Limits:           limits,
		TreeCacheLen:     cfg.ParsedTreeCacheLen,
	}
	if *artifacts || cfg.WriteArtifacts {
		popts.ArtifactDir = filepath.Join(cfg.OutputDir, "artifacts")
	}
	pipe, err := pipeline.New(popts, nil)
	if err != nil {
		log.Fatalf("Error building pipeline: %v", err)
	}

	state, err := batch.LoadOrCreateState(cfg.StatePath)
	if err != nil {
		log.Fatalf("Error loading run state: %v", err)
	}

	orch := batch.NewOrchestrator(batch.Options{
		Workers:         cfg.Workers,
		MaxAttempts:     cfg.MaxAttempts,
		DocumentTimeout: cfg.DocumentTimeoutDuration(),
		RetryBackoff:    cfg.RetryBackoffDuration(),
		MemoryBudget:    cfg.MemoryBudgetBytes,
		MemoryFraction:  cfg.MemoryFraction,
		OutputDir:       cfg.OutputDir,
	}, pipe, state)

	summary, err := orch.Run(ctx, items)
	if err != nil {
		log.Fatalf("Batch run aborted: %v", err)
	}

	if os.Getenv("DATABASE_URL") != "" {
		if err := persistOutputs(ctx, cfg.OutputDir); err != nil {
			log.Printf("Warning: database persistence failed: %v", err)
		}
	}

	fmt.Printf("\nProcessed %d documents: %d succeeded, %d failed, %d dead-lettered, %d skipped\n",
		summary.Total, summary.Succeeded, summary.Failed, summary.DeadLettered, summary.Skipped)
	if summary.DeadLettered > 0 {
		os.Exit(1)
	}
}

// buildWorklist enumerates containers in a stable order so checkpoint
// indices mean the same thing across resumed runs.
func buildWorklist(dir, file string) ([]batch.Item, error) {
	if file != "" {
		id := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
		return []batch.Item{{ID: id, Path: file}}, nil
	}
	if dir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read input dir: %w", err)
	}

	var items []batch.Item
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".txt") {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".txt")
		items = append(items, batch.Item{ID: id, Path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

// persistOutputs upserts every segment file in the output directory into
// Postgres. File outputs remain the primary contract; the database is a
// convenience mirror.
func persistOutputs(ctx context.Context, outputDir string) error {
	if err := store.InitDB(ctx); err != nil {
		return err
	}
	defer store.Close()

	matches, err := filepath.Glob(filepath.Join(outputDir, "*_item*.json"))
	if err != nil {
		return err
	}

	repo := store.NewSegmentRepo()
	saved := 0
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		var segments []segment.Segment
		if err := json.Unmarshal(data, &segments); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
		if err := repo.Save(ctx, segments); err != nil {
			return err
		}
		saved += len(segments)
	}
	fmt.Printf("Persisted %d segments to database\n", saved)
	return nil
}
