package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"trustnet/internal/dataset"
	"trustnet/internal/ml"
)

func main() {
	// Parse command line arguments
	var (
		dataPath        = flag.String("data", "data/transactions.csv", "Path to labeled transaction CSV")
		outputDir       = flag.String("output", "artifacts", "Output directory for model artifacts")
		sampleFraction  = flag.Float64("sample", 0, "Fraction of rows to use (0 = all)")
		float32Mode     = flag.Bool("float32", false, "Round numeric columns to float32 precision")
		memoryEfficient = flag.Bool("memory-efficient", false, "Shrink the search grid and disable parallel search")
		maxTrainRows    = flag.Int("max-train-rows", 0, "Training resource budget in row-equivalents (0 = unlimited)")
		testFraction    = flag.Float64("test-fraction", 0.4, "Fraction of data held out for evaluation")
		seed            = flag.Int64("seed", 42, "Random seed")
		logLevel        = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	// Setup logging
	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("failed to load .env file")
	}

	txs, labels, err := dataset.Load(*dataPath, dataset.Options{
		SampleFraction: *sampleFraction,
		Float32:        *float32Mode,
		Seed:           *seed,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("dataset load failed")
	}

	trainer := ml.NewTrainer(ml.TrainerConfig{
		TestFraction:    *testFraction,
		MemoryEfficient: *memoryEfficient,
		MaxTrainRows:    *maxTrainRows,
		Seed:            *seed,
		OutputDir:       *outputDir,
	})

	result, err := trainer.TrainAndSave(txs, labels)
	if err != nil {
		log.Fatal().Err(err).Msg("training failed")
	}

	fmt.Println("=== Training Results ===")
	fmt.Printf("Training Rows: %d\n", result.TrainingRows)
	fmt.Printf("Tier:          %s\n", result.Tier)
	fmt.Printf("ROC AUC:       %.4f\n", result.Metrics.ROCAUC)
	fmt.Printf("PR AUC:        %.4f\n", result.Metrics.PRAUC)
	fmt.Printf("Threshold:     %.4f\n", result.Threshold)
	fmt.Printf("Precision:     %.4f\n", result.Metrics.Optimal.Precision)
	fmt.Printf("Recall:        %.4f\n", result.Metrics.Optimal.Recall)
	fmt.Printf("F1:            %.4f\n", result.Metrics.Optimal.F1)
	fmt.Printf("Artifacts:     %s\n", *outputDir)
	fmt.Println("========================")
}
