package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"trustnet/internal/sim"
)

func main() {
	// Parse command line arguments
	var (
		serverURL      = flag.String("server", "http://localhost:5000", "Base URL of the scoring service")
		dataPath       = flag.String("data", "data/transactions.csv", "Path to transaction CSV to replay")
		sampleFraction = flag.Float64("sample", 0, "Fraction of rows to replay (0 = all)")
		limit          = flag.Int("limit", 100, "Stop after this many transactions (0 = all)")
		delay          = flag.Duration("delay", 100*time.Millisecond, "Pause between requests")
		timeout        = flag.Duration("timeout", 5*time.Second, "Per-request timeout")
		seed           = flag.Int64("seed", 42, "Random seed for sampling")
		logLevel       = flag.String("log-level", "info", "Log level: debug, info, warn, error")
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("interrupt received, stopping replay")
		cancel()
	}()

	simulator := sim.New(sim.Config{
		ServerURL:      *serverURL,
		DataPath:       *dataPath,
		SampleFraction: *sampleFraction,
		Limit:          *limit,
		Delay:          *delay,
		Timeout:        *timeout,
		Seed:           *seed,
	})

	summary, err := simulator.Run(ctx)
	if err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("replay failed")
	}

	fmt.Println("=== Replay Summary ===")
	fmt.Printf("Sent:    %d\n", summary.Sent)
	fmt.Printf("Flagged: %d\n", summary.Flagged)
	fmt.Printf("Errors:  %d\n", summary.Errors)
	fmt.Println("======================")
}
