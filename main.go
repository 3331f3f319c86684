package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"marginflow/config"
	"marginflow/logger"
	"marginflow/processor"
	"marginflow/writer"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	startDate := flag.String("start", "", "First date to process (YYYYMMDD), overrides config")
	endDate := flag.String("end", "", "Last date to process (YYYYMMDD), overrides config")
	years := flag.String("years", "", "Comma-separated years to process, overrides config")
	markets := flag.String("markets", "", "Comma-separated market names, overrides config")
	units := flag.String("units", "", "Comma-separated target units, overrides config")
	workers := flag.Int("workers", 0, "Worker count, overrides config")

	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}
	applyFlags(cfg, *startDate, *endDate, *years, *markets, *units, *workers)

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Marginflow.Name,
		"version": cfg.Marginflow.Version,
	}).Info("starting marginflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Storage.S3.Enabled && cfg.Logging.DashboardName != "" {
		logger.InitCloudWatch(cfg.Storage.S3.Region, "MarginFlow", cfg.Logging.DashboardName)
	}
	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	marketDefs, err := cfg.Markets()
	if err != nil {
		log.WithError(err).Error("failed to load market definitions")
		os.Exit(1)
	}

	monthlyWriter, err := writer.NewMonthlyWriter(cfg)
	if err != nil {
		log.WithError(err).Error("failed to create writer")
		os.Exit(1)
	}

	// Cancel the run on SIGINT/SIGTERM; the current day finishes, the rest
	// is abandoned.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
		cancel()
	}()

	engine := processor.NewEngine(cfg, marketDefs, monthlyWriter)

	start := time.Now()
	runErr := engine.Run(ctx)
	if err := monthlyWriter.Close(ctx); err != nil {
		log.WithError(err).Error("failed to finalize outputs")
	}

	logger.FinalReport(ctx, log, time.Since(start))

	if runErr != nil {
		log.WithError(runErr).Error("run failed")
		os.Exit(1)
	}
}

// applyFlags lets command-line overrides win over the configuration file.
func applyFlags(cfg *config.Config, start, end, years, markets, units string, workers int) {
	if start != "" {
		cfg.Processing.StartDate = start
	}
	if end != "" {
		cfg.Processing.EndDate = end
	}
	if years != "" {
		cfg.Processing.Years = nil
		for _, y := range strings.Split(years, ",") {
			if n, err := strconv.Atoi(strings.TrimSpace(y)); err == nil {
				cfg.Processing.Years = append(cfg.Processing.Years, n)
			}
		}
	}
	if markets != "" {
		cfg.Processing.Markets = splitList(markets)
	}
	if units != "" {
		cfg.Processing.TargetUnits = splitList(units)
	}
	if workers > 0 {
		cfg.Processing.MaxWorkers = workers
	}
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
