package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/pitwall/internal/simulator"
)

// Default configuration constants.
const (
	defaultDevices     = 20
	defaultLaps        = 50
	defaultSectors     = 3
	defaultDeletePct   = 5
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultTimeout     = 30 * time.Second
	defaultTestTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the service")
		sessionID  = flag.String("session", "load-test", "Session id to join and feed")
		devices    = flag.Int("devices", defaultDevices, "Number of simulated devices")
		laps       = flag.Int("laps", defaultLaps, "Laps generated per device")
		sectors    = flag.Int("sectors", defaultSectors, "Sectors per lap")
		deletePct  = flag.Int("delete", defaultDeletePct, "Percentage of timed events retracted after submission")
		workers    = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		outputFile = flag.String("output", "", "Output file for generated events (default: generated_events_TIMESTAMP.json)")
		logFile    = flag.String("log", "", "Log file for test output (default: timing_test_TIMESTAMP.log)")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		simulator.ShowHelp()
		return
	}

	// Setup logging
	if err := simulator.SetupLogging(*logFile); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		return
	}

	// Create context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), defaultTestTimeout)
	defer cancel()

	// Create test configuration
	config := &simulator.Config{
		BaseURL:       *baseURL,
		SessionID:     *sessionID,
		NumDevices:    *devices,
		LapsPerDevice: *laps,
		Sectors:       *sectors,
		DeletePercent: *deletePct,
		Workers:       *workers,
		Timeout:       *timeout,
		OutputFile:    *outputFile,
		LogFile:       *logFile,
		Verbose:       *verbose,
	}

	// Run the test
	if err := simulator.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Test failed: " + err.Error() + "\n")
		return
	}
}
