// Batch tool for scoring a CSV of financing requests against Tamweel.
//
// Usage:
//
//	go run ./cmd/tamweel-batch -csv requests.csv -url http://localhost:8080
//
// The CSV header names the columns: profile, contract_type, loan_amount,
// duration, profitability, cashflow, equity_share, sector_risk, startup_age,
// debt_ratio and, optionally, expected (low|medium|high). contract_type may
// be a code (1-4) or a contract label.
//
// This tool:
//  1. Reads the requests
//  2. Posts each one to /assess with bounded concurrency
//  3. Prints the classification distribution and latency
//  4. When an expected column is present, prints an agreement matrix
package main

import (
	"flag"
	"fmt"
	"os"
	"time"
)

func main() {
	csvPath := flag.String("csv", "", "Path to requests CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Tamweel base URL")
	profile := flag.String("profile", "", "Profile to use when a row has none")
	limit := flag.Int("limit", 0, "Maximum requests to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: tamweel-batch -csv requests.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║              TAMWEEL BATCH - Financing Risk Scoring           ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCSV File:     %s\n", *csvPath)
	fmt.Printf("Tamweel URL:  %s\n", *baseURL)
	fmt.Printf("Workers:      %d\n", *workers)
	fmt.Printf("Limit:        %d\n", *limit)
	fmt.Println()

	client := newClient(*baseURL, 10*time.Second)

	if err := client.checkHealth(); err != nil {
		fmt.Printf("ERROR: Tamweel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Tamweel is running:")
		fmt.Println("  go run ./cmd/tamweel")
		os.Exit(1)
	}
	fmt.Println("✓ Tamweel is healthy")

	file, err := os.Open(*csvPath)
	if err != nil {
		fmt.Printf("ERROR: Failed to open CSV: %v\n", err)
		os.Exit(1)
	}
	requests, err := readRequests(file, *profile, *limit)
	file.Close()
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d requests\n", len(requests))

	fmt.Printf("\nScoring with %d workers...\n", *workers)
	start := time.Now()
	stats := run(client, requests, *workers, *verbose)

	printResults(stats, time.Since(start))
}
