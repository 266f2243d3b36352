package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var code int
	switch os.Args[1] {
	case "fetch":
		code = runFetch(ctx, os.Args[2:])
	case "activate-latest-extractors":
		code = runActivateLatestExtractors(ctx, os.Args[2:])
	case "backfill-extractor-stats":
		code = runBackfillExtractorStats(ctx, os.Args[2:])
	case "-h", "--help", "help":
		usage()
		code = 0
	default:
		fmt.Fprintf(os.Stderr, "pricetracker: unknown command %q\n\n", os.Args[1])
		usage()
		code = 1
	}
	os.Exit(code)
}

func usage() {
	fmt.Fprintln(os.Stderr, `pricetracker is the Operator CLI for the price tracking service.

Usage:

  pricetracker fetch --all
  pricetracker fetch --listing <id>
  pricetracker fetch --product <id>
  pricetracker activate-latest-extractors [--dry-run]
  pricetracker backfill-extractor-stats [--dry-run]`)
}
