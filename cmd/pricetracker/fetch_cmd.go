package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/falense/PriceTracker-sub001/internal/models"
)

// runFetch implements `fetch --all|--listing <id>|--product <id>`: drives a
// single cycle over the selected listings and prints the §7 partial-failure
// summary as JSON. Exits 0 on success, 1 if any listing failed.
func runFetch(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	all := fs.Bool("all", false, "fetch every active listing")
	listingID := fs.String("listing", "", "fetch a single listing by ID")
	productID := fs.String("product", "", "fetch every active listing for a product")
	fs.Parse(args)

	selected := 0
	for _, v := range []bool{*all, *listingID != "", *productID != ""} {
		if v {
			selected++
		}
	}
	if selected != 1 {
		fmt.Fprintln(os.Stderr, "fetch: exactly one of --all, --listing, --product is required")
		return 1
	}

	a, err := newApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fetch: %v\n", err)
		return 1
	}
	defer a.Close()

	listings, err := resolveListings(ctx, a, *all, *listingID, *productID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fetch: %v\n", err)
		return 1
	}

	summary := a.scheduler.RunOnce(ctx, listings)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		fmt.Fprintf(os.Stderr, "fetch: failed to encode summary: %v\n", err)
		return 1
	}

	if summary.Failed > 0 {
		return 1
	}
	return 0
}

func resolveListings(ctx context.Context, a *app, all bool, listingID, productID string) ([]*models.ProductListing, error) {
	switch {
	case all:
		return a.listings.ListActiveAll(ctx)
	case listingID != "":
		l, err := a.listings.GetByID(ctx, listingID)
		if err != nil {
			return nil, fmt.Errorf("lookup listing %s: %w", listingID, err)
		}
		if l == nil {
			return nil, fmt.Errorf("listing %s not found", listingID)
		}
		return []*models.ProductListing{l}, nil
	default:
		return a.listings.ListActiveByProduct(ctx, productID)
	}
}
