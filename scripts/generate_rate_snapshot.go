//go:build ignore

// Writes a gzip-compressed shipping rate snapshot that the service falls back
// to when the shop API has no rates.
//
//	go run scripts/generate_rate_snapshot.go [output]
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"kart-checkout/internal/model"

	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
)

func main() {
	out := "data/shipping/rates.json.gz"
	if len(os.Args) > 1 {
		out = os.Args[1]
	}

	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		log.Fatalf("Failed to create directory: %v", err)
	}

	rates := []model.ShippingRate{
		{Country: "Österreich", Rate: decimal.RequireFromString("5.90"), FreeShippingThreshold: decimal.RequireFromString("50.00")},
		{Country: "Deutschland", Rate: decimal.RequireFromString("9.90"), FreeShippingThreshold: decimal.RequireFromString("100.00")},
		{Country: "Schweiz", Rate: decimal.RequireFromString("19.90"), FreeShippingThreshold: decimal.Zero},
		{Country: "Italien", Rate: decimal.RequireFromString("12.90"), FreeShippingThreshold: decimal.RequireFromString("150.00")},
		{Country: "Frankreich", Rate: decimal.RequireFromString("12.90"), FreeShippingThreshold: decimal.RequireFromString("150.00")},
		{Country: "Niederlande", Rate: decimal.RequireFromString("12.90"), FreeShippingThreshold: decimal.RequireFromString("150.00")},
		{Country: "Belgien", Rate: decimal.RequireFromString("12.90"), FreeShippingThreshold: decimal.RequireFromString("150.00")},
	}

	f, err := os.Create(out)
	if err != nil {
		log.Fatalf("Failed to create %s: %v", out, err)
	}
	defer f.Close()

	gz := pgzip.NewWriter(f)
	if err := json.NewEncoder(gz).Encode(rates); err != nil {
		log.Fatalf("Failed to encode rates: %v", err)
	}
	if err := gz.Close(); err != nil {
		log.Fatalf("Failed to finish %s: %v", out, err)
	}

	fmt.Printf("Wrote %d shipping rates to %s\n", len(rates), out)
}
