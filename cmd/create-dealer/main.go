package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/jafarshop/fulfillment/internal/config"
	"github.com/jafarshop/fulfillment/internal/domain"
	"github.com/jafarshop/fulfillment/internal/repository/postgres"
)

func main() {
	name := flag.String("name", "", "dealer display name (required)")
	apiKey := flag.String("api-key", "", "plaintext API key to hash and store (required)")
	window := flag.String("dispatch-window", "09:00-18:00", "daily dispatch window, HH:MM-HH:MM; may wrap midnight")
	maxDispatch := flag.Duration("max-dispatch", 2*time.Hour, "max dispatch time inside the window")
	shipping := flag.Duration("shipping", 24*time.Hour, "contractual shipping time")
	delivery := flag.Duration("delivery", 24*time.Hour, "contractual delivery time")
	noProfile := flag.Bool("no-sla-profile", false, "create the dealer without an SLA profile")
	flag.Parse()

	if *name == "" || *apiKey == "" {
		fmt.Fprintln(os.Stderr, "Usage: create-dealer -name \"Amman Parts Co\" -api-key \"dealer-key-12345\" [-dispatch-window 09:00-18:00]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	windowStart, windowEnd, ok := strings.Cut(*window, "-")
	if !ok && !*noProfile {
		fmt.Fprintf(os.Stderr, "Invalid -dispatch-window %q, want HH:MM-HH:MM\n", *window)
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	// Connect to database
	db, err := postgres.NewConnection(cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	// Hash the API key
	apiKeyHash, err := bcrypt.GenerateFromPassword([]byte(*apiKey), 10)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to hash API key: %v\n", err)
		os.Exit(1)
	}

	repos := postgres.NewRepositories(db, logger)

	dealer := &domain.Dealer{
		Name:       *name,
		APIKeyHash: string(apiKeyHash),
		IsActive:   true,
	}
	if err := repos.Dealer.Create(context.Background(), dealer); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create dealer: %v\n", err)
		os.Exit(1)
	}

	if !*noProfile {
		profile := &domain.SLAProfile{
			DealerID:            dealer.ID,
			DispatchWindowStart: windowStart,
			DispatchWindowEnd:   windowEnd,
			MaxDispatchTime:     *maxDispatch,
			ShippingTime:        *shipping,
			DeliveryTime:        *delivery,
		}
		if err := repos.Dealer.SaveSLAProfile(context.Background(), profile); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to save SLA profile: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Printf("✅ Dealer created successfully!\n\n")
	fmt.Printf("Dealer ID: %s\n", dealer.ID.String())
	fmt.Printf("Dealer Name: %s\n", dealer.Name)
	fmt.Printf("API Key: %s\n", *apiKey)
	if *noProfile {
		fmt.Printf("\n⚠️  No SLA profile: this dealer's assignments will be excluded from violation detection.\n")
	} else {
		fmt.Printf("Dispatch Window: %s\n", *window)
	}
	fmt.Printf("\n⚠️  IMPORTANT: Save this API key securely! You won't be able to see it again.\n")
	fmt.Printf("\nUse this API key in the Authorization header:\n")
	fmt.Printf("Authorization: Bearer %s\n", *apiKey)
}
