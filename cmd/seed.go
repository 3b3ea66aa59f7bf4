package cmd

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vibast-solutions/ms-go-billing/app/entity"
	"github.com/vibast-solutions/ms-go-billing/app/repository"
	"github.com/vibast-solutions/ms-go-billing/config"
)

var seedFile string

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Run catalog related commands",
}

var catalogSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Upsert plans and prices from a JSON file",
	Run:   runCatalogSeed,
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogSeedCmd)

	catalogSeedCmd.Flags().StringVar(&seedFile, "file", "catalog.json", "Path to the catalog JSON file")
}

type seedPrice struct {
	ID            string            `json:"id"`
	AmountCents   int64             `json:"amount_cents"`
	Currency      string            `json:"currency"`
	Interval      string            `json:"interval"`
	IntervalCount int32             `json:"interval_count"`
	ProviderRefs  map[string]string `json:"provider_refs"`
	Default       bool              `json:"default"`
	Active        *bool             `json:"active"`
}

type seedPlan struct {
	ID     string      `json:"id"`
	Name   string      `json:"name"`
	Active *bool       `json:"active"`
	Prices []seedPrice `json:"prices"`
}

type seedCatalog struct {
	Plans []seedPlan `json:"plans"`
}

func runCatalogSeed(_ *cobra.Command, _ []string) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	data, err := os.ReadFile(seedFile)
	if err != nil {
		logrus.WithError(err).WithField("file", seedFile).Fatal("Failed to read catalog file")
	}

	var catalog seedCatalog
	if err := json.Unmarshal(data, &catalog); err != nil {
		logrus.WithError(err).Fatal("Failed to parse catalog file")
	}

	db := mustOpenDatabase(cfg)
	defer db.Close()

	store := repository.NewBillingStore(db)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, p := range catalog.Plans {
		if p.ID == "" {
			logrus.WithField("plan", p.Name).Fatal("plan id is required")
		}
		plan := &entity.Plan{
			ID:        p.ID,
			Name:      p.Name,
			Active:    p.Active == nil || *p.Active,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := store.UpsertPlan(ctx, plan); err != nil {
			logrus.WithError(err).WithField("plan_id", plan.ID).Fatal("Failed to upsert plan")
		}

		for _, pr := range p.Prices {
			price := &entity.Price{
				ID:            pr.ID,
				PlanID:        plan.ID,
				AmountCents:   pr.AmountCents,
				Currency:      pr.Currency,
				Interval:      pr.Interval,
				IntervalCount: pr.IntervalCount,
				ProviderRefs:  pr.ProviderRefs,
				Default:       pr.Default,
				Active:        pr.Active == nil || *pr.Active,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if price.ID == "" {
				price.ID = uuid.NewString()
			}
			if price.IntervalCount <= 0 {
				price.IntervalCount = 1
			}
			if err := store.UpsertPrice(ctx, price); err != nil {
				logrus.WithError(err).WithField("price_id", price.ID).Fatal("Failed to upsert price")
			}
		}

		logrus.WithField("plan_id", plan.ID).WithField("prices", len(p.Prices)).Info("plan_seeded")
	}

	logrus.WithField("plans", len(catalog.Plans)).Info("catalog_seeded")
}
