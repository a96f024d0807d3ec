package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/safar/storefront/internal/config"
	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/report"
	"github.com/safar/storefront/internal/store"
)

func main() {
	dateFlag := flag.String("date", "", "report date as YYYY-MM-DD (default: yesterday)")
	flag.Parse()

	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	day := time.Now().AddDate(0, 0, -1)
	if *dateFlag != "" {
		parsed, err := time.Parse("2006-01-02", *dateFlag)
		if err != nil {
			log.Fatal().Err(err).Str("date", *dateFlag).Msg("invalid date")
		}
		day = parsed
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	summary, err := report.DailySummary(ctx, db, store.NewOrders(), day)
	if err != nil {
		log.Fatal().Err(err).Msg("build daily sales report")
	}

	log.Info().
		Str("date", summary.Date.Format("2006-01-02")).
		Int("orders", summary.OrderCount).
		Int("items_sold", summary.ItemsSold).
		Str("gross_revenue", summary.GrossRevenue.StringFixed(2)).
		Msg("daily sales report")
}
