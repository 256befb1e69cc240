// dbhealth checks that the catalog database is reachable and carries the
// service schema. It uses database/sql so it works without the pgx pool.
//
// Usage:
//
//	go run ./cmd/dbhealth [-config config.yaml]
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/phototag/catalog-service/config"
)

var requiredTables = []string{"images", "jobs", "work_items"}

func main() {
	cfgFile := flag.String("config", "", "config file")
	timeout := flag.Duration("timeout", 5*time.Second, "check timeout")
	flag.Parse()

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Config error:", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := check(ctx, cfg.Database.URL); err != nil {
		fmt.Fprintln(os.Stderr, "Unhealthy:", err)
		os.Exit(1)
	}
	fmt.Println("Database healthy")
}

func check(ctx context.Context, url string) error {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}

	missing, err := missingTables(ctx, db)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("schema not applied, missing tables: %v", missing)
	}
	return nil
}

func missingTables(ctx context.Context, db *sql.DB) ([]string, error) {
	var missing []string
	for _, table := range requiredTables {
		var exists bool
		err := db.QueryRowContext(ctx, `SELECT to_regclass($1) IS NOT NULL`, "public."+table).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("check table %s: %w", table, err)
		}
		if !exists {
			missing = append(missing, table)
		}
	}
	return missing, nil
}
