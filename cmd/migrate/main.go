package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"huntcall/config"
	"huntcall/internal/repository"
	"huntcall/pkg/database"
)

const usage = `
Hunt Call - Database CLI Tool

Usage:
  migrate [command] [flags]

Commands:
  up          Create every call table and index
  down        Drop every call table
  status      Show database connection status and row counts
  reset       Drop all tables and re-create them (DANGEROUS)
  truncate    Truncate all tables (DANGEROUS)

Flags:
  -timeout duration   Bound for the whole command (default 30s)

Examples:
  go run cmd/migrate/main.go up
  go run cmd/migrate/main.go status
  go run cmd/migrate/main.go reset
`

func main() {
	timeout := flag.Duration("timeout", 30*time.Second, "Bound for the whole command")

	flag.Usage = func() {
		fmt.Print(usage)
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	command := flag.Arg(0)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	// Load config and connect to database
	cfg := config.LoadConfig()
	db, err := database.Connect(ctx, cfg)
	if err != nil {
		log.Fatalf("❌ Database connection failed: %v", err)
	}
	defer db.Close()

	switch command {
	case "up":
		runMigrationsUp(ctx, db)
	case "down":
		runMigrationsDown(ctx, db)
	case "status":
		showStatus(ctx, db)
	case "reset":
		runReset(ctx, db)
	case "truncate":
		runTruncate(ctx, db)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}

func runMigrationsUp(ctx context.Context, db *sql.DB) {
	log.Println("🚀 Running migrations UP...")

	if err := repository.InitSchema(ctx, db); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}

	log.Println("✅ Migrations completed successfully!")
}

func runMigrationsDown(ctx context.Context, db *sql.DB) {
	log.Println("⬇️  Rolling back migrations...")

	if err := repository.DropSchema(ctx, db); err != nil {
		log.Fatalf("❌ Rollback failed: %v", err)
	}

	log.Println("✅ Rollback completed successfully!")
}

func showStatus(ctx context.Context, db *sql.DB) {
	log.Println("🔍 Checking database status...")

	if err := database.Ping(ctx, db); err != nil {
		log.Fatalf("❌ Database connection failed: %v", err)
	}
	log.Println("✅ Database connection: OK")

	for _, table := range repository.Tables {
		exists, err := database.TableExists(ctx, db, table)
		if err != nil {
			log.Printf("⚠️  Error checking table %s: %v", table, err)
			continue
		}
		if exists {
			count, _ := database.GetTableCount(ctx, db, table)
			log.Printf("✅ Table %-20s exists (%d rows)", table, count)
		} else {
			log.Printf("❌ Table %-20s does not exist", table)
		}
	}

	// Health check
	if err := database.HealthCheck(ctx, db); err != nil {
		log.Printf("⚠️  Health check warning: %v", err)
	} else {
		log.Println("✅ Health check: PASSED")
	}
}

func runReset(ctx context.Context, db *sql.DB) {
	log.Println("⚠️  WARNING: This will DROP all tables and re-create them!")

	log.Println("🗑️  Dropping all tables...")
	if err := repository.DropSchema(ctx, db); err != nil {
		log.Fatalf("❌ Failed to drop tables: %v", err)
	}

	log.Println("🚀 Running migrations...")
	if err := repository.InitSchema(ctx, db); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}

	log.Println("✅ Database reset completed!")
}

func runTruncate(ctx context.Context, db *sql.DB) {
	log.Println("⚠️  WARNING: This will TRUNCATE all tables!")

	if err := repository.TruncateAll(ctx, db); err != nil {
		log.Fatalf("❌ Truncate failed: %v", err)
	}

	log.Println("✅ All tables truncated!")
}
