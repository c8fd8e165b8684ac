// Command checkdb prints the latest posts, journaled events and search
// documents. With -fix it returns events stuck in processing to new.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/config"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/infrastructure/postgres"
)

func main() {
	fix := flag.Bool("fix", false, "reset processing outbox events to new")
	limit := flag.Int("limit", 5, "rows to print per table")
	flag.Parse()

	cfg, err := config.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to load config: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := postgres.NewClient(ctx, postgres.Config{
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		DBName:   cfg.Postgres.DBName,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	if *fix {
		n, err := postgres.NewOutboxRepository(pool).ResetProcessing(ctx)
		if err != nil {
			fmt.Printf("Fix failed: %v\n", err)
		} else {
			fmt.Printf("Fixed %d events\n", n)
		}
	}

	fmt.Println("--- Posts ---")
	rows, err := pool.Query(ctx, "SELECT id, user_id, created_at FROM posts ORDER BY created_at DESC LIMIT $1", *limit)
	printRows(rows, err, func(rows pgx.Rows) error {
		var id, userID string
		var createdAt time.Time
		if err := rows.Scan(&id, &userID, &createdAt); err != nil {
			return err
		}
		fmt.Printf("ID: %s | User: %s | Created: %s\n", id, userID, createdAt.Format(time.RFC3339))
		return nil
	})

	fmt.Println("\n--- Outbox ---")
	rows, err = pool.Query(ctx, "SELECT id, status, event_type, COALESCE(last_error, '') FROM outbox ORDER BY created_at DESC LIMIT $1", *limit)
	printRows(rows, err, func(rows pgx.Rows) error {
		var id, status, eventType, lastError string
		if err := rows.Scan(&id, &status, &eventType, &lastError); err != nil {
			return err
		}
		fmt.Printf("ID: %s | Status: %s | Type: %s | Error: %s\n", id, status, eventType, lastError)
		return nil
	})

	fmt.Println("\n--- Search documents ---")
	rows, err = pool.Query(ctx, "SELECT post_id, deleted_at IS NOT NULL FROM search_documents ORDER BY created_at DESC LIMIT $1", *limit)
	printRows(rows, err, func(rows pgx.Rows) error {
		var postID string
		var deleted bool
		if err := rows.Scan(&postID, &deleted); err != nil {
			return err
		}
		fmt.Printf("Post: %s | Tombstoned: %t\n", postID, deleted)
		return nil
	})
}

func printRows(rows pgx.Rows, err error, print func(pgx.Rows) error) {
	if err != nil {
		fmt.Printf("Query failed: %v\n", err)
		return
	}
	defer rows.Close()
	for rows.Next() {
		if err := print(rows); err != nil {
			fmt.Printf("Scan failed: %v\n", err)
			return
		}
	}
	if err := rows.Err(); err != nil {
		fmt.Printf("Read failed: %v\n", err)
	}
}
