// Package main is a diagnostic tool for testing database connectivity and
// inspecting live storage data. It connects to the database, queries the users
// and files tables, and prints a summary to stdout. The binary exits with a
// non-zero code on any failure so it can be embedded in health checks or CI/CD
// pipeline steps to gate deployments on a reachable, populated database.
package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"
)

func main() {
	dbPassword := os.Getenv("DATABASE_PASSWORD")
	if dbPassword == "" {
		dbPassword = "easybits"
	}

	connStr := fmt.Sprintf("host=localhost port=5432 user=easybits password=%s dbname=easybits sslmode=disable", dbPassword)
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer db.Close()

	fmt.Println("=== USERS ===")
	rows, err := db.Query("SELECT id, email, name FROM users ORDER BY created_at")
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	defer rows.Close()

	userCount := 0
	for rows.Next() {
		var id, email, name string
		if err := rows.Scan(&id, &email, &name); err != nil {
			log.Fatalf("Scan failed: %v", err)
		}
		fmt.Printf("  %s  %s (%s)\n", id, email, name)
		userCount++
	}
	if err := rows.Err(); err != nil {
		log.Fatalf("Row iteration failed: %v", err)
	}
	fmt.Printf("Total users: %d\n\n", userCount)

	fmt.Println("=== FILES BY STATUS ===")
	statusRows, err := db.Query("SELECT status, COUNT(*), COALESCE(SUM(size), 0) FROM files GROUP BY status ORDER BY status")
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	defer statusRows.Close()

	for statusRows.Next() {
		var status string
		var count int
		var bytes int64
		if err := statusRows.Scan(&status, &count, &bytes); err != nil {
			log.Fatalf("Scan failed: %v", err)
		}
		fmt.Printf("  %-8s %6d files  %12d bytes\n", status, count, bytes)
	}
	if err := statusRows.Err(); err != nil {
		log.Fatalf("Row iteration failed: %v", err)
	}

	fmt.Println("\nDatabase check passed")
}
