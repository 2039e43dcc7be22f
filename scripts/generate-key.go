// Package main is a development utility for generating a test API key with its
// SHA-256 hash and display prefix pre-computed. It prints the raw key, hash,
// prefix, and a ready-to-run SQL UPDATE statement so developers can quickly
// seed a usable API key in a local database without running the full server
// flow. Do not use generated keys in production — create keys through the
// dashboard or the /api/v2/keys endpoint so they get proper expiry and scopes.
package main

import (
	"fmt"
	"log"

	"github.com/easybits/easybits/internal/auth"
)

func main() {
	fullKey, hash, displayPrefix, err := auth.GenerateAPIKey()
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("==========================================================")
	fmt.Println("API Key Generated")
	fmt.Println("==========================================================")
	fmt.Printf("\nFull Key: %s\n", fullKey)
	fmt.Printf("\nHash: %s\n", hash)
	fmt.Printf("\nDisplay Prefix: %s\n", displayPrefix)
	fmt.Println("\n==========================================================")
	fmt.Println("SQL Update:")
	fmt.Println("==========================================================")
	fmt.Printf(`
UPDATE api_keys
SET key_hash = '%s',
    key_prefix = '%s'
WHERE user_id = (SELECT id FROM users WHERE email = 'admin@dev.local');
`, hash, displayPrefix)
	fmt.Println("\n==========================================================")
	fmt.Printf("Authorization Header: Bearer %s\n", fullKey)
	fmt.Println("==========================================================")
}
