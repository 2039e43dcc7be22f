// Package main is a utility for computing the stored hash of a raw API key.
// The server stores only SHA-256 digests of API keys — never the raw key
// values — so this tool is used when manually seeding or verifying API key
// records in the database without running the full server. Running it with a
// raw key produces the digest that belongs in the api_keys.key_hash column.
package main

import (
	"fmt"
	"os"

	"github.com/easybits/easybits/internal/auth"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: hash <raw-api-key>")
		os.Exit(1)
	}
	fmt.Println(auth.HashAPIKey(os.Args[1]))
}
