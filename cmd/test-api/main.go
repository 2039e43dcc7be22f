// Package main is a smoke-test utility that verifies the EasyBits HTTP API is
// reachable and returning valid responses. It hits the health endpoint and,
// when an API key is provided, a files listing, then prints the status code
// and response body. Useful for quick post-deployment checks without needing
// external tooling like curl or a full integration test suite.
package main

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"
)

func main() {
	baseURL := os.Getenv("EASYBITS_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	client := &http.Client{Timeout: 10 * time.Second}

	fetch(client, baseURL+"/api/health", "")

	if apiKey := os.Getenv("EASYBITS_API_KEY"); apiKey != "" {
		fetch(client, baseURL+"/api/v2/files?limit=5", apiKey)
	} else {
		fmt.Println("EASYBITS_API_KEY not set, skipping authenticated check")
	}
}

func fetch(client *http.Client, url, apiKey string) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		log.Fatalf("Failed to create request: %v", err)
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("Request to %s failed: %v", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("Failed to read response body: %v", err)
	}

	fmt.Printf("GET %s\n", url)
	fmt.Printf("Status: %d\n", resp.StatusCode)
	fmt.Printf("Body: %s\n\n", string(body))

	if resp.StatusCode >= 400 {
		os.Exit(1)
	}
}
