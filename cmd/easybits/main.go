// Package main is the easybits command line client. It talks to an EasyBits
// server through pkg/sdk using an API key persisted in ~/.easybitsrc, and can
// emit ready-to-paste MCP server configuration for agent runtimes.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/easybits/easybits/pkg/sdk"
)

var version = "2.0.0"

const (
	rcFileName     = ".easybitsrc"
	defaultBaseURL = "http://localhost:8080"
)

// rcFile is the persisted CLI credential file.
type rcFile struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "easybits: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		printUsage()
		return nil
	}

	switch args[0] {
	case "login":
		return cmdLogin(args[1:])
	case "files":
		return cmdFiles(args[1:])
	case "providers":
		return cmdProviders(args[1:])
	case "usage":
		return cmdUsage()
	case "config":
		return cmdConfig()
	case "mcp":
		return cmdMCP()
	case "version":
		fmt.Printf("easybits %s\n", version)
		return nil
	case "help", "-h", "--help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printUsage() {
	fmt.Print(`Usage: easybits <command> [arguments]

Commands:
  login <api-key> [base-url]   save credentials to ~/.easybitsrc
  files list                   list your files
  files upload <path>          upload a local file
  files delete <file-id>       soft-delete a file
  providers list               list your storage providers
  usage                        show aggregate storage usage
  config                       print MCP server config (HTTP transport)
  mcp                          print MCP server config (stdio bridge)
  version                      print the CLI version
`)
}

func cmdLogin(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: easybits login <api-key> [base-url]")
	}
	rc := rcFile{APIKey: args[0], BaseURL: defaultBaseURL}
	if len(args) > 1 {
		rc.BaseURL = args[1]
	}

	client := sdk.New(rc.BaseURL, rc.APIKey)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := client.GetUsage(ctx); err != nil {
		return fmt.Errorf("key check against %s failed: %w", rc.BaseURL, err)
	}

	path, err := saveRC(rc)
	if err != nil {
		return err
	}
	fmt.Printf("Logged in. Credentials saved to %s\n", path)
	return nil
}

func cmdFiles(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: easybits files list|upload|delete")
	}
	client, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	switch args[0] {
	case "list":
		page, err := client.ListFiles(ctx, sdk.ListFilesOptions{})
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSIZE\tSTATUS\tCREATED")
		for _, f := range page.Files {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", f.ID, f.Name, f.Size, f.Status, f.CreatedAt.Format(time.RFC3339))
		}
		return w.Flush()

	case "upload":
		if len(args) < 2 {
			return fmt.Errorf("usage: easybits files upload <path>")
		}
		f, err := os.Open(args[1])
		if err != nil {
			return err
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			return err
		}
		file, err := client.Upload(ctx, sdk.UploadInput{
			Name: filepath.Base(args[1]),
			Size: info.Size(),
			Body: f,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Uploaded %s (%d bytes) as %s\n", file.Name, file.Size, file.ID)
		return nil

	case "delete":
		if len(args) < 2 {
			return fmt.Errorf("usage: easybits files delete <file-id>")
		}
		if err := client.DeleteFile(ctx, args[1]); err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", args[1])
		return nil

	default:
		return fmt.Errorf("unknown files subcommand %q", args[0])
	}
}

func cmdProviders(args []string) error {
	if len(args) == 0 || args[0] != "list" {
		return fmt.Errorf("usage: easybits providers list")
	}
	client, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	providers, err := client.ListProviders(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTYPE\tBUCKET\tDEFAULT")
	for _, p := range providers {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n", p.ID, p.Name, p.Type, p.Bucket, p.IsDefault)
	}
	return w.Flush()
}

func cmdUsage() error {
	client, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	usage, err := client.GetUsage(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Files:   %d\n", usage.FileCount)
	fmt.Printf("Bytes:   %d\n", usage.TotalBytes)
	fmt.Printf("Deleted: %d\n", usage.DeletedCount)
	return nil
}

// cmdConfig prints MCP server configuration for agent runtimes that speak
// streamable HTTP directly to the server's /api/mcp endpoint.
func cmdConfig() error {
	rc, err := loadRC()
	if err != nil {
		return err
	}
	cfg := map[string]any{
		"mcpServers": map[string]any{
			"easybits": map[string]any{
				"type": "http",
				"url":  rc.BaseURL + "/api/mcp",
				"headers": map[string]string{
					"Authorization": "Bearer " + rc.APIKey,
				},
			},
		},
	}
	return printJSON(cfg)
}

// cmdMCP prints MCP server configuration for stdio-only agent runtimes,
// bridging to the HTTP endpoint through mcp-remote.
func cmdMCP() error {
	rc, err := loadRC()
	if err != nil {
		return err
	}
	cfg := map[string]any{
		"mcpServers": map[string]any{
			"easybits": map[string]any{
				"command": "npx",
				"args": []string{
					"-y", "mcp-remote",
					rc.BaseURL + "/api/mcp",
					"--header", "Authorization: Bearer " + rc.APIKey,
				},
			},
		},
	}
	return printJSON(cfg)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newClient() (*sdk.Client, error) {
	rc, err := loadRC()
	if err != nil {
		return nil, err
	}
	return sdk.New(rc.BaseURL, rc.APIKey), nil
}

func rcPath() (string, error) {
	if p := os.Getenv("EASYBITS_RC"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, rcFileName), nil
}

func loadRC() (*rcFile, error) {
	path, err := rcPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("not logged in, run: easybits login <api-key>")
		}
		return nil, err
	}
	var rc rcFile
	if err := json.Unmarshal(data, &rc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if rc.APIKey == "" {
		return nil, fmt.Errorf("no API key in %s, run: easybits login <api-key>", path)
	}
	if rc.BaseURL == "" {
		rc.BaseURL = defaultBaseURL
	}
	return &rc, nil
}

func saveRC(rc rcFile) (string, error) {
	path, err := rcPath()
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(rc, "", "  ")
	if err != nil {
		return "", err
	}
	// The file holds a live API key, so keep it owner-readable only.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
