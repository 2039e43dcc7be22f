package auth

import (
	"strings"
	"testing"
)

func TestGenerateAPIKey(t *testing.T) {
	t.Run("returns three non-empty values", func(t *testing.T) {
		key, hash, prefix, err := GenerateAPIKey()
		if err != nil {
			t.Fatalf("GenerateAPIKey() error: %v", err)
		}
		if key == "" {
			t.Error("GenerateAPIKey() returned empty key")
		}
		if hash == "" {
			t.Error("GenerateAPIKey() returned empty hash")
		}
		if prefix == "" {
			t.Error("GenerateAPIKey() returned empty displayPrefix")
		}
	})

	t.Run("key starts with the fixed prefix", func(t *testing.T) {
		key, _, _, err := GenerateAPIKey()
		if err != nil {
			t.Fatalf("GenerateAPIKey() error: %v", err)
		}
		if !strings.HasPrefix(key, KeyPrefix) {
			t.Errorf("GenerateAPIKey() key = %q, want prefix %q", key, KeyPrefix)
		}
	})

	t.Run("display prefix matches key start", func(t *testing.T) {
		key, _, displayPrefix, err := GenerateAPIKey()
		if err != nil {
			t.Fatalf("GenerateAPIKey() error: %v", err)
		}
		if !strings.HasPrefix(key, displayPrefix) {
			t.Errorf("key %q does not start with displayPrefix %q", key, displayPrefix)
		}
	})

	t.Run("display prefix length is capped", func(t *testing.T) {
		_, _, displayPrefix, err := GenerateAPIKey()
		if err != nil {
			t.Fatalf("GenerateAPIKey() error: %v", err)
		}
		if len(displayPrefix) > DisplayPrefixLength {
			t.Errorf("displayPrefix len = %d, want <= %d", len(displayPrefix), DisplayPrefixLength)
		}
	})

	t.Run("hash is the digest of the raw key", func(t *testing.T) {
		key, hash, _, err := GenerateAPIKey()
		if err != nil {
			t.Fatalf("GenerateAPIKey() error: %v", err)
		}
		if HashAPIKey(key) != hash {
			t.Error("stored hash does not match HashAPIKey(raw)")
		}
	})

	t.Run("two calls produce different keys and hashes", func(t *testing.T) {
		key1, hash1, _, _ := GenerateAPIKey()
		key2, hash2, _, _ := GenerateAPIKey()
		if key1 == key2 {
			t.Error("GenerateAPIKey() produced identical keys on consecutive calls")
		}
		if hash1 == hash2 {
			t.Error("GenerateAPIKey() produced identical hashes on consecutive calls")
		}
	})
}

func TestHashAPIKey_Deterministic(t *testing.T) {
	a := HashAPIKey("eb_sk_live_example")
	b := HashAPIKey("eb_sk_live_example")
	if a != b {
		t.Errorf("HashAPIKey not deterministic: %q vs %q", a, b)
	}
	if len(a) != 64 {
		t.Errorf("HashAPIKey length = %d, want 64 hex chars", len(a))
	}
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{"valid header", "Bearer eb_sk_live_abc", "eb_sk_live_abc", false},
		{"empty header", "", "", true},
		{"missing Bearer prefix", "eb_sk_live_abc", "", true},
		{"empty token", "Bearer ", "", true},
		{"whitespace token", "Bearer    ", "", true},
		{"trims surrounding space", "Bearer  eb_sk_live_abc ", "eb_sk_live_abc", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractBearerToken(tt.header)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ExtractBearerToken(%q) error = %v, wantErr %v", tt.header, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ExtractBearerToken(%q) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}
