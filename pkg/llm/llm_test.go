package llm

import (
	"strings"
	"testing"
)

func TestNewClientRequiresAPIKey(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{APIKey: "   "})
	if err == nil {
		t.Fatal("NewClient() error = nil, want missing-key error")
	}
	if !strings.Contains(err.Error(), "api key") {
		t.Fatalf("NewClient() error = %v, want api key hint", err)
	}
}

func TestNewClient(t *testing.T) {
	t.Parallel()

	client, err := NewClient(Config{
		APIKey:  "ghp_test",
		BaseURL: "https://models.github.ai/inference/",
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if client == nil {
		t.Fatal("NewClient() = nil client")
	}
}
