package main

import (
	"io"
	"log/slog"
	"slices"
	"testing"

	"github.com/smartdiet/smartdiet/internal/config"
	"github.com/smartdiet/smartdiet/internal/document"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewSecretBox(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		cfg     config.Config
		wantErr bool
	}{
		{"configured", config.Config{Env: "production", Webhooks: config.Webhooks{EncryptionKey: "k"}}, false},
		{"ephemeral in development", config.Config{Env: "development"}, false},
		{"missing in staging", config.Config{Env: "staging"}, true},
		{"missing in production", config.Config{Env: "production"}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			box, err := newSecretBox(&tc.cfg, quietLogger())
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("newSecretBox: %v", err)
			}
			sealed, err := box.Seal("whsec_sample")
			if err != nil {
				t.Fatalf("Seal: %v", err)
			}
			if got, err := box.Open(sealed); err != nil || got != "whsec_sample" {
				t.Errorf("Open = %q, %v", got, err)
			}
		})
	}
}

func TestNewVault(t *testing.T) {
	t.Parallel()

	_, recipient, err := document.GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity: %v", err)
	}

	testCases := []struct {
		name     string
		docs     config.Documents
		env      string
		wantErr  bool
		wantOpen bool
	}{
		{"ephemeral in development", config.Documents{Compression: "zstd"}, "development", false, true},
		{"seal only", config.Documents{Recipient: recipient, Compression: "none"}, "production", false, false},
		{"missing keys in production", config.Documents{Compression: "zstd"}, "production", true, false},
		{"bad recipient", config.Documents{Recipient: "age1nope", Compression: "zstd"}, "production", true, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := &config.Config{Env: tc.env, Documents: tc.docs}
			vault, err := newVault(cfg, quietLogger())
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("newVault: %v", err)
			}
			if vault.CanOpen() != tc.wantOpen {
				t.Errorf("CanOpen = %v, want %v", vault.CanOpen(), tc.wantOpen)
			}
		})
	}
}

func TestCloseStack(t *testing.T) {
	t.Parallel()

	t.Run("release closes in reverse order once", func(t *testing.T) {
		t.Parallel()

		var closed []string
		var c closeStack
		c.push(func() { closed = append(closed, "postgres") })
		c.push(func() { closed = append(closed, "webhook-db") })
		c.push(func() { closed = append(closed, "redis") })

		c.release()
		c.release()

		want := []string{"redis", "webhook-db", "postgres"}
		if !slices.Equal(closed, want) {
			t.Errorf("closed = %v, want %v", closed, want)
		}
	})

	t.Run("disarmed stack closes nothing", func(t *testing.T) {
		t.Parallel()

		calls := 0
		var c closeStack
		c.push(func() { calls++ })
		c.disarm()
		c.release()

		if calls != 0 {
			t.Errorf("disarmed stack ran %d cleanups", calls)
		}
	})
}
