package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestEncodeDecode(t *testing.T) {
	out, err := run(t, "encode", "AC_DC", "Back In Black")
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	token := strings.TrimSpace(out)
	if token != "lyrics__AC%5FDC__Back+In+Black" {
		t.Errorf("Unexpected token %q", token)
	}

	out, err = run(t, "decode", "--json", token)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode output is not JSON: %v", err)
	}
	if got["artist"] != "AC_DC" || got["title"] != "Back In Black" {
		t.Errorf("Unexpected decode result %v", got)
	}
}

func TestDecodeRejectsBadToken(t *testing.T) {
	if _, err := run(t, "decode", "not-a-token"); err == nil {
		t.Error("Expected error for malformed token")
	}
}

func TestExtract(t *testing.T) {
	out, err := run(t, "extract", "--json", "--bot", "@LyricsBridgeBot", "--caption", "Queen - Bohemian Rhapsody [Remastered]")
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("extract output is not JSON: %v", err)
	}
	if got["artist"] != "Queen" || got["title"] != "Bohemian Rhapsody" {
		t.Errorf("Unexpected extraction %v", got)
	}
	if got["link"] != "https://t.me/LyricsBridgeBot?start=lyrics__Queen__Bohemian+Rhapsody" {
		t.Errorf("Unexpected link %q", got["link"])
	}
}

func TestArgValidation(t *testing.T) {
	for _, args := range [][]string{
		{"encode", "only-artist"},
		{"lyrics"},
		{"translate"},
		{"extract", "positional"},
	} {
		if _, err := run(t, args...); err == nil {
			t.Errorf("Expected usage error for %v", args)
		}
	}
}

func TestSweepEmptyCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	out, err := run(t, "sweep", "--backend", "sqlite", "--cache-path", path)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if strings.TrimSpace(out) != "deleted 0 expired entries" {
		t.Errorf("Unexpected output %q", out)
	}
}
