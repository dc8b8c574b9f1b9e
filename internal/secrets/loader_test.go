package secrets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "key")
	if err := os.WriteFile(file, []byte("  from-file\n"), 0o600); err != nil {
		t.Fatalf("writing key: %v", err)
	}
	t.Setenv("JOB_RADAR_TEST_KEY", "from-env")

	tests := []struct {
		name   string
		src    Source
		expect string
	}{
		{name: "file wins", src: Source{File: file, Env: "JOB_RADAR_TEST_KEY", Value: "inline"}, expect: "from-file"},
		{name: "env before inline", src: Source{Env: "JOB_RADAR_TEST_KEY", Value: "inline"}, expect: "from-env"},
		{name: "inline", src: Source{Value: " inline "}, expect: "inline"},
		{name: "unset env falls through", src: Source{Env: "JOB_RADAR_UNSET_KEY", Value: "inline"}, expect: "inline"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Load(tt.src)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expect {
				t.Fatalf("expected %q, got %q", tt.expect, got)
			}
		})
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty")
	if err := os.WriteFile(empty, []byte("\n"), 0o600); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	if _, err := Load(Source{Name: "gemini api key"}); err == nil || !strings.Contains(err.Error(), "gemini api key is not configured") {
		t.Fatalf("expected not configured error, got %v", err)
	}

	if _, err := Load(Source{File: empty}); err == nil || !strings.Contains(err.Error(), "is empty") {
		t.Fatalf("expected empty file error, got %v", err)
	}

	if _, err := Load(Source{File: filepath.Join(dir, "missing")}); err == nil {
		t.Fatalf("expected error for missing file")
	}

	got, err := Optional(Source{Name: "token"})
	if err != nil || got != "" {
		t.Fatalf("expected empty optional secret, got %q, %v", got, err)
	}
}
