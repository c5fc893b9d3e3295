package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := `
# upstream overrides
OTCROUTER_TEST_URL = https://example.com/v6
OTCROUTER_TEST_SIZE=750

not a key value line
OTCROUTER_TEST_PRESET=from-file
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	t.Setenv("OTCROUTER_TEST_PRESET", "from-env")
	t.Cleanup(func() {
		os.Unsetenv("OTCROUTER_TEST_URL")
		os.Unsetenv("OTCROUTER_TEST_SIZE")
	})

	if err := LoadEnv(path); err != nil {
		t.Fatalf("LoadEnv failed: %v", err)
	}

	if got := os.Getenv("OTCROUTER_TEST_URL"); got != "https://example.com/v6" {
		t.Errorf("URL = %q", got)
	}
	if got := os.Getenv("OTCROUTER_TEST_SIZE"); got != "750" {
		t.Errorf("SIZE = %q", got)
	}
	// Existing environment wins over the file.
	if got := os.Getenv("OTCROUTER_TEST_PRESET"); got != "from-env" {
		t.Errorf("PRESET = %q, want from-env", got)
	}
}

func TestLoadEnvMissingFileIsNotAnError(t *testing.T) {
	if err := LoadEnv(filepath.Join(t.TempDir(), "does-not-exist")); err != nil {
		t.Errorf("missing file should be tolerated, got %v", err)
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("OTCROUTER_TEST_STR", "hello")
	t.Setenv("OTCROUTER_TEST_INT", "8080")
	t.Setenv("OTCROUTER_TEST_FLOAT", "1.5")
	t.Setenv("OTCROUTER_TEST_DUR", "45s")
	t.Setenv("OTCROUTER_TEST_BAD", "not-a-number")

	if got := envString("OTCROUTER_TEST_STR", "def"); got != "hello" {
		t.Errorf("envString = %q", got)
	}
	if got := envString("OTCROUTER_TEST_UNSET", "def"); got != "def" {
		t.Errorf("envString default = %q", got)
	}
	if got := envInt("OTCROUTER_TEST_INT", 1); got != 8080 {
		t.Errorf("envInt = %d", got)
	}
	if got := envInt("OTCROUTER_TEST_BAD", 7); got != 7 {
		t.Errorf("envInt on junk = %d, want default", got)
	}
	if got := envFloat("OTCROUTER_TEST_FLOAT", 0); got != 1.5 {
		t.Errorf("envFloat = %g", got)
	}
	if got := envDuration("OTCROUTER_TEST_DUR", time.Second); got != 45*time.Second {
		t.Errorf("envDuration = %s", got)
	}
	if got := envDuration("OTCROUTER_TEST_BAD", time.Second); got != time.Second {
		t.Errorf("envDuration on junk = %s, want default", got)
	}
}
