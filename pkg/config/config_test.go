package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type sample struct {
	Name    string        `yaml:"name" toml:"name"`
	Port    int           `yaml:"port" toml:"port"`
	Timeout time.Duration `yaml:"timeout" toml:"timeout"`
}

func (s *sample) Validate() error {
	if s.Port <= 0 {
		return errors.New("port must be positive")
	}
	return nil
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadYAMLExpandsEnv(t *testing.T) {
	t.Setenv("WG_TEST_NAME", "graph")
	path := writeFile(t, "c.yaml", "name: ${WG_TEST_NAME}\nport: 8080\ntimeout: 5s\n")

	var s sample
	if err := Load(path, &s); err != nil {
		t.Fatal(err)
	}
	if s.Name != "graph" || s.Port != 8080 || s.Timeout != 5*time.Second {
		t.Errorf("loaded = %+v", s)
	}
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "c.toml", "name = \"graph\"\nport = 9090\ntimeout = \"2s\"\n")

	var s sample
	if err := Load(path, &s); err != nil {
		t.Fatal(err)
	}
	if s.Name != "graph" || s.Port != 9090 || s.Timeout != 2*time.Second {
		t.Errorf("loaded = %+v", s)
	}
}

func TestLoadRunsValidator(t *testing.T) {
	path := writeFile(t, "c.yaml", "name: x\nport: 0\n")

	var s sample
	err := Load(path, &s)
	if err == nil || !strings.Contains(err.Error(), "validation failed") {
		t.Errorf("err = %v, want validation failure", err)
	}
}

func TestLoadWithDefaultsFallsBack(t *testing.T) {
	def := writeFile(t, "default.yaml", "port: 7000\n")

	var s sample
	if err := LoadWithDefaults(filepath.Join(t.TempDir(), "missing.yaml"), def, &s); err != nil {
		t.Fatal(err)
	}
	if s.Port != 7000 {
		t.Errorf("port = %d, want 7000", s.Port)
	}
	if err := LoadWithDefaults(filepath.Join(t.TempDir(), "missing.yaml"), "", &s); err == nil {
		t.Error("missing file without default should fail")
	}
}

func TestWatchCallsOnChange(t *testing.T) {
	path := writeFile(t, "c.yaml", "port: 1\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func() {
			select {
			case changed <- struct{}{}:
			default:
			}
		})
	}()

	// The watcher may not be registered yet, so keep writing until it fires.
	// Writes are spaced wider than the debounce window.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(300 * time.Millisecond)
	defer tick.Stop()
wait:
	for {
		select {
		case <-changed:
			break wait
		case <-tick.C:
			if err := os.WriteFile(path, []byte("port: 2\n"), 0o644); err != nil {
				t.Fatal(err)
			}
		case <-deadline:
			t.Fatal("onChange was not called")
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not stop after cancel")
	}
}
