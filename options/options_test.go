package options

import (
	"errors"
	"flag"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseKeepsDefaults(t *testing.T) {
	s, err := Parse([]byte("file: /tmp/eye.gif\nserver: 192.168.0.2:4242\nunload: true\n"))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	if s.File != "/tmp/eye.gif" || s.Server != "192.168.0.2:4242" {
		t.Errorf("unexpected settings %+v", s)
	}
	if s.Persistent() {
		t.Error("unload: true should not be persistent")
	}
	if s.Width != DefaultWidth || s.Height != DefaultHeight || s.Backend != "network" {
		t.Errorf("defaults lost: %+v", s)
	}
}

func TestParseRejectsUnknownBackend(t *testing.T) {
	_, err := Parse([]byte("backend: carrier-pigeon\n"))
	if err == nil || !strings.Contains(err.Error(), "carrier-pigeon") {
		t.Errorf("expected backend error, got %v", err)
	}
}

func TestParseAcceptsMalformedServer(t *testing.T) {
	if _, err := Parse([]byte("server: nope\n")); err != nil {
		t.Errorf("malformed server should not fail validation: %v", err)
	}
}

func TestLoadAndSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gaze.yaml")
	want := Defaults()
	want.File = "overlay.png"
	want.LinearAlpha = true
	if err := Save(path, &want); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if *got != want {
		t.Errorf("Load() = %+v, wanted %+v", *got, want)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "none.yaml")); !errors.Is(err, iofs.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestViewerFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gaze.yaml")
	if err := os.WriteFile(path, []byte("file: a.png\nserver: 10.0.0.1:9000\nwidth: 800\n"), 0644); err != nil {
		t.Fatal(err)
	}

	fs := flag.NewFlagSet("viewer", flag.ContinueOnError)
	o := RegisterViewerFlags(fs)
	if err := fs.Parse([]string{"-config", path, "-file", "b.png", "-linear_alpha"}); err != nil {
		t.Fatal(err)
	}
	s, err := o.Settings(fs)
	if err != nil {
		t.Fatal(err)
	}
	if s.File != "b.png" || !s.LinearAlpha {
		t.Errorf("flags not applied: %+v", s)
	}
	if s.Server != "10.0.0.1:9000" || s.Width != 800 {
		t.Errorf("unset flags overrode the file: %+v", s)
	}
}
