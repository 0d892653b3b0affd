package baseline

import (
	"os"
	"path/filepath"
	"testing"
)

func TestManifestExists(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, DefaultName)
	if err := os.WriteFile(present, []byte(`{"not": "parsed"`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	tests := []struct {
		name string
		path string
		want bool
	}{
		{"present, contents irrelevant", present, true},
		{"absent", filepath.Join(dir, "missing.json"), false},
		{"empty path", "", false},
		{"directory", dir, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := (Manifest{Path: tt.path}).Exists(); got != tt.want {
				t.Errorf("Exists() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestManifestExists_Unreadable(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root can read any file")
	}
	path := filepath.Join(t.TempDir(), DefaultName)
	if err := os.WriteFile(path, []byte("{}"), 0o000); err != nil {
		t.Fatalf("write: %v", err)
	}
	if (Manifest{Path: path}).Exists() {
		t.Error("Exists() = true for unreadable file")
	}
}
