package postgres

import (
	"io/fs"
	"testing"
)

func TestMigrationVersion(t *testing.T) {
	tests := []struct {
		name     string
		version  int
		expected bool
	}{
		{"0001_local_storage.sql", 1, true},
		{"0042_add_index.sql", 42, true},
		{"12_plain.sql", 12, true},
		{"README.sql", 0, false},
		{"0000_zero.sql", 0, false},
		{"abc_def.sql", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, ok := migrationVersion(tt.name)
			if ok != tt.expected {
				t.Fatalf("migrationVersion(%q) ok = %v, want %v", tt.name, ok, tt.expected)
			}
			if version != tt.version {
				t.Errorf("migrationVersion(%q) = %d, want %d", tt.name, version, tt.version)
			}
		})
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	entries, err := fs.ReadDir(migrationFiles, "migrations")
	if err != nil {
		t.Fatalf("Failed to read embedded migrations: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("Expected at least one embedded migration")
	}
	for _, e := range entries {
		if _, ok := migrationVersion(e.Name()); !ok {
			t.Errorf("Migration %s has no numeric version prefix", e.Name())
		}
	}
}
