package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestCreateSQLMigrationAtUsesVersionAndSlug(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)

	path, err := createSQLMigrationAt(dir, "Add Cart Notes!", at)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if filepath.Base(path) != "20260302103000_add_cart_notes.sql" {
		t.Fatalf("unexpected filename %q", filepath.Base(path))
	}
	body, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(body), "-- rollback add_cart_notes") {
		t.Fatalf("unexpected template:\n%s", body)
	}

	if _, err := createSQLMigrationAt(dir, "add cart notes", at); err == nil {
		t.Fatal("expected duplicate migration to fail")
	}
}

func TestValidateAnnotations(t *testing.T) {
	cases := map[string]struct {
		body    string
		wantErr bool
	}{
		"valid":           {body: "-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose StatementEnd\n-- +goose Down\nSELECT 1;\n"},
		"missing down":    {body: "-- +goose Up\nSELECT 1;\n", wantErr: true},
		"down before up":  {body: "-- +goose Down\n-- +goose Up\n", wantErr: true},
		"unterminated":    {body: "-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose Down\n", wantErr: true},
		"stray end":       {body: "-- +goose Up\n-- +goose StatementEnd\n-- +goose Down\n", wantErr: true},
		"nested begin":    {body: "-- +goose Up\n-- +goose StatementBegin\n-- +goose StatementBegin\n", wantErr: true},
		"missing up only": {body: "SELECT 1;\n-- +goose Down\n", wantErr: true},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "20260302103000_case.sql")
			if err := os.WriteFile(path, []byte(tc.body), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
			err := validateAnnotations(path)
			if tc.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
