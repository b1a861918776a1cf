package migrate

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

const (
	annotationUp             = "-- +goose Up"
	annotationDown           = "-- +goose Down"
	annotationStatementBegin = "-- +goose StatementBegin"
	annotationStatementEnd   = "-- +goose StatementEnd"
)

// ValidateDir checks migration filenames, version uniqueness, and the goose annotations
// of every .sql file in dir.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}

	seen := map[string]string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			return fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		if prev, ok := seen[m[1]]; ok {
			return fmt.Errorf("duplicate migration version %s in %q and %q", m[1], prev, name)
		}
		seen[m[1]] = name

		if err := validateAnnotations(filepath.Join(dir, name)); err != nil {
			return fmt.Errorf("migration %q: %w", name, err)
		}
	}
	return nil
}

func validateAnnotations(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var up, down bool
	open := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		switch strings.TrimSpace(scanner.Text()) {
		case annotationUp:
			if down {
				return fmt.Errorf("%q must precede %q", annotationUp, annotationDown)
			}
			up = true
		case annotationDown:
			if open != 0 {
				return fmt.Errorf("unterminated statement block before %q", annotationDown)
			}
			down = true
		case annotationStatementBegin:
			if open != 0 {
				return fmt.Errorf("nested %q", annotationStatementBegin)
			}
			open++
		case annotationStatementEnd:
			if open == 0 {
				return fmt.Errorf("%q without matching begin", annotationStatementEnd)
			}
			open--
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	switch {
	case !up:
		return fmt.Errorf("missing %q", annotationUp)
	case !down:
		return fmt.Errorf("missing %q", annotationDown)
	case open != 0:
		return fmt.Errorf("unterminated statement block")
	}
	return nil
}
