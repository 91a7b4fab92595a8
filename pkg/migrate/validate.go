package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var migrationFileRe = regexp.MustCompile(`^(\d{14})_([a-z0-9_]+)\.sql$`)

// ValidateDir checks the storefront migrations before they ship: names follow
// <timestamp>_<slug>.sql, versions are unique and parse as timestamps, and every file
// carries a goose Up section followed by a Down section.
func ValidateDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("migrations dir is required")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read migrations dir %q: %w", dir, err)
	}

	versions := map[string]string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".sql" {
			continue
		}
		match := migrationFileRe.FindStringSubmatch(name)
		if match == nil {
			return fmt.Errorf("migration %q must be named <YYYYMMDDHHMMSS>_<slug>.sql", name)
		}
		version := match[1]
		if _, err := time.Parse(versionLayout, version); err != nil {
			return fmt.Errorf("migration %q has an invalid timestamp: %w", name, err)
		}
		if prev, ok := versions[version]; ok {
			return fmt.Errorf("migrations %q and %q share version %s", prev, name, version)
		}
		versions[version] = name

		if err := checkSections(filepath.Join(dir, name)); err != nil {
			return err
		}
	}
	if len(versions) == 0 {
		return fmt.Errorf("no migrations found in %q", dir)
	}
	return nil
}

func checkSections(path string) error {
	body, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read migration %q: %w", path, err)
	}
	text := string(body)
	up := strings.Index(text, "-- +goose Up")
	down := strings.Index(text, "-- +goose Down")
	switch {
	case up < 0:
		return fmt.Errorf("migration %q has no \"-- +goose Up\" section", filepath.Base(path))
	case down < 0:
		return fmt.Errorf("migration %q has no \"-- +goose Down\" section", filepath.Base(path))
	case down < up:
		return fmt.Errorf("migration %q declares Down before Up", filepath.Base(path))
	}
	return nil
}
