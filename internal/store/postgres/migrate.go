package postgres

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/uptrace/bun"
)

type rawExecutor interface {
	NewRaw(query string, args ...any) *bun.RawQuery
}

// Migrate applies the "-- +goose Up" section of every .sql file in dir, in
// file name order. Statements must be idempotent.
func Migrate(ctx context.Context, exec rawExecutor, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read migrations: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return 0, fmt.Errorf("read migration %s: %w", name, err)
		}
		upSQL, err := extractGooseUp(string(b))
		if err != nil {
			return 0, fmt.Errorf("migration %s: %w", name, err)
		}
		for _, stmt := range splitSQLStatements(upSQL) {
			if _, err := exec.NewRaw(stmt).Exec(ctx); err != nil {
				return 0, fmt.Errorf("apply migration %s: %w", name, err)
			}
		}
	}

	return len(names), nil
}

func extractGooseUp(sql string) (string, error) {
	upMarker := "-- +goose Up"
	downMarker := "-- +goose Down"

	upIdx := strings.Index(sql, upMarker)
	if upIdx < 0 {
		return "", fmt.Errorf("missing goose up marker")
	}
	afterUp := sql[upIdx+len(upMarker):]
	afterUp = strings.TrimLeft(afterUp, "\r\n")

	downIdx := strings.Index(afterUp, downMarker)
	if downIdx < 0 {
		return strings.TrimSpace(afterUp), nil
	}
	return strings.TrimSpace(afterUp[:downIdx]), nil
}

func splitSQLStatements(sql string) []string {
	parts := strings.Split(sql, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}
