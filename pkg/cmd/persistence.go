// Package cmd provides construction helpers shared by the command-line
// entrypoints.
package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/lumenpress/automation/pkg/persistence"
	"github.com/lumenpress/automation/pkg/persistence/file"
	"github.com/lumenpress/automation/pkg/persistence/memory"
	"github.com/lumenpress/automation/pkg/persistence/postgres"
	"github.com/lumenpress/automation/pkg/persistence/redis"
)

// NewPersistence selects the persistence backend from the database URL
// scheme. Unknown schemes fall back to file persistence rooted at the URL.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parseProvider(databaseURL) {
	case "postgres", "postgresql":
		return postgres.NewPersistence(ctx, logger, databaseURL)
	case "redis":
		return redis.NewPersistence(ctx, databaseURL)
	case "memory":
		return memory.NewPersistence(), nil
	default:
		return file.NewPersistence(databaseURL), nil
	}
}

func parseProvider(databaseURL string) string {
	scheme, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	return scheme
}
