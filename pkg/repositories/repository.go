package repositories

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/cbodonnell/tabletop/pkg/repositories/models"
)

//go:embed migrations
var migrations embed.FS

// Repository stores the history of finished games.
type Repository interface {
	Close(ctx context.Context) error
	// SaveGameResult stores result. Saving the same game twice is a no-op.
	SaveGameResult(ctx context.Context, result *models.GameResult) error
	// ListGameResults returns up to limit results, most recent first.
	ListGameResults(ctx context.Context, limit int) ([]*models.GameResult, error)
	GetGameResult(ctx context.Context, id string) (*models.GameResult, error)
}

// ErrNotFound is returned when a game is not in the history.
type ErrNotFound struct {
	ID string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("game %s not found", e.ID)
}

func IsNotFound(err error) bool {
	var notFound *ErrNotFound
	return errors.As(err, &notFound)
}

// NewRepository opens the repository named by url: sqlite://<path> or a
// postgres:// / postgresql:// connection string. An empty url disables
// history and returns a nil Repository.
func NewRepository(ctx context.Context, url string) (Repository, error) {
	switch {
	case url == "":
		return nil, nil
	case strings.HasPrefix(url, "sqlite://"):
		repo, err := NewSQLiteRepository(ctx, strings.TrimPrefix(url, "sqlite://"))
		if err != nil {
			return nil, err
		}
		return repo, nil
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		repo, err := NewPostgresRepository(ctx, url)
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unsupported database url %q", url)
	}
}

// migrationScripts returns the scripts of dialect in name order.
func migrationScripts(dialect string) ([]string, error) {
	dir := "migrations/" + dialect
	entries, err := fs.ReadDir(migrations, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %v", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	scripts := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		b, err := fs.ReadFile(migrations, dir+"/"+entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %v", entry.Name(), err)
		}
		scripts = append(scripts, string(b))
	}
	return scripts, nil
}
