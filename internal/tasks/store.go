package tasks

import (
	"context"
	"fmt"
	"strings"
)

// Open returns the backend named by dsn:
//
//	memory                         in-process maps
//	sqlite:<path>, file:..., *.db  embedded SQLite
//	postgres://..., postgresql://  PostgreSQL via pgxpool
func Open(ctx context.Context, dsn string) (Store, error) {
	switch {
	case dsn == "memory":
		return NewInMemoryRepo(), nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		repo, err := NewPostgresRepo(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case strings.HasPrefix(dsn, "file:"):
		return openSQLite(dsn)
	case strings.HasPrefix(dsn, "sqlite:"), strings.HasSuffix(dsn, ".db"):
		fileDSN, err := SQLiteFileDSN(strings.TrimPrefix(dsn, "sqlite:"))
		if err != nil {
			return nil, err
		}
		return openSQLite(fileDSN)
	default:
		return nil, fmt.Errorf("unsupported DATABASE_URL %q", dsn)
	}
}

func openSQLite(dsn string) (Store, error) {
	repo, err := NewSQLiteRepo(dsn)
	if err != nil {
		return nil, err
	}
	return repo, nil
}
