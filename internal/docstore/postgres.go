package docstore

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"

	"eunify/feed/internal/util"
)

// notifyChannel is the LISTEN/NOTIFY channel carrying collection paths.
const notifyChannel = "documents_changed"

const documentsSchema = `
CREATE TABLE IF NOT EXISTS documents (
	path       text NOT NULL,
	id         text NOT NULL,
	body       jsonb NOT NULL,
	created_at timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (path, id)
)`

// Postgres implements Store on postgres: one jsonb row per document, with
// LISTEN/NOTIFY as the subscription channel for observers.
type Postgres struct {
	pool *pgxpool.Pool
}

func OpenPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if _, err := pool.Exec(ctx, documentsSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure documents table: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (s *Postgres) Add(ctx context.Context, path string, data map[string]any) (string, error) {
	body, err := encodeBody(data)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	id := util.NewID()
	err = s.write(ctx, path,
		`INSERT INTO documents (path, id, body) VALUES ($1, $2, $3)`, path, id, body)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return id, nil
}

func (s *Postgres) Set(ctx context.Context, path, id string, data map[string]any) error {
	body, err := encodeBody(data)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	err = s.write(ctx, path,
		`INSERT INTO documents (path, id, body) VALUES ($1, $2, $3)
		 ON CONFLICT (path, id) DO UPDATE SET body = documents.body || EXCLUDED.body`,
		path, id, body)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return nil
}

func (s *Postgres) Update(ctx context.Context, path, id string, patch map[string]any) error {
	body, err := encodeBody(patch)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpdateFailed, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpdateFailed, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// jsonb concatenation gives field-level merge semantics.
	tag, err := tx.Exec(ctx,
		`UPDATE documents SET body = body || $3 WHERE path = $1 AND id = $2`, path, id, body)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpdateFailed, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: document %s/%s not found", ErrUpdateFailed, path, id)
	}
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, path); err != nil {
		return fmt.Errorf("%w: %w", ErrUpdateFailed, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrUpdateFailed, err)
	}
	return nil
}

func (s *Postgres) Delete(ctx context.Context, path, id string) error {
	err := s.write(ctx, path,
		`DELETE FROM documents WHERE path = $1 AND id = $2`, path, id)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeleteFailed, err)
	}
	return nil
}

func (s *Postgres) DeleteAll(ctx context.Context, path string) error {
	err := s.write(ctx, path, `DELETE FROM documents WHERE path = $1`, path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeleteFailed, err)
	}
	return nil
}

// write runs one statement and a pg_notify for path in the same transaction,
// so observers are only woken for committed changes.
func (s *Postgres) write(ctx context.Context, path, sql string, args ...any) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, sql, args...); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, path); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Postgres) Observe(ctx context.Context, path string) (<-chan Snapshot, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, `LISTEN `+notifyChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen %s: %w", notifyChannel, err)
	}

	out := make(chan Snapshot)
	go func() {
		defer close(out)
		defer conn.Release()

		snap, err := s.load(ctx, path)
		if err != nil {
			log.Printf("docstore: initial load of %s: %v", path, err)
			return
		}
		if !send(ctx, out, snap) {
			return
		}

		for {
			notification, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.Printf("docstore: listen on %s lost: %v", path, err)
				}
				return
			}
			if notification.Payload != path {
				continue
			}
			snap, err := s.load(ctx, path)
			if err != nil {
				log.Printf("docstore: reload of %s: %v", path, err)
				return
			}
			if !send(ctx, out, snap) {
				return
			}
		}
	}()
	return out, nil
}

func (s *Postgres) load(ctx context.Context, path string) (Snapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, body FROM documents WHERE path = $1`, path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	defer rows.Close()

	var snap Snapshot
	for rows.Next() {
		var id string
		var body []byte
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		doc, err := decodeBody(id, body)
		if err != nil {
			log.Printf("docstore: skipping %s/%s: %v", path, id, err)
			continue
		}
		snap = append(snap, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if snap == nil {
		snap = Snapshot{}
	}
	return snap, nil
}

func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}
