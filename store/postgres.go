package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/giygas/healthpost-api/interfaces"
	"github.com/giygas/healthpost-api/logging"
)

// Compile-time check to ensure Postgres implements DocumentStore
var _ interfaces.DocumentStore = (*Postgres)(nil)

// NotifyChannel is the LISTEN/NOTIFY channel for document changes.
const NotifyChannel = "document_changes"

const (
	createTableSQL = `CREATE TABLE IF NOT EXISTS documents (path text PRIMARY KEY, value jsonb NOT NULL)`
	selectAllSQL   = `SELECT path, value FROM documents`
	selectTreeSQL  = `SELECT path, value FROM documents WHERE path = $1 OR path LIKE $2 ESCAPE '\'`
	deleteTreeSQL  = `DELETE FROM documents WHERE path = $1 OR path LIKE $2 ESCAPE '\' OR path = ANY($3)`
	insertLeafSQL  = `INSERT INTO documents (path, value) VALUES ($1, $2)`
	notifySQL      = `SELECT pg_notify($1, $2)`
)

// Postgres keeps one row per leaf in the documents table.
type Postgres struct {
	db   *sql.DB
	dsn  string
	subs *fanout

	mu       sync.Mutex
	listener *pq.Listener
}

// NewPostgres opens a connection pool for dsn and creates the documents
// table when missing.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	p := NewPostgresWithDB(db, dsn)
	if err := p.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

// NewPostgresWithDB wraps an open pool. Subscribe needs dsn to open its
// own listener connection; without one it returns an error.
func NewPostgresWithDB(db *sql.DB, dsn string) *Postgres {
	return &Postgres{db: db, dsn: dsn, subs: newFanout()}
}

// Migrate creates the documents table.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("create documents table: %w", err)
	}
	return nil
}

func (p *Postgres) Read(ctx context.Context, path string) (any, bool, error) {
	cp, err := CleanPath(path)
	if err != nil {
		return nil, false, err
	}
	return p.read(ctx, cp)
}

func (p *Postgres) read(ctx context.Context, path string) (any, bool, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if path == "" {
		rows, err = p.db.QueryContext(ctx, selectAllSQL)
	} else {
		rows, err = p.db.QueryContext(ctx, selectTreeSQL, path, likeBelow(path))
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %q: %w", path, err)
	}
	defer rows.Close()

	leaves := make(map[string]any)
	for rows.Next() {
		var (
			leafPath string
			raw      []byte
		)
		if err := rows.Scan(&leafPath, &raw); err != nil {
			return nil, false, fmt.Errorf("read %q: %w", path, err)
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, false, fmt.Errorf("decode %q: %w", leafPath, err)
		}
		leaves[leafPath] = v
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("read %q: %w", path, err)
	}

	v, ok := Assemble(path, leaves)
	return v, ok, nil
}

func (p *Postgres) Write(ctx context.Context, path string, value any) error {
	return p.Update(ctx, map[string]any{path: value})
}

// Update applies every path in one transaction. The notification is sent
// by pg_notify and delivered on commit.
func (p *Postgres) Update(ctx context.Context, values map[string]any) (err error) {
	paths, clean, err := prepareUpdate(values)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, path := range paths {
		if _, err = tx.ExecContext(ctx, deleteTreeSQL, path, likeBelow(path), pq.Array(Ancestors(path))); err != nil {
			return fmt.Errorf("clear %q: %w", path, err)
		}

		leaves := Flatten(path, clean[path])
		keys := make([]string, 0, len(leaves))
		for k := range leaves {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b, mErr := json.Marshal(leaves[k])
			if mErr != nil {
				err = fmt.Errorf("encode %q: %w", k, mErr)
				return err
			}
			if _, err = tx.ExecContext(ctx, insertLeafSQL, k, string(b)); err != nil {
				return fmt.Errorf("insert %q: %w", k, err)
			}
		}
	}

	msg, err := json.Marshal(changeMessage{Paths: paths})
	if err != nil {
		return fmt.Errorf("encode change: %w", err)
	}
	if _, err = tx.ExecContext(ctx, notifySQL, NotifyChannel, string(msg)); err != nil {
		return fmt.Errorf("notify: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit update: %w", err)
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, path string) error {
	return p.Update(ctx, map[string]any{path: nil})
}

// Subscribe registers fn. The first subscription opens a pq.Listener on
// NotifyChannel.
func (p *Postgres) Subscribe(ctx context.Context, path string, fn interfaces.ChangeFunc) (func(), error) {
	cp, err := CleanPath(path)
	if err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, fmt.Errorf("subscribe %q: nil callback", cp)
	}
	if err := p.listen(); err != nil {
		return nil, err
	}
	return p.subs.add(ctx, cp, fn), nil
}

func (p *Postgres) listen() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listener != nil {
		return nil
	}
	if p.dsn == "" {
		return errors.New("postgres store has no DSN for LISTEN")
	}

	l := pq.NewListener(p.dsn, time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logging.Warn("Postgres listener event", "event", int(ev), "error", err)
		}
	})
	if err := l.Listen(NotifyChannel); err != nil {
		_ = l.Close()
		return fmt.Errorf("listen %s: %w", NotifyChannel, err)
	}
	p.listener = l

	go func() {
		for n := range l.Notify {
			if n == nil {
				// reconnected; notifications may have been lost
				continue
			}
			var msg changeMessage
			if err := json.Unmarshal([]byte(n.Extra), &msg); err != nil {
				logging.Warn("Ignoring malformed change notification", "error", err)
				continue
			}
			p.subs.notify(msg.Paths, func(path string) (any, bool, error) {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				v, ok, err := p.read(ctx, path)
				if err != nil {
					logging.Warn("Failed to read changed path", "path", path, "error", err)
				}
				return v, ok, err
			})
		}
	}()
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	return nil
}

func (p *Postgres) Close() error {
	p.mu.Lock()
	l := p.listener
	p.listener = nil
	p.mu.Unlock()

	if l != nil {
		_ = l.Close()
	}
	return p.db.Close()
}

// likeBelow returns a LIKE pattern matching strict descendants of path.
func likeBelow(path string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(path) + "/%"
}
