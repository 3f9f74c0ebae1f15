// Package duckdb runs generated SQL on embedded DuckDB instances. Object
// storage credentials are applied as SET statements ahead of every script.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/ignite/campaign-dashboard/internal/domain"
	"github.com/ignite/campaign-dashboard/internal/metrics"
	"github.com/ignite/campaign-dashboard/internal/pkg/memo"
	"github.com/ignite/campaign-dashboard/internal/pkg/sqlquote"
)

// Options sizes the engine's handle pool and query cache.
type Options struct {
	PoolMax  int
	PoolTTL  time.Duration
	QueryMax int
	QueryTTL time.Duration
}

// DefaultOptions keeps a few warm handles and recent query results for ten
// minutes.
func DefaultOptions() Options {
	return Options{
		PoolMax:  3,
		PoolTTL:  10 * time.Minute,
		QueryMax: 50,
		QueryTTL: 10 * time.Minute,
	}
}

// Row is one result row keyed by column name.
type Row map[string]any

// Engine hands out DuckDB sessions for job runs and answers ad-hoc cube
// queries from pooled handles.
type Engine struct {
	pool    *memo.Cache[*pooledDB]
	queries *memo.Cache[[]Row]
}

// pooledDB closes its database once it has been evicted from the pool and
// the last borrower has released it.
type pooledDB struct {
	db *sql.DB

	mu      sync.Mutex
	refs    int
	evicted bool
}

// acquire borrows the handle. It fails once the handle has been evicted.
func (p *pooledDB) acquire() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.evicted {
		return false
	}
	p.refs++
	return true
}

func (p *pooledDB) release() {
	p.mu.Lock()
	p.refs--
	idle := p.evicted && p.refs == 0
	p.mu.Unlock()
	if idle {
		p.close()
	}
}

func (p *pooledDB) evict() {
	p.mu.Lock()
	p.evicted = true
	idle := p.refs == 0
	p.mu.Unlock()
	if idle {
		p.close()
	}
}

func (p *pooledDB) close() {
	if err := p.db.Close(); err != nil {
		log.Printf("[duckdb] close evicted handle: %v", err)
	}
}

// NewEngine creates an engine. Zero option fields fall back to defaults.
func NewEngine(opts Options) *Engine {
	def := DefaultOptions()
	if opts.PoolMax <= 0 {
		opts.PoolMax = def.PoolMax
	}
	if opts.PoolTTL <= 0 {
		opts.PoolTTL = def.PoolTTL
	}
	if opts.QueryMax <= 0 {
		opts.QueryMax = def.QueryMax
	}
	if opts.QueryTTL <= 0 {
		opts.QueryTTL = def.QueryTTL
	}
	return &Engine{
		pool: memo.New(memo.Options[*pooledDB]{
			Name:    "duckdb_pool",
			Max:     opts.PoolMax,
			TTL:     opts.PoolTTL,
			OnEvict: func(key string, p *pooledDB) { p.evict() },
		}),
		queries: memo.New(memo.Options[[]Row]{
			Name: "duckdb_query",
			Max:  opts.QueryMax,
			TTL:  opts.QueryTTL,
		}),
	}
}

// Prelude returns the statements that load the S3 and JSON extensions and
// apply creds. It is empty when creds carry no key pair.
func Prelude(creds domain.S3ProviderDetails) string {
	if !creds.HasCredentials() {
		return ""
	}
	var b strings.Builder
	b.WriteString("INSTALL httpfs;\nLOAD httpfs;\nINSTALL json;\nLOAD json;\n")
	if creds.Region != "" {
		fmt.Fprintf(&b, "SET s3_region=%s;\n", sqlquote.Literal(creds.Region))
	}
	fmt.Fprintf(&b, "SET s3_access_key_id=%s;\n", sqlquote.Literal(creds.AccessKeyID))
	fmt.Fprintf(&b, "SET s3_secret_access_key=%s;\n", sqlquote.Literal(creds.SecretAccessKey))
	return b.String()
}

// WithPrelude prepends the credential prelude to query.
func WithPrelude(creds domain.S3ProviderDetails, query string) string {
	return Prelude(creds) + query
}

func open() (*sql.DB, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	// A single connection keeps SET statements and stage tables visible to
	// every statement issued through the handle.
	db.SetMaxOpenConns(1)
	return db, nil
}

// Session is a private in-memory database for one job run.
type Session struct {
	db    *sql.DB
	creds domain.S3ProviderDetails
}

// NewSession opens a fresh in-memory database bound to creds.
func (e *Engine) NewSession(ctx context.Context, creds domain.S3ProviderDetails) (*Session, error) {
	db, err := open()
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}
	return &Session{db: db, creds: creds}, nil
}

// Ping opens and closes a throwaway database to confirm the driver works.
func (e *Engine) Ping(ctx context.Context) error {
	s, err := e.NewSession(ctx, domain.S3ProviderDetails{})
	if err != nil {
		return err
	}
	return s.Close()
}

// Exec runs a multi-statement script with the credential prelude.
func (s *Session) Exec(ctx context.Context, script string) error {
	start := time.Now()
	defer metrics.ObserveScript("exec", start)
	if _, err := s.db.ExecContext(ctx, WithPrelude(s.creds, script)); err != nil {
		return fmt.Errorf("exec duckdb script: %w", err)
	}
	log.Printf("[duckdb] script finished in %s", time.Since(start).Round(time.Millisecond))
	return nil
}

// DB exposes the session database for readers of the stage tables.
func (s *Session) DB() *sql.DB { return s.db }

// Close releases the session's database.
func (s *Session) Close() error { return s.db.Close() }

// handle borrows a pooled database with creds applied. The caller must
// release it.
func (e *Engine) handle(ctx context.Context, creds domain.S3ProviderDetails) (*pooledDB, error) {
	for {
		p, err := e.pool.Get(ctx, creds, func(ctx context.Context) (*pooledDB, error) {
			db, err := open()
			if err != nil {
				return nil, err
			}
			if prelude := Prelude(creds); prelude != "" {
				if _, err := db.ExecContext(ctx, prelude); err != nil {
					db.Close()
					return nil, fmt.Errorf("apply duckdb settings: %w", err)
				}
			}
			log.Printf("[duckdb] opened pooled handle (region=%s)", creds.Region)
			return &pooledDB{db: db}, nil
		})
		if err != nil {
			return nil, err
		}
		if p.acquire() {
			return p, nil
		}
		// evicted between lookup and borrow; the next lookup opens a fresh one
	}
}

type queryKey struct {
	Creds domain.S3ProviderDetails `json:"details"`
	Query string                   `json:"query"`
}

// Query runs query on a pooled handle, memoizing the rows per creds and
// query text.
func (e *Engine) Query(ctx context.Context, creds domain.S3ProviderDetails, query string) ([]Row, error) {
	return e.queries.Get(ctx, queryKey{Creds: creds, Query: query}, func(ctx context.Context) ([]Row, error) {
		p, err := e.handle(ctx, creds)
		if err != nil {
			return nil, err
		}
		defer p.release()
		start := time.Now()
		defer metrics.ObserveScript("query", start)
		rows, err := p.db.QueryContext(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("query duckdb: %w", err)
		}
		defer rows.Close()
		out, err := scanRows(rows)
		if err != nil {
			return nil, err
		}
		log.Printf("[duckdb] query returned %d rows in %s", len(out), time.Since(start).Round(time.Millisecond))
		return out, nil
	})
}

// Invalidate drops cached results and pooled handles.
func (e *Engine) Invalidate() {
	e.queries.Reset()
	e.pool.Reset()
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	out := []Row{}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			row[c] = normalize(vals[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func normalize(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case fmt.Stringer:
		if _, ok := v.(time.Time); ok {
			return v
		}
		return t.String()
	default:
		return v
	}
}
