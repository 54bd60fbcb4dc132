// Package sqlprobe checks members through database/sql handles. The caller
// opens the handles with whatever driver the members speak.
package sqlprobe

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/maxpoletaev/replicated/internal/multierror"
	"github.com/maxpoletaev/replicated/prober"
)

var ErrNoRows = errors.New("probe query returned no rows")

const (
	DefaultAliveQuery = "SELECT 1"

	// DefaultReadOnlyQuery works for MySQL. For PostgreSQL use
	// "SELECT pg_is_in_recovery()".
	DefaultReadOnlyQuery = "SELECT @@global.read_only"
)

var _ prober.Prober = (*Prober)(nil)

type Config struct {
	// DBs maps member aliases to open handles.
	DBs map[string]*sql.DB

	// AliveQuery must succeed on a live member.
	AliveQuery string

	// ReadOnlyQuery must return a single truthy value when the member
	// rejects writes.
	ReadOnlyQuery string
}

func DefaultConfig() Config {
	return Config{
		DBs:           make(map[string]*sql.DB),
		AliveQuery:    DefaultAliveQuery,
		ReadOnlyQuery: DefaultReadOnlyQuery,
	}
}

type Prober struct {
	dbs           map[string]*sql.DB
	aliveQuery    string
	readOnlyQuery string
}

func New(conf Config) *Prober {
	if conf.AliveQuery == "" {
		conf.AliveQuery = DefaultAliveQuery
	}

	if conf.ReadOnlyQuery == "" {
		conf.ReadOnlyQuery = DefaultReadOnlyQuery
	}

	dbs := make(map[string]*sql.DB, len(conf.DBs))
	for alias, db := range conf.DBs {
		dbs[alias] = db
	}

	return &Prober{
		dbs:           dbs,
		aliveQuery:    conf.AliveQuery,
		readOnlyQuery: conf.ReadOnlyQuery,
	}
}

func (p *Prober) db(alias string) (*sql.DB, error) {
	db, ok := p.dbs[alias]
	if !ok {
		return nil, fmt.Errorf("%w: %s", prober.ErrUnknownAlias, alias)
	}

	return db, nil
}

// Alive pings the member and runs the liveness query.
func (p *Prober) Alive(ctx context.Context, alias string) error {
	db, err := p.db(alias)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", alias, err)
	}

	rows, err := db.QueryContext(ctx, p.aliveQuery)
	if err != nil {
		return fmt.Errorf("query %s: %w", alias, err)
	}

	defer rows.Close()

	for rows.Next() {
		// drain
	}

	return rows.Err()
}

// Writable returns true unless the read-only query reports a truthy flag.
func (p *Prober) Writable(ctx context.Context, alias string) (bool, error) {
	db, err := p.db(alias)
	if err != nil {
		return false, err
	}

	var flag interface{}

	err = db.QueryRowContext(ctx, p.readOnlyQuery).Scan(&flag)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrNoRows
		}

		return false, fmt.Errorf("query %s: %w", alias, err)
	}

	readOnly, err := parseFlag(flag)
	if err != nil {
		return false, fmt.Errorf("read-only flag of %s: %w", alias, err)
	}

	return !readOnly, nil
}

// Close closes all handles.
func (p *Prober) Close() error {
	errs := multierror.New[string]()

	for alias, db := range p.dbs {
		errs.Add(alias, db.Close())
	}

	return errs.Ret()
}

// parseFlag interprets the values drivers commonly return for boolean
// server variables: bool, integers and their textual forms.
func parseFlag(v interface{}) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case int64:
		return t != 0, nil
	case []byte:
		return parseFlagString(string(t))
	case string:
		return parseFlagString(t)
	case nil:
		return false, fmt.Errorf("unexpected NULL")
	default:
		return false, fmt.Errorf("unexpected type %T", v)
	}
}

func parseFlagString(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "t", "true", "yes":
		return true, nil
	case "off", "f", "false", "no":
		return false, nil
	}

	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return false, fmt.Errorf("invalid flag value %q", s)
	}

	return n != 0, nil
}
