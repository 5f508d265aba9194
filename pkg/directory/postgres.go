package directory

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq" // driver
	"github.com/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS peers (
	ip           VARCHAR(255) NOT NULL,
	port         INT          NOT NULL CHECK (port > 0 AND port <= 65535),
	numfailures  INT          NOT NULL CHECK (numfailures >= 0),
	nextattempt  TIMESTAMP    NOT NULL,
	PRIMARY KEY (ip, port)
)`

// Postgres stores records in a "peers" table.
type Postgres struct{ db *sql.DB }

// OpenPostgres connects to dsn and ensures the schema exists.
func OpenPostgres(c context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "postgres open")
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(2)

	p, err := NewPostgres(c, db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return p, nil
}

// NewPostgres wraps an open database and ensures the schema exists.
func NewPostgres(c context.Context, db *sql.DB) (*Postgres, error) {
	if err := db.PingContext(c); err != nil {
		return nil, errors.Wrap(err, "postgres ping")
	}

	if _, err := db.ExecContext(c, schema); err != nil {
		return nil, errors.Wrap(err, "postgres schema")
	}

	return &Postgres{db: db}, nil
}

// Lookup a record
func (p *Postgres) Lookup(c context.Context, addr string, port int) (Record, bool, error) {
	r := Record{Address: addr, Port: port}

	err := p.db.QueryRowContext(c,
		`SELECT numfailures, nextattempt FROM peers WHERE ip = $1 AND port = $2`,
		addr, port,
	).Scan(&r.NumFailures, &r.NextAttempt)

	switch err {
	case nil:
		return r, true, nil
	case sql.ErrNoRows:
		return Record{}, false, nil
	default:
		return Record{}, false, errors.Wrap(err, "postgres lookup")
	}
}

// Upsert a record
func (p *Postgres) Upsert(c context.Context, r Record) error {
	_, err := p.db.ExecContext(c, `
		INSERT INTO peers (ip, port, numfailures, nextattempt) VALUES ($1, $2, $3, $4)
		ON CONFLICT (ip, port) DO UPDATE
		SET numfailures = EXCLUDED.numfailures, nextattempt = EXCLUDED.nextattempt`,
		r.Address, r.Port, r.NumFailures, r.NextAttempt.UTC().Truncate(time.Microsecond),
	)
	return errors.Wrap(err, "postgres upsert")
}

// Close the database
func (p *Postgres) Close() error { return p.db.Close() }
