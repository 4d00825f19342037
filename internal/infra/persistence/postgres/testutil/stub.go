// Package testutil provides a stub database/sql driver that mimics the postgres
// state bucket table for store tests.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync/atomic"
)

var stubSeq atomic.Uint64

// StubConn keeps bucket payloads in memory and records every statement it executes.
type StubConn struct {
	Execs       []string
	Buckets     map[string][]byte
	FailExec    bool
	FailPing    bool
	FailBegin   bool
	FailCommit  bool
	RowsErr     error
	FailBuckets map[string]bool
	Commits     int
}

// NewStubDB registers a sql.DB backed by a fresh stub connection.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Buckets: make(map[string][]byte)}
	name := fmt.Sprintf("stubpg%d", stubSeq.Add(1))
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

type stubDriver struct {
	conn *StubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) {
	return d.conn, nil
}

// Prepare implements driver.Conn.
func (c *StubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(_ context.Context) error {
	if c.FailPing {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx.
func (c *StubConn) BeginTx(_ context.Context, _ driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, fmt.Errorf("begin fail")
	}
	return &stubTx{conn: c}, nil
}

// ExecContext implements driver.ExecerContext. Only upserts into the state table
// change stored data; every other statement is recorded and acknowledged.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, fmt.Errorf("exec fail")
	}
	if !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "INSERT INTO STATE") {
		return driver.RowsAffected(0), nil
	}
	if len(args) != 2 {
		return nil, fmt.Errorf("expected bucket and payload args, got %d", len(args))
	}
	bucket, ok := args[0].Value.(string)
	if !ok {
		return nil, fmt.Errorf("bucket must be a string, got %T", args[0].Value)
	}
	if c.FailBuckets[bucket] {
		return nil, fmt.Errorf("exec fail for %s", bucket)
	}
	var payload []byte
	switch v := args[1].Value.(type) {
	case []byte:
		payload = append([]byte(nil), v...)
	case string:
		payload = []byte(v)
	default:
		return nil, fmt.Errorf("unsupported payload type %T", v)
	}
	if c.Buckets == nil {
		c.Buckets = make(map[string][]byte)
	}
	c.Buckets[bucket] = payload
	return driver.RowsAffected(1), nil
}

// QueryContext implements driver.QueryerContext for the bucket select.
func (c *StubConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	if !strings.Contains(strings.ToLower(query), "from state") {
		return nil, fmt.Errorf("unsupported query: %s", query)
	}
	names := make([]string, 0, len(c.Buckets))
	for name := range c.Buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	rows := make([][]driver.Value, 0, len(names))
	for _, name := range names {
		rows = append(rows, []driver.Value{name, c.Buckets[name]})
	}
	return &stubRows{rows: rows, err: c.RowsErr}, nil
}

type stubTx struct {
	conn *StubConn
}

func (t *stubTx) Commit() error {
	if t.conn.FailCommit {
		return fmt.Errorf("commit fail")
	}
	t.conn.Commits++
	return nil
}

func (t *stubTx) Rollback() error { return nil }

type stubRows struct {
	rows [][]driver.Value
	idx  int
	err  error
}

func (r *stubRows) Columns() []string { return []string{"bucket", "payload"} }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		if r.err != nil {
			return r.err
		}
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}
