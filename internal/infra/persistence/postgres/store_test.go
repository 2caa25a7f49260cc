package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"spacecore/pkg/domain"
)

func TestNewStoreEnsuresTableAndLoadsSnapshot(t *testing.T) {
	db, conn := newStubDB()
	seed := []domain.Space{{
		ID:          3,
		Description: "Seeded wall",
		Status:      domain.StatusAvailable,
		CreatedBy:   "Admin",
		CreatedAt:   "2025-01-01T00:00:00",
	}}
	payload, err := json.Marshal(seed)
	if err != nil {
		t.Fatalf("marshal seed: %v", err)
	}
	conn.state[stateBucket] = payload

	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	store, err := NewStore("", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	got, ok := store.GetSpace(3)
	if !ok || got.Description != "Seeded wall" {
		t.Fatalf("snapshot not loaded: %+v", got)
	}
	var sawDDL bool
	for _, stmt := range conn.execs {
		if strings.Contains(strings.ToUpper(stmt), "CREATE TABLE") {
			sawDDL = true
			break
		}
	}
	if !sawDDL {
		t.Fatalf("expected state table DDL, got execs: %v", conn.execs)
	}
}

func TestRunInTransactionPersistsState(t *testing.T) {
	db, conn := newStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	store, err := NewStore("ignored", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateSpace(domain.Space{
			Description: "West wall",
			Status:      domain.StatusAvailable,
			CreatedBy:   "Admin",
			CreatedAt:   "2025-01-01T00:00:00",
		})
		return err
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}

	payload, ok := conn.state[stateBucket]
	if !ok {
		t.Fatalf("expected snapshot upsert, got execs: %v", conn.execs)
	}
	var spaces []domain.Space
	if err := json.Unmarshal(payload, &spaces); err != nil {
		t.Fatalf("decode persisted payload: %v", err)
	}
	if len(spaces) != 1 || spaces[0].Description != "West wall" {
		t.Fatalf("unexpected persisted state: %+v", spaces)
	}
}

func TestFailedTransactionSkipsPersist(t *testing.T) {
	db, conn := newStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	store, err := NewStore("", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.RevertUpdate(99)
		return err
	})
	if err == nil {
		t.Fatalf("expected transaction failure")
	}
	if _, ok := conn.state[stateBucket]; ok {
		t.Fatalf("failed transaction must not persist")
	}
}

// --- stub driver helpers ---

type stubDriver struct {
	conn *stubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

type stubConn struct {
	execs []string
	state map[string][]byte
}

func newStubDB() (*sql.DB, *stubConn) {
	conn := &stubConn{state: make(map[string][]byte)}
	name := fmt.Sprintf("stubpg%d", time.Now().UnixNano())
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

func (c *stubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }
func (c *stubConn) Close() error                        { return nil }
func (c *stubConn) Begin() (driver.Tx, error)           { return nil, fmt.Errorf("not implemented") }
func (c *stubConn) Ping(context.Context) error          { return nil }

func (c *stubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.execs = append(c.execs, query)
	if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "INSERT INTO STATE") {
		if len(args) != 2 {
			return nil, fmt.Errorf("unexpected arg count %d", len(args))
		}
		bucket, ok := args[0].Value.(string)
		if !ok {
			return nil, fmt.Errorf("bucket arg is %T", args[0].Value)
		}
		payload, ok := args[1].Value.([]byte)
		if !ok {
			return nil, fmt.Errorf("payload arg is %T", args[1].Value)
		}
		c.state[bucket] = append([]byte(nil), payload...)
	}
	return driver.RowsAffected(1), nil
}

func (c *stubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	if !strings.Contains(strings.ToUpper(query), "SELECT PAYLOAD FROM STATE") {
		return nil, fmt.Errorf("unexpected query %q", query)
	}
	if len(args) != 1 {
		return nil, fmt.Errorf("unexpected arg count %d", len(args))
	}
	bucket, _ := args[0].Value.(string)
	rows := &stubRows{cols: []string{"payload"}}
	if payload, ok := c.state[bucket]; ok {
		rows.rows = append(rows.rows, []driver.Value{append([]byte(nil), payload...)})
	}
	return rows, nil
}

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }
func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}
