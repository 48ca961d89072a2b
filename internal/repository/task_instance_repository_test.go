package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/yourorg/taskhub/internal/domain"
)

// recordingConnector hands out connections that capture the driver values
// sent with each statement instead of talking to a real database.
type recordingConnector struct {
	conn *recordingConn
}

func (c *recordingConnector) Connect(context.Context) (driver.Conn, error) { return c.conn, nil }
func (c *recordingConnector) Driver() driver.Driver                        { return nil }

type recordingConn struct {
	execs [][]driver.Value
}

func (c *recordingConn) Prepare(query string) (driver.Stmt, error) {
	return &recordingStmt{conn: c}, nil
}

func (c *recordingConn) Close() error              { return nil }
func (c *recordingConn) Begin() (driver.Tx, error) { return nil, driver.ErrSkip }

type recordingStmt struct {
	conn *recordingConn
}

func (s *recordingStmt) Close() error  { return nil }
func (s *recordingStmt) NumInput() int { return -1 }

func (s *recordingStmt) Exec(args []driver.Value) (driver.Result, error) {
	captured := make([]driver.Value, len(args))
	copy(captured, args)
	s.conn.execs = append(s.conn.execs, captured)
	return driver.RowsAffected(1), nil
}

func (s *recordingStmt) Query(args []driver.Value) (driver.Rows, error) {
	return nil, driver.ErrSkip
}

func TestCreateTaskInstanceSendsEmptyCommentAsEmptyString(t *testing.T) {
	conn := &recordingConn{}
	db := sql.OpenDB(&recordingConnector{conn: conn})
	defer db.Close()

	repo := NewPostgresTaskInstanceRepository(db, nil)

	instance := &domain.TaskInstance{
		TaskID:  "task-1",
		DueDate: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := repo.Create(context.Background(), instance); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if len(conn.execs) != 1 {
		t.Fatalf("exec count = %d, want 1", len(conn.execs))
	}
	args := conn.execs[0]
	if len(args) != 5 {
		t.Fatalf("insert arg count = %d, want 5", len(args))
	}

	// The comment column is NOT NULL, so an unset comment must arrive at
	// the driver as "" rather than nil.
	comment := args[4]
	if comment == nil {
		t.Fatal("comment arg is nil, want empty string")
	}
	if got, ok := comment.(string); !ok || got != "" {
		t.Errorf("comment arg = %#v, want \"\"", comment)
	}
}

func TestCreateTaskInstancePassesCommentThrough(t *testing.T) {
	conn := &recordingConn{}
	db := sql.OpenDB(&recordingConnector{conn: conn})
	defer db.Close()

	repo := NewPostgresTaskInstanceRepository(db, nil)

	instance := &domain.TaskInstance{
		TaskID:  "task-1",
		DueDate: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		Comment: "restock before opening",
	}
	if err := repo.Create(context.Background(), instance); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	args := conn.execs[0]
	if got, ok := args[4].(string); !ok || got != "restock before opening" {
		t.Errorf("comment arg = %#v, want %q", args[4], "restock before opening")
	}
}
