package attendance

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"VMS-backend/internal/platform/db"
)

type execResult struct{ affected int64 }

func (r execResult) LastInsertId() (int64, error) { return 1, nil }
func (r execResult) RowsAffected() (int64, error) { return r.affected, nil }

// SQL を記録する DBTX。行を返すクエリは空の結果を返す
type recordingTx struct {
	empty    *sql.DB
	queries  []string
	args     [][]any
	affected int64
}

func newRecordingTx(t *testing.T) *recordingTx {
	t.Helper()
	gdb, err := db.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.CloseSQLite(gdb) })
	conn, err := gdb.DB()
	if err != nil {
		t.Fatal(err)
	}
	return &recordingTx{empty: conn}
}

func (r *recordingTx) record(q string, args []any) {
	r.queries = append(r.queries, q)
	r.args = append(r.args, args)
}

func (r *recordingTx) ExecContext(_ context.Context, q string, args ...any) (sql.Result, error) {
	r.record(q, args)
	return execResult{affected: r.affected}, nil
}

func (r *recordingTx) QueryContext(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	r.record(q, args)
	return r.empty.QueryContext(ctx, "SELECT 1 WHERE 0")
}

func (r *recordingTx) QueryRowContext(ctx context.Context, q string, args ...any) *sql.Row {
	r.record(q, args)
	return r.empty.QueryRowContext(ctx, "SELECT 1 WHERE 0")
}

func (r *recordingTx) last() string { return r.queries[len(r.queries)-1] }

func TestMySQLTxLocksRows(t *testing.T) {
	ctx := context.Background()
	rec := newRecordingTx(t)
	tx := &mysqlTx{q: rec}

	for _, tc := range []struct {
		kind  Kind
		table string
	}{{KindToken, "attendance_tokens"}, {KindCode, "attendance_codes"}} {
		c, err := tx.LockCredential(ctx, tc.kind, "digest-1")
		if err != nil || c != nil {
			t.Fatalf("%s: LockCredential on empty = %v, %v", tc.kind, c, err)
		}
		q := rec.last()
		if !strings.Contains(q, "FROM "+tc.table) || !strings.HasSuffix(strings.TrimSpace(q), "FOR UPDATE") {
			t.Fatalf("%s: query does not lock %s:\n%s", tc.kind, tc.table, q)
		}
	}

	r, err := tx.LockOpenRecord(ctx, 1001, 42)
	if err != nil || r != nil {
		t.Fatalf("LockOpenRecord on empty = %v, %v", r, err)
	}
	if q := rec.last(); !strings.Contains(q, "open_slot = 1") || !strings.Contains(q, "FOR UPDATE") {
		t.Fatalf("open record query does not lock:\n%s", q)
	}
}

func TestMySQLTxMarkConsumedIsConditional(t *testing.T) {
	ctx := context.Background()
	rec := newRecordingTx(t)
	tx := &mysqlTx{q: rec}
	c := &Credential{ID: 77, Kind: KindCode}

	rec.affected = 1
	ok, err := tx.MarkConsumed(ctx, c, 1001, t0)
	if err != nil || !ok {
		t.Fatalf("first consume = %v, %v; want true", ok, err)
	}
	q := rec.last()
	if !strings.Contains(q, "UPDATE attendance_codes") || !strings.Contains(q, "consumed = 0") {
		t.Fatalf("consume is not a compare-and-set:\n%s", q)
	}
	if args := rec.args[len(rec.args)-1]; args[len(args)-1] != int64(77) {
		t.Fatalf("credential id arg = %v", args)
	}

	// 既に他の Tx が消費済み
	rec.affected = 0
	ok, err = tx.MarkConsumed(ctx, c, 1002, t0)
	if err != nil || ok {
		t.Fatalf("second consume = %v, %v; want false", ok, err)
	}
}

func TestMySQLTxCloseRecordRequiresOpenSlot(t *testing.T) {
	ctx := context.Background()
	rec := newRecordingTx(t)
	tx := &mysqlTx{q: rec}

	rec.affected = 1
	if err := tx.CloseRecord(ctx, 5, t0, 2.5); err != nil {
		t.Fatalf("CloseRecord: %v", err)
	}
	if q := rec.last(); !strings.Contains(q, "open_slot = 1") {
		t.Fatalf("close is not conditional:\n%s", q)
	}

	rec.affected = 0
	err := tx.CloseRecord(ctx, 5, t0, 2.5)
	if got := CodeOf(err); got != CodeNoOpenSession {
		t.Fatalf("CloseRecord on closed row = %v (%s), want %s", err, got, CodeNoOpenSession)
	}
}
