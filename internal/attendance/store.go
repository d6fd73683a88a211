package attendance

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"VMS-backend/internal/platform/db"
)

// errDuplicate: UNIQUE 制約違反（ストア実装ごとに変換して返す）
var errDuplicate = errors.New("duplicate key")

// Repository: Service から見た永続化層。MySQL（本番）と SQLite/gorm（開発・テスト）の2実装
type Repository interface {
	GetProject(ctx context.Context, id int64) (*Project, error)
	InsertCredential(ctx context.Context, c *Credential) error
	ActiveCodeExists(ctx context.Context, digest string, at time.Time) (bool, error)
	// WithTx: fn が nil を返せば COMMIT、エラーなら ROLLBACK
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	ListRecords(ctx context.Context, f RecordFilter) ([]Record, int64, error)
	SumHours(ctx context.Context, projectID int64) ([]HoursRow, error)
	SumVolunteerHours(ctx context.Context, volunteerID int64) (HoursRow, error)
}

// Tx: 消費＋記録の更新はすべてこの中で行う
type Tx interface {
	// LockCredential: 該当なしは nil, nil
	LockCredential(ctx context.Context, kind Kind, digest string) (*Credential, error)
	// LockOpenRecord: 未退勤の記録。なければ nil, nil
	LockOpenRecord(ctx context.Context, volunteerID, projectID int64) (*Record, error)
	InsertRecord(ctx context.Context, r *Record) error
	CloseRecord(ctx context.Context, id int64, at time.Time, hours float64) error
	// MarkConsumed: consumed=0 の時だけ更新する CAS。更新できなければ false
	MarkConsumed(ctx context.Context, c *Credential, by int64, at time.Time) (bool, error)
}

type RecordFilter struct {
	VolunteerID *int64
	ProjectID   *int64
	Open        *bool
	Limit       int
	Offset      int
}

func credentialTable(k Kind) string {
	if k == KindCode {
		return "attendance_codes"
	}
	return "attendance_tokens"
}

// ===== MySQL =====

type MySQLStore struct{ db *sql.DB }

func NewMySQLStore(conn *sql.DB) *MySQLStore { return &MySQLStore{db: conn} }

func (s *MySQLStore) GetProject(ctx context.Context, id int64) (*Project, error) {
	var p Project
	err := s.db.QueryRowContext(ctx, `SELECT project_id, name FROM projects WHERE project_id = ?`, id).
		Scan(&p.ID, &p.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound("project not found")
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *MySQLStore) InsertCredential(ctx context.Context, c *Credential) error {
	q := fmt.Sprintf(`
	INSERT INTO %s (digest, project_id, action, bound_to, issued_at, expires_at, consumed)
	VALUES (?, ?, ?, ?, ?, ?, 0)`, credentialTable(c.Kind))

	res, err := s.db.ExecContext(ctx, q, c.Digest, c.ProjectID, string(c.Action), nullInt64(c.BoundTo), c.IssuedAt, c.ExpiresAt)
	if err != nil {
		return translateMySQL(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	c.ID = id
	return nil
}

func (s *MySQLStore) ActiveCodeExists(ctx context.Context, digest string, at time.Time) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
	SELECT 1 FROM attendance_codes
	WHERE digest = ? AND consumed = 0 AND expires_at >= ?
	LIMIT 1`, digest, at).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *MySQLStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return db.RunInTx(ctx, s.db, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(ctx context.Context, q db.DBTX) error {
		return fn(ctx, &mysqlTx{q: q})
	})
}

// List: 条件に応じて動的WHERE + ORDER + LIMIT/OFFSET
func (s *MySQLStore) ListRecords(ctx context.Context, f RecordFilter) ([]Record, int64, error) {
	var (
		buf    bytes.Buffer
		args   []any
		wheres []string
	)
	buf.WriteString(`
	SELECT record_id, record_ulid, volunteer_id, project_id, check_in_at, check_out_at, hours_worked
	FROM attendance_records`)

	if f.VolunteerID != nil {
		wheres = append(wheres, "volunteer_id = ?")
		args = append(args, *f.VolunteerID)
	}
	if f.ProjectID != nil {
		wheres = append(wheres, "project_id = ?")
		args = append(args, *f.ProjectID)
	}
	if f.Open != nil {
		if *f.Open {
			wheres = append(wheres, "check_out_at IS NULL")
		} else {
			wheres = append(wheres, "check_out_at IS NOT NULL")
		}
	}
	where := ""
	if len(wheres) > 0 {
		where = " WHERE " + strings.Join(wheres, " AND ")
	}
	buf.WriteString(where)
	buf.WriteString(" ORDER BY check_in_at DESC, record_id DESC")
	buf.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", f.Limit, f.Offset))

	rows, err := s.db.QueryContext(ctx, buf.String(), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM attendance_records"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// SumHours: プロジェクト内のボランティア別合計（退勤済みのみ時間を加算）
func (s *MySQLStore) SumHours(ctx context.Context, projectID int64) ([]HoursRow, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT volunteer_id, COUNT(*) AS sessions, COALESCE(SUM(hours_worked), 0) AS hours
	FROM attendance_records
	WHERE project_id = ?
	GROUP BY volunteer_id
	ORDER BY hours DESC, volunteer_id ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HoursRow
	for rows.Next() {
		var h HoursRow
		if err := rows.Scan(&h.VolunteerID, &h.Sessions, &h.Hours); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *MySQLStore) SumVolunteerHours(ctx context.Context, volunteerID int64) (HoursRow, error) {
	h := HoursRow{VolunteerID: volunteerID}
	err := s.db.QueryRowContext(ctx, `
	SELECT COUNT(*), COALESCE(SUM(hours_worked), 0)
	FROM attendance_records
	WHERE volunteer_id = ?`, volunteerID).Scan(&h.Sessions, &h.Hours)
	return h, err
}

type mysqlTx struct{ q db.DBTX }

func (t *mysqlTx) LockCredential(ctx context.Context, kind Kind, digest string) (*Credential, error) {
	// コードは衝突し得るので最新の発行分を採用
	q := fmt.Sprintf(`
	SELECT credential_id, digest, project_id, action, bound_to, issued_at, expires_at, consumed, consumed_by, consumed_at
	FROM %s
	WHERE digest = ?
	ORDER BY issued_at DESC, credential_id DESC
	LIMIT 1
	FOR UPDATE`, credentialTable(kind))

	c := Credential{Kind: kind}
	var (
		action     string
		boundTo    sql.NullInt64
		consumedBy sql.NullInt64
		consumedAt sql.NullTime
	)
	err := t.q.QueryRowContext(ctx, q, digest).Scan(
		&c.ID, &c.Digest, &c.ProjectID, &action, &boundTo,
		&c.IssuedAt, &c.ExpiresAt, &c.Consumed, &consumedBy, &consumedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.Action = Action(action)
	c.BoundTo = int64Ptr(boundTo)
	c.ConsumedBy = int64Ptr(consumedBy)
	if consumedAt.Valid {
		at := consumedAt.Time.UTC()
		c.ConsumedAt = &at
	}
	c.IssuedAt = c.IssuedAt.UTC()
	c.ExpiresAt = c.ExpiresAt.UTC()
	return &c, nil
}

func (t *mysqlTx) LockOpenRecord(ctx context.Context, volunteerID, projectID int64) (*Record, error) {
	row := t.q.QueryRowContext(ctx, `
	SELECT record_id, record_ulid, volunteer_id, project_id, check_in_at, check_out_at, hours_worked
	FROM attendance_records
	WHERE volunteer_id = ? AND project_id = ? AND open_slot = 1
	LIMIT 1
	FOR UPDATE`, volunteerID, projectID)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

func (t *mysqlTx) InsertRecord(ctx context.Context, r *Record) error {
	res, err := t.q.ExecContext(ctx, `
	INSERT INTO attendance_records (record_ulid, volunteer_id, project_id, check_in_at, open_slot)
	VALUES (?, ?, ?, ?, 1)`, r.RecordULID, r.VolunteerID, r.ProjectID, r.CheckInAt)
	if err != nil {
		return translateMySQL(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	r.ID = id
	return nil
}

func (t *mysqlTx) CloseRecord(ctx context.Context, id int64, at time.Time, hours float64) error {
	res, err := t.q.ExecContext(ctx, `
	UPDATE attendance_records
	SET check_out_at = ?, hours_worked = ?, open_slot = NULL
	WHERE record_id = ? AND open_slot = 1`, at, hours, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return errNoOpenSession()
	}
	return nil
}

func (t *mysqlTx) MarkConsumed(ctx context.Context, c *Credential, by int64, at time.Time) (bool, error) {
	q := fmt.Sprintf(`
	UPDATE %s
	SET consumed = 1, consumed_by = ?, consumed_at = ?
	WHERE credential_id = ? AND consumed = 0`, credentialTable(c.Kind))
	res, err := t.q.ExecContext(ctx, q, by, at, c.ID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ===== helpers =====

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(s rowScanner) (*Record, error) {
	var (
		r     Record
		outAt sql.NullTime
		hours sql.NullFloat64
	)
	if err := s.Scan(&r.ID, &r.RecordULID, &r.VolunteerID, &r.ProjectID, &r.CheckInAt, &outAt, &hours); err != nil {
		return nil, err
	}
	r.CheckInAt = r.CheckInAt.UTC()
	if outAt.Valid {
		t := outAt.Time.UTC()
		r.CheckOutAt = &t
	}
	if hours.Valid {
		h := hours.Float64
		r.HoursWorked = &h
	}
	return &r, nil
}

func translateMySQL(err error) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == 1062 {
		return fmt.Errorf("%w: %s", errDuplicate, me.Message)
	}
	return err
}

func nullInt64(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}
