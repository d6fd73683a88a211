package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// gorm 行モデル（SQLite 用）。MySQL 側は platform/db/schema.sql

type projectRow struct {
	ProjectID int64  `gorm:"column:project_id;primaryKey"`
	Name      string `gorm:"column:name;size:255;not null"`
}

func (projectRow) TableName() string { return "projects" }

type tokenRow struct {
	CredentialID int64      `gorm:"column:credential_id;primaryKey;autoIncrement"`
	Digest       string     `gorm:"column:digest;size:64;not null;uniqueIndex:uq_attendance_tokens_digest"`
	ProjectID    int64      `gorm:"column:project_id;not null;index:idx_attendance_tokens_project"`
	Action       string     `gorm:"column:action;size:16;not null"`
	BoundTo      *int64     `gorm:"column:bound_to"`
	IssuedAt     time.Time  `gorm:"column:issued_at;not null"`
	ExpiresAt    time.Time  `gorm:"column:expires_at;not null"`
	Consumed     bool       `gorm:"column:consumed;not null;default:false"`
	ConsumedBy   *int64     `gorm:"column:consumed_by"`
	ConsumedAt   *time.Time `gorm:"column:consumed_at"`
}

func (tokenRow) TableName() string { return "attendance_tokens" }

type codeRow struct {
	CredentialID int64      `gorm:"column:credential_id;primaryKey;autoIncrement"`
	Digest       string     `gorm:"column:digest;size:64;not null;index:idx_attendance_codes_digest"`
	ProjectID    int64      `gorm:"column:project_id;not null;index:idx_attendance_codes_project"`
	Action       string     `gorm:"column:action;size:16;not null"`
	BoundTo      *int64     `gorm:"column:bound_to"`
	IssuedAt     time.Time  `gorm:"column:issued_at;not null"`
	ExpiresAt    time.Time  `gorm:"column:expires_at;not null"`
	Consumed     bool       `gorm:"column:consumed;not null;default:false"`
	ConsumedBy   *int64     `gorm:"column:consumed_by"`
	ConsumedAt   *time.Time `gorm:"column:consumed_at"`
}

func (codeRow) TableName() string { return "attendance_codes" }

type recordRow struct {
	RecordID    int64      `gorm:"column:record_id;primaryKey;autoIncrement"`
	RecordULID  string     `gorm:"column:record_ulid;size:26;not null;uniqueIndex:uq_attendance_records_ulid"`
	VolunteerID int64      `gorm:"column:volunteer_id;not null;uniqueIndex:uq_attendance_records_open,priority:1"`
	ProjectID   int64      `gorm:"column:project_id;not null;uniqueIndex:uq_attendance_records_open,priority:2;index:idx_attendance_records_project"`
	OpenSlot    *int       `gorm:"column:open_slot;uniqueIndex:uq_attendance_records_open,priority:3"`
	CheckInAt   time.Time  `gorm:"column:check_in_at;not null"`
	CheckOutAt  *time.Time `gorm:"column:check_out_at"`
	HoursWorked *float64   `gorm:"column:hours_worked"`
}

func (recordRow) TableName() string { return "attendance_records" }

func (r tokenRow) toModel() *Credential {
	return &Credential{
		ID: r.CredentialID, Kind: KindToken, Digest: r.Digest, ProjectID: r.ProjectID,
		Action: Action(r.Action), BoundTo: r.BoundTo,
		IssuedAt: r.IssuedAt.UTC(), ExpiresAt: r.ExpiresAt.UTC(),
		Consumed: r.Consumed, ConsumedBy: r.ConsumedBy, ConsumedAt: utcPtr(r.ConsumedAt),
	}
}

func (r codeRow) toModel() *Credential {
	return &Credential{
		ID: r.CredentialID, Kind: KindCode, Digest: r.Digest, ProjectID: r.ProjectID,
		Action: Action(r.Action), BoundTo: r.BoundTo,
		IssuedAt: r.IssuedAt.UTC(), ExpiresAt: r.ExpiresAt.UTC(),
		Consumed: r.Consumed, ConsumedBy: r.ConsumedBy, ConsumedAt: utcPtr(r.ConsumedAt),
	}
}

func (r recordRow) toModel() Record {
	return Record{
		ID:          r.RecordID,
		RecordULID:  r.RecordULID,
		VolunteerID: r.VolunteerID,
		ProjectID:   r.ProjectID,
		CheckInAt:   r.CheckInAt.UTC(),
		CheckOutAt:  utcPtr(r.CheckOutAt),
		HoursWorked: r.HoursWorked,
	}
}

// GormStore: SQLite 上の Repository。接続は1本（db.OpenSQLite）なので Tx は直列に実行される
type GormStore struct{ db *gorm.DB }

func NewGormStore(gdb *gorm.DB) *GormStore { return &GormStore{db: gdb} }

func (s *GormStore) AutoMigrate() error {
	return s.db.AutoMigrate(&projectRow{}, &tokenRow{}, &codeRow{}, &recordRow{})
}

// SaveProject: 開発用のプロジェクト登録（本番は外部のプロジェクト管理が持つ）
func (s *GormStore) SaveProject(ctx context.Context, p Project) error {
	return s.db.WithContext(ctx).Save(&projectRow{ProjectID: p.ID, Name: p.Name}).Error
}

func (s *GormStore) GetProject(ctx context.Context, id int64) (*Project, error) {
	var row projectRow
	err := s.db.WithContext(ctx).Where("project_id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound("project not found")
	}
	if err != nil {
		return nil, err
	}
	return &Project{ID: row.ProjectID, Name: row.Name}, nil
}

func (s *GormStore) InsertCredential(ctx context.Context, c *Credential) error {
	q := s.db.WithContext(ctx)
	switch c.Kind {
	case KindCode:
		row := codeRow{
			Digest: c.Digest, ProjectID: c.ProjectID, Action: string(c.Action), BoundTo: c.BoundTo,
			IssuedAt: c.IssuedAt, ExpiresAt: c.ExpiresAt,
		}
		if err := q.Create(&row).Error; err != nil {
			return translateSQLite(err)
		}
		c.ID = row.CredentialID
	default:
		row := tokenRow{
			Digest: c.Digest, ProjectID: c.ProjectID, Action: string(c.Action), BoundTo: c.BoundTo,
			IssuedAt: c.IssuedAt, ExpiresAt: c.ExpiresAt,
		}
		if err := q.Create(&row).Error; err != nil {
			return translateSQLite(err)
		}
		c.ID = row.CredentialID
	}
	return nil
}

// ActiveCodeExists: SQLite の日時は文字列なので期限判定は Go 側で行う
func (s *GormStore) ActiveCodeExists(ctx context.Context, digest string, at time.Time) (bool, error) {
	var rows []codeRow
	if err := s.db.WithContext(ctx).Where("digest = ? AND consumed = ?", digest, false).Find(&rows).Error; err != nil {
		return false, err
	}
	for _, r := range rows {
		if !r.ExpiresAt.Before(at) {
			return true, nil
		}
	}
	return false, nil
}

func (s *GormStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &gormTx{db: tx})
	})
}

func recordScope(f RecordFilter) func(*gorm.DB) *gorm.DB {
	return func(q *gorm.DB) *gorm.DB {
		if f.VolunteerID != nil {
			q = q.Where("volunteer_id = ?", *f.VolunteerID)
		}
		if f.ProjectID != nil {
			q = q.Where("project_id = ?", *f.ProjectID)
		}
		if f.Open != nil {
			if *f.Open {
				q = q.Where("check_out_at IS NULL")
			} else {
				q = q.Where("check_out_at IS NOT NULL")
			}
		}
		return q
	}
}

func (s *GormStore) ListRecords(ctx context.Context, f RecordFilter) ([]Record, int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&recordRow{}).Scopes(recordScope(f)).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []recordRow
	err := s.db.WithContext(ctx).Scopes(recordScope(f)).
		Order("check_in_at DESC").Order("record_id DESC").
		Limit(f.Limit).Offset(f.Offset).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	out := make([]Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, total, nil
}

func (s *GormStore) SumHours(ctx context.Context, projectID int64) ([]HoursRow, error) {
	var out []HoursRow
	err := s.db.WithContext(ctx).Model(&recordRow{}).
		Select("volunteer_id, COUNT(*) AS sessions, COALESCE(SUM(hours_worked), 0) AS hours").
		Where("project_id = ?", projectID).
		Group("volunteer_id").
		Order("hours DESC").Order("volunteer_id ASC").
		Scan(&out).Error
	return out, err
}

func (s *GormStore) SumVolunteerHours(ctx context.Context, volunteerID int64) (HoursRow, error) {
	h := HoursRow{VolunteerID: volunteerID}
	row := s.db.WithContext(ctx).Model(&recordRow{}).
		Select("COUNT(*), COALESCE(SUM(hours_worked), 0)").
		Where("volunteer_id = ?", volunteerID).
		Row()
	if err := row.Scan(&h.Sessions, &h.Hours); err != nil {
		return HoursRow{}, err
	}
	return h, nil
}

type gormTx struct{ db *gorm.DB }

func (t *gormTx) LockCredential(ctx context.Context, kind Kind, digest string) (*Credential, error) {
	q := t.db.WithContext(ctx).Where("digest = ?", digest).Order("issued_at DESC").Order("credential_id DESC")
	if kind == KindCode {
		var row codeRow
		if err := q.Take(&row).Error; err != nil {
			return nil, notFoundAsNil(err)
		}
		return row.toModel(), nil
	}
	var row tokenRow
	if err := q.Take(&row).Error; err != nil {
		return nil, notFoundAsNil(err)
	}
	return row.toModel(), nil
}

func (t *gormTx) LockOpenRecord(ctx context.Context, volunteerID, projectID int64) (*Record, error) {
	var row recordRow
	err := t.db.WithContext(ctx).
		Where("volunteer_id = ? AND project_id = ? AND open_slot = ?", volunteerID, projectID, 1).
		Take(&row).Error
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	r := row.toModel()
	return &r, nil
}

func (t *gormTx) InsertRecord(ctx context.Context, r *Record) error {
	open := 1
	row := recordRow{
		RecordULID:  r.RecordULID,
		VolunteerID: r.VolunteerID,
		ProjectID:   r.ProjectID,
		OpenSlot:    &open,
		CheckInAt:   r.CheckInAt,
	}
	if err := t.db.WithContext(ctx).Create(&row).Error; err != nil {
		return translateSQLite(err)
	}
	r.ID = row.RecordID
	return nil
}

func (t *gormTx) CloseRecord(ctx context.Context, id int64, at time.Time, hours float64) error {
	res := t.db.WithContext(ctx).Model(&recordRow{}).
		Where("record_id = ? AND open_slot = ?", id, 1).
		Updates(map[string]any{"check_out_at": at, "hours_worked": hours, "open_slot": nil})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return errNoOpenSession()
	}
	return nil
}

func (t *gormTx) MarkConsumed(ctx context.Context, c *Credential, by int64, at time.Time) (bool, error) {
	var model any = &tokenRow{}
	if c.Kind == KindCode {
		model = &codeRow{}
	}
	res := t.db.WithContext(ctx).Model(model).
		Where("credential_id = ? AND consumed = ?", c.ID, false).
		Updates(map[string]any{"consumed": true, "consumed_by": by, "consumed_at": at})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func notFoundAsNil(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}

func translateSQLite(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %v", errDuplicate, err)
	}
	return err
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
