package attendance

import (
	"encoding/hex"
	"math"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

type Action string

const (
	ActionCheckIn  Action = "check_in"
	ActionCheckOut Action = "check_out"
)

func (a Action) Valid() bool { return a == ActionCheckIn || a == ActionCheckOut }

// ParseAction: "check_in" / "check-in" / "checkin" などの表記揺れを吸収
func ParseAction(s string) (Action, bool) {
	n := strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.ToLower(strings.TrimSpace(s)))
	switch n {
	case "checkin":
		return ActionCheckIn, true
	case "checkout":
		return ActionCheckOut, true
	}
	return "", false
}

// Kind: 資格情報の種類（QRトークン or 6桁コード）。保存先テーブルも分かれる
type Kind string

const (
	KindToken Kind = "token"
	KindCode  Kind = "code"
)

// Credential: 発行済みトークン/コード1件。値そのものは保持せずダイジェストで引く
type Credential struct {
	ID         int64
	Kind       Kind
	Digest     string
	ProjectID  int64
	Action     Action
	BoundTo    *int64
	IssuedAt   time.Time
	ExpiresAt  time.Time
	Consumed   bool
	ConsumedBy *int64
	ConsumedAt *time.Time
}

// ExpiredAt: expiresAt ちょうどはまだ有効
func (c *Credential) ExpiredAt(t time.Time) bool { return c.ExpiresAt.Before(t) }

// Record: (volunteer, project) ごとの出勤/退勤ペア
type Record struct {
	ID          int64
	RecordULID  string
	VolunteerID int64
	ProjectID   int64
	CheckInAt   time.Time
	CheckOutAt  *time.Time
	HoursWorked *float64
}

func (r Record) Open() bool { return r.CheckOutAt == nil }

type Project struct {
	ID   int64
	Name string
}

// Outcome: Verifier の確定結果
type Outcome struct {
	Action      Action
	ProjectID   int64
	ProjectName string
	At          time.Time
	HoursWorked *float64
	RecordULID  string
	VolunteerID int64
}

// HoursRow: プロジェクト別の集計行
type HoursRow struct {
	VolunteerID int64
	Sessions    int64
	Hours       float64
}

func hoursBetween(in, out time.Time) float64 {
	h := out.Sub(in).Hours()
	if h < 0 {
		return 0
	}
	return h
}

func roundHours(h float64) float64 { return math.Round(h*100) / 100 }

func digest(kind Kind, value string) string {
	sum := blake2b.Sum256([]byte(string(kind) + ":" + value))
	return hex.EncodeToString(sum[:])
}

func normalizeTime(t time.Time) time.Time { return t.UTC().Truncate(time.Microsecond) }
