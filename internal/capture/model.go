// Package capture は出欠スキャン/コード入力のクライアント側セッションを扱う。
// 1セッションにつき検証リクエストは最大1回（ネットワーク失敗時の再送のみ例外）。
package capture

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type State int

const (
	StateIdle State = iota
	StateScanning
	StateDecoded
	StateSubmitting
	StateSuccess
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateDecoded:
		return "decoded"
	case StateSubmitting:
		return "submitting"
	case StateSuccess:
		return "success"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Class: サーバの error_class と同じ文字列
type Class string

const (
	ClassInvalidToken     Class = "INVALID_TOKEN"
	ClassExpired          Class = "EXPIRED"
	ClassAlreadyUsed      Class = "ALREADY_USED"
	ClassWrongAction      Class = "WRONG_ACTION"
	ClassNoOpenSession    Class = "NO_OPEN_SESSION"
	ClassAlreadyCheckedIn Class = "ALREADY_CHECKED_IN"
	ClassRateLimited      Class = "RATE_LIMITED"
	ClassPermissionDenied Class = "PERMISSION_DENIED"
	ClassCameraLost       Class = "CAMERA_LOST"
	ClassUnauthenticated  Class = "UNAUTHENTICATED"
	ClassNetworkFailure   Class = "NETWORK_FAILURE"
)

// Disposition: 失敗時に利用者へ求める対応
type Disposition int

const (
	// DispositionRedirect: 説明を出して安全な画面へ自動遷移
	DispositionRedirect Disposition = iota
	// DispositionRemediate: 権限付与・再ログインなど利用者の操作が必要
	DispositionRemediate
	// DispositionRetry: 同じペイロードで再送可
	DispositionRetry
)

func (c Class) Disposition() Disposition {
	switch c {
	case ClassPermissionDenied, ClassCameraLost, ClassUnauthenticated:
		return DispositionRemediate
	case ClassNetworkFailure:
		return DispositionRetry
	}
	return DispositionRedirect
}

type Failure struct {
	Class   Class
	Message string
	Err     error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Class, f.Message, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Class, f.Message)
}

func (f *Failure) Unwrap() error { return f.Err }

// classify: Verifier が *Failure 以外を返したら到達不能扱い
func classify(err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return &Failure{Class: ClassNetworkFailure, Message: "could not reach the attendance service", Err: err}
}

type Outcome struct {
	Action      string
	ProjectID   int64
	ProjectName string
	At          time.Time
	HoursWorked *float64
}

type Request struct {
	RawInput   string
	ActionTime time.Time
	Expect     string // "" / check_in / check_out
}

// Verifier: サーバの検証エンドポイント（HTTPVerifier が実装）
type Verifier interface {
	Verify(ctx context.Context, req Request) (*Outcome, error)
}

// Result: 終端状態（Success / Failed）のスナップショット
type Result struct {
	State   State
	Payload string
	Outcome *Outcome
	Failure *Failure
}

var (
	ErrSessionClosed     = errors.New("capture: session closed")
	ErrBusy              = errors.New("capture: a flow is already running")
	ErrNotRetryable      = errors.New("capture: last failure is not retryable")
	ErrStreamEnded       = errors.New("capture: frame stream ended without a payload")
	ErrInvalidCodeFormat = errors.New("capture: code must be exactly 6 digits")
)
