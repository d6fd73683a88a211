package attendance

import (
	"context"
	"errors"
	"time"

	"VMS-backend/internal/platform/events"
	"VMS-backend/internal/platform/logger"
	"VMS-backend/internal/platform/ratelimit"
)

type ResolveInput struct {
	RawInput   string
	AccountID  int64
	ActionTime time.Time // ゼロ値ならサーバ時刻
	Expect     Action    // 空なら資格情報側の action に従う
}

// Resolve: スキャン/コード入力共通の検証・消費。
// 判定順: 未登録 → 期限切れ → 使用済み → action 不一致 → セッション状態。
// 消費フラグと出欠記録の更新は同一 Tx でコミットする。
func (s *Service) Resolve(ctx context.Context, in ResolveInput) (*Outcome, error) {
	if in.AccountID <= 0 {
		return nil, errUnauthenticated()
	}
	if in.Expect != "" && !in.Expect.Valid() {
		return nil, ErrInvalid("expect must be check_in or check_out")
	}

	parsed, err := ParseInput(in.RawInput)
	if err != nil {
		return nil, err
	}

	at := in.ActionTime
	if at.IsZero() {
		at = s.now()
	}
	at = normalizeTime(at)

	if parsed.Kind == KindCode {
		if err := s.allowCodeAttempt(ctx, in.AccountID); err != nil {
			return nil, err
		}
	}

	d := digest(parsed.Kind, parsed.Value)
	out := Outcome{At: at, VolunteerID: in.AccountID}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		cred, err := tx.LockCredential(ctx, parsed.Kind, d)
		if err != nil {
			return err
		}
		if cred == nil {
			return errInvalidToken()
		}
		// 他人に紐付いたコードは存在しないものとして扱う
		if cred.BoundTo != nil && *cred.BoundTo != in.AccountID {
			return errInvalidToken()
		}
		if cred.ExpiredAt(at) {
			return errExpired()
		}
		if cred.Consumed {
			return errAlreadyUsed()
		}
		if in.Expect != "" && cred.Action != in.Expect {
			return errWrongAction(cred.Action)
		}

		out.Action = cred.Action
		out.ProjectID = cred.ProjectID

		open, err := tx.LockOpenRecord(ctx, in.AccountID, cred.ProjectID)
		if err != nil {
			return err
		}

		switch cred.Action {
		case ActionCheckIn:
			if open != nil {
				return errAlreadyCheckedIn()
			}
			id, err := s.id.New()
			if err != nil {
				return err
			}
			rec := &Record{RecordULID: id, VolunteerID: in.AccountID, ProjectID: cred.ProjectID, CheckInAt: at}
			if err := tx.InsertRecord(ctx, rec); err != nil {
				// 並行する別トークンでの出勤は UNIQUE(open_slot) で弾かれる
				if errors.Is(err, errDuplicate) {
					return errAlreadyCheckedIn()
				}
				return err
			}
			out.RecordULID = rec.RecordULID

		case ActionCheckOut:
			if open == nil {
				return errNoOpenSession()
			}
			hours := hoursBetween(open.CheckInAt, at)
			if err := tx.CloseRecord(ctx, open.ID, at, hours); err != nil {
				return err
			}
			out.HoursWorked = &hours
			out.RecordULID = open.RecordULID

		default:
			return ErrInternal("credential has an unknown action")
		}

		ok, err := tx.MarkConsumed(ctx, cred, in.AccountID, at)
		if err != nil {
			return err
		}
		if !ok {
			return errAlreadyUsed()
		}
		return nil
	})
	if err != nil {
		logResolveFailure(ctx, parsed.Kind, err)
		return nil, err
	}

	// プロジェクト名は表示用。取れなくても結果は確定済み
	if p, err := s.repo.GetProject(ctx, out.ProjectID); err == nil {
		out.ProjectName = p.Name
	} else {
		logger.WarnContext(ctx, "project lookup failed after attendance commit", "project_id", out.ProjectID, "err", err)
	}

	logger.InfoContext(ctx, "attendance recorded",
		"kind", parsed.Kind, "action", out.Action, "project_id", out.ProjectID, "record_id", out.RecordULID)
	s.publish(ctx, out)
	return &out, nil
}

// コード総当たり対策。リミッタ障害時は通す
func (s *Service) allowCodeAttempt(ctx context.Context, accountID int64) error {
	if s.limiter == nil {
		return nil
	}
	ok, err := s.limiter.Allow(ctx, ratelimit.Key("attendance_code", accountID))
	if err != nil {
		logger.WarnContext(ctx, "code rate limiter unavailable", "err", err)
		return nil
	}
	if !ok {
		return errRateLimited()
	}
	return nil
}

func (s *Service) publish(ctx context.Context, out Outcome) {
	subject := events.SubjectCheckedIn
	if out.Action == ActionCheckOut {
		subject = events.SubjectCheckedOut
	}
	ev := events.AttendanceEvent{
		RecordID:    out.RecordULID,
		VolunteerID: out.VolunteerID,
		ProjectID:   out.ProjectID,
		Action:      string(out.Action),
		At:          out.At,
		HoursWorked: out.HoursWorked,
	}
	if err := s.events.Publish(ctx, subject, ev); err != nil {
		logger.WarnContext(ctx, "attendance event publish failed", "subject", subject, "err", err)
	}
}

func logResolveFailure(ctx context.Context, kind Kind, err error) {
	code := CodeOf(err)
	if code == CodeInternal {
		logger.ErrorContext(ctx, "attendance resolve failed", "kind", kind, "err", err)
		return
	}
	logger.InfoContext(ctx, "attendance rejected", "kind", kind, "class", code)
}
