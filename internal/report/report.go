// Package report は検証結果を利用者向けの表示状態に変換する。
package report

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"VMS-backend/internal/capture"
)

const (
	DefaultRedirectTo    = "/"
	DefaultRedirectDelay = 3 * time.Second
)

type Kind int

const (
	KindSuccess Kind = iota
	KindFailure
)

// NextStep: 表示後に UI が取る動作
type NextStep int

const (
	NextNone NextStep = iota
	NextRedirect
	NextRemediate
	NextRetry
)

func (n NextStep) String() string {
	switch n {
	case NextRedirect:
		return "redirect"
	case NextRemediate:
		return "remediate"
	case NextRetry:
		return "retry"
	}
	return "none"
}

type View struct {
	Kind        Kind
	Title       string
	Action      string
	ProjectName string
	At          string
	Hours       string // check_out の成功時のみ。小数2桁
	ErrorClass  capture.Class
	Message     string
	NextStep    NextStep

	RedirectTo    string
	RedirectAfter time.Duration
}

type Reporter struct {
	printer       *message.Printer
	loc           *time.Location
	redirectTo    string
	redirectDelay time.Duration
}

type Option func(*Reporter)

func WithLanguage(tag language.Tag) Option {
	return func(r *Reporter) { r.printer = message.NewPrinter(tag) }
}

func WithLocation(loc *time.Location) Option { return func(r *Reporter) { r.loc = loc } }

func WithRedirect(to string, after time.Duration) Option {
	return func(r *Reporter) {
		r.redirectTo = to
		if after > 0 {
			r.redirectDelay = after
		}
	}
}

func New(opts ...Option) *Reporter {
	r := &Reporter{
		printer:       message.NewPrinter(language.English),
		loc:           time.UTC,
		redirectTo:    DefaultRedirectTo,
		redirectDelay: DefaultRedirectDelay,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// FromResult: Success/Failed の結果から表示を組み立てる
func (r *Reporter) FromResult(res *capture.Result) View {
	if res == nil {
		return r.failure(&capture.Failure{Class: capture.ClassNetworkFailure, Message: "no result"})
	}
	if res.Failure != nil {
		return r.failure(res.Failure)
	}
	return r.success(res.Outcome)
}

func (r *Reporter) success(out *capture.Outcome) View {
	if out == nil {
		return r.failure(&capture.Failure{Class: capture.ClassNetworkFailure, Message: "empty response"})
	}
	v := View{
		Kind:        KindSuccess,
		Action:      out.Action,
		ProjectName: out.ProjectName,
		NextStep:    NextNone,
	}
	if !out.At.IsZero() {
		v.At = out.At.In(r.loc).Format("2006-01-02 15:04")
	}
	switch out.Action {
	case "check_out":
		v.Title = "Checked out"
		if out.HoursWorked != nil {
			v.Hours = r.Hours(*out.HoursWorked)
		}
	default:
		v.Title = "Checked in"
	}
	return v
}

func (r *Reporter) failure(f *capture.Failure) View {
	v := View{
		Kind:       KindFailure,
		ErrorClass: f.Class,
		Title:      title(f.Class),
		Message:    explain(f),
	}
	switch f.Class.Disposition() {
	case capture.DispositionRetry:
		v.NextStep = NextRetry
	case capture.DispositionRemediate:
		v.NextStep = NextRemediate
	default:
		v.NextStep = NextRedirect
		v.RedirectTo = r.redirectTo
		v.RedirectAfter = r.redirectDelay
	}
	return v
}

// Hours: 2.5 → "2.50"
func (r *Reporter) Hours(h float64) string { return r.printer.Sprintf("%.2f", h) }

// ScheduleRedirect: NextRedirect の表示なら遅延後に navigate を呼ぶ。戻り値で取り消し
func ScheduleRedirect(v View, navigate func(to string)) (cancel func()) {
	if v.NextStep != NextRedirect || navigate == nil {
		return func() {}
	}
	t := time.AfterFunc(v.RedirectAfter, func() { navigate(v.RedirectTo) })
	return func() { t.Stop() }
}

// Text: CLI 向けの複数行表示
func (v View) Text() string {
	var b strings.Builder
	b.WriteString(v.Title)
	b.WriteString("\n")
	if v.Kind == KindSuccess {
		if v.ProjectName != "" {
			fmt.Fprintf(&b, "  project: %s\n", v.ProjectName)
		}
		if v.At != "" {
			fmt.Fprintf(&b, "  at:      %s\n", v.At)
		}
		if v.Hours != "" {
			fmt.Fprintf(&b, "  hours:   %s\n", v.Hours)
		}
		return b.String()
	}
	fmt.Fprintf(&b, "  %s\n", v.Message)
	switch v.NextStep {
	case NextRetry:
		b.WriteString("  retry to send the same code again\n")
	case NextRedirect:
		fmt.Fprintf(&b, "  returning to %s in %s\n", v.RedirectTo, v.RedirectAfter)
	}
	return b.String()
}

func title(c capture.Class) string {
	switch c {
	case capture.ClassInvalidToken:
		return "Not recognised"
	case capture.ClassExpired:
		return "Expired"
	case capture.ClassAlreadyUsed:
		return "Already used"
	case capture.ClassWrongAction:
		return "Wrong attendance action"
	case capture.ClassNoOpenSession:
		return "Not checked in"
	case capture.ClassAlreadyCheckedIn:
		return "Already checked in"
	case capture.ClassRateLimited:
		return "Too many attempts"
	case capture.ClassPermissionDenied:
		return "Camera permission needed"
	case capture.ClassCameraLost:
		return "Camera unavailable"
	case capture.ClassUnauthenticated:
		return "Login required"
	case capture.ClassNetworkFailure:
		return "Connection problem"
	}
	return "Attendance failed"
}

func explain(f *capture.Failure) string {
	switch f.Class {
	case capture.ClassInvalidToken:
		return "This QR code or 6-digit code is not recognised. Check it with the organizer."
	case capture.ClassExpired:
		return "This QR code or 6-digit code has expired. Ask the organizer for a new one."
	case capture.ClassAlreadyUsed:
		return "This QR code or 6-digit code has already been used."
	case capture.ClassWrongAction:
		return "This QR code or 6-digit code is for a different attendance action."
	case capture.ClassNoOpenSession:
		return "You have not checked in to this project yet."
	case capture.ClassAlreadyCheckedIn:
		return "You are already checked in to this project."
	case capture.ClassRateLimited:
		return "Too many codes were entered. Wait a few minutes and try again."
	case capture.ClassPermissionDenied:
		return "Allow camera access in your browser settings, then scan again."
	case capture.ClassCameraLost:
		return "The camera stopped working. Reconnect it and scan again, or enter the 6-digit code."
	case capture.ClassUnauthenticated:
		return "Your session has ended. Log in again to record attendance."
	case capture.ClassNetworkFailure:
		return "Could not reach the server."
	}
	if f.Message != "" {
		return f.Message
	}
	return "Attendance could not be recorded."
}
