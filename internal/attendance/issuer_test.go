package attendance

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestIssueTokenUnknownProject(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	_, err := f.svc.IssueToken(context.Background(), 999, ActionCheckIn)
	wantCode(t, err, CodeNotFound)
}

func TestIssueTokenRejectsBadInput(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	_, err := f.svc.IssueToken(context.Background(), 0, ActionCheckIn)
	wantCode(t, err, CodeInvalidArgument)
	_, err = f.svc.IssueToken(context.Background(), 42, Action("lunch"))
	wantCode(t, err, CodeInvalidArgument)
}

func TestIssueTokenTTLPerAction(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	in := f.issueToken(t, 42, ActionCheckIn)
	out := f.issueToken(t, 42, ActionCheckOut)

	if got := in.ExpiresAt.Sub(in.IssuedAt); got != 30*time.Minute {
		t.Errorf("check-in ttl = %v, want 30m", got)
	}
	if got := out.ExpiresAt.Sub(out.IssuedAt); got != 2*time.Hour {
		t.Errorf("check-out ttl = %v, want 2h", got)
	}
	if in.Value == out.Value {
		t.Error("token values must differ")
	}
	if !strings.HasPrefix(in.RenderableForm, "qr:attend:") {
		t.Errorf("renderable form = %q", in.RenderableForm)
	}
}

func TestReissueKeepsEarlierTokenValid(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	first := f.issueToken(t, 42, ActionCheckIn)
	f.clock.Set(t0.Add(5 * time.Minute))
	_ = f.issueToken(t, 42, ActionCheckIn)

	f.mustResolve(t, first.Value, 1001, t0.Add(6*time.Minute))
}

func TestIssueTokenUsesScanBaseURL(t *testing.T) {
	p := DefaultPolicy()
	p.ScanBaseURL = "https://vms.example.org/attendance/scan"
	f := newFixture(t, p)

	tok := f.issueToken(t, 42, ActionCheckIn)
	if !strings.HasPrefix(tok.Payload, p.ScanBaseURL+"?token=") {
		t.Fatalf("payload = %q", tok.Payload)
	}
	f.mustResolve(t, tok.Payload, 1001, t0)
}

func TestIssueCodeReissuesOnActiveCollision(t *testing.T) {
	f := newFixture(t, DefaultPolicy(), WithCodeSource(sequenceCodes("111111", "111111", "222222")))

	first, err := f.svc.IssueCode(context.Background(), 42, ActionCheckIn, nil)
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.svc.IssueCode(context.Background(), 42, ActionCheckIn, nil)
	if err != nil {
		t.Fatal(err)
	}
	if first.Value != "111111" || second.Value != "222222" {
		t.Fatalf("codes = %s, %s; want 111111, 222222", first.Value, second.Value)
	}
}

func TestIssueCodeMayReuseExpiredValue(t *testing.T) {
	f := newFixture(t, DefaultPolicy(), WithCodeSource(sequenceCodes("333333")))
	if _, err := f.svc.IssueCode(context.Background(), 42, ActionCheckIn, nil); err != nil {
		t.Fatal(err)
	}

	f.clock.Set(t0.Add(time.Hour))
	again, err := f.svc.IssueCode(context.Background(), 7, ActionCheckIn, nil)
	if err != nil {
		t.Fatalf("reissue after expiry: %v", err)
	}

	// 最新の発行分（project 7）が引き当てられる
	out := f.mustResolve(t, again.Value, 1001, t0.Add(time.Hour+time.Minute))
	if out.ProjectID != 7 {
		t.Fatalf("resolved project %d, want 7", out.ProjectID)
	}
}

func TestIssueCodeGivesUpAfterRepeatedCollisions(t *testing.T) {
	f := newFixture(t, DefaultPolicy(), WithCodeSource(sequenceCodes("444444")))
	if _, err := f.svc.IssueCode(context.Background(), 42, ActionCheckIn, nil); err != nil {
		t.Fatal(err)
	}
	_, err := f.svc.IssueCode(context.Background(), 42, ActionCheckIn, nil)
	wantCode(t, err, CodeInternal)
}

func TestRandomCodeShape(t *testing.T) {
	for i := 0; i < 100; i++ {
		c, err := randomCode()
		if err != nil {
			t.Fatal(err)
		}
		if !codePattern.MatchString(c) {
			t.Fatalf("code %q is not 6 digits", c)
		}
	}
}
