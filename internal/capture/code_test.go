package capture

import (
	"context"
	"errors"
	"testing"
)

func TestCodeEntry_FormatGateSkipsNetwork(t *testing.T) {
	v := &fakeVerifier{}
	e := NewCodeEntry(v)
	defer e.Close()

	for _, in := range []string{"", "12345", "1234567", "12a456", "123 456"} {
		if _, err := e.Submit(context.Background(), in); !errors.Is(err, ErrInvalidCodeFormat) {
			t.Errorf("Submit(%q) err=%v, want ErrInvalidCodeFormat", in, err)
		}
	}
	if n := len(v.Calls()); n != 0 {
		t.Fatalf("verify calls=%d, want 0", n)
	}
	if e.State() != StateIdle {
		t.Errorf("state=%v, want idle", e.State())
	}
}

func TestCodeEntry_SubmitsWithoutScanning(t *testing.T) {
	v := &fakeVerifier{responses: []verifyResult{
		{err: &Failure{Class: ClassInvalidToken, Message: "attendance token not found"}},
	}}
	var seen []State
	e := NewCodeEntry(v, OnTransition(func(_, to State) { seen = append(seen, to) }))
	defer e.Close()

	res, err := e.Submit(context.Background(), " 482913 ")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.State != StateFailed || res.Failure.Class != ClassInvalidToken {
		t.Fatalf("result=%+v", res)
	}
	if got := v.Calls()[0].RawInput; got != "482913" {
		t.Errorf("raw input=%q", got)
	}
	for _, s := range seen {
		if s == StateScanning || s == StateDecoded {
			t.Fatalf("code entry went through %v", s)
		}
	}
}

func TestCodeEntry_NonFailureErrorIsNetworkFailure(t *testing.T) {
	v := &fakeVerifier{responses: []verifyResult{{err: errors.New("timeout")}}}
	e := NewCodeEntry(v)
	defer e.Close()

	res, err := e.Submit(context.Background(), "482913")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Failure == nil || res.Failure.Class != ClassNetworkFailure {
		t.Fatalf("result=%+v", res)
	}
	if res.Failure.Class.Disposition() != DispositionRetry {
		t.Error("network failure should be retryable")
	}
}
