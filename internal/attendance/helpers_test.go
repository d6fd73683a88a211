package attendance

import (
	"context"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"VMS-backend/internal/platform/db"
	"VMS-backend/internal/platform/events"
	"VMS-backend/internal/platform/logger"
)

var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func TestMain(m *testing.M) {
	logger.SetOutput(io.Discard, "")
	os.Exit(m.Run())
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type stubRenderer struct{}

func (stubRenderer) Render(payload string) (string, error) { return "qr:" + payload, nil }

// sequenceCodes: 決まった順にコードを返す（尽きたら最後を繰り返す）
func sequenceCodes(codes ...string) CodeSource {
	var (
		mu sync.Mutex
		i  int
	)
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		c := codes[i]
		if i < len(codes)-1 {
			i++
		}
		return c, nil
	}
}

type fixture struct {
	store  *GormStore
	svc    *Service
	clock  *fakeClock
	events *events.Recorder
}

func newFixture(t *testing.T, policy Policy, opts ...Option) *fixture {
	t.Helper()
	gdb, err := db.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.CloseSQLite(gdb) })

	store := NewGormStore(gdb)
	if err := store.AutoMigrate(); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	ctx := context.Background()
	for _, p := range []Project{{ID: 42, Name: "Beach Cleanup"}, {ID: 7, Name: "Food Bank"}} {
		if err := store.SaveProject(ctx, p); err != nil {
			t.Fatalf("seed project: %v", err)
		}
	}

	clock := &fakeClock{t: t0}
	rec := &events.Recorder{}
	base := []Option{WithClock(clock), WithPublisher(rec), WithRenderer(stubRenderer{})}
	svc := NewService(store, policy, append(base, opts...)...)
	return &fixture{store: store, svc: svc, clock: clock, events: rec}
}

func (f *fixture) issueToken(t *testing.T, projectID int64, a Action) *TokenResponse {
	t.Helper()
	res, err := f.svc.IssueToken(context.Background(), projectID, a)
	if err != nil {
		t.Fatalf("IssueToken(%d, %s): %v", projectID, a, err)
	}
	return res
}

func (f *fixture) resolve(raw string, account int64, at time.Time) (*Outcome, error) {
	return f.svc.Resolve(context.Background(), ResolveInput{RawInput: raw, AccountID: account, ActionTime: at})
}

func (f *fixture) mustResolve(t *testing.T, raw string, account int64, at time.Time) *Outcome {
	t.Helper()
	out, err := f.resolve(raw, account, at)
	if err != nil {
		t.Fatalf("Resolve(%q): %v", raw, err)
	}
	return out
}

func (f *fixture) credential(t *testing.T, kind Kind, value string) *Credential {
	t.Helper()
	var c *Credential
	err := f.store.WithTx(context.Background(), func(ctx context.Context, tx Tx) error {
		var err error
		c, err = tx.LockCredential(ctx, kind, digest(kind, value))
		return err
	})
	if err != nil {
		t.Fatalf("lookup credential: %v", err)
	}
	if c == nil {
		t.Fatalf("credential %s not found", value)
	}
	return c
}

func wantCode(t *testing.T, err error, want Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got success", want)
	}
	if got := CodeOf(err); got != want {
		t.Fatalf("error class = %s, want %s (err: %v)", got, want, err)
	}
}

func round2(h *float64) float64 {
	if h == nil {
		return -1
	}
	return roundHours(*h)
}
