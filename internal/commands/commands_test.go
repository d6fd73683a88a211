package commands

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"VMS-backend/internal/attendance"
	"VMS-backend/internal/capture"
	"VMS-backend/internal/platform/auth"
	"VMS-backend/internal/platform/config"
	"VMS-backend/internal/platform/db"
	"VMS-backend/internal/platform/logger"
	"VMS-backend/internal/qr"
	"VMS-backend/internal/report"
)

var testSecret = []byte("commands-test-secret")

func TestMain(m *testing.M) {
	logger.SetOutput(io.Discard, "")
	os.Exit(m.Run())
}

func newTestServer(t *testing.T) (*httptest.Server, *attendance.Service) {
	t.Helper()
	gdb, err := db.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.CloseSQLite(gdb) })

	store := attendance.NewGormStore(gdb)
	if err := store.AutoMigrate(); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	if err := store.SaveProject(context.Background(), attendance.Project{ID: 42, Name: "Beach Cleanup"}); err != nil {
		t.Fatalf("save project: %v", err)
	}

	cfg := config.Default()
	svc := attendance.NewService(store, attendance.DefaultPolicy(), attendance.WithRenderer(qr.NewRenderer(128)))
	srv := httptest.NewServer(NewRouter(&cfg, svc, testSecret))
	t.Cleanup(srv.Close)
	return srv, svc
}

func volunteerToken(t *testing.T, id int64) string {
	t.Helper()
	tok, err := auth.NewAccessToken(testSecret, id, auth.RoleVolunteer, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return tok
}

func TestRouter_Healthz(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Fatalf("status=%d body=%q", resp.StatusCode, body)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
}

func TestCodeEntry_EndToEnd(t *testing.T) {
	srv, svc := newTestServer(t)
	ctx := context.Background()

	code, err := svc.IssueCode(ctx, 42, attendance.ActionCheckIn, nil)
	if err != nil {
		t.Fatalf("issue code: %v", err)
	}
	verifier := &capture.HTTPVerifier{BaseURL: srv.URL + "/api/v1", AccessToken: volunteerToken(t, 7)}

	e := capture.NewCodeEntry(verifier, capture.WithExpect("check_in"))
	defer e.Close()
	res, err := e.Submit(ctx, code.Value)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	v := report.New().FromResult(res)
	if v.Kind != report.KindSuccess || v.ProjectName != "Beach Cleanup" || v.Title != "Checked in" {
		t.Fatalf("view=%+v failure=%+v", v, res.Failure)
	}

	// 同じコードの2回目は使用済み
	again := capture.NewCodeEntry(verifier)
	defer again.Close()
	res, err = again.Submit(ctx, code.Value)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Failure == nil || res.Failure.Class != capture.ClassAlreadyUsed {
		t.Fatalf("second submit=%+v", res)
	}
	v = report.New().FromResult(res)
	if v.NextStep != report.NextRedirect || v.RedirectAfter != 3*time.Second {
		t.Errorf("view=%+v", v)
	}
}

func TestScan_EndToEndCheckOut(t *testing.T) {
	srv, svc := newTestServer(t)
	ctx := context.Background()
	verifier := &capture.HTTPVerifier{BaseURL: srv.URL + "/api/v1", AccessToken: volunteerToken(t, 7)}

	in, err := svc.IssueToken(ctx, 42, attendance.ActionCheckIn)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	out, err := svc.IssueToken(ctx, 42, attendance.ActionCheckOut)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !strings.HasPrefix(out.RenderableForm, "data:image/png;base64,") {
		t.Errorf("renderable form=%.40q", out.RenderableForm)
	}

	dir := t.TempDir()
	for i, payload := range []string{in.Payload, out.Payload} {
		path := filepath.Join(dir, "frames.txt")
		if err := os.WriteFile(path, []byte("\n"+payload+"\n"+payload+"\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		s := capture.NewSession(capture.FileCamera{Path: path}, verifier)
		res, err := s.Scan(ctx)
		s.Close()
		if err != nil {
			t.Fatalf("scan %d: %v", i, err)
		}
		if res.State != capture.StateSuccess {
			t.Fatalf("scan %d: %+v", i, res.Failure)
		}
		if i == 1 && (res.Outcome.Action != "check_out" || res.Outcome.HoursWorked == nil) {
			t.Fatalf("check-out outcome=%+v", res.Outcome)
		}
	}

	hist, err := svc.VolunteerHistory(ctx, 7, 10, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if hist.Sessions != 1 || len(hist.Records) != 1 || hist.Records[0].Open {
		t.Fatalf("history=%+v", hist)
	}
}

func TestParseProjects(t *testing.T) {
	got, err := parseProjects([]string{"42:Beach Cleanup", " 7 : Food Bank "})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(got) != 2 || got[0].ID != 42 || got[0].Name != "Beach Cleanup" || got[1].ID != 7 || got[1].Name != "Food Bank" {
		t.Fatalf("got=%+v", got)
	}

	for _, bad := range []string{"42", "x:Name", "0:Name", "5:"} {
		if _, err := parseProjects([]string{bad}); err == nil {
			t.Errorf("parseProjects(%q) should fail", bad)
		}
	}
}

func TestJWTSecret_DevFallback(t *testing.T) {
	cfg := config.Default()
	if got := string(jwtSecret(&cfg)); got != devJWTSecret {
		t.Fatalf("secret=%q", got)
	}
	cfg.Auth.JWTSecret = "configured"
	if got := string(jwtSecret(&cfg)); got != "configured" {
		t.Fatalf("secret=%q", got)
	}
}
