package capture

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHTTPVerifier_Success(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"action":"check_out","project_id":42,"project_name":"Beach Cleanup","at":"2026-03-14T12:10:00Z","hours_worked":2.17}`))
	}))
	defer srv.Close()

	v := &HTTPVerifier{BaseURL: srv.URL + "/api/v1/", AccessToken: "jwt"}
	out, err := v.Verify(context.Background(), Request{RawInput: "482913", ActionTime: t0, Expect: "check_out"})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if gotPath != "/api/v1/attendance/check-out/verify" {
		t.Errorf("path=%q", gotPath)
	}
	if gotAuth != "Bearer jwt" {
		t.Errorf("authorization=%q", gotAuth)
	}
	if gotBody["raw_input"] != "482913" || gotBody["action_time"] != "2026-03-14T09:00:00Z" {
		t.Errorf("body=%v", gotBody)
	}
	if out.ProjectName != "Beach Cleanup" || out.HoursWorked == nil || *out.HoursWorked != 2.17 {
		t.Fatalf("outcome=%+v", out)
	}
	if !out.At.Equal(time.Date(2026, 3, 14, 12, 10, 0, 0, time.UTC)) {
		t.Errorf("at=%v", out.At)
	}
}

func TestHTTPVerifier_ErrorClasses(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   Class
	}{
		{"business", http.StatusConflict, `{"success":false,"error_class":"ALREADY_USED","message":"used"}`, ClassAlreadyUsed},
		{"expired", http.StatusGone, `{"success":false,"error_class":"EXPIRED","message":"expired"}`, ClassExpired},
		{"unauthenticated", http.StatusUnauthorized, `{"error":{"code":"UNAUTHENTICATED","message":"missing bearer token"}}`, ClassUnauthenticated},
		{"server error", http.StatusInternalServerError, `{"success":false,"error_class":"INTERNAL","message":"internal error"}`, ClassNetworkFailure},
		{"garbage", http.StatusOK, `<html>`, ClassNetworkFailure},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if !strings.HasSuffix(r.URL.Path, "/attendance/verify") {
					t.Errorf("path=%q", r.URL.Path)
				}
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			v := &HTTPVerifier{BaseURL: srv.URL}
			_, err := v.Verify(context.Background(), Request{RawInput: "482913"})
			var f *Failure
			if !errors.As(err, &f) {
				t.Fatalf("err=%v, want *Failure", err)
			}
			if f.Class != tc.want {
				t.Fatalf("class=%s, want %s", f.Class, tc.want)
			}
		})
	}
}

func TestHTTPVerifier_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	v := &HTTPVerifier{BaseURL: url, Client: &http.Client{Timeout: time.Second}}
	_, err := v.Verify(context.Background(), Request{RawInput: "482913"})
	var f *Failure
	if !errors.As(err, &f) || f.Class != ClassNetworkFailure {
		t.Fatalf("err=%v, want NETWORK_FAILURE", err)
	}
}
