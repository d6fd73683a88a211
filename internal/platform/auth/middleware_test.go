package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

var testSecret = []byte("test-secret")

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	authed := r.Group("/", RequireAuth(testSecret))
	authed.GET("/me", func(c *gin.Context) {
		id, ok := AccountID(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": id, "role": Role(c)})
	})
	authed.GET("/ops", RequireRole(RoleOperator), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func do(t *testing.T, r http.Handler, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func mustToken(t *testing.T, id int64, role string, ttl time.Duration) string {
	t.Helper()
	tok, err := NewAccessToken(testSecret, id, role, ttl, time.Now())
	if err != nil {
		t.Fatalf("NewAccessToken: %v", err)
	}
	return tok
}

func TestRequireAuth(t *testing.T) {
	r := newRouter()

	if w := do(t, r, "/me", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("missing header: status = %d, want 401", w.Code)
	}
	if w := do(t, r, "/me", "garbage"); w.Code != http.StatusUnauthorized {
		t.Errorf("garbage token: status = %d, want 401", w.Code)
	}
	if w := do(t, r, "/me", mustToken(t, 5, RoleVolunteer, -time.Minute)); w.Code != http.StatusUnauthorized {
		t.Errorf("expired token: status = %d, want 401", w.Code)
	}

	w := do(t, r, "/me", mustToken(t, 5, RoleVolunteer, time.Hour))
	if w.Code != http.StatusOK {
		t.Fatalf("valid token: status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestRejectsForeignSecret(t *testing.T) {
	r := newRouter()
	tok, err := NewAccessToken([]byte("other"), 5, RoleVolunteer, time.Hour, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if w := do(t, r, "/me", tok); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestRequireRole(t *testing.T) {
	r := newRouter()

	if w := do(t, r, "/ops", mustToken(t, 5, RoleVolunteer, time.Hour)); w.Code != http.StatusForbidden {
		t.Errorf("volunteer: status = %d, want 403", w.Code)
	}
	if w := do(t, r, "/ops", mustToken(t, 9, RoleOperator, time.Hour)); w.Code != http.StatusNoContent {
		t.Errorf("operator: status = %d, want 204", w.Code)
	}
}

func TestNewAccessTokenRejectsBadAccount(t *testing.T) {
	if _, err := NewAccessToken(testSecret, 0, RoleVolunteer, time.Hour, time.Now()); err == nil {
		t.Fatal("expected error for account id 0")
	}
}

func TestRequireAuthWithCustomAbort(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var gotStatus int
	var gotCode string
	r.GET("/v", RequireAuthWith(testSecret, func(c *gin.Context, status int, code, msg string) {
		gotStatus, gotCode = status, code
		c.AbortWithStatusJSON(status, gin.H{"success": false, "message": msg})
	}), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	if w := do(t, r, "/v", ""); w.Code != http.StatusUnauthorized || gotStatus != http.StatusUnauthorized {
		t.Fatalf("status = %d (abort saw %d), want 401", w.Code, gotStatus)
	}
	if gotCode != codeUnauthenticated {
		t.Fatalf("code = %q", gotCode)
	}
	if w := do(t, r, "/v", mustToken(t, 1, RoleVolunteer, time.Minute)); w.Code != http.StatusNoContent {
		t.Fatalf("authorized status = %d", w.Code)
	}
}
