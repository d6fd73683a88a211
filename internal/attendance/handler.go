package attendance

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"VMS-backend/internal/platform/auth"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRouter, svc *Service, secret []byte) {
	h := &Handler{svc: svc}

	authed := r.Group("", auth.RequireAuth(secret))
	// verify 系は未認証でも {success:false, error_class} で返す
	verifier := r.Group("", auth.RequireAuthWith(secret, abortVerify))

	// 1. 検証（スキャン / コード入力の共通入口）
	// POST /attendance/verify
	verifier.POST("/attendance/verify", h.Verify)
	// action 固定版（不一致なら WRONG_ACTION）
	verifier.POST("/attendance/check-in/verify", h.verifyExpecting(ActionCheckIn))
	verifier.POST("/attendance/check-out/verify", h.verifyExpecting(ActionCheckOut))

	// 2. 本人の履歴
	// GET /me/attendance
	authed.GET("/me/attendance", h.MyAttendance)

	// 3. 運営者向け: 発行・台帳
	ops := authed.Group("", auth.RequireRole(auth.RoleOperator, auth.RoleAdmin))
	ops.POST("/projects/:project_id/attendance-tokens", h.IssueToken)
	ops.POST("/projects/:project_id/attendance-codes", h.IssueCode)
	ops.GET("/projects/:project_id/attendance/summary", h.ProjectSummary)
	ops.GET("/projects/:project_id/attendance/export.csv", h.ExportCSV)
	ops.GET("/attendance/records", h.ListRecords)
}

// ---------- handlers ----------

// POST /projects/:project_id/attendance-tokens
func (h *Handler) IssueToken(c *gin.Context) {
	projectID, ok := parseProjectID(c)
	if !ok {
		return
	}
	var req IssueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json or missing required fields"))
		return
	}
	action, ok := ParseAction(req.Action)
	if !ok {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "action must be check_in or check_out"))
		return
	}

	res, err := h.svc.IssueToken(c.Request.Context(), projectID, action)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusCreated, res)
}

// POST /projects/:project_id/attendance-codes
func (h *Handler) IssueCode(c *gin.Context) {
	projectID, ok := parseProjectID(c)
	if !ok {
		return
	}
	var req IssueCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json or missing required fields"))
		return
	}
	action, ok := ParseAction(req.Action)
	if !ok {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "action must be check_in or check_out"))
		return
	}

	res, err := h.svc.IssueCode(c.Request.Context(), projectID, action, req.VolunteerID)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusCreated, res)
}

// POST /attendance/verify
func (h *Handler) Verify(c *gin.Context) {
	h.verify(c, "")
}

func (h *Handler) verifyExpecting(a Action) gin.HandlerFunc {
	return func(c *gin.Context) { h.verify(c, a) }
}

func (h *Handler) verify(c *gin.Context, fixed Action) {
	accountID, ok := auth.AccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, verifyFailure(errUnauthenticated()))
		return
	}

	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, verifyFailure(ErrInvalid("invalid json or missing raw_input")))
		return
	}

	expect := fixed
	if expect == "" && req.Expect != "" {
		a, ok := ParseAction(req.Expect)
		if !ok {
			c.JSON(http.StatusBadRequest, verifyFailure(ErrInvalid("expect must be check_in or check_out")))
			return
		}
		expect = a
	}

	out, err := h.svc.Resolve(c.Request.Context(), ResolveInput{
		RawInput:   req.RawInput,
		AccountID:  accountID,
		ActionTime: h.svc.ActionTime(req.ActionTime),
		Expect:     expect,
	})
	if err != nil {
		c.JSON(ToHTTPStatus(err), verifyFailure(err))
		return
	}
	c.JSON(http.StatusOK, out.toDTO())
}

// GET /me/attendance
func (h *Handler) MyAttendance(c *gin.Context) {
	accountID, ok := auth.AccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorBody(CodeUnauthenticated, "login required"))
		return
	}
	res, err := h.svc.VolunteerHistory(c.Request.Context(), accountID,
		parseIntDefault(c.Query("limit"), DefaultPageLimit),
		parseIntDefault(c.Query("offset"), 0))
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /attendance/records
func (h *Handler) ListRecords(c *gin.Context) {
	q := RecordQuery{
		Limit:  parseIntDefault(c.Query("limit"), DefaultPageLimit),
		Offset: parseIntDefault(c.Query("offset"), 0),
	}
	if v := c.Query("volunteer_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "volunteer_id must be an integer"))
			return
		}
		q.VolunteerID = &id
	}
	if v := c.Query("project_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "project_id must be an integer"))
			return
		}
		q.ProjectID = &id
	}
	if v := c.Query("open"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			q.Open = &b
		}
	}

	res, err := h.svc.ListRecords(c.Request.Context(), q)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /projects/:project_id/attendance/summary
func (h *Handler) ProjectSummary(c *gin.Context) {
	projectID, ok := parseProjectID(c)
	if !ok {
		return
	}
	res, err := h.svc.ProjectSummary(c.Request.Context(), projectID)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /projects/:project_id/attendance/export.csv?encoding=cp932
func (h *Handler) ExportCSV(c *gin.Context) {
	projectID, ok := parseProjectID(c)
	if !ok {
		return
	}
	encoding := strings.ToLower(strings.TrimSpace(c.Query("encoding")))
	if encoding == "" {
		encoding = EncodingUTF8
	}
	data, err := h.svc.ExportCSV(c.Request.Context(), projectID, encoding)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}

	contentType := "text/csv; charset=utf-8"
	if encoding != EncodingUTF8 {
		contentType = "text/csv; charset=shift_jis"
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="attendance_%d.csv"`, projectID))
	c.Data(http.StatusOK, contentType, data)
}

// ---------- helpers ----------

func parseProjectID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("project_id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "project_id must be a positive integer"))
		return 0, false
	}
	return id, true
}

func parseIntDefault(s string, d int) int {
	if s == "" {
		return d
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return v
}

type errorDTO struct {
	Error struct {
		Code    Code   `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func errorBody(code Code, msg string) errorDTO {
	var e errorDTO
	e.Error.Code = code
	e.Error.Message = msg
	return e
}

func errorFromErr(err error) errorDTO {
	if api, ok := err.(*APIError); ok {
		return errorBody(api.Code, api.Message)
	}
	// 内部エラーの詳細は返さない
	return errorBody(CodeInternal, "internal error")
}

func abortVerify(c *gin.Context, status int, _ string, msg string) {
	c.AbortWithStatusJSON(status, VerifyResponse{Success: false, ErrorClass: CodeUnauthenticated, Message: msg})
}

// verify 系は {success:false, error_class, message} で返す
func verifyFailure(err error) VerifyResponse {
	code := CodeOf(err)
	msg := "internal error"
	if api, ok := err.(*APIError); ok {
		msg = api.Message
	}
	return VerifyResponse{Success: false, ErrorClass: code, Message: msg}
}
