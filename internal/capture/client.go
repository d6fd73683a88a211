package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxResponseBytes = 1 << 20

type verifyRequest struct {
	RawInput   string     `json:"raw_input"`
	ActionTime *time.Time `json:"action_time,omitempty"`
}

type verifyResponse struct {
	Success     bool      `json:"success"`
	Action      string    `json:"action"`
	ProjectID   int64     `json:"project_id"`
	ProjectName string    `json:"project_name"`
	At          time.Time `json:"at"`
	HoursWorked *float64  `json:"hours_worked"`
	ErrorClass  string    `json:"error_class"`
	Message     string    `json:"message"`
}

// HTTPVerifier: POST /api/v1/attendance/... を呼ぶ Verifier
type HTTPVerifier struct {
	BaseURL     string // 例: https://vms.example.org/api/v1
	AccessToken string
	Client      *http.Client
}

func (v *HTTPVerifier) endpoint(expect string) string {
	base := strings.TrimRight(v.BaseURL, "/")
	switch expect {
	case "check_in":
		return base + "/attendance/check-in/verify"
	case "check_out":
		return base + "/attendance/check-out/verify"
	}
	return base + "/attendance/verify"
}

func (v *HTTPVerifier) Verify(ctx context.Context, req Request) (*Outcome, error) {
	body := verifyRequest{RawInput: req.RawInput}
	if !req.ActionTime.IsZero() {
		at := req.ActionTime.UTC()
		body.ActionTime = &at
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint(req.Expect), bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if v.AccessToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+v.AccessToken)
	}

	client := v.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, &Failure{Class: ClassNetworkFailure, Message: "could not reach the attendance service", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, &Failure{Class: ClassUnauthenticated, Message: "login required"}
	}
	// 5xx はサーバ側で Tx がロールバック済みなので再送してよい
	if resp.StatusCode >= 500 {
		return nil, &Failure{Class: ClassNetworkFailure, Message: fmt.Sprintf("attendance service returned %d", resp.StatusCode)}
	}

	var vr verifyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&vr); err != nil {
		return nil, &Failure{Class: ClassNetworkFailure, Message: "unreadable response from attendance service", Err: err}
	}
	if !vr.Success {
		class := Class(vr.ErrorClass)
		if class == "" {
			class = ClassInvalidToken
		}
		return nil, &Failure{Class: class, Message: vr.Message}
	}
	return &Outcome{
		Action:      vr.Action,
		ProjectID:   vr.ProjectID,
		ProjectName: vr.ProjectName,
		At:          vr.At,
		HoursWorked: vr.HoursWorked,
	}, nil
}
