package attendance

import "time"

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 200
)

type IssueTokenRequest struct {
	Action string `json:"action" binding:"required"`
}

type IssueCodeRequest struct {
	Action      string `json:"action" binding:"required"`
	VolunteerID *int64 `json:"volunteer_id,omitempty"` // 指定時は発行時点で本人に紐付け
}

type TokenResponse struct {
	Value          string    `json:"value"`
	Payload        string    `json:"payload"`
	RenderableForm string    `json:"renderable_form"` // data:image/png;base64,...
	Action         Action    `json:"action"`
	ProjectID      int64     `json:"project_id"`
	IssuedAt       time.Time `json:"issued_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

type CodeResponse struct {
	Value          string    `json:"value"`
	RenderableForm string    `json:"renderable_form"` // "123 456"
	Action         Action    `json:"action"`
	ProjectID      int64     `json:"project_id"`
	BoundTo        *int64    `json:"bound_to,omitempty"`
	IssuedAt       time.Time `json:"issued_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

type VerifyRequest struct {
	RawInput   string     `json:"raw_input" binding:"required"`
	ActionTime *time.Time `json:"action_time,omitempty"`
	Expect     string     `json:"expect,omitempty"`
}

// VerifyResponse: 成功時は success=true + 結果、失敗時は success=false + error_class/message
type VerifyResponse struct {
	Success     bool       `json:"success"`
	Action      Action     `json:"action,omitempty"`
	ProjectID   int64      `json:"project_id,omitempty"`
	ProjectName string     `json:"project_name,omitempty"`
	At          *time.Time `json:"at,omitempty"`
	HoursWorked *float64   `json:"hours_worked,omitempty"`
	RecordID    string     `json:"record_id,omitempty"`
	ErrorClass  Code       `json:"error_class,omitempty"`
	Message     string     `json:"message,omitempty"`
}

type RecordResponse struct {
	RecordID    string     `json:"record_id"`
	VolunteerID int64      `json:"volunteer_id"`
	ProjectID   int64      `json:"project_id"`
	CheckInAt   time.Time  `json:"check_in_at"`
	CheckOutAt  *time.Time `json:"check_out_at,omitempty"`
	HoursWorked *float64   `json:"hours_worked,omitempty"`
	Open        bool       `json:"open"`
}

type RecordQuery struct {
	VolunteerID *int64
	ProjectID   *int64
	Open        *bool
	Limit       int
	Offset      int
}

type RecordListResponse struct {
	Items  []RecordResponse `json:"items"`
	Total  int64            `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

type VolunteerHistoryResponse struct {
	VolunteerID int64            `json:"volunteer_id"`
	Sessions    int64            `json:"sessions"`
	TotalHours  float64          `json:"total_hours"`
	Records     []RecordResponse `json:"records"`
}

type VolunteerHours struct {
	VolunteerID int64   `json:"volunteer_id"`
	Sessions    int64   `json:"sessions"`
	Hours       float64 `json:"hours"`
}

type ProjectSummaryResponse struct {
	ProjectID   int64            `json:"project_id"`
	ProjectName string           `json:"project_name"`
	TotalHours  float64          `json:"total_hours"`
	Volunteers  []VolunteerHours `json:"volunteers"`
}

func (r Record) toDTO() RecordResponse {
	out := RecordResponse{
		RecordID:    r.RecordULID,
		VolunteerID: r.VolunteerID,
		ProjectID:   r.ProjectID,
		CheckInAt:   r.CheckInAt,
		CheckOutAt:  r.CheckOutAt,
		Open:        r.Open(),
	}
	if r.HoursWorked != nil {
		h := roundHours(*r.HoursWorked)
		out.HoursWorked = &h
	}
	return out
}

func (o Outcome) toDTO() VerifyResponse {
	at := o.At
	out := VerifyResponse{
		Success:     true,
		Action:      o.Action,
		ProjectID:   o.ProjectID,
		ProjectName: o.ProjectName,
		At:          &at,
		RecordID:    o.RecordULID,
	}
	if o.HoursWorked != nil {
		h := roundHours(*o.HoursWorked)
		out.HoursWorked = &h
	}
	return out
}
