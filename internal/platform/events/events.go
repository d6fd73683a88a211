package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"VMS-backend/internal/platform/logger"
)

const (
	SubjectCheckedIn  = "attendance.checked_in"
	SubjectCheckedOut = "attendance.checked_out"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data any) error
	Close() error
}

// AttendanceEvent: 出欠確定（コミット後）に発行する
type AttendanceEvent struct {
	RecordID    string    `json:"record_id"`
	VolunteerID int64     `json:"volunteer_id"`
	ProjectID   int64     `json:"project_id"`
	Action      string    `json:"action"`
	At          time.Time `json:"at"`
	HoursWorked *float64  `json:"hours_worked,omitempty"`
}

type NATSPublisher struct {
	conn *nats.Conn
}

func NewNATSPublisher(url string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url, nats.Name("vms-attendance"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSPublisher{conn: conn}, nil
}

func (n *NATSPublisher) Publish(ctx context.Context, subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}
	logger.DebugContext(ctx, "publishing event", "subject", subject)
	return n.conn.Publish(subject, payload)
}

func (n *NATSPublisher) Close() error {
	if n.conn != nil {
		n.conn.Close()
	}
	return nil
}

// NopPublisher: NATS 未設定時
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, any) error { return nil }
func (NopPublisher) Close() error                               { return nil }

// Recorder: 発行内容を保持するだけの Publisher（テスト用）
type Recorder struct {
	mu     sync.Mutex
	Events []Recorded
}

type Recorded struct {
	Subject string
	Data    any
}

func (r *Recorder) Publish(_ context.Context, subject string, data any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, Recorded{Subject: subject, Data: data})
	return nil
}

func (r *Recorder) Close() error { return nil }

func (r *Recorder) Snapshot() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Recorded, len(r.Events))
	copy(out, r.Events)
	return out
}
