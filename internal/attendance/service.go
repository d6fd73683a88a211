package attendance

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"VMS-backend/internal/platform/events"
	"VMS-backend/internal/platform/ratelimit"
)

// ===== インターフェース群 =====

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

type IDGen interface {
	New() (string, error)
}

type ulidGen struct{}

func (ulidGen) New() (string, error) {
	t := time.Now().UTC()
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(t), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Renderer: トークンのペイロード → 表示用（QR画像）。qr.Renderer が実装
type Renderer interface {
	Render(payload string) (string, error)
}

// CodeSource: 6桁コードの生成元
type CodeSource func() (string, error)

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// Policy: 発行・検証のパラメータ（config.AttendanceConfig から組み立てる）
type Policy struct {
	CheckInTokenTTL  time.Duration
	CheckOutTokenTTL time.Duration
	CodeTTL          time.Duration
	MaxClockSkew     time.Duration
	ScanBaseURL      string
}

func DefaultPolicy() Policy {
	return Policy{
		CheckInTokenTTL:  30 * time.Minute,
		CheckOutTokenTTL: 2 * time.Hour,
		CodeTTL:          10 * time.Minute,
		MaxClockSkew:     2 * time.Minute,
	}
}

func (p Policy) tokenTTL(a Action) time.Duration {
	if a == ActionCheckOut {
		return p.CheckOutTokenTTL
	}
	return p.CheckInTokenTTL
}

// ===== Service本体 =====

type Service struct {
	repo    Repository
	clock   Clock
	id      IDGen
	policy  Policy
	render  Renderer
	codes   CodeSource
	tokens  func() string
	limiter ratelimit.Limiter
	events  events.Publisher
}

type Option func(*Service)

func WithClock(c Clock) Option                { return func(s *Service) { s.clock = c } }
func WithIDGen(g IDGen) Option                { return func(s *Service) { s.id = g } }
func WithRenderer(r Renderer) Option          { return func(s *Service) { s.render = r } }
func WithCodeSource(c CodeSource) Option      { return func(s *Service) { s.codes = c } }
func WithLimiter(l ratelimit.Limiter) Option  { return func(s *Service) { s.limiter = l } }
func WithPublisher(p events.Publisher) Option { return func(s *Service) { s.events = p } }
func WithTokenSource(f func() string) Option  { return func(s *Service) { s.tokens = f } }

// NewService: limiter 未指定ならコード試行回数の制限なし
func NewService(repo Repository, policy Policy, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		clock:  realClock{},
		id:     ulidGen{},
		policy: policy,
		codes:  randomCode,
		tokens: uuid.NewString,
		events: events.NopPublisher{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) now() time.Time { return normalizeTime(s.clock.Now()) }

// ActionTime: クライアント申告時刻はサーバ時刻との差が MaxClockSkew 以内の時だけ採用
func (s *Service) ActionTime(client *time.Time) time.Time {
	now := s.now()
	if client == nil || client.IsZero() {
		return now
	}
	d := now.Sub(*client)
	if d < 0 {
		d = -d
	}
	if d > s.policy.MaxClockSkew {
		return now
	}
	return normalizeTime(*client)
}
