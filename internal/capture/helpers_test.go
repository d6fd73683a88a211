package capture

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return t0 }

// fakeStream: frames を順に返し、尽きたら io.EOF（repeat 指定時は最後を繰り返す）
type fakeStream struct {
	mu     sync.Mutex
	frames []string
	i      int
	repeat bool
	reads  atomic.Int32
	closed atomic.Bool
}

func (s *fakeStream) Next(ctx context.Context) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	s.reads.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.i >= len(s.frames) {
		if s.repeat && len(s.frames) > 0 {
			last := s.frames[len(s.frames)-1]
			return last, last != "", nil
		}
		return "", false, io.EOF
	}
	f := s.frames[s.i]
	s.i++
	return f, f != "", nil
}

func (s *fakeStream) Close() error {
	s.closed.Store(true)
	return nil
}

// blockingStream: ctx が取り消されるまで何も読めない
type blockingStream struct{ closed atomic.Bool }

func (s *blockingStream) Next(ctx context.Context) (string, bool, error) {
	<-ctx.Done()
	return "", false, ctx.Err()
}

func (s *blockingStream) Close() error {
	s.closed.Store(true)
	return nil
}

type fakeCamera struct {
	stream Stream
	err    error
	opens  atomic.Int32
}

func (c *fakeCamera) Open(ctx context.Context) (Stream, error) {
	c.opens.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return c.stream, nil
}

var errNoCamera = errors.New("NotAllowedError: permission denied")

// fakeVerifier: 呼び出しを記録し、responses を順に返す
type fakeVerifier struct {
	mu        sync.Mutex
	calls     []Request
	responses []verifyResult
	// onCall: 呼ばれた時点で stream が閉じているか等の確認用
	onCall func(Request)
	// block: 閉じられるまで応答を返さない（ctx は見ない）
	block chan struct{}
}

type verifyResult struct {
	out *Outcome
	err error
}

func (v *fakeVerifier) Verify(ctx context.Context, req Request) (*Outcome, error) {
	v.mu.Lock()
	v.calls = append(v.calls, req)
	n := len(v.calls)
	hook := v.onCall
	block := v.block
	v.mu.Unlock()

	if hook != nil {
		hook(req)
	}
	if block != nil {
		<-block
	}
	if len(v.responses) == 0 {
		return &Outcome{Action: "check_in", ProjectID: 42, ProjectName: "Beach Cleanup", At: t0}, nil
	}
	r := v.responses[min(n, len(v.responses))-1]
	return r.out, r.err
}

func (v *fakeVerifier) Calls() []Request {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]Request(nil), v.calls...)
}

func hours(h float64) *float64 { return &h }
