package capture

import (
	"context"
	"sync"
	"time"
)

// flow: Session と CodeEntry が共有する状態機械。
// gen は実行ごと・Close ごとに進み、古い実行からの更新は捨てる。
type flow struct {
	verifier Verifier
	now      func() time.Time
	expect   string
	onChange func(from, to State)

	mu      sync.Mutex
	state   State
	gen     uint64
	closed  bool
	running bool
	cancel  context.CancelFunc
	result  *Result
}

type Option func(*flow)

// WithExpect: check_in / check_out 専用の画面から使う場合
func WithExpect(action string) Option { return func(f *flow) { f.expect = action } }

func WithClock(now func() time.Time) Option { return func(f *flow) { f.now = now } }

// OnTransition: 状態遷移の通知（UI 更新用）。ロック外で呼ばれる
func OnTransition(fn func(from, to State)) Option { return func(f *flow) { f.onChange = fn } }

func (f *flow) init(v Verifier, opts []Option) {
	f.verifier = v
	f.now = time.Now
	for _, o := range opts {
		o(f)
	}
}

func (f *flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Result: 直近の終端結果。未確定なら nil
func (f *flow) Result() *Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result
}

// Close: 実行中の取り込み・送信を取り消し、以後の応答は反映しない
func (f *flow) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.gen++
	cancel := f.cancel
	f.cancel = nil
	f.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (f *flow) begin(ctx context.Context) (context.Context, uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, 0, ErrSessionClosed
	}
	if f.running {
		return nil, 0, ErrBusy
	}
	f.gen++
	runCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.running = true
	f.result = nil
	return runCtx, f.gen, nil
}

func (f *flow) end(gen uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gen != gen {
		return
	}
	f.running = false
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
}

func (f *flow) transition(gen uint64, to State) bool {
	f.mu.Lock()
	if f.closed || f.gen != gen {
		f.mu.Unlock()
		return false
	}
	from := f.state
	f.state = to
	hook := f.onChange
	f.mu.Unlock()

	if hook != nil && from != to {
		hook(from, to)
	}
	return true
}

// abort: 取り消し・ストリーム終端で Idle に戻す
func (f *flow) abort(gen uint64, err error) (*Result, error) {
	if !f.transition(gen, StateIdle) {
		return nil, ErrSessionClosed
	}
	return nil, err
}

func (f *flow) finish(gen uint64, payload string, out *Outcome, fail *Failure) (*Result, error) {
	to := StateSuccess
	if fail != nil {
		to = StateFailed
	}
	res := &Result{State: to, Payload: payload, Outcome: out, Failure: fail}

	f.mu.Lock()
	if f.closed || f.gen != gen {
		f.mu.Unlock()
		return nil, ErrSessionClosed
	}
	from := f.state
	f.state = to
	f.result = res
	hook := f.onChange
	f.mu.Unlock()

	if hook != nil {
		hook(from, to)
	}
	return res, nil
}

func (f *flow) submit(ctx context.Context, gen uint64, payload string) (*Result, error) {
	if !f.transition(gen, StateSubmitting) {
		return nil, ErrSessionClosed
	}

	out, err := f.verifier.Verify(ctx, Request{RawInput: payload, ActionTime: f.now(), Expect: f.expect})
	if ctx.Err() != nil {
		// 画面離脱などで取り消された応答は反映しない
		return f.abort(gen, ctx.Err())
	}
	if err != nil {
		return f.finish(gen, payload, nil, classify(err))
	}
	return f.finish(gen, payload, out, nil)
}

// Retry: NETWORK_FAILURE の時だけ、同じペイロードで再送する
func (f *flow) Retry(ctx context.Context) (*Result, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if f.running {
		f.mu.Unlock()
		return nil, ErrBusy
	}
	last := f.result
	if f.state != StateFailed || last == nil || last.Failure == nil || last.Failure.Class.Disposition() != DispositionRetry {
		f.mu.Unlock()
		return nil, ErrNotRetryable
	}
	f.gen++
	gen := f.gen
	runCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.running = true
	f.mu.Unlock()

	defer f.end(gen)
	return f.submit(runCtx, gen, last.Payload)
}
