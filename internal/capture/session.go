package capture

import (
	"context"
	"errors"
	"io"
	"sync"
)

// Camera: カメラ取得。権限がない・デバイスがない場合はエラー
type Camera interface {
	Open(ctx context.Context) (Stream, error)
}

// Stream: フレーム単位のデコード。
// 読めないフレームは ok=false（エラーではない）、終端は io.EOF。
// それ以外のエラーはデバイス障害として取り込みを終える。ctx の取り消しに従うこと
type Stream interface {
	Next(ctx context.Context) (payload string, ok bool, err error)
	Close() error
}

// Session: QR スキャン1画面分。Scan → (Retry) → Close の順に使う
type Session struct {
	flow
	camera Camera
}

func NewSession(camera Camera, v Verifier, opts ...Option) *Session {
	s := &Session{camera: camera}
	s.flow.init(v, opts)
	return s
}

// Scan: Idle → Scanning → Decoded → Submitting → Success/Failed。
// 最初に読めたペイロードで取り込みを止め、カメラを解放してから送信する
func (s *Session) Scan(ctx context.Context) (*Result, error) {
	runCtx, gen, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer s.end(gen)

	if !s.transition(gen, StateScanning) {
		return nil, ErrSessionClosed
	}

	stream, err := s.camera.Open(runCtx)
	if err != nil {
		if runCtx.Err() != nil {
			return s.abort(gen, runCtx.Err())
		}
		return s.finish(gen, "", nil, &Failure{
			Class:   ClassPermissionDenied,
			Message: "camera access is required to scan",
			Err:     err,
		})
	}
	var once sync.Once
	release := func() { once.Do(func() { _ = stream.Close() }) }
	defer release()

	payload, err := decodeFirst(runCtx, stream)
	release()
	var lost *cameraError
	if errors.As(err, &lost) && runCtx.Err() == nil {
		return s.finish(gen, "", nil, &Failure{
			Class:   ClassCameraLost,
			Message: "the camera stopped responding",
			Err:     lost.err,
		})
	}
	if err != nil {
		return s.abort(gen, err)
	}

	if !s.transition(gen, StateDecoded) {
		return nil, ErrSessionClosed
	}
	return s.submit(runCtx, gen, payload)
}

// decodeFirst: フレームを読み続け、最初のペイロードで止める。戻る時点でループは終了している
func decodeFirst(ctx context.Context, st Stream) (string, error) {
	loopCtx, stop := context.WithCancel(ctx)
	defer stop()

	g := newGate()
	done := make(chan error, 1)
	go func() { done <- pump(loopCtx, st, g) }()

	select {
	case p := <-g.C():
		stop()
		<-done
		return p, nil
	case err := <-done:
		select {
		case p := <-g.C():
			return p, nil
		default:
		}
		return "", err
	}
}

// cameraError: 取り込み中のデバイス障害（読めないフレームとは別）
type cameraError struct{ err error }

func (e *cameraError) Error() string { return "capture: camera failed: " + e.err.Error() }
func (e *cameraError) Unwrap() error { return e.err }

func pump(ctx context.Context, st Stream, g *gate) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		payload, ok, err := st.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return ErrStreamEnded
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &cameraError{err: err}
		}
		if !ok || payload == "" {
			continue
		}
		if g.Offer(payload) {
			return nil
		}
	}
}
