package capture

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"
	"time"
)

// FileCamera: 1行1フレームのデコード結果を再生するカメラ（CLI・検証用）。空行は読めなかったフレーム
type FileCamera struct {
	Path     string
	Interval time.Duration
}

func (c FileCamera) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(c.Path)
	if err != nil {
		return nil, err
	}
	return NewLineStream(f, c.Interval), nil
}

type lineStream struct {
	sc       *bufio.Scanner
	closer   io.Closer
	interval time.Duration
}

func NewLineStream(r io.ReadCloser, interval time.Duration) Stream {
	return &lineStream{sc: bufio.NewScanner(r), closer: r, interval: interval}
}

func (l *lineStream) Next(ctx context.Context) (string, bool, error) {
	if l.interval > 0 {
		t := time.NewTimer(l.interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return "", false, ctx.Err()
		case <-t.C:
		}
	}
	if !l.sc.Scan() {
		if err := l.sc.Err(); err != nil {
			return "", false, err
		}
		return "", false, io.EOF
	}
	line := strings.TrimSpace(l.sc.Text())
	return line, line != "", nil
}

func (l *lineStream) Close() error { return l.closer.Close() }
