package capture

import (
	"context"
	"regexp"
	"strings"
)

var codePattern = regexp.MustCompile(`^\d{6}$`)

// CodeEntry: 6桁コード入力。スキャン段階がないだけで送信以降は Session と同じ
type CodeEntry struct {
	flow
}

func NewCodeEntry(v Verifier, opts ...Option) *CodeEntry {
	e := &CodeEntry{}
	e.flow.init(v, opts)
	return e
}

// Submit: 形式チェックは手元で行い、通らなければ送信しない（状態も変えない）
func (e *CodeEntry) Submit(ctx context.Context, code string) (*Result, error) {
	code = strings.TrimSpace(code)
	if !codePattern.MatchString(code) {
		return nil, ErrInvalidCodeFormat
	}

	runCtx, gen, err := e.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer e.end(gen)
	return e.submit(runCtx, gen, code)
}
