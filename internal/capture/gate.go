package capture

import "sync/atomic"

// gate: 最初の1件だけを通す（デコード結果の多重送信防止）
type gate struct {
	fired atomic.Bool
	ch    chan string
}

func newGate() *gate { return &gate{ch: make(chan string, 1)} }

// Offer: 通過できたら true。2件目以降は常に false
func (g *gate) Offer(payload string) bool {
	if !g.fired.CompareAndSwap(false, true) {
		return false
	}
	g.ch <- payload
	return true
}

func (g *gate) C() <-chan string { return g.ch }
