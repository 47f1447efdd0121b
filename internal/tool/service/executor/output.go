package executor

import (
	"bytes"
	"sync/atomic"
	"unicode/utf8"

	"github.com/vim89/llm4s-sub012/internal/tool/helper/content"
)

const (
	// binarySampleSize is how much leading output is sniffed for binary data.
	binarySampleSize = 8000
	// binaryPlaceholder stands in for a stream that turned out to be binary.
	binaryPlaceholder = "[Binary Content]"
)

// outputBudget is the byte allowance shared by all streams of one process.
type outputBudget struct {
	remaining atomic.Int64
}

func newOutputBudget(limit int) *outputBudget {
	b := &outputBudget{}
	b.remaining.Store(int64(limit))
	return b
}

// take grants up to n bytes.
func (b *outputBudget) take(n int) int {
	for {
		left := b.remaining.Load()
		got := min(int64(n), max(left, 0))
		if b.remaining.CompareAndSwap(left, left-got) {
			return int(got)
		}
	}
}

func (b *outputBudget) release(n int) {
	b.remaining.Add(int64(n))
}

// capture keeps one process stream within the shared budget and forwards each
// kept piece to emit. Pieces always end on a UTF-8 boundary: a rune split
// across two writes is held back until its remaining bytes arrive. A stream
// found to be binary is discarded as a whole and nothing further is emitted
// for it.
type capture struct {
	kept    bytes.Buffer
	budget  *outputBudget
	emit    func([]byte)
	sniff   int    // bytes still to inspect for binary content
	pending []byte // leading bytes of an incomplete rune
	binary  bool
	full    bool
	dropped bool
}

func newCapture(budget *outputBudget, sniff int, emit func([]byte)) *capture {
	return &capture{budget: budget, sniff: sniff, emit: emit}
}

// Write always reports len(p) so the process never sees a short write.
func (c *capture) Write(p []byte) (int, error) {
	if c.binary || c.full {
		if !c.binary && len(p) > 0 {
			c.dropped = true
		}
		return len(p), nil
	}
	if c.sniff > 0 {
		head := p[:min(len(p), c.sniff)]
		if content.IsBinaryContent(head) {
			c.budget.release(c.kept.Len())
			c.binary, c.dropped = true, true
			c.kept.Reset()
			c.pending = nil
			return len(p), nil
		}
		c.sniff -= len(head)
	}

	buf := append(c.pending, p...)
	c.pending = nil
	complete := len(buf) - incompleteTail(buf)

	got := c.budget.take(complete)
	if got < complete {
		c.full, c.dropped = true, true
		cut := got - incompleteTail(buf[:got])
		c.budget.release(got - cut)
		c.keep(buf[:cut])
		return len(p), nil
	}
	if complete < len(buf) {
		c.pending = bytes.Clone(buf[complete:])
	}
	c.keep(buf[:complete])
	return len(p), nil
}

// flush releases a trailing partial rune once the stream has ended.
func (c *capture) flush() {
	if c.binary || c.full || len(c.pending) == 0 {
		c.pending = nil
		return
	}
	got := c.budget.take(len(c.pending))
	if got < len(c.pending) {
		c.dropped = true
	}
	c.keep(c.pending[:got])
	c.pending = nil
}

func (c *capture) keep(p []byte) {
	if len(p) == 0 {
		return
	}
	c.kept.Write(p)
	if c.emit != nil {
		c.emit(bytes.Clone(p))
	}
}

func (c *capture) String() string {
	if c.binary {
		return binaryPlaceholder
	}
	return c.kept.String()
}

// Truncated reports whether any output was dropped.
func (c *capture) Truncated() bool {
	return c.dropped
}

// incompleteTail returns how many trailing bytes of p start a rune that p
// does not finish.
func incompleteTail(p []byte) int {
	for i := 1; i <= utf8.UTFMax-1 && i <= len(p); i++ {
		if utf8.RuneStart(p[len(p)-i]) {
			if utf8.FullRune(p[len(p)-i:]) {
				return 0
			}
			return i
		}
	}
	return 0
}
