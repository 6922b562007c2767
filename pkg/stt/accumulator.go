package stt

import (
	"strings"
	"sync"
)

// TurnAccumulator collects final transcript fragments for the current
// interview turn. The orchestrator drains it when a question is assessed and
// resets it for the next answer. Interim fragments are never stored: vendors
// revise them, so only final results count toward the answer text.
type TurnAccumulator struct {
	mu        sync.Mutex
	fragments []string
}

// NewTurnAccumulator creates an empty accumulator.
func NewTurnAccumulator() *TurnAccumulator {
	return &TurnAccumulator{}
}

// Append adds a final transcript fragment. Empty fragments are ignored.
func (a *TurnAccumulator) Append(fragment string) {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.fragments = append(a.fragments, fragment)
}

// Text joins the accumulated fragments with single spaces.
func (a *TurnAccumulator) Text() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return strings.Join(a.fragments, " ")
}

// Drain returns the accumulated text and clears the buffer in one step.
func (a *TurnAccumulator) Drain() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	text := strings.Join(a.fragments, " ")
	a.fragments = a.fragments[:0]
	return text
}

// Reset discards the buffered fragments.
func (a *TurnAccumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fragments = a.fragments[:0]
}

// Len reports the number of buffered fragments.
func (a *TurnAccumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.fragments)
}
