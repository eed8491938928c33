package app

import (
	"math/rand"
	"sync"
	"time"
)

// WinnerPicker chooses the index of the winning ticket among n sold tickets.
type WinnerPicker interface {
	Pick(n int) int
}

type randomPicker struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewRandomPicker returns a picker backed by math/rand, seeded from the clock.
func NewRandomPicker() WinnerPicker {
	return &randomPicker{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (p *randomPicker) Pick(n int) int {
	if n <= 1 {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rnd.Intn(n)
}
