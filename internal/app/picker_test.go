package app

import (
	"fmt"
	"sync"
	"testing"
)

func TestRandomPicker(t *testing.T) {
	picker := NewRandomPicker()

	for _, n := range []int{-1, 0, 1} {
		if got := picker.Pick(n); got != 0 {
			t.Fatalf("expected 0 for n=%d, got %d", n, got)
		}
	}

	for _, n := range []int{2, 7, 10} {
		n := n
		t.Run(fmt.Sprintf("covers every index of %d", n), func(t *testing.T) {
			seen := make([]int, n)
			for i := 0; i < n*500; i++ {
				idx := picker.Pick(n)
				if idx < 0 || idx >= n {
					t.Fatalf("expected index in [0,%d), got %d", n, idx)
				}
				seen[idx]++
			}
			for idx, hits := range seen {
				if hits == 0 {
					t.Fatalf("expected index %d of %d to be picked, got no hits", idx, n)
				}
			}
		})
	}
}

func TestRandomPicker_Concurrent(t *testing.T) {
	picker := NewRandomPicker()
	const n = 10

	var wg sync.WaitGroup
	results := make([]int, 64)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = picker.Pick(n)
		}(i)
	}
	wg.Wait()

	for i, idx := range results {
		if idx < 0 || idx >= n {
			t.Errorf("expected worker %d to pick in [0,%d), got %d", i, n, idx)
		}
	}
}
