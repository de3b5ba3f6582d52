package utils_test

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"transform-backend/internal/core/utils"
)

func TestMapInPool(t *testing.T) {
	inputs := make([]int, 20)
	for i := range inputs {
		inputs[i] = i
	}

	outputs := utils.MapInPool(inputs, 5, func(i int) string {
		if i%3 == 0 {
			time.Sleep(time.Duration(20-i) * time.Millisecond)
		}
		return fmt.Sprintf("%d-%d", i, i*i)
	})

	if len(outputs) != len(inputs) {
		t.Fatalf("expected %d outputs, got %d", len(inputs), len(outputs))
	}
	for i, out := range outputs {
		expected := fmt.Sprintf("%d-%d", i, i*i)
		if out != expected {
			t.Fatalf("output %d: expected %q, got %q", i, expected, out)
		}
	}
}

func TestMapInPoolConcurrencyBound(t *testing.T) {
	var active, peak int64

	utils.MapInPool(make([]int, 50), 4, func(int) int {
		n := atomic.AddInt64(&active, 1)
		for {
			p := atomic.LoadInt64(&peak)
			if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		atomic.AddInt64(&active, -1)
		return 0
	})

	if peak > 4 {
		t.Fatalf("expected at most 4 concurrent workers, saw %d", peak)
	}
}

func TestMapInPoolEmpty(t *testing.T) {
	outputs := utils.MapInPool(nil, 8, func(int) int { return 1 })
	if len(outputs) != 0 {
		t.Fatalf("expected no outputs, got %d", len(outputs))
	}
}
