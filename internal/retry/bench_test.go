package retry

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// BenchmarkBackoff_ImmediateSuccess measures overhead when the first
// dial succeeds (the common case).
func BenchmarkBackoff_ImmediateSuccess(b *testing.B) {
	bo := DefaultBackoff()
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		bo.Do(ctx, func(_ int) error { return nil }) //nolint:errcheck
	}
}

// BenchmarkBreaker_Closed measures the per-accept cost of the breaker.
func BenchmarkBreaker_Closed(b *testing.B) {
	br := NewBreaker(nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		br.Execute(func() error { return nil }) //nolint:errcheck
	}
}

// BenchmarkBreaker_Open measures rejection while open.
func BenchmarkBreaker_Open(b *testing.B) {
	br := NewBreaker(&BreakerConfig{Threshold: 1, Cooldown: time.Hour})
	br.Execute(func() error { return fmt.Errorf("fail") }) //nolint:errcheck

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		br.Execute(func() error { return nil }) //nolint:errcheck
	}
}
