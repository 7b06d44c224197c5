package metrics

import "testing"

// BenchmarkCollector_RoomPost measures the per-message overhead added
// to every room fan-out.
func BenchmarkCollector_RoomPost(b *testing.B) {
	c := New()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.RoomPost()
		c.BytesSent(64)
	}
}

// BenchmarkCollector_Snapshot measures the cost of serving /stats.
func BenchmarkCollector_Snapshot(b *testing.B) {
	c := New()
	c.ConnectionOpened()
	c.BytesSent(1024)
	c.RecordError("test")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = c.JSON()
	}
}
