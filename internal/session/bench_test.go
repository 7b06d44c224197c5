package session

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

// BenchmarkLineReader measures splitting and scrubbing typical chat
// input.
func BenchmarkLineReader(b *testing.B) {
	input := []byte(strings.Repeat("hello everyone in the lobby\r\n", 256))
	b.SetBytes(int64(len(input)))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		lr := newLineReader(bytes.NewReader(input), 1024, "bench")
		for {
			if _, err := lr.next(); err != nil {
				if err != io.EOF {
					b.Fatal(err)
				}
				break
			}
		}
		lr.release()
	}
}
