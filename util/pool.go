package util

import "sync"

// DefaultBufSize is the size of a single raw read from a client (4 KiB).
const DefaultBufSize = 4 * 1024

// BufPool provides reusable read buffers so that short-lived
// connections do not each allocate a fresh one.
var BufPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, DefaultBufSize)
		return &buf
	},
}

// GetBuf retrieves a buffer from the pool.  Callers must return it
// with [PutBuf] when finished.
func GetBuf() *[]byte {
	return BufPool.Get().(*[]byte)
}

// PutBuf returns a buffer to the pool for reuse.
func PutBuf(buf *[]byte) {
	if buf == nil {
		return
	}
	BufPool.Put(buf)
}
