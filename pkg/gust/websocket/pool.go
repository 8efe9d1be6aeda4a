package websocket

import "sync"

// sizeClassPool is one fixed-size bucket in the size-classed buffer
// pool: every buffer it hands out and takes back has exactly cap size.
type sizeClassPool struct {
	cap  int
	pool sync.Pool
}

func newSizeClassPool(size int) *sizeClassPool {
	return &sizeClassPool{
		cap: size,
		pool: sync.Pool{
			New: func() interface{} {
				b := make([]byte, size)
				return &b
			},
		},
	}
}

// bufferSizeClasses are the buckets getBuffer/putBuffer route through,
// ordered smallest first so getBuffer can pick the first one that fits.
var bufferSizeClasses = []*sizeClassPool{
	newSizeClassPool(256),
	newSizeClassPool(1024),
	newSizeClassPool(4096),
	newSizeClassPool(16384),
}

// headerPool serves fixed MaxFrameHeaderSize buffers for frame header
// encoding/decoding, kept separate from the general size classes since
// every caller wants exactly this size.
var headerPool = sync.Pool{
	New: func() interface{} {
		b := make([]byte, MaxFrameHeaderSize)
		return &b
	},
}

// getBuffer returns a pooled buffer whose capacity is at least size,
// or nil if size exceeds the largest size class — callers must
// allocate directly in that case.
func getBuffer(size int) *[]byte {
	for _, class := range bufferSizeClasses {
		if size <= class.cap {
			return class.pool.Get().(*[]byte)
		}
	}
	return nil
}

// putBuffer returns buf to the size class matching its capacity
// exactly. A buffer whose capacity doesn't match any class (e.g. one
// the caller grew or shrank) is dropped rather than pooled.
func putBuffer(buf *[]byte) {
	if buf == nil {
		return
	}
	size := cap(*buf)
	for _, class := range bufferSizeClasses {
		if class.cap == size {
			class.pool.Put(buf)
			return
		}
	}
}

func getHeaderBuffer() *[]byte {
	return headerPool.Get().(*[]byte)
}

func putHeaderBuffer(buf *[]byte) {
	if buf != nil {
		headerPool.Put(buf)
	}
}

// BufferPool is the handler-facing buffer pool API: Get/Put around the
// package's size-classed sync.Pools, with a disable switch for tests
// that want to compare pooled against unpooled allocation behavior.
type BufferPool struct {
	disabled bool
}

// DefaultBufferPool is the package-wide instance frame reading/writing
// uses by default.
var DefaultBufferPool = &BufferPool{}

// Get returns a buffer of at least size bytes, sliced down to exactly
// size. The caller must call Put when done; the buffer must not be used
// afterward.
func (p *BufferPool) Get(size int) []byte {
	if p.disabled {
		return make([]byte, size)
	}

	buf := getBuffer(size)
	if buf == nil {
		return make([]byte, size)
	}
	return (*buf)[:size]
}

// Put returns buf to the pool, re-expanding it to its full capacity
// first so it lands back in the size class it came from.
func (p *BufferPool) Put(buf []byte) {
	if p.disabled || len(buf) == 0 {
		return
	}
	fullBuf := buf[:cap(buf)]
	putBuffer(&fullBuf)
}

// GetExact returns the whole pooled buffer of the first size class that
// fits size (its length is the class size, not size) and reports whether
// it came from the pool. false means the pool is disabled or size
// exceeded every size class, and the caller got nothing — GetExact never
// allocates as a fallback.
func (p *BufferPool) GetExact(size int) ([]byte, bool) {
	if p.disabled {
		return nil, false
	}

	buf := getBuffer(size)
	if buf == nil {
		return nil, false
	}
	return *buf, true
}
