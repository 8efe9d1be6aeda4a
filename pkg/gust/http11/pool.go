package http11

import (
	"bufio"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
)

const (
	// DefaultBufferSize is the default size for read/write buffers.
	DefaultBufferSize = 4096

	// ParserBufferSize is the size for parser internal buffers.
	ParserBufferSize = MaxRequestLineSize + MaxHeadersSize // 16KB
)

// PoolStrategy selects how the package-level object pools are sharded.
type PoolStrategy int

const (
	// PoolStrategyStandard uses a plain sync.Pool. Fastest for typical
	// HTTP workloads and the default.
	PoolStrategyStandard PoolStrategy = iota

	// PoolStrategyPerCPU shards across one sync.Pool per GOMAXPROCS to
	// cut lock contention under sustained high concurrency with longer
	// object hold times.
	PoolStrategyPerCPU
)

var poolStrategy = PoolStrategyStandard

// SetPoolStrategy sets the pooling strategy globally. Call this before
// any pool operations (e.g. during server initialization) for
// consistent behavior — switching strategies mid-flight doesn't migrate
// objects already sitting in the other strategy's pools.
func SetPoolStrategy(strategy PoolStrategy) {
	poolStrategy = strategy
}

// perCPUPool shards a sync.Pool across GOMAXPROCS instances, round-robin
// assigned, to reduce the contention a single sync.Pool can see under
// sustained concurrent Get/Put.
type perCPUPool[T any] struct {
	pools      []*sync.Pool
	numCPU     int
	roundRobin atomic.Uint64
	newFunc    func() T
}

func newPerCPUPool[T any](newFunc func() T) *perCPUPool[T] {
	numCPU := runtime.GOMAXPROCS(0)
	if numCPU < 1 {
		numCPU = 1
	}
	pools := make([]*sync.Pool, numCPU)
	for i := range pools {
		pools[i] = &sync.Pool{New: func() interface{} { return newFunc() }}
	}
	return &perCPUPool[T]{pools: pools, numCPU: numCPU, newFunc: newFunc}
}

func (p *perCPUPool[T]) get() T {
	idx := p.roundRobin.Add(1) % uint64(p.numCPU)
	if obj := p.pools[idx].Get(); obj != nil {
		return obj.(T)
	}
	return p.newFunc()
}

func (p *perCPUPool[T]) put(obj T) {
	idx := p.roundRobin.Load() % uint64(p.numCPU)
	p.pools[idx].Put(obj)
}

func (p *perCPUPool[T]) warmup(countPerCPU int) {
	for _, pool := range p.pools {
		objs := make([]T, countPerCPU)
		for i := range objs {
			objs[i] = p.newFunc()
		}
		for _, obj := range objs {
			pool.Put(obj)
		}
	}
}

// dualPool wraps both pooling strategies behind one Get/Put/Warmup API,
// so callers (and the package's exported Get*/Put* functions) don't need
// their own poolStrategy branch — the branch lives here, once. It also
// keeps the Get/Put/new counters GetPoolStats reports, so the strategy
// branch and the instrumentation live in exactly one place each.
type dualPool[T any] struct {
	name   string
	std    sync.Pool
	perCPU *perCPUPool[T]

	gets uint64
	puts uint64
	news uint64
}

func newDualPool[T any](name string, newFunc func() T) *dualPool[T] {
	d := &dualPool[T]{name: name}
	d.std = sync.Pool{New: func() interface{} {
		atomic.AddUint64(&d.news, 1)
		return newFunc()
	}}
	d.perCPU = newPerCPUPool(func() T {
		atomic.AddUint64(&d.news, 1)
		return newFunc()
	})
	return d
}

func (d *dualPool[T]) get() T {
	atomic.AddUint64(&d.gets, 1)
	if poolStrategy == PoolStrategyPerCPU {
		return d.perCPU.get()
	}
	return d.std.Get().(T)
}

func (d *dualPool[T]) put(obj T) {
	atomic.AddUint64(&d.puts, 1)
	if poolStrategy == PoolStrategyPerCPU {
		d.perCPU.put(obj)
		return
	}
	d.std.Put(obj)
}

func (d *dualPool[T]) warmup(countPerCPU int) {
	if poolStrategy == PoolStrategyPerCPU {
		d.perCPU.warmup(countPerCPU)
		return
	}
	for i := 0; i < countPerCPU; i++ {
		d.std.Put(d.perCPU.newFunc())
	}
}

// stats reports this pool's Get/Put counts and an estimated hit rate —
// the fraction of Gets that didn't require allocating a fresh object.
// sync.Pool gives no exact count of objects currently sitting in it, so
// Available is left at zero; Gets/Puts/HitRate are real counters, not
// placeholders.
func (d *dualPool[T]) stats() PoolStats {
	gets := atomic.LoadUint64(&d.gets)
	news := atomic.LoadUint64(&d.news)
	hitRate := 0.0
	if gets > 0 {
		hits := gets
		if news < gets {
			hits = gets - news
		} else {
			hits = 0
		}
		hitRate = float64(hits) / float64(gets)
	}
	return PoolStats{
		Name:    d.name,
		Gets:    gets,
		Puts:    atomic.LoadUint64(&d.puts),
		HitRate: hitRate,
	}
}

var (
	requestPool        = newDualPool("Request", func() *Request { return &Request{} })
	responseWriterPool = newDualPool("ResponseWriter", func() *ResponseWriter { return &ResponseWriter{} })
	parserPool         = newDualPool("Parser", func() *Parser { return NewParser() })

	bufferPool = newDualPool("Buffer", func() *[]byte {
		buf := make([]byte, DefaultBufferSize)
		return &buf
	})

	largeBufferPool = newDualPool("LargeBuffer", func() *[]byte {
		buf := make([]byte, 0, ParserBufferSize)
		return &buf
	})

	bufioReaderPool = newDualPool("BufioReader", func() *bufio.Reader {
		return bufio.NewReaderSize(nil, DefaultBufferSize)
	})

	bufioWriterPool = newDualPool("BufioWriter", func() *bufio.Writer {
		return bufio.NewWriterSize(nil, DefaultBufferSize)
	})

	// contextPool holds Context wrappers. Not strategy-sharded: a Context
	// is a thin per-request wrapper around already-pooled Request/
	// ResponseWriter values, so per-CPU sharding buys nothing here.
	contextPool = sync.Pool{
		New: func() interface{} { return &Context{} },
	}
)

// GetRequest retrieves a reset, ready-to-use Request from the pool.
// The caller must call PutRequest when done.
func GetRequest() *Request {
	req := requestPool.get()
	req.Reset()
	return req
}

// PutRequest resets req and returns it to the pool. Safe to call with nil.
// The Request must not be used again afterward.
func PutRequest(req *Request) {
	if req == nil {
		return
	}
	req.Reset()
	requestPool.put(req)
}

// GetResponseWriter retrieves a ResponseWriter from the pool, configured
// to write to w. The caller must call PutResponseWriter when done.
func GetResponseWriter(w io.Writer) *ResponseWriter {
	rw := responseWriterPool.get()
	rw.Reset(w)
	return rw
}

// PutResponseWriter resets rw (detaching its writer) and returns it to
// the pool. Safe to call with nil. The ResponseWriter must not be used
// again afterward.
func PutResponseWriter(rw *ResponseWriter) {
	if rw == nil {
		return
	}
	rw.Reset(nil)
	responseWriterPool.put(rw)
}

// GetParser retrieves a ready-to-use Parser from the pool. The caller
// must call PutParser when done.
func GetParser() *Parser {
	return parserPool.get()
}

// PutParser clears p's buffers (so no bytes leak into the next caller's
// request) and returns it to the pool. Safe to call with nil.
func PutParser(p *Parser) {
	if p == nil {
		return
	}
	if p.buf != nil {
		p.buf = p.buf[:0]
	}
	p.unreadBuf = nil
	parserPool.put(p)
}

// GetContext retrieves a Context from the pool. The caller must set
// Request/Writer before passing it to a handler, and call PutContext
// when done.
func GetContext() *Context {
	return contextPool.Get().(*Context)
}

// PutContext resets ctx and returns it to the pool. Safe to call with nil.
func PutContext(ctx *Context) {
	if ctx == nil {
		return
	}
	ctx.reset()
	contextPool.Put(ctx)
}

// GetBuffer retrieves a DefaultBufferSize byte slice from the pool. Its
// contents may be leftover from a previous use; callers that care should
// clear it themselves.
func GetBuffer() []byte {
	return *bufferPool.get()
}

// PutBuffer returns buf to the pool. Anything not exactly
// cap(buf) >= DefaultBufferSize is silently dropped rather than pooled,
// since a mis-sized buffer would corrupt the pool's size invariant for
// the next GetBuffer caller.
func PutBuffer(buf []byte) {
	if buf == nil || cap(buf) < DefaultBufferSize {
		return
	}
	buf = buf[:DefaultBufferSize]
	bufferPool.put(&buf)
}

// GetLargeBuffer retrieves a zero-length, ParserBufferSize-capacity byte
// slice from the pool.
func GetLargeBuffer() []byte {
	buf := *largeBufferPool.get()
	return buf[:0]
}

// PutLargeBuffer returns buf to the pool, dropping anything undersized
// rather than pooling it (see PutBuffer).
func PutLargeBuffer(buf []byte) {
	if buf == nil || cap(buf) < ParserBufferSize {
		return
	}
	buf = buf[:0]
	largeBufferPool.put(&buf)
}

// GetBufioReader retrieves a *bufio.Reader from the pool, reset to read
// from r.
func GetBufioReader(r io.Reader) *bufio.Reader {
	br := bufioReaderPool.get()
	br.Reset(r)
	return br
}

// PutBufioReader detaches br's underlying reader and returns it to the
// pool. Safe to call with nil.
func PutBufioReader(br *bufio.Reader) {
	if br == nil {
		return
	}
	br.Reset(nil)
	bufioReaderPool.put(br)
}

// GetBufioWriter retrieves a *bufio.Writer from the pool, reset to write
// to w.
func GetBufioWriter(w io.Writer) *bufio.Writer {
	bw := bufioWriterPool.get()
	bw.Reset(w)
	return bw
}

// PutBufioWriter flushes bw, detaches its underlying writer, and returns
// it to the pool. Safe to call with nil.
func PutBufioWriter(bw *bufio.Writer) {
	if bw == nil {
		return
	}
	bw.Flush()
	bw.Reset(nil)
	bufioWriterPool.put(bw)
}

// PoolStats reports usage counters for one package-level pool.
type PoolStats struct {
	// Name identifies the pool, e.g. "Request" or "BufioWriter".
	Name string

	// Available is left at zero: sync.Pool exposes no way to count what's
	// currently sitting in it.
	Available int

	// Gets and Puts are lifetime call counts against this pool.
	Gets uint64
	Puts uint64

	// HitRate estimates the fraction of Gets satisfied from the pool
	// rather than falling through to an allocation.
	HitRate float64
}

// GetPoolStats returns usage counters for every package-level pool, in a
// fixed order (Request, ResponseWriter, Parser, Buffer, LargeBuffer,
// BufioReader, BufioWriter). Useful for capacity planning warmup counts
// via WarmupPools; not required for normal request handling.
func GetPoolStats() []PoolStats {
	return []PoolStats{
		requestPool.stats(),
		responseWriterPool.stats(),
		parserPool.stats(),
		bufferPool.stats(),
		largeBufferPool.stats(),
		bufioReaderPool.stats(),
		bufioWriterPool.stats(),
	}
}

// WarmupPools pre-allocates objects in every pool ahead of traffic, so
// the first handful of requests don't pay pool-miss allocation cost.
//
// Under PoolStrategyStandard, count is the total objects pre-allocated
// per pool. Under PoolStrategyPerCPU, it's objects per CPU per pool —
// with 8 CPUs and count=100, that's 800 objects per pool type.
func WarmupPools(count int) {
	requestPool.warmup(count)
	responseWriterPool.warmup(count)
	parserPool.warmup(count)
	bufferPool.warmup(count)
	largeBufferPool.warmup(count)
	bufioReaderPool.warmup(count)
	bufioWriterPool.warmup(count)
}
