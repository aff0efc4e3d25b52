package pool

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/23skdu/rowgraph/internal/metrics"
)

// DefaultMaxRetained is the largest buffer capacity kept for reuse. A single
// huge traversal result should not stay pinned in the pool.
const DefaultMaxRetained = 1 << 20

// BytePool recycles the buffers that JSON action results are encoded into.
type BytePool struct {
	name        string
	maxRetained int
	pool        sync.Pool
}

// NewBytePool creates a pool labelled name in rowgraph_buffer_pool_operations_total.
// Buffers that grew beyond maxRetained bytes are dropped on Put; zero means
// DefaultMaxRetained.
func NewBytePool(name string, maxRetained int) *BytePool {
	if maxRetained <= 0 {
		maxRetained = DefaultMaxRetained
	}
	p := &BytePool{name: name, maxRetained: maxRetained}
	p.pool.New = func() any { return new(bytes.Buffer) }
	return p
}

// Get returns an empty buffer.
func (p *BytePool) Get() *bytes.Buffer {
	metrics.BufferPoolOperationsTotal.WithLabelValues(p.name, "get").Inc()
	return p.pool.Get().(*bytes.Buffer)
}

// Put hands buf back. Oversized buffers are counted as drops and left to the GC.
func (p *BytePool) Put(buf *bytes.Buffer) {
	if buf == nil {
		return
	}
	if buf.Cap() > p.maxRetained {
		metrics.BufferPoolOperationsTotal.WithLabelValues(p.name, "drop").Inc()
		return
	}
	metrics.BufferPoolOperationsTotal.WithLabelValues(p.name, "put").Inc()
	buf.Reset()
	p.pool.Put(buf)
}

// EncodeJSON encodes v into a pooled buffer without the encoder's trailing
// newline. The returned bytes are valid until release is called.
func (p *BytePool) EncodeJSON(v any) (body []byte, release func(), err error) {
	buf := p.Get()
	release = func() { p.Put(buf) }
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		release()
		return nil, func() {}, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), release, nil
}
