package pool

import (
	"math"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/rowgraph/internal/metrics"
)

func poolOps(name, op string) float64 {
	return testutil.ToFloat64(metrics.BufferPoolOperationsTotal.WithLabelValues(name, op))
}

func TestBytePool_ReusesEmptyBuffers(t *testing.T) {
	p := NewBytePool("byte_pool_reuse", 0)
	buf := p.Get()
	buf.WriteString("payload")
	p.Put(buf)

	again := p.Get()
	assert.Zero(t, again.Len())
	p.Put(again)
	p.Put(nil)

	assert.Equal(t, 2.0, poolOps("byte_pool_reuse", "get"))
	assert.Equal(t, 2.0, poolOps("byte_pool_reuse", "put"))
}

func TestBytePool_DropsOversizedBuffers(t *testing.T) {
	p := NewBytePool("byte_pool_drop", 64)
	buf := p.Get()
	buf.WriteString(strings.Repeat("x", 256))
	p.Put(buf)

	assert.Equal(t, 1.0, poolOps("byte_pool_drop", "drop"))
	assert.Zero(t, poolOps("byte_pool_drop", "put"))
}

func TestBytePool_EncodeJSON(t *testing.T) {
	p := NewBytePool("byte_pool_json", 0)
	body, release, err := p.EncodeJSON(map[string]int{"hits": 3})
	require.NoError(t, err)
	assert.Equal(t, `{"hits":3}`, string(body))
	release()
	assert.Equal(t, 1.0, poolOps("byte_pool_json", "put"))

	_, release, err = p.EncodeJSON(math.Inf(1))
	assert.Error(t, err)
	release()
	assert.Equal(t, 2.0, poolOps("byte_pool_json", "put"))
}
