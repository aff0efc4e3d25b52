package pool

import (
	"sync"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// BitmapPool recycles 64-bit roaring bitmaps used as per-traversal visited sets.
type BitmapPool struct {
	pool sync.Pool
}

// NewBitmapPool creates an empty pool.
func NewBitmapPool() *BitmapPool {
	return &BitmapPool{
		pool: sync.Pool{
			New: func() any {
				return roaring64.New()
			},
		},
	}
}

var globalBitmapPool = NewBitmapPool()

// GetBitmap retrieves a cleared bitmap from the global pool.
func GetBitmap() *roaring64.Bitmap {
	return globalBitmapPool.Get()
}

// PutBitmap returns a bitmap to the global pool after clearing it.
func PutBitmap(bm *roaring64.Bitmap) {
	globalBitmapPool.Put(bm)
}

// Get retrieves a cleared bitmap from the pool.
func (p *BitmapPool) Get() *roaring64.Bitmap {
	return p.pool.Get().(*roaring64.Bitmap)
}

// Put returns a bitmap to the pool. The caller must not use bm afterwards.
func (p *BitmapPool) Put(bm *roaring64.Bitmap) {
	if bm != nil {
		bm.Clear()
		p.pool.Put(bm)
	}
}
