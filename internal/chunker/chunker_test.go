package chunker

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNext_ExactMultiple(t *testing.T) {
	data := bytes.Repeat([]byte{0xAB}, 12)
	c := New(bytes.NewReader(data), 4)

	for id := uint64(0); id < 3; id++ {
		block, ok, err := c.Next()
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, id, block.ID)
		assert.Len(t, block.Data, 4)
	}

	block, ok, err := c.Next()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, Block{}, block)
}

func TestNext_TrailingShortBlock(t *testing.T) {
	data := bytes.Repeat([]byte{0x01}, 10)
	c := New(bytes.NewReader(data), 4)

	first, _, err := c.Next()
	require.NoError(t, err)
	assert.Len(t, first.Data, 4)

	second, _, err := c.Next()
	require.NoError(t, err)
	assert.Len(t, second.Data, 4)

	third, ok, err := c.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, third.Data, 2)

	_, ok, err = c.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNext_EmptyReaderIsCleanEOF(t *testing.T) {
	c := New(bytes.NewReader(nil), 4)
	block, ok, err := c.Next()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, Block{}, block)
}

// shortReadOnceReader returns fewer bytes than requested on its first call
// without reporting an error, to exercise the single-Read-call contract.
type shortReadOnceReader struct {
	calls int
	data  []byte
}

func (r *shortReadOnceReader) Read(p []byte) (int, error) {
	r.calls++
	if r.calls == 1 {
		n := copy(p, r.data[:2])
		return n, nil
	}
	if len(r.data) <= 2 {
		return 0, io.EOF
	}
	n := copy(p, r.data[2:])
	r.data = r.data[2+n:]
	return n, nil
}

func TestNext_ShortReadIsNotEOF(t *testing.T) {
	r := &shortReadOnceReader{data: []byte{1, 2, 3, 4}}
	c := New(r, 4)

	block, ok, err := c.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2}, block.Data)

	block, ok, err = c.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte{3, 4}, block.Data)
}

type errorAfterBytesReader struct {
	data []byte
	err  error
}

func (r *errorAfterBytesReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = nil
	return n, r.err
}

func TestNext_ErrorWithBytesDeliversBlockThenError(t *testing.T) {
	wantErr := errors.New("disk fell over")
	r := &errorAfterBytesReader{data: []byte{9, 9, 9}, err: wantErr}
	c := New(r, 8)

	block, ok, err := c.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte{9, 9, 9}, block.Data)

	_, ok, err = c.Next()
	assert.False(t, ok)
	assert.ErrorIs(t, err, wantErr)

	_, ok, err = c.Next()
	assert.False(t, ok)
	assert.NoError(t, err)
}

func TestNext_ConcurrentCallersPreserveOrder(t *testing.T) {
	const blockSize = 16
	const numBlocks = 200
	data := make([]byte, blockSize*numBlocks)
	for i := range data {
		data[i] = byte(i)
	}
	c := New(bytes.NewReader(data), blockSize)

	var mu sync.Mutex
	var blocks []Block
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				block, ok, err := c.Next()
				require.NoError(t, err)
				if !ok {
					return
				}
				mu.Lock()
				blocks = append(blocks, block)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, blocks, numBlocks)
	seen := make(map[uint64]bool, numBlocks)
	for _, b := range blocks {
		assert.False(t, seen[b.ID], "duplicate id %d", b.ID)
		seen[b.ID] = true
		assert.Equal(t, data[b.ID*blockSize:b.ID*blockSize+blockSize], b.Data)
	}
}
