// Package transform implements the job-level block-transform pool and the
// per-file pipeline that rides on it: chunker -> shared pool -> reorder
// buffer -> buffered writer, written to a sibling temp file and atomically
// renamed into place on success.
//
// The pool is constructed once per job and shared by every file the job
// processes. Submitting a file hands its pipeline up to Pool.Size() tokens
// on a shared channel; a fixed set of worker goroutines pulls a token,
// transforms exactly one block for whichever file that token belongs to,
// and — unless that file is exhausted or has failed — pushes the token
// back onto the shared channel for any worker to take the next turn on.
// That single-block-per-turn requeue is what lets blocks from different
// files interleave on one fixed worker set instead of every file spinning
// up its own throwaway goroutines.
package transform

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"dircrypt/internal/chunker"
	"dircrypt/internal/errkind"
	"dircrypt/internal/keymaterial"
	"dircrypt/internal/logging"
	"dircrypt/internal/reorder"
	"dircrypt/internal/rsablock"
)

// MaxWorkers bounds the process-global default pool size to
// min(hardware_threads, 12).
const MaxWorkers = 12

// DefaultWorkerCount returns min(runtime.NumCPU(), MaxWorkers).
func DefaultWorkerCount() int {
	n := runtime.NumCPU()
	if n > MaxWorkers {
		return MaxWorkers
	}
	if n < 1 {
		return 1
	}
	return n
}

// Pool is the process-global block-transform worker set for one job: a
// fixed number of goroutines shared by every file the job processes, so
// the host's parallelism is spent wherever work is ready rather than being
// re-allocated per file.
type Pool struct {
	size  int
	tasks chan *pipeline
	wg    sync.WaitGroup
}

// NewPool starts size worker goroutines sharing one task channel. size is
// clamped to at least 1.
func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	p := &Pool{size: size, tasks: make(chan *pipeline, size*4)}
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.run()
	}
	return p
}

// Size reports the number of worker goroutines backing the pool.
func (p *Pool) Size() int { return p.size }

func (p *Pool) run() {
	defer p.wg.Done()
	for pl := range p.tasks {
		pl.step(p)
	}
}

// Close stops accepting further work and blocks until every worker
// goroutine has exited. Callers must ensure every file submitted to the
// pool has finished before calling Close.
func (p *Pool) Close() {
	close(p.tasks)
	p.wg.Wait()
}

// submit hands pl up to Size() tokens on the shared task channel. A file
// with no rivals currently in flight gets the whole pool to itself, the
// same effective parallelism a dedicated per-file worker set would give
// it; a file submitted alongside others instead shares the same fixed
// goroutines with them, one block turn at a time.
func (p *Pool) submit(pl *pipeline) {
	pl.wg.Add(p.size)
	for i := 0; i < p.size; i++ {
		p.tasks <- pl
	}
}

// pipeline is the per-file state a token carries through the shared pool:
// the file's chunker and reorder buffer, plus a single-assignment
// first-error cell. Per spec's design notes on admissible first-error-cell
// implementations, this one is a sync.Once guarding a plain field rather
// than an errgroup context, since the pool's goroutines are long-lived and
// shared across files instead of scoped to one file's group.
type pipeline struct {
	ctx    context.Context
	ck     *chunker.Chunker
	key    *keymaterial.Material
	buf    *reorder.Buffer
	writer io.Writer

	wg      sync.WaitGroup
	errOnce sync.Once
	errMu   sync.Mutex
	err     error
}

func (pl *pipeline) setErr(err error) {
	pl.errOnce.Do(func() {
		pl.errMu.Lock()
		pl.err = err
		pl.errMu.Unlock()
	})
}

func (pl *pipeline) firstErr() error {
	pl.errMu.Lock()
	defer pl.errMu.Unlock()
	return pl.err
}

// step processes exactly one block for pl, then — unless pl is finished or
// has failed — returns the token to the pool so any worker can take the
// next turn on it. This is the mechanism that interleaves blocks from
// different files: a token only ever occupies a worker for the time it
// takes to pull, transform, and deliver a single block.
func (pl *pipeline) step(p *Pool) {
	if pl.ctx.Err() != nil {
		pl.setErr(pl.ctx.Err())
		pl.wg.Done()
		return
	}
	if pl.firstErr() != nil {
		pl.wg.Done()
		return
	}

	block, ok, err := pl.ck.Next()
	if err != nil {
		pl.setErr(errkind.New(errkind.IO, "", fmt.Errorf("reading next block: %w", err)))
		pl.wg.Done()
		return
	}
	if !ok {
		pl.wg.Done()
		return
	}

	transformed, err := rsablock.Transform(pl.key, block.Data)
	if err != nil {
		pl.setErr(err)
		pl.wg.Done()
		return
	}

	if err := pl.buf.Deliver(block.ID, transformed, pl.writer); err != nil {
		pl.setErr(errkind.New(errkind.IO, "", fmt.Errorf("writing block %d: %w", block.ID, err)))
		pl.wg.Done()
		return
	}

	// Requeue without blocking this worker: when every worker holds a token
	// and the channel is full, a blocking send here would leave no worker
	// to drain it. A full channel hands the send to a short-lived goroutine.
	select {
	case p.tasks <- pl:
	default:
		go func() { p.tasks <- pl }()
	}
}

// File runs the full per-file transform against pool: it reads sourcePath
// in key.BlockSize() blocks, transforms each with the RSA block primitive
// on pool's shared workers, writes blocks to a sibling temp file in strict
// input order, and atomically renames the temp file to targetPath on
// success. It returns the number of input bytes read. On any error, the
// temp file is left on disk under targetPath's directory and targetPath is
// never created or modified.
func File(ctx context.Context, sourcePath, targetPath string, key *keymaterial.Material, pool *Pool) (uint64, error) {
	source, err := os.Open(sourcePath)
	if err != nil {
		return 0, errkind.New(errkind.IO, sourcePath, fmt.Errorf("opening source file: %w", err))
	}
	defer source.Close()

	info, err := source.Stat()
	if err != nil {
		return 0, errkind.New(errkind.IO, sourcePath, fmt.Errorf("statting source file: %w", err))
	}

	bufferedSource := bufio.NewReaderSize(source, 64*1024)
	ck := chunker.New(bufferedSource, key.BlockSize())

	tmpPath := filepath.Join(filepath.Dir(targetPath), fmt.Sprintf("%d.tmp", rand.Uint64()))
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return 0, errkind.New(errkind.IO, tmpPath, fmt.Errorf("creating temp file: %w", err))
	}
	// Do not remove tmpFile on failure: failed temp files stay on disk for
	// the operator to inspect.
	defer tmpFile.Close()

	writer := bufio.NewWriterSize(tmpFile, 64*1024)
	buf := reorder.New()

	pl := &pipeline{ctx: ctx, ck: ck, key: key, buf: buf, writer: writer}
	pool.submit(pl)
	pl.wg.Wait()

	if err := pl.firstErr(); err != nil {
		logging.TempFileLeftBehind(tmpPath)
		return 0, err
	}

	if err := writer.Flush(); err != nil {
		logging.TempFileLeftBehind(tmpPath)
		return 0, errkind.New(errkind.IO, tmpPath, fmt.Errorf("flushing output: %w", err))
	}
	if err := tmpFile.Close(); err != nil {
		logging.TempFileLeftBehind(tmpPath)
		return 0, errkind.New(errkind.IO, tmpPath, fmt.Errorf("closing output: %w", err))
	}

	if err := os.Rename(tmpPath, targetPath); err != nil {
		logging.TempFileLeftBehind(tmpPath)
		return 0, errkind.New(errkind.IO, targetPath, fmt.Errorf("renaming temp file into place: %w", err))
	}

	return uint64(info.Size()), nil
}
