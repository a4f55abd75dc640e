// Command dircrypt walks a source tree and encrypts or decrypts every
// regular file under it with RSA-OAEP, mirroring the tree under a target
// root.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/sync/semaphore"
	"golang.org/x/term"

	"dircrypt/internal/cli"
	"dircrypt/internal/handler"
	"dircrypt/internal/keymaterial"
	"dircrypt/internal/logging"
	"dircrypt/internal/stats"
	"dircrypt/internal/transform"
	"dircrypt/internal/walker"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	opts, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return int(cli.ExitInvalidArgs)
	}

	if opts.Command == cli.GenKeys {
		return runGenKeys(opts)
	}
	return runTransform(opts)
}

func runGenKeys(opts cli.Options) int {
	key, err := keymaterial.GenerateKeyPair()
	if err != nil {
		fmt.Fprintln(os.Stderr, "unable to generate keys:", err)
		return int(cli.ExitKeyGenError)
	}

	privatePEM, err := keymaterial.WritePrivatePEM(key)
	if err != nil {
		fmt.Fprintln(os.Stderr, "unable to encode private key:", err)
		return int(cli.ExitKeyEmitError)
	}
	publicPEM, err := keymaterial.WritePublicPEM(&key.PublicKey)
	if err != nil {
		fmt.Fprintln(os.Stderr, "unable to encode public key:", err)
		return int(cli.ExitKeyEmitError)
	}

	if _, err := os.Stdout.Write(publicPEM); err != nil {
		fmt.Fprintln(os.Stderr, "unable to write public key:", err)
		return int(cli.ExitKeyEmitError)
	}
	if _, err := os.Stdout.Write(privatePEM); err != nil {
		fmt.Fprintln(os.Stderr, "unable to write private key:", err)
		return int(cli.ExitKeyEmitError)
	}

	privatePath := opts.KeyPath + ".key"
	publicPath := opts.KeyPath + ".pub"
	if err := os.WriteFile(privatePath, privatePEM, 0o600); err != nil {
		fmt.Fprintln(os.Stderr, "unable to write", privatePath, ":", err)
		return int(cli.ExitKeyEmitError)
	}
	if err := os.WriteFile(publicPath, publicPEM, 0o644); err != nil {
		fmt.Fprintln(os.Stderr, "unable to write", publicPath, ":", err)
		return int(cli.ExitKeyEmitError)
	}
	return int(cli.ExitSuccess)
}

func runTransform(opts cli.Options) int {
	key, err := loadKey(opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, "unable to load key material:", err)
		return int(cli.ExitKeyLoadError)
	}

	statActor := stats.NewActor()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go reportOnSIGHUP(statActor)

	pool := transform.NewPool(opts.Executors)
	h := &handler.Handler{Key: key, TargetRoot: opts.Target, Pool: pool}

	// Files discovered by the walker are dispatched to the handler
	// concurrently, bounded by sem, so that every file in flight races to
	// feed the shared pool its blocks rather than queuing one file behind
	// another. The pool itself, not this limiter, is what bounds how much
	// block-transform CPU work runs at once.
	sem := semaphore.NewWeighted(int64(opts.Executors))

	var failed int
	var mu sync.Mutex
	var jobWg sync.WaitGroup

	err = walker.Walk(opts.Source, func(path string) {
		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			failed++
			mu.Unlock()
			logging.FileError(path, err)
			return
		}

		statActor.IncInFlight()
		jobWg.Add(1)
		go func() {
			defer jobWg.Done()
			defer sem.Release(1)
			defer statActor.DecInFlight()

			outcome, err := h.Transform(ctx, path)
			if err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
				logging.FileError(path, err)
				return
			}
			if outcome.Skipped {
				return
			}

			statActor.Record(outcome.BytesIn, outcome.OutputPath)
		}()
	}, func(path string, err error) {
		mu.Lock()
		failed++
		mu.Unlock()
		logging.FileError(path, err)
	})

	jobWg.Wait()
	pool.Close()

	if err != nil {
		fmt.Fprintln(os.Stderr, "unable to scan source tree:", err)
		return int(cli.ExitInvalidArgs)
	}

	snap := statActor.Snapshot()
	logging.Stdout.Printf("All files processed. files=%d bytes=%d last=%s", snap.Files, snap.Bytes, snap.Last)

	if failed > 0 && snap.Files == 0 {
		return int(cli.ExitInvalidArgs)
	}
	return int(cli.ExitSuccess)
}

func loadKey(opts cli.Options) (*keymaterial.Material, error) {
	if opts.Command == cli.Encrypt {
		return keymaterial.LoadPublic(opts.KeyPath)
	}
	return keymaterial.LoadPrivate(opts.KeyPath)
}

func reportOnSIGHUP(actor *stats.Actor) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)
	for range sigCh {
		snap := actor.Snapshot()
		line := fmt.Sprintf(
			"stats: bytes=%d files=%d in_flight=%d bytes_per_second=%.0f last=%s",
			snap.Bytes, snap.Files, snap.InFlight, snap.BytesPerSecond, snap.Last,
		)
		logging.Stdout.Println(truncateToTerminalWidth(line))
	}
}

// truncateToTerminalWidth clips line to stdout's terminal width so a SIGHUP
// stats dump never wraps mid-field. Falls back to 80 columns when stdout
// isn't a terminal, e.g. when redirected to a log file.
func truncateToTerminalWidth(line string) string {
	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = w
	}
	if len(line) <= width {
		return line
	}
	return line[:width]
}
