// Package cli parses the command's flags with github.com/pborman/getopt/v2:
// --command {enc,dec,keys}, --key, --source, --target, and the worker-pool
// knob --executors.
package cli

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/pborman/getopt/v2"

	"dircrypt/internal/transform"
)

// Command selects one of the three top-level operations.
type Command uint8

const (
	Encrypt Command = iota
	Decrypt
	GenKeys
)

func (c Command) String() string {
	switch c {
	case Encrypt:
		return "enc"
	case Decrypt:
		return "dec"
	case GenKeys:
		return "keys"
	default:
		return "unknown"
	}
}

// Options holds the parsed, validated command line.
type Options struct {
	Command   Command
	KeyPath   string
	Source    string
	Target    string
	Executors int
}

// ExitCode enumerates the process exit codes.
type ExitCode int

const (
	ExitSuccess      ExitCode = 0
	ExitInvalidArgs  ExitCode = 1
	ExitKeyLoadError ExitCode = 2
	ExitKeyEmitError ExitCode = 3
	ExitKeyGenError  ExitCode = 4
)

// Parse reads args (typically os.Args[1:]) into Options, clamping the
// executor count to a sane range.
func Parse(args []string) (Options, error) {
	var opts Options
	var commandStr string

	set := getopt.New()
	set.FlagLong(&commandStr, "command", 'c', "Operation to run: enc, dec, or keys")
	set.FlagLong(&opts.KeyPath, "key", 'k', "Path to the PEM key file")
	set.FlagLong(&opts.Source, "source", 's', "Source file or directory")
	set.FlagLong(&opts.Target, "target", 't', "Target root directory, created if missing")
	set.FlagLong(&opts.Executors, "executors", 'e', "Number of RSA worker goroutines")

	// Getopt takes its first element as the program name, so prepend one.
	if err := set.Getopt(append([]string{"dircrypt"}, args...), nil); err != nil {
		return Options{}, fmt.Errorf("parsing arguments: %w", err)
	}

	switch commandStr {
	case "enc":
		opts.Command = Encrypt
	case "dec":
		opts.Command = Decrypt
	case "keys":
		opts.Command = GenKeys
	case "":
		return Options{}, errors.New("--command is required (one of enc, dec, keys)")
	default:
		return Options{}, fmt.Errorf("invalid --command %q: must be one of enc, dec, keys", commandStr)
	}

	if err := validate(&opts); err != nil {
		return Options{}, err
	}

	if opts.Executors < 1 {
		opts.Executors = transform.DefaultWorkerCount()
	}
	if max := runtime.NumCPU() * 4; opts.Executors > max {
		opts.Executors = max
	}

	return opts, nil
}

func validate(opts *Options) error {
	if opts.Command == GenKeys {
		if opts.Source != "" || opts.Target != "" {
			return errors.New("--source and --target must not be given with --command keys")
		}
		if opts.KeyPath == "" {
			return errors.New("--key is required with --command keys: the new keypair is written to <key>.key and <key>.pub")
		}
		return nil
	}

	if opts.KeyPath == "" {
		return errors.New("--key is required for enc/dec")
	}
	if opts.Source == "" {
		return errors.New("--source is required for enc/dec")
	}
	if opts.Target == "" {
		return errors.New("--target is required for enc/dec")
	}
	return nil
}
