// Command corebrew is the package-manager CLI: a thin dispatcher over the
// root corebrew package's command surface. This is deliberately minimal:
// stdlib flag plus a hand-rolled command table rather than a CLI
// framework dependency.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/corebrew/corebrew"
	"github.com/corebrew/corebrew/internal/gps"
	"github.com/corebrew/corebrew/internal/txn"
)

type command interface {
	Name() string
	Args() string
	ShortHelp() string
	Run(ctx context.Context, c *corebrew.Ctx, args []string, pretend bool, out io.Writer) error
}

func main() {
	cfg := &Config{
		Args:   os.Args,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
	os.Exit(cfg.Run())
}

// Config holds everything main()'s environment provides, kept in a plain
// struct so Run is testable without touching the real process.
type Config struct {
	Args           []string
	Stdout, Stderr io.Writer
}

var commands = []command{
	&installCmd{}, &removeCmd{}, &updateCmd{}, &newuseCmd{},
	&syncCmd{}, &searchCmd{}, &infoCmd{}, &listInstalledCmd{},
	&verifyCmd{}, &depcleanCmd{}, &auditCmd{},
}

func (c *Config) Run() int {
	if len(c.Args) < 2 {
		usage(c.Stderr)
		return 2
	}

	fs := flag.NewFlagSet("corebrew", flag.ContinueOnError)
	fs.SetOutput(c.Stderr)
	root := fs.String("root", "/", "target root filesystem")
	backend := fs.String("backend", "/usr/libexec/corebrew-backend", "build backend executable")
	pretend := fs.Bool("pretend", false, "compute and print the plan without applying it")
	logLevel := fs.String("log-level", "warn", "logrus level: debug|info|warn|error")

	name := c.Args[1]
	var cmd command
	for _, candidate := range commands {
		if candidate.Name() == name {
			cmd = candidate
			break
		}
	}
	if cmd == nil {
		fmt.Fprintf(c.Stderr, "corebrew: unknown command %q\n", name)
		usage(c.Stderr)
		return 2
	}

	if err := fs.Parse(c.Args[2:]); err != nil {
		return 2
	}

	log := logrus.New()
	log.SetOutput(c.Stderr)
	if level, err := logrus.ParseLevel(*logLevel); err == nil {
		log.SetLevel(level)
	}

	ctx, err := corebrew.NewContext(*root, *backend, log)
	if err != nil {
		fmt.Fprintln(c.Stderr, "corebrew:", err)
		return 1
	}

	runCtx := context.Background()
	args := fs.Args()
	if err := cmd.Run(runCtx, ctx, args, *pretend, c.Stdout); err != nil {
		fmt.Fprintln(c.Stderr, "corebrew:", err)
		return errorExitCode(err)
	}
	return 0
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: corebrew <command> [args...]")
	fmt.Fprintln(w, "Commands:")
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %-16s %s\n", cmd.Name()+" "+cmd.Args(), cmd.ShortHelp())
	}
}

// errorExitCode maps a returned error to a distinct exit code per failure
// category, so callers can distinguish "nothing found" from "blocked" from
// "file collision" without scraping stderr.
func errorExitCode(err error) int {
	switch errors.Cause(err).(type) {
	case *gps.NotFoundError, *gps.NoEligibleVersionError:
		return 3
	case *gps.UnsatisfiableError:
		return 4
	case *gps.BlockedError:
		return 5
	case *txn.CollisionError:
		return 6
	default:
		return 1
	}
}
