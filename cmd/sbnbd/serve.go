package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"
	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"

	"github.com/pechfunk/sbnbd/internal/bundle"
	"github.com/pechfunk/sbnbd/internal/nbd"
)

const serveHelp = `sbnbd serve [-flags] <bundleDir> <port>

Serve a sparsebundle disk image over the Network Block Device protocol.

Example:
  % sbnbd serve -readonly=false /srv/images/disk.sparsebundle 10809
`

// bumpRlimitNOFILE raises RLIMIT_NOFILE to the kernel-enforced ceiling:
// every connection may walk every band file in the bundle.
func bumpRlimitNOFILE() error {
	var fileMax, nrOpen uint64
	{
		b, err := os.ReadFile("/proc/sys/fs/file-max")
		if err != nil {
			return err
		}
		fileMax, err = strconv.ParseUint(strings.TrimSpace(string(b)), 0, 64)
		if err != nil {
			return err
		}
	}
	{
		b, err := os.ReadFile("/proc/sys/fs/nr_open")
		if err != nil {
			return err
		}
		nrOpen, err = strconv.ParseUint(strings.TrimSpace(string(b)), 0, 64)
		if err != nil {
			return err
		}
	}
	max := fileMax
	if nrOpen < max {
		max = nrOpen
	}
	return unix.Setrlimit(unix.RLIMIT_NOFILE, &unix.Rlimit{Max: max, Cur: max})
}

// newLogger gates timestamp prefixes: they help when output is redirected
// to a file, but just add noise on an interactive terminal.
func newLogger() *log.Logger {
	flags := log.LstdFlags
	if isatty.IsTerminal(os.Stderr.Fd()) {
		flags = 0
	}
	return log.New(os.Stderr, "", flags)
}

func cmdserve(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("serve", flag.ExitOnError)
	readonly := fset.Bool("readonly", true, "serve the bundle read-only; reject NBD write requests")
	fset.Usage = usage(fset, serveHelp)
	fset.Parse(args)
	if fset.NArg() != 2 {
		return xerrors.Errorf("syntax: serve <bundleDir> <port>")
	}
	bundleDir := fset.Arg(0)
	port, err := strconv.Atoi(fset.Arg(1))
	if err != nil {
		return xerrors.Errorf("invalid port %q: %w", fset.Arg(1), err)
	}

	if err := bumpRlimitNOFILE(); err != nil {
		log.Printf("warning: bumping RLIMIT_NOFILE failed: %v", err)
	}

	dev, err := bundle.Open(bundleDir, !*readonly)
	if err != nil {
		return xerrors.Errorf("opening bundle: %w", err)
	}

	ln, err := net.Listen("tcp", ":"+strconv.Itoa(port))
	if err != nil {
		return xerrors.Errorf("listening: %w", err)
	}
	writeAddrFD(ln.Addr().String())

	logger := newLogger()
	logger.Printf("serving %s (%d bytes, read-only=%v) on %s", bundleDir, dev.SizeBytes(), *readonly, ln.Addr())
	return nbd.Serve(ctx, ln, dev, logger)
}
