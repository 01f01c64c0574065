// Package bandfile provides file-like views over sparsebundle band files:
// a view presents a fixed virtual size, padding with NUL bytes wherever the
// backing file is absent or physically shorter than its declared size.
package bandfile

import (
	"errors"
	"io"

	"golang.org/x/xerrors"
)

// backing is the minimal capability PaddedFile needs from its underlying
// store. In production this is always an *os.File opened by Factory; tests
// substitute an in-memory implementation (see bandfile_test.go).
type backing interface {
	io.Reader
	io.Writer
	io.Seeker
	io.Closer
}

// ErrBandAbsent is returned by Write when called on a view backed by no
// file at all (a ZeroFile): writes never materialise a missing band.
var ErrBandAbsent = xerrors.New("bandfile: write to absent band")

// View is a cursor-bearing, fixed-virtual-size file view: reads never
// return bytes past virtSize, and absent or short backing data reads back
// as NUL.
type View interface {
	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)
	Seek(pos int64) error
	Tell() int64
	Close() error
}

// PaddedFile wraps an *os.File, pretending it has been NUL-padded out to
// virtSize bytes. realSize is captured once, at open time, and never
// updated for the lifetime of the view — a write through this view past
// realSize extends the underlying file on disk, but this view keeps
// treating bytes beyond its captured realSize as belonging to the padded
// region until it is closed and reopened.
type PaddedFile struct {
	f        backing
	realSize int64
	virtSize int64
	pos      int64
}

// NewPaddedFile wraps f, which is believed to hold realSize bytes, so that
// it reads back as virtSize bytes long.
func NewPaddedFile(f backing, realSize, virtSize int64) *PaddedFile {
	return &PaddedFile{f: f, realSize: realSize, virtSize: virtSize}
}

// Read delegates to the backing store, advancing pos by however many bytes
// it actually returned (short reads are tolerated, not retried). Only once
// pos has reached realSize does a short read get topped up with NUL bytes,
// capped by the request size and by virtSize.
func (p *PaddedFile) Read(buf []byte) (int, error) {
	n, err := p.f.Read(buf)
	p.pos += int64(n)
	if err != nil && !errors.Is(err, io.EOF) {
		// A genuine I/O error is never masked by padding: the caller needs
		// to see it in order to convert it to a wire errno.
		return n, xerrors.Errorf("bandfile: read: %w", err)
	}
	if n < len(buf) && p.pos >= p.realSize {
		maxPad := p.virtSize - p.pos
		if maxPad < 0 {
			maxPad = 0
		}
		missing := int64(len(buf) - n)
		padSize := missing
		if maxPad < padSize {
			padSize = maxPad
		}
		for i := int64(0); i < padSize; i++ {
			buf[n] = 0
			n++
		}
	}
	return n, nil
}

// Write forwards to the underlying file at the current cursor. Per
// SPEC_FULL.md §4.2, writes into the tail of a short existing band file are
// allowed and extend the file on disk; the core never refuses a write to a
// present-but-short band.
func (p *PaddedFile) Write(buf []byte) (int, error) {
	n, err := p.f.Write(buf)
	p.pos += int64(n)
	if err != nil {
		return n, xerrors.Errorf("bandfile: write: %w", err)
	}
	return n, nil
}

// Seek repositions the cursor. Only absolute positioning is supported —
// there is no whence parameter.
func (p *PaddedFile) Seek(pos int64) error {
	if _, err := p.f.Seek(pos, 0); err != nil {
		return xerrors.Errorf("bandfile: seek: %w", err)
	}
	p.pos = pos
	return nil
}

// Tell returns the current cursor position.
func (p *PaddedFile) Tell() int64 { return p.pos }

// Close releases the underlying file handle. Band views are opened per
// operation (§5) and are expected to be closed immediately afterward.
func (p *PaddedFile) Close() error {
	return p.f.Close()
}
