// Package blockdev translates volume-absolute (offset, length) read/write
// operations into seek+read/write calls across a directory of fixed-size
// band files.
package blockdev

import (
	"golang.org/x/xerrors"

	"github.com/pechfunk/sbnbd/internal/bandfile"
)

// BandFactory is the capability BandBlockDevice needs from a band file
// source — satisfied by *bandfile.Factory in production and by fakes in
// tests.
type BandFactory interface {
	GetBand(index int64, virtualSize int64) (bandfile.View, error)
}

// Segment is one contiguous run of bytes read from a single band. Read
// returns a slice of Segments rather than a channel: the protocol engine
// always drains the full sequence before writing any wire bytes, so a
// pull-based iterator would add synchronization with no observable benefit.
type Segment []byte

// BandBlockDevice presents a single contiguous byte-addressed volume over
// bands of width bandSize, except the final band whose declared width is
// lastBandSize.
type BandBlockDevice struct {
	totalSize    int64
	bandSize     int64
	numBands     int64
	lastBandSize int64
	bands        BandFactory
	readOnly     bool
}

// New constructs a BandBlockDevice of totalSize bytes, partitioned into
// bands of bandSize bytes (the last band narrower if totalSize does not
// divide evenly). bandSize must be strictly positive; totalSize must be
// non-negative. When readOnly is true, Write always fails with
// ReadOnlyError without touching any band.
func New(totalSize, bandSize int64, bands BandFactory, readOnly bool) (*BandBlockDevice, error) {
	if bandSize <= 0 {
		return nil, xerrors.Errorf("blockdev: bandSize must be positive, got %d", bandSize)
	}
	if totalSize < 0 {
		return nil, xerrors.Errorf("blockdev: totalSize must be non-negative, got %d", totalSize)
	}
	numBands := (totalSize + bandSize - 1) / bandSize
	if numBands == 0 {
		numBands = 1 // a zero-size volume still has one (empty) band
	}
	lastBandSize := totalSize - (numBands-1)*bandSize
	return &BandBlockDevice{
		totalSize:    totalSize,
		bandSize:     bandSize,
		numBands:     numBands,
		lastBandSize: lastBandSize,
		bands:        bands,
		readOnly:     readOnly,
	}, nil
}

// SizeBytes returns the total volume size in bytes.
func (d *BandBlockDevice) SizeBytes() int64 { return d.totalSize }

// bandVirtualSize returns the declared virtual size of band i: bandSize
// for every band but the last, lastBandSize for the last.
func (d *BandBlockDevice) bandVirtualSize(i int64) int64 {
	if i == d.numBands-1 {
		return d.lastBandSize
	}
	return d.bandSize
}

func (d *BandBlockDevice) validate(offset, length int64) error {
	if offset < 0 {
		return &InvalidArgumentError{Msg: "negative offset"}
	}
	if length < 0 {
		return &InvalidArgumentError{Msg: "negative length"}
	}
	if offset+length > d.totalSize {
		return &InvalidArgumentError{Msg: "range extends past end of volume"}
	}
	return nil
}

// Read returns the bytes in [offset, offset+length) as a sequence of
// per-band segments, produced in order. Callers must drain the whole
// sequence — or receive a non-nil error and no segments — before emitting
// any response, per the pre-materialise contract.
func (d *BandBlockDevice) Read(offset, length int64) ([]Segment, error) {
	if err := d.validate(offset, length); err != nil {
		return nil, err
	}

	var segments []Segment
	i := offset / d.bandSize
	o := offset % d.bandSize
	remaining := length
	for remaining > 0 {
		view, err := d.bands.GetBand(i, d.bandVirtualSize(i))
		if err != nil {
			return nil, xerrors.Errorf("blockdev: read: open band %d: %w", i, err)
		}
		s, err := d.transferOne(view, o, remaining, nil)
		closeErr := view.Close()
		if err != nil {
			return nil, xerrors.Errorf("blockdev: read: band %d: %w", i, err)
		}
		if closeErr != nil {
			return nil, xerrors.Errorf("blockdev: read: close band %d: %w", i, closeErr)
		}
		segments = append(segments, s.seg)
		remaining -= s.consumed
		o = 0
		i++
	}
	return segments, nil
}

// Write writes data to the volume starting at offset, spanning as many
// bands as necessary. A failure partway through leaves the bytes already
// written on disk in place — cross-band transfers are atomic only at band
// granularity.
func (d *BandBlockDevice) Write(offset int64, data []byte) error {
	if d.readOnly {
		return &ReadOnlyError{}
	}
	if err := d.validate(offset, int64(len(data))); err != nil {
		return err
	}

	i := offset / d.bandSize
	o := offset % d.bandSize
	so := int64(0)
	remaining := int64(len(data))
	for remaining > 0 {
		view, err := d.bands.GetBand(i, d.bandVirtualSize(i))
		if err != nil {
			return xerrors.Errorf("blockdev: write: open band %d: %w", i, err)
		}
		s, err := d.transferOne(view, o, remaining, data[so:])
		closeErr := view.Close()
		if err != nil {
			return xerrors.Errorf("blockdev: write: band %d: %w", i, err)
		}
		if closeErr != nil {
			return xerrors.Errorf("blockdev: write: close band %d: %w", i, closeErr)
		}
		so += s.consumed
		remaining -= s.consumed
		o = 0
		i++
	}
	return nil
}

type transferResult struct {
	seg      Segment
	consumed int64
}

// transferOne moves up to min(remaining, bandSize-o) bytes across a single
// band view: a read if write is nil, otherwise a write of write[:s]. This
// is the inner step of the traversal algorithm shared by Read and Write.
func (d *BandBlockDevice) transferOne(view bandfile.View, o, remaining int64, write []byte) (transferResult, error) {
	if err := view.Seek(o); err != nil {
		return transferResult{}, err
	}
	s := remaining
	if o+remaining > d.bandSize {
		s = d.bandSize - o
	}

	if write == nil {
		buf := make([]byte, s)
		got := int64(0)
		for got < s {
			n, err := view.Read(buf[got:])
			got += int64(n)
			if n == 0 && err == nil {
				break // nothing more to read, the band truly ran dry
			}
			if err != nil {
				return transferResult{}, err
			}
		}
		return transferResult{seg: Segment(buf[:got]), consumed: s}, nil
	}

	n, err := view.Write(write[:s])
	if err != nil {
		return transferResult{}, err
	}
	return transferResult{consumed: int64(n)}, nil
}
