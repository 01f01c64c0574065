// Package bundle opens a sparsebundle directory and assembles the block
// device that serves it: reading Info.plist, then wiring up the band
// directory and the block device ahead of listening for connections.
package bundle

import (
	"os"
	"path/filepath"

	"golang.org/x/xerrors"

	"github.com/pechfunk/sbnbd/internal/bandfile"
	"github.com/pechfunk/sbnbd/internal/blockdev"
	"github.com/pechfunk/sbnbd/internal/plist"
)

// Open reads bundleDir/Info.plist and returns a BandBlockDevice backed by
// bundleDir/bands. writable controls whether band files are opened
// read-write or read-only and whether the resulting device accepts writes.
func Open(bundleDir string, writable bool) (*blockdev.BandBlockDevice, error) {
	infoPlistPath := filepath.Join(bundleDir, "Info.plist")
	f, err := os.Open(infoPlistPath)
	if err != nil {
		return nil, xerrors.Errorf("bundle: open %s: %w", infoPlistPath, err)
	}
	defer f.Close()

	info, err := plist.Parse(f)
	if err != nil {
		return nil, xerrors.Errorf("bundle: parse %s: %w", infoPlistPath, err)
	}

	bandSize, err := info.Int("band-size")
	if err != nil {
		return nil, xerrors.Errorf("bundle: %w", err)
	}
	sizeKiB, err := info.Int("size")
	if err != nil {
		return nil, xerrors.Errorf("bundle: %w", err)
	}
	totalSize := sizeKiB * 1024

	bandsDir := filepath.Join(bundleDir, "bands")
	factory := bandfile.NewFactory(bandsDir, writable)

	dev, err := blockdev.New(totalSize, bandSize, factory, !writable)
	if err != nil {
		return nil, xerrors.Errorf("bundle: %w", err)
	}
	return dev, nil
}
