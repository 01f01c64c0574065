package bandfile

import (
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/xerrors"
)

// Factory finds bands in an Apple-sparsebundle-style bands directory. Band
// filenames are the band index rendered in lowercase hexadecimal without
// leading zeros.
type Factory struct {
	dir      string
	writable bool
}

// NewFactory returns a Factory serving bands out of dir. When writable is
// false, bands are opened read-only.
func NewFactory(dir string, writable bool) *Factory {
	return &Factory{dir: dir, writable: writable}
}

// GetBand returns a View over the band with the given index, presenting it
// as virtualSize bytes long. A missing band file yields a ZeroFile; any
// other open error is propagated unchanged (wrapped for its error chain).
func (f *Factory) GetBand(index int64, virtualSize int64) (View, error) {
	name := strconv.FormatInt(index, 16)
	full := filepath.Join(f.dir, name)

	flag := os.O_RDONLY
	if f.writable {
		flag = os.O_RDWR
	}
	file, err := os.OpenFile(full, flag, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return NewZeroFile(virtualSize), nil
		}
		return nil, xerrors.Errorf("bandfile: open band %d: %w", index, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, xerrors.Errorf("bandfile: stat band %d: %w", index, err)
	}

	return NewPaddedFile(file, info.Size(), virtualSize), nil
}
