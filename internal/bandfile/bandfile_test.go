package bandfile

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/orcaman/writerseeker"
)

// memBacking adapts an in-memory github.com/orcaman/writerseeker.WriteSeeker
// (which splits reading and writing across two values) into the single
// Read+Write+Seek+Close capability PaddedFile needs, so unit tests don't pay
// for real temp files on every padding-boundary case.
type memBacking struct {
	ws *writerseeker.WriteSeeker
	r  io.ReadSeeker
}

func newMemBacking(initial []byte) *memBacking {
	ws := &writerseeker.WriteSeeker{}
	ws.Write(initial)
	ws.Seek(0, io.SeekStart)
	return &memBacking{ws: ws, r: ws.Reader()}
}

func (m *memBacking) Read(p []byte) (int, error)  { return m.r.Read(p) }
func (m *memBacking) Write(p []byte) (int, error) { return m.ws.Write(p) }
func (m *memBacking) Seek(offset int64, whence int) (int64, error) {
	if _, err := m.r.Seek(offset, whence); err != nil {
		return 0, err
	}
	return m.ws.Seek(offset, whence)
}
func (m *memBacking) Close() error { return nil }

func TestPaddedFileReadWithinRealSize(t *testing.T) {
	t.Parallel()

	pf := NewPaddedFile(newMemBacking([]byte("abcdefgh")), 8, 8)
	got := make([]byte, 4)
	n, err := pf.Read(got)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff("abcd", string(got[:n])); diff != "" {
		t.Errorf("Read() mismatch (-want +got):\n%s", diff)
	}
}

func TestPaddedFileShortFilePadsTail(t *testing.T) {
	t.Parallel()

	// Band file physically holds only "abcdefgh" (8 bytes) but is declared
	// to be 16 bytes virtually — bytes [8,16) must read back as NUL.
	pf := NewPaddedFile(newMemBacking([]byte("abcdefgh")), 8, 16)
	got := make([]byte, 16)
	n, err := pf.Read(got)
	if err != nil {
		t.Fatal(err)
	}
	want := append([]byte("abcdefgh"), make([]byte, 8)...)
	if diff := cmp.Diff(want, got[:n]); diff != "" {
		t.Errorf("Read() mismatch (-want +got):\n%s", diff)
	}
}

func TestPaddedFileBoundaryReadStraddlesRealAndVirtual(t *testing.T) {
	t.Parallel()

	// "abcdefgh" real, 8 bytes of NUL beyond it, read starting partway
	// through the real data.
	pf := NewPaddedFile(newMemBacking([]byte("abcdefgh")), 8, 16)
	if err := pf.Seek(6); err != nil {
		t.Fatal(err)
	}
	got := make([]byte, 11)
	n, err := pf.Read(got)
	if err != nil {
		t.Fatal(err)
	}
	want := append([]byte("gh"), make([]byte, 8)...)
	if diff := cmp.Diff(want, got[:n]); diff != "" {
		t.Errorf("Read() mismatch (-want +got):\n%s", diff)
	}
}

func TestZeroFileReadsAllNUL(t *testing.T) {
	t.Parallel()

	zf := NewZeroFile(24)
	got := make([]byte, 24)
	n, err := zf.Read(got)
	if err != nil {
		t.Fatal(err)
	}
	if n != 24 {
		t.Fatalf("got n=%d, want 24", n)
	}
	if diff := cmp.Diff(make([]byte, 24), got); diff != "" {
		t.Errorf("Read() mismatch (-want +got):\n%s", diff)
	}
}

func TestZeroFileReadPastVirtSizeIsTruncated(t *testing.T) {
	t.Parallel()

	zf := NewZeroFile(4)
	if err := zf.Seek(2); err != nil {
		t.Fatal(err)
	}
	got := make([]byte, 10)
	n, err := zf.Read(got)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("got n=%d, want 2 (virtSize-pos)", n)
	}
}

func TestZeroFileWriteFails(t *testing.T) {
	t.Parallel()

	zf := NewZeroFile(8)
	if _, err := zf.Write([]byte("x")); err != ErrBandAbsent {
		t.Fatalf("Write() error = %v, want ErrBandAbsent", err)
	}
}

func TestFactoryMissingBandYieldsZeroFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	f := NewFactory(dir, false)
	v, err := f.GetBand(5, 32)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := v.(*ZeroFile); !ok {
		t.Fatalf("GetBand() = %T, want *ZeroFile", v)
	}
}

func TestFactoryPresentBandYieldsPaddedFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "1f"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	f := NewFactory(dir, false)
	v, err := f.GetBand(0x1f, 32)
	if err != nil {
		t.Fatal(err)
	}
	pf, ok := v.(*PaddedFile)
	if !ok {
		t.Fatalf("GetBand() = %T, want *PaddedFile", v)
	}
	defer pf.Close()
	got := make([]byte, 32)
	n, err := pf.Read(got)
	if err != nil {
		t.Fatal(err)
	}
	want := append([]byte("hello"), bytes.Repeat([]byte{0}, 27)...)
	if diff := cmp.Diff(want, got[:n]); diff != "" {
		t.Errorf("Read() mismatch (-want +got):\n%s", diff)
	}
}

func TestFactoryWritableOpensReadWrite(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "0"), []byte("xyz"), 0o644); err != nil {
		t.Fatal(err)
	}
	f := NewFactory(dir, true)
	v, err := f.GetBand(0, 8)
	if err != nil {
		t.Fatal(err)
	}
	defer v.Close()
	if _, err := v.Write([]byte("Z")); err != nil {
		t.Fatalf("Write() into existing band: %v", err)
	}
}
