//go:build unix

package shm

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/bebsworthy/arcset/internal/errors"
)

// DefaultDir is where regions are created when the directory exists
const DefaultDir = "/dev/shm"

// Region is a named file mapped read/write and shared between processes
type Region struct {
	path string
	file *os.File
	mem  []byte
}

// ResolveDir returns dir if it is an existing directory. An empty dir, or a
// missing DefaultDir, falls back to the system temporary directory.
func ResolveDir(dir string) string {
	if dir == "" {
		dir = DefaultDir
	}
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return dir
	}
	if dir == DefaultDir {
		return os.TempDir()
	}
	return dir
}

// Path returns the OS name of object suffix under dir for channel name
func Path(dir, name, suffix string) string {
	return filepath.Join(dir, name+"."+suffix)
}

// CreateRegion exclusively creates path, sizes it and maps it. Nothing is
// left behind when it fails.
func CreateRegion(path string, size int, perm os.FileMode) (*Region, error) {
	if size <= 0 {
		return nil, errors.InternalError(errors.CodeInvalidLayout,
			fmt.Sprintf("invalid region size %d", size), nil)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, perm)
	if err != nil {
		return nil, errors.ClassifyError(err, "failed to create "+path)
	}

	cleanup := func() {
		file.Close()
		os.Remove(path)
	}

	if err := file.Truncate(int64(size)); err != nil {
		cleanup()
		return nil, errors.ResourceError(errors.CodeResourceExhausted, "failed to size "+path, err)
	}

	mem, err := mmapFile(file, size)
	if err != nil {
		cleanup()
		return nil, errors.ResourceError(errors.CodeResourceExhausted, "failed to map "+path, err)
	}

	return &Region{path: path, file: file, mem: mem}, nil
}

// OpenRegion maps an existing region at its current size. The size must be
// at least minSize.
func OpenRegion(path string, minSize int) (*Region, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, errors.ClassifyError(err, "failed to open "+path)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, errors.ClassifyError(err, "failed to stat "+path)
	}

	size := info.Size()
	if size < int64(minSize) || size <= 0 {
		file.Close()
		return nil, errors.ResourceError(errors.CodeInvalidLayout,
			fmt.Sprintf("%s is too small: %d bytes", path, size), nil)
	}

	mem, err := mmapFile(file, int(size))
	if err != nil {
		file.Close()
		return nil, errors.ClassifyError(err, "failed to map "+path)
	}

	return &Region{path: path, file: file, mem: mem}, nil
}

// Bytes returns the mapped memory. It is invalid after Close.
func (r *Region) Bytes() []byte {
	return r.mem
}

// Size returns the mapped length in bytes
func (r *Region) Size() int {
	return len(r.mem)
}

// Path returns the region's OS name
func (r *Region) Path() string {
	return r.path
}

// Close unmaps the region and closes its descriptor. The name is kept.
func (r *Region) Close() error {
	var unmapErr, closeErr error
	if r.mem != nil {
		unmapErr = unix.Munmap(r.mem)
		r.mem = nil
	}
	if r.file != nil {
		closeErr = r.file.Close()
		r.file = nil
	}
	if unmapErr != nil {
		return errors.ResourceError(errors.CodeTeardown, "failed to unmap "+r.path, unmapErr)
	}
	if closeErr != nil {
		return errors.ResourceError(errors.CodeTeardown, "failed to close "+r.path, closeErr)
	}
	return nil
}

// Unlink removes the OS name. Processes that still map it keep their view.
func Unlink(path string) error {
	if err := os.Remove(path); err != nil {
		return errors.ClassifyError(err, "failed to unlink "+path)
	}
	return nil
}

// mmapFile memory maps a file
func mmapFile(file *os.File, size int) ([]byte, error) {
	data, err := unix.Mmap(int(file.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap failed: %w", err)
	}
	return data, nil
}
