// Package pager owns the memory-mapped file backing the store and hands
// out fixed-size page views by bumping a next-free-page counter. Page 0
// is reserved for the caller's metadata page and is never allocated.
package pager

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/weids-dev/radarbase/pkg/redberr"
)

// NoPage is the reserved sentinel meaning "no page" / "no root".
const NoPage uint64 = ^uint64(0)

// ErrStaleView is returned (via panic, mirroring a borrow-checker trap)
// when a PageView is read after the mapping was grown (and remapped),
// invalidating its backing slice.
var ErrStaleView = fmt.Errorf("pager: stale page view")

// Pager owns the mmap and the bump-pointer page allocator.
type Pager struct {
	file       *os.File
	data       []byte
	pageSize   int
	nextFree   uint64
	generation uint64
	syncHook   func(time.Duration)
}

// Open creates or opens path, growing the file to maxSize (rounded down to
// a page-size multiple) if it is smaller, and maps it into memory. The
// platform page size is queried once here, per the "queried once at open"
// invariant; it is never hardcoded.
func Open(path string, maxSize int64) (*Pager, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, redberr.IO(fmt.Errorf("open %s: %w", path, err))
	}

	pageSize := unix.Getpagesize()
	size := (maxSize / int64(pageSize)) * int64(pageSize)
	if size == 0 {
		size = int64(pageSize)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, redberr.IO(fmt.Errorf("stat %s: %w", path, err))
	}
	if info.Size() < size {
		if err := file.Truncate(size); err != nil {
			file.Close()
			return nil, redberr.IO(fmt.Errorf("truncate %s: %w", path, err))
		}
	} else {
		size = info.Size()
	}

	data, err := unix.Mmap(int(file.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		return nil, redberr.IO(fmt.Errorf("mmap %s: %w", path, err))
	}

	return &Pager{
		file:     file,
		data:     data,
		pageSize: pageSize,
		nextFree: 1, // page 0 is reserved for metadata
	}, nil
}

// PageSize reports the platform page size determined at Open.
func (p *Pager) PageSize() int { return p.pageSize }

// NextFree reports the next page number Allocate would hand out.
func (p *Pager) NextFree() uint64 { return p.nextFree }

// Restore sets the next-free-page counter from a previously persisted
// metadata page, for use when reopening an existing file.
func (p *Pager) Restore(nextFree uint64) { p.nextFree = nextFree }

// Capacity reports how many pages currently fit in the mapping.
func (p *Pager) Capacity() uint64 { return uint64(len(p.data)) / uint64(p.pageSize) }

// PageView is an immutable, zero-copy view over one page.
type PageView struct {
	pager *Pager
	n     uint64
	gen   uint64
}

// PageMut is an exclusive, zero-copy, mutable view over one page.
type PageMut struct {
	pager *Pager
	n     uint64
	gen   uint64
}

// Number returns the page number this view addresses.
func (v PageView) Number() uint64 { return v.n }
func (v PageMut) Number() uint64  { return v.n }

// Bytes returns the page's backing slice. Panics with ErrStaleView if the
// mapping was grown (and thus remapped) since this view was issued.
func (v PageView) Bytes() []byte {
	if v.gen != v.pager.generation {
		panic(ErrStaleView)
	}
	off := v.n * uint64(v.pager.pageSize)
	return v.pager.data[off : off+uint64(v.pager.pageSize)]
}

// Bytes returns the page's mutable backing slice. Panics with ErrStaleView
// under the same condition as PageView.Bytes.
func (v PageMut) Bytes() []byte {
	if v.gen != v.pager.generation {
		panic(ErrStaleView)
	}
	off := v.n * uint64(v.pager.pageSize)
	return v.pager.data[off : off+uint64(v.pager.pageSize)]
}

// GetPage returns an immutable view of page n. It is an error for n to be
// outside [0, nextFree).
func (p *Pager) GetPage(n uint64) (PageView, error) {
	if n >= p.nextFree {
		return PageView{}, redberr.Corruption(fmt.Sprintf("page %d out of bounds (next_free=%d)", n, p.nextFree))
	}
	if err := p.ensureCapacity(n); err != nil {
		return PageView{}, err
	}
	return PageView{pager: p, n: n, gen: p.generation}, nil
}

// GetPageMut returns an exclusive mutable view of page n. The caller is
// responsible for not retaining outstanding immutable views of the same
// page concurrently (§5's borrow discipline); the generation guard only
// catches the cross-allocation-invalidation case, not same-generation
// aliasing.
func (p *Pager) GetPageMut(n uint64) (PageMut, error) {
	if n >= p.nextFree {
		return PageMut{}, redberr.Corruption(fmt.Sprintf("page %d out of bounds (next_free=%d)", n, p.nextFree))
	}
	if err := p.ensureCapacity(n); err != nil {
		return PageMut{}, err
	}
	return PageMut{pager: p, n: n, gen: p.generation}, nil
}

// Allocate bumps the next-free counter and returns the fresh page.
func (p *Pager) Allocate() (PageMut, error) {
	n := p.nextFree
	if err := p.ensureCapacity(n); err != nil {
		return PageMut{}, err
	}
	p.nextFree++
	return PageMut{pager: p, n: n, gen: p.generation}, nil
}

// ensureCapacity grows the mapping (doubling) if page n does not fit yet.
// Growing remaps the file, invalidating every outstanding PageView/PageMut
// issued under the previous generation.
func (p *Pager) ensureCapacity(n uint64) error {
	needed := (n + 1) * uint64(p.pageSize)
	if needed <= uint64(len(p.data)) {
		return nil
	}
	newSize := uint64(len(p.data))
	if newSize == 0 {
		newSize = uint64(p.pageSize)
	}
	for newSize < needed {
		newSize *= 2
	}
	if err := unix.Munmap(p.data); err != nil {
		return redberr.IO(fmt.Errorf("munmap during grow: %w", err))
	}
	if err := p.file.Truncate(int64(newSize)); err != nil {
		return redberr.IO(fmt.Errorf("truncate during grow: %w", err))
	}
	data, err := unix.Mmap(int(p.file.Fd()), 0, int(newSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return redberr.IO(fmt.Errorf("remap during grow: %w", err))
	}
	p.data = data
	p.generation++
	return nil
}

// SetSyncHook installs fn to be called with each Sync's duration, for
// an embedder to feed into its own metrics. Pass nil to disable.
func (p *Pager) SetSyncHook(fn func(time.Duration)) { p.syncHook = fn }

// Sync durably flushes the mapping.
func (p *Pager) Sync() error {
	start := time.Now()
	err := unix.Msync(p.data, unix.MS_SYNC)
	if p.syncHook != nil {
		p.syncHook(time.Since(start))
	}
	if err != nil {
		return redberr.IO(fmt.Errorf("msync: %w", err))
	}
	return nil
}

// Close unmaps the file and closes the descriptor.
func (p *Pager) Close() error {
	if p.data != nil {
		if err := unix.Munmap(p.data); err != nil {
			return redberr.IO(fmt.Errorf("munmap: %w", err))
		}
		p.data = nil
	}
	if err := p.file.Close(); err != nil {
		return redberr.IO(fmt.Errorf("close: %w", err))
	}
	return nil
}
