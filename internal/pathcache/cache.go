// Package pathcache memoizes directory listings of the output tree.
//
// The first query for a directory performs one listing; later queries for the
// same directory reuse it until Invalidate. Concurrent first queries for one
// directory share a single listing.
package pathcache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"syscall"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultSize is the number of directories kept when New is given size <= 0.
const DefaultSize = 4096

// Listing is the content of one directory.
type Listing struct {
	Dir     string
	entries map[string]bool // name -> is directory
}

// Has reports whether name exists in the directory.
func (l *Listing) Has(name string) bool {
	_, ok := l.entries[name]
	return ok
}

// IsFile reports whether name exists and is not a directory.
func (l *Listing) IsFile(name string) bool {
	isDir, ok := l.entries[name]
	return ok && !isDir
}

// IsDir reports whether name exists and is a directory.
func (l *Listing) IsDir(name string) bool {
	return l.entries[name]
}

// Cache is safe for concurrent use.
type Cache struct {
	lru      *lru.Cache[string, *Listing]
	group    singleflight.Group
	gen      atomic.Uint64
	listings atomic.Int64
	readDir  func(string) ([]fs.DirEntry, error)
}

// New returns a cache holding up to size directories.
func New(size int) *Cache {
	if size <= 0 {
		size = DefaultSize
	}
	l, err := lru.New[string, *Listing](size)
	if err != nil {
		// Only returned for size <= 0.
		panic(fmt.Sprintf("pathcache: %v", err))
	}
	return &Cache{lru: l, readDir: os.ReadDir}
}

// ListDir returns the listing for dir. A directory that does not exist
// yields an empty listing.
func (c *Cache) ListDir(dir string) (*Listing, error) {
	key := normalize(dir)
	if l, ok := c.lru.Get(key); ok {
		return l, nil
	}

	gen := c.gen.Load()
	v, err, _ := c.group.Do(strconv.FormatUint(gen, 10)+"\x00"+key, func() (any, error) {
		if l, ok := c.lru.Get(key); ok {
			return l, nil
		}
		l, err := c.list(key)
		if err != nil {
			return nil, err
		}
		// A listing started before Invalidate must not repopulate the cache.
		if c.gen.Load() == gen {
			c.lru.Add(key, l)
		}
		return l, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Listing), nil
}

func (c *Cache) list(dir string) (*Listing, error) {
	c.listings.Add(1)
	entries, err := c.readDir(filepath.FromSlash(dir))
	if err != nil && !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, syscall.ENOTDIR) {
		return nil, fmt.Errorf("pathcache: list %s: %w", dir, err)
	}
	l := &Listing{Dir: dir, entries: make(map[string]bool, len(entries))}
	for _, e := range entries {
		l.entries[e.Name()] = e.IsDir()
	}
	return l, nil
}

// Exists reports whether p names an existing file or directory.
func (c *Cache) Exists(p string) bool {
	dir, name := split(p)
	l, err := c.ListDir(dir)
	return err == nil && l.Has(name)
}

// IsFile reports whether p names an existing regular file.
func (c *Cache) IsFile(p string) bool {
	dir, name := split(p)
	l, err := c.ListDir(dir)
	return err == nil && l.IsFile(name)
}

// IsDir reports whether p names an existing directory.
func (c *Cache) IsDir(p string) bool {
	dir, name := split(p)
	l, err := c.ListDir(dir)
	return err == nil && l.IsDir(name)
}

// Invalidate drops every cached listing. Listings in flight when Invalidate
// is called are returned to their callers but not kept.
func (c *Cache) Invalidate() {
	c.gen.Add(1)
	c.lru.Purge()
}

// Len is the number of cached directories.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Listings is the number of directory listings performed so far.
func (c *Cache) Listings() int64 {
	return c.listings.Load()
}

func normalize(p string) string {
	return path.Clean(filepath.ToSlash(p))
}

func split(p string) (string, string) {
	p = normalize(p)
	return path.Dir(p), path.Base(p)
}
