package etch

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/sirupsen/logrus"
)

// Cache loads and stores compiled Programs in a per-source sibling
// directory (`<dir>/.etch-cache/<name>.etchc`), keyed by a digest of the
// source content and the compiler options that affect codegen.
type Cache struct {
	log   logrus.FieldLogger
	force bool
}

func NewCache(log logrus.FieldLogger, force bool) *Cache {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Cache{log: log, force: force}
}

// SourceHash combines the source bytes and a digest of the options that
// change codegen (currently just "optimize on/off") so a cache entry
// built with one optimizer setting is never reused for another.
func SourceHash(src []byte, optimize bool) uint64 {
	h := xxhash.New()
	h.Write(src)
	if optimize {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	return h.Sum64()
}

func (c *Cache) pathFor(sourcePath string) string {
	dir := filepath.Join(filepath.Dir(sourcePath), ".etch-cache")
	name := filepath.Base(sourcePath) + "c"
	return filepath.Join(dir, name)
}

// Load returns a cached Program for sourcePath if present and its header
// matches sourceHash/CompilerVersion, nil otherwise. --force
// (c.force) always misses.
func (c *Cache) Load(sourcePath string, sourceHash uint64) *Program {
	if c.force {
		return nil
	}
	path := c.pathFor(sourcePath)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	prog, err := Deserialize(data)
	if err != nil {
		c.log.WithField("file", path).WithError(err).Debug("cache entry unreadable")
		return nil
	}
	if prog.CompilerVersion != CompilerVersion || prog.SourceHash != sourceHash {
		c.log.WithField("file", sourcePath).Debug("cache stale")
		return nil
	}
	c.log.WithField("file", sourcePath).Debug("cache hit")
	return prog
}

// Store writes prog to sourcePath's cache entry, creating the sibling
// cache directory if needed.
func (c *Cache) Store(sourcePath string, prog *Program) error {
	path := c.pathFor(sourcePath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("etch cache: %w", err)
	}
	data, err := Serialize(prog)
	if err != nil {
		return fmt.Errorf("etch cache: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("etch cache: %w", err)
	}
	c.log.WithField("file", sourcePath).Debug("cache stored")
	return nil
}
