// Package diskcache is a content-addressed file store rooted in a single
// directory, with one subdirectory per logical namespace.
//
// Files are named by a hash of the resource identity. A second name with a
// mime-derived extension can be attached to the same bytes (hard link, or a
// copy when links are unsupported). There is no index: existence is read
// straight from the filesystem, and old files go away through Cleanup.
//
// The cache does no locking of its own. Writes go through a temp file and a
// rename, so concurrent writers of the same item race harmlessly and never
// touch another item's file.
package diskcache

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/remotestorage/internal/filex"
	"github.com/dmitrijs2005/remotestorage/internal/logging"
	"golang.org/x/crypto/blake2b"
)

// ErrOutsideRoot is returned for items whose path would leave the cache root.
var ErrOutsideRoot = errors.New("item path escapes cache root")

// Item addresses one file: a namespace directory, a base name and an
// optional extension.
type Item struct {
	Dir  string
	Name string
	Ext  string
}

// Named addresses a file by an explicit name.
func Named(dir, name string) Item {
	return Item{Dir: dir, Name: name}
}

// Hashed addresses a file by the hash of identity, typically a URL plus a
// quality tag.
func Hashed(dir, identity, ext string) Item {
	sum := blake2b.Sum256([]byte(identity))
	return Item{Dir: dir, Name: hex.EncodeToString(sum[:16]), Ext: ext}
}

// WithExt returns the same item under another extension.
func (i Item) WithExt(ext string) Item {
	i.Ext = strings.TrimPrefix(ext, ".")
	return i
}

func (i Item) FileName() string {
	if i.Ext == "" {
		return i.Name
	}
	return i.Name + "." + strings.TrimPrefix(i.Ext, ".")
}

func (i Item) relPath() string {
	return filepath.Join(i.Dir, i.FileName())
}

type Cache struct {
	root   string
	logger logging.Logger
}

// New opens (and creates if needed) a cache rooted at root.
func New(root string, logger logging.Logger) (*Cache, error) {
	abs, err := filex.EnsureDir(root)
	if err != nil {
		return nil, fmt.Errorf("disk cache root: %w", err)
	}
	return &Cache{root: abs, logger: logger.With("module", "disk_cache")}, nil
}

func (c *Cache) Root() string {
	return c.root
}

func (c *Cache) resolve(rel string) (string, error) {
	full := filepath.Join(c.root, rel)
	if full != c.root && !strings.HasPrefix(full, c.root+string(filepath.Separator)) {
		return "", ErrOutsideRoot
	}
	return full, nil
}

// Path returns the absolute location of item, creating its directory.
func (c *Cache) Path(item Item) (string, error) {
	path, err := c.resolve(item.relPath())
	if err != nil {
		return "", err
	}
	if _, err := filex.EnsureDir(filepath.Dir(path)); err != nil {
		return "", err
	}
	return path, nil
}

// ExistingPath returns the item's path only if a regular file is there.
func (c *Cache) ExistingPath(item Item) (string, bool) {
	path, err := c.resolve(item.relPath())
	if err != nil {
		return "", false
	}
	fi, err := os.Stat(path)
	if err != nil || !fi.Mode().IsRegular() {
		return "", false
	}
	return path, true
}

// Write stores data under item and returns the file path.
func (c *Cache) Write(item Item, data []byte) (string, error) {
	path, err := c.Path(item)
	if err != nil {
		return "", err
	}
	if err := filex.WriteAtomic(path, data); err != nil {
		return "", err
	}
	return path, nil
}

func (c *Cache) ReadBytes(item Item) ([]byte, bool) {
	path, ok := c.ExistingPath(item)
	if !ok {
		return nil, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return data, true
}

// Replace moves the file at src into the cache as item.
func (c *Cache) Replace(item Item, src string) (string, error) {
	path, err := c.Path(item)
	if err != nil {
		return "", err
	}
	if err := os.Rename(src, path); err != nil {
		return "", fmt.Errorf("move into cache: %w", err)
	}
	return path, nil
}

// Link gives the bytes of target a second name, alias. Linking an item to
// itself is a no-op.
func (c *Cache) Link(alias, target Item) (string, error) {
	realPath, ok := c.ExistingPath(target)
	if !ok {
		return "", fmt.Errorf("link %s: %w", target.FileName(), fs.ErrNotExist)
	}
	aliasPath, err := c.Path(alias)
	if err != nil {
		return "", err
	}
	if aliasPath == realPath {
		return realPath, nil
	}
	if err := filex.LinkOrCopy(realPath, aliasPath); err != nil {
		return "", err
	}
	return aliasPath, nil
}

// Delete removes item, ignoring a missing file.
func (c *Cache) Delete(item Item) {
	path, err := c.resolve(item.relPath())
	if err != nil {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		c.logger.Warn(context.Background(), "delete failed", "path", path, "error", err)
	}
}

// Cleanup removes every file under dir last modified before olderThan.
// It is best effort: failures are logged and otherwise ignored.
func (c *Cache) Cleanup(dir string, olderThan time.Time) {
	base, err := c.resolve(dir)
	if err != nil {
		return
	}

	removed := 0
	_ = filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil || !info.ModTime().Before(olderThan) {
			return nil
		}
		if err := os.Remove(path); err != nil {
			c.logger.Debug(context.Background(), "cleanup skip", "path", path, "error", err)
			return nil
		}
		removed++
		return nil
	})

	c.logger.Debug(context.Background(), "cleanup done", "dir", dir, "removed", removed)
}
