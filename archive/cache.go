/*
Copyright © 2019 the fluxprep authors.
This file is part of fluxprep.

fluxprep is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

fluxprep is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with fluxprep.  If not, see <http://www.gnu.org/licenses/>.
*/

package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spatialmodel/fluxprep"
	"github.com/spatialmodel/fluxprep/internal/hash"
	"github.com/vmihailenco/msgpack/v5"
)

// cached is the stored index of a single archive file.
type cached struct {
	Labels []fluxprep.Label `msgpack:"labels"`
	Ni     int              `msgpack:"ni"`
	Nj     int              `msgpack:"nj"`
}

// fileStamp identifies a version of an archive file.
type fileStamp struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// cacheKey returns the index cache key for the named file.
func cacheKey(name string) (string, error) {
	abs, err := filepath.Abs(name)
	if err != nil {
		return "", fmt.Errorf("archive: %v", err)
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("archive: %v", err)
	}
	return hash.Key(fileStamp{Path: abs, Size: fi.Size(), ModTime: fi.ModTime().UTC()}), nil
}

func cachePath(dir, key string) string {
	return filepath.Join(dir, key+".idx")
}

// readCache returns the cached index with the given key. A missing or
// unreadable cache file is treated as a cache miss.
func (idx *Index) readCache(dir, key string) (*cached, bool) {
	f, err := os.Open(cachePath(dir, key))
	if err != nil {
		return nil, false
	}
	defer f.Close()
	c := new(cached)
	if err := msgpack.NewDecoder(f).Decode(c); err != nil {
		idx.Log.WithError(err).WithField("key", key).Warn("ignoring corrupt archive index cache")
		return nil, false
	}
	return c, true
}

func (idx *Index) writeCache(dir, key string, c *cached) error {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return err
	}
	b, err := msgpack.Marshal(c)
	if err != nil {
		return err
	}
	// Write to a temporary file first so that concurrent readers never
	// see a partial index.
	tmp := cachePath(dir, key) + ".tmp"
	if err := os.WriteFile(tmp, b, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, cachePath(dir, key))
}
