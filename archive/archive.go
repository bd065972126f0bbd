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

// Package archive reads and writes archives of accumulated surface
// fields stored as NetCDF files.
//
// Each archive file holds one record per field, with integer
// variables "param", "date", "time", "step" and "number" giving the
// label of each record and a float variable "values" holding the
// field itself on a (record, lat, lon) grid.
package archive

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
	"github.com/golang/groupcache/lru"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/fluxprep"
)

// DefaultOpenFiles is the default maximum number of archive files that
// are held open at the same time.
const DefaultOpenFiles = 16

// entry locates one record in the archive.
type entry struct {
	File   int            `msgpack:"file"`
	Record int            `msgpack:"record"`
	Label  fluxprep.Label `msgpack:"label"`
}

type openFile struct {
	f  *os.File
	cf *cdf.File
}

// Index is a fluxprep.Index over a set of archive files.
// It is safe for concurrent use.
type Index struct {
	// Log receives diagnostic messages.
	Log logrus.FieldLogger

	files   []string
	entries []entry
	ni, nj  int

	mu   sync.Mutex
	open *lru.Cache
}

// Open indexes the archive files. If cacheDir is not empty, the index of
// each file is stored there and reused as long as the file is unchanged.
// At most maxOpen files are held open at once; if maxOpen is not
// positive, DefaultOpenFiles is used.
func Open(files []string, cacheDir string, maxOpen int) (*Index, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("archive: no input files")
	}
	if maxOpen <= 0 {
		maxOpen = DefaultOpenFiles
	}
	idx := &Index{
		Log:   logrus.StandardLogger(),
		files: files,
		open:  lru.New(maxOpen),
	}
	idx.open.OnEvicted = func(key lru.Key, value interface{}) {
		if err := value.(*openFile).f.Close(); err != nil {
			idx.Log.WithError(err).WithField("file", key).Warn("closing archive file")
		}
	}
	for i, name := range files {
		labels, ni, nj, err := idx.labels(name, cacheDir)
		if err != nil {
			idx.Close()
			return nil, err
		}
		if i == 0 {
			idx.ni, idx.nj = ni, nj
		} else if ni != idx.ni || nj != idx.nj {
			idx.Close()
			return nil, fmt.Errorf("archive: %s has grid %dx%d but %s has %dx%d",
				name, ni, nj, files[0], idx.ni, idx.nj)
		}
		for r, l := range labels {
			idx.entries = append(idx.entries, entry{File: i, Record: r, Label: l})
		}
		idx.Log.WithFields(logrus.Fields{
			"file":    name,
			"records": len(labels),
		}).Debug("indexed archive file")
	}
	return idx, nil
}

// file returns the open archive file with index i, opening it if
// necessary. The caller must hold idx.mu.
func (idx *Index) file(i int) (*cdf.File, error) {
	name := idx.files[i]
	if v, ok := idx.open.Get(name); ok {
		return v.(*openFile).cf, nil
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("archive: %v", err)
	}
	cf, err := cdf.Open(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("archive: reading %s: %v", name, err)
	}
	idx.open.Add(name, &openFile{f: f, cf: cf})
	return cf, nil
}

// labels returns the record labels and grid size of the named file,
// from the index cache if possible.
func (idx *Index) labels(name, cacheDir string) ([]fluxprep.Label, int, int, error) {
	var key string
	if cacheDir != "" {
		var err error
		key, err = cacheKey(name)
		if err != nil {
			return nil, 0, 0, err
		}
		if c, ok := idx.readCache(cacheDir, key); ok {
			idx.Log.WithField("file", name).Debug("using cached archive index")
			return c.Labels, c.Ni, c.Nj, nil
		}
	}

	f, err := os.Open(name)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("archive: %v", err)
	}
	defer f.Close()
	cf, err := cdf.Open(f)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("archive: reading %s: %v", name, err)
	}
	dims := cf.Header.Lengths(varValues)
	if len(dims) != 3 {
		return nil, 0, 0, fmt.Errorf("archive: %s: variable %q has %d dimensions; expected 3",
			name, varValues, len(dims))
	}
	n, nj, ni := dims[0], dims[1], dims[2]

	vars := make(map[string][]int32)
	for _, v := range labelVars {
		if l := cf.Header.Lengths(v); len(l) != 1 || l[0] != n {
			return nil, 0, 0, fmt.Errorf("archive: %s: variable %q is missing or has the wrong shape", name, v)
		}
		buf := make([]int32, n)
		if _, err := cf.Reader(v, nil, nil).Read(buf); err != nil {
			return nil, 0, 0, fmt.Errorf("archive: %s: reading %s: %v", name, v, err)
		}
		vars[v] = buf
	}
	labels := make([]fluxprep.Label, n)
	for r := range labels {
		labels[r] = fluxprep.Label{
			Param:  int(vars[varParam][r]),
			Date:   int(vars[varDate][r]),
			Time:   int(vars[varTime][r]),
			Step:   int(vars[varStep][r]),
			Number: int(vars[varNumber][r]),
		}
	}
	if cacheDir != "" {
		if err := idx.writeCache(cacheDir, key, &cached{Labels: labels, Ni: ni, Nj: nj}); err != nil {
			idx.Log.WithError(err).WithField("file", name).Warn("writing archive index cache")
		}
	}
	return labels, ni, nj, nil
}

// Values implements fluxprep.Index.
func (idx *Index) Values(k fluxprep.Key) ([]int, error) {
	seen := make(map[int]bool)
	var o []int
	for _, e := range idx.entries {
		v := e.Label.Get(k)
		if !seen[v] {
			seen[v] = true
			o = append(o, v)
		}
	}
	sort.Ints(o)
	return o, nil
}

// Params implements fluxprep.Index.
func (idx *Index) Params() ([]int, error) {
	seen := make(map[int]bool)
	var o []int
	for _, e := range idx.entries {
		if !seen[e.Label.Param] {
			seen[e.Label.Param] = true
			o = append(o, e.Label.Param)
		}
	}
	sort.Ints(o)
	return o, nil
}

// Grid implements fluxprep.Index.
func (idx *Index) Grid() (ni, nj int, err error) {
	return idx.ni, idx.nj, nil
}

// Len returns the number of records in the archive.
func (idx *Index) Len() int { return len(idx.entries) }

// Select implements fluxprep.Index. Messages are returned in ascending
// parameter order.
func (idx *Index) Select(c fluxprep.Combination) ([]*fluxprep.Message, error) {
	var sel []entry
	for _, e := range idx.entries {
		if c.Matches(e.Label) {
			sel = append(sel, e)
		}
	}
	sort.SliceStable(sel, func(i, j int) bool { return sel[i].Label.Param < sel[j].Label.Param })

	idx.mu.Lock()
	defer idx.mu.Unlock()
	o := make([]*fluxprep.Message, len(sel))
	for i, e := range sel {
		data, err := idx.read(e)
		if err != nil {
			return nil, err
		}
		o[i] = &fluxprep.Message{Label: e.Label, Data: data}
	}
	return o, nil
}

// read reads the values of one record. The caller must hold idx.mu.
func (idx *Index) read(e entry) (*sparse.DenseArray, error) {
	cf, err := idx.file(e.File)
	if err != nil {
		return nil, err
	}
	buf := make([]float32, idx.ni*idx.nj)
	r := cf.Reader(varValues, []int{e.Record, 0, 0}, []int{e.Record + 1, idx.nj, idx.ni})
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("archive: reading %v from %s: %v", e.Label, idx.files[e.File], err)
	}
	o := sparse.ZerosDense(idx.nj, idx.ni)
	for i, v := range buf {
		o.Elements[i] = float64(v)
	}
	return o, nil
}

// Close closes all open archive files.
func (idx *Index) Close() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for idx.open.Len() > 0 {
		idx.open.RemoveOldest()
	}
}
