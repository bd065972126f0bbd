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

// Package fluxfile reads and writes flux files. A flux file is a
// sequence of MessagePack-encoded records, one per field, holding all
// flux fields for a single timestamp.
package fluxfile

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ctessum/sparse"
	"github.com/golang/groupcache/lru"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/fluxprep"
	"github.com/vmihailenco/msgpack/v5"
)

// TemplateFile is the name of the file that holds the precipitation
// field templates.
const TemplateFile = "rr_grib_dummy"

// DefaultOpenFiles is the default maximum number of flux files held
// open at the same time.
const DefaultOpenFiles = 32

// Record is a single field in a flux file.
type Record struct {
	Param     int       `msgpack:"param"`
	Ni        int       `msgpack:"ni"`
	Nj        int       `msgpack:"nj"`
	Date      int       `msgpack:"date"`
	Time      int       `msgpack:"time"`
	StepRange string    `msgpack:"stepRange"`
	Number    int       `msgpack:"number"`
	Values    []float32 `msgpack:"values"`
}

// NewRecord returns the record for field f.
func NewRecord(f *fluxprep.Field) *Record {
	r := &Record{
		Param:     f.Param,
		Ni:        f.Ni,
		Nj:        f.Nj,
		Date:      f.Date,
		Time:      f.Time,
		StepRange: f.StepRange,
		Number:    f.Number,
	}
	if f.Values != nil {
		r.Values = make([]float32, len(f.Values.Elements))
		for i, v := range f.Values.Elements {
			r.Values[i] = float32(v)
		}
	}
	return r
}

// Field returns the record as a field.
func (r *Record) Field() *fluxprep.Field {
	v := sparse.ZerosDense(r.Nj, r.Ni)
	for i := 0; i < len(r.Values) && i < len(v.Elements); i++ {
		v.Elements[i] = float64(r.Values[i])
	}
	return &fluxprep.Field{
		Template:  fluxprep.Template{Param: r.Param, Ni: r.Ni, Nj: r.Nj},
		Date:      r.Date,
		Time:      r.Time,
		StepRange: r.StepRange,
		Number:    r.Number,
		Values:    v,
	}
}

// Sink is a fluxprep.Sink that writes flux files to a directory.
// A file is truncated the first time it is written to by a Sink and
// appended to afterwards. Sink is safe for concurrent use.
type Sink struct {
	// Dir is the output directory.
	Dir string

	Log logrus.FieldLogger

	mu      sync.Mutex
	open    *lru.Cache
	touched map[string]bool
	order   []string
}

// NewSink returns a Sink that writes to dir, holding at most maxOpen
// files open at once. If maxOpen is not positive, DefaultOpenFiles is
// used.
func NewSink(dir string, maxOpen int) (*Sink, error) {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("fluxfile: creating output directory: %v", err)
	}
	if maxOpen <= 0 {
		maxOpen = DefaultOpenFiles
	}
	s := &Sink{
		Dir:     dir,
		Log:     logrus.StandardLogger(),
		open:    lru.New(maxOpen),
		touched: make(map[string]bool),
	}
	s.open.OnEvicted = func(key lru.Key, value interface{}) {
		if err := value.(*os.File).Close(); err != nil {
			s.Log.WithError(err).WithField("file", key).Error("closing flux file")
		}
	}
	return s, nil
}

// handle returns an open handle for the named file.
// The caller must hold s.mu.
func (s *Sink) handle(name string) (*os.File, error) {
	if f, ok := s.open.Get(name); ok {
		return f.(*os.File), nil
	}
	path := filepath.Join(s.Dir, name)
	flag := os.O_WRONLY | os.O_CREATE | os.O_APPEND
	if !s.touched[name] {
		flag |= os.O_TRUNC
		s.touched[name] = true
		s.order = append(s.order, name)
	}
	f, err := os.OpenFile(path, flag, 0644)
	if err != nil {
		return nil, fmt.Errorf("fluxfile: %v", err)
	}
	s.open.Add(name, f)
	return f, nil
}

// Write implements fluxprep.Sink.
func (s *Sink) Write(target string, f *fluxprep.Field) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, err := s.handle(target)
	if err != nil {
		return err
	}
	if err := msgpack.NewEncoder(h).Encode(NewRecord(f)); err != nil {
		return fmt.Errorf("fluxfile: writing %s: %v", target, err)
	}
	return nil
}

// WriteTemplates implements fluxprep.TemplateWriter. It writes one
// record without values per template to TemplateFile.
func (s *Sink) WriteTemplates(t []fluxprep.Template) error {
	for _, tmpl := range t {
		if err := s.Write(TemplateFile, &fluxprep.Field{Template: tmpl, StepRange: "0"}); err != nil {
			return err
		}
	}
	return nil
}

// Files returns the names of the files written so far, in the order they
// were created.
func (s *Sink) Files() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// Close closes all open files.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.open.Len() > 0 {
		s.open.RemoveOldest()
	}
	return nil
}

// Reader reads the records of a flux file.
type Reader struct {
	dec *msgpack.Decoder
}

// NewReader returns a Reader that reads from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{dec: msgpack.NewDecoder(r)}
}

// Next returns the next record, or io.EOF when there are no more
// records.
func (r *Reader) Next() (*Record, error) {
	rec := new(Record)
	if err := r.dec.Decode(rec); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("fluxfile: decoding record: %v", err)
	}
	return rec, nil
}

// ReadAll reads all records from the named file.
func ReadAll(name string) ([]*Record, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("fluxfile: %v", err)
	}
	defer f.Close()
	r := NewReader(f)
	var o []*Record
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return o, nil
		}
		if err != nil {
			return nil, fmt.Errorf("fluxfile: %s: %v", name, err)
		}
		o = append(o, rec)
	}
}

// Difference describes the largest difference found between
// matching records of two flux files.
type Difference struct {
	Param     int
	StepRange string
	Number    int
	MaxAbs    float64
}

// Compare compares two sets of flux file records. Records are matched by
// parameter, step range and ensemble member. It returns an error if the
// record sets do not match or if any value differs by more than tol, and
// the per-record differences otherwise.
func Compare(a, b []*Record, tol float64) ([]Difference, error) {
	type key struct {
		param     int
		stepRange string
		number    int
	}
	index := func(recs []*Record) (map[key]*Record, error) {
		m := make(map[key]*Record)
		for _, r := range recs {
			k := key{r.Param, r.StepRange, r.Number}
			if _, ok := m[k]; ok {
				return nil, fmt.Errorf("fluxfile: duplicate record param=%d stepRange=%s number=%d",
					r.Param, r.StepRange, r.Number)
			}
			m[k] = r
		}
		return m, nil
	}
	ma, err := index(a)
	if err != nil {
		return nil, err
	}
	mb, err := index(b)
	if err != nil {
		return nil, err
	}
	if len(ma) != len(mb) {
		return nil, fmt.Errorf("fluxfile: record counts differ: %d != %d", len(ma), len(mb))
	}
	var o []Difference
	for k, ra := range ma {
		rb, ok := mb[k]
		if !ok {
			return nil, fmt.Errorf("fluxfile: record param=%d stepRange=%s number=%d missing from second file",
				k.param, k.stepRange, k.number)
		}
		if ra.Ni != rb.Ni || ra.Nj != rb.Nj || len(ra.Values) != len(rb.Values) {
			return nil, fmt.Errorf("fluxfile: record param=%d stepRange=%s number=%d: grids differ",
				k.param, k.stepRange, k.number)
		}
		d := Difference{Param: k.param, StepRange: k.stepRange, Number: k.number}
		for i, va := range ra.Values {
			d.MaxAbs = math.Max(d.MaxAbs, math.Abs(float64(va)-float64(rb.Values[i])))
		}
		if d.MaxAbs > tol {
			return nil, fmt.Errorf("fluxfile: record param=%d stepRange=%s number=%d: "+
				"maximum difference %g exceeds tolerance %g", k.param, k.stepRange, k.number, d.MaxAbs, tol)
		}
		o = append(o, d)
	}
	sort.Slice(o, func(i, j int) bool {
		if o[i].Number != o[j].Number {
			return o[i].Number < o[j].Number
		}
		if o[i].Param != o[j].Param {
			return o[i].Param < o[j].Param
		}
		return o[i].StepRange < o[j].StepRange
	})
	return o, nil
}
