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

package fluxprep

import (
	"fmt"
	"sort"

	"github.com/ctessum/sparse"
)

// subPoints is the number of output values per interval
// produced by IA3.
const subPoints = 3

// SeriesSize describes the full-series buffers needed by the
// IA3 precipitation method.
type SeriesSize struct {
	Cells   int // grid points per field
	Steps   int // interval means per series
	Series  int // number of (parameter, member) series
	Members int // ensemble members present in the archive and selected
}

// Bytes returns the memory needed for the interval means and the
// disaggregated output.
func (s SeriesSize) Bytes() int64 {
	return int64(s.Cells) * int64(s.Steps) * int64(s.Series) * 8 * (1 + subPoints)
}

// EstimateSeries returns the size of the full-series buffers that a run
// of the IA3 precipitation method over idx would need.
func EstimateSeries(c *Config, idx Index) (SeriesSize, error) {
	var s SeriesSize
	ni, nj, err := idx.Grid()
	if err != nil {
		return s, fmt.Errorf("fluxprep: estimating series size: %v", err)
	}
	s.Cells = ni * nj
	if !c.PureForecast {
		p := c.seriesPeriod(nil)
		days := int(p.End.Sub(p.Start).Hours()/24) + 1
		s.Steps = days * 24 / c.DTime
	} else {
		s.Steps = 1
		for _, k := range []Key{KeyDate, KeyTime, KeyStep} {
			v, err := idx.Values(k)
			if err != nil {
				return s, fmt.Errorf("fluxprep: estimating series size: %v", err)
			}
			s.Steps *= len(v)
		}
	}
	s.Members = 1
	if c.Ensemble() {
		numbers, err := idx.Values(KeyNumber)
		if err != nil {
			return s, fmt.Errorf("fluxprep: estimating series size: %v", err)
		}
		s.Members = 0
		for _, n := range numbers {
			if c.hasMember(n) {
				s.Members++
			}
		}
	}
	for _, id := range c.Params.Fluxes() {
		if c.Params.Kind(id) == Precipitation {
			s.Series += s.Members
		}
	}
	return s, nil
}

// slotKey identifies the sample an interval mean belongs to.
type slotKey struct {
	date, time, step int
}

func slotOf(l Label) slotKey { return slotKey{date: l.Date, time: l.Time, step: l.Step} }

// series is the full time series of interval means for one parameter
// and ensemble member, stored cell-major.
type series struct {
	tmpl  Template
	data  []float64
	slots map[slotKey]int
	used  int
	out   []float64
}

// seriesStore holds the precipitation series for the IA3 method.
type seriesStore struct {
	size   SeriesSize
	series map[windowKey]*series
}

func newSeriesStore(size SeriesSize) *seriesStore {
	return &seriesStore{size: size, series: make(map[windowKey]*series)}
}

// put stores the interval mean v of the sample labelled l.
func (s *seriesStore) put(k windowKey, tmpl Template, l Label, v *sparse.DenseArray) error {
	ser, ok := s.series[k]
	if !ok {
		if len(v.Elements) != s.size.Cells {
			return fmt.Errorf("fluxprep: field for %v has %d grid points but the archive grid has %d",
				l, len(v.Elements), s.size.Cells)
		}
		if len(s.series) == s.size.Series {
			return fmt.Errorf("%w: more than %d series; parameter %d member %d was not estimated",
				ErrCapacity, s.size.Series, k.param, k.number)
		}
		ser = &series{
			tmpl:  tmpl,
			data:  make([]float64, s.size.Cells*s.size.Steps),
			slots: make(map[slotKey]int),
		}
		s.series[k] = ser
	}
	if ser.used == s.size.Steps {
		return fmt.Errorf("%w: more than %d samples for parameter %d member %d",
			ErrCapacity, s.size.Steps, k.param, k.number)
	}
	it := ser.used
	for i, val := range v.Elements {
		ser.data[i*s.size.Steps+it] = val
	}
	ser.slots[slotOf(l)] = it
	ser.used++
	return nil
}

// disaggregate runs IA3 over the series of every grid cell. The value at
// the end of the last interval is dropped so that each interval
// contributes exactly three values.
func (s *seriesStore) disaggregate() {
	nt := s.size.Steps
	for _, ser := range s.series {
		n := ser.used
		ser.out = make([]float64, s.size.Cells*n*subPoints)
		g := make([]float64, n)
		for cell := 0; cell < s.size.Cells; cell++ {
			for i := range g {
				g[i] = nonNegative(ser.data[cell*nt+i])
			}
			copy(ser.out[cell*n*subPoints:(cell+1)*n*subPoints], IA3(g))
		}
		ser.data = nil
	}
}

// field returns sub-point sub of the interval belonging to the sample
// labelled l, or false if the sample was not stored.
func (s *seriesStore) field(k windowKey, l Label, sub int) (*sparse.DenseArray, Template, bool) {
	ser, ok := s.series[k]
	if !ok {
		return nil, Template{}, false
	}
	it, ok := ser.slots[slotOf(l)]
	if !ok {
		return nil, Template{}, false
	}
	n := ser.used * subPoints
	o := sparse.ZerosDense(ser.tmpl.Nj, ser.tmpl.Ni)
	for cell := range o.Elements {
		o.Elements[cell] = ser.out[cell*n+it*subPoints+sub]
	}
	return o, ser.tmpl, true
}

// params returns the parameters with a stored series for member number, in ascending
// order.
func (s *seriesStore) params(number int) []int {
	var o []int
	for k := range s.series {
		if k.number == number {
			o = append(o, k.param)
		}
	}
	sort.Ints(o)
	return o
}
