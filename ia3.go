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

import "math"

// IA3 disaggregates a series of non-negative interval means g onto a grid
// with two additional points inside every interval, using the
// non-negative geometric-mean based algorithm of Hittmeir et al. (2018).
// The returned series has length 3*len(g)+1: element 3*i is the value at
// the start of interval i and elements 3*i+1 and 3*i+2 are its interior
// sub-grid points. The mean of each interval, integrated with the
// trapezoidal rule over its four points, equals g[i].
//
// Zero intervals stay zero. Interior points are checked for an "M" or "W"
// shaped oscillation over the previous two intervals, which is removed by
// recomputing the shared boundary value.
func IA3(g []float64) []float64 {
	if len(g) == 0 {
		return nil
	}
	s := &subgrid{f: make([]float64, 1, 3*len(g)+1)}
	s.f[0] = g[0] // persistence at the left boundary
	last := len(g) - 1
	for i := 0; i <= last; i++ {
		var fip1 float64
		if i == last {
			fip1 = g[i] // persistence at the right boundary
		} else {
			fip1 = math.Min(math.Min(3*g[i], 3*g[i+1]), math.Sqrt(g[i+1]*g[i]))
		}
		fi := s.at(1)
		fi1 := 1.5*g[i] - 5./12.*fip1 - 1./12.*fi
		fi2 := fi1 + (fip1-fi)/3

		if i >= 2 && s.oscillates() {
			s.smooth(g[i-2], g[i-1])
		}
		if g[i] == 0 {
			s.push(0, 0, 0)
		} else {
			s.push(fi1, fi2, fip1)
		}
	}
	return s.f
}

// subgrid is an append-only series whose trailing values can be rewritten.
type subgrid struct {
	f []float64
}

func (s *subgrid) push(v ...float64) { s.f = append(s.f, v...) }

// at returns the k-th value from the end; at(1) is the last value.
func (s *subgrid) at(k int) float64 { return s.f[len(s.f)-k] }

// setTail overwrites the values starting k positions from the end.
func (s *subgrid) setTail(k int, v ...float64) {
	copy(s.f[len(s.f)-k:], v)
}

// oscillates reports whether the five values before the last one
// alternate in direction three times in a row.
func (s *subgrid) oscillates() bool {
	if len(s.f) < 7 {
		return false
	}
	d := func(k int) float64 { return sign(s.at(k-1) - s.at(k)) }
	return d(6)*d(5) == -1 && d(5)*d(4) == -1 && d(4)*d(3) == -1
}

// smooth replaces the boundary value between the last two complete
// intervals, whose means are gm2 and gm1, and recomputes their
// interior points. The outer boundaries of the two intervals are kept.
func (s *subgrid) smooth(gm2, gm1 float64) {
	left, right := s.at(7), s.at(1)
	fmon := math.Min(math.Min(3*gm2, 3*gm1),
		math.Sqrt(math.Max(0, (18./13.*gm2-5./13.*left)*(18./13.*gm1-5./13.*right))))
	a1 := 1.5*gm2 - 5./12.*fmon - 1./12.*left
	a2 := a1 + (fmon-left)/3
	b1 := 1.5*gm1 - 5./12.*right - 1./12.*fmon
	b2 := b1 + (right-fmon)/3
	s.setTail(6, a1, a2, fmon, b1, b2)
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
