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
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
)

// intervalMeans integrates f over each interval with the trapezoidal rule.
func intervalMeans(f []float64) []float64 {
	n := (len(f) - 1) / 3
	o := make([]float64, n)
	for i := range o {
		o[i] = (f[3*i]/2 + f[3*i+1] + f[3*i+2] + f[3*i+3]/2) / 3
	}
	return o
}

func TestIA3Length(t *testing.T) {
	if f := IA3(nil); f != nil {
		t.Errorf("IA3(nil) = %v", f)
	}
	for n := 1; n < 10; n++ {
		g := make([]float64, n)
		for i := range g {
			g[i] = float64(i%3) + 1
		}
		f := IA3(g)
		if len(f) != 3*n+1 {
			t.Errorf("n=%d: length %d; want %d", n, len(f), 3*n+1)
		}
		if f[0] != g[0] {
			t.Errorf("n=%d: first value %g; want %g", n, f[0], g[0])
		}
		if f[len(f)-1] != g[n-1] {
			t.Errorf("n=%d: last value %g; want %g", n, f[len(f)-1], g[n-1])
		}
	}
}

func TestIA3Constant(t *testing.T) {
	f := IA3([]float64{2, 2, 2, 2, 2})
	for i, v := range f {
		if !scalar.EqualWithinAbs(v, 2, testTolerance) {
			t.Errorf("f[%d] = %g; want 2", i, v)
		}
	}
}

func TestIA3Zero(t *testing.T) {
	g := []float64{1, 0, 0, 2}
	f := IA3(g)
	for i := 3; i <= 9; i++ {
		if f[i] != 0 {
			t.Errorf("f[%d] = %g; want 0", i, f[i])
		}
	}
	if f := IA3([]float64{0, 0, 0}); floats.Max(f) != 0 || floats.Min(f) != 0 {
		t.Errorf("all-zero series gave %v", f)
	}
}

func TestIA3Conservation(t *testing.T) {
	for _, g := range [][]float64{
		{1, 2, 3, 2, 1},
		{0.5, 4, 0.2, 3, 0.1, 2, 5, 0.3},
		{10, 1, 10, 1, 10, 1, 10},
		{1, 0, 4, 4, 0, 0, 2},
		{3},
		{3, 1},
	} {
		have := intervalMeans(IA3(g))
		if !floats.EqualApprox(have, g, 1.e-9) {
			t.Errorf("interval means %v; want %v", have, g)
		}
	}
}

func TestSubgridOscillates(t *testing.T) {
	s := &subgrid{f: []float64{1, 2, 1, 2, 1, 2, 2}}
	if !s.oscillates() {
		t.Error("zigzag not detected")
	}
	s = &subgrid{f: []float64{1, 2, 3, 4, 5, 6, 7}}
	if s.oscillates() {
		t.Error("monotonic series detected as oscillating")
	}
	s = &subgrid{f: []float64{1, 2, 1}}
	if s.oscillates() {
		t.Error("short series detected as oscillating")
	}
}
