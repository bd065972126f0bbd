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

	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/floats/scalar"
)

const testTolerance = 1.e-10

// fields returns one single-cell field per value.
func fields(v ...float64) []*sparse.DenseArray {
	o := make([]*sparse.DenseArray, len(v))
	for i, x := range v {
		o[i] = sparse.ZerosDense(1, 1)
		o[i].Elements[0] = x
	}
	return o
}

func TestPoly(t *testing.T) {
	tests := []struct {
		in   []float64
		want float64
	}{
		{in: []float64{1, 2, 3, 4}, want: 2.5},
		{in: []float64{2, 3, 4, 5}, want: 3.5},
		{in: []float64{5, 5, 5, 5}, want: 5},
		{in: []float64{0, 1, 0, 0}, want: 7. / 12.},
		{in: []float64{1, 0, 0, 1}, want: -1. / 6.},
	}
	for _, test := range tests {
		f := fields(test.in...)
		have := Poly(f[0], f[1], f[2], f[3]).Elements[0]
		if !scalar.EqualWithinAbs(have, test.want, testTolerance) {
			t.Errorf("Poly(%v) = %g; want %g", test.in, have, test.want)
		}
	}
}

func TestRain(t *testing.T) {
	tests := []struct {
		name string
		in   []float64
		want float64
	}{
		{name: "linear", in: []float64{1, 2, 3, 4}, want: 2.5},
		{name: "linear2", in: []float64{2, 3, 4, 5}, want: 3.5},
		{name: "constant", in: []float64{5, 5, 5, 5}, want: 5},
		{name: "zero", in: []float64{0, 0, 0, 0}, want: 0},
		{name: "masked left blend is half of v1", in: []float64{0, 2, 0, 0}, want: 1},
		{name: "masked right blend is half of v2", in: []float64{0, 0, 2, 0}, want: 1},
		{name: "negative", in: []float64{-1, 2, -3, 4}, want: 1},
		{name: "all negative", in: []float64{-1, -2, -3, -4}, want: 0},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			f := fields(test.in...)
			have := Rain(f[0], f[1], f[2], f[3]).Elements[0]
			if !scalar.EqualWithinAbs(have, test.want, testTolerance) {
				t.Errorf("Rain(%v) = %g; want %g", test.in, have, test.want)
			}
		})
	}
}

func TestRainNonNegative(t *testing.T) {
	vals := []float64{-2, -0.5, 0, 0.1, 1, 3, 10}
	for _, a := range vals {
		for _, b := range vals {
			for _, c := range vals {
				for _, d := range vals {
					f := fields(a, b, c, d)
					if v := Rain(f[0], f[1], f[2], f[3]).Elements[0]; v < 0 {
						t.Fatalf("Rain(%g, %g, %g, %g) = %g", a, b, c, d, v)
					}
				}
			}
		}
	}
}

func TestKernelsDoNotModifyInput(t *testing.T) {
	for name, k := range map[string]Kernel{"Poly": Poly, "Rain": Rain} {
		f := fields(-1, 2, 3, 4)
		k(f[0], f[1], f[2], f[3])
		if f[0].Elements[0] != -1 || f[3].Elements[0] != 4 {
			t.Errorf("%s modified its input", name)
		}
	}
}
