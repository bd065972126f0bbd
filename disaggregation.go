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
	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/floats"
)

// Kernel estimates the instantaneous value at the boundary between the
// second and third of four consecutive interval means.
type Kernel func(v0, v1, v2, v3 *sparse.DenseArray) *sparse.DenseArray

// Poly is a cubic polynomial kernel: it returns
// -1/12*v0 + 7/12*v1 + 7/12*v2 - 1/12*v3 element-wise.
// The result is exact for data that are linear in time.
func Poly(v0, v1, v2, v3 *sparse.DenseArray) *sparse.DenseArray {
	o := sparse.ZerosDense(v1.Shape...)
	floats.AddScaled(o.Elements, -1./12., v0.Elements)
	floats.AddScaled(o.Elements, 7./12., v1.Elements)
	floats.AddScaled(o.Elements, 7./12., v2.Elements)
	floats.AddScaled(o.Elements, -1./12., v3.Elements)
	return o
}

// Rain is a non-negative kernel for precipitation. Negative inputs are
// treated as zero. The boundary value is the sum of two
// harmonic-style contributions, one from each side of the boundary:
//
//	ac = v1*v2 / (v0+v2), or 0.5*v1 where v0+v2 == 0
//	bd = v1*v2 / (v1+v3), or 0.5*v2 where v1+v3 == 0
//
// The result is never negative.
func Rain(v0, v1, v2, v3 *sparse.DenseArray) *sparse.DenseArray {
	o := sparse.ZerosDense(v1.Shape...)
	for i := range o.Elements {
		xa := nonNegative(v0.Elements[i])
		xb := nonNegative(v1.Elements[i])
		xc := nonNegative(v2.Elements[i])
		xd := nonNegative(v3.Elements[i])

		xac := 0.5 * xb
		if xa+xc > 0 {
			xac = xb * xc / (xa + xc)
		}
		xbd := 0.5 * xc
		if xb+xd > 0 {
			xbd = xb * xc / (xb + xd)
		}
		o.Elements[i] = xac + xbd
	}
	return o
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
