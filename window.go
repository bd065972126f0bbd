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

	"github.com/ctessum/sparse"
	"github.com/gammazero/deque"
	"gonum.org/v1/gonum/floats"
)

// windowLen is the number of consecutive interval means the
// interpolation kernels need.
const windowLen = 4

type windowKey struct {
	param, number int
}

// window holds the most recent accumulated totals of one parameter and
// ensemble member, and the interval means derived from them.
type window struct {
	kernel Kernel
	tmpl   Template

	orig  *deque.Deque[*sparse.DenseArray]
	deacc *deque.Deque[*sparse.DenseArray]
	last  Label
}

func newWindow(k Kind, tmpl Template) *window {
	w := &window{
		kernel: Poly,
		tmpl:   tmpl,
		orig:   deque.New[*sparse.DenseArray](windowLen),
		deacc:  deque.New[*sparse.DenseArray](windowLen),
	}
	if k == Precipitation {
		w.kernel = Rain
	}
	return w
}

// Len returns the number of interval means currently held.
func (w *window) Len() int { return w.deacc.Len() }

// reset discards all values.
func (w *window) reset() {
	w.orig.Clear()
	w.deacc.Clear()
	w.last = Label{}
}

// add appends the accumulated total v of the sample labelled l and
// computes its interval mean, which is returned. perInterval indicates
// that v already covers a single interval only.
func (w *window) add(l Label, v *sparse.DenseArray, dtime int, perInterval bool) (*sparse.DenseArray, error) {
	if w.deacc.Len() > 0 && !w.last.before(l) {
		return nil, fmt.Errorf("%w: %v received after %v", ErrOutOfOrder, l, w.last)
	}
	if w.deacc.Len() == windowLen {
		w.orig.PopFront()
		w.deacc.PopFront()
	}
	w.orig.PushBack(v)

	d := sparse.ZerosDense(v.Shape...)
	if perInterval || l.Step <= dtime || w.orig.Len() < 2 {
		copy(d.Elements, v.Elements)
	} else {
		prev := w.orig.At(w.orig.Len() - 2)
		floats.SubTo(d.Elements, v.Elements, prev.Elements)
	}
	floats.Scale(1/float64(dtime), d.Elements)
	w.deacc.PushBack(d)
	w.last = l
	return d, nil
}

// boundary returns the value written when the third interval mean
// arrives and no interior estimate is possible yet.
func (w *window) boundary(pureForecast bool) *sparse.DenseArray {
	if pureForecast {
		return w.deacc.At(1)
	}
	return w.deacc.At(0)
}

// interior returns the kernel estimate at the boundary between
// the second and third interval means.
func (w *window) interior() *sparse.DenseArray {
	return w.kernel(w.deacc.At(0), w.deacc.At(1), w.deacc.At(2), w.deacc.At(3))
}

// trailing returns the kernel applied to the window in reverse order.
// It is written one interval before the latest mean when a series ends.
func (w *window) trailing() *sparse.DenseArray {
	return w.kernel(w.deacc.At(3), w.deacc.At(2), w.deacc.At(1), w.deacc.At(0))
}

// latest returns the most recent interval mean.
func (w *window) latest() *sparse.DenseArray {
	return w.deacc.At(w.deacc.Len() - 1)
}
