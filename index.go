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
	"io"
	"sort"
)

// Key is a label field that archive messages can be selected by.
type Key string

// These are the index keys.
const (
	KeyNumber Key = "number"
	KeyDate   Key = "date"
	KeyTime   Key = "time"
	KeyStep   Key = "step"
)

// Get returns the value of key k in l.
func (l Label) Get(k Key) int {
	switch k {
	case KeyNumber:
		return l.Number
	case KeyDate:
		return l.Date
	case KeyTime:
		return l.Time
	case KeyStep:
		return l.Step
	default:
		panic(fmt.Errorf("fluxprep: invalid index key %q", k))
	}
}

// Combination is one value for each of a set of index keys.
type Combination struct {
	Keys   []Key
	Values []int
}

// Get returns the value of key k in c, and whether c contains k.
func (c Combination) Get(k Key) (int, bool) {
	for i, kk := range c.Keys {
		if kk == k {
			return c.Values[i], true
		}
	}
	return 0, false
}

// Label returns the label fields given by c. The Param field is left zero.
func (c Combination) Label() Label {
	var l Label
	l.Number, _ = c.Get(KeyNumber)
	l.Date, _ = c.Get(KeyDate)
	l.Time, _ = c.Get(KeyTime)
	l.Step, _ = c.Get(KeyStep)
	return l
}

// Matches reports whether l has the values given in c.
func (c Combination) Matches(l Label) bool {
	for i, k := range c.Keys {
		if l.Get(k) != c.Values[i] {
			return false
		}
	}
	return true
}

func (c Combination) String() string {
	s := ""
	for i, k := range c.Keys {
		if i > 0 {
			s += " "
		}
		s += fmt.Sprintf("%s=%d", k, c.Values[i])
	}
	return s
}

// Index provides ordered access to the messages of an archive.
type Index interface {
	// Values returns the distinct values of key k in the archive,
	// sorted in ascending numerical order.
	Values(k Key) ([]int, error)

	// Select returns the messages matching c. It returns an empty
	// result, not an error, when no message matches.
	Select(c Combination) ([]*Message, error)

	// Params returns the distinct parameter identifiers in the archive.
	Params() ([]int, error)

	// Grid returns the grid dimensions of the archive messages.
	Grid() (ni, nj int, err error)
}

// Products enumerates every combination of the distinct values of a set
// of index keys, with the first key varying slowest.
type Products struct {
	keys []Key
	vals [][]int
	pos  []int
	done bool
}

// NewProducts creates an enumeration of the values of keys in idx.
func NewProducts(idx Index, keys ...Key) (*Products, error) {
	p := &Products{keys: keys, vals: make([][]int, len(keys)), pos: make([]int, len(keys))}
	for i, k := range keys {
		v, err := idx.Values(k)
		if err != nil {
			return nil, fmt.Errorf("fluxprep: getting index values for %s: %v", k, err)
		}
		v = append([]int(nil), v...)
		sort.Ints(v)
		p.vals[i] = v
		if len(v) == 0 {
			p.done = true
		}
	}
	return p, nil
}

// Len returns the total number of combinations.
func (p *Products) Len() int {
	n := 1
	for _, v := range p.vals {
		n *= len(v)
	}
	return n
}

// Values returns the sorted distinct values of key k.
func (p *Products) Values(k Key) []int {
	for i, kk := range p.keys {
		if kk == k {
			return p.vals[i]
		}
	}
	return nil
}

// Next returns the next combination. It returns io.EOF after
// the last combination.
func (p *Products) Next() (Combination, error) {
	if p.done {
		return Combination{}, io.EOF
	}
	c := Combination{Keys: p.keys, Values: make([]int, len(p.keys))}
	for i, v := range p.vals {
		c.Values[i] = v[p.pos[i]]
	}
	// Advance the odometer; the last key varies fastest.
	for i := len(p.pos) - 1; ; i-- {
		if i < 0 {
			p.done = true
			break
		}
		p.pos[i]++
		if p.pos[i] < len(p.vals[i]) {
			break
		}
		p.pos[i] = 0
	}
	return c, nil
}

// Reset restarts the enumeration.
func (p *Products) Reset() {
	p.done = false
	for i := range p.pos {
		p.pos[i] = 0
		if len(p.vals[i]) == 0 {
			p.done = true
		}
	}
}

// MemIndex is an Index held in memory.
type MemIndex []*Message

// Values implements Index.
func (m MemIndex) Values(k Key) ([]int, error) {
	set := make(map[int]struct{})
	for _, msg := range m {
		set[msg.Get(k)] = struct{}{}
	}
	return sortedKeys(set), nil
}

// Select implements Index. Messages are returned in ascending parameter order.
func (m MemIndex) Select(c Combination) ([]*Message, error) {
	var o []*Message
	for _, msg := range m {
		if c.Matches(msg.Label) {
			o = append(o, msg)
		}
	}
	sort.SliceStable(o, func(i, j int) bool { return o[i].Param < o[j].Param })
	return o, nil
}

// Params implements Index.
func (m MemIndex) Params() ([]int, error) {
	set := make(map[int]struct{})
	for _, msg := range m {
		set[msg.Param] = struct{}{}
	}
	return sortedKeys(set), nil
}

// Grid implements Index.
func (m MemIndex) Grid() (ni, nj int, err error) {
	if len(m) == 0 {
		return 0, 0, fmt.Errorf("fluxprep: empty index")
	}
	ni, nj = m[0].Grid()
	return ni, nj, nil
}

func sortedKeys(set map[int]struct{}) []int {
	o := make([]int, 0, len(set))
	for v := range set {
		o = append(o, v)
	}
	sort.Ints(o)
	return o
}
