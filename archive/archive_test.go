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
	"io/ioutil"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/fluxprep"
)

func testMessages() []*fluxprep.Message {
	var o []*fluxprep.Message
	for _, step := range []int{3, 6} {
		for _, param := range []int{176, 146} {
			d := sparse.ZerosDense(2, 3)
			for i := range d.Elements {
				d.Elements[i] = float64(param + step + i)
			}
			o = append(o, &fluxprep.Message{
				Label: fluxprep.Label{Param: param, Date: 20190101, Time: 1200, Step: step},
				Data:  d,
			})
		}
	}
	return o
}

func writeTestArchive(t *testing.T, dir, name string, msgs []*fluxprep.Message) string {
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := Write(f, msgs); err != nil {
		t.Fatal(err)
	}
	return path
}

func quiet() logrus.FieldLogger {
	l := logrus.New()
	l.Out = ioutil.Discard
	return l
}

func TestRoundTrip(t *testing.T) {
	dir, err := ioutil.TempDir("", "archive")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	msgs := testMessages()
	path := writeTestArchive(t, dir, "a.nc", msgs)
	cache := filepath.Join(dir, "cache")

	for _, pass := range []string{"build", "cached"} {
		t.Run(pass, func(t *testing.T) {
			idx, err := Open([]string{path}, cache, 1)
			if err != nil {
				t.Fatal(err)
			}
			defer idx.Close()
			idx.Log = quiet()

			if idx.Len() != len(msgs) {
				t.Errorf("Len = %d", idx.Len())
			}
			if ni, nj, _ := idx.Grid(); ni != 3 || nj != 2 {
				t.Errorf("grid %dx%d", ni, nj)
			}
			params, _ := idx.Params()
			if !reflect.DeepEqual(params, []int{146, 176}) {
				t.Errorf("params %v", params)
			}
			steps, _ := idx.Values(fluxprep.KeyStep)
			if !reflect.DeepEqual(steps, []int{3, 6}) {
				t.Errorf("steps %v", steps)
			}

			c := fluxprep.Combination{
				Keys:   []fluxprep.Key{fluxprep.KeyDate, fluxprep.KeyTime, fluxprep.KeyStep},
				Values: []int{20190101, 1200, 6},
			}
			sel, err := idx.Select(c)
			if err != nil {
				t.Fatal(err)
			}
			if len(sel) != 2 || sel[0].Param != 146 || sel[1].Param != 176 {
				t.Fatalf("selected %v", sel)
			}
			for _, m := range sel {
				want := msgs[2].Data
				if m.Param == 146 {
					want = msgs[3].Data
				}
				if !reflect.DeepEqual(m.Data.Shape, []int{2, 3}) || !reflect.DeepEqual(m.Data.Elements, want.Elements) {
					t.Errorf("param %d: data %v; want %v", m.Param, m.Data.Elements, want.Elements)
				}
			}
			c.Values[2] = 9
			if sel, err = idx.Select(c); err != nil || len(sel) != 0 {
				t.Errorf("expected no messages, got %d, %v", len(sel), err)
			}
		})
	}
	entries, err := ioutil.ReadDir(cache)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || filepath.Ext(entries[0].Name()) != ".idx" {
		t.Errorf("cache contents %v", entries)
	}
}

func TestMultipleFiles(t *testing.T) {
	dir, err := ioutil.TempDir("", "archive")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	msgs := testMessages()
	a := writeTestArchive(t, dir, "a.nc", msgs[:2])
	b := writeTestArchive(t, dir, "b.nc", msgs[2:])

	// Only one file is held open at a time, so reads alternate between
	// evicting and reopening files.
	idx, err := Open([]string{a, b}, "", 1)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	idx.Log = quiet()
	for i := 0; i < 3; i++ {
		for _, step := range []int{3, 6} {
			sel, err := idx.Select(fluxprep.Combination{Keys: []fluxprep.Key{fluxprep.KeyStep}, Values: []int{step}})
			if err != nil {
				t.Fatal(err)
			}
			if len(sel) != 2 || sel[0].Data.Elements[0] != float64(146+step) {
				t.Errorf("step %d: %v", step, sel)
			}
		}
	}

	small := writeTestArchive(t, dir, "c.nc", []*fluxprep.Message{{
		Label: fluxprep.Label{Param: 146, Date: 20190101, Step: 9},
		Data:  sparse.ZerosDense(1, 1),
	}})
	if _, err := Open([]string{a, small}, "", 0); err == nil {
		t.Error("expected an error for files with different grids")
	}
}

func TestWriteErrors(t *testing.T) {
	f, err := ioutil.TempFile("", "archive")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(f.Name())
	defer f.Close()
	if err := Write(f, nil); err == nil {
		t.Error("expected an error for no messages")
	}
	msgs := testMessages()
	msgs[1].Data = sparse.ZerosDense(1, 1)
	if err := Write(f, msgs); err == nil {
		t.Error("expected an error for mismatched grids")
	}
}

func TestCorruptCache(t *testing.T) {
	dir, err := ioutil.TempDir("", "archive")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	path := writeTestArchive(t, dir, "a.nc", testMessages())
	key, err := cacheKey(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := ioutil.WriteFile(cachePath(dir, key), []byte("not an index"), 0644); err != nil {
		t.Fatal(err)
	}
	idx, err := Open([]string{path}, dir, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	if idx.Len() != 4 {
		t.Errorf("Len = %d after rebuilding a corrupt cache", idx.Len())
	}
}
