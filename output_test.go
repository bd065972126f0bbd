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
	"time"
)

func TestFileNames(t *testing.T) {
	v := time.Date(2019, 1, 2, 15, 0, 0, 0, time.UTC)
	if n := FileName("flux", v, 3, false); n != "flux2019010215" {
		t.Errorf("FileName = %s", n)
	}
	if n := FileName("flux", v, 3, true); n != "flux2019010215.N003" {
		t.Errorf("ensemble FileName = %s", n)
	}
	b := time.Date(2019, 1, 2, 12, 0, 0, 0, time.UTC)
	if n := ForecastFileName("flux", b, 6, 0, false); n != "flux20190102.12.006" {
		t.Errorf("ForecastFileName = %s", n)
	}
	if n := ForecastFileName("flux", b, -3, 12, true); n != "flux20190102.12.000.N012" {
		t.Errorf("ensemble ForecastFileName = %s", n)
	}
}

func TestShifted(t *testing.T) {
	c := &Config{StartDate: "20190101", Times: []int{0, 12}, Steps: []int{3, 6, 9, 12}, DTime: 3}
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
	l := Label{Param: 146, Date: 20190101, Time: 1200, Step: 12}
	for back, want := range []destination{
		{name: "flux2019010200", date: 20190102, time: 0, stepRange: "0"},
		{name: "flux2019010121", date: 20190101, time: 2100, stepRange: "0"},
		{name: "flux2019010118", date: 20190101, time: 1800, stepRange: "0"},
	} {
		have, err := c.shifted(l, back)
		if err != nil {
			t.Fatal(err)
		}
		if have != want {
			t.Errorf("back=%d: have %+v, want %+v", back, have, want)
		}
	}

	c.PureForecast = true
	l.Step = 3
	have, err := c.shifted(l, 2)
	if err != nil {
		t.Fatal(err)
	}
	want := destination{name: "flux20190101.12.000", date: 20190101, time: 1200, stepRange: "0"}
	if have != want {
		t.Errorf("pure forecast: have %+v, want %+v", have, want)
	}
}

func TestMemSinkCopies(t *testing.T) {
	m := testMessage(Label{Param: 146}, 1, 2)
	s := new(MemSink)
	f := &Field{Template: TemplateOf(m), StepRange: "0", Values: m.Data}
	if err := s.Write("a", f); err != nil {
		t.Fatal(err)
	}
	s.Write("b", f)
	s.Write("a", f)
	m.Data.Elements[0] = 10
	if s.Fields[0].Values.Elements[0] != 1 {
		t.Error("MemSink should copy field values")
	}
	if files := s.Files(); len(files) != 2 || files[0] != "a" || files[1] != "b" {
		t.Errorf("files %v", files)
	}
	if s.Fields[0].Ni != 2 || s.Fields[0].Nj != 1 {
		t.Errorf("template %+v", s.Fields[0].Template)
	}
}
