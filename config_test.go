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
	"reflect"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	c := &Config{StartDate: "20190101", Times: []int{12, 0}, Steps: []int{6, 3}, DTime: 3}
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
	if c.EndDate != "20190101" {
		t.Errorf("EndDate = %s", c.EndDate)
	}
	if c.MaxStep != 6 {
		t.Errorf("MaxStep = %d", c.MaxStep)
	}
	if c.Prefix != "flux" || c.MaxSeriesBytes != DefaultMaxSeriesBytes {
		t.Errorf("defaults not set: %+v", c)
	}
	if !reflect.DeepEqual(c.Times, []int{0, 12}) {
		t.Errorf("Times = %v", c.Times)
	}
	if c.Ensemble() {
		t.Error("deterministic run reported as ensemble")
	}

	for _, bad := range []*Config{
		{Times: []int{0}, Steps: []int{3}, DTime: 3},
		{StartDate: "2019-01-01", Times: []int{0}, Steps: []int{3}, DTime: 3},
		{StartDate: "20190102", EndDate: "20190101", Times: []int{0}, Steps: []int{3}, DTime: 3},
		{StartDate: "20190101", Times: []int{0}, Steps: []int{3}, DTime: 5},
		{StartDate: "20190101", Times: []int{0}, Steps: []int{3}, DTime: 0},
		{StartDate: "20190101", Steps: []int{3}, DTime: 3},
		{StartDate: "20190101", Times: []int{0}, DTime: 3},
		{StartDate: "20190101", Times: []int{0}, Steps: []int{3}, DTime: 3, BaseTime: "06"},
	} {
		if err := bad.Validate(); err == nil {
			t.Errorf("%+v: expected an error", bad)
		}
	}
}

func TestConfigNoDeacc(t *testing.T) {
	c := &Config{StartDate: "20190101", Times: []int{0}, Steps: []int{3}, DTime: 3, Class: "ea"}
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
	if !c.deaccumulated() {
		t.Error("class EA should store per-interval values")
	}
	c.Class = "OD"
	if c.deaccumulated() {
		t.Error("class OD should store accumulated values")
	}
}

func TestPeriods(t *testing.T) {
	c := &Config{StartDate: "20190101", EndDate: "20190102", Times: []int{0, 12}, Steps: []int{3, 6, 9, 12}, DTime: 3}
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
	r := c.RetrievalPeriod()
	wantStart := time.Date(2019, 1, 1, 3, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2019, 1, 3, 0, 0, 0, 0, time.UTC)
	if !r.Start.Equal(wantStart) || !r.End.Equal(wantEnd) {
		t.Errorf("retrieval period %v", r)
	}
	if !r.Contains(wantStart) || !r.Contains(wantEnd) || r.Contains(wantEnd.Add(time.Hour)) {
		t.Error("Contains must include both end points only")
	}

	s := c.seriesPeriod([]int{0, 1200})
	if !s.Start.Equal(time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)) ||
		!s.End.Equal(time.Date(2019, 1, 2, 23, 0, 0, 0, time.UTC)) {
		t.Errorf("series period %v", s)
	}
	c.PureForecast = true
	s = c.seriesPeriod([]int{0, 1200})
	if !s.Start.Equal(time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)) ||
		!s.End.Equal(time.Date(2019, 1, 3, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("pure forecast series period %v", s)
	}
}

func TestLastFlux(t *testing.T) {
	c := &Config{StartDate: "20190101", EndDate: "20190102", Times: []int{0}, Steps: []int{3}, DTime: 3, BaseTime: "12"}
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
	end, ok := c.lastFlux()
	if !ok || !end.Equal(time.Date(2019, 1, 2, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("last flux %v, %v", end, ok)
	}
}

func TestParseMembers(t *testing.T) {
	tests := []struct {
		in   string
		want []int
	}{
		{in: "OFF", want: nil},
		{in: "", want: nil},
		{in: "3/1/2", want: []int{1, 2, 3}},
		{in: "1/to/4", want: []int{1, 2, 3, 4}},
		{in: "0/TO/10/BY/5", want: []int{0, 5, 10}},
	}
	for _, test := range tests {
		have, err := ParseMembers(test.in)
		if err != nil {
			t.Errorf("%s: %v", test.in, err)
			continue
		}
		if !reflect.DeepEqual(have, test.want) {
			t.Errorf("%s: have %v, want %v", test.in, have, test.want)
		}
	}
	for _, bad := range []string{"a/b", "1/to/x", "1/to/4/by/0", "1/to/4/by"} {
		if _, err := ParseMembers(bad); err == nil {
			t.Errorf("%s: expected an error", bad)
		}
	}
}
