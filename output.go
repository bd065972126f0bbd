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
	"strconv"
	"time"

	"github.com/ctessum/sparse"
)

// Template holds the grid description that output fields are based on.
type Template struct {
	Param  int
	Ni, Nj int
}

// TemplateOf returns the template describing message m.
func TemplateOf(m *Message) Template {
	ni, nj := m.Grid()
	return Template{Param: m.Param, Ni: ni, Nj: nj}
}

// Field is a reconstructed flux field ready to be written.
type Field struct {
	Template

	// Date (YYYYMMDD) and Time (HHMM) give the valid time of the field,
	// or the forecast base time under pure forecast mode.
	Date, Time int

	// StepRange is the forecast step of the field under pure forecast
	// mode. Otherwise it is "0", or "1" and "2" for the sub-interval
	// points of the IA3 precipitation method.
	StepRange string

	// Number is the ensemble member (perturbation) number.
	Number int

	Values *sparse.DenseArray
}

// Sink receives reconstructed fields. target is the name of the flux
// file the field belongs to; a flux file collects all fields for
// one timestamp.
type Sink interface {
	Write(target string, f *Field) error
}

// MemSink is a Sink that keeps the fields it receives in memory.
type MemSink struct {
	Targets []string
	Fields  []*Field
}

// Write implements Sink. The field values are copied.
func (m *MemSink) Write(target string, f *Field) error {
	ff := *f
	ff.Values = f.Values.Copy()
	m.Targets = append(m.Targets, target)
	m.Fields = append(m.Fields, &ff)
	return nil
}

// Files returns the distinct targets in the order they were first written.
func (m *MemSink) Files() []string {
	seen := make(map[string]bool)
	var o []string
	for _, t := range m.Targets {
		if !seen[t] {
			seen[t] = true
			o = append(o, t)
		}
	}
	return o
}

// FileName returns the name of the flux file for valid time t.
// Ensemble members are distinguished by a ".Nnnn" suffix.
func FileName(prefix string, t time.Time, number int, ensemble bool) string {
	return prefix + t.Format("2006010215") + memberSuffix(number, ensemble)
}

// ForecastFileName returns the name of the flux file for the given
// forecast base time and step, for pure forecast mode. Negative steps
// are written as step 0.
func ForecastFileName(prefix string, base time.Time, step, number int, ensemble bool) string {
	if step < 0 {
		step = 0
	}
	return fmt.Sprintf("%s%s.%03d%s", prefix, base.Format("20060102.15"), step, memberSuffix(number, ensemble))
}

func memberSuffix(number int, ensemble bool) string {
	if !ensemble {
		return ""
	}
	return fmt.Sprintf(".N%03d", number)
}

// destination is where a reconstructed value goes.
type destination struct {
	name       string
	date, time int
	stepRange  string
}

// shifted returns the destination for the value that is valid
// back intervals of DTime before the sample labelled l.
func (c *Config) shifted(l Label, back int) (destination, error) {
	base, err := l.Base()
	if err != nil {
		return destination{}, err
	}
	step := l.Step - back*c.DTime
	if c.PureForecast {
		if step < 0 {
			step = 0
		}
		return destination{
			name:      ForecastFileName(c.Prefix, base, step, l.Number, c.Ensemble()),
			date:      l.Date,
			time:      l.Time,
			stepRange: strconv.Itoa(step),
		}, nil
	}
	t := base.Add(time.Duration(step) * time.Hour)
	return destination{
		name:      FileName(c.Prefix, t, l.Number, c.Ensemble()),
		date:      dateInt(t),
		time:      t.Hour() * 100,
		stepRange: "0",
	}, nil
}

func dateInt(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}
