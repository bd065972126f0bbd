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

// Package fluxprep reconstructs instantaneous surface flux fields from
// the accumulated fields stored in meteorological archives, for use as
// input to a Lagrangian particle dispersion model.
//
// Archive fields such as precipitation, sensible heat flux, solar
// radiation and surface stress are stored as totals accumulated since
// the start of a forecast. Deaccumulator turns a time-ordered stream of
// those totals into per-timestep flux fields whose time integral over
// every accumulation interval matches the archive, and writes them to
// a Sink as per-timestep "flux" files.
package fluxprep

import (
	"errors"
	"fmt"
	"time"

	"github.com/ctessum/sparse"
)

// Version gives the version number.
const Version = "1.2.0"

const (
	// inDateFormat specifies the format to use
	// when inputting dates.
	inDateFormat = "20060102"
)

var (
	// ErrOutOfOrder is returned when a sample arrives for a parameter
	// and ensemble member at or before the timestamp of the previous
	// sample for the same pair.
	ErrOutOfOrder = errors.New("fluxprep: samples out of order")

	// ErrCapacity is returned when the full-series buffers needed by the
	// IA3 precipitation method would exceed the configured memory limit.
	ErrCapacity = errors.New("fluxprep: insufficient capacity for precipitation series")
)

// Label identifies a single gridded field in an archive.
type Label struct {
	// Param is the archive parameter identifier.
	Param int

	// Date is the forecast base date in YYYYMMDD form.
	Date int

	// Time is the forecast base time in HHMM form.
	Time int

	// Step is the forecast step in hours.
	Step int

	// Number is the ensemble member number.
	Number int
}

// Base returns the forecast base time of the label.
func (l Label) Base() (time.Time, error) {
	d, err := time.Parse(inDateFormat, fmt.Sprintf("%08d", l.Date))
	if err != nil {
		return time.Time{}, fmt.Errorf("fluxprep: invalid date %d: %v", l.Date, err)
	}
	return d.Add(time.Duration(l.Time/100) * time.Hour), nil
}

// Valid returns the time the label is valid for, i.e. the base time plus
// the forecast step.
func (l Label) Valid() (time.Time, error) {
	b, err := l.Base()
	if err != nil {
		return b, err
	}
	return b.Add(time.Duration(l.Step) * time.Hour), nil
}

// before reports whether l sorts strictly before o in stream order.
func (l Label) before(o Label) bool {
	if l.Date != o.Date {
		return l.Date < o.Date
	}
	if l.Time != o.Time {
		return l.Time < o.Time
	}
	return l.Step < o.Step
}

func (l Label) String() string {
	return fmt.Sprintf("param=%d date=%08d time=%04d step=%d number=%d",
		l.Param, l.Date, l.Time, l.Step, l.Number)
}

// Message is an accumulated field read from an archive. The Data
// array has shape [nj, ni]. Messages are not modified once read.
type Message struct {
	Label
	Data *sparse.DenseArray
}

// Grid returns the number of grid points along each axis of m.
func (m *Message) Grid() (ni, nj int) {
	if len(m.Data.Shape) != 2 {
		return len(m.Data.Elements), 1
	}
	return m.Data.Shape[1], m.Data.Shape[0]
}

// PreconditionError reports that a parameter that the configuration
// requires is absent from the archive.
type PreconditionError struct {
	Param               int
	Class, Type, Stream string
	StartDate, EndDate  string
	Hint                string
}

func (e *PreconditionError) Error() string {
	msg := fmt.Sprintf("fluxprep: parameter %d is not available in the archive for "+
		"CLASS=%s TYPE=%s STREAM=%s START_DATE=%s END_DATE=%s",
		e.Param, e.Class, e.Type, e.Stream, e.StartDate, e.EndDate)
	if e.Hint != "" {
		msg += ": " + e.Hint
	}
	return msg
}
