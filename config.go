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
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultMaxSeriesBytes is the default limit on the memory used for
// the full precipitation series of the IA3 method.
const DefaultMaxSeriesBytes = 4 << 30

// Config holds the settings for a flux processing run.
type Config struct {
	// StartDate and EndDate give the period of interest in YYYYMMDD
	// format. EndDate defaults to StartDate.
	StartDate, EndDate string

	// Times are the forecast base times in hours and Steps are the
	// forecast steps in hours that make up the period of interest.
	Times, Steps []int

	// DTime is the accumulation interval in hours.
	DTime int

	// MaxStep is the largest forecast step. It defaults to the
	// largest value in Steps.
	MaxStep int

	// BaseTime, if set, is the hour ("00" or "12") of the last flux
	// timestamp on EndDate. Samples valid at that time end the stream.
	BaseTime string

	// PureForecast indicates that the archive holds forecasts only,
	// so output is labelled with forecast steps instead of valid times.
	PureForecast bool

	// RRInt selects the IA3 method for precipitation. Otherwise
	// precipitation is interpolated with the Rain kernel.
	RRInt bool

	// Class, Type and Stream describe the archive dataset. Class also
	// selects the de-accumulation policy.
	Class, Type, Stream string

	// Members are the ensemble member numbers. An empty or single
	// member list means a deterministic run.
	Members []int

	// Eta indicates that the eta-coordinate vertical velocity is
	// required to be present in the archive.
	Eta bool

	// Params describes the archive parameters. It defaults to DefaultParams().
	Params ParamTable

	// NoDeaccClasses lists the dataset classes whose flux fields are
	// stored per interval rather than accumulated since the forecast
	// start. It defaults to []string{"EA"}.
	NoDeaccClasses []string

	// Prefix is the flux file name prefix. It defaults to "flux".
	Prefix string

	// MaxSeriesBytes limits the memory used for full precipitation
	// series when RRInt is set.
	MaxSeriesBytes int64

	start, end time.Time
	baseHour   int
	hasBase    bool
}

// Validate checks the configuration and fills in default values.
func (c *Config) Validate() error {
	if c.StartDate == "" {
		return fmt.Errorf("fluxprep: StartDate must be specified")
	}
	if c.EndDate == "" {
		c.EndDate = c.StartDate
	}
	var err error
	c.start, err = time.Parse(inDateFormat, c.StartDate)
	if err != nil {
		return fmt.Errorf("fluxprep: invalid StartDate: %v", err)
	}
	c.end, err = time.Parse(inDateFormat, c.EndDate)
	if err != nil {
		return fmt.Errorf("fluxprep: invalid EndDate: %v", err)
	}
	if c.end.Before(c.start) {
		return fmt.Errorf("fluxprep: EndDate %s is before StartDate %s", c.EndDate, c.StartDate)
	}
	if c.DTime <= 0 {
		return fmt.Errorf("fluxprep: DTime must be positive but is %d", c.DTime)
	}
	if 24%c.DTime != 0 {
		return fmt.Errorf("fluxprep: DTime must divide 24 but is %d", c.DTime)
	}
	if len(c.Times) == 0 {
		return fmt.Errorf("fluxprep: at least one base time must be specified")
	}
	if len(c.Steps) == 0 {
		return fmt.Errorf("fluxprep: at least one forecast step must be specified")
	}
	for _, t := range c.Times {
		if t < 0 || t > 23 {
			return fmt.Errorf("fluxprep: invalid base time %d", t)
		}
	}
	for _, s := range c.Steps {
		if s < 0 {
			return fmt.Errorf("fluxprep: invalid forecast step %d", s)
		}
		if s > c.MaxStep {
			c.MaxStep = s
		}
	}
	sort.Ints(c.Times)
	sort.Ints(c.Steps)
	sort.Ints(c.Members)
	c.hasBase = false
	if c.BaseTime != "" {
		c.baseHour, err = strconv.Atoi(c.BaseTime)
		if err != nil || (c.baseHour != 0 && c.baseHour != 12) {
			return fmt.Errorf("fluxprep: BaseTime must be 00 or 12 but is %q", c.BaseTime)
		}
		c.hasBase = true
	}
	if c.Params == nil {
		c.Params = DefaultParams()
	}
	if c.NoDeaccClasses == nil {
		c.NoDeaccClasses = []string{"EA"}
	}
	if c.Prefix == "" {
		c.Prefix = "flux"
	}
	if c.MaxSeriesBytes == 0 {
		c.MaxSeriesBytes = DefaultMaxSeriesBytes
	}
	return nil
}

// Ensemble reports whether the run processes more than one ensemble member.
func (c *Config) Ensemble() bool { return len(c.Members) > 1 }

// hasMember reports whether ensemble member n is to be processed.
// Members must be sorted.
func (c *Config) hasMember(n int) bool {
	i := sort.SearchInts(c.Members, n)
	return i < len(c.Members) && c.Members[i] == n
}

// deaccumulated reports whether the dataset class stores per-interval
// values that only need to be divided by the interval length.
func (c *Config) deaccumulated() bool {
	for _, cl := range c.NoDeaccClasses {
		if strings.EqualFold(cl, c.Class) {
			return true
		}
	}
	return false
}

// lastFlux returns the timestamp of the last flux field of the period,
// if the configuration specifies one.
func (c *Config) lastFlux() (time.Time, bool) {
	if !c.hasBase {
		return time.Time{}, false
	}
	return c.end.Add(time.Duration(c.baseHour) * time.Hour), true
}

// Period is a closed time interval.
type Period struct {
	Start, End time.Time
}

// Contains reports whether t is within p, including its end points.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && !t.After(p.End)
}

func (p Period) String() string {
	return fmt.Sprintf("%s to %s", p.Start.Format("2006-01-02 15h"), p.End.Format("2006-01-02 15h"))
}

// RetrievalPeriod returns the first and last valid times of the period of
// interest, disregarding the extra times retrieved for the interpolation
// at the period boundaries.
func (c *Config) RetrievalPeriod() Period {
	return Period{
		Start: c.start.Add(time.Duration(c.Times[0]+c.Steps[0]) * time.Hour),
		End:   c.end.Add(time.Duration(c.Times[len(c.Times)-1]+c.Steps[len(c.Steps)-1]) * time.Hour),
	}
}

// seriesPeriod returns the period for which precipitation is stored for
// the IA3 method. times are the base times in the archive in HHMM format.
func (c *Config) seriesPeriod(times []int) Period {
	if !c.PureForecast {
		return Period{Start: c.start, End: c.end.Add(23 * time.Hour)}
	}
	first, last := 0, 0
	if len(times) > 0 {
		first, last = times[0]/100, times[len(times)-1]/100
	}
	return Period{
		Start: c.start.Add(time.Duration(first) * time.Hour),
		End:   c.end.Add(time.Duration(last+c.MaxStep) * time.Hour),
	}
}

// ParseMembers parses an ensemble member specification such as
// "0/1/2", "0/to/10" or "0/to/10/by/2". "OFF" and "" mean no ensemble.
func ParseMembers(s string) ([]int, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" || s == "OFF" {
		return nil, nil
	}
	parts := strings.Split(s, "/")
	if len(parts) >= 3 && parts[1] == "TO" {
		from, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, fmt.Errorf("fluxprep: invalid member specification %q: %v", s, err)
		}
		to, err := strconv.Atoi(parts[2])
		if err != nil {
			return nil, fmt.Errorf("fluxprep: invalid member specification %q: %v", s, err)
		}
		by := 1
		if len(parts) == 5 && parts[3] == "BY" {
			if by, err = strconv.Atoi(parts[4]); err != nil || by <= 0 {
				return nil, fmt.Errorf("fluxprep: invalid member increment in %q", s)
			}
		} else if len(parts) != 3 {
			return nil, fmt.Errorf("fluxprep: invalid member specification %q", s)
		}
		var o []int
		for n := from; n <= to; n += by {
			o = append(o, n)
		}
		return o, nil
	}
	o := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("fluxprep: invalid member specification %q: %v", s, err)
		}
		o[i] = n
	}
	sort.Ints(o)
	return o, nil
}
