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
	"strconv"

	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// TemplateWriter is implemented by sinks that store the grid
// templates of the precipitation fields produced by the IA3 method.
type TemplateWriter interface {
	WriteTemplates(t []Template) error
}

// Deaccumulator turns the accumulated fields in an archive into flux
// fields. It processes the archive in a single pass, ordered by
// ensemble member, base date, base time and forecast step.
type Deaccumulator struct {
	Config *Config
	Index  Index
	Sink   Sink

	// Log receives progress and diagnostic messages.
	Log logrus.FieldLogger

	windows   map[windowKey]*window
	number    int
	started   bool
	series    *seriesStore
	templates map[int]Template
	written   int
}

// NewDeaccumulator validates c and returns a Deaccumulator that reads
// from idx and writes to s.
func NewDeaccumulator(c *Config, idx Index, s Sink) (*Deaccumulator, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &Deaccumulator{
		Config: c,
		Index:  idx,
		Sink:   s,
		Log:    logrus.StandardLogger(),
	}, nil
}

// Written returns the number of fields written to the sink so far.
func (d *Deaccumulator) Written() int { return d.written }

// keys returns the index keys that the archive is traversed by.
func (d *Deaccumulator) keys() []Key {
	if d.Config.Ensemble() {
		return []Key{KeyNumber, KeyDate, KeyTime, KeyStep}
	}
	return []Key{KeyDate, KeyTime, KeyStep}
}

func (d *Deaccumulator) member(l Label) int {
	if d.Config.Ensemble() {
		return l.Number
	}
	return 0
}

// Check returns an error if a parameter that the configuration
// requires is missing from the archive.
func (d *Deaccumulator) Check() error {
	c := d.Config
	params, err := d.Index.Params()
	if err != nil {
		return fmt.Errorf("fluxprep: listing archive parameters: %v", err)
	}
	have := make(map[int]bool)
	for _, p := range params {
		have[p] = true
	}
	perr := func(p int, hint string) error {
		return &PreconditionError{Param: p, Class: c.Class, Type: c.Type, Stream: c.Stream,
			StartDate: c.StartDate, EndDate: c.EndDate, Hint: hint}
	}
	if c.Eta && !have[ParamEtadot] {
		return perr(ParamEtadot, "the eta-coordinate vertical velocity is required; "+
			"disable Eta or use a dataset that provides it")
	}
	if c.RRInt {
		for _, p := range c.Params.Fluxes() {
			if c.Params.Kind(p) == Precipitation && !have[p] {
				return perr(p, "precipitation is required by the IA3 method")
			}
		}
	}
	return nil
}

// Run processes the whole archive.
func (d *Deaccumulator) Run() error {
	c := d.Config
	if err := d.Check(); err != nil {
		return err
	}
	d.windows = make(map[windowKey]*window)
	d.templates = make(map[int]Template)
	d.started = false
	d.written = 0

	prods, err := NewProducts(d.Index, d.keys()...)
	if err != nil {
		return err
	}

	var storePeriod Period
	if c.RRInt {
		size, err := EstimateSeries(c, d.Index)
		if err != nil {
			return err
		}
		if b := size.Bytes(); b > c.MaxSeriesBytes {
			return fmt.Errorf("%w: %d bytes needed for %d series of %d steps on %d grid points, limit is %d",
				ErrCapacity, b, size.Series, size.Steps, size.Cells, c.MaxSeriesBytes)
		}
		d.series = newSeriesStore(size)
		storePeriod = c.seriesPeriod(prods.Values(KeyTime))
		d.Log.WithFields(logrus.Fields{
			"period": storePeriod.String(),
			"steps":  size.Steps,
			"bytes":  size.Bytes(),
		}).Info("storing precipitation series for IA3 disaggregation")
	}

	for {
		comb, err := prods.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if c.Ensemble() {
			n, _ := comb.Get(KeyNumber)
			if !c.hasMember(n) {
				d.Log.WithField("product", comb.String()).Debug("skipping unlisted ensemble member")
				continue
			}
			if !d.started || n != d.number {
				if err := d.finishAll(); err != nil {
					return err
				}
				d.windows = make(map[windowKey]*window)
				d.number = n
				d.started = true
				d.Log.WithField("number", n).Info("processing ensemble member")
			}
		}
		msgs, err := d.Index.Select(comb)
		if err != nil {
			return fmt.Errorf("fluxprep: selecting %v: %v", comb, err)
		}
		if len(msgs) == 0 {
			d.Log.WithField("product", comb.String()).Debug("no data for product")
			continue
		}
		d.Log.WithField("product", comb.String()).Debug("processing product")
		for _, m := range msgs {
			if err := d.process(m, storePeriod); err != nil {
				return err
			}
		}
	}
	if err := d.finishAll(); err != nil {
		return err
	}
	if c.RRInt {
		if err := d.writeSeries(prods); err != nil {
			return err
		}
	}
	d.Log.WithField("fields", d.written).Info("flux processing finished")
	return nil
}

// process handles a single archive message.
func (d *Deaccumulator) process(m *Message, storePeriod Period) error {
	c := d.Config
	p, ok := c.Params[m.Param]
	if !ok || (p.Kind != Precipitation && p.Kind != Flux) {
		return nil
	}
	if _, ok := d.templates[m.Param]; !ok {
		d.templates[m.Param] = TemplateOf(m)
	}

	values := sparse.ZerosDense(m.Data.Shape...)
	copy(values.Elements, m.Data.Elements)
	floats.Scale(1/p.Divisor, values.Elements)

	key := windowKey{param: m.Param, number: d.member(m.Label)}
	w, ok := d.windows[key]
	if !ok {
		w = newWindow(p.Kind, TemplateOf(m))
		d.windows[key] = w
	}
	if c.PureForecast && w.Len() > 0 && (w.last.Date != m.Date || w.last.Time != m.Time) {
		// A new forecast starts.
		if err := d.finish(w); err != nil {
			return err
		}
	}
	mean, err := w.add(m.Label, values, c.DTime, c.deaccumulated())
	if err != nil {
		return err
	}

	if debugEnabled(d.Log) && len(values.Elements) > 0 {
		d.Log.WithFields(logrus.Fields{
			"param": m.Param,
			"time":  m.Time,
			"step":  m.Step,
			"len":   len(values.Elements),
			"first": values.Elements[0],
			"std":   stat.StdDev(values.Elements, nil),
		}).Debug("flux field")
	}

	rrint := c.RRInt && p.Kind == Precipitation
	if rrint {
		valid, err := m.Valid()
		if err != nil {
			return err
		}
		if storePeriod.Contains(valid) {
			if err := d.series.put(key, TemplateOf(m), m.Label, mean); err != nil {
				return err
			}
		}
	}

	var out *sparse.DenseArray
	switch w.Len() {
	case 3:
		out = w.boundary(c.PureForecast)
	case windowLen:
		out = w.interior()
	default:
		return nil
	}
	if !rrint {
		if err := d.write(w.tmpl, m.Label, 2, out); err != nil {
			return err
		}
	}
	if w.Len() == windowLen && d.final(m.Label) {
		return d.finish(w)
	}
	return nil
}

// debugEnabled reports whether l writes debug messages. Loggers
// other than logrus's own are assumed to.
func debugEnabled(l logrus.FieldLogger) bool {
	switch l := l.(type) {
	case *logrus.Logger:
		return l.Level >= logrus.DebugLevel
	case *logrus.Entry:
		return l.Logger.Level >= logrus.DebugLevel
	}
	return true
}

// final reports whether the sample labelled l is the last one of its
// series.
func (d *Deaccumulator) final(l Label) bool {
	c := d.Config
	if c.PureForecast && l.Step == c.MaxStep {
		return true
	}
	end, ok := c.lastFlux()
	if !ok {
		return false
	}
	valid, err := l.Valid()
	return err == nil && valid.Equal(end)
}

// finish writes the values at the end of the series held in w: the last
// interval mean and the kernel estimate one interval earlier. w is
// then emptied.
func (d *Deaccumulator) finish(w *window) error {
	defer w.reset()
	if w.Len() < windowLen {
		return nil
	}
	if d.Config.RRInt && d.Config.Params.Kind(w.tmpl.Param) == Precipitation {
		return nil
	}
	if err := d.write(w.tmpl, w.last, 0, w.latest()); err != nil {
		return err
	}
	return d.write(w.tmpl, w.last, 1, w.trailing())
}

// finishAll finishes every window in ascending parameter order.
func (d *Deaccumulator) finishAll() error {
	keys := make([]windowKey, 0, len(d.windows))
	for k := range d.windows {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].number != keys[j].number {
			return keys[i].number < keys[j].number
		}
		return keys[i].param < keys[j].param
	})
	for _, k := range keys {
		if err := d.finish(d.windows[k]); err != nil {
			return err
		}
	}
	return nil
}

// write sends values to the sink, labelled as valid back intervals
// before the sample labelled l.
func (d *Deaccumulator) write(tmpl Template, l Label, back int, values *sparse.DenseArray) error {
	dst, err := d.Config.shifted(l, back)
	if err != nil {
		return err
	}
	f := &Field{
		Template:  tmpl,
		Date:      dst.date,
		Time:      dst.time,
		StepRange: dst.stepRange,
		Number:    d.member(l),
		Values:    values,
	}
	if err := d.Sink.Write(dst.name, f); err != nil {
		return fmt.Errorf("fluxprep: writing parameter %d to %s: %v", tmpl.Param, dst.name, err)
	}
	d.written++
	return nil
}

// writeSeries disaggregates the stored precipitation series and writes
// three values per interval for every product in the retrieval period.
func (d *Deaccumulator) writeSeries(prods *Products) error {
	c := d.Config
	if tw, ok := d.Sink.(TemplateWriter); ok {
		var t []Template
		for _, p := range c.Params.Fluxes() {
			if tmpl, ok := d.templates[p]; ok && c.Params.Kind(p) == Precipitation {
				t = append(t, tmpl)
			}
		}
		if err := tw.WriteTemplates(t); err != nil {
			return fmt.Errorf("fluxprep: writing precipitation templates: %v", err)
		}
	}
	d.Log.Info("disaggregating precipitation with the IA3 method")
	d.series.disaggregate()

	period := c.RetrievalPeriod()
	prods.Reset()
	for {
		comb, err := prods.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		l := comb.Label()
		valid, err := l.Valid()
		if err != nil {
			return err
		}
		if !period.Contains(valid) {
			continue
		}
		number := d.member(l)
		var name string
		if c.PureForecast {
			base, _ := l.Base()
			name = ForecastFileName(c.Prefix, base, l.Step, number, c.Ensemble())
		} else {
			name = FileName(c.Prefix, valid, number, c.Ensemble())
		}
		params := d.series.params(number)
		for sub := 0; sub < subPoints; sub++ {
			for _, p := range params {
				values, tmpl, ok := d.series.field(windowKey{param: p, number: number}, l, sub)
				if !ok {
					continue
				}
				f := &Field{
					Template:  tmpl,
					Date:      dateInt(valid),
					Time:      valid.Hour() * 100,
					StepRange: strconv.Itoa(sub),
					Number:    number,
					Values:    values,
				}
				if err := d.Sink.Write(name, f); err != nil {
					return fmt.Errorf("fluxprep: writing parameter %d to %s: %v", p, name, err)
				}
				d.written++
			}
		}
	}
	return nil
}
