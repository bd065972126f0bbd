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

package fluxutil

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/fluxprep"
	"github.com/spatialmodel/fluxprep/archive"
	"github.com/spatialmodel/fluxprep/cloud"
	"github.com/spatialmodel/fluxprep/fluxfile"
	"github.com/spf13/cast"
	"gonum.org/v1/gonum/floats"
)

// FluxConfig builds a flux processing configuration from cfg.
func FluxConfig(cfg *viper.Viper) (*fluxprep.Config, error) {
	times, err := intSlice(cfg.Get("Times"))
	if err != nil {
		return nil, fmt.Errorf("fluxprep: invalid Times: %v", err)
	}
	steps, err := intSlice(cfg.Get("Steps"))
	if err != nil {
		return nil, fmt.Errorf("fluxprep: invalid Steps: %v", err)
	}
	members, err := fluxprep.ParseMembers(cast.ToString(cfg.Get("Members")))
	if err != nil {
		return nil, err
	}
	params, err := paramTable(cfg)
	if err != nil {
		return nil, err
	}
	maxGB, err := cast.ToFloat64E(cfg.Get("MaxSeriesGB"))
	if err != nil {
		return nil, fmt.Errorf("fluxprep: invalid MaxSeriesGB: %v", err)
	}
	c := &fluxprep.Config{
		StartDate:      os.ExpandEnv(cfg.GetString("StartDate")),
		EndDate:        os.ExpandEnv(cfg.GetString("EndDate")),
		Times:          times,
		Steps:          steps,
		DTime:          cfg.GetInt("DTime"),
		MaxStep:        cfg.GetInt("MaxStep"),
		BaseTime:       cfg.GetString("BaseTime"),
		PureForecast:   cfg.GetBool("PureForecast"),
		RRInt:          cfg.GetBool("RRInt"),
		Class:          cfg.GetString("Class"),
		Type:           cfg.GetString("Type"),
		Stream:         cfg.GetString("Stream"),
		Members:        members,
		Eta:            cfg.GetBool("Eta"),
		Params:         params,
		NoDeaccClasses: cfg.GetStringSlice("NoDeaccClasses"),
		Prefix:         cfg.GetString("Prefix"),
		MaxSeriesBytes: int64(maxGB * 1e9),
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// intSlice converts a configuration value to a slice of integers.
// Values set from the command line arrive as strings such as "[0,12]".
func intSlice(v interface{}) ([]int, error) {
	s, ok := v.(string)
	if !ok {
		return cast.ToIntSliceE(v)
	}
	s = strings.Trim(strings.TrimSpace(s), "[]")
	if s == "" {
		return nil, nil
	}
	var o []int
	for _, f := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == '/' }) {
		i, err := strconv.Atoi(f)
		if err != nil {
			return nil, err
		}
		o = append(o, i)
	}
	return o, nil
}

// paramTable reads the parameter table given by the ParamFile option
// and restricts it to the parameters given by the Params option.
func paramTable(cfg *viper.Viper) (fluxprep.ParamTable, error) {
	t := fluxprep.DefaultParams()
	if path := os.ExpandEnv(cfg.GetString("ParamFile")); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("fluxprep: opening parameter file: %v", err)
		}
		defer f.Close()
		if t, err = fluxprep.ReadParamTable(f); err != nil {
			return nil, err
		}
	}
	ids, err := t.Lookup(cfg.GetString("Params"))
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return t, nil
	}
	sel := fluxprep.ParamTable{fluxprep.ParamEtadot: t[fluxprep.ParamEtadot]}
	for _, id := range ids {
		sel[id] = t[id]
	}
	return sel, nil
}

// archiveFiles expands the Archive option into a list of local files,
// downloading blob storage locations into dir.
func archiveFiles(ctx context.Context, cfg *viper.Viper, dir string, log logrus.FieldLogger) ([]string, error) {
	var o []string
	for _, loc := range cfg.GetStringSlice("Archive") {
		loc = os.ExpandEnv(loc)
		if cloud.IsBlob(loc) {
			f, err := cloud.Fetch(ctx, loc, dir, log)
			if err != nil {
				return nil, err
			}
			o = append(o, f)
			continue
		}
		matches, err := filepath.Glob(loc)
		if err != nil {
			return nil, fmt.Errorf("fluxprep: invalid archive pattern %q: %v", loc, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("fluxprep: no archive files match %q", loc)
		}
		o = append(o, matches...)
	}
	if len(o) == 0 {
		return nil, fmt.Errorf("fluxprep: no archive files specified")
	}
	return o, nil
}

// openArchive opens the archive given by cfg.
func openArchive(ctx context.Context, cfg *viper.Viper, log logrus.FieldLogger) (*archive.Index, func(), error) {
	dir, err := ioutil.TempDir("", "fluxprep")
	if err != nil {
		return nil, nil, fmt.Errorf("fluxprep: creating temporary download directory: %v", err)
	}
	cleanup := func() { os.RemoveAll(dir) }
	files, err := archiveFiles(ctx, cfg, dir, log)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	idx, err := archive.Open(files, os.ExpandEnv(cfg.GetString("IndexCache")), cfg.GetInt("OpenFiles"))
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	idx.Log = log
	log.WithFields(logrus.Fields{"files": len(files), "records": idx.Len()}).Info("opened archive")
	return idx, func() { idx.Close(); cleanup() }, nil
}

// Deacc creates flux files according to cfg and returns their paths.
// If the Upload option is set, the files are also copied to blob storage.
func Deacc(ctx context.Context, cfg *viper.Viper, log logrus.FieldLogger) ([]string, error) {
	c, err := FluxConfig(cfg)
	if err != nil {
		return nil, err
	}
	idx, closeIdx, err := openArchive(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	defer closeIdx()

	outDir := os.ExpandEnv(cfg.GetString("OutputDir"))
	sink, err := fluxfile.NewSink(outDir, cfg.GetInt("OpenFiles"))
	if err != nil {
		return nil, err
	}
	sink.Log = log

	d, err := fluxprep.NewDeaccumulator(c, idx, sink)
	if err != nil {
		sink.Close()
		return nil, err
	}
	d.Log = log
	if err := d.Run(); err != nil {
		sink.Close()
		return nil, err
	}
	if err := sink.Close(); err != nil {
		return nil, err
	}
	files := sink.Files()
	for i, f := range files {
		files[i] = filepath.Join(outDir, f)
	}
	if dest := os.ExpandEnv(cfg.GetString("Upload")); dest != "" {
		if err := cloud.Upload(ctx, dest, files, log); err != nil {
			return nil, err
		}
		log.WithField("destination", dest).Info("uploaded flux files")
	}
	return files, nil
}

// Estimate returns the size of the precipitation series that the IA3
// method would need for the run described by cfg, and the configured
// memory limit.
func Estimate(ctx context.Context, cfg *viper.Viper, log logrus.FieldLogger) (fluxprep.SeriesSize, int64, error) {
	c, err := FluxConfig(cfg)
	if err != nil {
		return fluxprep.SeriesSize{}, 0, err
	}
	idx, closeIdx, err := openArchive(ctx, cfg, log)
	if err != nil {
		return fluxprep.SeriesSize{}, 0, err
	}
	defer closeIdx()
	size, err := fluxprep.EstimateSeries(c, idx)
	return size, c.MaxSeriesBytes, err
}

// Dump writes a summary of the records in the named flux file to w.
func Dump(w io.Writer, name string) error {
	recs, err := fluxfile.ReadAll(name)
	if err != nil {
		return err
	}
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Param < recs[j].Param })
	fmt.Fprintf(w, "%s: %d fields\n", name, len(recs))
	for _, r := range recs {
		fmt.Fprintf(w, "  param=%d date=%08d time=%04d stepRange=%s number=%d grid=%dx%d",
			r.Param, r.Date, r.Time, r.StepRange, r.Number, r.Ni, r.Nj)
		if len(r.Values) > 0 {
			v := make([]float64, len(r.Values))
			for i, x := range r.Values {
				v[i] = float64(x)
			}
			fmt.Fprintf(w, " min=%g max=%g sum=%g", floats.Min(v), floats.Max(v), floats.Sum(v))
		}
		fmt.Fprintln(w)
	}
	return nil
}
