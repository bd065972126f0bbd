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

// Package fluxutil implements the fluxprep command-line interface.
package fluxutil

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/fluxprep"
	"github.com/spatialmodel/fluxprep/cloud"
	"github.com/spatialmodel/fluxprep/fluxfile"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to fluxprep.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "LogLevel",
			usage: `
              LogLevel is the minimum level of log messages to print.
              Valid values are "debug", "info", "warning" and "error".`,
			defaultVal: "info",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "StartDate",
			usage: `
              StartDate is the first date of the period of interest
              in the format YYYYMMDD.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{deaccCmd.Flags(), estimateCmd.Flags()},
		},
		{
			name: "EndDate",
			usage: `
              EndDate is the last date of the period of interest in the
              format YYYYMMDD. It defaults to StartDate.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{deaccCmd.Flags(), estimateCmd.Flags()},
		},
		{
			name: "Times",
			usage: `
              Times are the forecast base times, in hours, of the
              fields in the archive.`,
			defaultVal: []int{0, 12},
			flagsets:   []*pflag.FlagSet{deaccCmd.Flags(), estimateCmd.Flags()},
		},
		{
			name: "Steps",
			usage: `
              Steps are the forecast steps, in hours, of the fields in
              the archive.`,
			defaultVal: []int{3, 6, 9, 12},
			flagsets:   []*pflag.FlagSet{deaccCmd.Flags(), estimateCmd.Flags()},
		},
		{
			name: "DTime",
			usage: `
              DTime is the accumulation interval in hours. It must
              divide 24.`,
			defaultVal: 3,
			flagsets:   []*pflag.FlagSet{deaccCmd.Flags(), estimateCmd.Flags()},
		},
		{
			name: "MaxStep",
			usage: `
              MaxStep is the largest forecast step in hours. The default
              of 0 means the largest value in Steps.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{deaccCmd.Flags(), estimateCmd.Flags()},
		},
		{
			name: "BaseTime",
			usage: `
              BaseTime, if set, is the hour ("00" or "12") on EndDate of
              the last flux field to be produced.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{deaccCmd.Flags(), estimateCmd.Flags()},
		},
		{
			name: "PureForecast",
			usage: `
              PureForecast specifies that the archive holds forecasts only.
              Output is then labelled with forecast steps instead of
              valid times.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{deaccCmd.Flags(), estimateCmd.Flags()},
		},
		{
			name: "RRInt",
			usage: `
              RRInt selects the IA3 method for precipitation, which writes
              three values per accumulation interval and conserves the
              precipitation amount of every interval.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{deaccCmd.Flags(), estimateCmd.Flags()},
		},
		{
			name: "Class",
			usage: `
              Class is the dataset class of the archive. Classes listed in
              NoDeaccClasses store fluxes per interval.`,
			defaultVal: "EI",
			flagsets:   []*pflag.FlagSet{deaccCmd.Flags(), estimateCmd.Flags()},
		},
		{
			name: "Type",
			usage: `
              Type is the dataset type of the archive, e.g. "FC" for forecasts.`,
			defaultVal: "FC",
			flagsets:   []*pflag.FlagSet{deaccCmd.Flags(), estimateCmd.Flags()},
		},
		{
			name: "Stream",
			usage: `
              Stream is the dataset stream of the archive, e.g. "OPER" or "ENFO".`,
			defaultVal: "OPER",
			flagsets:   []*pflag.FlagSet{deaccCmd.Flags(), estimateCmd.Flags()},
		},
		{
			name: "Members",
			usage: `
              Members are the ensemble member numbers to process, e.g. "0/1/2",
              "1/to/10" or "1/to/50/by/2". "OFF" means a deterministic run.`,
			defaultVal: "OFF",
			flagsets:   []*pflag.FlagSet{deaccCmd.Flags(), estimateCmd.Flags()},
		},
		{
			name: "Eta",
			usage: `
              Eta specifies that the eta-coordinate vertical velocity
              (parameter 77) must be present in the archive.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{deaccCmd.Flags()},
		},
		{
			name: "ParamFile",
			usage: `
              ParamFile is the path to a TOML file with additional parameter
              definitions. It can include environment variables.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{deaccCmd.Flags(), estimateCmd.Flags()},
		},
		{
			name: "Params",
			usage: `
              Params is a "/"-separated list of the names or numbers of the
              parameters to process, e.g. "LSP/CP/146". All flux parameters
              are processed if it is empty.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{deaccCmd.Flags(), estimateCmd.Flags()},
		},
		{
			name: "NoDeaccClasses",
			usage: `
              NoDeaccClasses are the dataset classes whose flux fields are
              stored per accumulation interval.`,
			defaultVal: []string{"EA"},
			flagsets:   []*pflag.FlagSet{deaccCmd.Flags(), estimateCmd.Flags()},
		},
		{
			name: "Prefix",
			usage: `
              Prefix is the prefix of the flux file names.`,
			defaultVal: "flux",
			flagsets:   []*pflag.FlagSet{deaccCmd.Flags()},
		},
		{
			name: "MaxSeriesGB",
			usage: `
              MaxSeriesGB is the maximum memory, in gigabytes, that may be used
              to store precipitation series for the IA3 method.`,
			defaultVal: 4.0,
			flagsets:   []*pflag.FlagSet{deaccCmd.Flags(), estimateCmd.Flags()},
		},
		{
			name: "Archive",
			usage: `
              Archive are the paths to the archive files. They can include
              environment variables and glob patterns, and can be blob storage
              locations such as "s3://bucket/file.nc".`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{deaccCmd.Flags(), estimateCmd.Flags()},
		},
		{
			name: "IndexCache",
			usage: `
              IndexCache is the directory where archive indexes are cached.
              Indexes are not cached if it is empty.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{deaccCmd.Flags(), estimateCmd.Flags()},
		},
		{
			name: "OpenFiles",
			usage: `
              OpenFiles is the maximum number of archive and flux files that
              are held open at the same time.`,
			defaultVal: 16,
			flagsets:   []*pflag.FlagSet{deaccCmd.Flags()},
		},
		{
			name: "OutputDir",
			usage: `
              OutputDir is the directory where flux files are written.
              It can include environment variables.`,
			shorthand:  "o",
			defaultVal: ".",
			flagsets:   []*pflag.FlagSet{deaccCmd.Flags()},
		},
		{
			name: "Upload",
			usage: `
              Upload is a blob storage location such as "gs://bucket/run1"
              that the flux files are copied to. Nothing is uploaded if it
              is empty.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{deaccCmd.Flags(), uploadCmd.Flags()},
		},
		{
			name: "Tolerance",
			usage: `
              Tolerance is the largest absolute difference allowed between
              two compared fields.`,
			defaultVal: 1.0e-6,
			flagsets:   []*pflag.FlagSet{compareCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("FLUXPREP")

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch v := option.defaultVal.(type) {
			case string:
				set.StringP(option.name, option.shorthand, v, option.usage)
			case []string:
				set.StringSliceP(option.name, option.shorthand, v, option.usage)
			case bool:
				set.BoolP(option.name, option.shorthand, v, option.usage)
			case int:
				set.IntP(option.name, option.shorthand, v, option.usage)
			case []int:
				set.IntSliceP(option.name, option.shorthand, v, option.usage)
			case float64:
				set.Float64P(option.name, option.shorthand, v, option.usage)
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(deaccCmd)
	Root.AddCommand(estimateCmd)
	Root.AddCommand(dumpCmd)
	Root.AddCommand(compareCmd)
	Root.AddCommand(uploadCmd)
}

// setConfig finds and reads in the configuration file, if there is one,
// and sets up logging.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(os.ExpandEnv(cfgpath))
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("fluxprep: problem reading configuration file: %v", err)
		}
	}
	level, err := logrus.ParseLevel(Cfg.GetString("LogLevel"))
	if err != nil {
		return fmt.Errorf("fluxprep: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		ForceColors:     true,
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339Nano,
		DisableSorting:  true,
	})
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "fluxprep",
	Short: "Prepare surface flux fields for particle dispersion modeling.",
	Long: `fluxprep turns the accumulated surface fields in a meteorological archive
(precipitation, sensible heat flux, solar radiation and surface stress) into
flux fields for each time step, conserving the amount accumulated over every
interval. Use the subcommands specified below to access the functionality.

Refer to the subcommand documentation for configuration options and default settings.
Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'FLUXPREP_var' where 'var' is the
name of the variable to be set. Many configuration variables are additionally
allowed to contain environment variables within them.
Refer to https://github.com/spf13/viper for additional configuration information.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of fluxprep.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("fluxprep v%s\n", fluxprep.Version)
	},
	DisableAutoGenTag: true,
}

// deaccCmd creates flux files from an archive.
var deaccCmd = &cobra.Command{
	Use:   "deacc",
	Short: "Create flux files from accumulated archive fields.",
	Long: `deacc reads the accumulated fields in the archive files, reconstructs
the flux fields for each time step and writes them to one flux file per time
step in OutputDir.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := Deacc(context.Background(), Cfg, logrus.StandardLogger())
		if err != nil {
			return err
		}
		cmd.Printf("wrote %d flux files\n", len(files))
		return nil
	},
	DisableAutoGenTag: true,
}

// estimateCmd reports the memory needed for the IA3 method.
var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Estimate the memory needed for the IA3 precipitation method.",
	Long: `estimate prints the size of the precipitation series that a run with
--RRInt would store, and whether it fits within MaxSeriesGB.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		size, limit, err := Estimate(context.Background(), Cfg, logrus.StandardLogger())
		if err != nil {
			return err
		}
		cmd.Printf("%d series of %d steps on %d grid points: %.3g GB (limit %.3g GB)\n",
			size.Series, size.Steps, size.Cells, float64(size.Bytes())/1e9, float64(limit)/1e9)
		if size.Bytes() > limit {
			return fmt.Errorf("%w: increase MaxSeriesGB or shorten the period", fluxprep.ErrCapacity)
		}
		return nil
	},
	DisableAutoGenTag: true,
}

// dumpCmd prints the contents of flux files.
var dumpCmd = &cobra.Command{
	Use:   "dump file...",
	Short: "Print a summary of the fields in flux files.",
	Long:  "dump prints the labels and value ranges of the fields in each flux file.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, f := range args {
			if err := Dump(cmd.OutOrStdout(), f); err != nil {
				return err
			}
		}
		return nil
	},
	DisableAutoGenTag: true,
}

// compareCmd compares two flux files.
var compareCmd = &cobra.Command{
	Use:   "compare file1 file2",
	Short: "Compare the fields in two flux files.",
	Long: `compare checks that two flux files hold the same fields and that no
values differ by more than Tolerance.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := fluxfile.ReadAll(args[0])
		if err != nil {
			return err
		}
		b, err := fluxfile.ReadAll(args[1])
		if err != nil {
			return err
		}
		tol, err := cast.ToFloat64E(Cfg.Get("Tolerance"))
		if err != nil {
			return fmt.Errorf("fluxprep: invalid Tolerance: %v", err)
		}
		diffs, err := fluxfile.Compare(a, b, tol)
		if err != nil {
			return err
		}
		for _, d := range diffs {
			cmd.Printf("param=%d stepRange=%s number=%d max abs difference=%g\n",
				d.Param, d.StepRange, d.Number, d.MaxAbs)
		}
		return nil
	},
	DisableAutoGenTag: true,
}

// uploadCmd copies flux files to blob storage.
var uploadCmd = &cobra.Command{
	Use:   "upload file...",
	Short: "Copy flux files to blob storage.",
	Long:  `upload copies the given files to the blob storage location given by --Upload.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dest := os.ExpandEnv(Cfg.GetString("Upload"))
		if dest == "" {
			return fmt.Errorf("fluxprep: no upload location specified")
		}
		return cloud.Upload(context.Background(), dest, args, logrus.StandardLogger())
	},
	DisableAutoGenTag: true,
}
