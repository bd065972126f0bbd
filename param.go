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
	"strings"

	"github.com/BurntSushi/toml"
)

// Kind is the physical category of a flux parameter. It decides the unit
// conversion and the interpolation kernel applied to the parameter.
type Kind int

// These are the parameter kinds.
const (
	Unknown Kind = iota
	Precipitation
	Flux
	VerticalVelocity
)

func (k Kind) String() string {
	switch k {
	case Precipitation:
		return "precipitation"
	case Flux:
		return "flux"
	case VerticalVelocity:
		return "vertical velocity"
	default:
		return "unknown"
	}
}

// Archive parameter identifiers used by the flux processing.
const (
	ParamEtadot           = 77  // eta-coordinate vertical velocity
	ParamLargeScalePrecip = 142 // LSP
	ParamConvectivePrecip = 143 // CP
	ParamSensibleHeat     = 146 // SSHF
	ParamSolarRadiation   = 176 // SSR
	ParamEastwardStress   = 180 // EWSS
	ParamNorthwardStress  = 181 // NSSS
)

// Param describes one archive parameter.
type Param struct {
	ID        int    `toml:"id"`
	ShortName string `toml:"name"`
	Kind      Kind   `toml:"-"`
	KindName  string `toml:"kind"`

	// Divisor converts archive units to output units by division.
	// Precipitation is stored in m and written in mm; energy and stress
	// fluxes are stored in J m-2 (N m-2 s) and written per hour.
	Divisor float64 `toml:"divisor"`
}

// ParamTable maps parameter identifiers to their descriptions.
type ParamTable map[int]Param

// DefaultParams returns the table of accumulated surface fields that are
// turned into fluxes, plus the vertical velocity field that is checked
// for but not processed.
func DefaultParams() ParamTable {
	return ParamTable{
		ParamLargeScalePrecip: {ID: ParamLargeScalePrecip, ShortName: "LSP", Kind: Precipitation, Divisor: 1. / 1000.},
		ParamConvectivePrecip: {ID: ParamConvectivePrecip, ShortName: "CP", Kind: Precipitation, Divisor: 1. / 1000.},
		ParamSensibleHeat:     {ID: ParamSensibleHeat, ShortName: "SSHF", Kind: Flux, Divisor: 3600},
		ParamSolarRadiation:   {ID: ParamSolarRadiation, ShortName: "SSR", Kind: Flux, Divisor: 3600},
		ParamEastwardStress:   {ID: ParamEastwardStress, ShortName: "EWSS", Kind: Flux, Divisor: 3600},
		ParamNorthwardStress:  {ID: ParamNorthwardStress, ShortName: "NSSS", Kind: Flux, Divisor: 3600},
		ParamEtadot:           {ID: ParamEtadot, ShortName: "ETADOT", Kind: VerticalVelocity, Divisor: 1},
	}
}

// ReadParamTable reads parameter definitions in TOML format from r and
// merges them into a copy of the default table. The input should look like:
//
//	[[param]]
//	id = 228
//	name = "TP"
//	kind = "precipitation"
//	divisor = 0.001
func ReadParamTable(r io.Reader) (ParamTable, error) {
	var f struct {
		Param []Param `toml:"param"`
	}
	if _, err := toml.DecodeReader(r, &f); err != nil {
		return nil, fmt.Errorf("fluxprep: reading parameter table: %v", err)
	}
	t := DefaultParams()
	for _, p := range f.Param {
		switch strings.ToLower(p.KindName) {
		case "precipitation":
			p.Kind = Precipitation
		case "flux", "":
			p.Kind = Flux
		case "vertical velocity", "etadot":
			p.Kind = VerticalVelocity
		default:
			return nil, fmt.Errorf("fluxprep: parameter %d has invalid kind %q", p.ID, p.KindName)
		}
		if p.ID <= 0 {
			return nil, fmt.Errorf("fluxprep: parameter %q has invalid id %d", p.ShortName, p.ID)
		}
		if p.Divisor == 0 {
			p.Divisor = 1
		}
		p.ShortName = strings.ToUpper(p.ShortName)
		t[p.ID] = p
	}
	return t, nil
}

// Kind returns the kind of parameter id, or Unknown if it is not in the table.
func (t ParamTable) Kind(id int) Kind {
	return t[id].Kind
}

// Fluxes returns the identifiers of the parameters in t that are
// de-accumulated, in ascending order.
func (t ParamTable) Fluxes() []int {
	var o []int
	for id, p := range t {
		if p.Kind == Precipitation || p.Kind == Flux {
			o = append(o, id)
		}
	}
	sort.Ints(o)
	return o
}

// Lookup translates a "/"-separated list of parameter names or numbers
// (e.g. "LSP/CP/146") into parameter identifiers. Unknown entries are
// returned as an error.
func (t ParamTable) Lookup(pars string) ([]int, error) {
	if strings.TrimSpace(pars) == "" {
		return nil, nil
	}
	var o []int
	for _, par := range strings.Split(strings.ToUpper(pars), "/") {
		par = strings.TrimSpace(par)
		if id, err := strconv.Atoi(par); err == nil {
			if _, ok := t[id]; !ok {
				return nil, fmt.Errorf("fluxprep: parameter %d not found in parameter table", id)
			}
			o = append(o, id)
			continue
		}
		found := false
		for id, p := range t {
			if p.ShortName == par {
				o = append(o, id)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("fluxprep: parameter %s not found in parameter table", par)
		}
	}
	return o, nil
}
