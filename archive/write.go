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
	"fmt"
	"os"

	"github.com/ctessum/cdf"
	"github.com/spatialmodel/fluxprep"
)

// Variable and dimension names in archive files.
const (
	dimRecord = "record"
	dimLat    = "lat"
	dimLon    = "lon"

	varValues = "values"
	varParam  = "param"
	varDate   = "date"
	varTime   = "time"
	varStep   = "step"
	varNumber = "number"
)

var labelVars = []string{varParam, varDate, varTime, varStep, varNumber}

// Write writes msgs to w as an archive file with one record per message.
// All messages must be on the same grid.
func Write(w *os.File, msgs []*fluxprep.Message) error {
	if len(msgs) == 0 {
		return fmt.Errorf("archive: no messages to write")
	}
	ni, nj := msgs[0].Grid()
	for _, m := range msgs {
		if i, j := m.Grid(); i != ni || j != nj {
			return fmt.Errorf("archive: message %v has grid %dx%d but the first message has %dx%d",
				m.Label, i, j, ni, nj)
		}
	}
	h := cdf.NewHeader(
		[]string{dimRecord, dimLat, dimLon},
		[]int{len(msgs), nj, ni})
	h.AddAttribute("", "comment", "accumulated surface fields for flux processing")
	for _, v := range labelVars {
		h.AddVariable(v, []string{dimRecord}, []int32{0})
	}
	h.AddVariable(varValues, []string{dimRecord, dimLat, dimLon}, []float32{0})
	h.AddAttribute(varValues, "description", "accumulated field values")
	h.Define()

	f, err := cdf.Create(w, h) // writes the header to w
	if err != nil {
		return fmt.Errorf("archive: creating file: %v", err)
	}

	labels := make(map[string][]int32)
	for _, m := range msgs {
		labels[varParam] = append(labels[varParam], int32(m.Param))
		labels[varDate] = append(labels[varDate], int32(m.Date))
		labels[varTime] = append(labels[varTime], int32(m.Time))
		labels[varStep] = append(labels[varStep], int32(m.Step))
		labels[varNumber] = append(labels[varNumber], int32(m.Number))
	}
	for _, v := range labelVars {
		if _, err := f.Writer(v, []int{0}, []int{len(msgs)}).Write(labels[v]); err != nil {
			return fmt.Errorf("archive: writing variable %s: %v", v, err)
		}
	}

	data := make([]float32, 0, len(msgs)*ni*nj)
	for _, m := range msgs {
		for _, v := range m.Data.Elements {
			data = append(data, float32(v))
		}
	}
	end := f.Header.Lengths(varValues)
	start := make([]int, len(end))
	if _, err := f.Writer(varValues, start, end).Write(data); err != nil {
		return fmt.Errorf("archive: writing values: %v", err)
	}
	return nil
}
