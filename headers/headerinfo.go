// pantilt-tracker - point pan/tilt units at faces seen by a depth camera
//  Copyright (C) 2024, The Cacophony Project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package headers

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"

	"gopkg.in/yaml.v1"

	"github.com/TheCacophonyProject/pantilt-tracker/geometry"
)

// Header keys sent by the camera front end.
const (
	XResolution = "ResX"
	YResolution = "ResY"
	FPS         = "FPS"
	Brand       = "Brand"
	Model       = "Model"
	Serial      = "Serial"
	FocalX      = "FX"
	FocalY      = "FY"
	PrincipalX  = "PPX"
	PrincipalY  = "PPY"
)

// HeaderInfo contains the camera description fields sent once at the
// start of each front end connection.
type HeaderInfo struct {
	resX   int
	resY   int
	fps    int
	brand  string
	model  string
	serial string
	fx     float64
	fy     float64
	ppx    float64
	ppy    float64
}

func (h *HeaderInfo) ResX() int {
	return h.resX
}

func (h *HeaderInfo) ResY() int {
	return h.resY
}

func (h *HeaderInfo) FPS() int {
	return h.fps
}

// Model returns the camera model.
func (h *HeaderInfo) Model() string {
	return h.model
}

// Brand returns the camera brand.
func (h *HeaderInfo) Brand() string {
	return h.brand
}

func (h *HeaderInfo) Serial() string {
	return h.serial
}

// Intrinsics returns the pinhole parameters of the color stream.
func (h *HeaderInfo) Intrinsics() geometry.Intrinsics {
	return geometry.Intrinsics{
		Width:  h.resX,
		Height: h.resY,
		Fx:     h.fx,
		Fy:     h.fy,
		Ppx:    h.ppx,
		Ppy:    h.ppy,
	}
}

// ReadHeaderInfo reads YAML lines up to the first blank line.
func ReadHeaderInfo(reader *bufio.Reader) (*HeaderInfo, error) {
	var buf bytes.Buffer
	for {
		line, err := reader.ReadString(byte('\n'))
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(line) == "" {
			break
		}
		buf.WriteString(line)
	}
	h := make(map[string]interface{})
	err := yaml.Unmarshal(buf.Bytes(), &h)
	if err != nil {
		return nil, err
	}

	return &HeaderInfo{
		resX:   toInt(h[XResolution]),
		resY:   toInt(h[YResolution]),
		fps:    toInt(h[FPS]),
		brand:  toStr(h[Brand]),
		model:  toStr(h[Model]),
		serial: toStr(h[Serial]),
		fx:     toFloat(h[FocalX]),
		fy:     toFloat(h[FocalY]),
		ppx:    toFloat(h[PrincipalX]),
		ppy:    toFloat(h[PrincipalY]),
	}, nil
}

func toInt(v interface{}) int {
	out, ok := v.(int)
	if !ok {
		return 0
	}
	return out
}

func toFloat(v interface{}) float64 {
	switch out := v.(type) {
	case float64:
		return out
	case int:
		return float64(out)
	}
	return 0
}

func toStr(v interface{}) string {
	switch out := v.(type) {
	case string:
		return out
	case int:
		// Serial numbers are often all digits.
		return strconv.Itoa(out)
	}
	return ""
}
