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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheCacophonyProject/pantilt-tracker/geometry"
)

func TestReadHeaderInfo(t *testing.T) {
	reader := bufio.NewReader(strings.NewReader(
		"ResX: 640\n" +
			"ResY: 480\n" +
			"FPS: 30\n" +
			"Brand: Intel\n" +
			"Model: D435\n" +
			"Serial: 123456\n" +
			"FX: 615.5\n" +
			"FY: 615\n" +
			"PPX: 321.25\n" +
			"PPY: 239.75\n" +
			"\n" +
			`{"frame":1}` + "\n"))

	h, err := ReadHeaderInfo(reader)
	require.NoError(t, err)
	assert.Equal(t, 640, h.ResX())
	assert.Equal(t, 480, h.ResY())
	assert.Equal(t, 30, h.FPS())
	assert.Equal(t, "Intel", h.Brand())
	assert.Equal(t, "D435", h.Model())
	assert.Equal(t, "123456", h.Serial())
	assert.Equal(t, geometry.Intrinsics{
		Width: 640, Height: 480,
		Fx: 615.5, Fy: 615,
		Ppx: 321.25, Ppy: 239.75,
	}, h.Intrinsics())

	// The reader is left at the first frame.
	rest, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "{\"frame\":1}\n", rest)
}

func TestMissingFieldsAreZero(t *testing.T) {
	h, err := ReadHeaderInfo(bufio.NewReader(strings.NewReader("Model: test\n\n")))
	require.NoError(t, err)
	assert.Equal(t, "test", h.Model())
	assert.Equal(t, 0, h.ResX())
	assert.Error(t, h.Intrinsics().Validate())
}

func TestTruncatedHeader(t *testing.T) {
	_, err := ReadHeaderInfo(bufio.NewReader(strings.NewReader("ResX: 640\n")))
	assert.Error(t, err)
}
