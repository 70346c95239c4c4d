package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/mediacompose/internal/overlay"
)

func TestDecodeRequestFile_Formats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"toml", "req.toml", "position = \"center\"\nmax_repeats = 2\n"},
		{"yaml", "req.yaml", "position: center\nmax_repeats: 2\n"},
		{"yml", "req.yml", "position: center\nmax_repeats: 2\n"},
		{"json", "req.json", `{"position": "center", "max_repeats": 2}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := overlay.DefaultRequest()
			require.NoError(t, decodeRequestFile(writeFile(t, tt.file, tt.content), &req))

			assert.Equal(t, overlay.Center, req.Position)
			assert.Equal(t, 2, req.MaxRepeats)
			// Absent fields keep their defaults.
			assert.InDelta(t, 10.0, req.StartTime, 1e-9)
			assert.InDelta(t, 0.30, req.ScalePercent, 1e-9)
		})
	}
}

func TestDecodeRequestFile_EmptyYAMLKeepsDefaults(t *testing.T) {
	req := overlay.DefaultRequest()
	require.NoError(t, decodeRequestFile(writeFile(t, "empty.yaml", ""), &req))
	assert.Equal(t, overlay.DefaultRequest(), req)
}

func TestDecodeRequestFile_Errors(t *testing.T) {
	req := overlay.DefaultRequest()

	err := decodeRequestFile(writeFile(t, "req.ini", "position=center"), &req)
	assert.ErrorIs(t, err, errUnknownFormat)

	err = decodeRequestFile(writeFile(t, "req.toml", "colour = \"red\"\n"), &req)
	assert.Error(t, err)

	err = decodeRequestFile(writeFile(t, "req.json", `{"colour": "red"}`), &req)
	assert.Error(t, err)

	err = decodeRequestFile(writeFile(t, "req.yaml", "colour: red\n"), &req)
	assert.Error(t, err)

	err = decodeRequestFile("/does/not/exist.toml", &req)
	assert.ErrorContains(t, err, "open request file")
}

func TestRenderTable(t *testing.T) {
	out := renderTable([]string{"File", "Duration"}, [][]string{{"a.mp4", "1.00s"}, {"b.mp4"}}, []columnAlignment{alignLeft, alignRight})

	assert.Contains(t, out, "FILE")
	assert.Contains(t, out, "a.mp4")
	assert.Contains(t, out, "1.00s")
	assert.Empty(t, renderTable(nil, nil, nil))
}
