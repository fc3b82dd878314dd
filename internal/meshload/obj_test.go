package meshload

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

const squareOBJ = `o square
v 0.0 0.0 0.0
v 2.0 0.0 0.0
v 2.0 2.0 0.0
v 0.0 2.0 0.0
f 1 2 3 4
`

func TestDecodeFansFaces(t *testing.T) {
	state, err := Decode(strings.NewReader(squareOBJ), strings.NewReader(""))
	require.NoError(t, err)

	require.Len(t, state.Vertices, 4)
	require.Equal(t, []uint32{0, 1, 2, 0, 2, 3}, state.Indices)
	require.Equal(t, mgl32.Vec2{2, 2}, state.Vertices[2].Position)
}

func TestDecodeWithoutFaces(t *testing.T) {
	_, err := Decode(strings.NewReader("o empty\nv 0 0 0\n"), strings.NewReader(""))
	require.Error(t, err)
}

func TestLoadFileFits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "square.obj")
	require.NoError(t, os.WriteFile(path, []byte(squareOBJ), 0o644))

	state, err := LoadFile(path, 0.5)
	require.NoError(t, err)

	min, max := state.Bounds()
	require.InDelta(t, -0.25, min.X(), 1e-6)
	require.InDelta(t, -0.25, min.Y(), 1e-6)
	require.InDelta(t, 0.25, max.X(), 1e-6)
	require.InDelta(t, 0.25, max.Y(), 1e-6)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.obj"), 1)
	require.Error(t, err)
}
