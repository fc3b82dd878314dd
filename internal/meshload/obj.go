// Package meshload builds a scene from a Wavefront OBJ file.
package meshload

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/g3n/engine/loader/obj"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/quad/internal/scene"
)

var palette = []mgl32.Vec3{scene.Red, scene.Green, scene.Blue, scene.Yellow}

// LoadFile decodes the OBJ at path, together with the material library next to it if one
// exists, and fits the result into a square of side size centered on the origin.
func LoadFile(path string, size float32) (scene.State, error) {
	meshFile, err := os.Open(path)
	if err != nil {
		return scene.State{}, errors.Wrap(err, "open mesh")
	}
	defer meshFile.Close()

	var matReader io.Reader = strings.NewReader("")
	matPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".mtl"
	matFile, err := os.Open(matPath)
	if err == nil {
		defer matFile.Close()
		matReader = matFile
	}

	state, err := Decode(meshFile, matReader)
	if err != nil {
		return scene.State{}, errors.Wrapf(err, "decode %s", path)
	}

	return Fit(state, size), nil
}

// Decode flattens every object in the OBJ stream into one indexed triangle list. Faces with more
// than three vertices are fanned into triangles. Z is dropped.
func Decode(meshReader, matReader io.Reader) (scene.State, error) {
	decoder, err := obj.DecodeReader(meshReader, matReader)
	if err != nil {
		return scene.State{}, err
	}

	var state scene.State
	uniqueVertices := make(map[int]uint32)

	addVertex := func(face obj.Face, faceIndex int) {
		vertInd := face.Vertices[faceIndex]
		index, exists := uniqueVertices[vertInd]

		if !exists {
			index = uint32(len(state.Vertices))
			state.Vertices = append(state.Vertices, scene.Vertex{
				Position: mgl32.Vec2{
					decoder.Vertices[vertInd*3],
					decoder.Vertices[vertInd*3+1],
				},
				Color: palette[int(index)%len(palette)],
			})
			uniqueVertices[vertInd] = index
		}

		state.Indices = append(state.Indices, index)
	}

	for _, decodedObj := range decoder.Objects {
		for _, face := range decodedObj.Faces {
			for i := 2; i < len(face.Vertices); i++ {
				addVertex(face, 0)
				addVertex(face, i-1)
				addVertex(face, i)
			}
		}
	}

	err = state.Validate()
	if err != nil {
		return scene.State{}, err
	}

	return state, nil
}

// Fit centers the state on the origin and scales its larger side to size.
func Fit(state scene.State, size float32) scene.State {
	centered := state.Translate(state.Center().Mul(-1))

	min, max := centered.Bounds()
	span := max.Sub(min)
	largest := span.X()
	if span.Y() > largest {
		largest = span.Y()
	}

	if largest == 0 {
		return centered
	}

	return centered.Scale(size / largest)
}
