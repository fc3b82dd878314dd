// Package scene holds the vertex and index data recorded into each frame's command buffers.
package scene

import (
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
)

type Vertex struct {
	Position mgl32.Vec2
	Color    mgl32.Vec3
}

// State is the geometry drawn every frame. It is passed by value into each resource rebuild
// rather than captured by the render loop.
type State struct {
	Vertices []Vertex
	Indices  []uint32
}

var (
	Red    = mgl32.Vec3{1, 0, 0}
	Green  = mgl32.Vec3{0, 1, 0}
	Blue   = mgl32.Vec3{0, 0, 1}
	Yellow = mgl32.Vec3{1, 1, 0}
)

// Quad returns a square centered on the origin with sides of length size, one color per corner.
func Quad(size float32) State {
	half := 0.5 * size

	return State{
		Vertices: []Vertex{
			{Position: mgl32.Vec2{-half, half}, Color: Red},
			{Position: mgl32.Vec2{half, half}, Color: Green},
			{Position: mgl32.Vec2{half, -half}, Color: Blue},
			{Position: mgl32.Vec2{-half, -half}, Color: Yellow},
		},
		Indices: []uint32{0, 1, 2, 2, 3, 0},
	}
}

// Validate reports whether the state can be uploaded and drawn.
func (s State) Validate() error {
	if len(s.Vertices) == 0 {
		return errors.New("scene: no vertices")
	}

	if len(s.Indices) == 0 || len(s.Indices)%3 != 0 {
		return errors.Newf("scene: index count %d is not a positive multiple of 3", len(s.Indices))
	}

	for i, index := range s.Indices {
		if int(index) >= len(s.Vertices) {
			return errors.Newf("scene: index %d at position %d out of range for %d vertices", index, i, len(s.Vertices))
		}
	}

	return nil
}

// Bounds returns the minimum and maximum corner of the vertex positions.
func (s State) Bounds() (min, max mgl32.Vec2) {
	if len(s.Vertices) == 0 {
		return mgl32.Vec2{}, mgl32.Vec2{}
	}

	min = s.Vertices[0].Position
	max = s.Vertices[0].Position
	for _, v := range s.Vertices[1:] {
		for axis := 0; axis < 2; axis++ {
			if v.Position[axis] < min[axis] {
				min[axis] = v.Position[axis]
			}
			if v.Position[axis] > max[axis] {
				max[axis] = v.Position[axis]
			}
		}
	}

	return min, max
}

// Center returns the middle of the bounding box.
func (s State) Center() mgl32.Vec2 {
	min, max := s.Bounds()
	return min.Add(max).Mul(0.5)
}

// Translate returns a copy of the state moved by offset.
func (s State) Translate(offset mgl32.Vec2) State {
	out := s.Clone()
	for i := range out.Vertices {
		out.Vertices[i].Position = out.Vertices[i].Position.Add(offset)
	}

	return out
}

// Scale returns a copy of the state scaled about the origin.
func (s State) Scale(factor float32) State {
	out := s.Clone()
	for i := range out.Vertices {
		out.Vertices[i].Position = out.Vertices[i].Position.Mul(factor)
	}

	return out
}

func (s State) Clone() State {
	out := State{
		Vertices: make([]Vertex, len(s.Vertices)),
		Indices:  make([]uint32, len(s.Indices)),
	}
	copy(out.Vertices, s.Vertices)
	copy(out.Indices, s.Indices)

	return out
}
