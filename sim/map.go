// Package sim provides SLAM simulation support: landmark world maps, ground
// truth trajectory stepping and noisy measurement synthesis for driving and
// validating the filter.
package sim

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	slam "github.com/milosgajdos/go-slam"
)

// Feature is a ground truth landmark in the simulated world.
type Feature struct {
	// ID is the ground truth feature identifier
	ID int
	// X, Y, Z is the feature position in the world frame
	X, Y, Z float64
}

// Position returns the feature position as a vector.
func (f Feature) Position() mat.Vector {
	return mat.NewVecDense(slam.LandmarkDim, []float64{f.X, f.Y, f.Z})
}

// Map is a collection of ground truth features.
type Map struct {
	// Features are the world landmarks
	Features []Feature
}

// NewRandomMap creates a map with n features placed uniformly at random on
// the ground plane of a dimX x dimY world.
// It returns error if n is negative or the dimensions are not positive.
func NewRandomMap(n int, dimX, dimY float64, seed uint64) (*Map, error) {
	if n < 0 || dimX <= 0 || dimY <= 0 {
		return nil, fmt.Errorf("invalid map parameters: %d features, %f x %f", n, dimX, dimY)
	}

	rng := rand.New(rand.NewSource(seed))

	m := &Map{}
	for i := 0; i < n; i++ {
		m.Features = append(m.Features, Feature{
			ID: i,
			X:  rng.Float64() * dimX,
			Y:  rng.Float64() * dimY,
		})
	}

	return m, nil
}

// NewBoxMap creates a map with n features scattered along the four walls of
// a dimX x dimY box, n rounded to a multiple of four.
// It returns error if n is negative or the dimensions are not positive.
func NewBoxMap(n int, dimX, dimY float64, seed uint64) (*Map, error) {
	if n < 0 || dimX <= 0 || dimY <= 0 {
		return nil, fmt.Errorf("invalid map parameters: %d features, %f x %f", n, dimX, dimY)
	}

	rng := rand.New(rand.NewSource(seed))
	perWall := n / 4

	m := &Map{}
	add := func(x, y float64) {
		m.Features = append(m.Features, Feature{ID: len(m.Features), X: x, Y: y})
	}

	for i := 0; i < perWall; i++ {
		add(rng.Float64()*dimX, 0)
	}
	for i := 0; i < perWall; i++ {
		add(dimX, rng.Float64()*dimY)
	}
	for i := 0; i < perWall; i++ {
		add(rng.Float64()*dimX, dimY)
	}
	for i := 0; i < perWall; i++ {
		add(0, rng.Float64()*dimY)
	}

	return m, nil
}
