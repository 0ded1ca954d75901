package entity

import (
	"errors"
	"fmt"
)

// ErrInvalidTensor is returned when a tensor's shape does not match its data
var ErrInvalidTensor = errors.New("invalid tensor")

// PixelTensor is the numeric image representation fed to the recognition model.
// Data is laid out row-major following Shape (NCHW for images).
type PixelTensor struct {
	Shape []int     `json:"shape"`
	Data  []float32 `json:"-"`
}

// NewPixelTensor allocates a zeroed NCHW tensor for a batch of one image
func NewPixelTensor(channels, height, width int) *PixelTensor {
	return &PixelTensor{
		Shape: []int{1, channels, height, width},
		Data:  make([]float32, channels*height*width),
	}
}

// Len returns the number of elements described by Shape
func (t *PixelTensor) Len() int {
	if len(t.Shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// Validate checks that the tensor is non-empty and that Shape matches Data
func (t *PixelTensor) Validate() error {
	if t == nil || len(t.Shape) == 0 {
		return fmt.Errorf("%w: missing shape", ErrInvalidTensor)
	}
	for i, d := range t.Shape {
		if d <= 0 {
			return fmt.Errorf("%w: dimension %d is %d", ErrInvalidTensor, i, d)
		}
	}
	if want := t.Len(); want != len(t.Data) {
		return fmt.Errorf("%w: shape %v wants %d values, got %d", ErrInvalidTensor, t.Shape, want, len(t.Data))
	}
	return nil
}
