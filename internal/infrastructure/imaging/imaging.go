// Package imaging decodes uploaded formula images and turns them into the
// normalized pixel tensor expected by vision encoder models.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/formulalab/formula-gateway/internal/domain/entity"
)

var (
	// ErrEmptyImage is returned for zero-length payloads
	ErrEmptyImage = errors.New("empty image payload")

	// ErrUnsupportedImage is returned when the payload cannot be decoded as an image
	ErrUnsupportedImage = errors.New("cannot identify image file")

	// ErrImageTooLarge is returned when the declared dimensions exceed the pixel cap
	ErrImageTooLarge = errors.New("image dimensions too large")
)

// Decode decodes an image in any registered format and returns it with the
// format name. The header is read first and images declaring more than
// maxPixels pixels are rejected without decoding. maxPixels <= 0 disables the cap.
func Decode(data []byte, maxPixels int) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", ErrEmptyImage
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, "", fmt.Errorf("%w: zero-sized image", ErrUnsupportedImage)
	}
	if maxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, "", fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrImageTooLarge, cfg.Width, cfg.Height, maxPixels)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, "", fmt.Errorf("%w: zero-sized image", ErrUnsupportedImage)
	}
	return img, format, nil
}

// ToRGB normalizes any color model (gray, paletted, CMYK, YCbCr, 16-bit,
// alpha) to an opaque RGB image. Transparent areas become white.
func ToRGB(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

// Preprocessor converts RGB images into a [1,3,Size,Size] float32 tensor:
// bilinear resize, rescale to [0,1], then per-channel (x-mean)/std.
type Preprocessor struct {
	Size      int
	Mean      [3]float32
	Std       [3]float32
	// MaxPixels caps decoded image area; 0 means no cap
	MaxPixels int
}

// NewPreprocessor builds a Preprocessor from config-style slices
func NewPreprocessor(size int, mean, std []float64) (*Preprocessor, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid image size %d", size)
	}
	if len(mean) != 3 || len(std) != 3 {
		return nil, fmt.Errorf("mean and std need 3 channels, got %d and %d", len(mean), len(std))
	}
	p := &Preprocessor{Size: size}
	for i := 0; i < 3; i++ {
		if std[i] == 0 {
			return nil, fmt.Errorf("std[%d] is zero", i)
		}
		p.Mean[i] = float32(mean[i])
		p.Std[i] = float32(std[i])
	}
	return p, nil
}

// Process runs the full pipeline on an already decoded image
func (p *Preprocessor) Process(img image.Image) *entity.PixelTensor {
	rgb := ToRGB(img)

	resized := image.NewRGBA(image.Rect(0, 0, p.Size, p.Size))
	xdraw.BiLinear.Scale(resized, resized.Bounds(), rgb, rgb.Bounds(), xdraw.Src, nil)

	tensor := entity.NewPixelTensor(3, p.Size, p.Size)
	plane := p.Size * p.Size
	for y := 0; y < p.Size; y++ {
		row := resized.Pix[y*resized.Stride:]
		for x := 0; x < p.Size; x++ {
			px := row[x*4 : x*4+3]
			idx := y*p.Size + x
			for c := 0; c < 3; c++ {
				v := float32(px[c]) / 255
				tensor.Data[c*plane+idx] = (v - p.Mean[c]) / p.Std[c]
			}
		}
	}
	return tensor
}

// DecodeAndProcess decodes raw bytes and runs Process
func (p *Preprocessor) DecodeAndProcess(data []byte) (*entity.PixelTensor, error) {
	img, _, err := Decode(data, p.MaxPixels)
	if err != nil {
		return nil, err
	}
	return p.Process(img), nil
}
