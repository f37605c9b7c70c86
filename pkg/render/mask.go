package render

import (
	"image"
	"image/png"
	"os"

	"github.com/dropstage/dropstage/pkg/errors"
)

// ============================================================================
// MASK FILE READING
// ============================================================================

// ReadMaskIDs decodes a combined ID-mask image and returns the set of
// distinct nonzero object indices present in it. The mask is expected to be
// 16-bit grayscale with one index per object, but any grayscale depth is
// accepted; 8-bit pixels are read as-is.
func ReadMaskIDs(path string) (map[int]bool, error) {
	img, err := readPNG(path)
	if err != nil {
		return nil, err
	}
	ids := make(map[int]bool)
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if id := pixelID(img, x, y); id != 0 {
				ids[id] = true
			}
		}
	}
	return ids, nil
}

// CountMaskPixels returns the number of nonzero pixels in a mask image.
// Used against per-object solo masks, where every covered pixel is lit.
func CountMaskPixels(path string) (int, error) {
	img, err := readPNG(path)
	if err != nil {
		return 0, err
	}
	return countPixels(img, func(id int) bool { return id != 0 }), nil
}

// CountMaskPixelsWithID returns the number of pixels carrying a specific
// object index. Used against the combined mask to measure how much of an
// object survived occlusion.
func CountMaskPixelsWithID(path string, id int) (int, error) {
	img, err := readPNG(path)
	if err != nil {
		return 0, err
	}
	return countPixels(img, func(p int) bool { return p == id }), nil
}

func readPNG(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.ErrCodeRenderFatal, "mask file %s was not produced", path)
		}
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "failed to open mask file %s", path)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeRenderFatal, err, "failed to decode mask file %s", path)
	}
	return img, nil
}

// pixelID extracts the object index from a mask pixel. Gray16 images carry
// the index directly; anything else is read through the 16-bit color model
// and scaled back to an 8-bit index.
func pixelID(img image.Image, x, y int) int {
	if g16, ok := img.(*image.Gray16); ok {
		return int(g16.Gray16At(x, y).Y)
	}
	r, _, _, _ := img.At(x, y).RGBA()
	return int(r >> 8)
}

func countPixels(img image.Image, match func(int) bool) int {
	count := 0
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if match(pixelID(img, x, y)) {
				count++
			}
		}
	}
	return count
}

// Obstruction computes how obstructed an object is given its solo pixel
// count and its surviving pixel count in the combined mask. Returns a value
// in [0, 1] where 0 means fully visible.
func Obstruction(soloPixels, combinedPixels int) float64 {
	if soloPixels <= 0 {
		return 1.0
	}
	ratio := 1.0 - float64(combinedPixels)/float64(soloPixels)
	if ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1
	}
	return ratio
}
