package perturb

import (
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"
)

// classifierInputSize is the fixed spatial resolution the surrogate
// classifier expects, matching the input size of common image classifiers.
const classifierInputSize = 224

// channelMean and channelStd are the standard ImageNet per-channel
// normalisation constants (§4.B).
var (
	channelMean = [numChannels]float64{0.485, 0.456, 0.406}
	channelStd  = [numChannels]float64{0.229, 0.224, 0.225}
)

func maxStd() float64 {
	m := channelStd[0]
	for _, s := range channelStd[1:] {
		if s > m {
			m = s
		}
	}
	return m
}

// tensor holds a normalised [channel][row][col] float64 image, always sized
// classifierInputSize x classifierInputSize.
type tensor struct {
	data [numChannels][][]float64
}

func newTensor() *tensor {
	t := &tensor{}
	for c := 0; c < numChannels; c++ {
		rows := make([][]float64, classifierInputSize)
		for r := range rows {
			rows[r] = make([]float64, classifierInputSize)
		}
		t.data[c] = rows
	}
	return t
}

// downsampleNormalize bicubic-resizes img to 224x224 and normalises it into
// the [0,1]-then-(x-mean)/std space the classifier operates in.
func downsampleNormalize(img image.Image) *tensor {
	resized := image.NewRGBA(image.Rect(0, 0, classifierInputSize, classifierInputSize))
	xdraw.CatmullRom.Scale(resized, resized.Bounds(), img, img.Bounds(), xdraw.Src, nil)

	t := newTensor()
	for y := 0; y < classifierInputSize; y++ {
		for x := 0; x < classifierInputSize; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			raw := [numChannels]float64{float64(r>>8) / 255, float64(g>>8) / 255, float64(b>>8) / 255}
			for c := 0; c < numChannels; c++ {
				t.data[c][y][x] = (raw[c] - channelMean[c]) / channelStd[c]
			}
		}
	}
	return t
}

// pool average-pools a tensor down to poolGrid x poolGrid x numChannels and
// flattens it in channel-major order, matching classifier.forward's layout.
func (t *tensor) pool() []float64 {
	cell := classifierInputSize / poolGrid
	out := make([]float64, 0, poolGrid*poolGrid*numChannels)
	for c := 0; c < numChannels; c++ {
		for py := 0; py < poolGrid; py++ {
			for px := 0; px < poolGrid; px++ {
				var sum float64
				for dy := 0; dy < cell; dy++ {
					for dx := 0; dx < cell; dx++ {
						sum += t.data[c][py*cell+dy][px*cell+dx]
					}
				}
				out = append(out, sum/float64(cell*cell))
			}
		}
	}
	return out
}

// unpool distributes a pooled-space gradient back out to the full
// classifierInputSize x classifierInputSize resolution, since average
// pooling's backward pass is a uniform broadcast scaled by 1/poolArea.
func unpool(grad []float64) *tensor {
	cell := classifierInputSize / poolGrid
	t := newTensor()
	idx := 0
	for c := 0; c < numChannels; c++ {
		for py := 0; py < poolGrid; py++ {
			for px := 0; px < poolGrid; px++ {
				v := grad[idx] / float64(cell*cell)
				idx++
				for dy := 0; dy < cell; dy++ {
					for dx := 0; dx < cell; dx++ {
						t.data[c][py*cell+dy][px*cell+dx] = v
					}
				}
			}
		}
	}
	return t
}

// signImage renders the sign of a tensor as an RGBA image at
// classifierInputSize resolution, so it can be bilinear-upsampled back to
// the original frame's resolution with golang.org/x/image/draw.
func (t *tensor) signImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, classifierInputSize, classifierInputSize))
	for y := 0; y < classifierInputSize; y++ {
		for x := 0; x < classifierInputSize; x++ {
			var px color.RGBA
			px.A = 255
			channels := [numChannels]*uint8{&px.R, &px.G, &px.B}
			for c := 0; c < numChannels; c++ {
				v := t.data[c][y][x]
				switch {
				case v > 0:
					*channels[c] = 255
				case v < 0:
					*channels[c] = 0
				default:
					*channels[c] = 128
				}
			}
			img.SetRGBA(x, y, px)
		}
	}
	return img
}
