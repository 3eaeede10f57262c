// Package imagefile decodes overlay images into premultiplied RGBA frames.
//
// Still images go through image.Decode with the stdlib and x/image codecs
// registered; GIFs are fully composited into one RGBA frame per animation
// step; anything Go cannot decode is handed to ffmpeg and read back as PNG.
package imagefile

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	// Blank imports for image decoders so image.Decode can handle them.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrUnsupported is returned when neither Go nor ffmpeg can decode a file.
var ErrUnsupported = errors.New("unsupported image format")

// AlphaMode selects how straight alpha is premultiplied.
type AlphaMode int

const (
	// AlphaPremultiply multiplies the encoded (gamma) values by alpha.
	AlphaPremultiply AlphaMode = iota
	// AlphaPremultiplySRGB linearizes, multiplies by alpha, and re-encodes.
	AlphaPremultiplySRGB
)

func (m AlphaMode) String() string {
	if m == AlphaPremultiplySRGB {
		return "premultiply-srgb"
	}
	return "premultiply"
}

// defaultDelay is used for frames that declare no delay.
const defaultDelay = 100 * time.Millisecond

// Image is a decoded overlay image.
type Image struct {
	Path   string
	Format string
	Mode   AlphaMode
	Width  int
	Height int

	// Frames holds fully composited, premultiplied frames. Stills have one.
	Frames []*image.RGBA
	// Delays holds the display time of each frame.
	Delays []time.Duration
	// Loops is the number of times the animation plays; 0 plays forever.
	Loops int
}

// Animated reports whether the image has more than one frame.
func (img *Image) Animated() bool {
	return img != nil && len(img.Frames) > 1
}

// MemoryUsage returns the number of bytes held by the decoded frames.
func (img *Image) MemoryUsage() uint64 {
	if img == nil {
		return 0
	}
	var n uint64
	for _, f := range img.Frames {
		n += uint64(len(f.Pix))
	}
	return n
}

// Options tune the decoder.
type Options struct {
	// FFmpegPath overrides the ffmpeg binary used for the fallback decoder.
	FFmpegPath string
	// DisableFFmpeg turns the fallback off.
	DisableFFmpeg bool
}

// Decode reads path and returns its premultiplied frames. A missing file
// yields an error satisfying errors.Is(err, fs.ErrNotExist).
func Decode(path string, mode AlphaMode, opts *Options) (*Image, error) {
	if opts == nil {
		opts = &Options{}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	if isGIF(path, r) {
		img, err := decodeGIF(r)
		if err != nil {
			return nil, fmt.Errorf("failed to decode gif %s: %w", path, err)
		}
		img.Path = path
		img.Mode = mode
		return img, nil
	}

	src, format, err := image.Decode(r)
	if errors.Is(err, image.ErrFormat) && !opts.DisableFFmpeg {
		src, err = decodeWithFFmpeg(path, opts.FFmpegPath)
		format = "ffmpeg"
	}
	if errors.Is(err, image.ErrFormat) {
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupported)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}

	rgba := Premultiply(src, mode)
	size := rgba.Rect.Size()
	return &Image{
		Path:   path,
		Format: format,
		Mode:   mode,
		Width:  size.X,
		Height: size.Y,
		Frames: []*image.RGBA{rgba},
		Delays: []time.Duration{0},
	}, nil
}

// isGIF sniffs the magic bytes, falling back to the extension.
func isGIF(path string, r *bufio.Reader) bool {
	magic, err := r.Peek(6)
	if err == nil {
		s := string(magic)
		return s == "GIF87a" || s == "GIF89a"
	}
	return strings.EqualFold(filepath.Ext(path), ".gif")
}

// decodeGIF composites every frame onto a canvas honouring the disposal
// methods. GIF alpha is binary, so both alpha modes produce the same pixels.
func decodeGIF(r io.Reader) (*Image, error) {
	g, err := gif.DecodeAll(r)
	if err != nil {
		return nil, err
	}
	if len(g.Image) == 0 {
		return nil, fmt.Errorf("gif has no frames")
	}

	bounds := image.Rect(0, 0, g.Config.Width, g.Config.Height)
	if bounds.Empty() {
		bounds = g.Image[0].Bounds()
	}
	canvas := image.NewRGBA(bounds)

	img := &Image{
		Format: "gif",
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Frames: make([]*image.RGBA, 0, len(g.Image)),
		Delays: make([]time.Duration, 0, len(g.Image)),
		Loops:  gifLoops(g.LoopCount),
	}

	for i, frame := range g.Image {
		var disposal byte
		if i < len(g.Disposal) {
			disposal = g.Disposal[i]
		}

		var previous *image.RGBA
		if disposal == gif.DisposalPrevious {
			previous = cloneRGBA(canvas)
		}

		draw.Draw(canvas, frame.Bounds(), frame, frame.Bounds().Min, draw.Over)
		img.Frames = append(img.Frames, cloneRGBA(canvas))

		delay := defaultDelay
		if i < len(g.Delay) && g.Delay[i] > 0 {
			delay = time.Duration(g.Delay[i]) * 10 * time.Millisecond
		}
		img.Delays = append(img.Delays, delay)

		switch disposal {
		case gif.DisposalBackground:
			draw.Draw(canvas, frame.Bounds(), image.Transparent, image.Point{}, draw.Src)
		case gif.DisposalPrevious:
			canvas = previous
		}
	}

	return img, nil
}

// gifLoops converts image/gif's LoopCount into a number of plays.
func gifLoops(loopCount int) int {
	switch {
	case loopCount == 0:
		return 0
	case loopCount < 0:
		return 1
	default:
		return loopCount + 1
	}
}

func cloneRGBA(src *image.RGBA) *image.RGBA {
	dst := image.NewRGBA(src.Rect)
	copy(dst.Pix, src.Pix)
	return dst
}
