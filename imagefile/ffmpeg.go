package imagefile

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// decodeWithFFmpeg asks ffmpeg to transcode the first frame of path into a
// PNG on stdout. Used for formats without a Go decoder (tga, psd, jxr).
func decodeWithFFmpeg(path, ffmpegPath string) (image.Image, error) {
	buf := bytes.NewBuffer(nil)

	cmd := ffmpeg.Input(path).
		Output("pipe:", ffmpeg.KwArgs{
			"f":        "image2pipe",
			"vcodec":   "png",
			"frames:v": "1",
			"pix_fmt":  "rgba",
		}).
		WithOutput(buf).
		Silent(true)
	if ffmpegPath != "" {
		cmd = cmd.SetFfmpegPath(ffmpegPath)
	}

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg could not decode %s: %w", path, ErrUnsupported)
	}
	if buf.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg produced no frame for %s: %w", path, ErrUnsupported)
	}

	img, err := png.Decode(buf)
	if err != nil {
		return nil, fmt.Errorf("failed to read ffmpeg output: %w", err)
	}
	return img, nil
}
