package encoder

import (
	"path/filepath"
	"testing"
	"time"
)

func TestNewFFmpegEncoderValidates(t *testing.T) {
	if _, err := NewFFmpegEncoder(Options{Width: 2, Height: 2}, nil); err == nil {
		t.Errorf("expected an error without an output file")
	}
	if _, err := NewFFmpegEncoder(Options{OutputFile: "out.mp4"}, nil); err == nil {
		t.Errorf("expected an error for a zero frame size")
	}
	e, err := NewFFmpegEncoder(Options{OutputFile: "out.mp4", Width: 4, Height: 2}, nil)
	if err != nil {
		t.Fatalf("NewFFmpegEncoder() failed: %v", err)
	}
	if e.opts.FPS != 60 || e.frameSize != 32 {
		t.Errorf("unexpected defaults: fps=%d frameSize=%d", e.opts.FPS, e.frameSize)
	}
}

func TestInputArgs(t *testing.T) {
	args := InputArgs(Options{Width: 640, Height: 480, FPS: 30})
	if args["f"] != "rawvideo" || args["pix_fmt"] != "rgba" {
		t.Errorf("unexpected input format %v", args)
	}
	if args["s"] != "640x480" || args["r"] != 30 {
		t.Errorf("unexpected geometry %v", args)
	}
}

func TestOutputArgs(t *testing.T) {
	tests := []struct {
		name  string
		opts  Options
		goos  string
		codec string
		tag   bool
	}{
		{"linux h264", Options{OutputFile: "a.mp4"}, "linux", "libx264", false},
		{"linux hevc mp4", Options{OutputFile: "a.mp4", Codec: "hevc"}, "linux", "libx265", true},
		{"linux hevc mkv", Options{OutputFile: "a.mkv", Codec: "hevc"}, "linux", "libx265", false},
		{"darwin h264", Options{OutputFile: "a.mov"}, "darwin", "h264_videotoolbox", false},
		{"darwin hevc", Options{OutputFile: "a.mp4", Codec: "hevc"}, "darwin", "hevc_videotoolbox", true},
		{"darwin software", Options{OutputFile: "a.mp4", Software: true}, "darwin", "libx264", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := OutputArgs(tt.opts, tt.goos)
			if args["c:v"] != tt.codec {
				t.Errorf("codec = %v, wanted %s", args["c:v"], tt.codec)
			}
			if _, ok := args["tag:v"]; ok != tt.tag {
				t.Errorf("tag:v present = %v, wanted %v", ok, tt.tag)
			}
		})
	}
}

func TestCloseReturnsWhenFFmpegIsMissing(t *testing.T) {
	e, err := NewFFmpegEncoder(Options{
		OutputFile: filepath.Join(t.TempDir(), "out.mp4"),
		Width:      4,
		Height:     2,
		FFmpegPath: filepath.Join(t.TempDir(), "no-such-ffmpeg"),
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	go e.Run()

	done := make(chan error, 1)
	go func() {
		for i := 0; i < 20; i++ {
			e.SendVideo(&Frame{Pixels: make([]byte, 32), PTS: int64(i)})
		}
		done <- e.Close()
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Error("Close() reported success without ffmpeg")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("SendVideo/Close blocked after ffmpeg failed to start")
	}
}
