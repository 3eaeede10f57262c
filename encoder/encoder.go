// Package encoder turns rendered overlay frames into a video file by piping
// raw RGBA frames through an ffmpeg process.
package encoder

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// Frame is a single rendered frame, tightly packed RGBA.
type Frame struct {
	Pixels []byte
	PTS    int64
}

// Options describe the output video.
type Options struct {
	OutputFile string
	Width      int
	Height     int
	FPS        int
	Codec      string // h264 or hevc
	FFmpegPath string
	// Software disables the platform hardware encoders.
	Software   bool
}

// FFmpegEncoder consumes frames on Run and writes them to ffmpeg's stdin.
type FFmpegEncoder struct {
	opts        Options
	logger      *slog.Logger
	frameSize   int
	videoFrames chan *Frame
	done        chan error

	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter
	cmd        *ffmpeg.Stream
}

// NewFFmpegEncoder validates opts and prepares the ffmpeg command. Frames are
// accepted once Run is started.
func NewFFmpegEncoder(opts Options, logger *slog.Logger) (*FFmpegEncoder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.OutputFile == "" {
		return nil, errors.New("no output file")
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", opts.Width, opts.Height)
	}
	if opts.FPS <= 0 {
		opts.FPS = 60
	}

	e := &FFmpegEncoder{
		opts:        opts,
		logger:      logger,
		frameSize:   opts.Width * opts.Height * 4,
		videoFrames: make(chan *Frame, 5),
		done:        make(chan error, 1),
	}
	e.pipeReader, e.pipeWriter = io.Pipe()

	e.cmd = ffmpeg.Input("pipe:", InputArgs(opts)).
		Output(opts.OutputFile, OutputArgs(opts, runtime.GOOS)).
		OverWriteOutput().
		WithInput(e.pipeReader).
		Silent(true)
	if opts.FFmpegPath != "" {
		e.cmd = e.cmd.SetFfmpegPath(opts.FFmpegPath)
	}
	return e, nil
}

// InputArgs describes the raw frames written to ffmpeg.
func InputArgs(opts Options) ffmpeg.KwArgs {
	return ffmpeg.KwArgs{
		"f":       "rawvideo",
		"pix_fmt": "rgba",
		"s":       fmt.Sprintf("%dx%d", opts.Width, opts.Height),
		"r":       opts.FPS,
	}
}

// OutputArgs picks the encoder for goos.
func OutputArgs(opts Options, goos string) ffmpeg.KwArgs {
	hevc := opts.Codec == "hevc"
	args := ffmpeg.KwArgs{
		"pix_fmt": "yuv420p",
		"b:v":     "25M",
	}

	switch {
	case goos == "darwin" && !opts.Software:
		if hevc {
			args["c:v"] = "hevc_videotoolbox"
		} else {
			args["c:v"] = "h264_videotoolbox"
		}
	case hevc:
		args["c:v"] = "libx265"
	default:
		args["c:v"] = "libx264"
		args["preset"] = "veryfast"
	}

	if hevc && strings.HasSuffix(opts.OutputFile, ".mp4") {
		args["tag:v"] = "hvc1"
	}
	return args
}

// Run starts ffmpeg and writes frames until Close. It must be started on its
// own goroutine.
func (e *FFmpegEncoder) Run() {
	errc := make(chan error, 1)
	go func() {
		err := e.cmd.Run()
		// pending writes fail once ffmpeg has exited
		if err != nil {
			e.pipeReader.CloseWithError(err)
		} else {
			e.pipeReader.CloseWithError(io.ErrClosedPipe)
		}
		errc <- err
	}()

	var writeErr error
	written := 0
	for frame := range e.videoFrames {
		if writeErr != nil {
			continue
		}
		if len(frame.Pixels) != e.frameSize {
			e.logger.Warn("dropping frame with wrong size", "pts", frame.PTS, "bytes", len(frame.Pixels))
			continue
		}
		if _, err := e.pipeWriter.Write(frame.Pixels); err != nil {
			writeErr = fmt.Errorf("failed to write frame %d to ffmpeg: %w", frame.PTS, err)
			continue
		}
		written++
	}
	e.pipeWriter.Close()

	runErr := <-errc
	if runErr != nil {
		runErr = fmt.Errorf("ffmpeg failed: %w", runErr)
	}
	e.logger.Info("encoder finished", "file", e.opts.OutputFile, "frames", written)
	e.done <- errors.Join(writeErr, runErr)
}

// SendVideo queues a frame, blocking while the encoder is behind.
func (e *FFmpegEncoder) SendVideo(frame *Frame) {
	e.videoFrames <- frame
}

// Close flushes queued frames and waits for ffmpeg to exit.
func (e *FFmpegEncoder) Close() error {
	close(e.videoFrames)
	return <-e.done
}
