package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image/color"
	"image/png"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"time"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/richinsley/goshadergaze/encoder"
	"github.com/richinsley/goshadergaze/gaze"
	"github.com/richinsley/goshadergaze/glfwcontext"
	"github.com/richinsley/goshadergaze/graphics"
	"github.com/richinsley/goshadergaze/headless"
	"github.com/richinsley/goshadergaze/options"
	"github.com/richinsley/goshadergaze/renderer"
	"github.com/richinsley/goshadergaze/source"
	"github.com/richinsley/goshadergaze/tobii"
)

func init() {
	runtime.LockOSThread()
}

func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func main() {
	opts := options.RegisterViewerFlags(flag.CommandLine)
	flag.Parse()

	if *opts.Help {
		fmt.Println("Gaze overlay viewer")
		flag.PrintDefaults()
		return
	}

	logger := newLogger(*opts.Debug)
	slog.SetDefault(logger)

	settings, err := opts.Settings(flag.CommandLine)
	if err != nil {
		log.Fatalf("Error loading settings: %v", err)
	}
	if settings.File == "" {
		log.Printf("No image configured; only the gaze backend will run")
	}

	if *opts.Headless {
		if err := runHeadless(opts, settings, logger); err != nil {
			log.Fatalf("Headless run failed: %v", err)
		}
		return
	}
	if err := runWindowed(settings, logger); err != nil {
		log.Fatalf("Viewer failed: %v", err)
	}
}

// deviceFactory prefers tracker hardware and falls back to fallback.
func deviceFactory(fallback gaze.DeviceAPIFactory) gaze.DeviceAPIFactory {
	if tobii.Available {
		return tobii.Factory()
	}
	return fallback
}

func runWindowed(settings *options.Settings, logger *slog.Logger) error {
	if err := glfwcontext.InitGraphics(); err != nil {
		return fmt.Errorf("failed to initialize graphics: %w", err)
	}
	defer glfwcontext.TerminateGraphics()

	r, err := renderer.NewRenderer(settings.Width, settings.Height, true)
	if err != nil {
		return err
	}
	defer r.Shutdown()

	host := newViewerHost(logger)
	src := source.New(host, r.Device(), *settings,
		source.WithName("viewer"),
		source.WithLogger(logger),
		source.WithGazeOptions(gaze.WithDeviceAPI(deviceFactory(glfwcontext.CursorTracker(r.Context())))),
	)
	defer src.Destroy()

	ctx := r.Context()
	ctx.RegisterKeyCallback(glfw.KeyH, func() {
		if host.toggle() {
			log.Printf("Source shown")
			src.Show()
		} else {
			log.Printf("Source hidden")
			src.Hide()
		}
	})
	ctx.RegisterKeyCallback(glfw.KeyA, func() {
		log.Printf("Restarting animation")
		src.Activate()
	})
	ctx.RegisterKeyCallback(glfw.KeyQ, ctx.Close)
	ctx.RegisterDropCallback(func(paths []string) {
		if len(paths) == 0 {
			return
		}
		if missing, repair := host.takeRepair(); repair != nil {
			log.Printf("Replacing %s with %s", missing, paths[0])
			repair(paths[0])
			return
		}
		s := src.Settings()
		s.File = paths[0]
		src.Update(s)
	})

	log.Println("Starting interactive render loop (H hide/show, A restart, Q quit)...")
	r.Run(func(now, delta float64) {
		host.frameTime.Store(uint64(now * float64(time.Second)))
		src.Tick(delta)
	}, func() {
		src.Render()
	})
	return nil
}

// runHeadless renders -frames frames in real time to a software framebuffer,
// optionally encoding them and saving the last one.
func runHeadless(opts *options.ViewerOptions, settings *options.Settings, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fps := *opts.FPS
	if fps <= 0 {
		fps = 60
	}
	frameDuration := time.Second / time.Duration(fps)

	dev := headless.NewDevice()
	dev.AttachFramebuffer(settings.Width, settings.Height)

	host := newViewerHost(logger)
	src := source.New(host, dev, *settings,
		source.WithName("headless"),
		source.WithLogger(logger),
		source.WithGazeOptions(gaze.WithDeviceAPI(tobii.Factory())),
	)
	defer src.Destroy()

	var enc *encoder.FFmpegEncoder
	if *opts.OutputFile != "" {
		var err error
		enc, err = encoder.NewFFmpegEncoder(encoder.Options{
			OutputFile: *opts.OutputFile,
			Width:      settings.Width,
			Height:     settings.Height,
			FPS:        fps,
			Codec:      *opts.Codec,
			FFmpegPath: settings.FFmpegPath,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to create encoder: %w", err)
		}
		go enc.Run()
	}

	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	drawn := 0
	rendered := 0
loop:
	for i := 0; *opts.Frames <= 0 || i < *opts.Frames; i++ {
		host.frameTime.Store(uint64(i+1) * uint64(frameDuration))
		src.Tick(frameDuration.Seconds())

		dev.Clear(color.RGBA{A: 255})
		graphics.Scope(dev, func() {
			if src.Render() {
				drawn++
			}
		})
		rendered++

		if enc != nil {
			fb := dev.Framebuffer()
			enc.SendVideo(&encoder.Frame{Pixels: fb.Pix, PTS: int64(i)})
		}

		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
		}
	}

	var errs []error
	if enc != nil {
		if err := enc.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if *opts.Snapshot != "" {
		if err := writePNG(*opts.Snapshot, dev); err != nil {
			errs = append(errs, err)
		}
	}

	st := dev.Stats()
	log.Printf("Rendered %d frames, overlay drawn in %d; textures created=%d deleted=%d live=%d",
		rendered, drawn, st.Created, st.Deleted, st.Live)
	return errors.Join(errs...)
}

func writePNG(path string, dev *headless.Device) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create snapshot: %w", err)
	}
	defer f.Close()
	if err := png.Encode(f, dev.Framebuffer()); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	log.Printf("Wrote snapshot to %s", path)
	return nil
}
