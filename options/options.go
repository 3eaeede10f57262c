package options

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Default output size of a gaze source.
const (
	DefaultWidth  = 2560
	DefaultHeight = 1600
)

// Settings are the per-source settings, as stored by the host.
type Settings struct {
	File        string `yaml:"file"`
	Unload      bool   `yaml:"unload"`       // unload the image while the source is hidden
	LinearAlpha bool   `yaml:"linear_alpha"` // premultiply alpha in linear light
	IsSlide     bool   `yaml:"is_slide"`     // the source is driven by a slideshow
	Server      string `yaml:"server"`       // gaze telemetry server, ip:port
	Backend     string `yaml:"backend"`      // network, device or none
	Width       int    `yaml:"width"`
	Height      int    `yaml:"height"`
	AsyncDecode bool   `yaml:"async_decode"`
	FFmpegPath  string `yaml:"ffmpeg_path"`
}

// Defaults returns the settings of a freshly created source.
func Defaults() Settings {
	return Settings{
		Backend: "network",
		Width:   DefaultWidth,
		Height:  DefaultHeight,
	}
}

// Persistent reports whether the image stays loaded while hidden.
func (s Settings) Persistent() bool {
	return !s.Unload
}

// Validate checks the settings that have no sensible fallback. A malformed
// server is not an error here; it leaves the network backend inactive.
func Validate(s *Settings) error {
	var errs []error
	switch s.Backend {
	case "", "network", "device", "none":
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", s.Backend))
	}
	if s.Width < 0 || s.Height < 0 {
		errs = append(errs, fmt.Errorf("invalid size %dx%d", s.Width, s.Height))
	}
	return errors.Join(errs...)
}

// Parse decodes YAML settings on top of Defaults.
func Parse(data []byte) (*Settings, error) {
	s := Defaults()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	if s.Width == 0 {
		s.Width = DefaultWidth
	}
	if s.Height == 0 {
		s.Height = DefaultHeight
	}
	if err := Validate(&s); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return &s, nil
}

// Load reads and parses a YAML settings file.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}
	return Parse(data)
}

// Save writes s as YAML.
func Save(path string, s *Settings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// ViewerOptions are the command line options of the standalone viewer.
type ViewerOptions struct {
	Config      *string
	File        *string
	Server      *string
	Backend     *string
	Width       *int
	Height      *int
	Unload      *bool
	LinearAlpha *bool
	AsyncDecode *bool
	FFmpegPath  *string
	Headless    *bool // run against the recording device, no window
	Frames      *int  // frames to render in headless mode
	FPS         *int
	OutputFile  *string // headless: encode the frames to this video
	Codec       *string
	Snapshot    *string // headless: write the last frame as PNG
	Debug       *bool
	Help        *bool
}

// RegisterViewerFlags defines the viewer flags on fs.
func RegisterViewerFlags(fs *flag.FlagSet) *ViewerOptions {
	return &ViewerOptions{
		Config:      fs.String("config", "", "YAML settings file"),
		File:        fs.String("file", "", "Image to overlay"),
		Server:      fs.String("server", "", "Gaze telemetry server (ip:port)"),
		Backend:     fs.String("backend", "network", "Gaze backend: network, device or none"),
		Width:       fs.Int("width", DefaultWidth, "Width of the output"),
		Height:      fs.Int("height", DefaultHeight, "Height of the output"),
		Unload:      fs.Bool("unload", false, "Unload the image while hidden"),
		LinearAlpha: fs.Bool("linear_alpha", false, "Premultiply alpha in linear light"),
		AsyncDecode: fs.Bool("async", false, "Decode images off the render thread"),
		FFmpegPath:  fs.String("ffmpeg", "", "Path to ffmpeg executable"),
		Headless:    fs.Bool("headless", false, "Render to the recording device without a window"),
		Frames:      fs.Int("frames", 600, "Frames to render in headless mode"),
		FPS:         fs.Int("fps", 60, "Frames per second"),
		OutputFile:  fs.String("output", "", "Headless: encode the rendered frames to this video file"),
		Codec:       fs.String("codec", "h264", "Video codec for -output: h264 or hevc"),
		Snapshot:    fs.String("snapshot", "", "Headless: write the last rendered frame to this PNG file"),
		Debug:       fs.Bool("debug", false, "Enable debug logging"),
		Help:        fs.Bool("help", false, "Show help message"),
	}
}

// Settings resolves the source settings: the config file if one was given,
// then every flag set explicitly on fs.
func (o *ViewerOptions) Settings(fs *flag.FlagSet) (*Settings, error) {
	s := Defaults()
	if *o.Config != "" {
		loaded, err := Load(*o.Config)
		if err != nil {
			return nil, err
		}
		s = *loaded
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "file":
			s.File = *o.File
		case "server":
			s.Server = *o.Server
		case "backend":
			s.Backend = *o.Backend
		case "width":
			s.Width = *o.Width
		case "height":
			s.Height = *o.Height
		case "unload":
			s.Unload = *o.Unload
		case "linear_alpha":
			s.LinearAlpha = *o.LinearAlpha
		case "async":
			s.AsyncDecode = *o.AsyncDecode
		case "ffmpeg":
			s.FFmpegPath = *o.FFmpegPath
		}
	})

	if err := Validate(&s); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return &s, nil
}
