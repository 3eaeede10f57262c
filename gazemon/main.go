// Command gazemon shows the smoothed gaze sample of a provider in the terminal.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/richinsley/goshadergaze/gaze"
	"github.com/richinsley/goshadergaze/tobii"
)

type monitor struct {
	screen   tcell.Screen
	provider *gaze.Provider
	config   gaze.Config
	trail    trail
	polls    int
	started  time.Time
}

func (m *monitor) drawText(x, y int, style tcell.Style, text string) {
	for i, r := range text {
		m.screen.SetContent(x+i, y, r, nil, style)
	}
}

func (m *monitor) draw(sample gaze.Sample) {
	m.screen.Clear()
	width, height := m.screen.Size()

	header := tcell.StyleDefault.Foreground(tcell.ColorYellow)
	status := "inactive"
	if m.provider.Active() {
		status = "active"
	}
	m.drawText(0, 0, header, fmt.Sprintf("backend=%s server=%s %s polls=%d uptime=%s",
		m.config.Backend, m.config.Server, status, m.polls, time.Since(m.started).Truncate(time.Second)))
	m.drawText(0, 1, tcell.StyleDefault, fmt.Sprintf("sample %s   (q quit, c clear)", sample))

	// plot area below the two header lines, inside a border
	top := 2
	plotW, plotH := width-2, height-top-2
	border := tcell.StyleDefault.Foreground(tcell.ColorGray)
	for x := 0; x < width; x++ {
		m.screen.SetContent(x, top, '─', nil, border)
		m.screen.SetContent(x, height-1, '─', nil, border)
	}
	for y := top; y < height; y++ {
		m.screen.SetContent(0, y, '│', nil, border)
		m.screen.SetContent(width-1, y, '│', nil, border)
	}

	if p, ok := cellFor(sample, plotW, plotH); ok {
		m.trail.push(p)
	}
	n := len(m.trail.points)
	for i, p := range m.trail.points {
		r := '·'
		if i == n-1 {
			r = '●'
		}
		m.screen.SetContent(p.x+1, p.y+top+1, r, nil, tcell.StyleDefault.Foreground(trailColor(i, n)))
	}
	if sample.IsNoSignal() {
		m.drawText(2, top+1, tcell.StyleDefault.Foreground(tcell.ColorRed), "no signal")
	}
	m.screen.Show()
}

func (m *monitor) handleInput(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC {
			return false
		}
		if ev.Key() == tcell.KeyRune {
			switch ev.Rune() {
			case 'q':
				return false
			case 'c':
				m.trail.clear()
			}
		}
	case *tcell.EventResize:
		m.screen.Sync()
	}
	return true
}

func (m *monitor) run(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	eventChan := make(chan tcell.Event, 100)
	go func() {
		for {
			ev := m.screen.PollEvent()
			if ev == nil {
				return
			}
			eventChan <- ev
		}
	}()

	for {
		select {
		case ev := <-eventChan:
			if !m.handleInput(ev) {
				return
			}
		case <-ticker.C:
			m.polls++
			m.draw(m.provider.PollOnce())
		}
	}
}

func main() {
	var server = flag.String("server", "127.0.0.1:5005", "Gaze telemetry server (ip:port)")
	var backend = flag.String("backend", "network", "Gaze backend: network, device or none")
	var fps = flag.Int("fps", 60, "Polls per second")
	var logFile = flag.String("log", "", "Write debug logs to this file")
	flag.Parse()

	kind, err := gaze.ParseBackendKind(*backend)
	if err != nil {
		log.Fatalf("Invalid backend: %v", err)
	}

	var logOut io.Writer = io.Discard
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.Fatalf("Failed to open log file: %v", err)
		}
		defer f.Close()
		logOut = f
	}
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: slog.LevelDebug}))

	provider := gaze.NewProvider(gaze.WithLogger(logger), gaze.WithDeviceAPI(tobii.Factory()))
	config := gaze.Config{Backend: kind, Server: *server}
	if err := provider.Reconfigure(config); err != nil {
		log.Fatalf("Failed to start gaze backend: %v", err)
	}
	defer provider.Teardown()

	screen, err := tcell.NewScreen()
	if err != nil {
		log.Fatalf("Failed to create screen: %v", err)
	}
	if err := screen.Init(); err != nil {
		log.Fatalf("Failed to initialize screen: %v", err)
	}
	defer screen.Fini()

	interval := time.Second / 60
	if *fps > 0 {
		interval = time.Second / time.Duration(*fps)
	}
	m := &monitor{screen: screen, provider: provider, config: config, started: time.Now()}
	m.run(interval)
}
