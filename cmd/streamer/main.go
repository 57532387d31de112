// Command streamer is the application root: it wires the Config
// Registry, Encoder Wrapper, Session Proxy, and WebSocket Signaling
// front-end together in the order spec.md §9 names (Config → Encoder
// Wrapper → Session Proxy → Signaling), then serves /ws and /metrics
// until a shutdown signal arrives. Grounded on the teacher's root
// main.go (flat http.HandleFunc mux, env-var-driven secrets) with the
// TURN-credential endpoint dropped — ICE/TURN is an external
// collaborator per this project's scope, not the streamer's job.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/n0remac/pi-webrtc-streamer/internal/config"
	"github.com/n0remac/pi-webrtc-streamer/internal/encoder"
	"github.com/n0remac/pi-webrtc-streamer/internal/hwdriver"
	"github.com/n0remac/pi-webrtc-streamer/internal/metrics"
	"github.com/n0remac/pi-webrtc-streamer/internal/quality"
	"github.com/n0remac/pi-webrtc-streamer/internal/reinit"
	"github.com/n0remac/pi-webrtc-streamer/internal/rtcadapter"
	"github.com/n0remac/pi-webrtc-streamer/internal/session"
	"github.com/n0remac/pi-webrtc-streamer/internal/signaling"
	"github.com/n0remac/pi-webrtc-streamer/internal/still"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	webDir := flag.String("web", "", "static web asset directory to serve at / (empty disables)")
	configPath := flag.String("config", "streamer.conf", "path to the key=value config file")
	fakeDriver := flag.Bool("fake-driver", false, "use the synthetic hwdriver.FakeDriver instead of launching an encoder binary")
	encoderCmd := flag.String("encoder-cmd", "raspivid", "external encoder binary hwdriver.ProcessDriver launches")
	deviceIndex := flag.Int("still-device", 0, "V4L2 device index still capture opens")
	flag.Parse()

	if env := os.Getenv("ENCODER_CMD"); env != "" {
		*encoderCmd = env
	}

	if err := run(*addr, *webDir, *configPath, *fakeDriver, *encoderCmd, *deviceIndex); err != nil {
		log.Fatalf("streamer: %v", err)
	}
}

func run(addr, webDir, configPath string, fakeDriver bool, encoderCmd string, deviceIndex int) error {
	// --- Config Registry ---
	cfg := config.NewRegistry()
	if unknown, err := cfg.Load(configPath); err != nil {
		log.Printf("[streamer] no config file at %s, using defaults: %v", configPath, err)
	} else if len(unknown) > 0 {
		log.Printf("[streamer] config file %s has unrecognized keys: %v", configPath, unknown)
	}
	watcher, err := cfg.WatchFile(configPath)
	if err != nil {
		log.Printf("[streamer] config live-reload disabled: %v", err) // ConfigWatchError: non-fatal
	}

	width, height := parseResolution(cfg.GetString("fixed_resolution"))
	framerate := cfg.GetInt("fixed_fps")
	bitrateBps := cfg.GetInt("max_bitrate")

	// --- Encoder Wrapper ---
	var driver hwdriver.Driver
	if fakeDriver {
		driver = hwdriver.NewFakeDriver()
	} else {
		driver = hwdriver.NewProcessDriver(encoderCmd)
	}
	wrapper := encoder.NewWrapper(driver)
	if err := wrapper.Init(hwdriver.Params{Width: width, Height: height, Framerate: framerate, BitrateBps: bitrateBps}); err != nil {
		return fmt.Errorf("init encoder: %w", err)
	}

	qc := quality.NewController(cfg)
	adapter := rtcadapter.New(wrapper, qc, wrapper.Reinit)

	metricsReg := metrics.New()
	stillCap := still.New(
		cfg.GetString("still_dir"), cfg.GetString("still_prefix"), ".jpg",
		time.Duration(cfg.GetInt("still_max_age_sec"))*time.Second,
		time.Duration(cfg.GetInt("still_timeout_ms"))*time.Millisecond,
		func() bool { return wrapper.State() == encoder.Capturing },
		still.OpenDevice(deviceIndex),
	)
	_ = stillCap // exposed for a future HTTP still-capture route; wired here so it shares the wrapper/config lifetime

	// --- Session Proxy ---
	proxy := session.NewProxy()

	app := &application{
		cfg:        cfg,
		wrapper:    wrapper,
		adapter:    adapter,
		quality:    qc,
		metrics:    metricsReg,
		width:      width,
		height:     height,
		framerate:  framerate,
		bitrateBps: bitrateBps,
	}

	// --- Signaling ---
	hub := signaling.NewHub(proxy, signaling.Hooks{
		DeviceID:    func() string { return cfg.GetString("device_id") },
		OnRegister:  app.onRegister,
		OnRelease:   app.onRelease,
		ConfigRead:  func() map[string]any { return cfg.ToJSON(false) },
		ConfigPatch: app.onConfigPatch,
		ConfigSave:  cfg.Save,
		ConfigReset: cfg.ResetDefaults,
		ConfigApply: func() error { return wrapper.ApplyMediaConfig(cfg) },
	})

	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	mux.Handle("/metrics", metricsReg.Handler())
	if webDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(webDir)))
	}
	server := &http.Server{Addr: addr, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		log.Printf("[streamer] listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		ticker := time.NewTicker(reinit.TickPeriod())
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := adapter.Tick(); err != nil {
					log.Printf("[streamer] reinit tick: %v", err)
				}
			}
		}
	})

	err = g.Wait()

	if watcher != nil {
		watcher.Close()
	}
	app.teardownActiveSession()
	wrapper.StopCapture()
	return err
}

func parseResolution(s string) (w, h int) {
	parts := strings.SplitN(strings.ToLower(s), "x", 2)
	if len(parts) != 2 {
		return 1280, 720
	}
	w, errW := strconv.Atoi(parts[0])
	h, errH := strconv.Atoi(parts[1])
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return 1280, 720
	}
	return w, h
}
