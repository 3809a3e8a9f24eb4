package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/video-system/go-media-access/internal/ffmpeg"
	ilogging "github.com/video-system/go-media-access/internal/logging"
	"github.com/video-system/go-media-access/pkg/api"
	"github.com/video-system/go-media-access/pkg/deviceid"
	"github.com/video-system/go-media-access/pkg/media"
	"github.com/video-system/go-media-access/pkg/mediastream"
	"github.com/video-system/go-media-access/pkg/monitor"
	"github.com/video-system/go-media-access/pkg/ndi"
	"github.com/video-system/go-media-access/pkg/permission"
	"github.com/video-system/go-media-access/pkg/platform"
	"github.com/video-system/go-media-access/pkg/provider"

	_ "github.com/video-system/go-media-access/pkg/provider/fake"
	_ "github.com/video-system/go-media-access/pkg/provider/ffmpegdev"
	_ "github.com/video-system/go-media-access/pkg/provider/mdev"
	_ "github.com/video-system/go-media-access/pkg/provider/ndidev"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := mediastream.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := ilogging.Configure(cfg.Logging.Level, cfg.Logging.Scopes); err != nil {
		log.Fatalf("Invalid logging config: %v", err)
	}

	// One backend serves both providers
	devices := append(cfg.Devices.FakeDevices(media.DeviceAudioCapture), cfg.Devices.FakeDevices(media.DeviceVideoCapture)...)
	backend, err := provider.NewBackend(cfg.Devices.Backend, provider.BackendConfig{
		Devices:     devices,
		FFmpegPath:  cfg.Devices.FFmpegPath,
		InputFormat: cfg.Devices.InputFormat,
		NDIGroups:   cfg.Devices.NDIGroups,
		NDIExtraIPs: cfg.Devices.NDIExtraIPs,
	})
	if err != nil {
		log.Fatalf("Failed to create device backend (have %v): %v", provider.Backends(), err)
	}
	if s, ok := backend.(interface{ Shutdown() }); ok {
		defer s.Shutdown()
	}

	rc, err := resourceContext(cfg.Anonymization)
	if err != nil {
		log.Fatalf("Failed to create resource context: %v", err)
	}

	authority, factory, err := permissionSurface(cfg.Permission)
	if err != nil {
		log.Fatalf("Invalid permission config: %v", err)
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	opts := mediastream.Options{
		AudioProvider:           provider.New("audio", backend),
		VideoProvider:           provider.New("video", backend),
		Permission:              factory,
		ResourceContext:         rc,
		DefaultOutputParameters: cfg.Audio.OutputParameters(),
	}

	var poller *monitor.Poller
	if cfg.Monitor.Enabled {
		poller = newPoller(backend, cfg.Monitor)
		opts.Notifier = poller
	}

	// Initialize platform reporting
	var reporter *platform.Reporter
	if cfg.Platform.Enabled {
		client := platform.New(platform.Config{
			URL:    cfg.Platform.URL,
			APIKey: cfg.Platform.APIKey,
		})

		agent := agentInfo(ctx, cfg, backend.Name())
		reporter = platform.NewReporter(client, agent.ID, 256)

		agentID, err := client.RegisterAgent(ctx, agent)
		if err != nil {
			log.Printf("Warning: Failed to register with platform: %v", err)
			reporter = nil
		} else {
			log.Printf("Registered with platform as agent: %s", agentID)
			reporter.SetAgentID(agentID)
			opts.Observer = reporter
		}
	}

	manager, err := mediastream.NewManager(opts)
	if err != nil {
		log.Fatalf("Failed to create media stream manager: %v", err)
	}
	if err := manager.Start(); err != nil {
		log.Fatalf("Failed to start media stream manager: %v", err)
	}

	if poller != nil {
		if err := poller.Start(ctx); err != nil {
			log.Fatalf("Failed to start device monitor: %v", err)
		}
	}

	if reporter != nil {
		interval := time.Duration(cfg.Platform.HeartbeatSecs) * time.Second
		go reporter.Run(ctx, interval, func() platform.Heartbeat {
			return heartbeat(manager, poller)
		})
	}

	// Create and start API server
	apiServer := api.NewServer(api.ServerConfig{
		Host:      cfg.API.Host,
		Port:      cfg.API.Port,
		Manager:   manager,
		Authority: authority,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			log.Printf("API server error: %v", err)
		}
	}()

	// Wait for shutdown
	<-sigChan
	log.Println("Shutdown signal received...")

	// Cleanup
	apiServer.Stop()
	if poller != nil {
		poller.Stop()
	}
	manager.Stop()
	cancel()

	log.Println("Media access stopped")
}

func resourceContext(cfg mediastream.AnonymizationConfig) (*deviceid.ResourceContext, error) {
	if cfg.Salt != "" {
		return deviceid.NewResourceContext([]byte(cfg.Salt)), nil
	}
	// Source ids change on every restart
	return deviceid.RandomResourceContext()
}

func permissionSurface(cfg mediastream.PermissionConfig) (*permission.Authority, permission.Factory, error) {
	if cfg.Mode == "fake" {
		log.Println("Warning: fake permission surface approves every request")
		return nil, func() permission.Surface { return permission.NewFake() }, nil
	}

	fallback, err := permission.ParseDecision(cfg.Default)
	if err != nil {
		return nil, nil, err
	}

	store := permission.NewMemoryStore()
	for origin, name := range cfg.Origins {
		d, err := permission.ParseDecision(name)
		if err != nil {
			return nil, nil, fmt.Errorf("origin %s: %w", origin, err)
		}
		store.Set(origin, d)
	}

	authority := permission.NewAuthority(store, fallback)
	return authority, authority.NewSurface, nil
}

// newPoller watches the backend's device lists for hot-plug
func newPoller(backend provider.Backend, cfg mediastream.MonitorConfig) *monitor.Poller {
	p := monitor.NewPoller(cfg.Interval, cfg.MaxInterval)

	source := func(t media.MediaType) monitor.Source {
		return func(ctx context.Context) ([]string, error) {
			devices, err := backend.Enumerate(ctx, t)
			if err != nil {
				return nil, err
			}
			ids := make([]string, 0, len(devices))
			for _, d := range devices {
				ids = append(ids, d.ID)
			}
			return ids, nil
		}
	}
	p.SetSource(monitor.AudioCapture, source(media.DeviceAudioCapture))
	p.SetSource(monitor.VideoCapture, source(media.DeviceVideoCapture))
	return p
}

// agentInfo describes this daemon to the video platform
func agentInfo(ctx context.Context, cfg *mediastream.Config, backend string) platform.Agent {
	hostname, _ := os.Hostname()

	// Generate agent ID if not specified
	agentID := cfg.Platform.AgentID
	if agentID == "" {
		agentID = fmt.Sprintf("media-%s", hostname)
	}

	// Determine API URL for this agent
	agentURL := fmt.Sprintf("http://%s:%d", hostname, cfg.API.Port)
	if cfg.API.Host != "" && cfg.API.Host != "0.0.0.0" {
		agentURL = fmt.Sprintf("http://%s:%d", cfg.API.Host, cfg.API.Port)
	}

	return platform.Agent{
		ID:         agentID,
		Hostname:   hostname,
		Backend:    backend,
		Version:    version,
		APIURL:     agentURL,
		Backends:   provider.Backends(),
		Components: components(ctx, cfg.Devices.FFmpegPath),
	}
}

// components reports the external runtimes the backends can use
func components(ctx context.Context, ffmpegPath string) map[string]string {
	found := make(map[string]string)

	if ff, err := ffmpeg.New(ffmpegPath); err == nil {
		vctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		v, err := ff.Version(vctx)
		cancel()
		if err != nil {
			log.Printf("Warning: %s: %v", ff.Path(), err)
		} else {
			log.Printf("Found ffmpeg %s at %s", v, ff.Path())
			found["ffmpeg"] = v
		}
	}

	if ndi.IsAvailable() {
		found["ndi"] = ndi.Version()
	}
	return found
}

func heartbeat(manager *mediastream.Manager, poller *monitor.Poller) platform.Heartbeat {
	st, err := manager.Status()
	if err != nil {
		return platform.Heartbeat{}
	}

	hb := platform.Heartbeat{
		ActiveRequests: len(st.Requests),
		AudioDevices:   st.AudioCache.Devices,
		VideoDevices:   st.VideoCache.Devices,
		Sessions:       max(st.AudioSessions, 0) + max(st.VideoSessions, 0),
		LoopMaxTaskMs:  milliseconds(st.Loop.MaxTask),
		Monitoring:     st.Monitoring,
	}
	if poller != nil {
		avg, slowest, checks := poller.Stats()
		hb.MonitorChecks = checks
		hb.MonitorAvgMs = milliseconds(avg)
		hb.MonitorMaxMs = milliseconds(slowest)
	}
	return hb
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
