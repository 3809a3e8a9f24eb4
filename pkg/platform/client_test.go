package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/video-system/go-media-access/pkg/media"
)

type recordedCall struct {
	path string
	auth string
	body map[string]interface{}
}

type fakePlatform struct {
	mu     sync.Mutex
	calls  []recordedCall
	status int
}

func (f *fakePlatform) handler(w http.ResponseWriter, r *http.Request) {
	var body map[string]interface{}
	json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{path: r.URL.Path, auth: r.Header.Get("Authorization"), body: body})
	status := f.status
	f.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		return
	}
	switch r.URL.Path {
	case "/health":
		w.WriteHeader(http.StatusOK)
	case "/api/v1/agents":
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"id": "agent-42"})
	default:
		w.WriteHeader(http.StatusOK)
	}
}

func (f *fakePlatform) recorded() []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedCall(nil), f.calls...)
}

func newFakePlatform(t *testing.T) (*fakePlatform, *Client) {
	t.Helper()
	fp := &fakePlatform{}
	srv := httptest.NewServer(http.HandlerFunc(fp.handler))
	t.Cleanup(srv.Close)
	return fp, New(Config{URL: srv.URL, APIKey: "key"})
}

func TestClientRegisterAndHeartbeat(t *testing.T) {
	fp, c := newFakePlatform(t)
	ctx := context.Background()

	if err := c.CheckHealth(ctx); err != nil {
		t.Fatalf("CheckHealth failed: %v", err)
	}

	id, err := c.RegisterAgent(ctx, Agent{
		ID:         "local",
		Hostname:   "studio-1",
		Backend:    "fake",
		Components: map[string]string{"ffmpeg": "6.1.1"},
	})
	if err != nil {
		t.Fatalf("RegisterAgent failed: %v", err)
	}
	if id != "agent-42" {
		t.Errorf("Agent id = %q, want agent-42", id)
	}

	if err := c.SendHeartbeat(ctx, id, Heartbeat{ActiveRequests: 2}); err != nil {
		t.Fatalf("SendHeartbeat failed: %v", err)
	}

	calls := fp.recorded()
	if len(calls) != 3 {
		t.Fatalf("Got %d calls, want 3", len(calls))
	}
	components, _ := calls[1].body["components"].(map[string]interface{})
	if components["ffmpeg"] != "6.1.1" {
		t.Errorf("Registration body = %v", calls[1].body)
	}

	hb := calls[2]
	if hb.path != "/api/v1/agents/agent-42/heartbeat" {
		t.Errorf("Heartbeat path = %q", hb.path)
	}
	if hb.auth != "Bearer key" {
		t.Errorf("Authorization = %q", hb.auth)
	}
	if hb.body["active_requests"] != float64(2) || hb.body["timestamp"] == float64(0) {
		t.Errorf("Heartbeat body = %v", hb.body)
	}
}

func TestClientErrors(t *testing.T) {
	fp, c := newFakePlatform(t)
	fp.mu.Lock()
	fp.status = http.StatusInternalServerError
	fp.mu.Unlock()
	ctx := context.Background()

	if err := c.CheckHealth(ctx); err == nil {
		t.Error("CheckHealth should fail on 500")
	}
	if _, err := c.RegisterAgent(ctx, Agent{ID: "local"}); err == nil {
		t.Error("RegisterAgent should fail on 500")
	}

	unconfigured := New(Config{})
	if err := unconfigured.NotifyDevicesChanged(ctx, DevicesChanged{}); err != nil {
		t.Errorf("Unconfigured notify should be skipped, got %v", err)
	}
	if _, err := unconfigured.RegisterAgent(ctx, Agent{}); err == nil {
		t.Error("Unconfigured RegisterAgent should fail")
	}
}

func TestReporterForwardsEvents(t *testing.T) {
	fp, c := newFakePlatform(t)
	r := NewReporter(c, "agent-1", 8)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx, 0, nil)
		close(done)
	}()

	r.OnVideoCaptureDevicesChanged([]media.Device{{Type: media.DeviceVideoCapture, ID: "cam-1", Name: "Webcam"}})
	r.OnMediaRequestStateChanged(12, 34, 1, media.Device{Type: media.TabVideoCapture, ID: "12:34"}, media.StateClosing)

	deadline := time.Now().Add(2 * time.Second)
	for {
		if sent, _ := r.Stats(); sent == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Reporter did not send events")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	calls := fp.recorded()
	if calls[0].path != "/api/v1/media/devices-changed" || calls[0].body["type"] != "video" {
		t.Errorf("Devices call = %+v", calls[0])
	}
	if calls[1].path != "/api/v1/media/request-state" || calls[1].body["state"] != "closing" || calls[1].body["agent_id"] != "agent-1" {
		t.Errorf("State call = %+v", calls[1])
	}
}

func TestReporterDropsWhenFull(t *testing.T) {
	r := NewReporter(New(Config{}), "agent-1", 1)
	r.OnAudioCaptureDevicesChanged(nil)
	r.OnAudioCaptureDevicesChanged(nil)

	if _, dropped := r.Stats(); dropped != 1 {
		t.Errorf("Dropped = %d, want 1", dropped)
	}
}

func TestReporterHeartbeat(t *testing.T) {
	fp, c := newFakePlatform(t)
	r := NewReporter(c, "agent-1", 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx, 10*time.Millisecond, func() Heartbeat { return Heartbeat{Monitoring: true} })

	deadline := time.Now().Add(2 * time.Second)
	for {
		calls := fp.recorded()
		if len(calls) > 0 {
			if calls[0].path != "/api/v1/agents/agent-1/heartbeat" || calls[0].body["monitoring"] != true {
				t.Errorf("Heartbeat call = %+v", calls[0])
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("No heartbeat sent")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestReporterUsesConfirmedAgentID(t *testing.T) {
	fp, c := newFakePlatform(t)
	r := NewReporter(c, "media-studio-1", 8)

	id, err := c.RegisterAgent(context.Background(), Agent{ID: r.AgentID()})
	if err != nil {
		t.Fatalf("RegisterAgent failed: %v", err)
	}
	r.SetAgentID(id)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx, 10*time.Millisecond, func() Heartbeat { return Heartbeat{Sessions: 1} })

	r.OnAudioCaptureDevicesChanged([]media.Device{{Type: media.DeviceAudioCapture, ID: "mic-1"}})

	deadline := time.Now().Add(2 * time.Second)
	var sawEvent, sawHeartbeat bool
	for !sawEvent || !sawHeartbeat {
		if time.Now().After(deadline) {
			t.Fatalf("Event %v, heartbeat %v after %+v", sawEvent, sawHeartbeat, fp.recorded())
		}
		for _, call := range fp.recorded() {
			switch call.path {
			case "/api/v1/media/devices-changed":
				if call.body["agent_id"] != "agent-42" {
					t.Fatalf("Event agent id = %v, want agent-42", call.body["agent_id"])
				}
				sawEvent = true
			case "/api/v1/agents/agent-42/heartbeat":
				if call.body["sessions"] != float64(1) {
					t.Errorf("Heartbeat body = %v", call.body)
				}
				sawHeartbeat = true
			case "/api/v1/agents/media-studio-1/heartbeat":
				t.Fatal("Heartbeat sent with the requested id after registration")
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
}
