package cameras

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/R3E-Network/sentinel/internal/app/domain/camera"
)

// DefaultProbeTimeout bounds every reachability check.
const DefaultProbeTimeout = 5 * time.Second

// Prober checks whether a camera stream can be reached. The returned status
// is online, offline (cannot connect) or error (connected but unusable). A
// non-nil error reports an unexpected failure.
type Prober interface {
	Probe(ctx context.Context, cam camera.Camera) (camera.Status, error)
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, cam camera.Camera) (camera.Status, error)

// Probe calls f.
func (f ProberFunc) Probe(ctx context.Context, cam camera.Camera) (camera.Status, error) {
	return f(ctx, cam)
}

// NetProber probes cameras over TCP, HTTP or the local device tree.
type NetProber struct {
	Timeout time.Duration
	Client  *http.Client
	dial    func(ctx context.Context, network, addr string) (net.Conn, error)
	stat    func(name string) (os.FileInfo, error)
}

// NewNetProber returns a prober using timeout for every check.
func NewNetProber(timeout time.Duration) *NetProber {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	d := &net.Dialer{Timeout: timeout}
	return &NetProber{
		Timeout: timeout,
		Client:  &http.Client{Timeout: timeout},
		dial:    d.DialContext,
		stat:    os.Stat,
	}
}

// Probe implements Prober.
func (p *NetProber) Probe(ctx context.Context, cam camera.Camera) (camera.Status, error) {
	switch cam.CameraType {
	case camera.TypeRTSP, camera.TypeONVIF:
		return p.probeTCP(ctx, cam)
	case camera.TypeIP:
		if u, err := url.Parse(cam.StreamURL); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
			return p.probeHTTP(ctx, cam)
		}
		return p.probeTCP(ctx, cam)
	case camera.TypeUSB:
		if _, err := p.stat(cam.StreamURL); err != nil {
			return camera.StatusOffline, nil
		}
		return camera.StatusOnline, nil
	default:
		return camera.StatusError, fmt.Errorf("unsupported camera type %q", cam.CameraType)
	}
}

func (p *NetProber) probeTCP(ctx context.Context, cam camera.Camera) (camera.Status, error) {
	addr, err := dialAddress(cam)
	if err != nil {
		return camera.StatusError, err
	}
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	conn, err := p.dial(ctx, "tcp", addr)
	if err != nil {
		return camera.StatusOffline, nil
	}
	_ = conn.Close()
	return camera.StatusOnline, nil
}

func (p *NetProber) probeHTTP(ctx context.Context, cam camera.Camera) (camera.Status, error) {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cam.StreamURL, nil)
	if err != nil {
		return camera.StatusError, err
	}
	if cam.Username != "" && cam.Password != "" {
		req.SetBasicAuth(cam.Username, cam.Password)
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return camera.StatusOffline, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return camera.StatusError, nil
	}
	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	if strings.HasPrefix(ct, "image/") || strings.HasPrefix(ct, "video/") || strings.HasPrefix(ct, "multipart/x-mixed-replace") {
		return camera.StatusOnline, nil
	}
	return camera.StatusError, nil
}

// dialAddress resolves host:port from the stream URL, falling back to the
// camera port when the URL carries none.
func dialAddress(cam camera.Camera) (string, error) {
	raw := cam.StreamURL
	if !strings.Contains(raw, "://") {
		raw = "tcp://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse stream url: %w", err)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("stream url %q has no host", cam.StreamURL)
	}
	port := u.Port()
	if port == "" {
		port = strconv.Itoa(cam.Port)
	}
	return net.JoinHostPort(host, port), nil
}
