package sandbox

import (
	"net"
	"strconv"
	"time"

	"github.com/kingrea/countersign/internal/config"
)

const (
	// headerTimeout bounds how long a client may take to send request headers.
	headerTimeout = 10 * time.Second
	// writeSlack is added to the configured latency so a delayed answer is
	// never cut off by the write deadline.
	writeSlack  = 15 * time.Second
	idleTimeout = time.Minute
)

// Settings is the sandbox runtime: where it listens and how it misbehaves.
type Settings struct {
	Host         string
	Port         int
	MaxBodyBytes int64
	// Latency delays every accepted envelope, to exercise the sending state.
	Latency time.Duration
	// FailNext rejects that many envelopes after startup with FailStatus.
	FailNext   int
	FailStatus int
}

// SettingsFromConfig copies the sandbox section of an already loaded
// config. Environment overrides are applied by config.NewConfig.
func SettingsFromConfig(cfg *config.Config) Settings {
	if cfg == nil {
		return Settings{}.normalized()
	}
	raw := cfg.Project.Sandbox
	return Settings{
		Host:         raw.Host,
		Port:         raw.Port,
		MaxBodyBytes: raw.MaxBodyBytes,
		Latency:      raw.Latency,
		FailNext:     raw.FailNext,
		FailStatus:   raw.FailStatus,
	}.normalized()
}

// normalized fills zero values and pulls out-of-range misbehaviour back to
// something the server can honor. Port 0 is kept: it asks for an ephemeral
// port, which tests rely on.
func (s Settings) normalized() Settings {
	if s.Host == "" {
		s.Host = config.DefaultSandboxHost
	}
	if s.Port < 0 || s.Port > 65535 {
		s.Port = config.DefaultSandboxPort
	}
	if s.MaxBodyBytes <= 0 {
		s.MaxBodyBytes = config.DefaultMaxBodyBytes
	}
	s.Latency = min(max(s.Latency, 0), config.MaxSandboxLatency)
	s.FailNext = max(s.FailNext, 0)
	if s.FailStatus < 400 || s.FailStatus > 599 {
		s.FailStatus = config.DefaultFailStatus
	}
	return s
}

// writeTimeout leaves room for the simulated latency.
func (s Settings) writeTimeout() time.Duration {
	return s.Latency + writeSlack
}

// Address returns the TCP bind address in host:port form.
func (s Settings) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// URL returns the HTTP base URL for the server.
func (s Settings) URL() string {
	return "http://" + s.Address()
}
