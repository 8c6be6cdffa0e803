package options

import (
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*HttpOptions)(nil)

// HttpOptions configures the local control server: health checks, metrics and the
// remote intent and confirmation API.
type HttpOptions struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Network string `json:"network" mapstructure:"network"`

	// Addr defaults to loopback. The API can start flights, so exposing it
	// needs a deliberate choice.
	Addr string `json:"addr" mapstructure:"addr"`

	// Timeout applies to reads, writes and graceful shutdown.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
}

func NewHttpOptions() *HttpOptions {
	return &HttpOptions{
		Enabled: true,
		Network: "tcp",
		Addr:    "127.0.0.1:8088",
		Timeout: 30 * time.Second,
	}
}

func (o *HttpOptions) Validate() []error {
	if o == nil || !o.Enabled {
		return nil
	}
	return validateListener("http", o.Network, o.Addr)
}

func (o *HttpOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.BoolVar(&o.Enabled, "http.enabled", o.Enabled, "Serve health, metrics and the remote control API over HTTP.")
	fs.StringVar(&o.Network, "http.network", o.Network, "Listener network: tcp, tcp4 or tcp6.")
	fs.StringVar(&o.Addr, "http.addr", o.Addr, "Bind address of the HTTP server.")
	fs.DurationVar(&o.Timeout, "http.timeout", o.Timeout, "Read, write and shutdown timeout of the HTTP server.")
}
