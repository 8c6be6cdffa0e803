package options

import (
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*GrpcOptions)(nil)

// GrpcOptions configures the gRPC health endpoint, whose serving status
// follows the vehicle link.
type GrpcOptions struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Network string `json:"network" mapstructure:"network"`
	Addr    string `json:"addr" mapstructure:"addr"`

	// Timeout bounds each unary call that arrives without a deadline.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
}

// NewGrpcOptions returns the defaults, with the server off.
func NewGrpcOptions() *GrpcOptions {
	return &GrpcOptions{
		Network: "tcp",
		Addr:    "0.0.0.0:8091",
		Timeout: 30 * time.Second,
	}
}

func (o *GrpcOptions) Validate() []error {
	if !o.Enabled {
		return nil
	}
	return validateListener("grpc", o.Network, o.Addr)
}

func (o *GrpcOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.BoolVar(&o.Enabled, "grpc.enabled", o.Enabled, "Serve the gRPC health service.")
	fs.StringVar(&o.Network, "grpc.network", o.Network, "Listener network: tcp, tcp4 or tcp6.")
	fs.StringVar(&o.Addr, "grpc.addr", o.Addr, "Bind address of the gRPC server.")
	fs.DurationVar(&o.Timeout, "grpc.timeout", o.Timeout, "Deadline applied to gRPC calls that carry none.")
}
