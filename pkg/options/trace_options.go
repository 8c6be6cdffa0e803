package options

import (
	"fmt"
	"net/url"

	"github.com/spf13/pflag"
)

var _ IOptions = (*TraceOptions)(nil)

// TraceOptions configures span export over OTLP/HTTP. Spans are dropped
// unless export is enabled.
type TraceOptions struct {
	Enabled     bool   `json:"enabled" mapstructure:"enabled"`
	Endpoint    string `json:"endpoint" mapstructure:"endpoint"`
	ServiceName string `json:"service-name" mapstructure:"service-name"`
}

func NewTraceOptions() *TraceOptions {
	return &TraceOptions{
		Endpoint:    "http://127.0.0.1:4318",
		ServiceName: "cpeer-flight-agent",
	}
}

func (o *TraceOptions) Validate() []error {
	errors := []error{}
	if !o.Enabled {
		return errors
	}

	if o.Endpoint == "" {
		errors = append(errors, fmt.Errorf("--trace.endpoint is required when tracing is enabled"))
	} else if u, err := url.Parse(o.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
		errors = append(errors, fmt.Errorf("--trace.endpoint must be a URL such as http://collector:4318, got %q", o.Endpoint))
	}
	if o.ServiceName == "" {
		errors = append(errors, fmt.Errorf("--trace.service-name must not be empty"))
	}

	return errors
}

func (o *TraceOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.BoolVar(&o.Enabled, "trace.enabled", o.Enabled, "Export reasoning and actuation spans to an OTLP collector")
	fs.StringVar(&o.Endpoint, "trace.endpoint", o.Endpoint, "OTLP/HTTP collector URL")
	fs.StringVar(&o.ServiceName, "trace.service-name", o.ServiceName, "Service name attached to exported spans")
}
