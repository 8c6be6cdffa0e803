package options

import (
	"testing"
	"time"

	"github.com/autopeer-io/flightpeer/internal/flightagent/command"
)

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		addr    string
		wantErr bool
	}{
		{"127.0.0.1:8088", false},
		{"0.0.0.0:0", false},
		{":9090", false},
		{"localhost", true},
		{"127.0.0.1:http", true},
		{"127.0.0.1:70000", true},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			err := ValidateAddress(tt.addr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAddress(%q) error = %v, wantErr %v", tt.addr, err, tt.wantErr)
			}
		})
	}
}

func TestFlightOptionsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(o *FlightOptions)
		errs   int
	}{
		{"defaults", func(o *FlightOptions) {}, 0},
		{"height above ceiling", func(o *FlightOptions) { o.MaxHeight = 600 }, 1},
		{"zero distance", func(o *FlightOptions) { o.MaxDistance = 0 }, 1},
		{"battery over 100", func(o *FlightOptions) { o.BatteryThreshold = 101 }, 1},
		{"slow default speed", func(o *FlightOptions) { o.DefaultSpeed = 5 }, 1},
		{"negative battery margin", func(o *FlightOptions) { o.LowBatteryMargin = -5 }, 1},
		{"negative landing height", func(o *FlightOptions) { o.ConfirmLandingAbove = -1 }, 1},
		{"distance above hardware ceiling", func(o *FlightOptions) { o.MaxDistance = command.HardDistanceCeiling + 1 }, 1},
		{"negative retries", func(o *FlightOptions) { o.MaxActuationRetries = -1 }, 1},
		{"zero timeout", func(o *FlightOptions) { o.ActuationTimeout = 0 * time.Second }, 1},
		{"several problems", func(o *FlightOptions) { o.MaxHeight = -1; o.MaxReplanCycles = -2 }, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewFlightOptions()
			tt.mutate(o)
			if errs := o.Validate(); len(errs) != tt.errs {
				t.Errorf("Validate() = %v, want %d errors", errs, tt.errs)
			}
		})
	}
}

func TestReasonerOptionsValidate(t *testing.T) {
	o := NewReasonerOptions()
	if errs := o.Validate(); len(errs) != 1 {
		t.Fatalf("openai provider without a key should fail once, got %v", errs)
	}

	o.APIKey = "sk-0123456789"
	if errs := o.Validate(); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if got := o.MaskedAPIKey(); got != "sk-012..." {
		t.Errorf("MaskedAPIKey() = %q", got)
	}

	o = NewReasonerOptions()
	o.Provider = ReasonerScripted
	if errs := o.Validate(); len(errs) != 0 {
		t.Errorf("scripted provider needs no key, got %v", errs)
	}

	o.Provider = "gemini"
	if errs := o.Validate(); len(errs) != 1 {
		t.Errorf("unknown provider should fail, got %v", errs)
	}
}

func TestDisabledGroupsSkipValidation(t *testing.T) {
	m := NewMqttOptions()
	m.Broker = "::not a url"
	if errs := m.Validate(); len(errs) != 0 {
		t.Errorf("disabled mqtt options should not be validated, got %v", errs)
	}
	m.Enabled = true
	if errs := m.Validate(); len(errs) == 0 {
		t.Error("enabled mqtt options with a bad broker should fail")
	}

	s := NewS3Options()
	s.BucketName = ""
	if errs := s.Validate(); len(errs) != 0 {
		t.Errorf("disabled s3 options should not be validated, got %v", errs)
	}
	s.Enabled = true
	if errs := s.Validate(); len(errs) != 1 {
		t.Errorf("expected missing bucket error, got %v", errs)
	}
}

func TestDroneOptionsValidate(t *testing.T) {
	o := NewDroneOptions()
	if errs := o.Validate(); len(errs) != 0 {
		t.Fatalf("defaults should be valid: %v", errs)
	}
	o.Driver = "px4"
	o.Port = 99999
	if errs := o.Validate(); len(errs) != 2 {
		t.Errorf("expected 2 errors, got %v", errs)
	}
}

func TestListenerOptionsValidate(t *testing.T) {
	h := NewHttpOptions()
	h.Network = "unix"
	h.Addr = "localhost"
	if errs := h.Validate(); len(errs) != 2 {
		t.Errorf("HttpOptions.Validate() = %v, want 2 errors", errs)
	}

	g := NewGrpcOptions()
	g.Addr = "bad"
	if errs := g.Validate(); len(errs) != 0 {
		t.Errorf("disabled GrpcOptions.Validate() = %v, want none", errs)
	}
	g.Enabled = true
	if errs := g.Validate(); len(errs) != 1 {
		t.Errorf("GrpcOptions.Validate() = %v, want 1 error", errs)
	}
}

func TestTraceOptionsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(o *TraceOptions)
		errs   int
	}{
		{"disabled ignores endpoint", func(o *TraceOptions) { o.Endpoint = "" }, 0},
		{"enabled defaults", func(o *TraceOptions) { o.Enabled = true }, 0},
		{"enabled without endpoint", func(o *TraceOptions) { o.Enabled = true; o.Endpoint = "" }, 1},
		{"endpoint without scheme", func(o *TraceOptions) { o.Enabled = true; o.Endpoint = "collector:4318" }, 1},
		{"empty service name", func(o *TraceOptions) { o.Enabled = true; o.ServiceName = "" }, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewTraceOptions()
			tt.mutate(o)
			if errs := o.Validate(); len(errs) != tt.errs {
				t.Errorf("Validate() = %v, want %d errors", errs, tt.errs)
			}
		})
	}
}
