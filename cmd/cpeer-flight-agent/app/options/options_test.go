package options

import (
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	pkgoptions "github.com/autopeer-io/flightpeer/pkg/options"
)

func validOptions() *AgentOptions {
	o := NewAgentOptions()
	o.ReasonerOptions.Provider = pkgoptions.ReasonerScripted
	o.DroneOptions.Driver = pkgoptions.DriverSim
	return o
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(o *AgentOptions)
		wantErr string
	}{
		{name: "defaults", mutate: func(*AgentOptions) {}},
		{
			name: "headless without remote surface",
			mutate: func(o *AgentOptions) {
				o.Headless = true
				o.HttpOptions.Enabled = false
			},
			wantErr: "--headless",
		},
		{
			name: "headless with http",
			mutate: func(o *AgentOptions) {
				o.Headless = true
			},
		},
		{
			name: "openai without key",
			mutate: func(o *AgentOptions) {
				o.ReasonerOptions.Provider = pkgoptions.ReasonerOpenAI
				o.ReasonerOptions.APIKey = ""
			},
			wantErr: "api-key",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := validOptions()
			tt.mutate(o)
			err := o.Validate()
			switch {
			case tt.wantErr == "" && err != nil:
				t.Fatalf("Validate() error = %v", err)
			case tt.wantErr != "" && (err == nil || !strings.Contains(err.Error(), tt.wantErr)):
				t.Fatalf("Validate() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestYAMLMasksSecrets(t *testing.T) {
	o := validOptions()
	o.ReasonerOptions.APIKey = "sk-abcdefghijklmnop"
	o.MqttOptions.Password = "hunter2"
	o.S3Options.SecretAccessKey = "minio-secret"

	data, err := o.YAML()
	if err != nil {
		t.Fatalf("YAML() error = %v", err)
	}
	out := string(data)
	for _, secret := range []string{"abcdefghijklmnop", "hunter2", "minio-secret"} {
		if strings.Contains(out, secret) {
			t.Errorf("YAML() leaks %q:\n%s", secret, out)
		}
	}
	if o.ReasonerOptions.APIKey != "sk-abcdefghijklmnop" {
		t.Error("YAML() modified the live options")
	}

	var doc struct {
		Flight map[string]any `yaml:"flight"`
		Drone  map[string]any `yaml:"drone"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		t.Fatalf("output is not YAML: %v", err)
	}
	if got := doc.Flight["max-height"]; got != 150 {
		t.Errorf("flight.max-height = %v, want 150", got)
	}
	if got := doc.Drone["driver"]; got != "sim" {
		t.Errorf("drone.driver = %v, want sim", got)
	}
}

func TestConfig(t *testing.T) {
	o := validOptions()
	o.Headless = true

	cfg, err := o.Config()
	if err != nil {
		t.Fatalf("Config() error = %v", err)
	}
	if cfg.Interactive {
		t.Error("Config().Interactive = true for a headless agent")
	}
	if cfg.FlightOptions != o.FlightOptions || cfg.JournalOptions != o.JournalOptions {
		t.Error("Config() does not share the option groups")
	}
}
