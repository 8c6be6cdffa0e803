package options

import (
	"encoding/json"
	"errors"
	"os"

	"gopkg.in/yaml.v3"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/flightpeer/internal/flightagent"
	"github.com/autopeer-io/flightpeer/pkg/app"
	"github.com/autopeer-io/flightpeer/pkg/log"
	"github.com/autopeer-io/flightpeer/pkg/options"
)

const masked = "***"

type AgentOptions struct {
	FlightOptions   *options.FlightOptions   `json:"flight" mapstructure:"flight"`
	ReasonerOptions *options.ReasonerOptions `json:"reasoner" mapstructure:"reasoner"`
	DroneOptions    *options.DroneOptions    `json:"drone" mapstructure:"drone"`
	MqttOptions     *options.MqttOptions     `json:"mqtt" mapstructure:"mqtt"`
	HttpOptions     *options.HttpOptions     `json:"http" mapstructure:"http"`
	GrpcOptions     *options.GrpcOptions     `json:"grpc" mapstructure:"grpc"`
	S3Options       *options.S3Options       `json:"s3" mapstructure:"s3"`
	JournalOptions  *options.JournalOptions  `json:"journal" mapstructure:"journal"`
	TraceOptions    *options.TraceOptions    `json:"trace" mapstructure:"trace"`
	Log             *log.Options             `json:"log" mapstructure:"log"`

	// Headless disables the console; sessions arrive over MQTT or HTTP only.
	Headless bool `json:"headless" mapstructure:"headless"`

	PrintConfig bool `json:"-" mapstructure:"print-config"`
}

var _ app.NamedFlagSetOptions = (*AgentOptions)(nil)

func NewAgentOptions() *AgentOptions {
	o := &AgentOptions{
		FlightOptions:   options.NewFlightOptions(),
		ReasonerOptions: options.NewReasonerOptions(),
		DroneOptions:    options.NewDroneOptions(),
		MqttOptions:     options.NewMqttOptions(),
		HttpOptions:     options.NewHttpOptions(),
		GrpcOptions:     options.NewGrpcOptions(),
		S3Options:       options.NewS3Options(),
		JournalOptions:  options.NewJournalOptions(),
		TraceOptions:    options.NewTraceOptions(),
		Log:             log.NewOptions(),
	}

	return o
}

func (o *AgentOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.FlightOptions.AddFlags(fss.FlagSet("flight"))
	o.ReasonerOptions.AddFlags(fss.FlagSet("reasoner"))
	o.DroneOptions.AddFlags(fss.FlagSet("drone"))
	o.MqttOptions.AddFlags(fss.FlagSet("mqtt"))
	o.HttpOptions.AddFlags(fss.FlagSet("http"))
	o.GrpcOptions.AddFlags(fss.FlagSet("grpc"))
	o.S3Options.AddFlags(fss.FlagSet("s3"))
	o.JournalOptions.AddFlags(fss.FlagSet("journal"))
	o.TraceOptions.AddFlags(fss.FlagSet("trace"))
	o.Log.AddFlags(fss.FlagSet("Log"))

	fs := fss.FlagSet("agent")
	fs.BoolVar(&o.Headless, "headless", o.Headless, "Run without the interactive console. Requires --mqtt.enabled or --http.enabled.")
	fs.BoolVar(&o.PrintConfig, "print-config", o.PrintConfig, "Print the effective configuration as YAML and exit.")
	return fss
}

func (o *AgentOptions) Complete() error {
	return nil
}

func (o *AgentOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.FlightOptions.Validate()...)
	errs = append(errs, o.ReasonerOptions.Validate()...)
	errs = append(errs, o.DroneOptions.Validate()...)
	errs = append(errs, o.MqttOptions.Validate()...)
	errs = append(errs, o.HttpOptions.Validate()...)
	errs = append(errs, o.GrpcOptions.Validate()...)
	errs = append(errs, o.S3Options.Validate()...)
	errs = append(errs, o.JournalOptions.Validate()...)
	errs = append(errs, o.TraceOptions.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	if o.Headless && !o.MqttOptions.Enabled && !o.HttpOptions.Enabled {
		errs = append(errs, errors.New("--headless needs --mqtt.enabled or --http.enabled, otherwise nothing can start a session"))
	}
	return utilerrors.NewAggregate(errs)
}

func (o *AgentOptions) Config() (*flightagent.Config, error) {
	return &flightagent.Config{
		FlightOptions:   o.FlightOptions,
		ReasonerOptions: o.ReasonerOptions,
		DroneOptions:    o.DroneOptions,
		MqttOptions:     o.MqttOptions,
		HttpOptions:     o.HttpOptions,
		GrpcOptions:     o.GrpcOptions,
		S3Options:       o.S3Options,
		JournalOptions:  o.JournalOptions,
		Interactive:     !o.Headless,
		In:              os.Stdin,
		Out:             os.Stdout,
	}, nil
}

// YAML renders the options in config file form with secrets masked.
func (o *AgentOptions) YAML() ([]byte, error) {
	c := *o
	reasoner := *o.ReasonerOptions
	reasoner.APIKey = reasoner.MaskedAPIKey()
	c.ReasonerOptions = &reasoner
	mqtt := *o.MqttOptions
	if mqtt.Password != "" {
		mqtt.Password = masked
	}
	c.MqttOptions = &mqtt
	s3 := *o.S3Options
	if s3.SecretAccessKey != "" {
		s3.SecretAccessKey = masked
	}
	c.S3Options = &s3

	// Round trip through JSON so keys match the flag names.
	data, err := json.Marshal(&c)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return yaml.Marshal(doc)
}
