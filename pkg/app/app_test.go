package app

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/viper"
	cliflag "k8s.io/component-base/cli/flag"
)

type testOptions struct {
	Flight struct {
		MaxHeight int           `mapstructure:"max-height"`
		Timeout   time.Duration `mapstructure:"timeout"`
	} `mapstructure:"flight"`
	Name string `mapstructure:"name"`

	completed bool
	invalid   bool
}

func (o *testOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	fs := fss.FlagSet("flight")
	fs.IntVar(&o.Flight.MaxHeight, "flight.max-height", 150, "")
	fs.DurationVar(&o.Flight.Timeout, "flight.timeout", time.Second, "")
	fss.FlagSet("misc").StringVar(&o.Name, "name", "tello", "")
	return fss
}

func (o *testOptions) Complete() error {
	o.completed = true
	return nil
}

func (o *testOptions) Validate() error {
	if o.invalid {
		return errors.New("invalid")
	}
	return nil
}

func TestAppLayersFlagsEnvAndFile(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "agent.yaml")
	if err := os.WriteFile(cfg, []byte("flight:\n  max-height: 120\n  timeout: 3s\nname: from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FPTEST_NAME", "from-env")

	opts := &testOptions{}
	var ran bool
	a := NewApp("fptest", "test app",
		WithOptions(opts),
		WithDefaultValidArgs(),
		WithRunFunc(func() error { ran = true; return nil }),
	)
	a.Command().SetArgs([]string{"--config", cfg, "--flight.timeout", "5s"})

	if err := a.Command().Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !ran || !opts.completed {
		t.Fatalf("run func or Complete not called")
	}
	if opts.Flight.MaxHeight != 120 {
		t.Errorf("MaxHeight = %d, want value from file", opts.Flight.MaxHeight)
	}
	if opts.Flight.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want value from flag", opts.Flight.Timeout)
	}
	if opts.Name != "from-env" {
		t.Errorf("Name = %q, want value from environment", opts.Name)
	}
}

func TestAppValidationFailureSkipsRun(t *testing.T) {
	opts := &testOptions{invalid: true}
	var ran bool
	a := NewApp("fptest", "test app", WithOptions(opts), WithSilence(),
		WithRunFunc(func() error { ran = true; return nil }))
	a.Command().SetArgs(nil)

	if err := a.Command().Execute(); err == nil {
		t.Fatal("expected validation error")
	}
	if ran {
		t.Error("run func must not be called when validation fails")
	}
}

func TestAppRejectsPositionalArgs(t *testing.T) {
	a := NewApp("fptest", "test app", WithOptions(&testOptions{}), WithDefaultValidArgs(), WithSilence(),
		WithRunFunc(func() error { return nil }))
	a.Command().SetArgs([]string{"takeoff"})

	if err := a.Command().Execute(); err == nil {
		t.Fatal("expected an error for positional arguments")
	}
}

func TestAppReloadsOnConfigChange(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "agent.yaml")
	if err := os.WriteFile(cfg, []byte("flight:\n  max-height: 120\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	var reloaded atomic.Int64
	opts := &testOptions{}
	a := NewApp("fptest", "test app", WithOptions(opts),
		WithConfigReload(func(v *viper.Viper) { reloaded.Store(int64(v.GetInt("flight.max-height"))) }),
		WithRunFunc(func() error { return nil }))
	a.Command().SetArgs([]string{"--config", cfg})
	if err := a.Command().Execute(); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(cfg, []byte("flight:\n  max-height: 90\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for reloaded.Load() != 90 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if got := reloaded.Load(); got != 90 {
		t.Errorf("reloaded max-height = %d, want 90", got)
	}
}
