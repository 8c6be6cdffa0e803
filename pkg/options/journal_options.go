package options

import (
	"fmt"

	"github.com/spf13/pflag"
)

var _ IOptions = (*JournalOptions)(nil)

// JournalOptions configures the local sqlite journal of finished sessions.
type JournalOptions struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Path    string `json:"path" mapstructure:"path"`
}

func NewJournalOptions() *JournalOptions {
	return &JournalOptions{
		Enabled: true,
		Path:    "flightpeer.db",
	}
}

func (o *JournalOptions) Validate() []error {
	if o.Enabled && o.Path == "" {
		return []error{fmt.Errorf("--journal.path is required when the journal is enabled")}
	}
	return nil
}

func (o *JournalOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.BoolVar(&o.Enabled, "journal.enabled", o.Enabled, "Record finished sessions in a local sqlite journal.")
	fs.StringVar(&o.Path, "journal.path", o.Path, "Path of the sqlite journal file.")
}
