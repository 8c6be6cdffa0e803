package options

import (
	"fmt"
	"net"
	"slices"
	"strconv"

	"github.com/spf13/pflag"
)

// IOptions is implemented by every option group that can be attached to a command.
type IOptions interface {
	// Validate checks the values and returns every problem found.
	Validate() []error

	// AddFlags registers the group's flags on the given flag set.
	AddFlags(fs *pflag.FlagSet, prefixes ...string)
}

// ValidateAddress checks that addr is a host:port pair with a usable port.
func ValidateAddress(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("%q is not in host:port format: %w", addr, err)
	}
	p, err := strconv.Atoi(port)
	if err != nil || p < 0 || p > 65535 {
		return fmt.Errorf("%q is not a valid port", port)
	}
	return nil
}

func validatePort(flag string, port int) error {
	if port < 0 || port > 65535 {
		return fmt.Errorf("--%s must be between 0 and 65535, got %d", flag, port)
	}
	return nil
}

// validateListener checks a network/address pair given to net.Listen.
func validateListener(group, network, addr string) []error {
	var errs []error
	if !slices.Contains([]string{"tcp", "tcp4", "tcp6"}, network) {
		errs = append(errs, fmt.Errorf("--%s.network must be tcp, tcp4 or tcp6, got %q", group, network))
	}
	if err := ValidateAddress(addr); err != nil {
		errs = append(errs, fmt.Errorf("--%s.addr: %w", group, err))
	}
	return errs
}
