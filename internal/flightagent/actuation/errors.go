package actuation

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrActuationFailed is returned once a command's retry budget is spent.
	ErrActuationFailed = errors.New("actuation failed")

	// ErrCaptureFailed is returned when no frame could be captured.
	ErrCaptureFailed = errors.New("capture failed")

	// ErrConnectivityLost is returned when the vehicle link is gone. It is never retried.
	ErrConnectivityLost = errors.New("connectivity lost")

	// ErrCommandRefused is returned when the vehicle answered with a refusal.
	// Sending the same command again gets the same answer, so it is never retried.
	ErrCommandRefused = errors.New("command refused by vehicle")
)

// Normalised driver failure codes.
var (
	ErrDriverTimeout      = errors.New("driver timeout")
	ErrDriverRefused      = errors.New("driver refused")
	ErrDriverNotConnected = errors.New("driver not connected")
	ErrDriverInternal     = errors.New("driver internal")
)

// driverTokens maps reply fragments to codes. Tables are checked in order,
// so the more specific codes come first.
var driverTokens = []struct {
	code   error
	tokens []string
}{
	{ErrDriverNotConnected, []string{"NOT CONNECTED", "NO CONNECTION", "NETWORK IS UNREACHABLE", "CONNECTION REFUSED", "NO ROUTE TO HOST", "USE OF CLOSED NETWORK CONNECTION"}},
	{ErrDriverTimeout, []string{"TIMEOUT", "TIMED OUT", "DEADLINE EXCEEDED", "I/O TIMEOUT"}},
	{ErrDriverRefused, []string{"ERROR", "OUT OF RANGE", "NOT JOYSTICK", "MOTOR STOP", "NO VALID IMU", "OUT OF BOUNDS"}},
}

// DriverError is a driver failure normalised to one of the ErrDriver codes.
// It keeps the original error for diagnostics.
type DriverError struct {
	Code     error
	Op       string
	Original error
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("%s: %v (driver: %v)", e.Op, e.Code, e.Original)
}

func (e *DriverError) Unwrap() []error {
	return []error{e.Code, e.Original}
}

// Retryable reports whether another attempt may succeed.
func (e *DriverError) Retryable() bool {
	return !errors.Is(e.Code, ErrDriverNotConnected) && !errors.Is(e.Code, ErrDriverRefused)
}

// Normalize maps a driver error for operation op to a *DriverError. Errors
// that already are *DriverError pass through.
func Normalize(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *DriverError
	if errors.As(err, &de) {
		return err
	}
	return &DriverError{Code: classify(err), Op: op, Original: err}
}

func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrDriverTimeout
	}
	msg := strings.ToUpper(err.Error())
	for _, row := range driverTokens {
		for _, t := range row.tokens {
			if strings.Contains(msg, t) {
				return row.code
			}
		}
	}
	return ErrDriverInternal
}
