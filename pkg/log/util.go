package log

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// toFields turns the key/value list of a log call into zap fields. Bare
// errors and prebuilt zap.Fields take one slot. A trailing key without a
// value is kept under "arg".
func toFields(args ...any) []zap.Field {
	if len(args) == 0 {
		return nil
	}

	fields := make([]zap.Field, 0, len(args)/2+1)
	for len(args) > 0 {
		switch v := args[0].(type) {
		case zap.Field:
			fields = append(fields, v)
			args = args[1:]
			continue
		case error:
			fields = append(fields, zap.Error(v))
			args = args[1:]
			continue
		}

		if len(args) == 1 {
			fields = append(fields, zap.Any("arg", args[0]))
			break
		}

		key, ok := args[0].(string)
		if !ok {
			fields = append(fields, zap.Any(fmt.Sprintf("invalid_key_%v", args[0]), args[1]))
		} else {
			fields = append(fields, field(key, args[1]))
		}
		args = args[2:]
	}
	return fields
}

func field(key string, val any) zap.Field {
	switch v := val.(type) {
	case error:
		return zap.NamedError(key, v)
	case time.Duration:
		return zap.Duration(key, v)
	case time.Time:
		return zap.Time(key, v)
	case []byte:
		// Image frames are too large to log.
		return zap.Int(key+"_bytes", len(v))
	case fmt.Stringer:
		return zap.Stringer(key, v)
	default:
		return zap.Any(key, v)
	}
}
