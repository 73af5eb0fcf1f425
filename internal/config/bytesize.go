package config

import (
	"fmt"
	"reflect"

	"github.com/docker/go-units"
)

// ByteSize is an int64 byte count that decodes from human-readable strings
// ("10MB", "256KB") in config.yaml, via RAMInBytes.
type ByteSize int64

func (b ByteSize) Int64() int64 {
	return int64(b)
}

func (b ByteSize) String() string {
	return units.BytesSize(float64(b))
}

// byteSizeDecodeHook lets viper's mapstructure Unmarshal turn a YAML string
// like "10MB" into a ByteSize without a second parsing pass.
func byteSizeDecodeHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != reflect.TypeOf(ByteSize(0)) {
		return data, nil
	}

	switch v := data.(type) {
	case string:
		n, err := units.RAMInBytes(v)
		if err != nil {
			return nil, fmt.Errorf("invalid byte size %q: %w", v, err)
		}
		return ByteSize(n), nil
	case int:
		return ByteSize(v), nil
	case int64:
		return ByteSize(v), nil
	case float64:
		return ByteSize(int64(v)), nil
	default:
		return data, nil
	}
}
