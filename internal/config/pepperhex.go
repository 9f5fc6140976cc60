package config

import (
	"errors"
	"strconv"
	"strings"
)

// errMissingS3Bucket is returned by Load when blob_backend=s3 but no bucket
// was configured.
var errMissingS3Bucket = errors.New("config: s3_bucket is required when blob_backend is s3")

// errInvalidPepperHex is returned when CINDER_PEPPER_HEX cannot be parsed
// into a version->hex map.
var errInvalidPepperHex = errors.New("config: pepper_hex must be a comma-separated list of version=hexstring entries")

// parsePepperHex decodes the raw koanf value for pepper_hex — a string or
// string slice of "version=hexstring" entries, the shape env.Provider
// produces for a comma-separated CINDER_PEPPER_HEX value — into the
// version->hex map the pepper vault expects (spec.md §6's
// `pepperHex: {version→hex}` configuration surface).
func parsePepperHex(raw any) (map[int16]string, error) {
	entries, err := toStringSlice(raw)
	if err != nil {
		return nil, err
	}
	out := make(map[int16]string, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			return nil, errInvalidPepperHex
		}
		version, verr := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 16)
		if verr != nil {
			return nil, errInvalidPepperHex
		}
		out[int16(version)] = strings.TrimSpace(parts[1])
	}
	if len(out) == 0 {
		return nil, errInvalidPepperHex
	}
	return out, nil
}

func toStringSlice(raw any) ([]string, error) {
	switch v := raw.(type) {
	case nil:
		return nil, errInvalidPepperHex
	case string:
		return strings.Split(v, ","), nil
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, errInvalidPepperHex
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, errInvalidPepperHex
	}
}
