// Copyright 2025 Certen Protocol

package embedded

import "time"

func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// parseUTC parses a timestamp previously produced by nowUTC. An empty
// string (field never set) yields (nil, nil), not an error.
func parseUTC(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
