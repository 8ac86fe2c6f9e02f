package optimization

import (
	"fmt"
	"strings"
)

// Option is a single solver option.
type Option struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (o Option) String() string {
	return o.Key + " " + o.Value
}

// ParseOptions splits "name value" lines. Blank lines and lines starting
// with '#' are skipped.
func ParseOptions(lines []string) ([]Option, error) {
	opts := make([]Option, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("%w: %q, want \"name value\"", ErrInvalidOption, line)
		}
		opts = append(opts, Option{Key: fields[0], Value: fields[1]})
	}
	return opts, nil
}

// Lookup returns the value of the last option named key.
func Lookup(opts []Option, key string) (string, bool) {
	for i := len(opts) - 1; i >= 0; i-- {
		if opts[i].Key == key {
			return opts[i].Value, true
		}
	}
	return "", false
}
