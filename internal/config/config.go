// Package config holds the pieces shared by the binaries' YAML
// configuration files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sosodev/duration"
	"gopkg.in/yaml.v3"
)

// Error reports an invalid configuration value
type Error struct {
	Field string
	Msg   string
}

func NewError(field, msg string) *Error {
	return &Error{Field: field, Msg: msg}
}

func (e *Error) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// Duration is a time.Duration written either as a Go duration ("4s",
// "250ms") or as an ISO 8601 duration ("PT4S").
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" {
		*d = 0
		return nil
	}

	if strings.HasPrefix(strings.ToUpper(s), "P") {
		parsed, err := duration.Parse(strings.ToUpper(s))
		if err != nil {
			return fmt.Errorf("parsing ISO 8601 duration %q: %w", s, err)
		}
		*d = Duration(parsed.ToTimeDuration())
		return nil
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Settings are the options every binary has
type Settings struct {
	LogLevel slog.Level `yaml:"logLevel"`
}

// Radio selects the MQTT air a node joins
type Radio struct {
	Broker      string `yaml:"broker"`
	Network     string `yaml:"network"`
	TopicPrefix string `yaml:"topicPrefix"`
	ClientID    string `yaml:"clientId"`
	QoS         byte   `yaml:"qos"`
}

func (r Radio) Validate() error {
	if r.Broker == "" {
		return NewError("radio.broker", "is required")
	}
	if r.Network == "" {
		return NewError("radio.network", "is required")
	}
	if r.QoS > 2 {
		return NewError("radio.qos", "must be 0, 1 or 2")
	}
	return nil
}

// LoadYAML decodes the file at path into v. Unknown keys are rejected.
func LoadYAML(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading configuration: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err = dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}
