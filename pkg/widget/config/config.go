// Package config holds the widget configuration: defaults, per-key overrides
// and loading from yaml.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/supportchat/pkg/widget/chaterr"
)

// Recognized override keys.
const (
	KeyTitle       = "title"
	KeyTitleColor  = "titleColor"
	KeyBackground  = "background"
	KeyEvent       = "event"
	KeyURL         = "url"
	KeyPort        = "port"
	KeyProtocol    = "protocol"
	KeyDialTimeout = "dialTimeout"
)

// Config is immutable once a widget has been built from it.
type Config struct {
	Title      string `yaml:"title"`
	TitleColor string `yaml:"titleColor"`
	Background string `yaml:"background"`
	// Event is the name outbound messages are emitted under.
	Event       string        `yaml:"event"`
	URL         string        `yaml:"url"`
	Port        int           `yaml:"port"`
	Protocol    string        `yaml:"protocol"`
	DialTimeout time.Duration `yaml:"dialTimeout"`
}

func Defaults() Config {
	return Config{
		Title:       "Chat",
		TitleColor:  "#ffffff",
		Background:  "#009688",
		Event:       "send-message",
		URL:         "localhost",
		Port:        8080,
		Protocol:    "ws",
		DialTimeout: 10 * time.Second,
	}
}

// Address is the realtime endpoint, scheme://host:port.
func (c Config) Address() string {
	return fmt.Sprintf("%s://%s:%d", c.Protocol, c.URL, c.Port)
}

// Validate checks the values a widget cannot run without.
func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Event) == "":
		return chaterr.Configuration("config", "event name is empty")
	case strings.TrimSpace(c.URL) == "":
		return chaterr.Configuration("config", "url is empty")
	case c.Port <= 0 || c.Port > 65535:
		return chaterr.Configuration("config", "port %d out of range", c.Port)
	case strings.TrimSpace(c.Protocol) == "":
		return chaterr.Configuration("config", "protocol is empty")
	}
	return nil
}

// Merge returns base with every recognized key in overrides applied. Keys match
// case-insensitively; unrecognized keys are ignored. A recognized key holding a
// value of the wrong type is a ConfigurationError.
func Merge(base Config, overrides map[string]any) (Config, error) {
	out := base
	for k, v := range overrides {
		if v == nil {
			continue
		}
		var err error
		switch strings.ToLower(k) {
		case strings.ToLower(KeyTitle):
			out.Title, err = asString(k, v)
		case strings.ToLower(KeyTitleColor):
			out.TitleColor, err = asString(k, v)
		case strings.ToLower(KeyBackground):
			out.Background, err = asString(k, v)
		case strings.ToLower(KeyEvent):
			out.Event, err = asString(k, v)
		case strings.ToLower(KeyURL):
			out.URL, err = asString(k, v)
		case strings.ToLower(KeyProtocol):
			out.Protocol, err = asString(k, v)
		case strings.ToLower(KeyPort):
			out.Port, err = asInt(k, v)
		case strings.ToLower(KeyDialTimeout):
			out.DialTimeout, err = asDuration(k, v)
		}
		if err != nil {
			return base, err
		}
	}
	return out, nil
}

// Load reads a yaml file of overrides and merges it onto Defaults.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "read widget config %s", path)
	}
	return Parse(b)
}

// Parse merges yaml overrides onto Defaults.
func Parse(b []byte) (Config, error) {
	overrides := map[string]any{}
	if err := yaml.Unmarshal(b, &overrides); err != nil {
		return Config{}, errors.Wrap(err, "parse widget config")
	}
	return Merge(Defaults(), overrides)
}

func asString(key string, v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case fmt.Stringer:
		return t.String(), nil
	default:
		return "", chaterr.Configuration("config", "%s: expected string, got %T", key, v)
	}
}

func asInt(key string, v any) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case uint64:
		return int(t), nil
	case float64:
		if t != float64(int(t)) {
			return 0, chaterr.Configuration("config", "%s: %v is not an integer", key, t)
		}
		return int(t), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, chaterr.Configuration("config", "%s: %q is not an integer", key, t)
		}
		return n, nil
	default:
		return 0, chaterr.Configuration("config", "%s: expected integer, got %T", key, v)
	}
}

func asDuration(key string, v any) (time.Duration, error) {
	switch t := v.(type) {
	case time.Duration:
		return t, nil
	case string:
		d, err := time.ParseDuration(strings.TrimSpace(t))
		if err != nil {
			return 0, chaterr.Configuration("config", "%s: %q is not a duration", key, t)
		}
		return d, nil
	case int:
		return time.Duration(t) * time.Millisecond, nil
	case int64:
		return time.Duration(t) * time.Millisecond, nil
	case float64:
		return time.Duration(t * float64(time.Millisecond)), nil
	default:
		return 0, chaterr.Configuration("config", "%s: expected duration, got %T", key, v)
	}
}
