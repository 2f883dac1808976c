// Package scenario runs scripted publish/subscribe sessions against a
// middleware. Scenarios are described in TOML.
package scenario

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/rbaliyan/mom"
)

// Subscriber modes accepted in a scenario
const (
	ModeCallback = "callback"
	ModeQueue    = "queue"
)

var ErrInvalidConfig = errors.New("invalid scenario")

// Config describes one scenario
type Config struct {
	Name          string             `toml:"name"`
	SegmentPolicy string             `toml:"segment_policy"`
	Signals       []SignalConfig     `toml:"signal"`
	Subscribers   []SubscriberConfig `toml:"subscriber"`
	Publish       []PublishConfig    `toml:"publish"`
}

// SignalConfig creates a signal before anything subscribes
type SignalConfig struct {
	Path string `toml:"path"`
}

// SubscriberConfig adds one subscriber
type SubscriberConfig struct {
	Name string `toml:"name"`
	Path string `toml:"path"`
	Mode string `toml:"mode"`
	// Release drops a queue subscriber's handle right after subscribing
	Release bool `toml:"release"`
}

// PublishConfig publishes Data on Path, Repeat times
type PublishConfig struct {
	Path   string `toml:"path"`
	Data   []int  `toml:"data"`
	Repeat int    `toml:"repeat"`
}

// Load reads and validates a scenario file
func Load(path string) (*Config, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("scenario parse failed (%s): %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, fmt.Errorf("%w: unknown keys %s", ErrInvalidConfig, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Parse decodes and validates a scenario held in memory
func Parse(data string) (*Config, error) {
	var cfg Config
	if _, err := toml.Decode(data, &cfg); err != nil {
		return nil, fmt.Errorf("scenario parse failed: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate applies defaults and checks the scenario
func (c *Config) Validate() error {
	if c.Name == "" {
		c.Name = "scenario"
	}
	if _, err := mom.ParseSegmentPolicy(c.SegmentPolicy); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	for i := range c.Subscribers {
		s := &c.Subscribers[i]
		if s.Mode == "" {
			s.Mode = ModeCallback
		}
		if s.Mode != ModeCallback && s.Mode != ModeQueue {
			return fmt.Errorf("%w: subscriber %d: unknown mode %q", ErrInvalidConfig, i, s.Mode)
		}
		if s.Name == "" {
			s.Name = fmt.Sprintf("%s-%d", s.Mode, i)
		}
		if s.Release && s.Mode != ModeQueue {
			return fmt.Errorf("%w: subscriber %q: release only applies to queue subscribers", ErrInvalidConfig, s.Name)
		}
	}
	for i := range c.Publish {
		p := &c.Publish[i]
		if p.Repeat <= 0 {
			p.Repeat = 1
		}
		for _, b := range p.Data {
			if b < 0 || b > 255 {
				return fmt.Errorf("%w: publish %d: byte %d out of range", ErrInvalidConfig, i, b)
			}
		}
	}
	return nil
}

func (p PublishConfig) bytes() []byte {
	out := make([]byte, len(p.Data))
	for i, b := range p.Data {
		out[i] = byte(b)
	}
	return out
}

// Example is the built-in scenario: a callback signal, then a deeper signal
// with a free function, a bound method and a queue subscriber.
const Example = `
name = "example"

[[signal]]
path = "A.Cool.Signal"

[[signal]]
path = "a.b.c.def"

[[subscriber]]
name = "function"
path = "A.Cool.Signal"

[[subscriber]]
name = "function"
path = "a.b.c.def"

[[subscriber]]
name = "method"
path = "a.b.c.def"

[[subscriber]]
name = "poller"
path = "a.b.c.def"
mode = "queue"

[[publish]]
path = "A.Cool.Signal"
data = [1, 2, 3, 4, 5]

[[publish]]
path = "a.b.c.def"
data = [1, 2, 3, 4]

[[publish]]
path = "a.b.c.def"
data = [1, 2, 3]
`
