package config

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	// PositionPlaceholder is replaced with the position encoding in provider
	// arguments and stdin templates.
	PositionPlaceholder = "{position}"

	// DefaultStdin is what the reference engines expect on standard input.
	DefaultStdin = "position fen " + PositionPlaceholder + "\n"

	DefaultTimeout     = 30 * time.Second
	DefaultConcurrency = 1
	DefaultRetries     = 0

	maxConcurrency = 256
	maxRetries     = 10
)

// Config represents the run configuration.
type Config struct {
	Timeout     time.Duration `yaml:"timeout"`
	Concurrency int           `yaml:"concurrency"`
	Retries     int           `yaml:"retries"`
	Providers   Providers     `yaml:"providers"`
}

// Providers holds the engine under test and the two reference engines.
type Providers struct {
	Subject    Provider `yaml:"subject"`
	ReferenceA Provider `yaml:"reference_a"`
	ReferenceB Provider `yaml:"reference_b"`
}

// Provider describes how to invoke a single scoring engine.
type Provider struct {
	Name    string        `yaml:"name"`
	Path    string        `yaml:"path"`
	Args    []string      `yaml:"args,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
	// Stdin is the template written to the process. Nil means DefaultStdin
	// and an empty string means nothing is written.
	Stdin *string `yaml:"stdin,omitempty"`
}

// StdinTemplate returns the stdin template with the default applied.
func (p Provider) StdinTemplate() string {
	if p.Stdin == nil {
		return DefaultStdin
	}
	return *p.Stdin
}

// TimeoutOr returns the provider timeout, or def when none is set.
func (p Provider) TimeoutOr(def time.Duration) time.Duration {
	if p.Timeout > 0 {
		return p.Timeout
	}
	return def
}

// Default returns the configuration of the stock harness layout where each
// engine binary lives in a directory named after it.
func Default() *Config {
	return &Config{
		Timeout:     DefaultTimeout,
		Concurrency: DefaultConcurrency,
		Retries:     DefaultRetries,
		Providers: Providers{
			Subject:    Provider{Name: "pismo", Path: "./pismo/pismo"},
			ReferenceA: Provider{Name: "stockfish", Path: "./stockfish/stockfish"},
			ReferenceB: Provider{Name: "gull", Path: "./gull/gull"},
		},
	}
}

// Load reads the config file at path on top of the defaults. An empty path
// returns the defaults.
func Load(path string) (*Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening config file: %s", path)
	}
	defer f.Close()

	b, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading config file: %s", path)
	}

	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, errors.Wrapf(err, "error unmarshalling config file: %s", path)
	}

	if err := c.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config file: %s", path)
	}

	return c, nil
}

// Validate checks the configuration and names unnamed providers after their role.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config required")
	}
	if c.Timeout <= 0 {
		return errors.Errorf("timeout must be positive: %s", c.Timeout)
	}
	if c.Concurrency < 1 || c.Concurrency > maxConcurrency {
		return errors.Errorf("concurrency must be between 1 and %d: %d", maxConcurrency, c.Concurrency)
	}
	if c.Retries < 0 || c.Retries > maxRetries {
		return errors.Errorf("retries must be between 0 and %d: %d", maxRetries, c.Retries)
	}

	for _, p := range c.Providers.list() {
		if strings.TrimSpace(p.Path) == "" {
			return errors.Errorf("provider %s: path required", p.role)
		}
		if p.Timeout < 0 {
			return errors.Errorf("provider %s: timeout must not be negative: %s", p.role, p.Timeout)
		}
		if p.Name == "" {
			p.Name = p.role
		}
	}

	return nil
}

type roleProvider struct {
	*Provider
	role string
}

func (p *Providers) list() []roleProvider {
	return []roleProvider{
		{&p.Subject, "subject"},
		{&p.ReferenceA, "reference_a"},
		{&p.ReferenceB, "reference_b"},
	}
}
