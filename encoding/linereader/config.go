package linereader

import (
	"context"
	"io/ioutil"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"gopkg.in/yaml.v3"
)

// Config is the operator-facing form of Opts, usually stored as YAML:
//
//   prefetch: true
//   mmap: false
//   force: simple
type Config struct {
	Capabilities `yaml:",inline"`
	Force        Backend `yaml:"force"`
	Prefer       Backend `yaml:"prefer"`
	LowMemory    bool    `yaml:"low_memory"`
}

// ParseConfig parses YAML configuration data. Fields missing from data keep
// the values of DefaultOpts.
func ParseConfig(data []byte) (Opts, error) {
	c := Config{Capabilities: DefaultCapabilities}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Opts{}, errors.E(errors.Invalid, err, "parse line reader config")
	}
	opts := DefaultOpts
	opts.Capabilities = c.Capabilities
	opts.Force = c.Force
	opts.Prefer = c.Prefer
	opts.LowMemory = c.LowMemory
	return opts, nil
}

// LoadConfig reads a YAML configuration file; see ParseConfig.
func LoadConfig(ctx context.Context, path string) (opts Opts, err error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return Opts{}, err
	}
	defer func() {
		if e := f.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	data, err := ioutil.ReadAll(f.Reader(ctx))
	if err != nil {
		return Opts{}, errors.E(err, "read", path)
	}
	return ParseConfig(data)
}
