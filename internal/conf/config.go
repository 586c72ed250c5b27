// Package conf loads claimflow's tuning knobs with viper, using a
// precedence chain suited to a one-shot batch job: fields set in an
// optional --config TOML file override the CLI flags (parsed by
// cmd/claimflow), which override built-in defaults. The one exception
// is the drain deadline, where a non-zero --drain-deadline flag wins.
package conf

import (
	"os"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// PayerConfig describes one configured payer's simulated adjudication
// latency range, corresponding to a repeated --payer flag or a
// [[payers]] table in the config file.
type PayerConfig struct {
	ID       string `mapstructure:"id"`
	MinDelay string `mapstructure:"min_delay"`
	MaxDelay string `mapstructure:"max_delay"`
}

// File is the decoded shape of an optional TOML config file. Any
// field left unset here falls back to the CLI flag or its default.
type File struct {
	Rate            float64       `mapstructure:"rate"`
	ReportInterval  int           `mapstructure:"report_interval"`
	DrainDeadline   string        `mapstructure:"drain_deadline"`
	Payers          []PayerConfig `mapstructure:"payers"`
	NewRelicLicense string        `mapstructure:"newrelic_license_key"`
}

// Load reads path as TOML with BurntSushi's decoder, merges the
// result into a viper instance, and decodes it into a File with
// mapstructure — viper's own bundled TOML parser never runs; parsing
// is BurntSushi's job, viper's is the map-based merge/unmarshal layer
// it already does for every other config source. An empty path is not
// an error: it simply yields a zero-value File so callers fall
// through to flag defaults.
func Load(path string) (File, error) {
	var f File
	if path == "" {
		return f, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return f, errors.Wrapf(err, "reading config file %s", path)
	}

	var raw map[string]interface{}
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return f, errors.Wrapf(err, "parsing config file %s", path)
	}

	v := viper.New()
	if err := v.MergeConfigMap(raw); err != nil {
		return f, errors.Wrap(err, "merging config file")
	}

	if err := v.Unmarshal(&f, func(c *mapstructure.DecoderConfig) {
		c.TagName = "mapstructure"
	}); err != nil {
		return f, errors.Wrap(err, "decoding config file")
	}
	return f, nil
}
