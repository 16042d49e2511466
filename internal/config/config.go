// Package config is the ambient configuration layer generalized from the
// teacher's internal/config package: signature defaults, synthetic-ref GC
// thresholds, and the default ancestry-walk ref used by populateRoots
// (spec §4.4). Backed by TOML rather than the teacher's ad hoc format,
// following odvcencio-got's use of github.com/BurntSushi/toml.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is read from <meta-repo>/.metarepo/config.toml; any field left
// unset takes the Default() value.
type Config struct {
	Signature struct {
		Name  string `toml:"name"`
		Email string `toml:"email"`
	} `toml:"signature"`

	GC struct {
		// RootRefs lists the named meta refs populateRoots walks by default.
		RootRefs []string `toml:"root_refs"`
		// OldRefMonths is the age threshold removeOld uses when isOld is not
		// overridden by the caller.
		OldRefMonths int `toml:"old_ref_months"`
	} `toml:"gc"`

	Sequencer struct {
		// SynthRefPrefix is the ref namespace synthetic refs live under.
		SynthRefPrefix string `toml:"synth_ref_prefix"`
	} `toml:"sequencer"`
}

// Default returns the configuration used when no config file is present.
func Default() Config {
	var c Config
	c.Signature.Name = "unknown"
	c.Signature.Email = "unknown@example.com"
	c.GC.RootRefs = []string{"refs/heads/master"}
	c.GC.OldRefMonths = 6
	c.Sequencer.SynthRefPrefix = "refs/commits/"
	return c
}

// Load reads and merges config from path over Default(). A missing file is
// not an error; it simply yields the default configuration.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if len(cfg.GC.RootRefs) == 0 {
		cfg.GC.RootRefs = Default().GC.RootRefs
	}
	if cfg.Sequencer.SynthRefPrefix == "" {
		cfg.Sequencer.SynthRefPrefix = Default().Sequencer.SynthRefPrefix
	}
	return cfg, nil
}
