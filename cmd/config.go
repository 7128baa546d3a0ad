package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/alecthomas/units"
	"www.velocidex.com/golang/vbaunlock"
)

type fileConfig struct {
	Wordlist string `toml:"wordlist"`
	MaxSize  string `toml:"max_size"`
	Suffix   string `toml:"suffix"`
	LogLevel string `toml:"log_level"`
}

type settings struct {
	Wordlist string
	LogLevel string
	Options  vbaunlock.Options
}

func defaultSettings() settings {
	return settings{
		LogLevel: "info",
		Options:  vbaunlock.DefaultOptions(),
	}
}

// loadSettings overlays the keys defined in the TOML file at path.
func loadSettings(path string, cfg settings) (settings, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return settings{}, fmt.Errorf("load config: %w", err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return settings{}, fmt.Errorf("unknown config key %v", undecoded[0])
	}

	if meta.IsDefined("wordlist") {
		cfg.Wordlist = strings.TrimSpace(raw.Wordlist)
	}

	if meta.IsDefined("max_size") {
		size, err := units.ParseBase2Bytes(strings.TrimSpace(raw.MaxSize))
		if err != nil {
			return settings{}, fmt.Errorf("parse max_size: %w", err)
		}
		cfg.Options.MaxSize = int64(size)
	}

	if meta.IsDefined("suffix") {
		suffix := strings.TrimSpace(raw.Suffix)
		if suffix == "" {
			return settings{}, fmt.Errorf("suffix must not be empty")
		}
		cfg.Options.Suffix = suffix
	}

	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	return cfg, nil
}
