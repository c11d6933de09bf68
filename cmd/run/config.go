package main

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/kilnwasm/kiln/compiler"
	"github.com/kilnwasm/kiln/engine"
	"github.com/kilnwasm/kiln/runtime"
)

// fileConfig is the optional TOML configuration for the runner.
type fileConfig struct {
	Target         string   `toml:"target"`
	Features       []string `toml:"features"`
	CallStackDepth uint32   `toml:"call_stack_depth"`
	CacheDir       string   `toml:"cache_dir"`
	Metering       bool     `toml:"metering"`
	Fuel           uint64   `toml:"fuel"`
}

var featureNames = map[string]compiler.Features{
	"mutable-global": compiler.FeatureMutableGlobal,
	"sign-extension": compiler.FeatureSignExtension,
	"multi-value":    compiler.FeatureMultiValue,
	"bulk-memory":    compiler.FeatureBulkMemory,
	"threads":        compiler.FeatureThreads,
}

// loadConfig reads path (when non-empty) and converts it to runtime
// options. Fuel carries separately since it applies per instance.
func loadConfig(path string) (runtime.Options, uint64, error) {
	var opts runtime.Options
	if path == "" {
		return opts, 0, nil
	}
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return opts, 0, fmt.Errorf("config %s: %w", path, err)
	}

	cfg := compiler.NewConfig()
	if fc.Target != "" {
		t, err := compiler.ParseTarget(fc.Target)
		if err != nil {
			return opts, 0, err
		}
		cfg.Target = t
	}
	if len(fc.Features) > 0 {
		var feats compiler.Features
		for _, name := range fc.Features {
			f, ok := featureNames[name]
			if !ok {
				return opts, 0, fmt.Errorf("config %s: unknown feature %q", path, name)
			}
			feats |= f
		}
		cfg.Features = feats
	}
	if fc.CallStackDepth > 0 {
		cfg.CallStackDepth = fc.CallStackDepth
	}
	if fc.Metering {
		cfg = cfg.WithMiddleware(compiler.NewMetering())
	}
	opts.Config = cfg

	if fc.CacheDir != "" {
		if err := os.MkdirAll(fc.CacheDir, 0o755); err != nil {
			return opts, 0, fmt.Errorf("cache dir: %w", err)
		}
		cache, err := engine.NewFileCache(fc.CacheDir)
		if err != nil {
			return opts, 0, err
		}
		opts.Cache = cache
	}
	return opts, fc.Fuel, nil
}
