// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearth Contributors

package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment override, e.g. HEARTH_HTTP_ADDR.
const EnvPrefix = "HEARTH_"

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"http-addr":    "http.addr",
	"database-url": "database.url",
	"auto-migrate": "database.auto_migrate",
	"log-format":   "log.format",
	"log-level":    "log.level",
	"metrics-addr": "metrics.addr",
}

// LoadOptions says where configuration comes from.
type LoadOptions struct {
	// File is a YAML config file. Empty means none.
	File string
	// DotEnv is loaded into the process environment first when it exists.
	// Variables already set are not overridden.
	DotEnv string
	// Flags contributes explicitly set flags named in flagKeys.
	Flags *pflag.FlagSet
	// LookupEnv replaces os.LookupEnv for the DATABASE_URL fallback.
	LookupEnv func(string) (string, bool)
}

// RegisterFlags adds the config-backed flags with their default values.
func RegisterFlags(flags *pflag.FlagSet) {
	def := Default()
	flags.String("http-addr", def.HTTP.Addr, "API listen address")
	flags.String("database-url", "", "PostgreSQL URL (default: $DATABASE_URL)")
	flags.Bool("auto-migrate", def.Database.AutoMigrate, "apply pending migrations on startup")
	flags.String("log-format", def.Log.Format, "log format (json or text)")
	flags.String("log-level", def.Log.Level, "log level (debug, info, warn, error)")
	flags.String("metrics-addr", def.Metrics.Addr, "metrics/health HTTP address (empty = disabled)")
}

// Load builds the configuration. It does not call Validate.
func Load(opts LoadOptions) (*Config, error) {
	if opts.LookupEnv == nil {
		opts.LookupEnv = os.LookupEnv
	}

	if opts.DotEnv != "" {
		if err := godotenv.Load(opts.DotEnv); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("file", opts.DotEnv).Wrap(err)
		}
	}

	k := koanf.New(".")

	if opts.File != "" {
		if err := ValidateFile(opts.File); err != nil {
			return nil, err
		}
		if err := k.Load(file.Provider(opts.File), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("file", opts.File).Wrap(err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "environment").Wrap(err)
	}

	if !k.Exists("database.url") {
		if url, ok := opts.LookupEnv("DATABASE_URL"); ok && url != "" {
			if err := k.Set("database.url", url); err != nil {
				return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "DATABASE_URL").Wrap(err)
			}
		}
	}

	if opts.Flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(opts.Flags, ".", k, flagKey(opts.Flags)), nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "decode config").Wrap(err)
	}
	return &cfg, nil
}

// envKey maps HEARTH_RATELIMIT_MAX_ATTEMPTS to ratelimit.max_attempts.
// Section names contain no underscores, so only the first one is a separator.
func envKey(name string) string {
	key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	return strings.Replace(key, "_", ".", 1)
}

// flagKey renames flags to config keys and skips flags that back none.
// posflag only applies an unchanged flag when no lower layer set its key.
func flagKey(flags *pflag.FlagSet) func(*pflag.Flag) (string, any) {
	return func(f *pflag.Flag) (string, any) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return "", nil
		}
		return key, posflag.FlagVal(flags, f)
	}
}
