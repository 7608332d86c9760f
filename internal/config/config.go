// Package config loads the TOML settings used by the nrbf command.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/containerd/errdefs"
	"github.com/containerd/log"
	"github.com/sirupsen/logrus"

	"github.com/odvcencio/nrbf/pkg/nrbf"
	"github.com/odvcencio/nrbf/pkg/payload"
)

// EnvPath names the environment variable consulted when no --config flag is
// given.
const EnvPath = "NRBF_CONFIG"

// Config mirrors the TOML file layout.
type Config struct {
	Decode Decode `toml:"decode"`
	Input  Input  `toml:"input"`
	Output Output `toml:"output"`
	Log    Log    `toml:"log"`
}

type Decode struct {
	MaxDepth      int  `toml:"max_depth"`
	MaxLength     int  `toml:"max_length"`
	StrictIDOrder bool `toml:"strict_id_order"`
}

type Input struct {
	Decompress string `toml:"decompress"`
	Base64     bool   `toml:"base64"`
	Hex        bool   `toml:"hex"`
	MaxSize    int64  `toml:"max_size"`
}

type Output struct {
	Format  string `toml:"format"`
	Compact bool   `toml:"compact"`
	Digest  string `toml:"digest"`
}

type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns the settings used when no file exists.
func Default() *Config {
	return &Config{
		Decode: Decode{MaxDepth: nrbf.DefaultMaxDepth},
		Input:  Input{Decompress: string(payload.CompressionAuto)},
		Output: Output{Format: "json", Digest: string(payload.BLAKE2b)},
		Log:    Log{Level: "warn", Format: string(log.TextFormat)},
	}
}

// Path returns explicit if set, else $NRBF_CONFIG, else the empty string.
func Path(explicit string) string {
	if explicit != "" {
		return explicit
	}
	return os.Getenv(EnvPath)
}

// Load reads the file at path over the defaults. An empty path or a missing
// file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("read config: %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		log.L.WithField("keys", strings.Join(keys, ",")).Warn("ignoring unknown config keys")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("read config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks enumerated values and limits.
func (c *Config) Validate() error {
	var errs []error
	if c.Decode.MaxDepth < 0 {
		errs = append(errs, fmt.Errorf("decode.max_depth must not be negative"))
	}
	if c.Decode.MaxLength < 0 {
		errs = append(errs, fmt.Errorf("decode.max_length must not be negative"))
	}
	if c.Input.MaxSize < 0 {
		errs = append(errs, fmt.Errorf("input.max_size must not be negative"))
	}
	if _, err := payload.ParseCompression(c.Input.Decompress); err != nil {
		errs = append(errs, fmt.Errorf("input.decompress: %w", err))
	}
	switch c.Output.Format {
	case "", "json", "yaml", "cbor":
	default:
		errs = append(errs, fmt.Errorf("output.format %q is not one of json, yaml, cbor", c.Output.Format))
	}
	if _, err := payload.ParseAlgorithm(c.Output.Digest); err != nil {
		errs = append(errs, fmt.Errorf("output.digest: %w", err))
	}
	if c.Log.Level != "" {
		if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
			errs = append(errs, fmt.Errorf("log.level: %v", err))
		}
	}
	switch log.OutputFormat(c.Log.Format) {
	case "", log.TextFormat, log.JSONFormat:
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not one of text, json", c.Log.Format))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", errdefs.ErrInvalidArgument, err)
	}
	return nil
}

// DecodeOptions converts the [decode] section.
func (c *Config) DecodeOptions() *nrbf.DecodeOptions {
	return &nrbf.DecodeOptions{
		MaxDepth:      c.Decode.MaxDepth,
		MaxLength:     c.Decode.MaxLength,
		StrictIDOrder: c.Decode.StrictIDOrder,
	}
}

// PayloadOptions converts the [input] section.
func (c *Config) PayloadOptions() payload.Options {
	comp, err := payload.ParseCompression(c.Input.Decompress)
	if err != nil {
		comp = payload.CompressionAuto
	}
	return payload.Options{
		Compression: comp,
		Base64:      c.Input.Base64,
		Hex:         c.Input.Hex,
		MaxSize:     c.Input.MaxSize,
	}
}

// Save atomically writes cfg to path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		cfg = Default()
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("write config: marshal: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("write config: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".config-tmp-*")
	if err != nil {
		return fmt.Errorf("write config: tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write config: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write config: close: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write config: rename: %w", err)
	}
	return nil
}
