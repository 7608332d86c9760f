package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/containerd/errdefs"
	"gotest.tools/v3/assert"

	"github.com/odvcencio/nrbf/pkg/payload"
)

func TestLoadMissingReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	assert.DeepEqual(t, cfg, Default())

	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load(\"\"): %v", err)
	}
	assert.DeepEqual(t, cfg, Default())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nrbf.toml")
	data := `
[decode]
max_length = 4096
strict_id_order = true

[input]
decompress = "zstd"
base64 = true

[output]
format = "yaml"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Decode.MaxDepth != Default().Decode.MaxDepth {
		t.Fatalf("max_depth = %d, want default %d", cfg.Decode.MaxDepth, Default().Decode.MaxDepth)
	}
	if cfg.Output.Format != "yaml" {
		t.Fatalf("output.format = %q, want %q", cfg.Output.Format, "yaml")
	}

	opts := cfg.DecodeOptions()
	if opts.MaxLength != 4096 || !opts.StrictIDOrder {
		t.Fatalf("DecodeOptions = %+v", opts)
	}
	p := cfg.PayloadOptions()
	if p.Compression != payload.CompressionZstd || !p.Base64 {
		t.Fatalf("PayloadOptions = %+v", p)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"syntax", "[decode\n"},
		{"format", "[output]\nformat = \"xml\"\n"},
		{"compression", "[input]\ndecompress = \"brotli\"\n"},
		{"depth", "[decode]\nmax_depth = -1\n"},
		{"level", "[log]\nlevel = \"loud\"\n"},
		{"digest", "[output]\ndigest = \"md5\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nrbf.toml")
			if err := os.WriteFile(path, []byte(tt.data), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Fatalf("Load accepted %q", tt.data)
			}
		})
	}

	cfg := Default()
	cfg.Output.Format = "xml"
	if err := cfg.Validate(); !errdefs.IsInvalidArgument(err) {
		t.Fatalf("Validate err = %v, want invalid argument", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "nrbf.toml")
	cfg := Default()
	cfg.Decode.StrictIDOrder = true
	cfg.Input.Decompress = "gzip"
	cfg.Log.Level = "debug"

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	assert.DeepEqual(t, got, cfg)

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("config dir has %d entries, want only the config file", len(entries))
	}
}

func TestPath(t *testing.T) {
	t.Setenv(EnvPath, "/etc/nrbf.toml")
	if got := Path(""); got != "/etc/nrbf.toml" {
		t.Fatalf("Path(\"\") = %q, want %q", got, "/etc/nrbf.toml")
	}
	if got := Path("local.toml"); got != "local.toml" {
		t.Fatalf("Path(local.toml) = %q, want %q", got, "local.toml")
	}
}
