package main

import (
	"fmt"
	"io"
	"os"

	"github.com/containerd/log"
	"github.com/spf13/cobra"

	"github.com/odvcencio/nrbf/internal/config"
	"github.com/odvcencio/nrbf/pkg/payload"
	"github.com/odvcencio/nrbf/pkg/render"
)

const version = "0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// globals holds the persistent flags and, once a command runs, the
// configuration they override.
type globals struct {
	configPath string
	logLevel   string
	decompress string
	base64     bool
	hex        bool
	format     string

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "nrbf",
		Short:         "Inspect and produce .NET Remoting Binary Format payloads",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.load(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&g.configPath, "config", "", "TOML config file (default $"+config.EnvPath+")")
	flags.StringVar(&g.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	flags.StringVar(&g.decompress, "decompress", "", "input compression: auto, none, zstd, gzip, lz4")
	flags.BoolVar(&g.base64, "base64", false, "input is base64 text")
	flags.BoolVar(&g.hex, "hex", false, "input is hex digits")
	flags.StringVar(&g.format, "format", "", "document format: json, yaml, cbor")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newDecodeCmd(g))
	root.AddCommand(newDumpCmd(g))
	root.AddCommand(newEncodeCmd(g))
	root.AddCommand(newVerifyCmd(g))
	root.AddCommand(newDiffCmd(g))
	root.AddCommand(newConfigCmd(g))
	return root
}

// load reads the config file, applies the flags the user set and configures
// logging.
func (g *globals) load(cmd *cobra.Command) error {
	cfg, err := config.Load(config.Path(g.configPath))
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = g.logLevel
	}
	if flags.Changed("decompress") {
		cfg.Input.Decompress = g.decompress
	}
	if flags.Changed("base64") {
		cfg.Input.Base64 = g.base64
	}
	if flags.Changed("hex") {
		cfg.Input.Hex = g.hex
	}
	if flags.Changed("format") {
		f, err := render.ParseFormat(g.format)
		if err != nil {
			return err
		}
		cfg.Output.Format = string(f)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if cfg.Log.Level != "" {
		if err := log.SetLevel(cfg.Log.Level); err != nil {
			return err
		}
	}
	if cfg.Log.Format != "" {
		if err := log.SetFormat(log.OutputFormat(cfg.Log.Format)); err != nil {
			return err
		}
	}
	g.cfg = cfg
	return nil
}

func (g *globals) outputFormat() render.Format {
	if g.cfg.Output.Format == "" {
		return render.JSON
	}
	return render.Format(g.cfg.Output.Format)
}

// readInput returns the contents of the file named by args, or of stdin when
// there is none or it is "-".
func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) > 0 && args[0] != "-" {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", args[0], err)
		}
		return data, nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	return data, nil
}

// readPayload reads input and strips its text framing and compression.
func (g *globals) readPayload(cmd *cobra.Command, args []string) ([]byte, error) {
	data, err := readInput(cmd, args)
	if err != nil {
		return nil, err
	}
	data, err = payload.Unwrap(data, g.cfg.PayloadOptions())
	if err != nil {
		return nil, fmt.Errorf("unwrap payload: %w", err)
	}
	log.L.WithField("bytes", len(data)).Debug("read payload")
	return data, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "nrbf "+version)
		},
	}
}
