package main

import (
	"fmt"
	"os"

	"github.com/containerd/log"
	"github.com/spf13/cobra"

	"github.com/odvcencio/nrbf/pkg/nrbf"
	"github.com/odvcencio/nrbf/pkg/payload"
	"github.com/odvcencio/nrbf/pkg/render"
)

func newEncodeCmd(g *globals) *cobra.Command {
	var (
		output   string
		compress string
		base64   bool
		hex      bool
	)

	cmd := &cobra.Command{
		Use:   "encode [file]",
		Short: "Encode a JSON, YAML or CBOR value document as a payload",
		Long: `Encode reads a value document, the same shape decode prints, and writes
the NRBF payload. Without --format the document format is taken from the
file extension, falling back to JSON.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format := render.JSON
			if len(args) > 0 {
				if f, ok := render.FormatForPath(args[0]); ok {
					format = f
				}
			}
			if cmd.Flags().Changed("format") {
				format = g.outputFormat()
			}
			comp, err := payload.ParseCompression(compress)
			if err != nil {
				return err
			}
			if comp == payload.CompressionAuto {
				return fmt.Errorf("--compress needs an explicit algorithm")
			}

			doc, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			v, err := render.Decode(doc, format)
			if err != nil {
				return err
			}
			data, err := nrbf.Marshal(v)
			if err != nil {
				return err
			}
			out, err := payload.Wrap(data, payload.Options{Compression: comp, Base64: base64, Hex: hex})
			if err != nil {
				return err
			}
			log.L.WithField("bytes", len(data)).WithField("compression", comp).Debug("encoded payload")

			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(out)
				return err
			}
			if err := os.WriteFile(output, out, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write the payload to a file instead of stdout")
	cmd.Flags().StringVar(&compress, "compress", string(payload.CompressionNone), "output compression: none, zstd, gzip, lz4")
	cmd.Flags().BoolVar(&base64, "out-base64", false, "frame the payload as base64 text")
	cmd.Flags().BoolVar(&hex, "out-hex", false, "frame the payload as hex digits")
	return cmd
}
