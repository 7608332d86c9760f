package main

import (
	"github.com/spf13/cobra"

	"github.com/odvcencio/nrbf/pkg/nrbf"
	"github.com/odvcencio/nrbf/pkg/render"
)

func newDecodeCmd(g *globals) *cobra.Command {
	var compact bool

	cmd := &cobra.Command{
		Use:   "decode [file]",
		Short: "Decode a payload and print its root value",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := g.readPayload(cmd, args)
			if err != nil {
				return err
			}
			doc, err := nrbf.Decode(data, g.cfg.DecodeOptions())
			if err != nil {
				return err
			}
			v, err := doc.Value()
			if err != nil {
				return err
			}
			opts := render.Options{Compact: compact || g.cfg.Output.Compact}
			return render.Encode(cmd.OutOrStdout(), v, g.outputFormat(), opts)
		},
	}

	cmd.Flags().BoolVar(&compact, "compact", false, "single-line JSON, flow-style YAML")
	return cmd
}
