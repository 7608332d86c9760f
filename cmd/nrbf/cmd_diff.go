package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/odvcencio/nrbf/pkg/diff"
	"github.com/odvcencio/nrbf/pkg/nrbf"
	"github.com/odvcencio/nrbf/pkg/payload"
	"github.com/odvcencio/nrbf/pkg/render"
)

func newDiffCmd(g *globals) *cobra.Command {
	var (
		lines bool
		exit  bool
	)

	cmd := &cobra.Command{
		Use:   "diff <before> <after>",
		Short: "Show member-level differences between two payloads",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			before, err := g.decodeFile(args[0])
			if err != nil {
				return err
			}
			after, err := g.decodeFile(args[1])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if lines {
				a, err := renderYAML(before)
				if err != nil {
					return err
				}
				b, err := renderYAML(after)
				if err != nil {
					return err
				}
				text := diff.FormatLineDiff(args[0], args[1], a, b)
				fmt.Fprint(out, text)
				if exit && text != "" {
					return errPayloadsDiffer
				}
				return nil
			}

			r, err := diff.Documents(before, after)
			if err != nil {
				return err
			}
			fmt.Fprint(out, diff.FormatChanges(r))
			if exit && !r.Empty() {
				return errPayloadsDiffer
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&lines, "lines", false, "show a line diff of the YAML renderings")
	cmd.Flags().BoolVar(&exit, "exit-code", false, "fail when the payloads differ")
	return cmd
}

var errPayloadsDiffer = errors.New("payloads differ")

// decodeFile reads, unwraps and decodes one named payload.
func (g *globals) decodeFile(path string) (*nrbf.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	data, err = payload.Unwrap(data, g.cfg.PayloadOptions())
	if err != nil {
		return nil, fmt.Errorf("%s: unwrap payload: %w", path, err)
	}
	doc, err := nrbf.Decode(data, g.cfg.DecodeOptions())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

func renderYAML(doc *nrbf.Document) ([]byte, error) {
	v, err := doc.Value()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := render.Encode(&buf, v, render.YAML, render.Options{}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
