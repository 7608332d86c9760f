package main

import (
	"fmt"
	"sort"

	"github.com/containerd/log"
	"github.com/spf13/cobra"

	"github.com/odvcencio/nrbf/pkg/interchange"
	"github.com/odvcencio/nrbf/pkg/nrbf"
	"github.com/odvcencio/nrbf/pkg/payload"
)

func newVerifyCmd(g *globals) *cobra.Command {
	var digest string

	cmd := &cobra.Command{
		Use:   "verify [file]",
		Short: "Check that a payload decodes and print its digest",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			algo := g.cfg.Output.Digest
			if cmd.Flags().Changed("digest") {
				algo = digest
			}
			a, err := payload.ParseAlgorithm(algo)
			if err != nil {
				return err
			}

			data, err := g.readPayload(cmd, args)
			if err != nil {
				return err
			}
			counts := map[nrbf.RecordType]int{}
			opts := g.cfg.DecodeOptions()
			opts.OnRecord = func(ev nrbf.RecordEvent) { counts[ev.Record.RecordType()]++ }
			doc, err := nrbf.Decode(data, opts)
			if err != nil {
				return fmt.Errorf("verify: %w", err)
			}
			sum, err := payload.SumWith(a, data)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ok: verified %d bytes, %d objects, root %s\n", len(data), doc.Records().Len(), rootName(doc))
			fmt.Fprintf(out, "%s: %s\n", a, sum)
			types := make([]nrbf.RecordType, 0, len(counts))
			for t := range counts {
				types = append(types, t)
			}
			sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
			for _, t := range types {
				fmt.Fprintf(out, "  %-32s %d\n", t, counts[t])
			}

			s := interchange.New(interchange.Options{Decode: opts})
			if v, err := s.Unmarshal(data); err == nil {
				fmt.Fprintf(out, "interchange: %T\n", v)
			} else {
				log.L.WithError(err).Debug("payload has no Go mapping")
				fmt.Fprintln(out, "interchange: no Go mapping")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&digest, "digest", "", "digest algorithm: blake2b, blake3")
	return cmd
}

func rootName(doc *nrbf.Document) string {
	switch r := doc.Root.(type) {
	case nrbf.ClassRecord:
		return r.Info().Name
	case nrbf.ArrayRecord:
		return fmt.Sprintf("%s[%d]", r.Element(), r.Len())
	}
	return doc.Root.RecordType().String()
}
