package main

import (
	"fmt"
	"sort"
	"strconv"
	"text/tabwriter"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/odvcencio/nrbf/pkg/nrbf"
	"github.com/odvcencio/nrbf/pkg/render"
)

func newDumpCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump [file]",
		Short: "List the records of a payload in stream order",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := g.readPayload(cmd, args)
			if err != nil {
				return err
			}
			var events []nrbf.RecordEvent
			opts := g.cfg.DecodeOptions()
			opts.OnRecord = func(ev nrbf.RecordEvent) { events = append(events, ev) }
			if _, err := nrbf.Decode(data, opts); err != nil {
				return err
			}
			// Nested records are reported before their containers.
			sort.SliceStable(events, func(i, j int) bool { return events[i].Offset < events[j].Offset })

			if cmd.Flags().Changed("format") {
				return render.EncodeTree(cmd.OutOrStdout(), eventTree(events), g.outputFormat(), render.Options{Compact: g.cfg.Output.Compact})
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "OFFSET\tDEPTH\tRECORD\tID\tDETAIL")
			for _, ev := range events {
				fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\n", ev.Offset, ev.Depth, ev.Record.RecordType(), recordID(ev.Record), recordDetail(ev.Record))
			}
			return tw.Flush()
		},
	}
	return cmd
}

func eventTree(events []nrbf.RecordEvent) []any {
	out := make([]any, len(events))
	for i, ev := range events {
		m := map[string]any{
			"offset": ev.Offset,
			"depth":  int64(ev.Depth),
			"record": ev.Record.RecordType().String(),
		}
		if r, ok := ev.Record.(nrbf.ObjectRecord); ok {
			m["id"] = int64(r.ObjectID())
		}
		if d := recordDetail(ev.Record); d != "" {
			m["detail"] = d
		}
		out[i] = m
	}
	return out
}

func recordID(r nrbf.Record) string {
	if o, ok := r.(nrbf.ObjectRecord); ok {
		return strconv.Itoa(int(o.ObjectID()))
	}
	return "-"
}

const maxDetail = 48

func recordDetail(r nrbf.Record) string {
	switch r := r.(type) {
	case *nrbf.SerializationHeader:
		return fmt.Sprintf("root=%d header=%d version=%d.%d", r.RootID, r.HeaderID, r.MajorVersion, r.MinorVersion)
	case *nrbf.BinaryLibrary:
		return truncate(r.Name)
	case *nrbf.ClassWithID:
		return fmt.Sprintf("%s members=%d metadata=%d", r.Info().Name, len(r.Info().MemberNames), r.MetadataID)
	case nrbf.ClassRecord:
		detail := fmt.Sprintf("%s members=%d", r.Info().Name, len(r.Info().MemberNames))
		if lib := r.Library(); lib != 0 {
			detail += fmt.Sprintf(" library=%d", lib)
		}
		return detail
	case *nrbf.BinaryObjectString:
		return strconv.Quote(truncate(r.Value))
	case *nrbf.ArraySinglePrimitive:
		return fmt.Sprintf("%s[%d]", r.Type, r.Len())
	case *nrbf.BinaryArray:
		return fmt.Sprintf("%s %s lengths=%v", r.ArrayType, r.ElementType, r.Lengths)
	case nrbf.ArrayRecord:
		return fmt.Sprintf("%s[%d]", r.Element(), r.Len())
	case *nrbf.MemberPrimitiveTyped:
		return fmt.Sprintf("%s %v", r.Type, r.Value)
	case *nrbf.MemberReference:
		return fmt.Sprintf("-> %d", r.IDRef)
	case *nrbf.ObjectNullMultiple256:
		return fmt.Sprintf("x%d", r.Count)
	case *nrbf.ObjectNullMultiple:
		return fmt.Sprintf("x%d", r.Count)
	}
	return ""
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= maxDetail {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxDetail]) + "..."
}
