package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"code.cloudfoundry.org/bytefmt"
	"github.com/hupe1980/partstore"
	"github.com/spf13/cobra"
)

func newPutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "put KEY [VALUE]",
		Short: "Store a value",
		Long:  "Store VALUE under KEY. Without VALUE, or with -, the value is read from stdin.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var value []byte
			if len(args) == 2 && args[1] != "-" {
				value = []byte(args[1])
			} else {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				value = data
			}
			ctx := cmd.Context()
			return a.withStorage(ctx, func(s *partstore.Storage) error {
				return s.Set(ctx, args[0], value)
			})
		},
	}
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get KEY",
		Short: "Print the value of a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withStorage(ctx, func(s *partstore.Storage) error {
				found, err := s.View(ctx, args[0], func(value []byte) error {
					_, err := cmd.OutOrStdout().Write(value)
					return err
				})
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("key %q not found", args[0])
				}
				return nil
			})
		},
	}
}

func newScanCmd(a *app) *cobra.Command {
	var (
		prefix string
		values bool
	)
	c := &cobra.Command{
		Use:   "scan",
		Short: "List keys in sorted order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return a.withStorage(ctx, func(s *partstore.Storage) error {
				return scan(ctx, s, cmd.OutOrStdout(), prefix, values)
			})
		},
	}
	c.Flags().StringVar(&prefix, "prefix", "", "only list keys with this prefix")
	c.Flags().BoolVar(&values, "values", false, "print values next to keys")
	return c
}

func scan(ctx context.Context, s *partstore.Storage, out io.Writer, prefix string, values bool) error {
	for _, key := range s.Keys() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if !values {
			if _, err := fmt.Fprintln(out, key); err != nil {
				return err
			}
			continue
		}
		_, err := s.View(ctx, key, func(value []byte) error {
			_, err := fmt.Fprintf(out, "%s\t%s\n", key, value)
			return err
		})
		if err != nil {
			return fmt.Errorf("key %q: %w", key, err)
		}
	}
	return nil
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print partition statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return a.withStorage(ctx, func(s *partstore.Storage) error {
				st := s.Stats()
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintf(w, "directory\t%s\n", s.Dir())
				fmt.Fprintf(w, "keys\t%d\n", st.Keys)
				fmt.Fprintf(w, "live bytes\t%s\n", bytefmt.ByteSize(st.TotalBytes))
				fmt.Fprintf(w, "payload segments\t%d\n", st.PayloadSegments)
				fmt.Fprintf(w, "index segments\t%d\n", st.IndexSegments)
				fmt.Fprintf(w, "active segment\t%d (%s)\n", st.ActiveSegment, bytefmt.ByteSize(st.ActiveSize))
				fmt.Fprintf(w, "durability\t%s\n", st.Durability)
				fmt.Fprintf(w, "compaction\t%t\n", st.Compaction)
				return w.Flush()
			})
		},
	}
}

func newSegmentsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "segments",
		Short: "List segment files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return a.withStorage(ctx, func(s *partstore.Storage) error {
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "KIND\tID\tSIZE\tPATH")
				for _, seg := range s.Segments() {
					fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", seg.Kind, seg.ID, bytefmt.ByteSize(seg.Size), seg.Path)
				}
				return w.Flush()
			})
		},
	}
}

func newCompactCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "Run the compaction hook",
		Long:  "Run the compaction hook. Fails unless storage.compaction is enabled.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return a.withStorage(ctx, func(s *partstore.Storage) error {
				return s.Compact(ctx)
			})
		},
	}
}
