package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"

	"github.com/rekby/objprofile"
	"github.com/rekby/objprofile/internal/config"
)

var (
	// Size command flags
	sizeBase   string
	sizeLayout string
)

// sizeCmd represents the size command
var sizeCmd = &cobra.Command{
	Use:   "size FILE...",
	Short: "Print the total memory held by documents",
	Long: `Print the total size of every document's object graph.

With --base the size of the objects not already reachable from the base document
is printed instead.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSize,
}

func init() {
	rootCmd.AddCommand(sizeCmd)

	sizeCmd.Flags().StringVar(&sizeBase, "base", "", "Document whose objects are not counted")
	sizeCmd.Flags().StringVar(&sizeLayout, "layout", config.LayoutGo, "Memory layout: go, jvm32")
}

func runSize(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("layout") {
		cfg.Profile.Layout = sizeLayout
	}
	profiler, err := newProfiler()
	if err != nil {
		return err
	}

	var base interface{}
	if sizeBase != "" {
		base, err = decodeFile(cmd.Context(), sizeBase)
		if err != nil {
			return wrapFile(sizeBase, err)
		}
	}

	var errs error
	for _, path := range args {
		size, err := sizeFile(cmd, profiler, base, path)
		if err != nil {
			errs = multierr.Append(errs, wrapFile(path, err))
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", size, path)
	}
	return errs
}

func sizeFile(cmd *cobra.Command, profiler *objprofile.Profiler, base interface{}, path string) (int64, error) {
	ctx, span := tracer.Start(cmd.Context(), "size", trace.WithAttributes(attribute.String("file", path)))
	defer span.End()

	doc, err := decodeFile(ctx, path)
	if err != nil {
		return 0, err
	}

	var size int64
	if base != nil {
		size, err = profiler.Sizedelta(base, doc)
	} else {
		size, err = profiler.Sizeof(doc)
	}
	if err != nil {
		failSpan(span, err)
		return 0, err
	}
	span.SetAttributes(attribute.Int64("size", size))
	return size, nil
}
