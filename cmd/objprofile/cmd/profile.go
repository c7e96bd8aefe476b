package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/rekby/objprofile"
	"github.com/rekby/objprofile/internal/config"
	"github.com/rekby/objprofile/internal/report"
)

var (
	// Profile command flags
	profileFormat  string
	profileOutput  string
	profileLayout  string
	profileShort   bool
	minSize        int64
	rank           int
	rootFraction   float64
	parentFraction float64
)

// profileCmd represents the profile command
var profileCmd = &cobra.Command{
	Use:   "profile FILE...",
	Short: "Print the memory profile tree of documents",
	Long: `Decode every document and print its profile tree: one line per object with its
total size, its share of the whole graph, the path that reached it and its type.

Filters combine: a node is shown only when every enabled filter accepts it.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runProfile,
}

func init() {
	rootCmd.AddCommand(profileCmd)

	profileCmd.Flags().StringVarP(&profileFormat, "format", "f", config.FormatText, "Output format: text, json")
	profileCmd.Flags().StringVarP(&profileOutput, "output", "o", "", "Append reports to this file instead of stdout")
	profileCmd.Flags().StringVar(&profileLayout, "layout", config.LayoutGo, "Memory layout: go, jvm32")
	profileCmd.Flags().BoolVar(&profileShort, "short", false, "Type names without package paths")
	profileCmd.Flags().Int64Var(&minSize, "min-size", 0, "Hide nodes smaller than this many bytes")
	profileCmd.Flags().IntVar(&rank, "rank", 0, "Show only the N largest objects under every node")
	profileCmd.Flags().Float64Var(&rootFraction, "root-fraction", 0, "Hide nodes below this fraction of the whole graph")
	profileCmd.Flags().Float64Var(&parentFraction, "parent-fraction", 0, "Hide nodes below this fraction of their parent")
}

// applyProfileFlags lets explicitly set flags override the config file.
func applyProfileFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	if flags.Changed("format") {
		cfg.Output.Format = profileFormat
	}
	if flags.Changed("output") {
		cfg.Output.Path = profileOutput
	}
	if flags.Changed("layout") {
		cfg.Profile.Layout = profileLayout
	}
	if flags.Changed("short") {
		cfg.Profile.ShortTypeNames = profileShort
	}
	if flags.Changed("min-size") {
		cfg.Filter.MinSize = minSize
	}
	if flags.Changed("rank") {
		cfg.Filter.Rank = rank
	}
	if flags.Changed("root-fraction") {
		cfg.Filter.RootFraction = rootFraction
	}
	if flags.Changed("parent-fraction") {
		cfg.Filter.ParentFraction = parentFraction
	}
	return cfg.Validate()
}

func runProfile(cmd *cobra.Command, args []string) error {
	if err := applyProfileFlags(cmd); err != nil {
		return err
	}

	profiler, err := newProfiler()
	if err != nil {
		return err
	}

	opts := report.Options{
		Filter:     cfg.BuildFilter(),
		ShortNames: cfg.Profile.ShortTypeNames,
		Indent:     cfg.Output.Indent,
	}

	var errs error
	for _, path := range args {
		if err := profileFile(cmd, profiler, path, opts); err != nil {
			logger.Error("profile failed", zap.String("file", path), zap.Error(err))
			errs = multierr.Append(errs, wrapFile(path, err))
		}
	}
	return errs
}

func profileFile(cmd *cobra.Command, profiler *objprofile.Profiler, path string, opts report.Options) error {
	ctx, span := tracer.Start(cmd.Context(), "profile", trace.WithAttributes(attribute.String("file", path)))
	defer span.End()

	doc, err := decodeFile(ctx, path)
	if err != nil {
		return err
	}

	root, err := buildProfile(ctx, profiler, doc)
	if err != nil {
		failSpan(span, err)
		return err
	}
	span.SetAttributes(attribute.Int64("size", root.Size()))

	opts.Title = path
	if cfg.Output.Path != "" {
		err = report.AppendFile(cfg.Output.Path, cfg.Output.Format, root, opts)
	} else {
		err = report.Write(cmd.OutOrStdout(), cfg.Output.Format, root, opts)
	}
	if err != nil {
		failSpan(span, err)
	}
	return err
}

func buildProfile(ctx context.Context, profiler *objprofile.Profiler, doc interface{}) (*objprofile.Node, error) {
	_, span := tracer.Start(ctx, "build")
	defer span.End()

	root, err := profiler.Profile(doc)
	if err != nil {
		failSpan(span, err)
		return nil, err
	}
	return root, nil
}
