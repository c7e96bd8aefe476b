package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rekby/objprofile"
	"github.com/rekby/objprofile/internal/config"
	"github.com/rekby/objprofile/internal/decode"
	"github.com/rekby/objprofile/internal/logging"
)

var (
	// Global flags
	cfgFile string
	verbose bool

	cfg    *config.Config
	logger = zap.NewNop()

	tracer = otel.Tracer("github.com/rekby/objprofile/cmd/objprofile")
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "objprofile",
	Short: "Object graph memory profiler",
	Long: `objprofile decodes JSON, YAML and TOML documents into Go values and reports
how much memory every part of the resulting object graph holds.

Every distinct object is counted once, under the first path that reaches it.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if verbose {
			loaded.Log.Level = "debug"
		}

		l, err := logging.New(loaded.Log.Level, loaded.Log.Format)
		if err != nil {
			return err
		}

		cfg = loaded
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default ./objprofile.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	binName := BinName()
	rootCmd.Example = `  # Show where the memory of a document goes
  ` + binName + ` profile ./testdata/cache.json

  # Only the three largest children of every node, as JSON
  ` + binName + ` profile --rank 3 --format json ./testdata/cache.yaml

  # Total size of several documents with the JVM 32 bit layout
  ` + binName + ` size --layout jvm32 a.json b.toml`
}

// BinName returns the base name of the current executable
func BinName() string {
	return filepath.Base(os.Args[0])
}

func newProfiler() (*objprofile.Profiler, error) {
	layout, err := cfg.BuildLayout()
	if err != nil {
		return nil, err
	}
	return objprofile.New(
		objprofile.WithLayout(layout),
		objprofile.WithShortTypeNames(cfg.Profile.ShortTypeNames),
		objprofile.WithLogger(logger),
	), nil
}

// decodeFile reads one document under its own span.
func decodeFile(ctx context.Context, path string) (interface{}, error) {
	_, span := tracer.Start(ctx, "decode", trace.WithAttributes(attribute.String("file", path)))
	defer span.End()

	doc, err := decode.File(path)
	if err != nil {
		failSpan(span, err)
		return nil, err
	}
	logger.Debug("document decoded", zap.String("file", path))
	return doc, nil
}

func failSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func wrapFile(path string, err error) error {
	return fmt.Errorf("%s: %w", path, err)
}
