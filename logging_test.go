package objprofile

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestProfiler_Logger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	p := New(WithLayout(JVM32Layout()), WithLogger(zap.New(core)))

	root, err := p.Profile(&pair{L: &leaf{}, R: &leaf{}})
	require.NoError(t, err)

	profiled := logs.FilterMessage("object graph profiled").All()
	require.Len(t, profiled, 1)
	fields := profiled[0].ContextMap()
	require.Equal(t, int64(3), fields["objects"])
	require.Equal(t, root.Size(), fields["size"])

	// pair, *leaf, leaf, int32, int64
	require.NotEmpty(t, logs.FilterMessage("type metadata cached").All())
}

func TestProfiler_LoggerSharedCache(t *testing.T) {
	cache := NewMetadataCache(JVM32Layout())
	core, logs := observer.New(zapcore.DebugLevel)
	p := New(WithCache(cache), WithLogger(zap.New(core)))

	_, err := p.Profile(&pair{L: &leaf{}})
	require.NoError(t, err)

	require.Len(t, logs.FilterMessage("object graph profiled").All(), 1)
	require.Empty(t, logs.FilterMessage("type metadata cached").All())
	require.Same(t, cache, p.Cache())
}
