package logging

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestInitAttachesLogger(t *testing.T) {
	ctx, err := Init(context.Background(), WithLogLevel("warn"), WithLogFormat(LogFormatConsole))
	require.NoError(t, err)

	l := ctxzap.Extract(ctx)
	require.NotNil(t, l)
	require.False(t, l.Core().Enabled(zapcore.InfoLevel))
	require.True(t, l.Core().Enabled(zapcore.WarnLevel))
	require.Same(t, zap.L(), l)
}

func TestInvalidLevelFallsBackToDebug(t *testing.T) {
	ctx, err := Init(context.Background(), WithLogLevel("nonsense"))
	require.NoError(t, err)
	require.True(t, ctxzap.Extract(ctx).Core().Enabled(zapcore.DebugLevel))
}

func TestOutputPathsWriteToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "xalvion.log")

	ctx, err := Init(context.Background(), WithLogLevel("info"), WithOutputPaths([]string{path}))
	require.NoError(t, err)

	l := ctxzap.Extract(ctx)
	l.Info("written to file", zap.String("sink", "file"))
	_ = l.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "written to file")
	require.Contains(t, string(data), `"sink":"file"`)
}
