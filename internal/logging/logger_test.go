package logging

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		debugOn bool
		wantErr bool
	}{
		{name: "default is info", opts: Options{}, debugOn: false},
		{name: "explicit debug", opts: Options{Level: "debug"}, debugOn: true},
		{name: "verbose overrides warn", opts: Options{Level: "warn", Verbose: true}, debugOn: true},
		{name: "json format", opts: Options{Format: "json"}, debugOn: false},
		{name: "bad level", opts: Options{Level: "loud"}, wantErr: true},
		{name: "bad format", opts: Options{Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.opts)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.debugOn, l.Core().Enabled(zapcore.DebugLevel))
		})
	}
}

func TestFor_NamesChildLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	root := zap.New(core)

	For(root, CategoryRewrite).Info("rewrote document")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "rewrite", entries[0].LoggerName)
}

func TestFor_NilLoggerIsNop(t *testing.T) {
	l := For(nil, CategoryMerge)
	require.NotNil(t, l)
	l.Info("dropped")
}

func TestNewWriter(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(zapcore.AddSync(&buf), zapcore.InfoLevel)
	l.Debug("hidden")
	l.Info("shown", zap.String("split", "config.en"))
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.True(t, strings.Contains(out, "shown") && strings.Contains(out, "config.en"))
}

func TestTimer_StopWithThreshold(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := zap.New(core)

	timer := StartTimer(l, "decompile")
	time.Sleep(5 * time.Millisecond)
	elapsed := timer.StopWithThreshold(time.Nanosecond)

	assert.GreaterOrEqual(t, elapsed, 5*time.Millisecond)
	require.Len(t, logs.FilterLevelExact(zapcore.WarnLevel).All(), 1)

	StartTimer(l, "rebuild").StopWithThreshold(time.Hour)
	assert.Len(t, logs.FilterMessage("rebuild completed").All(), 1)
}
