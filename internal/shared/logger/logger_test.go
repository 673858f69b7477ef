package logger

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"georelay/internal/shared/types"
)

func TestInitWithWriter_CapturesComponentLogs(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })

	var buf bytes.Buffer
	require.NoError(t, InitWithWriter(types.LogConf{Level: "debug"}, &buf))
	assert.Contains(t, buf.String(), "Logger initialized with level: debug")

	buf.Reset()
	l := WithComponent("Relay/Engine")
	l.Info().Str("target", "example.com").Msg("hello")

	out := buf.String()
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, "Relay/Engine")
	assert.Contains(t, out, "example.com")
}

func TestInitWithWriter_LevelFilters(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })

	var buf bytes.Buffer
	require.NoError(t, InitWithWriter(types.LogConf{Level: "warn"}, &buf))

	buf.Reset()
	Info().Msg("dropped")
	Warn().Msg("kept")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}

func TestInitWithWriter_UnknownLevelDefaultsToInfo(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })

	var buf bytes.Buffer
	require.NoError(t, InitWithWriter(types.LogConf{Level: "chatty"}, &buf))

	buf.Reset()
	Debug().Msg("too verbose")
	Info().Msg("visible")

	assert.NotContains(t, buf.String(), "too verbose")
	assert.Contains(t, buf.String(), "visible")
}
