package logging

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lvdashuaibi/ballotbot/config"
)

func TestInit(t *testing.T) {
	prev := Logger
	defer func() { Logger = prev }()

	require.NoError(t, Init(config.LogConfig{Level: "debug", Encoding: "json"}))
	require.NotNil(t, Logger)

	require.Error(t, Init(config.LogConfig{Level: "loud"}))
}
