// Copyright 2021 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logutil

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestLogConfigLevel(t *testing.T) {
	cfg := &LogConfig{Level: "debug"}
	require.Equal(t, zap.NewAtomicLevelAt(zap.DebugLevel), cfg.getLevel())

	// unknown levels fall back to info
	cfg = &LogConfig{Level: "nonsense"}
	require.Equal(t, zapcore.InfoLevel, cfg.getLevel().Level())
}

func TestLogConfigEncoder(t *testing.T) {
	entry := zapcore.Entry{Level: zapcore.InfoLevel, Message: "msg"}

	consoleBuf, err := (&LogConfig{Format: "console"}).getEncoder().EncodeEntry(entry, nil)
	require.NoError(t, err)
	jsonBuf, err := (&LogConfig{Format: "json"}).getEncoder().EncodeEntry(entry, nil)
	require.NoError(t, err)
	require.NotEqual(t, consoleBuf.String(), jsonBuf.String())
	require.Contains(t, jsonBuf.String(), `"msg"`)
}

func TestGlobalLogger(t *testing.T) {
	require.NotNil(t, GetGlobalLogger())
	// setup after first use keeps a usable logger
	SetupLogger(&LogConfig{Level: "info", Format: "console"})
	require.NotNil(t, GetGlobalLogger())
	Info("logger smoke test", zap.Int("n", 1))
}
