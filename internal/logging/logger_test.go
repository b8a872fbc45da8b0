package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		name  string
		level string
		want  logrus.Level
	}{
		{"debug level", "debug", logrus.DebugLevel},
		{"warn level", "warn", logrus.WarnLevel},
		{"default info", "", logrus.InfoLevel},
		{"garbage falls back", "loud", logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, New(tt.level).GetLevel())
		})
	}
}

func TestJSONFieldNames(t *testing.T) {
	var buf bytes.Buffer
	l := New("info")
	l.SetOutput(&buf)

	l.WithComponent("billing").Info("invoice created")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "invoice created", entry["message"])
	assert.Equal(t, "billing", entry["component"])
	assert.Contains(t, entry, "timestamp")
}
