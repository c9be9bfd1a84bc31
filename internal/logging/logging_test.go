package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	configure(logger, "debug", "", &buf)

	Component(logger, "scanner").WithField("scan_id", "s1").Debug("scan accepted")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "scan accepted", line["msg"])
	assert.Equal(t, "scanner", line["component"])
	assert.Equal(t, "s1", line["scan_id"])
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
}

func TestConfigureUnknownLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	configure(logger, "loud", "", &buf)
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	assert.Contains(t, buf.String(), "unknown log level")
}

func TestConfigureTeesToFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "ghostleaks.log")
	logger := logrus.New()
	configure(logger, "info", path, &buf)

	logger.Info("hello")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.Contains(t, buf.String(), `"msg":"hello"`)
}
