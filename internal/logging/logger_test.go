package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLevels(t *testing.T) {
	defer logrus.SetLevel(logrus.InfoLevel)

	Init("production", "")
	assert.Equal(t, logrus.InfoLevel, logrus.GetLevel())
	_, isJSON := logrus.StandardLogger().Formatter.(*logrus.JSONFormatter)
	assert.True(t, isJSON)

	Init("development", "")
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())

	Init("development", "warn")
	assert.Equal(t, logrus.WarnLevel, logrus.GetLevel())
}

func TestComponentFields(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.StandardLogger()
	prevOut, prevFormatter := logger.Out, logger.Formatter
	defer func() {
		logger.SetOutput(prevOut)
		logger.SetFormatter(prevFormatter)
	}()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	WithInvocation(Component("agents"), "pdf_processor", "pdf-1", "inv-1").Info("processed")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "agents", line["component"])
	assert.Equal(t, "pdf_processor", line["agent"])
	assert.Equal(t, "inv-1", line["invocation_id"])
	assert.Equal(t, "processed", line["msg"])
}
