package logging

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Init configures the standard logrus logger.
// In production it uses JSON output for log aggregation, otherwise the
// human-readable text formatter. An empty or invalid level falls back to info
// in production and debug elsewhere.
func Init(env, level string) {
	logger := logrus.StandardLogger()
	logger.SetOutput(os.Stdout)

	production := strings.EqualFold(env, "production")
	if production {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.DebugLevel
		if production {
			parsed = logrus.InfoLevel
		}
	}
	logger.SetLevel(parsed)
}

// Component returns a logger tagged with the component name
func Component(name string) *logrus.Entry {
	return logrus.WithField("component", name)
}

// WithInvocation returns a logger scoped to one agent invocation
func WithInvocation(entry *logrus.Entry, agent, agentID, invocationID string) *logrus.Entry {
	return entry.WithFields(logrus.Fields{
		"agent":         agent,
		"agent_id":      agentID,
		"invocation_id": invocationID,
	})
}
