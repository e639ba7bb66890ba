package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvPrefersLoadedFile(t *testing.T) {
	t.Setenv("AGENTHUB_TEST_KEY", "from-os")
	Env = map[string]string{"AGENTHUB_TEST_KEY": "from-file"}
	t.Cleanup(func() { Env = nil })

	assert.Equal(t, "from-file", GetEnv("AGENTHUB_TEST_KEY", "def"))
	assert.Equal(t, "def", GetEnv("AGENTHUB_MISSING_KEY", "def"))
}

func TestGetEnvInt(t *testing.T) {
	Env = map[string]string{"A": "42", "B": "nope", "C": " 7 "}
	t.Cleanup(func() { Env = nil })

	assert.Equal(t, 42, GetEnvInt("A", 1))
	assert.Equal(t, 1, GetEnvInt("B", 1))
	assert.Equal(t, 7, GetEnvInt("C", 1))
	assert.Equal(t, 3, GetEnvInt("D", 3))
}
