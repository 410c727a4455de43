package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet_Defaults(t *testing.T) {
	info := Get()

	assert.Equal(t, "dev", info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, "chatrelay dev (commit unknown, built unknown, "+runtime.Version()+")", info.String())
}

func TestGet_Injected(t *testing.T) {
	orig := Version
	t.Cleanup(func() { Version = orig })
	Version = "v1.4.0"

	info := Get()
	assert.Equal(t, "v1.4.0", info.Version)
	assert.Contains(t, info.LogAttrs(), "v1.4.0")
}
