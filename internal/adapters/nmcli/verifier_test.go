package nmcli

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyActivation(t *testing.T) {
	assert.True(t, classifyActivation("Connection successfully activated (D-Bus active path: ...)"))
	assert.False(t, classifyActivation("Error: Connection activation failed: Secrets were required"))
	assert.False(t, classifyActivation("Error: Timeout expired (90 seconds)"))
	assert.False(t, classifyActivation(""))
}
