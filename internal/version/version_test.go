package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfoShortensCommit(t *testing.T) {
	orig := Commit
	defer func() { Commit = orig }()

	Commit = "0123456789abcdef"
	assert.Contains(t, Info(), "commit: 0123456,")
	assert.Equal(t, Version, Short())
}

func TestFullListsProtocol(t *testing.T) {
	out := Full()
	assert.Contains(t, out, "Protocol:   v1")
	assert.Contains(t, out, "Wire:       nest.json.v1")
}
