package onnx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	none := func(string) bool { return false }
	only := func(want string) func(string) bool {
		return func(p string) bool { return p == want }
	}

	assert.Equal(t, "/cfg/lib.so", resolve("/cfg/lib.so", "/env/lib.so", []string{"a"}, only("a")))
	assert.Equal(t, "/env/lib.so", resolve("", "/env/lib.so", []string{"a"}, only("a")))
	assert.Equal(t, "b", resolve("", "", []string{"a", "b", "c"}, only("b")))
	assert.Equal(t, "", resolve("", "", []string{"a"}, none))
}

func TestCandidates(t *testing.T) {
	assert.NotEmpty(t, candidates("linux"))
	assert.NotEmpty(t, candidates("darwin"))
	assert.NotEmpty(t, candidates("windows"))
	assert.Empty(t, candidates("plan9"))
}
