package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRootCmd_Help(t *testing.T) {
	out, err := execute(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "aarag")
	assert.Contains(t, out, "serve")
	assert.Contains(t, out, "index")
	assert.Contains(t, out, "retrieve")
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "aarag")
	assert.Contains(t, out, Version)
}

func TestIndexCmd_RequiresKnowledge(t *testing.T) {
	_, err := execute(t, "index", "--text", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--knowledge")
}

func TestIndexCmd_RequiresInput(t *testing.T) {
	_, err := execute(t, "index", "--knowledge", "kb")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--text")
}

func TestRetrieveCmd_RequiresQueryArg(t *testing.T) {
	_, err := execute(t, "retrieve", "--knowledge", "kb")
	require.Error(t, err)
}

func TestIndexCmd_RejectsInvalidMode(t *testing.T) {
	_, err := execute(t, "index", "--knowledge", "kb", "--text", "hello", "--mode", "merge")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid index mode")
}
