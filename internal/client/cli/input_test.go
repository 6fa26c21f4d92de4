package cli

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rdr(s string) *bufio.Reader {
	return bufio.NewReader(strings.NewReader(s))
}

func stubTerminal(t *testing.T, terminal bool, pw string, pwErr error) {
	t.Helper()
	origTerm, origRead := isTerminal, readPassword
	isTerminal = func(int) bool { return terminal }
	readPassword = func(int) ([]byte, error) { return []byte(pw), pwErr }
	t.Cleanup(func() {
		isTerminal = origTerm
		readPassword = origRead
	})
}

func TestGetSimpleText(t *testing.T) {
	var out bytes.Buffer
	got, err := GetSimpleText(rdr("hello world\n"), "Name?", &out)
	require.NoError(t, err)
	assert.Equal(t, "hello world", got)
	assert.Equal(t, "Name?\n> ", out.String())
}

func TestGetSimpleTextEOF(t *testing.T) {
	var out bytes.Buffer
	got, err := GetSimpleText(rdr("lastline"), "Name?", &out)
	require.NoError(t, err)
	assert.Equal(t, "lastline", got)

	_, err = GetSimpleText(rdr(""), "Name?", &out)
	require.Error(t, err)
}

func TestGetDefaultText(t *testing.T) {
	var out bytes.Buffer
	got, err := GetDefaultText(rdr("\n"), "Amount", "10.5", &out)
	require.NoError(t, err)
	assert.Equal(t, "10.5", got)
	assert.Contains(t, out.String(), "Amount [10.5]")

	got, err = GetDefaultText(rdr("  20 \n"), "Amount", "10.5", &out)
	require.NoError(t, err)
	assert.Equal(t, "20", got)
}

func TestGetPassword_PipedInput(t *testing.T) {
	stubTerminal(t, false, "", nil)

	var out bytes.Buffer
	got, err := GetPassword(rdr("s3cret\n"), "Password", &out)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", got)
	assert.Equal(t, "Password: ", out.String())
}

func TestGetPassword_Terminal(t *testing.T) {
	stubTerminal(t, true, "hidden", nil)

	var out bytes.Buffer
	got, err := GetPassword(rdr("not used\n"), "Password", &out)
	require.NoError(t, err)
	assert.Equal(t, "hidden", got)
}

func TestGetPassword_Error(t *testing.T) {
	stubTerminal(t, true, "", errors.New("boom"))

	var out bytes.Buffer
	_, err := GetPassword(rdr(""), "Password", &out)
	require.Error(t, err)
}

func TestGetConfirm(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"maybe\n", false},
	}
	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.in), func(t *testing.T) {
			var out bytes.Buffer
			assert.Equal(t, tt.want, GetConfirm(rdr(tt.in), "Delete?", &out))
			assert.Equal(t, "Delete? (y/N): ", out.String())
		})
	}
}
