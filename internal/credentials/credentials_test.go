package credentials

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeUsers(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "users.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestFileValidator(t *testing.T) {
	hash, err := HashSecret("s3cret")
	require.NoError(t, err)
	path := writeUsers(t, "users:\n  - name: curator\n    password_hash: "+hash+"\n")

	v, err := LoadFile(path)
	require.NoError(t, err)

	assert.True(t, v.Validate("curator", "s3cret"))
	assert.False(t, v.Validate("curator", "wrong"))
	assert.False(t, v.Validate("curator", ""))
	assert.False(t, v.Validate("someone", "s3cret"))
}

func TestFileValidator_Reload(t *testing.T) {
	first, err := HashSecret("one")
	require.NoError(t, err)
	path := writeUsers(t, "users:\n  - name: curator\n    password_hash: "+first+"\n")
	v, err := LoadFile(path)
	require.NoError(t, err)

	second, err := HashSecret("two")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("users:\n  - name: curator\n    password_hash: "+second+"\n"), 0o600))
	require.NoError(t, v.Reload())

	assert.False(t, v.Validate("curator", "one"))
	assert.True(t, v.Validate("curator", "two"))
}

func TestFileValidator_BadFiles(t *testing.T) {
	tests := map[string]string{
		"not yaml":   "users: [",
		"no hash":    "users:\n  - name: curator\n",
		"duplicates": "users:\n  - name: a\n    password_hash: x\n  - name: a\n    password_hash: y\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadFile(writeUsers(t, body))
			assert.Error(t, err)
		})
	}

	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestAllowAll(t *testing.T) {
	var v Validator = AllowAll{}
	assert.True(t, v.Validate("curator", ""))
	assert.False(t, v.Validate("", "x"))
}
