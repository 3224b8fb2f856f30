package cryptox

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptPrivateKey(t *testing.T) {
	SetMasterKey([]byte("test-master-key"))

	pemData, err := GenerateEd25519Key()
	require.NoError(t, err)

	sealed, err := EncryptPrivateKey(pemData)
	require.NoError(t, err)
	require.NotContains(t, string(sealed), "PRIVATE KEY")

	again, err := EncryptPrivateKey(pemData)
	require.NoError(t, err)
	require.NotEqual(t, sealed, again, "nonce must differ per encryption")

	opened, err := DecryptPrivateKey(sealed)
	require.NoError(t, err)
	require.Equal(t, pemData, opened)
}

func TestDecryptPrivateKey_WrongMasterKey(t *testing.T) {
	SetMasterKey([]byte("first"))
	sealed, err := EncryptPrivateKey([]byte("secret"))
	require.NoError(t, err)

	SetMasterKey([]byte("second"))
	_, err = DecryptPrivateKey(sealed)
	require.Error(t, err)

	_, err = DecryptPrivateKey([]byte("short"))
	require.Error(t, err)
}

func TestLoadMasterKey_PersistsAcrossLoads(t *testing.T) {
	file := filepath.Join(t.TempDir(), "keys", "master.key")

	require.NoError(t, LoadMasterKey(file))
	sealed, err := EncryptPrivateKey([]byte("secret"))
	require.NoError(t, err)

	SetMasterKey([]byte("something else"))
	require.NoError(t, LoadMasterKey(file))
	opened, err := DecryptPrivateKey(sealed)
	require.NoError(t, err)
	require.Equal(t, []byte("secret"), opened)
}
