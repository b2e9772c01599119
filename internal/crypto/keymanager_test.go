package crypto

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	blob, err := EncryptKey("0x"+testKeyHex, "hunter2")
	require.NoError(t, err)

	got, err := DecryptKey(blob, "hunter2")
	require.NoError(t, err)
	require.Equal(t, testKeyHex, got)

	_, err = DecryptKey(blob, "wrong")
	require.Error(t, err)
}

func TestEncryptKeyRejectsBadInput(t *testing.T) {
	_, err := EncryptKey(testKeyHex, "")
	require.Error(t, err)

	_, err = EncryptKey("not-hex", "pw")
	require.Error(t, err)

	// 16 bytes, not a secp256k1 scalar.
	_, err = EncryptKey("00112233445566778899aabbccddeeff", "pw")
	require.Error(t, err)
}

func TestDecryptKeyRejectsWeakenedKDF(t *testing.T) {
	blob, err := EncryptKey(testKeyHex, "pw")
	require.NoError(t, err)

	var stored keyFile
	require.NoError(t, json.Unmarshal(blob, &stored))

	stored.Iterations = 1000
	weakened, err := json.Marshal(stored)
	require.NoError(t, err)
	_, err = DecryptKey(weakened, "pw")
	require.ErrorContains(t, err, "iteration count")

	stored.Iterations = defaultKDFIterations
	stored.KDF = "md5"
	tampered, err := json.Marshal(stored)
	require.NoError(t, err)
	_, err = DecryptKey(tampered, "pw")
	require.ErrorContains(t, err, "unsupported kdf")
}

func TestLoadKeyResolutionOrder(t *testing.T) {
	// Raw key wins and is normalized.
	got, err := LoadKey(KeyConfig{RawPrivateKey: "0x" + testKeyHex})
	require.NoError(t, err)
	require.Equal(t, testKeyHex, got)

	_, err = LoadKey(KeyConfig{RawPrivateKey: "0xzz"})
	require.Error(t, err)

	// Encrypted file path.
	blob, err := EncryptKey(testKeyHex, "pw")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "relayer.key")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	got, err = LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "pw"})
	require.NoError(t, err)
	require.Equal(t, testKeyHex, got)

	// Nothing configured.
	_, err = LoadKey(KeyConfig{})
	require.Error(t, err)
}
