package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// defaultKDFIterations is written into new key files; OWASP minimum
	// for PBKDF2-HMAC-SHA256.
	defaultKDFIterations = 480_000
	// minKDFIterations is the floor accepted when reading a key file, so
	// a tampered file cannot downgrade the derivation cost.
	minKDFIterations = 100_000
	saltLen          = 16
	aesKeyLen        = 32
	kdfName          = "pbkdf2-sha256"
)

// keyFile is the on-disk format of the encrypted relayer settlement key.
// KDF parameters are stored alongside the ciphertext so they can be raised
// later without re-encrypting every deployed file at once.
type keyFile struct {
	KDF        string `json:"kdf"`
	Iterations int    `json:"iterations"`
	Salt       string `json:"salt"`       // base64 standard encoding
	Nonce      string `json:"nonce"`      // base64 standard encoding
	Ciphertext string `json:"ciphertext"` // base64 standard encoding
}

// KeyConfig carries the information LoadKey needs to resolve the relayer
// settlement key. Production deployments should prefer the encrypted file
// form over a raw key in the environment.
type KeyConfig struct {
	// RawPrivateKey is the hex-encoded private key (with or without 0x
	// prefix). If non-empty, LoadKey returns it directly.
	RawPrivateKey string

	// EncryptedKeyPath is the path to a file produced by EncryptKey.
	EncryptedKeyPath string

	// KeyPassword decrypts the file at EncryptedKeyPath.
	KeyPassword string
}

// normalizeKeyHex strips an optional 0x prefix and checks the key decodes
// to exactly 32 bytes.
func normalizeKeyHex(privateKeyHex string) (string, []byte, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	keyBytes, err := hex.DecodeString(keyHex)
	if err != nil {
		return "", nil, fmt.Errorf("crypto: private key is not valid hex: %w", err)
	}
	if len(keyBytes) != 32 {
		return "", nil, fmt.Errorf("crypto: expected 32-byte key, got %d bytes", len(keyBytes))
	}
	return keyHex, keyBytes, nil
}

func deriveAESKey(password string, salt []byte, iterations int) cipher.AEAD {
	derived := pbkdf2.Key([]byte(password), salt, iterations, aesKeyLen, sha256.New)
	block, _ := aes.NewCipher(derived) // aesKeyLen is a valid AES-256 size
	gcm, _ := cipher.NewGCM(block)
	return gcm
}

// EncryptKey seals the relayer settlement key under a password, deriving
// the AES-256-GCM key with PBKDF2-HMAC-SHA256. It returns the JSON blob
// suitable for writing to disk.
func EncryptKey(privateKeyHex string, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	_, keyBytes, err := normalizeKeyHex(privateKeyHex)
	if err != nil {
		return nil, err
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: generating salt: %w", err)
	}
	gcm := deriveAESKey(password, salt, defaultKDFIterations)

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generating nonce: %w", err)
	}

	out := keyFile{
		KDF:        kdfName,
		Iterations: defaultKDFIterations,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, keyBytes, nil)),
	}
	return json.MarshalIndent(out, "", "  ")
}

// DecryptKey opens a blob produced by EncryptKey, returning the hex-encoded
// private key without 0x prefix.
func DecryptKey(encryptedJSON []byte, password string) (string, error) {
	if password == "" {
		return "", errors.New("crypto: password must not be empty")
	}

	var stored keyFile
	if err := json.Unmarshal(encryptedJSON, &stored); err != nil {
		return "", fmt.Errorf("crypto: parsing key file: %w", err)
	}
	if stored.KDF != kdfName {
		return "", fmt.Errorf("crypto: unsupported kdf %q", stored.KDF)
	}
	if stored.Iterations < minKDFIterations {
		return "", fmt.Errorf("crypto: kdf iteration count %d below minimum %d", stored.Iterations, minKDFIterations)
	}

	salt, err := base64.StdEncoding.DecodeString(stored.Salt)
	if err != nil {
		return "", fmt.Errorf("crypto: decoding salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(stored.Nonce)
	if err != nil {
		return "", fmt.Errorf("crypto: decoding nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(stored.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("crypto: decoding ciphertext: %w", err)
	}

	gcm := deriveAESKey(password, salt, stored.Iterations)
	if len(nonce) != gcm.NonceSize() {
		return "", fmt.Errorf("crypto: bad nonce length %d", len(nonce))
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("crypto: decryption failed (wrong password?): %w", err)
	}
	return hex.EncodeToString(plaintext), nil
}

// LoadKey resolves the relayer settlement key: a raw hex key takes
// precedence, then an encrypted key file, otherwise an error.
func LoadKey(cfg KeyConfig) (string, error) {
	if cfg.RawPrivateKey != "" {
		keyHex, _, err := normalizeKeyHex(cfg.RawPrivateKey)
		if err != nil {
			return "", err
		}
		return keyHex, nil
	}

	if cfg.EncryptedKeyPath != "" {
		data, err := os.ReadFile(cfg.EncryptedKeyPath)
		if err != nil {
			return "", fmt.Errorf("crypto: reading encrypted key file: %w", err)
		}
		return DecryptKey(data, cfg.KeyPassword)
	}

	return "", errors.New("crypto: no private key source configured (set RawPrivateKey or EncryptedKeyPath)")
}
