// Package crypto loads the marketplace operator key and signs or verifies
// secp256k1 messages.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 480_000
	saltLen          = 16
	aesKeyLen        = 32
	keyFileVersion   = 1
)

// keyFile is the on-disk format of an encrypted operator key. Binary fields
// are base64 standard encoded.
type keyFile struct {
	Version    int    `json:"version"`
	Address    string `json:"address"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// KeyConfig names where the operator key comes from. A raw key wins over the
// encrypted file.
type KeyConfig struct {
	RawPrivateKey    string
	EncryptedKeyPath string
	KeyPassword      string
}

// SealKey encrypts key under password (PBKDF2-SHA256 then AES-256-GCM).
func SealKey(key *ecdsa.PrivateKey, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: salt: %w", err)
	}
	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: nonce: %w", err)
	}

	enc := base64.StdEncoding
	return json.MarshalIndent(keyFile{
		Version:    keyFileVersion,
		Address:    ethcrypto.PubkeyToAddress(key.PublicKey).Hex(),
		Salt:       enc.EncodeToString(salt),
		Nonce:      enc.EncodeToString(nonce),
		Ciphertext: enc.EncodeToString(gcm.Seal(nil, nonce, ethcrypto.FromECDSA(key), nil)),
	}, "", "  ")
}

// OpenKey decrypts a blob produced by SealKey.
func OpenKey(blob []byte, password string) (*ecdsa.PrivateKey, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	var kf keyFile
	if err := json.Unmarshal(blob, &kf); err != nil {
		return nil, fmt.Errorf("crypto: parse key file: %w", err)
	}
	if kf.Version != keyFileVersion {
		return nil, fmt.Errorf("crypto: unsupported key file version %d", kf.Version)
	}

	enc := base64.StdEncoding
	salt, err := enc.DecodeString(kf.Salt)
	if err != nil {
		return nil, fmt.Errorf("crypto: decode salt: %w", err)
	}
	nonce, err := enc.DecodeString(kf.Nonce)
	if err != nil {
		return nil, fmt.Errorf("crypto: decode nonce: %w", err)
	}
	ct, err := enc.DecodeString(kf.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("crypto: decode ciphertext: %w", err)
	}

	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	raw, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: decrypt key (wrong password?): %w", err)
	}
	key, err := ethcrypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("crypto: decrypted key: %w", err)
	}
	return key, nil
}

// LoadKey resolves the operator key from cfg.
func LoadKey(cfg KeyConfig) (*ecdsa.PrivateKey, error) {
	if cfg.RawPrivateKey != "" {
		key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(cfg.RawPrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("crypto: raw private key: %w", err)
		}
		return key, nil
	}
	if cfg.EncryptedKeyPath != "" {
		blob, err := os.ReadFile(cfg.EncryptedKeyPath)
		if err != nil {
			return nil, fmt.Errorf("crypto: read key file: %w", err)
		}
		return OpenKey(blob, cfg.KeyPassword)
	}
	return nil, errors.New("crypto: no operator key configured")
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New))
	if err != nil {
		return nil, fmt.Errorf("crypto: cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: gcm: %w", err)
	}
	return gcm, nil
}
