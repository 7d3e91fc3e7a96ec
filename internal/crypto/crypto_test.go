package crypto

import (
	"os"
	"path/filepath"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func TestSealAndLoadKey(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)

	blob, err := SealKey(key, "hunter2")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "operator.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	loaded, err := LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "hunter2"})
	require.NoError(t, err)
	require.Equal(t, ethcrypto.PubkeyToAddress(key.PublicKey), ethcrypto.PubkeyToAddress(loaded.PublicKey))

	_, err = LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "wrong"})
	require.ErrorContains(t, err, "wrong password")

	_, err = LoadKey(KeyConfig{})
	require.Error(t, err)
}

func TestLoadRawKey(t *testing.T) {
	key, err := LoadKey(KeyConfig{RawPrivateKey: "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"})
	require.NoError(t, err)
	require.Equal(t, "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23", ethcrypto.PubkeyToAddress(key.PublicKey).Hex())
}

func TestSignAndRecoverText(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	s := NewSigner(key)

	msg := RequestMessage("1767225600", "POST", "/api/orders/7/bids", []byte(`{"amount":"26"}`))
	sig, err := s.SignText(msg)
	require.NoError(t, err)
	require.Contains(t, []byte{27, 28}, sig[64])

	addr, err := RecoverText(msg, sig)
	require.NoError(t, err)
	require.Equal(t, s.Address(), addr)

	tampered := RequestMessage("1767225600", "POST", "/api/orders/7/bids", []byte(`{"amount":"99"}`))
	other, err := RecoverText(tampered, sig)
	require.NoError(t, err)
	require.NotEqual(t, s.Address(), other)

	_, err = RecoverText(msg, sig[:64])
	require.Error(t, err)
}
