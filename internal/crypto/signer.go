package crypto

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/escrowmarket/internal/domain"
)

// Signer holds the operator key.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

func NewSigner(key *ecdsa.PrivateKey) *Signer {
	return &Signer{key: key, address: ethcrypto.PubkeyToAddress(key.PublicKey)}
}

func (s *Signer) Address() common.Address {
	return s.address
}

// SignText produces an EIP-191 personal_sign signature with v in {27, 28}.
func (s *Signer) SignText(msg []byte) ([]byte, error) {
	sig, err := ethcrypto.Sign(accounts.TextHash(msg), s.key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSigningFailed, err)
	}
	sig[ethcrypto.RecoveryIDOffset] += 27
	return sig, nil
}

// TransactOpts returns transaction options signing with the operator key.
func (s *Signer) TransactOpts(chainID *big.Int) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(s.key, chainID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSigningFailed, err)
	}
	return opts, nil
}

// RecoverText returns the address that produced an EIP-191 signature of msg.
// v may be given as {0, 1} or {27, 28}.
func RecoverText(msg, sig []byte) (common.Address, error) {
	if len(sig) != ethcrypto.SignatureLength {
		return common.Address{}, errors.New("crypto: signature must be 65 bytes")
	}
	norm := make([]byte, len(sig))
	copy(norm, sig)
	if norm[ethcrypto.RecoveryIDOffset] >= 27 {
		norm[ethcrypto.RecoveryIDOffset] -= 27
	}
	pub, err := ethcrypto.SigToPub(accounts.TextHash(msg), norm)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto: recover signer: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// RequestMessage is the text an API caller signs: timestamp, method, path
// and body concatenated.
func RequestMessage(timestamp, method, path string, body []byte) []byte {
	msg := make([]byte, 0, len(timestamp)+len(method)+len(path)+len(body))
	msg = append(msg, timestamp...)
	msg = append(msg, method...)
	msg = append(msg, path...)
	return append(msg, body...)
}
