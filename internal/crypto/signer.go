package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// signedMessagePrefix is the EIP-191 personal-message prefix. Signing over
// the prefixed digest keeps request signatures distinct from transaction
// signatures produced by the same key.
const signedMessagePrefix = "\x19Ethereum Signed Message:\n"

// Signer produces personal-message signatures for authenticated API
// requests. Callers sign a canonical request string; the server recovers
// the address and matches it against the claimed caller.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key.
func NewSigner(privateKeyHex string) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid private key: %w", err)
	}
	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
	}, nil
}

// Address returns the address derived from the signer's private key.
func (s *Signer) Address() string {
	return s.address.Hex()
}

// SignRequest signs the canonical form of an API request and returns a
// hex-encoded 65-byte signature (r || s || v).
func (s *Signer) SignRequest(method, path string, body []byte, unixTS int64) (string, error) {
	digest := requestDigest(method, path, body, unixTS)
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto: signing request: %w", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return "0x" + hex.EncodeToString(sig), nil
}

// RecoverRequestSigner recovers the address that signed an API request.
// The signature must be the hex-encoded 65-byte form produced by
// SignRequest.
func RecoverRequestSigner(method, path string, body []byte, unixTS int64, sigHex string) (string, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return "", fmt.Errorf("crypto: invalid signature hex: %w", err)
	}
	if len(sig) != 65 {
		return "", fmt.Errorf("crypto: expected 65-byte signature, got %d bytes", len(sig))
	}

	// Normalise v back to {0,1} for recovery.
	recSig := make([]byte, 65)
	copy(recSig, sig)
	if recSig[64] >= 27 {
		recSig[64] -= 27
	}

	digest := requestDigest(method, path, body, unixTS)
	pub, err := ethcrypto.SigToPub(digest, recSig)
	if err != nil {
		return "", fmt.Errorf("crypto: recovering signer: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub).Hex(), nil
}

// VerifyRequest checks that sigHex was produced over the given request by
// the claimed address. Address comparison is case-insensitive.
func VerifyRequest(address, method, path string, body []byte, unixTS int64, sigHex string) error {
	recovered, err := RecoverRequestSigner(method, path, body, unixTS, sigHex)
	if err != nil {
		return err
	}
	if !strings.EqualFold(recovered, address) {
		return fmt.Errorf("crypto: signature by %s does not match claimed caller %s", recovered, address)
	}
	return nil
}

// requestDigest hashes the canonical request form with the EIP-191
// personal-message prefix:
//
//	keccak256(prefix || len(msg) || METHOD\nPATH\nTIMESTAMP\nBODY)
func requestDigest(method, path string, body []byte, unixTS int64) []byte {
	msg := strings.ToUpper(method) + "\n" + path + "\n" + strconv.FormatInt(unixTS, 10) + "\n" + string(body)
	prefixed := signedMessagePrefix + strconv.Itoa(len(msg)) + msg
	return ethcrypto.Keccak256([]byte(prefixed))
}
