// Package blockchain holds the settlement signing key and produces the two
// signature schemes the on-chain contracts verify.
package blockchain

import (
	"bytes"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"lvlup-backend/apperr"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/jonboulle/clockwork"
)

const (
	EscrowDomainName    = "HabitEscrow"
	EscrowDomainVersion = "1"
	settlementType      = "Settlement"
)

// Authority signs claim and settlement authorizations with a key that is
// fixed for the life of the process. It is safe for concurrent use.
type Authority struct {
	key     *ecdsa.PrivateKey
	address common.Address
	clock   clockwork.Clock
}

// NewAuthority loads a hex secp256k1 key. It fails when the key is absent or
// malformed, since no settlement path can work without it.
func NewAuthority(privateKeyHex string, clock clockwork.Clock) (*Authority, error) {
	hexKey := strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	if hexKey == "" {
		return nil, apperr.ErrMissingSigningKey
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrMissingSigningKey, fmt.Errorf("parse signing key: %w", err))
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Authority{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		clock:   clock,
	}, nil
}

// Address is the checksummed signer address.
func (a *Authority) Address() string { return a.address.Hex() }

// ClaimSignature is a signed per-subject reward authorization.
type ClaimSignature struct {
	Signature     string   `json:"signature"`
	UserAddress   string   `json:"user_address"`
	RewardAmount  *big.Int `json:"reward_amount"`
	SubjectID     string   `json:"subject_id"`
	Timestamp     int64    `json:"timestamp"`
	SignerAddress string   `json:"signer_address"`
}

// SignClaim binds (wallet, amount, subjectID, now) with the personal-sign
// scheme. The timestamp is returned so the contract can enforce freshness.
func (a *Authority) SignClaim(wallet string, amount *big.Int, subjectID string) (*ClaimSignature, error) {
	user, err := ParseWallet(wallet)
	if err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() < 0 || amount.Cmp(maxUint256) > 0 {
		return nil, apperr.Newf(apperr.ErrInvalidAmountFormat, "reward amount out of range")
	}

	timestamp := a.clock.Now().Unix()
	digest := accounts.TextHash(claimHash(user, amount, subjectID, timestamp))

	sig, err := a.sign(digest)
	if err != nil {
		return nil, err
	}
	return &ClaimSignature{
		Signature:     sig,
		UserAddress:   user.Hex(),
		RewardAmount:  new(big.Int).Set(amount),
		SubjectID:     subjectID,
		Timestamp:     timestamp,
		SignerAddress: a.Address(),
	}, nil
}

// VerifySignature reports whether signature was produced by this authority
// over exactly the given claim fields.
func (a *Authority) VerifySignature(signature, wallet string, amount *big.Int, subjectID string, timestamp int64) bool {
	if !common.IsHexAddress(wallet) || amount == nil || amount.Sign() < 0 {
		return false
	}
	digest := accounts.TextHash(claimHash(common.HexToAddress(wallet), amount, subjectID, timestamp))
	return a.recovers(signature, digest)
}

// claimHash is keccak256(abi.encodePacked(address, uint256, string, uint256)).
func claimHash(user common.Address, amount *big.Int, subjectID string, timestamp int64) []byte {
	return crypto.Keccak256(
		user.Bytes(),
		common.LeftPadBytes(amount.Bytes(), 32),
		[]byte(subjectID),
		common.LeftPadBytes(big.NewInt(timestamp).Bytes(), 32),
	)
}

// SettlementRequest is the struct signed for the escrow contract.
type SettlementRequest struct {
	User              string
	PeriodID          int64
	AmountToReturn    *big.Int
	Deadline          int64
	VerifyingContract string
	ChainID           int64
}

type SettlementSignature struct {
	Signature     string `json:"signature"`
	Digest        string `json:"digest"`
	SignerAddress string `json:"signer_address"`
}

// SignSettlement produces an EIP-712 signature over
// Settlement(address user,uint256 weekId,uint256 amountToReturn,uint256 deadline).
func (a *Authority) SignSettlement(req SettlementRequest) (*SettlementSignature, error) {
	typed, err := settlementTypedData(req)
	if err != nil {
		return nil, err
	}
	digest, _, err := apitypes.TypedDataAndHash(typed)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrSigningFailed, err)
	}
	sig, err := a.sign(digest)
	if err != nil {
		return nil, err
	}
	return &SettlementSignature{
		Signature:     sig,
		Digest:        hexutil.Encode(digest),
		SignerAddress: a.Address(),
	}, nil
}

// VerifySettlement reports whether signature is this authority's signature
// over req.
func (a *Authority) VerifySettlement(signature string, req SettlementRequest) bool {
	typed, err := settlementTypedData(req)
	if err != nil {
		return false
	}
	digest, _, err := apitypes.TypedDataAndHash(typed)
	if err != nil {
		return false
	}
	return a.recovers(signature, digest)
}

func settlementTypedData(req SettlementRequest) (apitypes.TypedData, error) {
	user, err := ParseWallet(req.User)
	if err != nil {
		return apitypes.TypedData{}, err
	}
	if !common.IsHexAddress(req.VerifyingContract) {
		return apitypes.TypedData{}, apperr.Newf(apperr.ErrEscrowNotConfigured, "invalid escrow contract address %q", req.VerifyingContract)
	}
	if req.AmountToReturn == nil || req.AmountToReturn.Sign() < 0 {
		return apitypes.TypedData{}, apperr.Newf(apperr.ErrInvalidAmountFormat, "amount to return out of range")
	}
	if req.PeriodID < 0 || req.Deadline < 0 {
		return apitypes.TypedData{}, apperr.Newf(apperr.ErrInvalidInput, "period and deadline must be non-negative")
	}

	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			settlementType: {
				{Name: "user", Type: "address"},
				{Name: "weekId", Type: "uint256"},
				{Name: "amountToReturn", Type: "uint256"},
				{Name: "deadline", Type: "uint256"},
			},
		},
		PrimaryType: settlementType,
		Domain: apitypes.TypedDataDomain{
			Name:              EscrowDomainName,
			Version:           EscrowDomainVersion,
			ChainId:           math.NewHexOrDecimal256(req.ChainID),
			VerifyingContract: common.HexToAddress(req.VerifyingContract).Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"user":           user.Hex(),
			"weekId":         big.NewInt(req.PeriodID),
			"amountToReturn": new(big.Int).Set(req.AmountToReturn),
			"deadline":       big.NewInt(req.Deadline),
		},
	}, nil
}

func (a *Authority) sign(digest []byte) (string, error) {
	sig, err := crypto.Sign(digest, a.key)
	if err != nil {
		return "", apperr.Wrap(apperr.ErrSigningFailed, err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

func (a *Authority) recovers(signature string, digest []byte) bool {
	sig, err := hexutil.Decode(signature)
	if err != nil || len(sig) != crypto.SignatureLength {
		return false
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return false
	}
	return bytes.Equal(crypto.PubkeyToAddress(*pub).Bytes(), a.address.Bytes())
}
