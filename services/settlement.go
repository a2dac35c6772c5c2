package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"lvlup-backend/apperr"
	"lvlup-backend/blockchain"
	"lvlup-backend/logger"
	"lvlup-backend/metrics"
	"lvlup-backend/models"
	"lvlup-backend/storage"
	"lvlup-backend/utils"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// SettlementSigner signs escrow settlements.
type SettlementSigner interface {
	SignSettlement(req blockchain.SettlementRequest) (*blockchain.SettlementSignature, error)
}

// ReceiptArchive stores settlement receipts outside the database.
type ReceiptArchive interface {
	PutJSON(ctx context.Context, key string, v any) error
}

type SettlementConfig struct {
	EscrowAddress  string
	ChainID        int64
	DefaultDeposit *big.Int
	SignatureTTL   time.Duration
}

type ConfigureCommitmentRequest struct {
	WalletAddress string                `json:"wallet_address"`
	PeriodID      int                   `json:"period_id"`
	Mode          models.CommitmentMode `json:"mode"`
	CategoryIDs   []string              `json:"category_ids"`
	DepositRef    string                `json:"deposit_ref"`
}

// SettlementAuthorization is what the user submits to the escrow contract.
// Signed is false when there is nothing to return.
type SettlementAuthorization struct {
	WalletAddress     string           `json:"wallet_address"`
	PeriodID          int              `json:"period_id"`
	AmountToReturn    string           `json:"amount_to_return"`
	Deadline          int64            `json:"deadline,omitempty"`
	ChainID           int64            `json:"chain_id"`
	VerifyingContract string           `json:"verifying_contract,omitempty"`
	Signed            bool             `json:"signed"`
	Signature         string           `json:"signature,omitempty"`
	Digest            string           `json:"digest,omitempty"`
	SignerAddress     string           `json:"signer_address,omitempty"`
	Breakdown         *PayoutBreakdown `json:"breakdown"`
}

type SettlementConfirmation struct {
	Commitment     *models.CommitmentConfig `json:"commitment"`
	AlreadySettled bool                     `json:"already_settled"`
}

// SettlementReceipt is the archived record of a confirmed settlement.
type SettlementReceipt struct {
	WalletAddress  string    `json:"wallet_address"`
	PeriodID       int       `json:"period_id"`
	TxHash         string    `json:"tx_hash"`
	AmountReturned string    `json:"amount_returned"`
	Signature      string    `json:"signature"`
	SettledAt      time.Time `json:"settled_at"`
}

// SettlementService configures per-period commitments and issues and confirms
// escrow settlements for them.
type SettlementService struct {
	commitments storage.CommitmentStore
	payout      *PayoutCalculator
	signer      SettlementSigner
	archive     ReceiptArchive
	cfg         SettlementConfig
	clock       clockwork.Clock
	log         *zap.Logger
}

// NewSettlementService wires the service. archive may be nil.
func NewSettlementService(commitments storage.CommitmentStore, payout *PayoutCalculator, signer SettlementSigner, archive ReceiptArchive, cfg SettlementConfig, clock clockwork.Clock, log *zap.Logger) *SettlementService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.DefaultDeposit == nil {
		cfg.DefaultDeposit = new(big.Int)
	}
	if cfg.SignatureTTL <= 0 {
		cfg.SignatureTTL = time.Hour
	}
	return &SettlementService{
		commitments: commitments,
		payout:      payout,
		signer:      signer,
		archive:     archive,
		cfg:         cfg,
		clock:       clock,
		log:         logger.OrNop(log).Named("settlement"),
	}
}

func (s *SettlementService) ConfigureCommitment(ctx context.Context, req ConfigureCommitmentRequest) (*models.CommitmentConfig, error) {
	wallet, err := blockchain.ParseWallet(req.WalletAddress)
	if err != nil {
		return nil, err
	}
	if _, err := ResolvePeriod(req.PeriodID, s.clock.Now()); err != nil {
		return nil, err
	}

	mode := models.CommitmentMode(strings.ToUpper(strings.TrimSpace(string(req.Mode))))
	if mode == "" {
		mode = models.CommitmentModeHard
	}
	if !mode.Valid() {
		return nil, apperr.Newf(apperr.ErrInvalidInput, "mode must be HARD or CUSTOM")
	}

	var categories []string
	if mode == models.CommitmentModeCustom {
		categories = utils.NormalizeCategoryIDs(req.CategoryIDs)
		if len(categories) == 0 {
			return nil, apperr.Newf(apperr.ErrInvalidInput, "CUSTOM mode requires at least one category")
		}
	}

	cfg, err := s.commitments.UpsertCommitment(ctx, &models.CommitmentConfig{
		WalletAddress: wallet.Hex(),
		PeriodID:      req.PeriodID,
		Mode:          mode,
		CategoryIDs:   categories,
		DepositRef:    strings.TrimSpace(req.DepositRef),
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("commitment configured",
		zap.String("wallet", cfg.WalletAddress),
		zap.Int("period_id", cfg.PeriodID),
		zap.String("mode", string(cfg.Mode)),
		zap.Strings("category_ids", cfg.CategoryIDs),
	)
	return cfg, nil
}

// GetCommitment returns the stored configuration or the HARD default.
func (s *SettlementService) GetCommitment(ctx context.Context, walletAddress string, periodID int) (*models.CommitmentConfig, error) {
	wallet, err := blockchain.ParseWallet(walletAddress)
	if err != nil {
		return nil, err
	}
	if _, err := ResolvePeriod(periodID, s.clock.Now()); err != nil {
		return nil, err
	}
	cfg, err := s.commitments.GetCommitment(ctx, wallet.Hex(), periodID)
	if errors.Is(err, apperr.ErrNotFound) {
		def := models.DefaultCommitment(wallet.Hex(), periodID)
		return &def, nil
	}
	return cfg, err
}

// PreviewPayout computes the settlement amount without signing anything.
func (s *SettlementService) PreviewPayout(ctx context.Context, walletAddress string, periodID int, depositAmount string) (*PayoutBreakdown, error) {
	wallet, deposit, err := s.parseSettlementInput(walletAddress, depositAmount)
	if err != nil {
		return nil, err
	}
	return s.payout.Breakdown(ctx, wallet.Hex(), periodID, deposit)
}

// SignSettlement computes the payout for the period and signs it for the
// escrow contract. chainID 0 selects the configured chain.
func (s *SettlementService) SignSettlement(ctx context.Context, walletAddress string, periodID int, depositAmount string, chainID int64) (*SettlementAuthorization, error) {
	wallet, deposit, err := s.parseSettlementInput(walletAddress, depositAmount)
	if err != nil {
		return nil, err
	}
	if chainID == 0 {
		chainID = s.cfg.ChainID
	}

	breakdown, err := s.payout.Breakdown(ctx, wallet.Hex(), periodID, deposit)
	if err != nil {
		return nil, err
	}
	out := &SettlementAuthorization{
		WalletAddress:  wallet.Hex(),
		PeriodID:       periodID,
		AmountToReturn: breakdown.Amount.String(),
		ChainID:        chainID,
		Breakdown:      breakdown,
	}
	if deposit.Sign() == 0 {
		return out, nil
	}

	if s.cfg.EscrowAddress == "" {
		return nil, apperr.ErrEscrowNotConfigured
	}
	existing, err := s.commitments.GetCommitment(ctx, wallet.Hex(), periodID)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
	case err != nil:
		return nil, err
	case existing.Status == models.CommitmentStatusSettled:
		return nil, apperr.ErrAlreadySettled
	}

	deadline := s.clock.Now().Add(s.cfg.SignatureTTL).Unix()
	sig, err := s.signer.SignSettlement(blockchain.SettlementRequest{
		User:              wallet.Hex(),
		PeriodID:          int64(periodID),
		AmountToReturn:    breakdown.Amount,
		Deadline:          deadline,
		VerifyingContract: s.cfg.EscrowAddress,
		ChainID:           chainID,
	})
	if err != nil {
		s.log.Error("failed to sign settlement", zap.String("wallet", wallet.Hex()), zap.Int("period_id", periodID), zap.Error(err))
		return nil, err
	}

	if _, err := s.commitments.RecordSettlementSignature(ctx, wallet.Hex(), periodID, storage.SettlementSignature{
		Signature: sig.Signature,
		Amount:    breakdown.Amount.String(),
		Deadline:  deadline,
	}); err != nil {
		return nil, err
	}

	metrics.RecordSignature("settlement")
	s.log.Info("settlement signed",
		zap.String("wallet", wallet.Hex()),
		zap.Int("period_id", periodID),
		zap.String("amount", out.AmountToReturn),
		zap.Bool("penalized", breakdown.Penalized),
		zap.Int64("deadline", deadline),
	)

	out.Deadline = deadline
	out.VerifyingContract = s.cfg.EscrowAddress
	out.Signed = true
	out.Signature = sig.Signature
	out.Digest = sig.Digest
	out.SignerAddress = sig.SignerAddress
	return out, nil
}

// ConfirmSettlement records the on-chain settlement of a signed period. It
// settles a period once; repeating it with the same hash is reported, not
// applied again.
func (s *SettlementService) ConfirmSettlement(ctx context.Context, walletAddress string, periodID int, txHash string) (*SettlementConfirmation, error) {
	wallet, err := blockchain.ParseWallet(walletAddress)
	if err != nil {
		return nil, err
	}
	txHash = strings.TrimSpace(txHash)
	if txHash == "" {
		return nil, apperr.Newf(apperr.ErrInvalidInput, "tx_hash is required")
	}

	settled, err := s.commitments.SettleCommitment(ctx, wallet.Hex(), periodID, txHash, s.clock.Now().UTC())
	if err != nil {
		return nil, err
	}
	cfg, err := s.commitments.GetCommitment(ctx, wallet.Hex(), periodID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.Newf(apperr.ErrNotFound, "no settlement signed for period %d", periodID)
	}
	if err != nil {
		return nil, err
	}

	if !settled {
		switch {
		case cfg.Status == models.CommitmentStatusSettled && cfg.SettlementTxHash != nil && *cfg.SettlementTxHash == txHash:
			return &SettlementConfirmation{Commitment: cfg, AlreadySettled: true}, nil
		case cfg.Status == models.CommitmentStatusSettled:
			return nil, apperr.ErrAlreadySettled
		default:
			return nil, apperr.Newf(apperr.ErrNotFound, "no settlement signed for period %d", periodID)
		}
	}

	metrics.RecordSettlementConfirmed()
	s.log.Info("settlement confirmed",
		zap.String("wallet", cfg.WalletAddress),
		zap.Int("period_id", periodID),
		zap.String("tx_hash", txHash),
	)
	s.archiveReceipt(ctx, cfg)
	return &SettlementConfirmation{Commitment: cfg}, nil
}

func (s *SettlementService) archiveReceipt(ctx context.Context, cfg *models.CommitmentConfig) {
	if s.archive == nil {
		return
	}
	receipt := SettlementReceipt{
		WalletAddress:  cfg.WalletAddress,
		PeriodID:       cfg.PeriodID,
		TxHash:         deref(cfg.SettlementTxHash),
		AmountReturned: deref(cfg.AmountReturned),
		Signature:      deref(cfg.SettlementSignature),
	}
	if cfg.SettledAt != nil {
		receipt.SettledAt = *cfg.SettledAt
	}
	key := fmt.Sprintf("settlements/%s/%d/%s.json", strings.ToLower(cfg.WalletAddress), cfg.PeriodID, receipt.TxHash)
	if err := s.archive.PutJSON(ctx, key, receipt); err != nil {
		s.log.Warn("failed to archive settlement receipt", zap.String("key", key), zap.Error(err))
	}
}

func (s *SettlementService) parseSettlementInput(walletAddress, depositAmount string) (wallet common.Address, deposit *big.Int, err error) {
	wallet, err = blockchain.ParseWallet(walletAddress)
	if err != nil {
		return wallet, nil, err
	}
	if strings.TrimSpace(depositAmount) == "" {
		return wallet, new(big.Int).Set(s.cfg.DefaultDeposit), nil
	}
	deposit, err = blockchain.ParseAtomicAmount(depositAmount)
	return wallet, deposit, err
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
