// Package config decodes service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"lvlup-backend/blockchain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joeshaw/envdecode"
)

// Config holds every setting the service reads at startup.
type Config struct {
	Port           int    `env:"PORT,default=5200"`
	DatabaseURL    string `env:"DATABASE_URL,required"`
	GatewayToken   string `env:"GATEWAY_SERVICE_TOKEN,required"`
	AllowedOrigins string `env:"ALLOWED_ORIGINS,default=http://localhost:3000"`

	SignerPrivateKey      string        `env:"SIGNER_PRIVATE_KEY,required"`
	EscrowAddress         string        `env:"HABIT_ESCROW_ADDRESS"`
	ChainID               int64         `env:"CHAIN_ID,default=84532"`
	DefaultDepositAmount  string        `env:"DEFAULT_DEPOSIT_AMOUNT,default=1000000000000000000"`
	SettlementTTL         time.Duration `env:"SETTLEMENT_SIGNATURE_TTL,default=1h"`
	RewardAmountPerTask   string        `env:"REWARD_AMOUNT_PER_TASK,default=100"`
	StakeClaimWindow      time.Duration `env:"STAKE_CLAIM_WINDOW,default=720h"`
	SignerSelfTestEvery   time.Duration `env:"SIGNER_SELF_TEST_INTERVAL,default=1h"`
	StakeExpirySweepEvery time.Duration `env:"STAKE_EXPIRY_SWEEP_INTERVAL,default=10m"`

	Log Log

	R2 R2

	ActivitySync ActivitySync
}

type Log struct {
	Level     string `env:"LOG_LEVEL,default=info"`
	File      string `env:"LOG_FILE"`
	ErrorFile string `env:"LOG_ERROR_FILE"`
	Console   bool   `env:"LOG_CONSOLE,default=true"`
}

// R2 configures the receipt archive. An empty bucket disables archiving.
type R2 struct {
	AccountID       string `env:"CLOUDFLARE_ACCOUNT_ID"`
	AccessKeyID     string `env:"R2_ACCESS_KEY_ID"`
	AccessKeySecret string `env:"R2_ACCESS_KEY_SECRET"`
	Bucket          string `env:"R2_BUCKET_NAME"`
}

func (r R2) Enabled() bool { return r.Bucket != "" && r.AccountID != "" }

// ActivitySync configures the external planner poller. An empty URL disables it.
type ActivitySync struct {
	URL      string        `env:"ACTIVITY_SYNC_URL"`
	Token    string        `env:"ACTIVITY_SYNC_TOKEN"`
	Interval time.Duration `env:"ACTIVITY_SYNC_INTERVAL,default=30s"`
}

// Load decodes the environment into a Config and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT out of range: %d", c.Port)
	}
	if c.ChainID <= 0 {
		return fmt.Errorf("CHAIN_ID must be positive: %d", c.ChainID)
	}
	if _, err := c.DefaultDeposit(); err != nil {
		return err
	}
	if _, err := c.RewardPerTask(); err != nil {
		return err
	}
	if c.EscrowAddress != "" && !common.IsHexAddress(c.EscrowAddress) {
		return fmt.Errorf("HABIT_ESCROW_ADDRESS is not a valid address: %q", c.EscrowAddress)
	}
	if c.SettlementTTL <= 0 {
		return fmt.Errorf("SETTLEMENT_SIGNATURE_TTL must be positive")
	}
	if c.StakeClaimWindow < 0 {
		return fmt.Errorf("STAKE_CLAIM_WINDOW must not be negative")
	}
	if c.ActivitySync.URL != "" && c.ActivitySync.Interval <= 0 {
		return fmt.Errorf("ACTIVITY_SYNC_INTERVAL must be positive when ACTIVITY_SYNC_URL is set")
	}
	return nil
}

// Origins returns ALLOWED_ORIGINS with whitespace trimmed around each entry.
func (c *Config) Origins() string {
	parts := strings.Split(c.AllowedOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ",")
}

// DefaultDeposit parses DEFAULT_DEPOSIT_AMOUNT in atomic units.
func (c *Config) DefaultDeposit() (*big.Int, error) {
	v, err := blockchain.ParseAtomicAmount(c.DefaultDepositAmount)
	if err != nil {
		return nil, fmt.Errorf("DEFAULT_DEPOSIT_AMOUNT: %w", err)
	}
	return v, nil
}

// RewardPerTask parses REWARD_AMOUNT_PER_TASK in atomic units.
func (c *Config) RewardPerTask() (*big.Int, error) {
	v, err := blockchain.ParseAtomicAmount(c.RewardAmountPerTask)
	if err != nil {
		return nil, fmt.Errorf("REWARD_AMOUNT_PER_TASK: %w", err)
	}
	return v, nil
}
