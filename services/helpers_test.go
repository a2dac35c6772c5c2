package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"lvlup-backend/blockchain"
	"lvlup-backend/models"
	"lvlup-backend/storage"
	"lvlup-backend/storage/storagetest"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testKey    = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"
	testWallet = "0x71C7656EC7ab88b098defB751B7401B5f6d8976F"
	testEscrow = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
)

// testNow is Wednesday of ISO week 11, 2026.
var testNow = time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	store  *storage.GormStorage
	clock  *clockwork.FakeClock
	signer *blockchain.Authority
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := clockwork.NewFakeClockAt(testNow)
	signer, err := blockchain.NewAuthority(testKey, clock)
	require.NoError(t, err)
	return &testEnv{store: storagetest.New(t), clock: clock, signer: signer}
}

func (e *testEnv) payout() *PayoutCalculator {
	return NewPayoutCalculator(e.store, e.store, e.clock)
}

func (e *testEnv) stakes() *StakeService {
	return NewStakeService(e.store, e.store, e.signer, e.clock, zap.NewNop())
}

func (e *testEnv) addActivity(t *testing.T, date, category string, completed bool) *models.ActivityItem {
	t.Helper()
	item := &models.ActivityItem{
		UserID:        "u1",
		WalletAddress: testWallet,
		Title:         "block " + date,
		Date:          date,
		StartTime:     "08:00",
		EndTime:       "09:00",
		CategoryID:    category,
		Completed:     completed,
	}
	require.NoError(t, e.store.CreateActivity(context.Background(), item))
	return item
}

type fakeArchive struct {
	mu      sync.Mutex
	objects map[string]any
	err     error
}

func (f *fakeArchive) PutJSON(_ context.Context, key string, v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.objects == nil {
		f.objects = map[string]any{}
	}
	f.objects[key] = v
	return nil
}

func (e *testEnv) settlement(archive ReceiptArchive) *SettlementService {
	return NewSettlementService(e.store, e.payout(), e.signer, archive, SettlementConfig{
		EscrowAddress:  testEscrow,
		ChainID:        84532,
		DefaultDeposit: oneToken(),
		SignatureTTL:   time.Hour,
	}, e.clock, zap.NewNop())
}
