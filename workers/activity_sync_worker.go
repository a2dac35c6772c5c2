// workers/activity_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"lvlup-backend/blockchain"
	"lvlup-backend/logger"
	"lvlup-backend/models"
	"lvlup-backend/storage"
	"lvlup-backend/utils"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// initialLookback is how far back the first poll reaches.
const initialLookback = 24 * time.Hour

// ActivitySyncClient fetches changed activity items from the external planner.
type ActivitySyncClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func NewActivitySyncClient(baseURL, token string) *ActivitySyncClient {
	return &ActivitySyncClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *ActivitySyncClient) GetChangedActivities(ctx context.Context, since time.Time) ([]models.ActivityItem, error) {
	u, err := url.Parse(c.BaseURL + "/api/v1/public/timeblocks")
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}
	q := u.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call sync service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("sync service returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Timeblocks []models.ActivityItem `json:"timeblocks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode sync service response: %w", err)
	}
	return response.Timeblocks, nil
}

// ActivitySyncWorker mirrors external activity items into the ledger.
type ActivitySyncWorker struct {
	client   *ActivitySyncClient
	store    storage.ActivityStore
	interval time.Duration
	clock    clockwork.Clock
	log      *zap.Logger
	lastSync time.Time
}

func NewActivitySyncWorker(client *ActivitySyncClient, store storage.ActivityStore, interval time.Duration, clock clockwork.Clock, log *zap.Logger) *ActivitySyncWorker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ActivitySyncWorker{
		client:   client,
		store:    store,
		interval: interval,
		clock:    clock,
		log:      logger.OrNop(log).Named("activity_sync"),
		lastSync: clock.Now().UTC().Add(-initialLookback),
	}
}

// Run polls until ctx is cancelled.
func (w *ActivitySyncWorker) Run(ctx context.Context) {
	w.log.Info("activity sync started", zap.Duration("interval", w.interval))
	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("activity sync stopped")
			return
		case <-ticker.Chan():
			if _, err := w.SyncOnce(ctx); err != nil {
				w.log.Error("activity sync failed", zap.Time("since", w.lastSync), zap.Error(err))
			}
		}
	}
}

// SyncOnce pulls changes since the last successful sync and upserts them.
// The window only advances on success.
func (w *ActivitySyncWorker) SyncOnce(ctx context.Context) (int, error) {
	started := w.clock.Now().UTC()

	items, err := w.client.GetChangedActivities(ctx, w.lastSync)
	if err != nil {
		return 0, err
	}

	valid := make([]models.ActivityItem, 0, len(items))
	for _, item := range items {
		if normalizeSynced(&item) {
			valid = append(valid, item)
		} else {
			w.log.Warn("skipping malformed timeblock", zap.String("id", item.ID), zap.String("date", item.Date))
		}
	}

	if err := w.store.UpsertActivities(ctx, valid); err != nil {
		return 0, fmt.Errorf("failed to upsert %d timeblock(s): %w", len(valid), err)
	}

	w.lastSync = started
	if len(valid) > 0 {
		w.log.Info("timeblocks synced", zap.Int("count", len(valid)))
	}
	return len(valid), nil
}

func normalizeSynced(item *models.ActivityItem) bool {
	if strings.TrimSpace(item.ID) == "" {
		return false
	}
	if _, err := time.Parse(models.ActivityDateLayout, item.Date); err != nil {
		return false
	}
	item.Title = utils.NormalizeTitle(item.Title)
	item.CategoryID = utils.NormalizeCategoryID(item.CategoryID)
	if item.WalletAddress != "" {
		wallet, err := blockchain.ParseWallet(item.WalletAddress)
		if err != nil {
			return false
		}
		item.WalletAddress = wallet.Hex()
	}
	return true
}
