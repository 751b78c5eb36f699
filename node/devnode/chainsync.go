package devnode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nodepilot/observability/logging"
)

// syncLoop follows the chain tip until ctx is cancelled. Failures are logged
// and retried on the next tick. Start performs the first sync.
func (n *Node) syncLoop(ctx context.Context) {
	if n.syncInterval <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(n.syncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.syncOnce(ctx)
		}
	}
}

func (n *Node) syncOnce(ctx context.Context) {
	height, err := n.fetchTipHeight(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		n.metrics.RecordSyncError()
		n.logger.Warn("chain sync failed", slog.String("endpoint", n.cfg.EsploraURL), slog.Any("error", err))
		return
	}
	previous, err := n.store.tipHeight()
	if err != nil {
		n.logger.Warn("read tip height", slog.Any("error", err))
		return
	}
	n.metrics.SetTipHeight(height)
	if height == previous {
		return
	}
	if err := n.store.setTipHeight(height); err != nil {
		n.logger.Warn("store tip height", slog.Any("error", err))
		return
	}
	n.logger.Log(ctx, logging.LevelTrace, "chain tip advanced", slog.Uint64("height", uint64(height)))
	if previous == 0 {
		// First height ever seen only sets the baseline.
		return
	}
	n.promotePending(height)
}

// fetchTipHeight asks the Esplora endpoint for the current best height.
func (n *Node) fetchTipHeight(ctx context.Context) (uint32, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	endpoint := strings.TrimRight(n.cfg.EsploraURL, "/") + "/blocks/tip/height"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}
	resp, err := n.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("esplora returned %s", resp.Status)
	}
	height, err := strconv.ParseUint(strings.TrimSpace(string(body)), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("parse tip height: %w", err)
	}
	return uint32(height), nil
}
