// Package reporter posts per-block digests to a central aggregator with
// bounded retries (§4.7). Failures here never propagate to the replay
// engine's main loop — they are purely log-level (§7).
package reporter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
)

// Digest is the JSON document reported to the aggregator (§4.7).
type Digest struct {
	Name                string `json:"name"`
	Type                string `json:"type"`
	NodeType            string `json:"node_type"`
	NetworkType         string `json:"network_type"`
	Version             string `json:"version"`
	DBVersion           int    `json:"db_version"`
	EventHashVersion    int    `json:"event_hash_version,omitempty"`
	BlockHeight         int64  `json:"block_height"`
	BlockHash           string `json:"block_hash"`
	BlockEventHash      string `json:"block_event_hash"`
	CumulativeEventHash string `json:"cumulative_event_hash"`
}

// Reporter is an at-most-one-inflight JSON POST client.
type Reporter struct {
	url     string
	retries int
	client  *http.Client
}

// New builds a Reporter posting to url with up to retries attempts
// (default 10 per §4.7), 1 second apart.
func New(url string, retries int) *Reporter {
	if retries <= 0 {
		retries = 10
	}
	return &Reporter{
		url:     url,
		retries: retries,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Report sends one digest, retrying up to r.retries times with a 1-second
// sleep between attempts, then giving up silently (§4.7, §7c).
func (r *Reporter) Report(ctx context.Context, digest Digest) {
	body, err := json.Marshal(digest)
	if err != nil {
		log.WithError(err).Error("reporter: failed to marshal digest")
		return
	}

	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Second), uint64(r.retries-1))

	attempt := 0
	op := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := r.client.Do(req)
		if err != nil {
			log.WithError(err).Warn("reporter: request failed, retrying")
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			log.WithField("status", resp.StatusCode).Warn("reporter: non-200 response, retrying")
			return fmt.Errorf("reporter: status %d", resp.StatusCode)
		}
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		log.WithError(err).WithField("attempts", attempt).Warn("reporter: giving up after exhausting retries")
		return
	}
	log.WithField("block_height", digest.BlockHeight).Info("reporter: reported hashes")
}

// ShouldReport gates reporting by proximity-to-tip or block-count-since-
// last-report, per §4.7: report when within 10 blocks of upstream tip, or
// when at least 100 blocks have passed since the last report.
func ShouldReport(localHeight, upstreamTip, lastReportedHeight int64) bool {
	const nearTipWindow = 10
	const reportEvery = 100

	if upstreamTip-localHeight <= nearTipWindow {
		return true
	}
	return localHeight-lastReportedHeight >= reportEvery
}
