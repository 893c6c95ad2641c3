package runtime

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sort"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/intercooperative/agoranet/pkg/agoraerr"
	"github.com/intercooperative/agoranet/pkg/logger"
	"github.com/intercooperative/agoranet/pkg/models"
	"github.com/intercooperative/agoranet/pkg/store"
	"github.com/intercooperative/agoranet/pkg/telemetry"
)

// Config configures a Consumer's poll target and scheduling.
type Config struct {
	APIURL       string
	PollInterval time.Duration
	DeferralTTL  time.Duration
	HTTPClient   *http.Client
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.DeferralTTL <= 0 {
		c.DeferralTTL = 60 * time.Second
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return c
}

// Consumer runs the single long-lived polling task described in
// spec.md §4.3. The zero value is not usable; construct with New.
type Consumer struct {
	cfg      Config
	deferred map[string]time.Time // proposal_cid -> first-seen-deferred
}

func New(cfg Config) *Consumer {
	return &Consumer{cfg: cfg.withDefaults(), deferred: map[string]time.Time{}}
}

// Run blocks, polling until ctx is cancelled. One poll is in flight at a
// time; cancellation is cooperative between polls and during network wait.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := c.cfg.PollInterval
	if backoff <= 0 {
		backoff = time.Second
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		pollStart := time.Now()
		err := c.pollOnce(ctx)
		telemetry.RuntimePollDuration.Observe(time.Since(pollStart).Seconds())

		wait := c.cfg.PollInterval
		if err != nil {
			logger.Warn("runtime_poll_failed", "error", err)
			backoff = nextBackoff(backoff)
			wait = backoff
		} else {
			backoff = c.cfg.PollInterval
		}
		if err != nil {
			telemetry.RuntimeBackoffSeconds.Set(wait.Seconds())
		} else {
			telemetry.RuntimeBackoffSeconds.Set(0)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// nextBackoff computes the decorrelated-jitter backoff: base 1s, cap 60s.
func nextBackoff(prev time.Duration) time.Duration {
	const base = time.Second
	const cap_ = 60 * time.Second
	if prev < base {
		prev = base
	}
	upper := int64(prev) * 3
	if upper <= int64(base) {
		upper = int64(base) + 1
	}
	n, err := rand.Int(rand.Reader, big.NewInt(upper-int64(base)))
	var jittered time.Duration
	if err != nil {
		jittered = prev
	} else {
		jittered = base + time.Duration(n.Int64())
	}
	if jittered > cap_ {
		jittered = cap_
	}
	return jittered
}

func (c *Consumer) pollOnce(ctx context.Context) error {
	cursor, err := store.GetRuntimeCursor()
	if err != nil {
		if agoraerr.Is(err, agoraerr.KindFatal) {
			logger.Error("runtime_cursor_corrupt_resetting", "error", err)
			if rerr := store.ResetRuntimeCursor(); rerr != nil {
				return rerr
			}
			cursor = models.RuntimeCursor{}
		} else {
			return err
		}
	}

	events, err := c.fetch(ctx, cursor.LastEventTimestamp)
	if err != nil {
		return err
	}
	events = filterAndSort(events, cursor)
	if len(events) == 0 {
		return nil
	}

	lastProjected := -1
	for i, ev := range events {
		ok, err := c.project(ev)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		lastProjected = i
	}
	if lastProjected < 0 {
		return nil
	}
	last := events[lastProjected]
	return store.SaveRuntimeCursor(models.RuntimeCursor{
		LastEventTimestamp:   last.Timestamp,
		LastEventFingerprint: fingerprint(last),
	})
}

// project applies a single event to the store. The bool return is false
// when the event is deferred (not yet safe to advance the cursor past it).
func (c *Consumer) project(ev Event) (bool, error) {
	telemetry.RuntimeEventsProcessedTotal.WithLabelValues(string(ev.Type)).Inc()
	switch ev.Type {
	case EventProposalCreated:
		_, _, err := store.UpsertRuntimeThread(ev.ProposalCID, ev.Title, ev.CreatedByDID, ev.Timestamp)
		return err == nil, err

	case EventProposalFinalized:
		_, err := store.ApplyFinalization(ev.ProposalCID, ev.Approved, ev.Timestamp)
		if err == nil {
			delete(c.deferred, ev.ProposalCID)
			return true, nil
		}
		if !agoraerr.Is(err, agoraerr.KindNotFound) {
			return false, err
		}
		firstSeen, seen := c.deferred[ev.ProposalCID]
		if !seen {
			c.deferred[ev.ProposalCID] = time.Now()
			return false, nil
		}
		if time.Since(firstSeen) < c.cfg.DeferralTTL {
			return false, nil
		}
		if _, _, err := store.UpsertRuntimeThread(ev.ProposalCID, "(pending) "+ev.ProposalCID, "", ev.Timestamp); err != nil {
			return false, err
		}
		if _, err := store.ApplyFinalization(ev.ProposalCID, ev.Approved, ev.Timestamp); err != nil {
			return false, err
		}
		delete(c.deferred, ev.ProposalCID)
		return true, nil

	case EventCredentialIssued:
		_, err := store.RecordVerifiedCredential(ev.CredentialCID, ev.SubjectDID, ev.IssuerDID, ev.CredentialType, ev.ValidUntil, ev.Timestamp)
		return err == nil, err

	default:
		logger.Warn("runtime_unknown_event_type", "type", ev.Type)
		return true, nil
	}
}

func (c *Consumer) fetch(ctx context.Context, since int64) ([]Event, error) {
	url := fmt.Sprintf("%s/events?since=%d", c.cfg.APIURL, since)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, agoraerr.Wrap(agoraerr.KindFatal, err, "building runtime request")
	}
	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, agoraerr.Wrap(agoraerr.KindTransient, err, "runtime transport failure")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode >= 500 {
		return nil, agoraerr.Newf(agoraerr.KindTransient, "runtime returned %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		logger.Warn("runtime_client_error_skipping_poll", "status", resp.StatusCode)
		return nil, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, agoraerr.Wrap(agoraerr.KindTransient, err, "reading runtime response")
	}
	var events []Event
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, agoraerr.Wrap(agoraerr.KindTransient, err, "decoding runtime response")
	}
	return events, nil
}

// filterAndSort drops events the cursor has already applied and returns the
// remainder ordered by (timestamp, fingerprint).
func filterAndSort(events []Event, cursor models.RuntimeCursor) []Event {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Timestamp != events[j].Timestamp {
			return events[i].Timestamp < events[j].Timestamp
		}
		return fingerprint(events[i]) < fingerprint(events[j])
	})
	out := events[:0:0]
	for _, ev := range events {
		fp := fingerprint(ev)
		if ev.Timestamp < cursor.LastEventTimestamp {
			continue
		}
		if ev.Timestamp == cursor.LastEventTimestamp && fp <= cursor.LastEventFingerprint {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// fingerprint is a deterministic hash of the serialized event body, used to
// disambiguate same-timestamp events in the cursor.
func fingerprint(ev Event) string {
	b, _ := json.Marshal(ev)
	sum := blake2b.Sum256(b)
	var shortBuf [8]byte
	copy(shortBuf[:], sum[:8])
	return fmt.Sprintf("%016x", binary.BigEndian.Uint64(shortBuf[:]))
}
