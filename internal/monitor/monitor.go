// Package monitor decides when a running campaign is done. It polls the
// campaign service on a fixed cadence and applies a layered heuristic:
// explicit completion, fully-delivered with a quiet period after
// activity, or fully-delivered with no activity at all.
package monitor

import (
	"context"
	"time"

	"github.com/bughra383/simulakra/internal/config"
	"github.com/bughra383/simulakra/internal/gophish"
	"github.com/bughra383/simulakra/internal/pkg/logger"
)

// CampaignAPI is the read surface the monitor needs from the campaign
// service client. Both calls must be idempotent.
type CampaignAPI interface {
	GetCampaign(ctx context.Context, campaignID int64) (*gophish.Campaign, error)
	GetCampaignSummary(ctx context.Context, campaignID int64) (*gophish.Summary, error)
}

// Monitor polls a campaign until a stop condition or the deadline fires.
// Single-threaded and blocking; one AwaitCompletion call at a time.
type Monitor struct {
	api               CampaignAPI
	log               *logger.Logger
	checkInterval     time.Duration
	quietPeriod       time.Duration
	noActivityTimeout time.Duration

	// Injection points for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

// New creates a Monitor with the configured cadence and windows.
func New(api CampaignAPI, log *logger.Logger, cfg config.MonitorConfig) *Monitor {
	m := &Monitor{
		api:               api,
		log:               log,
		checkInterval:     cfg.CheckInterval(),
		quietPeriod:       cfg.QuietPeriod(),
		noActivityTimeout: cfg.NoActivityTimeout(),
		now:               time.Now,
		sleep:             sleepCtx,
	}
	if m.checkInterval <= 0 {
		m.checkInterval = 10 * time.Minute
	}
	if m.quietPeriod <= 0 {
		m.quietPeriod = 30 * time.Minute
	}
	if m.noActivityTimeout <= 0 {
		m.noActivityTimeout = time.Hour
	}
	return m
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// AwaitCompletion polls the campaign until it is done or timeout elapses.
// Transient poll failures are logged and treated as "no new information
// this cycle"; they never abort the wait. On the overall deadline the
// last observed snapshot is returned with a nil error — a degraded but
// valid result callers must still process. The returned error is non-nil
// only when the context is canceled or no snapshot was ever observed.
func (m *Monitor) AwaitCompletion(ctx context.Context, campaignID int64, timeout time.Duration) (*gophish.Campaign, error) {
	start := m.now()
	deadline := start.Add(timeout)

	m.log.Info("monitoring campaign for completion",
		"campaign_id", campaignID,
		"timeout", timeout.String(),
		"check_interval", m.checkInterval.String())

	// Set once, on first observation of sustained activity. Deliberately
	// never reset afterwards, even if activity keeps arriving.
	var lastActivityCheck *time.Time
	var lastSnapshot *gophish.Campaign

	for m.now().Before(deadline) {
		if ctx.Err() != nil {
			return lastSnapshot, ctx.Err()
		}

		campaign, err := m.api.GetCampaign(ctx, campaignID)
		if err != nil {
			m.log.Error("campaign poll failed, retrying next cycle",
				"campaign_id", campaignID, "error", err.Error())
			m.sleepInterval(ctx, deadline)
			continue
		}
		lastSnapshot = campaign

		summary, err := m.api.GetCampaignSummary(ctx, campaignID)
		if err != nil {
			m.log.Error("campaign summary poll failed, retrying next cycle",
				"campaign_id", campaignID, "error", err.Error())
			m.sleepInterval(ctx, deadline)
			continue
		}

		stats := summary.Stats
		m.log.Info("campaign status",
			"campaign_id", campaignID,
			"status", campaign.Status,
			"sent", stats.Sent,
			"total", stats.Total,
			"opened", stats.Opened,
			"clicked", stats.Clicked,
			"submitted", stats.SubmittedData)

		// 1. Explicit completion.
		if gophish.IsCompletedStatus(campaign.Status) {
			m.log.Info("campaign completed", "campaign_id", campaignID, "status", campaign.Status)
			return campaign, nil
		}

		if stats.FullyDelivered() {
			if stats.HasActivity() {
				// 2. Fully delivered with activity: wait out the quiet period.
				if lastActivityCheck == nil {
					t := m.now()
					lastActivityCheck = &t
					m.log.Info("campaign has activity, starting quiet-period tracking",
						"campaign_id", campaignID, "quiet_period", m.quietPeriod.String())
				} else if m.now().Sub(*lastActivityCheck) > m.quietPeriod {
					m.log.Info("quiet period elapsed, considering campaign complete",
						"campaign_id", campaignID)
					return campaign, nil
				}
			} else if m.now().Sub(start) > m.noActivityTimeout {
				// 3. Fully delivered, nothing ever happened.
				m.log.Info("all messages delivered with no activity, considering campaign complete",
					"campaign_id", campaignID, "waited", m.now().Sub(start).String())
				return campaign, nil
			}
		}

		m.sleepInterval(ctx, deadline)
	}

	if ctx.Err() != nil {
		return lastSnapshot, ctx.Err()
	}

	// 4. Deadline reached without a stop condition. Not an error: fetch
	// one last snapshot and hand back whatever we have.
	m.log.Warn("campaign monitoring timed out",
		"campaign_id", campaignID, "timeout", timeout.String())

	campaign, err := m.api.GetCampaign(ctx, campaignID)
	if err != nil {
		if lastSnapshot != nil {
			m.log.Error("final snapshot fetch failed, returning last observed state",
				"campaign_id", campaignID, "error", err.Error())
			return lastSnapshot, nil
		}
		return nil, err
	}
	return campaign, nil
}

// sleepInterval sleeps for the check interval, clamped so the loop wakes
// at the deadline rather than past it.
func (m *Monitor) sleepInterval(ctx context.Context, deadline time.Time) {
	d := m.checkInterval
	if remaining := deadline.Sub(m.now()); remaining < d {
		d = remaining
	}
	if d <= 0 {
		return
	}
	m.sleep(ctx, d)
}
