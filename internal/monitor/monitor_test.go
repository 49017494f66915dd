package monitor

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bughra383/simulakra/internal/config"
	"github.com/bughra383/simulakra/internal/gophish"
	"github.com/bughra383/simulakra/internal/pkg/logger"
)

type fakeAPI struct {
	campaignFunc func(poll int) (*gophish.Campaign, error)
	summaryFunc  func(poll int) (*gophish.Summary, error)
	campaignCalls int
	summaryCalls  int
}

func (f *fakeAPI) GetCampaign(ctx context.Context, id int64) (*gophish.Campaign, error) {
	f.campaignCalls++
	return f.campaignFunc(f.campaignCalls)
}

func (f *fakeAPI) GetCampaignSummary(ctx context.Context, id int64) (*gophish.Summary, error) {
	f.summaryCalls++
	return f.summaryFunc(f.summaryCalls)
}

// fakeClock drives the monitor through simulated time: every sleep
// advances the clock instead of blocking.
type fakeClock struct {
	current time.Time
	slept   int
}

func newTestMonitor(api CampaignAPI) (*Monitor, *fakeClock) {
	m := New(api, quietLogger(), config.MonitorConfig{
		CheckIntervalMinutes:     10,
		QuietPeriodMinutes:       30,
		NoActivityTimeoutMinutes: 60,
	})
	clock := &fakeClock{current: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	m.now = func() time.Time { return clock.current }
	m.sleep = func(ctx context.Context, d time.Duration) {
		clock.slept++
		clock.current = clock.current.Add(d)
	}
	return m, clock
}

func quietLogger() *logger.Logger {
	l := logger.New(logger.ERROR, false)
	l.SetOutput(io.Discard)
	return l
}

func staticSummary(stats gophish.Stats) func(int) (*gophish.Summary, error) {
	return func(int) (*gophish.Summary, error) {
		return &gophish.Summary{Stats: stats}, nil
	}
}

func TestCompletedStatusReturnsImmediately(t *testing.T) {
	api := &fakeAPI{
		campaignFunc: func(int) (*gophish.Campaign, error) {
			return &gophish.Campaign{ID: 1, Status: gophish.StatusCompleted}, nil
		},
		summaryFunc: staticSummary(gophish.Stats{Total: 10, Sent: 10}),
	}
	m, clock := newTestMonitor(api)

	campaign, err := m.AwaitCompletion(context.Background(), 1, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, gophish.StatusCompleted, campaign.Status)
	assert.Equal(t, 0, clock.slept, "explicit completion must not sleep")
	assert.Equal(t, 1, api.campaignCalls)
}

func TestPartialDeliveryNeverStopsEarly(t *testing.T) {
	api := &fakeAPI{
		campaignFunc: func(int) (*gophish.Campaign, error) {
			return &gophish.Campaign{ID: 1, Status: gophish.StatusInProgress}, nil
		},
		// sent < total with activity: the delivered paths must not fire.
		summaryFunc: staticSummary(gophish.Stats{Total: 10, Sent: 9, Clicked: 5, SubmittedData: 2}),
	}
	m, clock := newTestMonitor(api)
	start := clock.current

	campaign, err := m.AwaitCompletion(context.Background(), 1, 2*time.Hour)
	require.NoError(t, err)
	require.NotNil(t, campaign)

	// Deadline return, exactly at the deadline, not past it.
	assert.Equal(t, start.Add(2*time.Hour), clock.current)
}

func TestQuietPeriodStop(t *testing.T) {
	api := &fakeAPI{
		campaignFunc: func(int) (*gophish.Campaign, error) {
			return &gophish.Campaign{ID: 1, Status: gophish.StatusInProgress}, nil
		},
		summaryFunc: staticSummary(gophish.Stats{Total: 10, Sent: 10, Clicked: 2}),
	}
	m, clock := newTestMonitor(api)
	start := clock.current

	campaign, err := m.AwaitCompletion(context.Background(), 1, 24*time.Hour)
	require.NoError(t, err)
	require.NotNil(t, campaign)

	// Activity observed on the first poll; quiet period is 30m with a
	// 10m cadence, so the stop fires on the poll after 40m of tracking.
	elapsed := clock.current.Sub(start)
	assert.Equal(t, 40*time.Minute, elapsed)
}

func TestNoActivityStopAfterOneHour(t *testing.T) {
	api := &fakeAPI{
		campaignFunc: func(int) (*gophish.Campaign, error) {
			return &gophish.Campaign{ID: 1, Status: gophish.StatusInProgress}, nil
		},
		summaryFunc: staticSummary(gophish.Stats{Total: 10, Sent: 10}),
	}
	m, clock := newTestMonitor(api)
	start := clock.current

	campaign, err := m.AwaitCompletion(context.Background(), 1, 24*time.Hour)
	require.NoError(t, err)
	require.NotNil(t, campaign)

	elapsed := clock.current.Sub(start)
	assert.Greater(t, elapsed, time.Hour)
	assert.LessOrEqual(t, elapsed, time.Hour+10*time.Minute)
}

func TestTransientErrorsAreRetried(t *testing.T) {
	api := &fakeAPI{
		campaignFunc: func(poll int) (*gophish.Campaign, error) {
			if poll < 3 {
				return nil, errors.New("connection refused")
			}
			return &gophish.Campaign{ID: 1, Status: gophish.StatusCompleted}, nil
		},
		summaryFunc: staticSummary(gophish.Stats{Total: 10, Sent: 10}),
	}
	m, _ := newTestMonitor(api)

	campaign, err := m.AwaitCompletion(context.Background(), 1, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, gophish.StatusCompleted, campaign.Status)
	assert.Equal(t, 3, api.campaignCalls)
}

func TestDeadlineReturnsFinalSnapshot(t *testing.T) {
	api := &fakeAPI{
		campaignFunc: func(poll int) (*gophish.Campaign, error) {
			return &gophish.Campaign{ID: 1, Status: gophish.StatusInProgress, Stats: gophish.Stats{Sent: int64(poll)}}, nil
		},
		summaryFunc: staticSummary(gophish.Stats{Total: 100, Sent: 1}),
	}
	m, _ := newTestMonitor(api)

	campaign, err := m.AwaitCompletion(context.Background(), 1, 30*time.Minute)
	require.NoError(t, err, "deadline is a degraded result, not an error")
	require.NotNil(t, campaign)

	// 3 polls inside the window plus the final snapshot fetch.
	assert.Equal(t, 4, api.campaignCalls)
	assert.Equal(t, int64(4), campaign.Stats.Sent, "must return the final snapshot")
}

func TestDeadlineFallsBackToLastSnapshot(t *testing.T) {
	api := &fakeAPI{
		campaignFunc: func(poll int) (*gophish.Campaign, error) {
			if poll >= 4 {
				return nil, errors.New("service went away")
			}
			return &gophish.Campaign{ID: 1, Status: gophish.StatusInProgress, Stats: gophish.Stats{Sent: int64(poll)}}, nil
		},
		summaryFunc: staticSummary(gophish.Stats{Total: 100, Sent: 1}),
	}
	m, _ := newTestMonitor(api)

	campaign, err := m.AwaitCompletion(context.Background(), 1, 30*time.Minute)
	require.NoError(t, err)
	require.NotNil(t, campaign)
	assert.Equal(t, int64(3), campaign.Stats.Sent, "last good snapshot expected")
}

func TestContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	api := &fakeAPI{
		campaignFunc: func(poll int) (*gophish.Campaign, error) {
			if poll == 2 {
				cancel()
			}
			return &gophish.Campaign{ID: 1, Status: gophish.StatusInProgress}, nil
		},
		summaryFunc: staticSummary(gophish.Stats{Total: 100, Sent: 1}),
	}
	m, _ := newTestMonitor(api)

	campaign, err := m.AwaitCompletion(ctx, 1, 24*time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotNil(t, campaign, "last snapshot should accompany cancellation")
}
