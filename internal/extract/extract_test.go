package extract

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
	campaign    *gophish.Campaign
	summary     *gophish.Summary
	campaignErr error
	summaryErr  error
}

func (f *fakeAPI) GetCampaign(ctx context.Context, id int64) (*gophish.Campaign, error) {
	return f.campaign, f.campaignErr
}

func (f *fakeAPI) GetCampaignSummary(ctx context.Context, id int64) (*gophish.Summary, error) {
	return f.summary, f.summaryErr
}

func newTestExtractor(api *fakeAPI) *Extractor {
	l := logger.New(logger.ERROR, false)
	l.SetOutput(io.Discard)
	e := New(api, l, config.ExtractConfig{})
	e.now = func() time.Time { return time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC) }
	return e
}

func TestTimelineScanSingleClick(t *testing.T) {
	api := &fakeAPI{
		summary: &gophish.Summary{
			Stats: gophish.Stats{Total: 5, Sent: 5, Clicked: 1},
			Timeline: []gophish.TimelineEvent{
				{Email: "a@example.com", Message: "Clicked Link", Time: "2026-03-02T10:00:00Z"},
				{Email: "b@example.com", Message: "Email Sent", Time: "2026-03-02T09:00:00Z"},
			},
		},
	}
	e := newTestExtractor(api)

	users := e.Extract(context.Background(), &gophish.Campaign{ID: 1})
	require.Len(t, users, 1)
	assert.Equal(t, "a@example.com", users[0].Email)
	assert.Equal(t, "Clicked Link", users[0].EventType)
	assert.Equal(t, "2026-03-02T10:00:00Z", users[0].EventTime)
}

func TestTimelineEmailFromDetails(t *testing.T) {
	api := &fakeAPI{
		summary: &gophish.Summary{
			Timeline: []gophish.TimelineEvent{
				{
					Message: "Submitted Data",
					Details: gophish.Details{"email": "C@Example.COM", "first_name": "Carol"},
				},
			},
		},
	}
	e := newTestExtractor(api)

	users := e.Extract(context.Background(), &gophish.Campaign{ID: 1})
	require.Len(t, users, 1)
	assert.Equal(t, "c@example.com", users[0].Email, "email must be lower-cased")
	assert.Equal(t, "Carol", users[0].FirstName)
}

func TestTimelineDeduplication(t *testing.T) {
	api := &fakeAPI{
		summary: &gophish.Summary{
			Timeline: []gophish.TimelineEvent{
				{Email: "a@example.com", Message: "Clicked Link"},
				{Email: "a@example.com", Message: "Clicked Link"},
				{Email: "a@example.com", Message: "Submitted Data"},
			},
		},
	}
	e := newTestExtractor(api)

	users := e.Extract(context.Background(), &gophish.Campaign{ID: 1})
	// Identical (email, message) collapses; a different message for the
	// same email is a separate entry.
	require.Len(t, users, 2)
	assert.Equal(t, "Clicked Link", users[0].EventType)
	assert.Equal(t, "Submitted Data", users[1].EventType)
}

func TestTimelineEventWithoutEmailSkipped(t *testing.T) {
	api := &fakeAPI{
		summary: &gophish.Summary{
			Timeline: []gophish.TimelineEvent{
				{Message: "Clicked Link"},
			},
		},
	}
	e := newTestExtractor(api)

	users := e.Extract(context.Background(), &gophish.Campaign{ID: 1})
	assert.Empty(t, users)
}

func TestResultScanOnEmptyTimeline(t *testing.T) {
	campaign := &gophish.Campaign{
		ID: 1,
		Results: []gophish.CampaignResult{
			{Email: "b@example.com", FirstName: "Bob", Status: "Submitted Data", SendDate: "2026-03-02T08:00:00Z"},
			{Email: "c@example.com", Status: "Email Sent"},
			{Email: "d@example.com", Status: "Email Opened", Reported: true},
		},
	}
	api := &fakeAPI{
		campaign: campaign,
		summary:  &gophish.Summary{Timeline: []gophish.TimelineEvent{}},
	}
	e := newTestExtractor(api)

	users := e.Extract(context.Background(), campaign)
	require.Len(t, users, 2)
	assert.Equal(t, "b@example.com", users[0].Email)
	assert.Equal(t, "Submitted Data", users[0].EventType)
	assert.Equal(t, "2026-03-02T08:00:00Z", users[0].EventTime)
	assert.Equal(t, "d@example.com", users[1].Email, "reported targets qualify")
	assert.Equal(t, "Clicked Link", users[1].EventType)
}

func TestResultScanNotTriggeredByUnmatchedTimeline(t *testing.T) {
	// A populated timeline with zero matches is a real answer: the raw
	// result scan must not run.
	campaign := &gophish.Campaign{
		ID: 1,
		Results: []gophish.CampaignResult{
			{Email: "b@example.com", Status: "Clicked Link"},
		},
	}
	api := &fakeAPI{
		campaign: campaign,
		summary: &gophish.Summary{
			Timeline: []gophish.TimelineEvent{
				{Email: "b@example.com", Message: "Email Sent"},
			},
		},
	}
	e := newTestExtractor(api)

	users := e.Extract(context.Background(), campaign)
	assert.Empty(t, users)
}

func TestStatisticalReconstruction(t *testing.T) {
	campaign := &gophish.Campaign{
		ID: 1,
		Groups: []gophish.Group{
			{
				Name: "Targets-2026-03",
				Targets: []gophish.Target{
					{Email: "t0@example.com", FirstName: "T", LastName: "Zero"},
					{Email: "t1@example.com"},
					{Email: "t2@example.com"},
				},
			},
		},
	}
	api := &fakeAPI{
		campaign: campaign,
		summary: &gophish.Summary{
			Stats:    gophish.Stats{Total: 3, Sent: 3, Clicked: 2, SubmittedData: 1},
			Timeline: []gophish.TimelineEvent{},
		},
	}
	e := newTestExtractor(api)

	users := e.Extract(context.Background(), campaign)
	require.Len(t, users, 2, "max(clicked, submitted) entries expected")
	assert.Equal(t, "t0@example.com", users[0].Email)
	assert.Equal(t, "Submitted Data", users[0].EventType)
	assert.Equal(t, "t1@example.com", users[1].Email)
	assert.Equal(t, "Clicked Link", users[1].EventType)

	// Reconstruction time, not an observed timestamp.
	assert.Equal(t, "2026-03-02T12:00:00Z", users[0].EventTime)
}

func TestReconstructionUsesOnlyFirstGroup(t *testing.T) {
	campaign := &gophish.Campaign{
		ID: 1,
		Groups: []gophish.Group{
			{Targets: []gophish.Target{{Email: "first@example.com"}}},
			{Targets: []gophish.Target{{Email: "second@example.com"}}},
		},
	}
	api := &fakeAPI{
		campaign: campaign,
		summary: &gophish.Summary{
			Stats:    gophish.Stats{Clicked: 5},
			Timeline: []gophish.TimelineEvent{},
		},
	}
	e := newTestExtractor(api)

	users := e.Extract(context.Background(), campaign)
	require.Len(t, users, 1)
	assert.Equal(t, "first@example.com", users[0].Email)
}

func TestNoActivityYieldsEmpty(t *testing.T) {
	api := &fakeAPI{
		campaign: &gophish.Campaign{ID: 1},
		summary: &gophish.Summary{
			Stats:    gophish.Stats{Total: 5, Sent: 5},
			Timeline: []gophish.TimelineEvent{},
		},
	}
	e := newTestExtractor(api)

	users := e.Extract(context.Background(), &gophish.Campaign{ID: 1})
	assert.Empty(t, users)
}

func TestSummaryFetchFailureDegrades(t *testing.T) {
	campaign := &gophish.Campaign{
		ID: 1,
		Results: []gophish.CampaignResult{
			{Email: "b@example.com", Status: "Clicked Link"},
		},
	}
	api := &fakeAPI{
		campaign:   campaign,
		summaryErr: errors.New("boom"),
	}
	e := newTestExtractor(api)

	// No summary at all behaves like an empty timeline: the result scan
	// still finds the clicker.
	users := e.Extract(context.Background(), campaign)
	require.Len(t, users, 1)
	assert.Equal(t, "b@example.com", users[0].Email)
}

func TestExtractIdempotence(t *testing.T) {
	api := &fakeAPI{
		summary: &gophish.Summary{
			Timeline: []gophish.TimelineEvent{
				{Email: "a@example.com", Message: "Clicked Link"},
				{Email: "b@example.com", Message: "Submitted Data"},
			},
		},
	}
	e := newTestExtractor(api)
	campaign := &gophish.Campaign{ID: 1}

	first := e.Extract(context.Background(), campaign)
	second := e.Extract(context.Background(), campaign)
	assert.Equal(t, first, second)
}

func TestExtraPhrasesFromConfig(t *testing.T) {
	api := &fakeAPI{
		summary: &gophish.Summary{
			Timeline: []gophish.TimelineEvent{
				{Email: "a@example.com", Message: "Opened Attachment"},
			},
		},
	}
	l := logger.New(logger.ERROR, false)
	l.SetOutput(io.Discard)
	e := New(api, l, config.ExtractConfig{
		ExtraPhrases: map[string]string{"opened attachment": KindClicked},
	})

	users := e.Extract(context.Background(), &gophish.Campaign{ID: 1})
	require.Len(t, users, 1)
	assert.Equal(t, "Opened Attachment", users[0].EventType)
}

func TestNilCampaign(t *testing.T) {
	e := newTestExtractor(&fakeAPI{})
	assert.Nil(t, e.Extract(context.Background(), nil))
}
