// Package extract turns ambiguous, inconsistently-shaped campaign event
// data into a reliable list of people who interacted with the exercise.
//
// Upstream deployments vary: some populate rich timelines, others leave
// the timeline empty while still updating aggregate counters. Three
// strategies of decreasing specificity run in order, each tried only
// when the previous one yielded nothing, so that "stats say activity
// happened" never silently produces zero actionable output.
package extract

import (
	"context"
	"strings"
	"time"

	"github.com/bughra383/simulakra/internal/config"
	"github.com/bughra383/simulakra/internal/gophish"
	"github.com/bughra383/simulakra/internal/pkg/logger"
)

// AffectedUser is one person determined to have clicked or submitted
// data. Email is lower-cased and serves as the primary identity.
type AffectedUser struct {
	FirstName string
	LastName  string
	Email     string
	EventTime string
	EventType string
}

// API is the read surface the pipeline needs from the campaign service.
type API interface {
	GetCampaign(ctx context.Context, campaignID int64) (*gophish.Campaign, error)
	GetCampaignSummary(ctx context.Context, campaignID int64) (*gophish.Summary, error)
}

// Extractor runs the three-strategy cascade against campaign snapshots.
type Extractor struct {
	api     API
	log     *logger.Logger
	phrases []PhraseRule

	// Strategy C stamps reconstructed entries with the current time;
	// injectable for deterministic tests.
	now func() time.Time
}

// New creates an Extractor with the built-in phrase table extended by
// any configured extra phrases.
func New(api API, log *logger.Logger, cfg config.ExtractConfig) *Extractor {
	return &Extractor{
		api:     api,
		log:     log,
		phrases: buildPhrases(cfg.ExtraPhrases),
		now:     time.Now,
	}
}

// state is the shared input each strategy reads: the campaign snapshot
// plus the summary fetched once at the start of the call.
type state struct {
	campaign *gophish.Campaign
	summary  *gophish.Summary
}

// Extract returns the de-duplicated affected users for a campaign.
// It never fails: malformed or missing fields default safely, transient
// fetch errors degrade to whatever data is already in the snapshot, and
// the worst case is an empty slice. De-duplication is local to a single
// call; re-running against unchanged upstream data reproduces the same
// set (modulo Strategy C's wall-clock timestamps).
func (e *Extractor) Extract(ctx context.Context, campaign *gophish.Campaign) []AffectedUser {
	if campaign == nil {
		return nil
	}

	st := &state{campaign: campaign}

	summary, err := e.api.GetCampaignSummary(ctx, campaign.ID)
	if err != nil {
		e.log.Error("summary fetch failed, extracting from snapshot only",
			"campaign_id", campaign.ID, "error", err.Error())
	} else {
		st.summary = summary
	}

	// Ordered cascade: first non-empty result wins.
	strategies := []func(context.Context, *state) []AffectedUser{
		e.scanTimeline,
		e.scanResults,
		e.reconstructFromStats,
	}

	var users []AffectedUser
	for _, strategy := range strategies {
		users = strategy(ctx, st)
		if len(users) > 0 {
			break
		}
	}

	e.log.Info("extraction finished",
		"campaign_id", campaign.ID, "affected_users", len(users))
	return users
}

// scanTimeline is Strategy A: match timeline messages against the
// phrase table. Dedup key is (email, lower-cased message), so the same
// address can appear once per distinct matched message.
func (e *Extractor) scanTimeline(_ context.Context, st *state) []AffectedUser {
	if st.summary == nil {
		return nil
	}

	e.log.Info("scanning timeline events",
		"campaign_id", st.campaign.ID, "events", len(st.summary.Timeline))

	var users []AffectedUser
	seen := map[string]bool{}

	for _, event := range st.summary.Timeline {
		msg := strings.ToLower(event.Message)
		kind, matched := classify(e.phrases, msg)
		if !matched {
			continue
		}

		email := event.Email
		if email == "" {
			email = event.Details.Email()
		}
		email = strings.ToLower(strings.TrimSpace(email))

		key := email + "_" + msg
		if seen[key] {
			continue
		}
		seen[key] = true

		if email == "" {
			continue
		}

		eventType := event.Message
		if eventType == "" {
			eventType = kind
		}

		users = append(users, AffectedUser{
			FirstName: event.Details.FirstName(),
			LastName:  event.Details.LastName(),
			Email:     email,
			EventTime: event.Time,
			EventType: eventType,
		})
		e.log.Info("affected user found in timeline",
			"email", email, "event_type", eventType)
	}

	return users
}

// scanResults is Strategy B: read per-target result records. Runs only
// when the timeline itself was empty — zero matches against a populated
// timeline is a real answer, not a trigger.
func (e *Extractor) scanResults(ctx context.Context, st *state) []AffectedUser {
	if st.summary != nil && len(st.summary.Timeline) > 0 {
		return nil
	}

	e.log.Info("timeline empty, scanning raw result records",
		"campaign_id", st.campaign.ID)

	results := st.campaign.Results
	if fresh, err := e.api.GetCampaign(ctx, st.campaign.ID); err == nil {
		results = fresh.Results
	} else {
		e.log.Error("campaign refetch failed, using snapshot results",
			"campaign_id", st.campaign.ID, "error", err.Error())
	}

	var users []AffectedUser
	seen := map[string]bool{}

	for _, result := range results {
		submitted := result.Status == KindSubmitted || result.SubmittedData != nil
		qualifies := submitted ||
			result.Status == KindClicked ||
			result.Clicked != nil ||
			result.Reported
		if !qualifies {
			continue
		}

		email := strings.ToLower(strings.TrimSpace(result.Email))
		if email == "" || seen[email] {
			continue
		}
		seen[email] = true

		eventType := KindClicked
		if submitted {
			eventType = KindSubmitted
		}

		users = append(users, AffectedUser{
			FirstName: result.FirstName,
			LastName:  result.LastName,
			Email:     email,
			EventTime: result.SendDate,
			EventType: eventType,
		})
		e.log.Info("affected user found in results",
			"email", email, "event_type", eventType)
	}

	return users
}

// reconstructFromStats is Strategy C: the aggregate counters report
// activity but no per-event data names anyone. Approximate from the
// first target group: the first `submitted` targets are labeled as
// submitters, the remainder up to max(clicked, submitted) as clickers.
// Timestamps are the reconstruction time, not observations.
func (e *Extractor) reconstructFromStats(ctx context.Context, st *state) []AffectedUser {
	stats := st.campaign.Stats
	if st.summary != nil {
		stats = st.summary.Stats
	}
	if !stats.HasActivity() {
		return nil
	}

	e.log.Warn("stats report activity but no per-event data was found, reconstructing from group",
		"campaign_id", st.campaign.ID,
		"clicked", stats.Clicked,
		"submitted", stats.SubmittedData)

	groups := st.campaign.Groups
	if fresh, err := e.api.GetCampaign(ctx, st.campaign.ID); err == nil && len(fresh.Groups) > 0 {
		groups = fresh.Groups
	}
	if len(groups) == 0 {
		return nil
	}

	// Only the first group is considered, even when several exist.
	targets := groups[0].Targets
	limit := stats.Clicked
	if stats.SubmittedData > limit {
		limit = stats.SubmittedData
	}

	reconstructedAt := e.now().Format(time.RFC3339)
	var users []AffectedUser

	for i, target := range targets {
		if int64(i) >= limit {
			break
		}
		email := strings.ToLower(strings.TrimSpace(target.Email))
		if email == "" {
			continue
		}

		eventType := KindClicked
		if int64(i) < stats.SubmittedData {
			eventType = KindSubmitted
		}

		users = append(users, AffectedUser{
			FirstName: target.FirstName,
			LastName:  target.LastName,
			Email:     email,
			EventTime: reconstructedAt,
			EventType: eventType,
		})
		e.log.Info("reconstructed affected user entry",
			"email", email, "event_type", eventType)
	}

	return users
}
