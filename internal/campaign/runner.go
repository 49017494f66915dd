// Package campaign orchestrates one exercise end to end: launch,
// monitor, extract, record, warn.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bughra383/simulakra/internal/config"
	"github.com/bughra383/simulakra/internal/extract"
	"github.com/bughra383/simulakra/internal/gophish"
	"github.com/bughra383/simulakra/internal/pkg/distlock"
	"github.com/bughra383/simulakra/internal/pkg/logger"
	"github.com/bughra383/simulakra/internal/repository/postgres"
	"github.com/bughra383/simulakra/internal/results"
	"github.com/bughra383/simulakra/internal/targets"
)

// ErrAlreadyRunning is returned when another instance holds the run
// lock for this month's campaign.
var ErrAlreadyRunning = errors.New("campaign run already in progress")

// API is the slice of the campaign service the runner drives.
type API interface {
	GetSMTPProfiles(ctx context.Context) ([]gophish.SMTPProfile, error)
	GetTemplates(ctx context.Context) ([]gophish.Template, error)
	GetPages(ctx context.Context) ([]gophish.Page, error)
	GetGroups(ctx context.Context) ([]gophish.Group, error)
	CreateGroup(ctx context.Context, group gophish.Group) (*gophish.Group, error)
	CreateCampaign(ctx context.Context, req gophish.CampaignRequest) (*gophish.Campaign, error)
	GetCampaign(ctx context.Context, campaignID int64) (*gophish.Campaign, error)
	CompleteCampaign(ctx context.Context, campaignID int64) error
}

// CompletionWaiter blocks until a campaign is done or a deadline hits.
type CompletionWaiter interface {
	AwaitCompletion(ctx context.Context, campaignID int64, timeout time.Duration) (*gophish.Campaign, error)
}

// UserExtractor produces the affected-user list for a finished campaign.
type UserExtractor interface {
	Extract(ctx context.Context, campaign *gophish.Campaign) []extract.AffectedUser
}

// WarningSender delivers warning emails to affected users.
type WarningSender interface {
	NotifyAll(ctx context.Context, users []extract.AffectedUser) (sent, failed int)
}

// RunStore persists run history.
type RunStore interface {
	Record(ctx context.Context, run postgres.Run) error
}

// ResultArchiver uploads a result file and returns its remote location.
type ResultArchiver interface {
	Archive(ctx context.Context, localPath string) (string, error)
}

// LockFactory builds a run lock for a campaign name.
type LockFactory func(campaignName string, ttl time.Duration) distlock.RunLock

// Runner drives a full campaign run.
type Runner struct {
	api       API
	waiter    CompletionWaiter
	extractor UserExtractor

	// Optional collaborators, nil disables the step.
	notifier WarningSender
	store    RunStore
	archiver ResultArchiver
	lockFor  LockFactory

	cfg        config.CampaignConfig
	resultsDir string
	status     *Status
	log        *logger.Logger

	now      func() time.Time
	newRunID func() string
}

// Outcome summarizes a finished run.
type Outcome struct {
	RunID       string
	Campaign    *gophish.Campaign
	Affected    []extract.AffectedUser
	ResultsPath string
	ArchivePath string
	Notified    int
	NotifyFails int
}

// New creates a runner. The notifier, store, archiver, and lock
// factory may be nil.
func New(api API, waiter CompletionWaiter, extractor UserExtractor, cfg config.CampaignConfig, resultsDir string, log *logger.Logger) *Runner {
	return &Runner{
		api:        api,
		waiter:     waiter,
		extractor:  extractor,
		cfg:        cfg,
		resultsDir: resultsDir,
		status:     NewStatus(),
		log:        log,
		now:        time.Now,
		newRunID:   uuid.NewString,
	}
}

// SetNotifier enables warning-email delivery.
func (r *Runner) SetNotifier(n WarningSender) { r.notifier = n }

// SetStore enables run-history persistence.
func (r *Runner) SetStore(s RunStore) { r.store = s }

// SetArchiver enables S3 archival of result files.
func (r *Runner) SetArchiver(a ResultArchiver) { r.archiver = a }

// SetLockFactory enables distributed run locking.
func (r *Runner) SetLockFactory(f LockFactory) { r.lockFor = f }

// Status exposes the run-status tracker for the status API.
func (r *Runner) Status() *Status { return r.status }

// Run launches this month's campaign and sees it through. The campaign
// and group names are derived from the current month so a re-run in the
// same month reuses the existing target group.
func (r *Runner) Run(ctx context.Context) (*Outcome, error) {
	month := r.now().UTC().Format("2006-01")
	campaignName := fmt.Sprintf("%s %s", r.cfg.NamePrefix, month)
	groupName := fmt.Sprintf("Targets-%s", month)
	resultsPath := filepath.Join(r.resultsDir, fmt.Sprintf("clicked_%s.csv", month))

	if r.lockFor != nil {
		lock := r.lockFor(campaignName, r.cfg.Timeout()+time.Hour)
		ok, err := lock.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquiring run lock: %w", err)
		}
		if !ok {
			return nil, ErrAlreadyRunning
		}
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := lock.Release(releaseCtx); err != nil {
				r.log.Warn("releasing run lock", "campaign", campaignName, "error", err.Error())
			}
		}()
	}

	runID := r.newRunID()
	startedAt := r.now()
	r.status.begin(runID, campaignName, startedAt)
	r.log.Info("starting campaign run", "run_id", runID, "campaign", campaignName)

	created, err := r.launch(ctx, campaignName, groupName)
	if err != nil {
		r.status.finish(StateFailed, 0, err.Error(), r.now())
		return nil, err
	}
	r.status.setCampaignID(created.ID)

	r.status.update(StateMonitoring, r.now())
	final, err := r.waiter.AwaitCompletion(ctx, created.ID, r.cfg.Timeout())
	if err != nil && final == nil {
		r.status.finish(StateFailed, 0, err.Error(), r.now())
		return nil, fmt.Errorf("monitoring campaign %d: %w", created.ID, err)
	}
	if final == nil {
		final = created
	}

	if !gophish.IsCompletedStatus(final.Status) {
		if err := r.api.CompleteCampaign(ctx, created.ID); err != nil {
			r.log.Warn("marking campaign complete", "campaign_id", created.ID, "error", err.Error())
		} else {
			final.Status = "Completed"
		}
	}

	outcome := r.wrapUp(ctx, runID, startedAt, final, resultsPath)
	return outcome, nil
}

// CompleteNow force-completes an already running campaign and runs the
// extraction and notification tail for it.
func (r *Runner) CompleteNow(ctx context.Context, campaignID int64) (*Outcome, error) {
	campaign, err := r.api.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("fetching campaign %d: %w", campaignID, err)
	}

	runID := r.newRunID()
	startedAt := r.now()
	r.status.begin(runID, campaign.Name, startedAt)
	r.status.setCampaignID(campaign.ID)
	r.log.Info("manually completing campaign", "run_id", runID, "campaign_id", campaignID, "campaign", campaign.Name)

	if !gophish.IsCompletedStatus(campaign.Status) {
		if err := r.api.CompleteCampaign(ctx, campaignID); err != nil {
			return nil, fmt.Errorf("completing campaign %d: %w", campaignID, err)
		}
		campaign.Status = "Completed"
	}

	resultsPath := filepath.Join(r.resultsDir, fmt.Sprintf("%s_manual.csv", slug(campaign.Name)))
	outcome := r.wrapUp(ctx, runID, startedAt, campaign, resultsPath)
	return outcome, nil
}

// launch reads targets, resolves the sending resources by name, and
// creates the campaign. Missing resources are fatal.
func (r *Runner) launch(ctx context.Context, campaignName, groupName string) (*gophish.Campaign, error) {
	list, err := targets.ReadFile(r.cfg.TargetsCSV, r.log)
	if err != nil {
		return nil, fmt.Errorf("reading targets: %w", err)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("no valid targets in %s", r.cfg.TargetsCSV)
	}

	profile, err := r.findSMTPProfile(ctx)
	if err != nil {
		return nil, err
	}
	template, err := r.findTemplate(ctx)
	if err != nil {
		return nil, err
	}
	page, err := r.findPage(ctx)
	if err != nil {
		return nil, err
	}
	group, err := r.ensureGroup(ctx, groupName, list)
	if err != nil {
		return nil, err
	}

	req := gophish.CampaignRequest{
		Name:       campaignName,
		Groups:     []gophish.Group{{Name: group.Name}},
		Page:       &gophish.Page{Name: page.Name},
		Template:   &gophish.Template{Name: template.Name},
		SMTP:       &gophish.SMTPProfile{Name: profile.Name},
		URL:        r.cfg.URL,
		LaunchDate: r.now().UTC().Format(time.RFC3339),
	}

	created, err := r.api.CreateCampaign(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("creating campaign %q: %w", campaignName, err)
	}

	r.log.Info("campaign launched",
		"campaign_id", created.ID,
		"campaign", campaignName,
		"targets", len(list),
	)
	return created, nil
}

func (r *Runner) findSMTPProfile(ctx context.Context) (*gophish.SMTPProfile, error) {
	profiles, err := r.api.GetSMTPProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing sending profiles: %w", err)
	}
	for i := range profiles {
		if profiles[i].Name == r.cfg.SMTPProfile {
			return &profiles[i], nil
		}
	}
	return nil, fmt.Errorf("sending profile %q not found", r.cfg.SMTPProfile)
}

func (r *Runner) findTemplate(ctx context.Context) (*gophish.Template, error) {
	templates, err := r.api.GetTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing templates: %w", err)
	}
	for i := range templates {
		if templates[i].Name == r.cfg.Template {
			return &templates[i], nil
		}
	}
	return nil, fmt.Errorf("email template %q not found", r.cfg.Template)
}

func (r *Runner) findPage(ctx context.Context) (*gophish.Page, error) {
	pages, err := r.api.GetPages(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing landing pages: %w", err)
	}
	for i := range pages {
		if pages[i].Name == r.cfg.LandingPage {
			return &pages[i], nil
		}
	}
	return nil, fmt.Errorf("landing page %q not found", r.cfg.LandingPage)
}

// ensureGroup reuses the month's target group when it already exists.
func (r *Runner) ensureGroup(ctx context.Context, name string, list []gophish.Target) (*gophish.Group, error) {
	groups, err := r.api.GetGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing groups: %w", err)
	}
	for i := range groups {
		if groups[i].Name == name {
			r.log.Info("reusing existing target group", "group", name)
			return &groups[i], nil
		}
	}

	created, err := r.api.CreateGroup(ctx, gophish.Group{Name: name, Targets: list})
	if err != nil {
		return nil, fmt.Errorf("creating group %q: %w", name, err)
	}
	r.log.Info("target group created", "group", name, "targets", len(list))
	return created, nil
}

// wrapUp runs the post-completion tail: extract, write results, archive,
// notify, record. Failures past extraction degrade to warnings so a
// finished campaign always yields its result file.
func (r *Runner) wrapUp(ctx context.Context, runID string, startedAt time.Time, campaign *gophish.Campaign, resultsPath string) *Outcome {
	r.status.update(StateExtracting, r.now())
	affected := r.extractor.Extract(ctx, campaign)

	outcome := &Outcome{
		RunID:       runID,
		Campaign:    campaign,
		Affected:    affected,
		ResultsPath: resultsPath,
	}

	if err := results.WriteCSV(resultsPath, affected); err != nil {
		r.log.Error("writing results file", "path", resultsPath, "error", err.Error())
	} else {
		r.log.Info("results written", "path", resultsPath, "affected", len(affected))
		if r.archiver != nil {
			loc, err := r.archiver.Archive(ctx, resultsPath)
			if err != nil {
				r.log.Error("archiving results", "path", resultsPath, "error", err.Error())
			} else {
				outcome.ArchivePath = loc
				r.log.Info("results archived", "location", loc)
			}
		}
	}

	if r.notifier != nil && r.cfg.WarningsEnabled() && len(affected) > 0 {
		r.status.update(StateNotifying, r.now())
		outcome.Notified, outcome.NotifyFails = r.notifier.NotifyAll(ctx, affected)
	}

	if r.store != nil {
		run := postgres.Run{
			ID:            runID,
			CampaignID:    campaign.ID,
			CampaignName:  campaign.Name,
			Status:        campaign.Status,
			Total:         campaign.Stats.Total,
			Sent:          campaign.Stats.Sent,
			Opened:        campaign.Stats.Opened,
			Clicked:       campaign.Stats.Clicked,
			SubmittedData: campaign.Stats.SubmittedData,
			Reported:      campaign.Stats.EmailReported,
			AffectedCount: len(affected),
			ResultsPath:   outcome.ResultsPath,
			StartedAt:     startedAt,
			FinishedAt:    r.now(),
		}
		if err := r.store.Record(ctx, run); err != nil {
			r.log.Error("recording run history", "run_id", runID, "error", err.Error())
		}
	}

	r.status.finish(StateDone, len(affected), "", r.now())
	r.log.Info("campaign run finished",
		"run_id", runID,
		"campaign_id", campaign.ID,
		"affected", len(affected),
		"notified", outcome.Notified,
	)
	return outcome
}

func slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, s)
}
