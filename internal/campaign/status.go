package campaign

import (
	"sync"
	"time"
)

// State names the phase a run is in.
type State string

const (
	StateIdle       State = "idle"
	StateLaunching  State = "launching"
	StateMonitoring State = "monitoring"
	StateExtracting State = "extracting"
	StateNotifying  State = "notifying"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Snapshot is a point-in-time copy of the run status, shaped for the
// status API.
type Snapshot struct {
	State         State     `json:"state"`
	RunID         string    `json:"run_id,omitempty"`
	CampaignID    int64     `json:"campaign_id,omitempty"`
	CampaignName  string    `json:"campaign_name,omitempty"`
	StartedAt     time.Time `json:"started_at,omitempty"`
	UpdatedAt     time.Time `json:"updated_at,omitempty"`
	AffectedCount int       `json:"affected_count"`
	Error         string    `json:"error,omitempty"`
}

// Status tracks the current run for the status API. Safe for
// concurrent use.
type Status struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewStatus returns an idle status tracker.
func NewStatus() *Status {
	return &Status{snap: Snapshot{State: StateIdle}}
}

// Snapshot returns a copy of the current status.
func (s *Status) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

func (s *Status) begin(runID, campaignName string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = Snapshot{
		State:        StateLaunching,
		RunID:        runID,
		CampaignName: campaignName,
		StartedAt:    now,
		UpdatedAt:    now,
	}
}

func (s *Status) update(state State, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.State = state
	s.snap.UpdatedAt = now
}

func (s *Status) setCampaignID(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.CampaignID = id
}

func (s *Status) finish(state State, affected int, errMsg string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.State = state
	s.snap.AffectedCount = affected
	s.snap.Error = errMsg
	s.snap.UpdatedAt = now
}
