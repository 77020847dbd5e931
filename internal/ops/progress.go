package ops

import (
	"sync"
	"time"
)

const (
	StatusQueued     = "queued"
	StatusCounting   = "counting"
	StatusProcessing = "processing"
	StatusScanning   = "scanning"
	StatusCompleted  = "completed"
	StatusError      = "error"
	StatusStopped    = "stopped"
)

const (
	KindIndex = "index"
	KindScan  = "scan"
)

func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusError || status == StatusStopped
}

// Snapshot is one point-in-time view of an operation. The same struct is
// returned by the polling endpoint and pushed over websockets, so both
// surfaces always agree.
type Snapshot struct {
	TaskID          string         `json:"task_id"`
	TaskType        string         `json:"task_type"`
	Status          string         `json:"status"`
	DirectoryPath   string         `json:"directory_path"`
	TotalFiles      int            `json:"total_files"`
	FilesProcessed  int            `json:"files_processed"`
	FilesIndexed    int            `json:"files_indexed"`
	FilesSkipped    int            `json:"files_skipped"`
	SkipReasons     map[string]int `json:"skip_reasons,omitempty"`
	MatchesFound    int            `json:"matches_found"`
	CurrentFile     string         `json:"current_file"`
	ProgressPercent float64        `json:"progress_percent"`
	StartedAt       time.Time      `json:"started_at"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	ErrorMessage    string         `json:"error_message,omitempty"`
}

// clone deep-copies the reason map so a snapshot handed to a caller or
// subscriber never aliases the tracker's live state.
func (s Snapshot) clone() Snapshot {
	if s.SkipReasons != nil {
		reasons := make(map[string]int, len(s.SkipReasons))
		for k, v := range s.SkipReasons {
			reasons[k] = v
		}
		s.SkipReasons = reasons
	}
	return s
}

func (s *Snapshot) recalc() {
	if s.TotalFiles > 0 {
		s.ProgressPercent = float64(s.FilesProcessed) / float64(s.TotalFiles) * 100
	} else if IsTerminal(s.Status) {
		s.ProgressPercent = 100
	} else {
		s.ProgressPercent = 0
	}
}

type tracker struct {
	snapshot  Snapshot
	cancelled bool
	subs      map[chan Snapshot]struct{}
}

// ProgressStore holds the live state of in-flight operations and fans updates
// out to websocket subscribers. Slow subscribers drop intermediate updates
// rather than stall the operation.
type ProgressStore struct {
	mu       sync.RWMutex
	trackers map[string]*tracker
}

func NewProgressStore() *ProgressStore {
	return &ProgressStore{trackers: make(map[string]*tracker)}
}

func (p *ProgressStore) Create(id, kind, dir string) Snapshot {
	snap := Snapshot{
		TaskID:        id,
		TaskType:      kind,
		Status:        StatusQueued,
		DirectoryPath: dir,
		StartedAt:     time.Now().UTC(),
	}
	p.mu.Lock()
	p.trackers[id] = &tracker{snapshot: snap, subs: make(map[chan Snapshot]struct{})}
	p.mu.Unlock()
	return snap
}

// Update mutates the snapshot under lock and publishes the result.
func (p *ProgressStore) Update(id string, mutate func(*Snapshot)) Snapshot {
	p.mu.Lock()
	t, ok := p.trackers[id]
	if !ok {
		p.mu.Unlock()
		return Snapshot{}
	}
	mutate(&t.snapshot)
	t.snapshot.recalc()
	snap := t.snapshot.clone()
	subs := make([]chan Snapshot, 0, len(t.subs))
	for ch := range t.subs {
		subs = append(subs, ch)
	}
	p.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- snap:
		default:
		}
	}
	return snap
}

func (p *ProgressStore) Get(id string) (Snapshot, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.trackers[id]
	if !ok {
		return Snapshot{}, false
	}
	return t.snapshot.clone(), true
}

// Subscribe registers a listener for updates to one operation. The returned
// cancel function must be called when the listener goes away.
func (p *ProgressStore) Subscribe(id string) (<-chan Snapshot, func(), bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.trackers[id]
	if !ok {
		return nil, nil, false
	}

	ch := make(chan Snapshot, 16)
	t.subs[ch] = struct{}{}
	ch <- t.snapshot.clone()

	cancel := func() {
		p.mu.Lock()
		if t, ok := p.trackers[id]; ok {
			delete(t.subs, ch)
		}
		p.mu.Unlock()
	}
	return ch, cancel, true
}

// Cancel flags an operation for stopping. The worker honors the flag at the
// next batch boundary.
func (p *ProgressStore) Cancel(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.trackers[id]
	if !ok || IsTerminal(t.snapshot.Status) {
		return false
	}
	t.cancelled = true
	return true
}

func (p *ProgressStore) IsCancelled(id string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.trackers[id]
	return ok && t.cancelled
}
