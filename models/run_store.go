package models

import (
	"context"
	"fmt"
	"sync"

	"github.com/aukilabs/go-tooling/pkg/logs"
)

const defaultServerID = "quadrant"

// RunStore holds the runs of a server.
type RunStore struct {
	// The id prefixed to global run ids.
	ServerID string

	// The maximum number of runs kept. When the store is full, adding a run
	// evicts the oldest one. 0 means no limit.
	MaxRuns int

	initOnce sync.Once
	mutex    sync.RWMutex
	runs     map[string]*Run
	order    []string
	ids      SequentialIDGenerator
}

func (s *RunStore) init() {
	s.runs = map[string]*Run{}

	if s.ServerID == "" {
		s.ServerID = defaultServerID
	}
}

func (s *RunStore) NewID() uint32 {
	return s.ids.New()
}

// ReleaseID makes an id returned by NewID available again. It is used when
// a run could not be created.
func (s *RunStore) ReleaseID(id uint32) {
	s.ids.Reuse(id)
}

func (s *RunStore) Add(ctx context.Context, run *Run) error {
	s.initOnce.Do(s.init)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.MaxRuns > 0 {
		for len(s.order) >= s.MaxRuns {
			oldest := s.runs[s.order[0]]
			s.remove(oldest)

			logs.WithTag("run_id", s.GlobalRunID(oldest.ID)).
				WithTag("max_runs", s.MaxRuns).
				Debug("oldest run evicted")
		}
	}

	id := s.GlobalRunID(run.ID)
	s.runs[id] = run
	s.order = append(s.order, id)

	instrumentIncreaseRunGauge()
	instrumentCountRun()
	return nil
}

func (s *RunStore) Remove(ctx context.Context, run *Run) {
	s.initOnce.Do(s.init)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.remove(run)
}

func (s *RunStore) remove(run *Run) {
	id := s.GlobalRunID(run.ID)
	if stored, ok := s.runs[id]; !ok || stored != run {
		return
	}

	delete(s.runs, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.ids.Reuse(run.ID)

	instrumentDecreaseRunGauge()
}

func (s *RunStore) Get(globalID string) (*Run, bool) {
	s.initOnce.Do(s.init)

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	run, ok := s.runs[globalID]
	return run, ok
}

// List returns the stored runs, oldest first.
func (s *RunStore) List() []*Run {
	s.initOnce.Do(s.init)

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	runs := make([]*Run, 0, len(s.order))
	for _, id := range s.order {
		runs = append(runs, s.runs[id])
	}
	return runs
}

func (s *RunStore) Len() int {
	s.initOnce.Do(s.init)

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return len(s.runs)
}

func (s *RunStore) GlobalRunID(runID uint32) string {
	s.initOnce.Do(s.init)
	return fmt.Sprintf("%sx%x", s.ServerID, runID)
}
