// Package memory implements repository.Store with mutex-guarded maps.
// Transitions and their findings/results commit under one lock, which gives
// the same first-writer-wins guarantee as the postgres store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/MaanVader/Chack/domain/entity/assessment"
	"github.com/MaanVader/Chack/domain/entity/finding"
	"github.com/MaanVader/Chack/domain/entity/result"
	"github.com/MaanVader/Chack/domain/repository"
	"github.com/MaanVader/Chack/observability/types"
)

var _ repository.Store = (*Store)(nil)

type Store struct {
	mu sync.Mutex

	assessments map[string]*assessment.Assessment
	findings    map[string]*finding.Finding
	// findingIDs keeps insertion order per assessment
	findingIDs map[string][]string
	results    map[string][]*result.Result
	subs       map[string]map[*subscription]struct{}

	// done is closed by Close and releases subscription watchers.
	done      chan struct{}
	closeOnce sync.Once
	watchers  sync.WaitGroup

	logger  types.Logger
	metrics types.Metrics
}

type subscription struct {
	ch chan assessment.Assessment
}

func New(logger types.Logger, metrics types.Metrics) *Store {
	return &Store{
		assessments: make(map[string]*assessment.Assessment),
		findings:    make(map[string]*finding.Finding),
		findingIDs:  make(map[string][]string),
		results:     make(map[string][]*result.Result),
		subs:        make(map[string]map[*subscription]struct{}),
		done:        make(chan struct{}),
		logger:      logger,
		metrics:     metrics,
	}
}

func (s *Store) Create(ctx context.Context, a *assessment.Assessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.assessments[a.ID]; exists {
		return fmt.Errorf("assessment %s already exists", a.ID)
	}

	cp := *a
	s.assessments[a.ID] = &cp
	s.metrics.RecordSuccess("repository.assessments.create")
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*assessment.Assessment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.assessments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *Store) ListByProject(ctx context.Context, projectID string) ([]*assessment.Assessment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*assessment.Assessment, 0)
	for _, a := range s.assessments {
		if a.ProjectID == projectID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) Transition(ctx context.Context, id string, from, to assessment.Status, patch repository.TransitionPatch) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", assessment.ErrInvalidStateTransition, from, to)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.assessments[id]
	if !ok {
		return repository.ErrNotFound
	}
	if current.Status != from {
		s.metrics.RecordError("repository.assessments.transition", "conflict")
		return fmt.Errorf("%w: expected %s, found %s", assessment.ErrStateConflict, from, current.Status)
	}

	next := *current
	if err := patch.Apply(&next, to); err != nil {
		return err
	}

	for _, f := range patch.Findings {
		cp := *f
		cp.AssessmentID = id
		s.findings[cp.ID] = &cp
		s.findingIDs[id] = append(s.findingIDs[id], cp.ID)
	}
	for _, r := range patch.Results {
		cp := *r
		cp.AssessmentID = id
		s.results[id] = append(s.results[id], &cp)
	}
	s.assessments[id] = &next

	s.publishLocked(next)
	s.metrics.RecordSuccess("repository.assessments.transition")
	return nil
}

func (s *Store) Subscribe(ctx context.Context, id string) (<-chan assessment.Assessment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.assessments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}

	sub := &subscription{ch: make(chan assessment.Assessment, 1)}
	sub.ch <- *current

	if s.subs[id] == nil {
		s.subs[id] = make(map[*subscription]struct{})
	}
	s.subs[id][sub] = struct{}{}

	s.watchers.Add(1)
	go func() {
		defer s.watchers.Done()
		select {
		case <-ctx.Done():
		case <-s.done:
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		s.removeLocked(id, sub)
	}()

	return sub.ch, nil
}

// publishLocked hands snap to every subscriber of its id, replacing a
// snapshot the subscriber has not read yet.
func (s *Store) publishLocked(snap assessment.Assessment) {
	for sub := range s.subs[snap.ID] {
		select {
		case sub.ch <- snap:
		default:
			select {
			case <-sub.ch:
			default:
			}
			sub.ch <- snap
		}
	}
}

func (s *Store) removeLocked(id string, sub *subscription) {
	set, ok := s.subs[id]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	close(sub.ch)
	if len(set) == 0 {
		delete(s.subs, id)
	}
}

func (s *Store) ListFindings(ctx context.Context, assessmentID string, filter repository.FindingFilter) ([]*finding.Finding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*finding.Finding, 0, len(s.findingIDs[assessmentID]))
	for _, fid := range s.findingIDs[assessmentID] {
		f := s.findings[fid]
		if filter.Matches(f) {
			cp := *f
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) GetFinding(ctx context.Context, id string) (*finding.Finding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.findings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (s *Store) UpdateFinding(ctx context.Context, id string, patch repository.FindingPatch, at time.Time) (*finding.Finding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.findings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}

	next := *f
	if err := patch.Apply(&next, at); err != nil {
		return nil, err
	}
	s.findings[id] = &next

	cp := next
	return &cp, nil
}

func (s *Store) ListResults(ctx context.Context, assessmentID string) ([]*result.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*result.Result, 0, len(s.results[assessmentID]))
	for _, r := range s.results[assessmentID] {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// Close ends every open subscription.
func (s *Store) Close() error {
	s.closeOnce.Do(func() { close(s.done) })

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, set := range s.subs {
		for sub := range set {
			s.removeLocked(id, sub)
		}
	}
	s.logger.Debug(context.Background(), "memory store closed", nil)
	return nil
}
