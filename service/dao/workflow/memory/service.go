package memory

import (
	"context"
	"sync"

	"github.com/stepflow/stepflow/model"
	"github.com/stepflow/stepflow/service/dao"
)

// Service is an in-memory, thread-safe registry of active workflows. The
// registry only guards the map itself; mutation of an individual workflow is
// serialised by the per-workflow lock held by the executor and controller.
type Service struct {
	workflows map[string]*model.ActiveWorkflow
	mux       sync.RWMutex
}

var _ dao.Service[string, model.ActiveWorkflow] = (*Service)(nil)

// New creates an empty workflow registry.
func New() *Service {
	return &Service{workflows: map[string]*model.ActiveWorkflow{}}
}

func (s *Service) Save(_ context.Context, w *model.ActiveWorkflow) error {
	if w == nil {
		return dao.ErrNilEntity
	}
	if w.ID == "" {
		return dao.ErrInvalidID
	}
	s.mux.Lock()
	defer s.mux.Unlock()
	s.workflows[w.ID] = w
	return nil
}

func (s *Service) Load(_ context.Context, id string) (*model.ActiveWorkflow, error) {
	if id == "" {
		return nil, dao.ErrInvalidID
	}
	s.mux.RLock()
	w, ok := s.workflows[id]
	s.mux.RUnlock()
	if !ok {
		return nil, dao.ErrNotFound
	}
	return w, nil
}

func (s *Service) Delete(_ context.Context, id string) error {
	if id == "" {
		return dao.ErrInvalidID
	}
	s.mux.Lock()
	defer s.mux.Unlock()
	if _, ok := s.workflows[id]; !ok {
		return dao.ErrNotFound
	}
	delete(s.workflows, id)
	return nil
}

func (s *Service) List(_ context.Context) ([]*model.ActiveWorkflow, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	out := make([]*model.ActiveWorkflow, 0, len(s.workflows))
	for _, w := range s.workflows {
		out = append(out, w)
	}
	return out, nil
}
