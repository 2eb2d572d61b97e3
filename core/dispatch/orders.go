package dispatch

import (
	"context"
	"errors"
	"sync"

	"github.com/shareprinto/dispatcher/core/model"
)

// ErrOrderNotFound is returned when the order store has no such order.
var ErrOrderNotFound = errors.New("order not found")

// OrderStore holds the order records the scheduler mutates. Status and
// AssignedFarmer are written only by the scheduler while a run is active.
type OrderStore interface {
	Get(ctx context.Context, id string) (model.Order, error)
	Put(ctx context.Context, o model.Order) error
	SetStatus(ctx context.Context, id string, status model.OrderStatus, assignedFarmerID string) error
}

// MemoryOrderStore is the in-process OrderStore implementation.
type MemoryOrderStore struct {
	mu   sync.RWMutex
	data map[string]model.Order
}

// NewMemoryOrderStore creates an empty MemoryOrderStore.
func NewMemoryOrderStore() *MemoryOrderStore {
	return &MemoryOrderStore{data: map[string]model.Order{}}
}

func (s *MemoryOrderStore) Get(ctx context.Context, id string) (model.Order, error) {
	s.mu.RLock()
	o, ok := s.data[id]
	s.mu.RUnlock()
	if !ok {
		return model.Order{}, ErrOrderNotFound
	}
	return o, nil
}

func (s *MemoryOrderStore) Put(ctx context.Context, o model.Order) error {
	if err := o.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.data[o.ID] = o
	s.mu.Unlock()
	return nil
}

func (s *MemoryOrderStore) SetStatus(ctx context.Context, id string, status model.OrderStatus, assignedFarmerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.data[id]
	if !ok {
		return ErrOrderNotFound
	}
	o.Status = status
	if assignedFarmerID != "" {
		o.AssignedFarmer = assignedFarmerID
	}
	s.data[id] = o
	return nil
}
