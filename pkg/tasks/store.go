package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/synaptica-ai/studyrunner/pkg/common/logger"
	"github.com/synaptica-ai/studyrunner/pkg/store"
)

var ErrNotFound = errors.New("task not found")

// Listener is called after every successful write with the new task list.
type Listener func(ctx context.Context, all []Task)

// Store serialises read-modify-write access to the persisted task list.
// Completion by one engine and rescheduling by another cannot interleave.
type Store struct {
	mu        sync.Mutex
	kv        store.Store
	listeners []Listener
}

func NewStore(kv store.Store) *Store {
	return &Store{kv: kv}
}

// OnChange registers l to run after each write. Listeners run in registration
// order on the writer's goroutine, outside the lock.
func (s *Store) OnChange(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// All returns a snapshot of the persisted list. A missing list reads as empty.
func (s *Store) All(ctx context.Context) ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *Store) load(ctx context.Context) ([]Task, error) {
	var all []Task
	if _, err := s.kv.Get(ctx, store.KeyStudyTasks, &all); err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	return all, nil
}

// Get returns one task by routing id.
func (s *Store) Get(ctx context.Context, taskID int) (Task, error) {
	all, err := s.All(ctx)
	if err != nil {
		return Task{}, err
	}
	i, ok := Find(all, taskID)
	if !ok {
		return Task{}, fmt.Errorf("%w: %d", ErrNotFound, taskID)
	}
	return all[i], nil
}

// Replace overwrites the list, as done on enrolment.
func (s *Store) Replace(ctx context.Context, all []Task) error {
	return s.Update(ctx, func([]Task) ([]Task, error) {
		return all, nil
	})
}

// Update loads the list, applies fn and persists its result atomically with
// respect to other Update calls.
func (s *Store) Update(ctx context.Context, fn func([]Task) ([]Task, error)) error {
	s.mu.Lock()
	all, err := s.load(ctx)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	next, err := fn(all)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if err := s.kv.Set(ctx, store.KeyStudyTasks, next); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("save tasks: %w", err)
	}
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	for _, l := range listeners {
		l(ctx, Clone(next))
	}
	return nil
}

// Complete records a completion for taskID.
func (s *Store) Complete(ctx context.Context, taskID int, c Completion) (Task, error) {
	var done Task
	err := s.Update(ctx, func(all []Task) ([]Task, error) {
		i, ok := Find(all, taskID)
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrNotFound, taskID)
		}
		all[i] = all[i].Complete(c)
		done = all[i]
		return all, nil
	})
	if err != nil {
		return Task{}, err
	}
	logger.ForTask("tasks", taskID, done.Index).Info("Task completed")
	return done, nil
}
