package tagging

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"tagflow/internal/logging"
)

// CreateCall is one recorded Apply.
type CreateCall struct {
	Resource Descriptor
	Pair     Pair
}

// DeleteCall is one recorded Remove.
type DeleteCall struct {
	Pair      Pair
	Resources []Descriptor
}

// Recorder is an in-memory executor used for dry runs. FailCreate and
// FailDelete, when set, decide per call whether to return an error.
type Recorder struct {
	Defaults   Defaults
	FailCreate func(Descriptor, Pair) error
	FailDelete func(Pair) error
	Log        *zap.Logger

	mu      sync.Mutex
	creates []CreateCall
	deletes []DeleteCall
}

func (r *Recorder) Apply(ctx context.Context, desc Descriptor, pair Pair) error {
	desc = r.Defaults.Fill(desc)
	if r.FailCreate != nil {
		if err := r.FailCreate(desc, pair); err != nil {
			observe("create", "dry-run", err)
			return err
		}
	}
	r.mu.Lock()
	r.creates = append(r.creates, CreateCall{Resource: desc, Pair: pair})
	r.mu.Unlock()
	logging.OrNop(r.Log).Info("dry-run tag create", zap.String("resource", desc.ResourceID), zap.String("tag", pair.String()))
	observe("create", "dry-run", nil)
	return nil
}

func (r *Recorder) Remove(ctx context.Context, pair Pair, resources []Descriptor) error {
	if r.FailDelete != nil {
		if err := r.FailDelete(pair); err != nil {
			observe("delete", "dry-run", err)
			return err
		}
	}
	filled := make([]Descriptor, 0, len(resources))
	for _, d := range resources {
		filled = append(filled, r.Defaults.Fill(d))
	}
	r.mu.Lock()
	r.deletes = append(r.deletes, DeleteCall{Pair: pair, Resources: filled})
	r.mu.Unlock()
	logging.OrNop(r.Log).Info("dry-run tag delete", zap.String("tag", pair.String()), zap.Int("resources", len(filled)))
	observe("delete", "dry-run", nil)
	return nil
}

// Creates returns a copy of the recorded Apply calls.
func (r *Recorder) Creates() []CreateCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]CreateCall(nil), r.creates...)
}

// Deletes returns a copy of the recorded Remove calls.
func (r *Recorder) Deletes() []DeleteCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]DeleteCall(nil), r.deletes...)
}
