package pipeline

import (
	"fmt"
	"time"

	"github.com/nickcecere/docvec/internal/store"
)

// transitions lists the allowed vectorization status changes.
var transitions = map[store.VectorizationStatus][]store.VectorizationStatus{
	store.VectorNotStarted: {store.VectorInProgress},
	store.VectorInProgress: {store.VectorSucceeded, store.VectorFailed},
	store.VectorFailed:     {store.VectorInProgress},
	store.VectorSucceeded:  {store.VectorInProgress},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to store.VectorizationStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// transition moves a record from one status to another with a
// compare-and-set on the previous status.
func (p *Pipeline) transition(id int64, from, to store.VectorizationStatus, at *time.Time) error {
	if !CanTransition(from, to) {
		return &Error{Op: "transition", FileID: id, Kind: KindInvalidTransition,
			Err: fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)}
	}

	ok, err := p.store.TransitionVectorization(id, from, to, at)
	if err != nil {
		return &Error{Op: "transition", FileID: id, Kind: KindRepository, Err: err}
	}
	if !ok {
		return &Error{Op: "transition", FileID: id, Kind: KindInvalidTransition,
			Err: fmt.Errorf("%w: status is no longer %s", ErrInvalidTransition, from)}
	}
	return nil
}
