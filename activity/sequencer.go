package activity

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Sequencer runs a fixed list of activities one after another, once.
type Sequencer struct {
	mu         sync.Mutex
	activities []Activity
	done       bool
	logger     *zap.Logger
}

func NewSequencer(logger *zap.Logger, activities ...Activity) *Sequencer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sequencer{activities: activities, logger: logger}
}

func (s *Sequencer) Len() int {
	return len(s.activities)
}

func (s *Sequencer) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Run performs every non-nil activity in order. It stops at the first failure
// and leaves the sequencer not done. Once a run completes, further calls
// return nil without performing anything.
func (s *Sequencer) Run(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil
	}
	for index, act := range s.activities {
		if act == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return errors.Wrapf(err, "activity %d (%s) not started", index, Name(act))
		}
		s.logger.Debug("activity started", zap.Int("index", index), zap.String("activity", Name(act)))
		if err := act.Perform(ctx); err != nil {
			s.logger.Debug("activity failed", zap.Int("index", index), zap.String("activity", Name(act)), zap.Error(err))
			return errors.Wrapf(err, "activity %d (%s)", index, Name(act))
		}
		s.logger.Debug("activity finished", zap.Int("index", index), zap.String("activity", Name(act)))
	}
	s.done = true
	return nil
}
