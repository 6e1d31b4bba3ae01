package supervisor

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// CheckpointStore 按会话保存状态机每步流转后的状态快照.
type CheckpointStore interface {
	// Save 追加一条状态快照.
	Save(ctx context.Context, state *State) error

	// History 返回会话的全部快照（按保存顺序）.
	History(ctx context.Context, sessionID string) ([]*State, error)

	// Latest 返回会话最近一条快照；不存在返回 nil.
	Latest(ctx context.Context, sessionID string) (*State, error)
}

// MemoryCheckpointStore 进程内检查点存储.
type MemoryCheckpointStore struct {
	mu       sync.RWMutex
	sessions map[string][]*State
	logger   *zap.Logger
}

// NewMemoryCheckpointStore 创建内存检查点存储.
func NewMemoryCheckpointStore(logger *zap.Logger) *MemoryCheckpointStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryCheckpointStore{
		sessions: make(map[string][]*State),
		logger:   logger.With(zap.String("component", "checkpoint_store")),
	}
}

// Save 存一份深拷贝，后续状态变更不影响已存快照.
func (s *MemoryCheckpointStore) Save(ctx context.Context, state *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[state.SessionID] = append(s.sessions[state.SessionID], state.Clone())
	return nil
}

// History 返回会话全部快照.
func (s *MemoryCheckpointStore) History(ctx context.Context, sessionID string) ([]*State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshots := s.sessions[sessionID]
	out := make([]*State, len(snapshots))
	for i, snap := range snapshots {
		out[i] = snap.Clone()
	}
	return out, nil
}

// Latest 返回会话最近一条快照.
func (s *MemoryCheckpointStore) Latest(ctx context.Context, sessionID string) (*State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshots := s.sessions[sessionID]
	if len(snapshots) == 0 {
		return nil, nil
	}
	return snapshots[len(snapshots)-1].Clone(), nil
}
