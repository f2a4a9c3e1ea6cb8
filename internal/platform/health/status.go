package health

import (
	"log/slog"
	"sync"
)

// State 定义了系统健康状态的枚举类型
type State int

const (
	StateHealthy State = iota
	StateDegraded
	StateRecovering
)

func (s State) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateDegraded:
		return "degraded"
	case StateRecovering:
		return "recovering"
	}
	return "unknown"
}

// Status 线程安全地维护Redis的健康状态和最近一次看到的run_id
type Status struct {
	mu             sync.RWMutex
	currentState   State
	lastKnownRunID string
}

// NewStatus 创建一个初始为健康状态的 Status
func NewStatus() *Status {
	return &Status{currentState: StateHealthy}
}

// State 返回当前的健康状态
func (s *Status) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentState
}

// RunID 返回最近一次看到的Redis run_id
func (s *Status) RunID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastKnownRunID
}

// SetInitialRunID 在启动时记录初始的run_id
func (s *Status) SetInitialRunID(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastKnownRunID = runID
}

// Assess 根据一次检查结果推进状态，返回是否需要执行恢复操作
func (s *Status) Assess(connected bool, runID string) (needsRecovery bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	restarted := connected && s.lastKnownRunID != "" && s.lastKnownRunID != runID

	switch s.currentState {
	case StateHealthy:
		if !connected {
			s.currentState = StateDegraded
			slog.Warn("健康检查: Redis连接丢失，系统状态 -> [降级]")
		} else if restarted {
			s.currentState = StateRecovering
			needsRecovery = true
			slog.Warn("健康检查: 检测到Redis重启，系统状态 -> [恢复中]", "old_run_id", s.lastKnownRunID, "new_run_id", runID)
		}
	case StateDegraded:
		if connected {
			if restarted {
				s.currentState = StateRecovering
				needsRecovery = true
				slog.Warn("健康检查: Redis已恢复但检测到重启，系统状态 -> [恢复中]", "old_run_id", s.lastKnownRunID, "new_run_id", runID)
			} else {
				s.currentState = StateHealthy
				slog.Info("健康检查: Redis连接已恢复，系统状态 -> [健康]")
			}
		}
	case StateRecovering:
		if !connected {
			s.currentState = StateDegraded
			slog.Warn("健康检查: 恢复期间Redis连接再次丢失，系统状态 -> [降级]")
		} else {
			// 仍处于恢复中说明上次恢复没有成功
			needsRecovery = true
		}
	}

	if connected {
		s.lastKnownRunID = runID
	}
	return needsRecovery
}

// MarkRecoveryComplete 在一次恢复尝试之后调用。
// 恢复期间Redis再次重启时，这次恢复无效，保持 [恢复中]。
func (s *Status) MarkRecoveryComplete(success bool, runIDAfter string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.currentState != StateRecovering {
		return
	}
	if success && s.lastKnownRunID != runIDAfter {
		slog.Warn("健康检查: 恢复期间检测到Redis再次重启，保持 [恢复中]", "old_run_id", s.lastKnownRunID, "new_run_id", runIDAfter)
		s.lastKnownRunID = runIDAfter
		return
	}
	if success {
		s.currentState = StateHealthy
		slog.Info("健康检查: 恢复完成，系统状态 -> [健康]")
	} else {
		slog.Warn("健康检查: 恢复失败，系统状态保持 [恢复中] 以待重试")
	}
}
