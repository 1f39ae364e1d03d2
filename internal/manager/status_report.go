package manager

import (
	"sync/atomic"

	"gpuserve/pkg/types"
)

// Status builds a detailed status response for /status.
func (m *Manager) Status() types.StatusResponse {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := m.now()
	inflight := len(m.genCh)
	waiting := len(m.queueCh) - inflight
	if waiting < 0 {
		waiting = 0
	}
	return types.StatusResponse{
		Service:            m.svc.Name(),
		State:              string(m.state),
		LastError:          m.err,
		QueueLen:           waiting,
		Inflight:           inflight,
		MaxQueueDepth:      cap(m.queueCh),
		LastUsed:           m.lastUsed.Unix(),
		IdleTimeoutSeconds: int64(m.idleTimeout.Seconds()),
		ColdStartMS:        m.coldStart.Milliseconds(),
		RequestsTotal:      atomic.LoadUint64(&m.requestsTotal),
		UptimeSeconds:      int64(now.Sub(m.startTime).Seconds()),
		ServerTimeUnix:     now.Unix(),
	}
}
