package scheduler

import (
	"time"

	"llmserve/pkg/types"
)

// Status builds the response for /status.
func (s *Scheduler) Status() types.StatusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()
	resp := types.StatusResponse{
		State:              string(s.state),
		Model:              s.info.Name,
		Backend:            s.info.Backend,
		QueueLen:           s.queue.Len(),
		CurrentRequest:     s.current,
		ProcessedTotal:     s.counters.processed,
		FailedTotal:        s.counters.failed,
		TokensTotal:        s.counters.tokens,
		DroppedTokensTotal: s.counters.dropped,
		LastError:          s.lastErr,
		UptimeSeconds:      int64(time.Since(s.startTime).Seconds()),
		ServerTimeUnix:     time.Now().Unix(),
	}
	if s.current != "" {
		resp.Inflight = 1
	}
	if s.started {
		resp.RestoredFrom = s.cfg.RestorePath
	}
	return resp
}
