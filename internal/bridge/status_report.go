package bridge

import (
	"time"

	"fpbridge/internal/fpdev"
	"fpbridge/pkg/types"
)

// Status builds a detailed status response for /status.
func (b *Bridge) Status() types.StatusResponse {
	b.mu.RLock()
	resp := types.StatusResponse{
		State:         "ready",
		DeviceOpen:    b.devOpen,
		Running:       b.running,
		LastError:     b.lastErr,
		MaxQueueDepth: b.cfg.MaxQueueDepth,
		UptimeSeconds: int64(time.Since(b.start).Seconds()),
	}
	b.mu.RUnlock()
	if b.closed.Load() {
		resp.State = "closed"
	}
	resp.Device = "none"
	if b.dev != nil {
		resp.Device = fpdev.NameOf(b.dev)
	}
	resp.Listening = b.Listening()
	resp.QueueLen = b.tasks.len()
	resp.Inflight = len(b.devSlot)
	resp.TasksTotal = b.tasksTotal.Load()
	resp.EventsDelivered = b.eventsDelivered.Load()
	resp.EventsDropped = b.eventsDropped.Load()
	resp.TasksDiscarded = b.tasksDiscarded.Load()
	resp.ServerTimeUnix = time.Now().Unix()
	return resp
}
