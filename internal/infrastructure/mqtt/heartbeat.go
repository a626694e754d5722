package mqtt

import (
	"fmt"
	"time"
)

// heartbeatTimestampLayout matches the timestamp format used on the wire.
const heartbeatTimestampLayout = "2006-01-02 15:04:05.000"

// StartHeartbeat begins publishing periodic heartbeat messages on the node's
// status topic. A non-positive interval disables the heartbeat and returns
// immediately.
//
// The heartbeat only publishes; it never touches controller state. Failures
// while disconnected are skipped silently — the broker LWT covers prolonged
// outages.
//
// Calling StartHeartbeat while a heartbeat is already running restarts it
// with the new interval.
func (c *Client) StartHeartbeat(interval time.Duration) {
	if interval <= 0 {
		return
	}

	c.StopHeartbeat()

	c.hbMu.Lock()
	stop := make(chan struct{})
	done := make(chan struct{})
	c.hbStop = stop
	c.hbDone = done
	c.hbMu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if !c.IsConnected() {
					continue
				}
				c.sendHeartbeat()
			}
		}
	}()
}

// StopHeartbeat stops the heartbeat goroutine if one is running.
// Safe to call multiple times and when no heartbeat was started.
func (c *Client) StopHeartbeat() {
	c.hbMu.Lock()
	stop := c.hbStop
	done := c.hbDone
	c.hbStop = nil
	c.hbDone = nil
	c.hbMu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// sendHeartbeat publishes one heartbeat record to the status topic.
func (c *Client) sendHeartbeat() {
	payload := fmt.Sprintf(
		`{"clientID":"%s","timestamp":"%s","state":"READY"}`,
		c.nodeID,
		time.Now().UTC().Format(heartbeatTimestampLayout),
	)

	if err := c.PublishJSON(Topics{}.Status(c.nodeID), []byte(payload)); err != nil {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("heartbeat publish failed", "error", err)
		}
	}
}
