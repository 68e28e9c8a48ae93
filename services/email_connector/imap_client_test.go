package email_connector

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/commshield/commstack/config"
)

func TestIMAPClientDisconnectedState(t *testing.T) {
	c := NewIMAPClient(&config.IMAPConfig{Host: "imap.test"}, newTestLogger())

	assert.False(t, c.IsConnected())
	assert.NoError(t, c.Disconnect())

	_, err := c.FetchSince(context.Background(), 0)
	assert.ErrorContains(t, err, "not connected")
}

// the health probe calls IsConnected from its own goroutine while the
// ingest loop disconnects; both must be safe to run concurrently
func TestIMAPClientConcurrentStateAccess(t *testing.T) {
	c := NewIMAPClient(&config.IMAPConfig{Host: "imap.test"}, newTestLogger())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				c.IsConnected()
				_ = c.Disconnect()
			}
		}()
	}
	wg.Wait()

	assert.False(t, c.IsConnected())
}
