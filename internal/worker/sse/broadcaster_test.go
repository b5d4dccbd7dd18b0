package sse

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcast_QueuesForClients(t *testing.T) {
	b := NewBroadcaster()
	c := b.AddClient()
	defer b.RemoveClient(c)

	b.Broadcast(map[string]string{"type": "swiped"})

	select {
	case msg := <-c.send:
		assert.Equal(t, "data: {\"type\":\"swiped\"}\n\n", string(msg))
	default:
		t.Fatal("expected a queued message")
	}
}

func TestBroadcast_DropsSlowClient(t *testing.T) {
	b := NewBroadcaster()
	c := b.AddClient()
	require.Equal(t, 1, b.ClientCount())

	for range clientBuffer + 1 {
		b.Broadcast("tick")
	}

	assert.Equal(t, 0, b.ClientCount())
	select {
	case <-c.done:
	default:
		t.Fatal("slow client should be closed")
	}

	// Removing twice is harmless.
	b.RemoveClient(c)
}

func TestCloseAll(t *testing.T) {
	b := NewBroadcaster()
	b.AddClient()
	b.AddClient()
	b.CloseAll()
	assert.Equal(t, 0, b.ClientCount())
}

func TestHandleSSE_StreamsAndKeepsAlive(t *testing.T) {
	b := NewBroadcaster()
	b.SetKeepAlive(20 * time.Millisecond)

	srv := httptest.NewServer(http.HandlerFunc(b.HandleSSE))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	lines := bufio.NewScanner(resp.Body)
	require.True(t, lines.Scan())
	assert.True(t, strings.HasPrefix(lines.Text(), `data: {"type":"connected"`))

	require.Eventually(t, func() bool { return b.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	b.Broadcast(map[string]int{"n": 1})

	var gotData, gotKeepAlive bool
	for lines.Scan() && !(gotData && gotKeepAlive) {
		switch line := lines.Text(); {
		case line == `data: {"n":1}`:
			gotData = true
		case strings.HasPrefix(line, ": keep-alive"):
			gotKeepAlive = true
		}
	}
	assert.True(t, gotData)
	assert.True(t, gotKeepAlive)
}
