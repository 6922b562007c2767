package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "hireprep-server/pkg/errors"
	"hireprep-server/pkg/media"
)

func newGatewayFixture(t *testing.T, timeout time.Duration) (*MediaGateway, string) {
	t.Helper()

	gateway := NewMediaGateway(quietLogger(), timeout)
	srv := httptest.NewServer(http.HandlerFunc(gateway.ServeMedia))
	t.Cleanup(srv.Close)

	return gateway, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func acquireAsync(gateway *MediaGateway, sessionID string) chan acquireResult {
	done := make(chan acquireResult, 1)
	go func() {
		streams, err := gateway.Acquire(context.Background(), sessionID)
		done <- acquireResult{streams: streams, err: err}
	}()
	return done
}

func attachClient(t *testing.T, url, sessionID string, hello helloMessage) *websocket.Conn {
	t.Helper()

	var conn *websocket.Conn
	var err error
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn, _, err = websocket.DefaultDialer.Dial(url+"?session_id="+sessionID, nil)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("dial never succeeded: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Cleanup(func() { conn.Close() })

	payload, err := json.Marshal(hello)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))
	return conn
}

func TestMediaGatewayDeliversStreams(t *testing.T) {
	gateway, url := newGatewayFixture(t, 2*time.Second)

	done := acquireAsync(gateway, "s-1")
	// The client races Acquire registration; attachClient retries until the
	// gateway accepts the session.
	conn := attachClient(t, url, "s-1", helloMessage{Type: "start", Rate: 16000})

	result := <-done
	require.NoError(t, result.err)
	require.NotNil(t, result.streams)
	defer result.streams.Close()

	assert.Equal(t, 16000, result.streams.SampleRate)
	assert.Equal(t, 16000, result.streams.Audio.SampleRate())

	// Binary frames carry PCM16 voice bytes into the pipeline.
	pcm := media.PCM16Bytes([]int16{1000, -1000, 2000, -2000})
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, pcm))

	buf := make([]byte, len(pcm))
	_, err := io.ReadFull(result.streams.Voice, buf)
	require.NoError(t, err)
	assert.Equal(t, pcm, buf)

	// Text frames carry detector results.
	mesh := make(media.Landmarks, media.MinLandmarkCount)
	framePayload, err := json.Marshal(landmarkMessage{Type: "landmarks", Landmarks: mesh})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, framePayload))

	select {
	case frame := <-result.streams.Faces:
		assert.True(t, frame.Detected)
		assert.Len(t, frame.Landmarks, media.MinLandmarkCount)
	case <-time.After(2 * time.Second):
		t.Fatal("no face frame arrived")
	}

	// A no_face frame is still meaningful.
	noFace, err := json.Marshal(landmarkMessage{Type: "no_face"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, noFace))

	select {
	case frame := <-result.streams.Faces:
		assert.False(t, frame.Detected)
	case <-time.After(2 * time.Second):
		t.Fatal("no face frame arrived")
	}
}

func TestMediaGatewayDefaultRate(t *testing.T) {
	gateway, url := newGatewayFixture(t, 2*time.Second)

	done := acquireAsync(gateway, "s-1")
	attachClient(t, url, "s-1", helloMessage{Type: "start"})

	result := <-done
	require.NoError(t, result.err)
	defer result.streams.Close()

	assert.Equal(t, defaultCaptureRate, result.streams.SampleRate)
}

func TestMediaGatewayDenial(t *testing.T) {
	gateway, url := newGatewayFixture(t, 2*time.Second)

	done := acquireAsync(gateway, "s-1")
	attachClient(t, url, "s-1", helloMessage{Type: "deny", Reason: "NotAllowedError"})

	result := <-done
	require.Error(t, result.err)
	assert.True(t, apperrors.Is(result.err, apperrors.ErrMediaDenied))
	assert.Nil(t, result.streams)
}

func TestMediaGatewayTimeout(t *testing.T) {
	gateway := NewMediaGateway(quietLogger(), 50*time.Millisecond)

	_, err := gateway.Acquire(context.Background(), "s-1")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrMediaDenied))
}

func TestMediaGatewayRejectsUnknownSession(t *testing.T) {
	gateway, url := newGatewayFixture(t, time.Second)
	_ = gateway

	httpURL := "http" + strings.TrimPrefix(url, "ws")
	resp, err := http.Get(httpURL + "?session_id=nobody-waiting")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestMediaGatewayReclaimsStreamsAfterWaiterDeparts(t *testing.T) {
	gateway, url := newGatewayFixture(t, 150*time.Millisecond)

	done := acquireAsync(gateway, "s-1")

	// Dial while the waiter is still registered, but hold the hello back
	// until after the acquire deadline so the built streams arrive with
	// nobody left to read them.
	var conn *websocket.Conn
	var err error
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn, _, err = websocket.DefaultDialer.Dial(url+"?session_id=s-1", nil)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("dial never succeeded: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Cleanup(func() { conn.Close() })

	result := <-done
	require.Error(t, result.err)
	assert.True(t, apperrors.Is(result.err, apperrors.ErrMediaDenied))

	payload, err := json.Marshal(helloMessage{Type: "start", Rate: 16000})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))

	// The gateway closes the orphaned capture instead of leaking it; the
	// client sees the hangup.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}

func TestMediaGatewayStreamCloseDropsClient(t *testing.T) {
	gateway, url := newGatewayFixture(t, 2*time.Second)

	done := acquireAsync(gateway, "s-1")
	conn := attachClient(t, url, "s-1", helloMessage{Type: "start", Rate: 16000})

	result := <-done
	require.NoError(t, result.err)

	require.NoError(t, result.streams.Close())

	// The server side hangs up; client reads fail shortly after.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
