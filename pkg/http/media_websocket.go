package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	apperrors "hireprep-server/pkg/errors"
	"hireprep-server/pkg/media"
)

const defaultCaptureRate = 48000

// helloMessage is the first text frame a capture client sends. A deny type
// reports that the browser refused microphone or camera access.
type helloMessage struct {
	Type   string `json:"type"` // "start" or "deny"
	Rate   int    `json:"rate,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// landmarkMessage is a text frame carrying one detector result.
type landmarkMessage struct {
	Type      string          `json:"type"` // "landmarks" or "no_face"
	Landmarks media.Landmarks `json:"landmarks,omitempty"`
}

type acquireResult struct {
	streams *media.Streams
	err     error
}

// mediaWaiter is one Acquire call waiting for its capture client. gone is
// closed when the waiter gives up, so a late-attaching client can reclaim
// streams nobody will ever read.
type mediaWaiter struct {
	result chan acquireResult
	gone   chan struct{}
}

// MediaGateway bridges browser capture to the analysis pipeline. A session
// orchestrator blocks in Acquire until the client attaches its websocket at
// /ws/media and streams PCM audio (binary frames) and landmark results
// (text frames).
type MediaGateway struct {
	logger  *logrus.Entry
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]*mediaWaiter
}

// NewMediaGateway creates the media ingest gateway. timeout bounds how long
// Acquire waits for a client to attach.
func NewMediaGateway(logger *logrus.Logger, timeout time.Duration) *MediaGateway {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &MediaGateway{
		logger:  logger.WithField("component", "media_gateway"),
		timeout: timeout,
		pending: make(map[string]*mediaWaiter),
	}
}

// Acquire blocks until the capture client for sessionID attaches, the
// client reports denial, or the timeout elapses. Denial and timeout both
// surface as ErrMediaDenied.
func (g *MediaGateway) Acquire(ctx context.Context, sessionID string) (*media.Streams, error) {
	waiter := &mediaWaiter{
		result: make(chan acquireResult, 1),
		gone:   make(chan struct{}),
	}

	g.mu.Lock()
	if _, exists := g.pending[sessionID]; exists {
		g.mu.Unlock()
		return nil, apperrors.Wrap(apperrors.ErrMediaDenied, "capture already pending").
			WithField("session_id", sessionID)
	}
	g.pending[sessionID] = waiter
	g.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	select {
	case result := <-waiter.result:
		return result.streams, result.err
	case <-ctx.Done():
		g.mu.Lock()
		delete(g.pending, sessionID)
		g.mu.Unlock()
		close(waiter.gone)
		// A client that attached just before the deadline may have parked
		// its streams in the buffer; reclaim them.
		select {
		case result := <-waiter.result:
			if result.streams != nil {
				result.streams.Close()
			}
		default:
		}
		return nil, apperrors.Wrap(apperrors.ErrMediaDenied, "no capture client attached").
			WithField("session_id", sessionID)
	}
}

// ServeMedia handles the capture client websocket. The client attaches to
// an Acquire that is already waiting, identified by the session_id query
// parameter.
func (g *MediaGateway) ServeMedia(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")

	g.mu.Lock()
	waiter, ok := g.pending[sessionID]
	delete(g.pending, sessionID)
	g.mu.Unlock()

	if !ok {
		g.logger.WithField("session_id", sessionID).Warn("Capture client attached with no waiting session")
		writeError(w, http.StatusConflict, "No session waiting for media.")
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.WithError(err).Error("Failed to upgrade media websocket")
		waiter.result <- acquireResult{err: apperrors.Wrap(apperrors.ErrMediaDenied, "websocket upgrade failed")}
		return
	}

	hello, err := readHello(conn)
	if err != nil {
		conn.Close()
		waiter.result <- acquireResult{err: apperrors.Wrap(apperrors.ErrMediaDenied, "capture handshake failed")}
		return
	}
	if hello.Type == "deny" {
		g.logger.WithFields(logrus.Fields{
			"session_id": sessionID,
			"reason":     hello.Reason,
		}).Warn("Capture client denied media access")
		conn.Close()
		waiter.result <- acquireResult{err: apperrors.Wrap(apperrors.ErrMediaDenied, "client denied capture").
			WithField("reason", hello.Reason)}
		return
	}

	rate := hello.Rate
	if rate <= 0 {
		rate = defaultCaptureRate
	}

	analyser := media.NewPCMAnalyser(rate)
	voiceReader, voiceWriter := io.Pipe()
	faces := make(chan media.FaceFrame, 8)

	streams := media.NewStreams(analyser, voiceReader, faces, rate, func() {
		conn.Close()
	})

	g.logger.WithFields(logrus.Fields{
		"session_id":  sessionID,
		"sample_rate": rate,
	}).Info("Capture client attached")

	waiter.result <- acquireResult{streams: streams}

	select {
	case <-waiter.gone:
		// The session gave up while we were attaching. Whichever side
		// drains the buffer first closes the streams; the other finds it
		// empty.
		select {
		case result := <-waiter.result:
			if result.streams != nil {
				result.streams.Close()
			}
		default:
		}
		return
	default:
	}

	go g.readLoop(conn, analyser, voiceWriter, faces)
}

func readHello(conn *websocket.Conn) (*helloMessage, error) {
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	defer conn.SetReadDeadline(time.Time{})

	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	var hello helloMessage
	if err := json.Unmarshal(data, &hello); err != nil {
		return nil, err
	}
	return &hello, nil
}

// readLoop pumps client frames into the pipeline until the connection
// drops. Binary frames are PCM16 audio; text frames are detector results.
func (g *MediaGateway) readLoop(conn *websocket.Conn, analyser *media.PCMAnalyser, voice *io.PipeWriter, faces chan media.FaceFrame) {
	defer func() {
		voice.Close()
		close(faces)
		conn.Close()
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			analyser.Write(media.PCM16FromBytes(data))
			if _, err := voice.Write(data); err != nil {
				return
			}

		case websocket.TextMessage:
			var frame landmarkMessage
			if err := json.Unmarshal(data, &frame); err != nil {
				g.logger.WithError(err).Debug("Dropping malformed landmark frame")
				continue
			}
			face := media.FaceFrame{At: time.Now()}
			if frame.Type == "landmarks" {
				face.Landmarks = frame.Landmarks
				face.Detected = true
			}
			// Detector frames are lossy; drop rather than stall the ingest.
			select {
			case faces <- face:
			default:
			}
		}
	}
}
