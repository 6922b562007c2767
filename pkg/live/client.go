package live

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	apperrors "hireprep-server/pkg/errors"
	"hireprep-server/pkg/media"
	"hireprep-server/pkg/metrics"
)

// Input gating. Audio below the noise floor is replaced with silence frames
// so the model never hears keyboard rattle as speech, while the link stays
// warm between answers.
const (
	vadNoiseFloor    = 0.01
	vadHangover      = 1500 * time.Millisecond
	inputChunkFrames = 4096
)

// Events are the session callbacks. Nil members are skipped. Callbacks fire
// on the client's receive goroutine and must not block on client methods.
type Events struct {
	OnOpen  func()
	OnClose func(err error)
	OnError func(err error)

	// OnAudio receives raw PCM16 synthesized voice at OutputSampleRate.
	OnAudio func(pcm []byte)

	// OnTranscript receives model-side text fragments.
	OnTranscript func(text string, isUser, isFinal bool)

	// OnToolCall handles a function invocation and returns the response
	// payload. A nil payload with nil error acknowledges with a default.
	OnToolCall func(name string, args json.RawMessage) (map[string]interface{}, error)

	// OnSpeakingChanged fires on transitions of the model's voice output.
	OnSpeakingChanged func(speaking bool)
}

// SessionConfig describes one realtime interview session.
type SessionConfig struct {
	URL          string
	APIKey       string
	Model        string
	Voice        string
	Instructions string
	Tools        []ToolDeclaration
}

// Client is a realtime voice session over a websocket. One client drives one
// interview; construct a fresh client per session.
type Client struct {
	logger *logrus.Entry
	events Events

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	closed    bool

	// Model output speaking state, derived from audio parts vs turn ends.
	modelSpeaking bool

	// Microphone gating state.
	vadSpeaking  bool
	lastSpeechAt time.Time

	done chan struct{}
}

// NewClient creates a disconnected client with the given callbacks.
func NewClient(logger *logrus.Logger, events Events) *Client {
	return &Client{
		logger: logger.WithField("component", "live"),
		events: events,
		done:   make(chan struct{}),
	}
}

// Connect dials the realtime endpoint, performs session setup and starts the
// receive loop. It returns once the model acknowledges the setup.
func (c *Client) Connect(ctx context.Context, cfg SessionConfig) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return apperrors.ErrVoiceLinkFailed
	}
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	url := cfg.URL
	if cfg.APIKey != "" {
		url = fmt.Sprintf("%s?key=%s", cfg.URL, cfg.APIKey)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, http.Header{})
	if err != nil {
		c.logger.WithError(err).Error("Failed to dial realtime endpoint")
		return apperrors.Wrap(err, "realtime dial failed")
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	setup := setupMessage{
		Setup: setupPayload{
			Model: cfg.Model,
			GenerationConfig: &generationConfig{
				ResponseModalities: []string{"AUDIO"},
				SpeechConfig: &speechConfig{
					VoiceConfig: voiceConfig{
						PrebuiltVoiceConfig: prebuiltVoice{VoiceName: cfg.Voice},
					},
				},
			},
			Tools: []toolsPayload{{FunctionDeclarations: cfg.Tools}},
		},
	}
	if cfg.Instructions != "" {
		setup.Setup.SystemInstruction = &contentPayload{
			Parts: []contentPart{{Text: cfg.Instructions}},
		}
	}

	if err := conn.WriteJSON(setup); err != nil {
		conn.Close()
		c.logger.WithError(err).Error("Failed to send session setup")
		return apperrors.Wrap(err, "session setup failed")
	}

	// The model acknowledges the setup before any other traffic.
	conn.SetReadDeadline(time.Now().Add(15 * time.Second))
	var ack serverMessage
	if err := conn.ReadJSON(&ack); err != nil || ack.SetupComplete == nil {
		conn.Close()
		if err == nil {
			err = fmt.Errorf("unexpected first event before setup ack")
		}
		c.logger.WithError(err).Error("Session setup was not acknowledged")
		return apperrors.Wrap(err, "session setup not acknowledged")
	}
	conn.SetReadDeadline(time.Time{})

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	go c.receiveLoop(conn)

	c.logger.WithFields(logrus.Fields{
		"model": cfg.Model,
		"voice": cfg.Voice,
	}).Info("Realtime voice session established")

	if c.events.OnOpen != nil {
		c.events.OnOpen()
	}
	return nil
}

// receiveLoop reads server events until the connection drops or Disconnect
// closes it.
func (c *Client) receiveLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			wasClosed := c.closed
			c.connected = false
			c.mu.Unlock()

			if !wasClosed {
				c.logger.WithError(err).Warn("Realtime connection lost")
			}
			c.setModelSpeaking(false)
			if c.events.OnClose != nil {
				if wasClosed {
					c.events.OnClose(nil)
				} else {
					c.events.OnClose(err)
				}
			}
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.WithError(err).Debug("Discarding malformed server event")
			continue
		}

		c.handleServerMessage(&msg)
	}
}

func (c *Client) handleServerMessage(msg *serverMessage) {
	switch {
	case msg.ServerContent != nil:
		c.handleServerContent(msg.ServerContent)
	case msg.ToolCall != nil:
		metrics.LiveEventsReceived.WithLabelValues("tool_call").Inc()
		c.handleToolCall(msg.ToolCall)
	}
}

func (c *Client) handleServerContent(content *serverContent) {
	if content.ModelTurn != nil {
		for _, part := range content.ModelTurn.Parts {
			if part.InlineData != nil && part.InlineData.Data != "" {
				pcm, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
				if err != nil || len(pcm) == 0 {
					continue
				}
				metrics.LiveEventsReceived.WithLabelValues("audio").Inc()
				c.setModelSpeaking(true)
				if c.events.OnAudio != nil {
					c.events.OnAudio(pcm)
				}
			}
			if part.Text != "" {
				metrics.LiveEventsReceived.WithLabelValues("transcript").Inc()
				if c.events.OnTranscript != nil {
					c.events.OnTranscript(part.Text, false, false)
				}
			}
		}
	}

	if content.TurnComplete || content.Interrupted {
		metrics.LiveEventsReceived.WithLabelValues("turn_end").Inc()
		c.setModelSpeaking(false)
		if content.TurnComplete && c.events.OnTranscript != nil {
			c.events.OnTranscript("", false, true)
		}
	}
}

func (c *Client) handleToolCall(call *toolCall) {
	for _, fn := range call.FunctionCalls {
		c.logger.WithField("tool", fn.Name).Debug("Tool call received")

		var response map[string]interface{}
		if c.events.OnToolCall != nil {
			result, err := c.events.OnToolCall(fn.Name, fn.Args)
			if err != nil {
				c.logger.WithError(err).WithField("tool", fn.Name).Error("Tool execution failed")
				if c.events.OnError != nil {
					c.events.OnError(err)
				}
				continue
			}
			response = result
		}
		if response == nil {
			response = map[string]interface{}{"result": "ok"}
		}

		if err := c.writeJSON(toolResponseMessage{
			ToolResponse: toolResponse{
				FunctionResponses: []functionResponse{{
					ID:       fn.ID,
					Name:     fn.Name,
					Response: response,
				}},
			},
		}); err != nil {
			c.logger.WithError(err).WithField("tool", fn.Name).Error("Failed to send tool response")
		}
	}
}

func (c *Client) setModelSpeaking(speaking bool) {
	c.mu.Lock()
	changed := c.modelSpeaking != speaking
	c.modelSpeaking = speaking
	c.mu.Unlock()

	if changed && c.events.OnSpeakingChanged != nil {
		c.events.OnSpeakingChanged(speaking)
	}
}

// writeJSON serializes one client event. The websocket permits one concurrent
// writer, so all sends funnel through here under the lock.
func (c *Client) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || !c.connected {
		return apperrors.ErrVoiceLinkFailed
	}
	return c.conn.WriteJSON(v)
}

// StreamAudio pumps PCM16 little-endian microphone audio from r into the
// session until EOF or context cancel. captureRate is the rate of the
// incoming audio; chunks are gated by the noise floor, downsampled to
// InputSampleRate and base64 encoded. Gated-out chunks are replaced by
// silence frames of equal duration.
func (c *Client) StreamAudio(ctx context.Context, r io.Reader, captureRate int) error {
	buf := make([]byte, inputChunkFrames*2)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return nil
		default:
		}

		n, err := io.ReadFull(r, buf)
		if n > 0 {
			if sendErr := c.sendChunk(buf[:n], captureRate); sendErr != nil {
				return sendErr
			}
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (c *Client) sendChunk(chunk []byte, captureRate int) error {
	samples := media.PCM16FromBytes(chunk)
	rms := media.RMSFloat(samples)
	now := time.Now()

	c.mu.Lock()
	if rms > vadNoiseFloor {
		c.vadSpeaking = true
		c.lastSpeechAt = now
	}
	if now.Sub(c.lastSpeechAt) > vadHangover {
		c.vadSpeaking = false
	}
	speaking := c.vadSpeaking
	c.mu.Unlock()

	var pcm []int16
	if speaking {
		pcm = media.DownsamplePCM16(samples, captureRate, InputSampleRate)
	} else {
		pcm = make([]int16, len(samples)*InputSampleRate/captureRate)
	}

	metrics.LiveAudioChunksSent.Inc()
	return c.writeJSON(realtimeInputMessage{
		RealtimeInput: realtimeInput{
			MediaChunks: []inlineData{{
				MimeType: fmt.Sprintf("audio/pcm;rate=%d", InputSampleRate),
				Data:     base64.StdEncoding.EncodeToString(media.PCM16Bytes(pcm)),
			}},
		},
	})
}

// SendControlMessage injects hidden steering text the candidate never hears.
func (c *Client) SendControlMessage(text string) error {
	return c.writeJSON(realtimeInputMessage{
		RealtimeInput: realtimeInput{
			Content: []contentPart{{Text: "[SYSTEM_INSTRUCTION]: " + text}},
		},
	})
}

// Disconnect tears the session down. Safe to call more than once and before
// Connect.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.connected = false
	close(c.done)
	c.mu.Unlock()

	if conn != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
			time.Now().Add(time.Second))
		conn.Close()
	}

	c.logger.Info("Realtime voice session closed")
}
