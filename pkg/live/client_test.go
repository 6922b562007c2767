package live

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "hireprep-server/pkg/errors"
	"hireprep-server/pkg/media"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// fakeRealtimeServer accepts one session, acknowledges setup and hands the
// connection to the script function.
type fakeRealtimeServer struct {
	t      *testing.T
	script func(conn *websocket.Conn)

	mu    sync.Mutex
	setup setupMessage
}

func newFakeRealtimeServer(t *testing.T, script func(conn *websocket.Conn)) (*fakeRealtimeServer, string) {
	t.Helper()
	fake := &fakeRealtimeServer{t: t, script: script}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		var setup setupMessage
		require.NoError(t, conn.ReadJSON(&setup))
		fake.mu.Lock()
		fake.setup = setup
		fake.mu.Unlock()

		require.NoError(t, conn.WriteJSON(map[string]interface{}{"setupComplete": map[string]interface{}{}}))

		if fake.script != nil {
			fake.script(conn)
		} else {
			// Hold the connection open until the client disconnects.
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(srv.Close)

	return fake, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func (f *fakeRealtimeServer) setupPayload() setupPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.setup.Setup
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testSessionConfig(url string) SessionConfig {
	return SessionConfig{
		URL:          url,
		Model:        "models/interviewer-realtime",
		Voice:        "Aoede",
		Instructions: "You are Sarah, an expert AI Interview Coach.",
		Tools:        InterviewTools(),
	}
}

func TestClientConnectSendsSetup(t *testing.T) {
	fake, url := newFakeRealtimeServer(t, nil)

	c := NewClient(quietLogger(), Events{})
	require.NoError(t, c.Connect(context.Background(), testSessionConfig(url)))
	defer c.Disconnect()

	setup := fake.setupPayload()
	assert.Equal(t, "models/interviewer-realtime", setup.Model)
	require.NotNil(t, setup.GenerationConfig)
	assert.Equal(t, []string{"AUDIO"}, setup.GenerationConfig.ResponseModalities)
	assert.Equal(t, "Aoede", setup.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName)
	require.NotNil(t, setup.SystemInstruction)
	assert.Contains(t, setup.SystemInstruction.Parts[0].Text, "Interview Coach")

	require.Len(t, setup.Tools, 1)
	names := []string{}
	for _, decl := range setup.Tools[0].FunctionDeclarations {
		names = append(names, decl.Name)
	}
	assert.ElementsMatch(t, []string{ToolSaveAssessment, ToolSetAvatarBehavior}, names)
}

func TestClientConnectIdempotent(t *testing.T) {
	_, url := newFakeRealtimeServer(t, nil)

	c := NewClient(quietLogger(), Events{})
	require.NoError(t, c.Connect(context.Background(), testSessionConfig(url)))
	defer c.Disconnect()

	require.NoError(t, c.Connect(context.Background(), testSessionConfig(url)))
}

func TestClientDispatchesTranscriptAndSpeaking(t *testing.T) {
	audioChunk := base64.StdEncoding.EncodeToString(media.PCM16Bytes([]int16{100, -100, 200}))

	_, url := newFakeRealtimeServer(t, func(conn *websocket.Conn) {
		conn.WriteJSON(map[string]interface{}{
			"serverContent": map[string]interface{}{
				"modelTurn": map[string]interface{}{
					"parts": []map[string]interface{}{
						{"inlineData": map[string]interface{}{"mimeType": "audio/pcm;rate=24000", "data": audioChunk}},
						{"text": "Tell me about yourself."},
					},
				},
			},
		})
		conn.WriteJSON(map[string]interface{}{
			"serverContent": map[string]interface{}{"turnComplete": true},
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	var mu sync.Mutex
	var transcripts []string
	var speaking []bool
	var audioBytes int
	finals := 0

	c := NewClient(quietLogger(), Events{
		OnAudio: func(pcm []byte) {
			mu.Lock()
			audioBytes += len(pcm)
			mu.Unlock()
		},
		OnTranscript: func(text string, isUser, isFinal bool) {
			mu.Lock()
			defer mu.Unlock()
			if isFinal {
				finals++
				return
			}
			transcripts = append(transcripts, text)
		},
		OnSpeakingChanged: func(s bool) {
			mu.Lock()
			speaking = append(speaking, s)
			mu.Unlock()
		},
	})
	require.NoError(t, c.Connect(context.Background(), testSessionConfig(url)))
	defer c.Disconnect()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return finals == 1
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"Tell me about yourself."}, transcripts)
	assert.Equal(t, 6, audioBytes)
	assert.Equal(t, []bool{true, false}, speaking)
}

func TestClientAnswersToolCalls(t *testing.T) {
	responses := make(chan toolResponseMessage, 1)

	_, url := newFakeRealtimeServer(t, func(conn *websocket.Conn) {
		conn.WriteJSON(map[string]interface{}{
			"toolCall": map[string]interface{}{
				"functionCalls": []map[string]interface{}{
					{"id": "call-1", "name": ToolSaveAssessment, "args": map[string]interface{}{"question_topic": "Behavioral"}},
				},
			},
		})

		var resp toolResponseMessage
		if err := conn.ReadJSON(&resp); err == nil {
			responses <- resp
		}
	})

	c := NewClient(quietLogger(), Events{
		OnToolCall: func(name string, args json.RawMessage) (map[string]interface{}, error) {
			assert.Equal(t, ToolSaveAssessment, name)
			var parsed map[string]interface{}
			require.NoError(t, json.Unmarshal(args, &parsed))
			assert.Equal(t, "Behavioral", parsed["question_topic"])
			return map[string]interface{}{"result": "assessment_saved"}, nil
		},
	})
	require.NoError(t, c.Connect(context.Background(), testSessionConfig(url)))
	defer c.Disconnect()

	select {
	case resp := <-responses:
		require.Len(t, resp.ToolResponse.FunctionResponses, 1)
		fr := resp.ToolResponse.FunctionResponses[0]
		assert.Equal(t, "call-1", fr.ID)
		assert.Equal(t, ToolSaveAssessment, fr.Name)
		assert.Equal(t, "assessment_saved", fr.Response["result"])
	case <-time.After(2 * time.Second):
		t.Fatal("no tool response received")
	}
}

func TestClientSendControlMessage(t *testing.T) {
	inputs := make(chan realtimeInputMessage, 1)

	_, url := newFakeRealtimeServer(t, func(conn *websocket.Conn) {
		var msg realtimeInputMessage
		if err := conn.ReadJSON(&msg); err == nil {
			inputs <- msg
		}
	})

	c := NewClient(quietLogger(), Events{})
	require.NoError(t, c.Connect(context.Background(), testSessionConfig(url)))
	defer c.Disconnect()

	require.NoError(t, c.SendControlMessage("Wrap up the interview now."))

	select {
	case msg := <-inputs:
		require.Len(t, msg.RealtimeInput.Content, 1)
		assert.Equal(t, "[SYSTEM_INSTRUCTION]: Wrap up the interview now.", msg.RealtimeInput.Content[0].Text)
	case <-time.After(2 * time.Second):
		t.Fatal("no control message received")
	}
}

func TestClientStreamAudioGatesSilence(t *testing.T) {
	chunks := make(chan realtimeInputMessage, 8)

	_, url := newFakeRealtimeServer(t, func(conn *websocket.Conn) {
		for {
			var msg realtimeInputMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			chunks <- msg
		}
	})

	c := NewClient(quietLogger(), Events{})
	require.NoError(t, c.Connect(context.Background(), testSessionConfig(url)))
	defer c.Disconnect()

	// One loud 4096-frame chunk at 48kHz: a 440Hz tone at half amplitude.
	loud := make([]float64, inputChunkFrames)
	for i := range loud {
		loud[i] = 0.5 * math.Sin(2*math.Pi*440*float64(i)/48000)
	}
	source := bytes.NewReader(media.PCM16Bytes(media.FloatToPCM16(loud)))

	require.NoError(t, c.StreamAudio(context.Background(), source, 48000))

	select {
	case msg := <-chunks:
		require.Len(t, msg.RealtimeInput.MediaChunks, 1)
		chunk := msg.RealtimeInput.MediaChunks[0]
		assert.Equal(t, "audio/pcm;rate=16000", chunk.MimeType)

		pcm, err := base64.StdEncoding.DecodeString(chunk.Data)
		require.NoError(t, err)
		// 4096 frames at 48kHz downsample to 1365 frames at 16kHz.
		assert.Equal(t, 1365*2, len(pcm))

		samples := media.PCM16FromBytes(pcm)
		assert.Greater(t, media.RMSFloat(samples), 0.1)
	case <-time.After(2 * time.Second):
		t.Fatal("no audio chunk received")
	}
}

func TestClientStreamAudioSendsSilenceFramesWhenQuiet(t *testing.T) {
	chunks := make(chan realtimeInputMessage, 8)

	_, url := newFakeRealtimeServer(t, func(conn *websocket.Conn) {
		for {
			var msg realtimeInputMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			chunks <- msg
		}
	})

	c := NewClient(quietLogger(), Events{})
	require.NoError(t, c.Connect(context.Background(), testSessionConfig(url)))
	defer c.Disconnect()

	quiet := make([]byte, inputChunkFrames*2)
	require.NoError(t, c.StreamAudio(context.Background(), bytes.NewReader(quiet), 48000))

	select {
	case msg := <-chunks:
		require.Len(t, msg.RealtimeInput.MediaChunks, 1)
		pcm, err := base64.StdEncoding.DecodeString(msg.RealtimeInput.MediaChunks[0].Data)
		require.NoError(t, err)
		assert.Equal(t, 1365*2, len(pcm))
		for _, b := range pcm {
			assert.Zero(t, b)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no silence frame received")
	}
}

func TestClientDisconnectIdempotent(t *testing.T) {
	closed := make(chan error, 1)

	_, url := newFakeRealtimeServer(t, nil)

	c := NewClient(quietLogger(), Events{
		OnClose: func(err error) { closed <- err },
	})
	require.NoError(t, c.Connect(context.Background(), testSessionConfig(url)))

	c.Disconnect()
	c.Disconnect()

	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("OnClose never fired")
	}

	assert.ErrorIs(t, c.SendControlMessage("anything"), apperrors.ErrVoiceLinkFailed)
}
