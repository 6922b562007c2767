package session

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"hireprep-server/pkg/analysis"
	"hireprep-server/pkg/config"
	apperrors "hireprep-server/pkg/errors"
	"hireprep-server/pkg/live"
	"hireprep-server/pkg/media"
	"hireprep-server/pkg/metrics"
	"hireprep-server/pkg/stt"
)

// wrapUpMessage steers the model into its closing statement once the question
// plan is exhausted.
const wrapUpMessage = "We have reached the target number of questions. Please give a brief closing statement and say goodbye."

// defaultStopDelay leaves room for the model to finish its goodbye before the
// link is cut.
const defaultStopDelay = 6 * time.Second

// VoiceClient is the realtime AI link as the orchestrator uses it.
type VoiceClient interface {
	Connect(ctx context.Context, cfg live.SessionConfig) error
	StreamAudio(ctx context.Context, r io.Reader, captureRate int) error
	SendControlMessage(text string) error
	Disconnect()
}

// AssessmentPublisher forwards finalized assessments to external consumers.
type AssessmentPublisher interface {
	PublishAssessment(sessionID string, qa QuestionAnalysis) error
}

// Analyzer is the behavioral analysis pipeline as the orchestrator uses it.
type Analyzer interface {
	InitAudio(an media.Analyser) error
	InitVideo(det analysis.Detector) error
	Snapshot() analysis.Metrics
	Stop()
}

// Deps are the orchestrator's collaborators. Media and Analysis are required;
// STT and OnEnd are optional.
type Deps struct {
	Logger   *logrus.Logger
	Config   *config.Configuration
	Media    media.Acquirer
	Analysis Analyzer

	// NewAnalyzer builds a fresh analysis pipeline per session. Manager.Create
	// uses it to populate Analysis; orchestrators built directly may set
	// Analysis themselves instead.
	NewAnalyzer func() Analyzer

	// STT drives the verbatim answer transcript. When nil the model's answer
	// summaries stand in for the candidate's words.
	STT *stt.ProviderManager

	// NewVoiceClient builds the realtime client around the orchestrator's
	// event handlers.
	NewVoiceClient func(events live.Events) VoiceClient

	// OnEnd receives the finished session record after StopSession.
	OnEnd func(record *InterviewSession)

	// Publisher receives each finalized assessment; nil disables event
	// publishing.
	Publisher AssessmentPublisher

	Clock     func() time.Time
	StopDelay time.Duration
}

func (d *Deps) applyDefaults() {
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.StopDelay <= 0 {
		d.StopDelay = defaultStopDelay
	}
}

// Orchestrator runs one interview end to end: media acquisition, analysis,
// transcription, the realtime AI link and per-question assessment.
type Orchestrator struct {
	id     string
	userID string
	logger *logrus.Entry
	deps   Deps

	client  VoiceClient
	answers *stt.TurnAccumulator

	mu        sync.Mutex
	state     State
	aiBuffer  strings.Builder
	listeners map[int]func(State)
	nextSub   int
	streams   *media.Streams
	startedAt time.Time
	stopTimer *time.Timer
	started   bool
	stopped   bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewOrchestrator creates an orchestrator for one configured interview.
func NewOrchestrator(id string, cfg InterviewConfig, deps Deps) *Orchestrator {
	deps.applyDefaults()
	totalQuestions, _ := QuestionPlan(cfg.Duration)
	ctx, cancel := context.WithCancel(context.Background())

	o := &Orchestrator{
		id:      id,
		logger:  deps.Logger.WithField("component", "orchestrator").WithField("session_id", id),
		deps:    deps,
		answers: stt.NewTurnAccumulator(),
		state: State{
			ConnectionState:     StateDisconnected,
			Config:              cfg,
			TotalQuestions:      totalQuestions,
			CurrentQuestionText: "Waiting for interviewer...",
			AvatarBehavior: BehaviorState{
				FacialExpression: "neutral",
				HeadMovement:     "still",
				EyeBehavior:      "maintain_gaze",
			},
		},
		listeners: make(map[int]func(State)),
		ctx:       ctx,
		cancel:    cancel,
	}

	o.client = deps.NewVoiceClient(live.Events{
		OnOpen: func() {
			o.updateState(func(s *State) { s.ConnectionState = StateConnected })
		},
		OnClose: func(err error) {
			o.updateState(func(s *State) {
				if s.ConnectionState != StateError {
					s.ConnectionState = StateDisconnected
				}
			})
		},
		OnError: func(err error) {
			o.logger.WithError(err).Error("Realtime session error")
			o.updateState(func(s *State) { s.ConnectionState = StateError })
		},
		OnTranscript:      o.onTranscript,
		OnToolCall:        o.onToolCall,
		OnSpeakingChanged: o.onSpeakingChanged,
	})

	return o
}

// ID returns the session identifier.
func (o *Orchestrator) ID() string { return o.id }

// Subscribe registers a state listener. The listener fires immediately with
// the current state; the returned function removes it.
func (o *Orchestrator) Subscribe(fn func(State)) func() {
	o.mu.Lock()
	id := o.nextSub
	o.nextSub++
	o.listeners[id] = fn
	current := o.state
	o.mu.Unlock()

	fn(current)

	return func() {
		o.mu.Lock()
		delete(o.listeners, id)
		o.mu.Unlock()
	}
}

// State returns the current observable state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// StartSession acquires the media streams and brings the whole pipeline up.
// Media acquisition failure is fatal: it is a denied permission or a dead
// device, and retrying cannot fix either.
func (o *Orchestrator) StartSession(ctx context.Context) error {
	o.mu.Lock()
	if o.started || o.stopped {
		o.mu.Unlock()
		return apperrors.ErrSessionAlreadyExist
	}
	o.started = true
	o.startedAt = o.deps.Clock()
	o.mu.Unlock()

	o.updateState(func(s *State) { s.ConnectionState = StateConnecting })

	streams, err := o.deps.Media.Acquire(ctx, o.id)
	if err != nil {
		o.logger.WithError(err).Error("Media acquisition failed")
		o.updateState(func(s *State) { s.ConnectionState = StateError })
		return apperrors.Wrap(err, "media acquisition failed")
	}

	o.mu.Lock()
	o.streams = streams
	o.mu.Unlock()

	if err := o.deps.Analysis.InitAudio(streams.Audio); err != nil {
		o.updateState(func(s *State) { s.ConnectionState = StateError })
		streams.Close()
		return apperrors.Wrap(err, "audio analysis start failed")
	}
	if streams.Faces != nil {
		if err := o.deps.Analysis.InitVideo(analysis.NewChannelDetector(streams.Faces)); err != nil {
			o.updateState(func(s *State) { s.ConnectionState = StateError })
			o.deps.Analysis.Stop()
			streams.Close()
			return apperrors.Wrap(err, "video analysis start failed")
		}
	}

	voice := o.startTranscription(streams.Voice)

	cfg := o.State().Config
	liveCfg := live.SessionConfig{
		URL:          o.deps.Config.LiveAPIURL,
		APIKey:       o.deps.Config.LiveAPIKey,
		Model:        o.deps.Config.LiveModel,
		Voice:        o.deps.Config.LiveVoice,
		Instructions: BuildInstructions(cfg),
		Tools:        live.InterviewTools(),
	}
	if err := o.client.Connect(ctx, liveCfg); err != nil {
		o.updateState(func(s *State) { s.ConnectionState = StateError })
		o.deps.Analysis.Stop()
		streams.Close()
		return apperrors.Wrap(err, "realtime connect failed")
	}

	go func() {
		if err := o.client.StreamAudio(o.ctx, voice, streams.SampleRate); err != nil && o.ctx.Err() == nil {
			o.logger.WithError(err).Warn("Audio streaming ended")
		}
	}()

	metrics.SessionsStarted.Inc()
	o.logger.WithFields(logrus.Fields{
		"questions": o.State().TotalQuestions,
		"duration":  cfg.Duration,
	}).Info("Interview session started")

	return nil
}

// startTranscription splits the voice stream so the STT side channel hears
// the same audio the model does. Without a transcription provider the voice
// stream passes through untouched.
func (o *Orchestrator) startTranscription(voice io.Reader) io.Reader {
	if o.deps.STT == nil {
		return voice
	}
	provider, ok := o.deps.STT.GetDefaultProvider()
	if !ok {
		o.logger.Warn("No transcription provider available, answers fall back to AI summaries")
		return voice
	}

	if sp, ok := provider.(stt.StreamingProvider); ok {
		sp.SetCallback(func(sessionID, transcript string, isFinal bool, metadata map[string]interface{}) {
			if isFinal {
				o.answers.Append(transcript)
				return
			}
			o.updateState(func(s *State) { s.RealtimeInputText = transcript })
		})
	}

	pr, pw := io.Pipe()
	tee := io.TeeReader(voice, pw)

	go func() {
		err := provider.StreamToText(o.ctx, pr, o.id)
		if err != nil && o.ctx.Err() == nil {
			o.logger.WithError(err).Warn("Transcription side channel failed, continuing without it")
		}
		// The tee blocks on the pipe once the provider stops reading. Keep
		// draining so the voice stream to the AI link never stalls.
		io.Copy(io.Discard, pr)
	}()

	return &pipeClosingReader{Reader: tee, closer: pw}
}

// pipeClosingReader propagates EOF of the voice stream into the STT pipe.
type pipeClosingReader struct {
	io.Reader
	closer *io.PipeWriter
}

func (r *pipeClosingReader) Read(p []byte) (int, error) {
	n, err := r.Reader.Read(p)
	if err != nil {
		r.closer.CloseWithError(err)
	}
	return n, err
}

// NextTopic asks the interviewer to move on immediately.
func (o *Orchestrator) NextTopic() error {
	return o.client.SendControlMessage("Please move on to the next topic immediately.")
}

// StopSession tears the pipeline down. Idempotent.
func (o *Orchestrator) StopSession() {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	streams := o.streams
	timer := o.stopTimer
	o.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}

	o.client.Disconnect()
	o.deps.Analysis.Stop()
	o.cancel()
	if streams != nil {
		streams.Close()
	}

	o.updateState(func(s *State) { s.ConnectionState = StateDisconnected })

	record := o.Record()
	o.logger.WithField("questions_answered", len(record.Analyses)).Info("Interview session stopped")

	if o.deps.OnEnd != nil {
		o.deps.OnEnd(record)
	}
}

// Snapshot returns the latest fused delivery metrics.
func (o *Orchestrator) Snapshot() analysis.Metrics {
	return o.deps.Analysis.Snapshot()
}

// Done is closed when the session has stopped.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.ctx.Done()
}

// SetUser attributes the session to an account for history persistence.
func (o *Orchestrator) SetUser(userID string) {
	o.mu.Lock()
	o.userID = userID
	o.mu.Unlock()
}

// Record assembles the persistent session record from the current state.
func (o *Orchestrator) Record() *InterviewSession {
	o.mu.Lock()
	defer o.mu.Unlock()

	record := &InterviewSession{
		ID:         o.id,
		UserID:     o.userID,
		Config:     o.state.Config,
		Transcript: append([]Message(nil), o.state.Transcript...),
		Analyses:   append([]QuestionAnalysis(nil), o.state.Analyses...),
		StartTime:  nowMillis(o.startedAt),
	}
	if o.stopped {
		record.EndTime = nowMillis(o.deps.Clock())
	}
	return record
}

func (o *Orchestrator) onSpeakingChanged(speaking bool) {
	o.updateState(func(s *State) { s.IsAISpeaking = speaking })
}

// onTranscript accumulates the model's spoken text for the current turn. The
// candidate's own words arrive through the STT callback instead.
func (o *Orchestrator) onTranscript(text string, isUser, isFinal bool) {
	if isUser || text == "" {
		return
	}

	o.mu.Lock()
	o.aiBuffer.WriteString(text)
	buffered := o.aiBuffer.String()
	o.mu.Unlock()

	o.updateState(func(s *State) { s.CurrentQuestionText = buffered })
}

// assessmentArgs mirrors the save_assessment tool schema.
type assessmentArgs struct {
	FullQuestionText    string   `json:"full_question_text"`
	QuestionTopic       string   `json:"question_topic"`
	UserAnswerSummary   string   `json:"user_answer_summary"`
	ContentScore        float64  `json:"content_score"`
	DeliveryScore       float64  `json:"delivery_score"`
	Feedback            string   `json:"feedback"`
	Strengths           []string `json:"strengths"`
	AreasForImprovement []string `json:"areas_for_improvement"`
}

func (o *Orchestrator) onToolCall(name string, args json.RawMessage) (map[string]interface{}, error) {
	switch name {
	case live.ToolSetAvatarBehavior:
		var behavior BehaviorState
		if err := json.Unmarshal(args, &behavior); err != nil {
			return nil, apperrors.Wrap(err, "invalid avatar behavior arguments")
		}
		o.updateState(func(s *State) { s.AvatarBehavior = behavior })
		return map[string]interface{}{"result": "ok"}, nil

	case live.ToolSaveAssessment:
		var parsed assessmentArgs
		if err := json.Unmarshal(args, &parsed); err != nil {
			return nil, apperrors.Wrap(err, "invalid assessment arguments")
		}
		o.handleAssessment(parsed)
		return map[string]interface{}{"result": "assessment_saved"}, nil

	default:
		o.logger.WithField("tool", name).Warn("Unknown tool call ignored")
		return map[string]interface{}{"result": "ignored"}, nil
	}
}

// handleAssessment logs one graded question. The verbatim transcripts beat
// the model's own summaries whenever they carry real content: the question
// text comes from the AI transcript buffer when it is longer than a trivial
// fragment, and the answer comes from the candidate's STT buffer when any
// speech was transcribed.
func (o *Orchestrator) handleAssessment(args assessmentArgs) {
	snapshot := o.deps.Analysis.Snapshot()

	o.mu.Lock()
	transcriptQuestion := strings.TrimSpace(o.aiBuffer.String())
	o.aiBuffer.Reset()
	currentText := o.state.CurrentQuestionText
	questionID := len(o.state.Analyses) + 1
	o.mu.Unlock()

	question := transcriptQuestion
	if len(question) <= 5 {
		switch {
		case args.FullQuestionText != "":
			question = args.FullQuestionText
		case currentText != "":
			question = currentText
		case args.QuestionTopic != "":
			question = args.QuestionTopic
		default:
			question = "Interview Question"
		}
	}

	answer := strings.TrimSpace(o.answers.Drain())
	if answer == "" {
		answer = args.UserAnswerSummary
		if answer == "" {
			answer = "(No audio response detected)"
		}
	}

	contentScore := args.ContentScore
	if contentScore == 0 {
		contentScore = 5
	}
	deliveryScore := args.DeliveryScore
	if deliveryScore == 0 {
		deliveryScore = 5
	}
	feedback := args.Feedback
	if feedback == "" {
		feedback = "No feedback provided"
	}

	qa := QuestionAnalysis{
		QuestionID:    questionID,
		QuestionText:  question,
		UserAnswer:    answer,
		Metrics:       snapshot,
		ContentScore:  contentScore,
		DeliveryScore: deliveryScore,
		Feedback:      feedback,
		Strengths:     args.Strengths,
		Weaknesses:    args.AreasForImprovement,
	}

	now := nowMillis(o.deps.Clock())
	var finished bool
	o.updateState(func(s *State) {
		s.Analyses = append(s.Analyses, qa)
		s.Transcript = append(s.Transcript,
			Message{Role: "ai", Text: question, Timestamp: now},
			Message{Role: "user", Text: answer, Timestamp: now},
		)
		s.RealtimeInputText = ""
		s.CurrentQuestionIndex++
		finished = s.CurrentQuestionIndex >= s.TotalQuestions
	})

	metrics.AssessmentsSaved.Inc()
	o.logger.WithFields(logrus.Fields{
		"question_id":    qa.QuestionID,
		"content_score":  qa.ContentScore,
		"delivery_score": qa.DeliveryScore,
		"confidence":     snapshot.Confidence,
	}).Info("Assessment saved")

	if o.deps.Publisher != nil {
		if err := o.deps.Publisher.PublishAssessment(o.id, qa); err != nil {
			o.logger.WithError(err).Warn("Failed to publish assessment event")
		}
	}

	if finished {
		o.finishInterview()
	}
}

// finishInterview sends the wrap-up steer and schedules the teardown so the
// model has time to deliver its goodbye.
func (o *Orchestrator) finishInterview() {
	o.logger.Info("Question plan complete, wrapping up")

	if err := o.client.SendControlMessage(wrapUpMessage); err != nil {
		o.logger.WithError(err).Warn("Failed to send wrap-up message")
	}

	o.mu.Lock()
	if o.stopTimer == nil && !o.stopped {
		o.stopTimer = time.AfterFunc(o.deps.StopDelay, o.StopSession)
	}
	o.mu.Unlock()
}

// updateState applies a mutation and fans the new state out to subscribers.
func (o *Orchestrator) updateState(mutate func(*State)) {
	o.mu.Lock()
	mutate(&o.state)
	state := o.state
	subs := make([]func(State), 0, len(o.listeners))
	for _, fn := range o.listeners {
		subs = append(subs, fn)
	}
	o.mu.Unlock()

	for _, fn := range subs {
		fn(state)
	}
}
