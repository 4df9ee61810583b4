package protocol

import "time"

// HostState is the authoritative application snapshot published by the studio
// front-end. The engine only reads it; all mutation flows back through commands.
type HostState struct {
	Language             string       `json:"language"`
	Images               []QueueImage `json:"images"`
	Modals               ModalsState  `json:"modals"`
	NativePrompt         string       `json:"native_prompt,omitempty"`
	IsNativeGenerating   bool         `json:"is_native_generating"`
	BatchCompleteTrigger int          `json:"batch_complete_trigger"`
	Scroll               ScrollState  `json:"scroll"`
	Timestamp            time.Time    `json:"timestamp"`
}

// QueueImage identifies one entry of the host's image queue.
type QueueImage struct {
	ID      string `json:"id"`
	Preview string `json:"preview"` // URL or data: URI of the downsized preview
}

// ModalsState carries the host's modal visibility flags.
type ModalsState struct {
	Composite    bool `json:"composite"`
	OCR          bool `json:"ocr"`
	Guide        bool `json:"guide"`
	LanguageMenu bool `json:"language_menu"`
}

// ScrollState describes the host's current scroll window.
type ScrollState struct {
	OffsetPX       float64 `json:"offset_px"`
	ViewportHeight float64 `json:"viewport_height"`
	DocumentHeight float64 `json:"document_height"`
}

// Percent returns the scroll position as 0-100 of the scrollable range.
func (s ScrollState) Percent() float64 {
	scrollable := s.DocumentHeight - s.ViewportHeight
	if scrollable <= 0 {
		return 0
	}
	pct := s.OffsetPX / scrollable * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// CommandKind discriminates AssistantCommand payloads.
type CommandKind string

const (
	CommandScroll            CommandKind = "scroll"
	CommandNavigate          CommandKind = "navigate"
	CommandUIVisibility      CommandKind = "ui_visibility"
	CommandNativeGeneration  CommandKind = "native_generation"
	CommandItemAction        CommandKind = "item_action"
	CommandQueueAction       CommandKind = "queue_action"
	CommandElementAction     CommandKind = "element_action"
	CommandCompositeSettings CommandKind = "composite_settings"
	CommandApplyAll          CommandKind = "apply_all"
	CommandAudit             CommandKind = "audit"
)

// AssistantCommand is the sole channel by which the voice engine affects
// application state. Exactly one of the payload fields is set, matching Kind.
type AssistantCommand struct {
	Kind      CommandKind        `json:"kind"`
	Scroll    *ScrollRequest     `json:"scroll,omitempty"`
	Navigate  *NavigateRequest   `json:"navigate,omitempty"`
	UI        *UIVisibility      `json:"ui,omitempty"`
	Generate  *GenerationRequest `json:"generate,omitempty"`
	Item      *ItemAction        `json:"item,omitempty"`
	Queue     *QueueAction       `json:"queue,omitempty"`
	Element   *ElementAction     `json:"element,omitempty"`
	Composite *CompositePatch    `json:"composite,omitempty"`
	TraceID   string             `json:"trace_id,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

// ScrollRequest is a discrete, single-shot scroll by a fraction of the
// viewport height. There is no continuous or repeating variant.
type ScrollRequest struct {
	Direction string  `json:"direction"` // UP or DOWN
	Fraction  float64 `json:"fraction"`  // 0.25, 0.5 or 0.9
}

// NavigateRequest addresses an absolute position: a percentage, a pixel
// offset, "top"/"bottom", a selector, or an index-addressed queue item.
type NavigateRequest struct {
	Kind  string  `json:"kind"` // percent, pixels, edge, selector, item, element, text
	Value string  `json:"value,omitempty"`
	Num   float64 `json:"num,omitempty"`
}

// UIVisibility opens or closes a host surface, or changes the language.
type UIVisibility struct {
	Target string `json:"target"` // composite, ocr, guide, language_menu, language, all
	Open   bool   `json:"open"`
	Lang   string `json:"lang,omitempty"` // lower-case ISO code when Target == "language"
}

// GenerationRequest fires the host's primary generation action.
type GenerationRequest struct {
	Prompt      string `json:"prompt,omitempty"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
	Resolution  string `json:"resolution,omitempty"`
	Format      string `json:"format,omitempty"`
}

// ItemAction targets a single queue entry by 1-based index.
type ItemAction struct {
	Action string `json:"action"` // REMOVE, EDIT, DOWNLOAD, REMASTER, CREATE_VARIANTS, SHARE
	Index  int    `json:"index"`
}

// QueueAction applies to the whole queue.
type QueueAction struct {
	Action string `json:"action"` // CLEAR_ALL, DOWNLOAD_ZIP, START_PROCESSING, ANALYZE
}

// ElementAction performs a direct interaction on a registered viewport
// element. UPDATE_VALUE implies synthetic input/change events on the host
// side so bound listeners observe the change.
type ElementAction struct {
	Action   string `json:"action"` // CLICK, FOCUS, UPDATE_VALUE
	ID       string `json:"id,omitempty"`
	Selector string `json:"selector,omitempty"`
	Value    string `json:"value,omitempty"`
}

// CompositePatch is a partial update of the composite modal's settings.
// Pointer fields distinguish "unset" from zero values.
type CompositePatch struct {
	Prompt      *string `json:"prompt,omitempty"`
	Caption     *string `json:"caption,omitempty"`
	ShowCaption *bool   `json:"show_caption,omitempty"`
	AspectRatio *string `json:"aspect_ratio,omitempty"`
	Resolution  *string `json:"resolution,omitempty"`
	Format      *string `json:"format,omitempty"`
}

// SessionStatus is published for UI feedback whenever the engine's
// externally visible state changes.
type SessionStatus struct {
	State     string    `json:"state"` // idle, connecting, active, error
	Executing bool      `json:"executing"`
	Volume    int       `json:"volume"` // 0-100 input level
	Error     string    `json:"error,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ElementRegistration registers or refreshes an interactive viewport element.
type ElementRegistration struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"` // image, button, input, modal
	Rect       Rect              `json:"rect"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Rect is a bounding rectangle in document coordinates.
type Rect struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ElementRemoval unregisters a viewport element by id.
type ElementRemoval struct {
	ID string `json:"id"`
}

// CaptureOpenRequest asks the host to start microphone capture with the
// given constraints. The host answers with a CaptureOpenReply on the
// request's reply subject.
type CaptureOpenRequest struct {
	EchoCancellation bool `json:"echo_cancellation"`
	NoiseSuppression bool `json:"noise_suppression"`
	AutoGainControl  bool `json:"auto_gain_control"`
}

// CaptureOpenReply reports the negotiated capture parameters.
// Error "unsupported_constraints" signals that the host rejected the
// enhanced constraints and a bare retry may succeed.
type CaptureOpenReply struct {
	OK         bool   `json:"ok"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Error      string `json:"error,omitempty"`
}

// AudioInputFrame is one captured microphone chunk published by the host.
type AudioInputFrame struct {
	Rate int    `json:"rate"`
	Data string `json:"data"` // base64 16-bit little-endian PCM
}

// AudioOutputFrame is one scheduled playback fragment, or a control message
// when Control is set. Stop frames cancel the fragment with the same ID.
type AudioOutputFrame struct {
	ID      int64  `json:"id,omitempty"`
	Rate    int    `json:"rate,omitempty"`
	DelayMS int64  `json:"delay_ms,omitempty"`
	Data    string `json:"data,omitempty"` // base64 16-bit little-endian PCM
	Stop    bool   `json:"stop,omitempty"`
	Control string `json:"control,omitempty"` // pause or resume
}

const (
	SubjectHostState          = "assistant.host.state"
	SubjectCommand            = "assistant.command"
	SubjectSessionStatus      = "assistant.session.status"
	SubjectViewportRegister   = "assistant.viewport.register"
	SubjectViewportUnregister = "assistant.viewport.unregister"
	SubjectViewportWindow     = "assistant.viewport.window"
	SubjectControlStart       = "assistant.control.start"
	SubjectControlStop        = "assistant.control.stop"
	SubjectAudioOpen          = "assistant.audio.open"
	SubjectAudioClose         = "assistant.audio.close"
	SubjectAudioInput         = "assistant.audio.input"
	SubjectAudioOutput        = "assistant.audio.output"
)
