package domain

// ConnectionState models the lifecycle of the service websocket.
type ConnectionState string

const (
	ConnDisconnected ConnectionState = "disconnected"
	ConnConnecting   ConnectionState = "connecting"
	ConnOpen         ConnectionState = "open"
	ConnClosing      ConnectionState = "closing"
)

// Phase models the interview/generation lifecycle.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseDetecting  Phase = "detecting"
	PhasePrompting  Phase = "prompting"
	PhaseRecording  Phase = "recording"
	PhaseSubmitting Phase = "submitting"
	PhaseGenerating Phase = "generating"
	PhaseComplete   Phase = "complete"
	PhaseError      Phase = "error"
)

// GenerationStatus tracks progress of the song pipeline on the service side.
type GenerationStatus string

const (
	GenerationNone     GenerationStatus = "none"
	GenerationLyrics   GenerationStatus = "generating_lyrics"
	GenerationMusic    GenerationStatus = "generating_music"
	GenerationComplete GenerationStatus = "complete"
)

// GenerationResult is the finished song payload.
type GenerationResult struct {
	Lyrics   string `json:"lyrics,omitempty"`
	Title    string `json:"title,omitempty"`
	VideoURL string `json:"videoUrl,omitempty"`
}

// Severity classifies user-facing notifications.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// ErrorCode identifies where a reported failure originated.
type ErrorCode string

const (
	ErrorCodeStartup    ErrorCode = "startup"
	ErrorCodeTransport  ErrorCode = "transport"
	ErrorCodeProtocol   ErrorCode = "protocol"
	ErrorCodeRemoteCall ErrorCode = "remote_call"
	ErrorCodeDevice     ErrorCode = "device"
	ErrorCodeGeneration ErrorCode = "generation"
	ErrorCodeRules      ErrorCode = "rules"
	ErrorCodeClipboard  ErrorCode = "clipboard"
)

// Snapshot is a read-only projection of the session for the UI.
type Snapshot struct {
	Phase            Phase             `json:"phase"`
	PersonDetected   bool              `json:"personDetected"`
	CurrentPrompt    string            `json:"currentPrompt"`
	PendingAnswer    string            `json:"pendingAnswer"`
	IsRecording      bool              `json:"isRecording"`
	QuestionIndex    int               `json:"questionIndex"`
	Answers          []string          `json:"answers"`
	GenerationStatus GenerationStatus  `json:"generationStatus"`
	Result           *GenerationResult `json:"result,omitempty"`
	LastError        string            `json:"lastError,omitempty"`
}

// Status summarizes the current runtime status for the UI.
type Status struct {
	Connection ConnectionState `json:"connection"`
	Session    Snapshot        `json:"session"`
	Message    string          `json:"message,omitempty"`
}
