package translation

// Envelope types exchanged on the realtime channel.
const (
	TypeTranslation       = "translation"
	TypeTranslationFailed = "translation_failed"
	TypeAck               = "ack"
	TypeConnected         = "connected"
	TypeSessionClosed     = "session_closed"
	TypeError             = "error"
)

// Envelope is the JSON frame carried over the realtime channel, in both
// directions. Fields beyond Type are populated per message type.
type Envelope struct {
	Type           string     `json:"type"`
	MessageID      string     `json:"messageId,omitempty"`
	SessionID      string     `json:"sessionId,omitempty"`
	Role           string     `json:"role,omitempty"`
	OriginalText   string     `json:"originalText,omitempty"`
	SourceLanguage string     `json:"sourceLanguage,omitempty"`
	TargetLanguage string     `json:"targetLanguage,omitempty"`
	TranslatedText string     `json:"translatedText,omitempty"`
	Confidence     Confidence `json:"confidence,omitempty"`
	Quality        string     `json:"connectionQuality,omitempty"`
	Error          string     `json:"error,omitempty"`
	Timestamp      int64      `json:"timestamp,omitempty"`
}
