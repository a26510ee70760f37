package translation

import "time"

// DeliveryState tracks a translation event from submission to the peer.
type DeliveryState string

const (
	StatePending    DeliveryState = "pending"
	StateTranslated DeliveryState = "translated"
	StateDelivered  DeliveryState = "delivered"
	StateFailed     DeliveryState = "failed"
)

// Confidence is the coarse quality indicator attached to a translation.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Event is one utterance travelling from a sender to its peer.
type Event struct {
	ID             string        `json:"messageId"`
	SessionID      string        `json:"sessionId"`
	Origin         string        `json:"origin"`
	OriginalText   string        `json:"originalText"`
	SourceLanguage string        `json:"sourceLanguage"`
	TargetLanguage string        `json:"targetLanguage"`
	TranslatedText string        `json:"translatedText,omitempty"`
	Confidence     Confidence    `json:"confidence,omitempty"`
	State          DeliveryState `json:"state"`
	Timestamp      time.Time     `json:"timestamp"`
}
