package models

import "encoding/json"

// TranscriptWebhook is the post-call payload the voice agent platform delivers
// to POST /webhooks/transcript.
type TranscriptWebhook struct {
	Type string       `json:"type"`
	Data *WebhookData `json:"data"`
}

// WebhookData carries the conversation. Transcript is normally an array of
// {role, message} entries but is kept raw so other shapes can be coerced.
type WebhookData struct {
	ConversationID string          `json:"conversation_id"`
	Transcript     json.RawMessage `json:"transcript"`
}
