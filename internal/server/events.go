package server

// envelope is the frame format of the realtime channel in both directions.
type envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

const (
	frameState    = "state"
	frameError    = "error"
	frameChatSend = "chat:send"
)

type chatFrame struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	ToCountry string `json:"to_country"`
}
