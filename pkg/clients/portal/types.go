package portal

// Wire types for the consent service protocol. The restore secret travels
// only inside openSessionRequest/credentialPayload bodies on the local unix
// socket and is never logged.

type openSessionRequest struct {
	Mode          string              `json:"mode"`
	RestoreSecret string              `json:"restore_secret,omitempty"`
	Filter        sourceFilterPayload `json:"filter"`
	Persist       string              `json:"persist"`
}

type sourceFilterPayload struct {
	Kind string `json:"kind,omitempty"`
}

type openSessionResponse struct {
	Handle           string             `json:"handle"`
	IssuedCredential *credentialPayload `json:"issued_credential,omitempty"`
	Streams          []streamPayload    `json:"streams"`
}

type credentialPayload struct {
	Secret       string `json:"secret"`
	Kind         string `json:"kind"`
	Persist      string `json:"persist"`
	IssuedAtUnix int64  `json:"issued_at"`
}

type streamPayload struct {
	ID     string `json:"id"`
	Kind   string `json:"kind"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type framePayload struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	PixelFormat string `json:"pixel_format"`
	Data        []byte `json:"data"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
