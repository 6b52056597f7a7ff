package client

import (
	"github.com/mailru/easyjson"
	"github.com/mailru/easyjson/jlexer"
	"github.com/mailru/easyjson/jwriter"
)

// Target is a DevTools target as listed on /json/list.
type Target struct {
	ID                   string     `json:"id"`
	Type                 TargetType `json:"type"`
	Title                string     `json:"title"`
	URL                  string     `json:"url"`
	WebSocketDebuggerURL string     `json:"webSocketDebuggerUrl"`
	DevtoolsFrontendURL  string     `json:"devtoolsFrontendUrl,omitempty"`
}

// String satisfies stringer.
func (t *Target) String() string {
	return t.Type.String() + " " + t.ID + " (" + t.URL + ")"
}

// TargetType are the types of targets available in Chrome.
type TargetType string

// TargetType values.
const (
	BackgroundPage TargetType = "background_page"
	Browser        TargetType = "browser"
	Iframe         TargetType = "iframe"
	Other          TargetType = "other"
	Page           TargetType = "page"
	ServiceWorker  TargetType = "service_worker"
	SharedWorker   TargetType = "shared_worker"
	Worker         TargetType = "worker"
)

// String satisfies stringer.
func (tt TargetType) String() string {
	return string(tt)
}

// MarshalEasyJSON satisfies easyjson.Marshaler.
func (tt TargetType) MarshalEasyJSON(out *jwriter.Writer) {
	out.String(string(tt))
}

// MarshalJSON satisfies json.Marshaler.
func (tt TargetType) MarshalJSON() ([]byte, error) {
	return easyjson.Marshal(tt)
}

// UnmarshalEasyJSON satisfies easyjson.Unmarshaler. Types this package does
// not know about decode as Other rather than failing the whole listing.
func (tt *TargetType) UnmarshalEasyJSON(in *jlexer.Lexer) {
	switch v := TargetType(in.String()); v {
	case BackgroundPage, Browser, Iframe, Other, Page, ServiceWorker, SharedWorker, Worker:
		*tt = v
	default:
		*tt = Other
	}
}

// UnmarshalJSON satisfies json.Unmarshaler.
func (tt *TargetType) UnmarshalJSON(buf []byte) error {
	return easyjson.Unmarshal(buf, tt)
}
