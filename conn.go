package perfprobe

import (
	"context"
	"io"
	"net"
	"strings"
	"time"

	"github.com/chromedp/cdproto"
	"github.com/gorilla/websocket"
	"github.com/mailru/easyjson/jlexer"
	"github.com/mailru/easyjson/jwriter"
)

var (
	// DefaultReadBufferSize is the default maximum read buffer size.
	DefaultReadBufferSize = 25 * 1024 * 1024

	// DefaultWriteBufferSize is the default maximum write buffer size.
	DefaultWriteBufferSize = 10 * 1024 * 1024

	// DefaultHandshakeTimeout bounds the websocket handshake.
	DefaultHandshakeTimeout = 10 * time.Second
)

// Transport is the common interface to send/receive messages to a target.
type Transport interface {
	Read() (*cdproto.Message, error)
	Write(*cdproto.Message) error
	io.Closer
}

// Conn wraps a gorilla/websocket.Conn connection, encoding and decoding
// protocol frames with easyjson.
type Conn struct {
	conn *websocket.Conn
}

// DialContext dials the specified websocket URL using gorilla/websocket.
func DialContext(ctx context.Context, urlstr string) (*Conn, error) {
	d := &websocket.Dialer{
		ReadBufferSize:   DefaultReadBufferSize,
		WriteBufferSize:  DefaultWriteBufferSize,
		HandshakeTimeout: DefaultHandshakeTimeout,
	}

	conn, _, err := d.DialContext(ctx, ForceIP(urlstr), nil)
	if err != nil {
		return nil, err
	}

	return &Conn{conn: conn}, nil
}

// Read reads the next message.
func (c *Conn) Read() (*cdproto.Message, error) {
	typ, buf, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if typ != websocket.TextMessage {
		return nil, ErrInvalidWebsocketMessage
	}

	msg := new(cdproto.Message)
	lexer := jlexer.Lexer{Data: buf}
	msg.UnmarshalEasyJSON(&lexer)
	if err := lexer.Error(); err != nil {
		return nil, err
	}
	return msg, nil
}

// Write writes a message. Callers must not call Write concurrently.
func (c *Conn) Write(msg *cdproto.Message) error {
	var w jwriter.Writer
	msg.MarshalEasyJSON(&w)
	if w.Error != nil {
		return w.Error
	}
	buf, err := w.BuildBytes()
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, buf)
}

// Close closes the underlying websocket connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// ForceIP forces the host component in urlstr to be an IP address.
//
// Since Chrome 66+, Chrome DevTools Protocol clients connecting to a browser
// must send the "Host:" header as either an IP address, or "localhost".
func ForceIP(urlstr string) string {
	if i := strings.Index(urlstr, "://"); i != -1 {
		scheme := urlstr[:i+3]
		host, port, path := urlstr[len(scheme):], "", ""
		if i := strings.Index(host, "/"); i != -1 {
			host, path = host[:i], host[i:]
		}
		if i := strings.Index(host, ":"); i != -1 {
			host, port = host[:i], host[i:]
		}
		if addr, err := net.ResolveIPAddr("ip", host); err == nil {
			urlstr = scheme + addr.IP.String() + port + path
		}
	}
	return urlstr
}
