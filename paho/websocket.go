package paho

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// websocketConn carries the MQTT byte stream in binary websocket messages
type websocketConn struct {
	*websocket.Conn
	r  io.Reader
	wm sync.Mutex
}

var _ net.Conn = (*websocketConn)(nil)

func dialWebsocket(ctx context.Context, uri *url.URL, tlsCfg *tls.Config, header http.Header, timeout time.Duration) (net.Conn, error) {
	dialer := &websocket.Dialer{
		Proxy:             http.ProxyFromEnvironment,
		HandshakeTimeout:  timeout,
		EnableCompression: false,
		TLSClientConfig:   tlsCfg,
		Subprotocols:      []string{"mqtt"},
	}
	ws, _, err := dialer.DialContext(ctx, uri.String(), header)
	if err != nil {
		return nil, err
	}
	return &websocketConn{Conn: ws}, nil
}

func (wsc *websocketConn) Read(p []byte) (int, error) {
	for {
		if wsc.r == nil {
			var err error
			_, wsc.r, err = wsc.NextReader()
			if err != nil {
				return 0, err
			}
		}
		n, err := wsc.r.Read(p)
		if err == io.EOF {
			wsc.r = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (wsc *websocketConn) Write(p []byte) (int, error) {
	wsc.wm.Lock()
	defer wsc.wm.Unlock()
	if err := wsc.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (wsc *websocketConn) SetDeadline(t time.Time) error {
	if err := wsc.SetReadDeadline(t); err != nil {
		return err
	}
	return wsc.SetWriteDeadline(t)
}
