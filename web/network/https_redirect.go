// Package network wraps the catalog listener so a TLS port also answers plain HTTP
// requests with a redirect to https.
package network

import (
	"bufio"
	"bytes"
	"net"
	"net/http"
	"sync"
)

// peekSize is enough for the request line and Host header of any browser request.
const peekSize = 2048

// redirectConn answers a first packet that parses as an HTTP request with a 307 to the
// https URL and closes. Anything else (a TLS ClientHello) is replayed to the reader.
type redirectConn struct {
	net.Conn

	once    sync.Once
	pending []byte
}

func (c *redirectConn) sniff() {
	buf := make([]byte, peekSize)
	n, err := c.Conn.Read(buf)
	c.pending = buf[:n]
	if err != nil || n == 0 {
		return
	}
	req, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(c.pending)))
	if err != nil {
		return
	}
	resp := http.Response{
		StatusCode: http.StatusTemporaryRedirect,
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     http.Header{},
	}
	resp.Header.Set("Location", "https://"+req.Host+req.RequestURI)
	resp.Header.Set("Connection", "close")
	_ = resp.Write(c.Conn)
	_ = c.Conn.Close()
	c.pending = nil
}

func (c *redirectConn) Read(buf []byte) (int, error) {
	c.once.Do(c.sniff)
	if len(c.pending) > 0 {
		n := copy(buf, c.pending)
		c.pending = c.pending[n:]
		return n, nil
	}
	return c.Conn.Read(buf)
}

type redirectListener struct {
	net.Listener
}

// NewRedirectListener wraps l; put tls.NewListener on top of the result.
func NewRedirectListener(l net.Listener) net.Listener {
	return &redirectListener{Listener: l}
}

func (l *redirectListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	return &redirectConn{Conn: conn}, nil
}
