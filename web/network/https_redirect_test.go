package network

import (
	"bufio"
	"io"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedirectConnAnswersPlainHTTP(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	conn := &redirectConn{Conn: server}

	go func() {
		_, _ = client.Write([]byte("GET /movies?page=2 HTTP/1.1\r\nHost: catalog.example:5000\r\n\r\n"))
	}()
	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 16)
		_, _ = conn.Read(buf)
	}()

	resp, err := http.ReadResponse(bufio.NewReader(client), nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
	assert.Equal(t, "https://catalog.example:5000/movies?page=2", resp.Header.Get("Location"))
	<-done
}

func TestRedirectConnReplaysOtherBytes(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	conn := &redirectConn{Conn: server}

	hello := []byte{0x16, 0x03, 0x01, 0x00, 0x05, 'h', 'e', 'l', 'l', 'o'}
	go func() {
		_, _ = client.Write(hello)
		_ = client.Close()
	}()

	got, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.Equal(t, hello, got)
}
