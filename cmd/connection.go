// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nategreco/uBike/internal/config"
	"github.com/nategreco/uBike/pkg/ergolink"
	"go.bug.st/serial"
	"golang.org/x/term"
)

// Connection provides a common interface for reading/writing bytes from serial or WebSocket.
// A Read waiting longer than the read timeout returns 0 bytes and no error.
type Connection interface {
	io.Reader
	io.Writer
	io.Closer
	SetReadTimeout(t time.Duration) error
}

// SerialConnection wraps a serial port
type SerialConnection struct {
	port serial.Port
}

func (s *SerialConnection) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialConnection) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *SerialConnection) Close() error {
	return s.port.Close()
}

func (s *SerialConnection) SetReadTimeout(t time.Duration) error {
	return s.port.SetReadTimeout(t)
}

// ErrConnectionClosed is returned when reading from a closed WebSocket connection
var ErrConnectionClosed = errors.New("websocket connection closed")

// WebSocketConnection wraps a WebSocket connection for byte-level reading.
// Messages are received by a background goroutine so reads can time out
// without tearing down the connection.
type WebSocketConnection struct {
	conn      *websocket.Conn
	messages  chan []byte
	done      chan struct{}
	closeOnce sync.Once
	err       error // set before messages is closed
	timeout   time.Duration
	buf       []byte
	bufOffset int
}

func newWebSocketConnection(conn *websocket.Conn) *WebSocketConnection {
	w := &WebSocketConnection{
		conn:     conn,
		messages: make(chan []byte, 16),
		done:     make(chan struct{}),
	}
	go w.receive()
	return w
}

func (w *WebSocketConnection) receive() {
	defer close(w.messages)
	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.err = err
			return
		}
		// The bridge forwards frames as text or binary messages
		if messageType != websocket.BinaryMessage && messageType != websocket.TextMessage {
			continue
		}
		select {
		case w.messages <- data:
		case <-w.done:
			return
		}
	}
}

func (w *WebSocketConnection) Read(p []byte) (int, error) {
	// If we have buffered data, return it first
	if w.bufOffset < len(w.buf) {
		n := copy(p, w.buf[w.bufOffset:])
		w.bufOffset += n
		return n, nil
	}

	var timeout <-chan time.Time
	if w.timeout > 0 {
		t := time.NewTimer(w.timeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case data, ok := <-w.messages:
		if !ok {
			if w.err != nil {
				return 0, fmt.Errorf("%w: %v", ErrConnectionClosed, w.err)
			}
			return 0, ErrConnectionClosed
		}
		w.buf = data
		n := copy(p, w.buf)
		w.bufOffset = n
		return n, nil
	case <-timeout:
		return 0, nil
	}
}

func (w *WebSocketConnection) Write(p []byte) (int, error) {
	err := w.conn.WriteMessage(websocket.BinaryMessage, p)
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *WebSocketConnection) Close() error {
	w.closeOnce.Do(func() { close(w.done) })
	return w.conn.Close()
}

func (w *WebSocketConnection) SetReadTimeout(t time.Duration) error {
	w.timeout = t
	return nil
}

// sevenBitConnection converts between the bus's 7N2 framing and an 8N1 UART
type sevenBitConnection struct {
	Connection
}

func (c sevenBitConnection) Read(p []byte) (int, error) {
	n, err := c.Connection.Read(p)
	ergolink.From8N1(p[:n])
	return n, err
}

func (c sevenBitConnection) Write(p []byte) (int, error) {
	buf := append([]byte(nil), p...)
	ergolink.To8N1(buf)
	return c.Connection.Write(buf)
}

// OpenSerialConnection opens a serial port connection
func OpenSerialConnection(sc config.SerialConfig) (Connection, error) {
	mode := &serial.Mode{
		BaudRate: sc.Baud,
		DataBits: sc.DataBits,
		Parity:   serial.NoParity,
		StopBits: serial.TwoStopBits,
	}
	if sc.StopBits == 1 {
		mode.StopBits = serial.OneStopBit
	}
	if sc.Emulate8N1 {
		mode.DataBits = 8
		mode.StopBits = serial.OneStopBit
	}

	port, err := serial.Open(sc.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open serial port %s: %v", ergolink.ErrTransport, sc.Port, err)
	}

	var conn Connection = &SerialConnection{port: port}
	if sc.Emulate8N1 {
		conn = sevenBitConnection{conn}
	}
	if err := conn.SetReadTimeout(sc.ReadTimeout); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: failed to set read timeout: %v", ergolink.ErrTransport, err)
	}
	return conn, nil
}

// OpenWebSocketConnection opens a WebSocket connection with HTTP Basic auth
func OpenWebSocketConnection(wsURL, username, password string, skipSSLVerify bool) (Connection, error) {
	// Parse and validate URL
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %v", err)
	}

	// Validate scheme
	switch u.Scheme {
	case "ws", "wss":
		// OK
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	// Create dialer with timeout
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	// Configure TLS for wss://
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	// Build HTTP headers with Basic auth
	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	// Connect
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: WebSocket connection failed (HTTP %d): %v", ergolink.ErrTransport, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("%w: WebSocket connection failed: %v", ergolink.ErrTransport, err)
	}

	return newWebSocketConnection(conn), nil
}

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv("UBIKE_PASSWORD"); pw != "" {
		return pw, nil
	}

	// Prompt user for password (hide input)
	fmt.Fprint(os.Stderr, "Password: ")

	// Read password without echo
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr) // newline after password
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr) // newline after password
	return string(passwordBytes), nil
}

// OpenConnection opens either a serial or WebSocket connection based on flags
// and configuration
func OpenConnection() (Connection, string, error) {
	if wsURL != "" {
		// WebSocket mode
		password := ""
		if wsUsername != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, "", err
			}
		}

		conn, err := OpenWebSocketConnection(wsURL, wsUsername, password, wsNoSSLVerify)
		if err != nil {
			return nil, "", err
		}
		if err := conn.SetReadTimeout(cfg.Serial.ReadTimeout); err != nil {
			conn.Close()
			return nil, "", err
		}

		return conn, fmt.Sprintf("WebSocket: %s", wsURL), nil
	}

	if cfg.Serial.Port != "" {
		// Serial mode
		conn, err := OpenSerialConnection(cfg.Serial)
		if err != nil {
			return nil, "", err
		}

		framing := fmt.Sprintf("%dN%d", cfg.Serial.DataBits, cfg.Serial.StopBits)
		if cfg.Serial.Emulate8N1 {
			framing += " via 8N1"
		}
		return conn, fmt.Sprintf("Serial: %s @ %d baud %s", cfg.Serial.Port, cfg.Serial.Baud, framing), nil
	}

	return nil, "", fmt.Errorf("either --port or --url must be specified")
}
