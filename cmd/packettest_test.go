// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nategreco/uBike/pkg/ergolink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedConn returns one chunk per Read, then behaves like an idle line
type scriptedConn struct {
	chunks  []string
	err     error
	written []byte
}

func (c *scriptedConn) Read(p []byte) (int, error) {
	if len(c.chunks) == 0 {
		if c.err != nil {
			return 0, c.err
		}
		time.Sleep(time.Millisecond)
		return 0, nil
	}
	n := copy(p, c.chunks[0])
	c.chunks[0] = c.chunks[0][n:]
	if c.chunks[0] == "" {
		c.chunks = c.chunks[1:]
	}
	return n, nil
}

func (c *scriptedConn) Write(p []byte) (int, error) {
	c.written = append(c.written, p...)
	return len(p), nil
}

func (c *scriptedConn) Close() error                         { return nil }
func (c *scriptedConn) SetReadTimeout(_ time.Duration) error { return nil }

func TestWaitForPacket_SkipsInvalidLines(t *testing.T) {
	conn := &scriptedConn{chunks: []string{
		"1001E9A\r\n",         // tail of a line cut by the connection
		":510300020000AB\r\n", // bad checksum
		":5103",
		"00020000AA\r\n",
	}}

	res := waitForPacket(context.Background(), conn, ergolink.DefaultCodec)
	require.NoError(t, res.err)
	require.NotNil(t, res.packet)
	assert.Equal(t, 2, res.invalidLines)
	assert.Equal(t, ergolink.KindReadRPM, ergolink.Classify(res.packet.Payload()).Kind)
}

func TestWaitForPacket_Timeout(t *testing.T) {
	conn := &scriptedConn{chunks: []string{"garbage\r\n"}}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res := waitForPacket(ctx, conn, ergolink.DefaultCodec)
	assert.Nil(t, res.packet)
	assert.ErrorIs(t, res.err, context.DeadlineExceeded)
	assert.Equal(t, 1, res.invalidLines)
}

func TestWaitForPacket_TransportError(t *testing.T) {
	conn := &scriptedConn{err: errors.New("device unplugged")}

	res := waitForPacket(context.Background(), conn, ergolink.DefaultCodec)
	assert.Nil(t, res.packet)
	assert.ErrorIs(t, res.err, ergolink.ErrTransport)
}
