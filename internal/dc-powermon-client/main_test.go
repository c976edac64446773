package client

import (
	"bufio"
	"bytes"
	"net"
	"testing"

	"github.com/TheCacophonyProject/dc-powermon/scpi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// replyOnce accepts one connection, records the command and writes reply.
func replyOnce(t *testing.T, reply string) (*scpi.Client, <-chan string) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	received := make(chan string, 1)
	go func() {
		defer ln.Close()
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		line, _ := bufio.NewReader(conn).ReadString('\n')
		received <- line
		conn.Write([]byte(reply))
	}()
	return &scpi.Client{Addr: ln.Addr().String()}, received
}

func TestReadPowerCommand(t *testing.T) {
	c, received := replyOnce(t, "123.45mW\n")
	out := &bytes.Buffer{}
	require.NoError(t, runCommand(c, Args{ReadPower: &subcommand{}}, out))
	assert.Equal(t, "123.45 mW\n", out.String())
	assert.Equal(t, scpi.CmdReadPower+"\n", <-received)
}

func TestIDCommand(t *testing.T) {
	c, received := replyOnce(t, "The Cacophony Project,dc-powermon,1.0.0\n")
	out := &bytes.Buffer{}
	require.NoError(t, runCommand(c, Args{ID: &subcommand{}}, out))
	assert.Equal(t, "The Cacophony Project,dc-powermon,1.0.0\n", out.String())
	assert.Equal(t, scpi.CmdID+"\n", <-received)
}

func TestBadReply(t *testing.T) {
	c, _ := replyOnce(t, "garbage\n")
	err := runCommand(c, Args{ReadCurrent: &subcommand{}}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestNoCommand(t *testing.T) {
	err := runCommand(&scpi.Client{Addr: "127.0.0.1:1"}, Args{}, &bytes.Buffer{})
	assert.Error(t, err)
}
