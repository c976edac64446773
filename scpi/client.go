package scpi

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

const defaultClientTimeout = 5 * time.Second

// Client sends single commands to a power monitor control socket.
// Each command uses its own connection.
type Client struct {
	Addr    string
	Timeout time.Duration
}

func NewClient(host string, port int) *Client {
	return &Client{
		Addr:    net.JoinHostPort(host, strconv.Itoa(port)),
		Timeout: defaultClientTimeout,
	}
}

// Exec sends cmd and, if wantReply is set, reads back one line.
func (c *Client) Exec(cmd string, wantReply bool) (string, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}
	conn, err := net.DialTimeout("tcp", c.Addr, timeout)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return "", err
	}
	if _, err := conn.Write([]byte(cmd + LineTerminator)); err != nil {
		return "", fmt.Errorf("failed to send %q: %w", cmd, err)
	}
	if !wantReply {
		return "", nil
	}

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read reply to %q: %w", cmd, err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *Client) readValue(cmd, unit string) (float64, error) {
	rpl, err := c.Exec(cmd, true)
	if err != nil {
		return 0, err
	}
	return ParseValue(rpl, unit)
}

// ParseValue parses a reply such as "12.34mW".
func ParseValue(rpl, unit string) (float64, error) {
	if !strings.HasSuffix(rpl, unit) {
		return 0, fmt.Errorf("reply %q is missing unit %q", rpl, unit)
	}
	return strconv.ParseFloat(strings.TrimSuffix(rpl, unit), 64)
}

func (c *Client) ReadPower() (float64, error) {
	return c.readValue(CmdReadPower, "mW")
}

func (c *Client) ReadCurrent() (float64, error) {
	return c.readValue(CmdReadCurrent, "mA")
}

func (c *Client) ReadBusVoltage() (float64, error) {
	return c.readValue(CmdReadBusVoltage, "V")
}

func (c *Client) ReadShuntVoltage() (float64, error) {
	return c.readValue(CmdReadShuntVoltage, "mV")
}

// Reset clears the statistics on the monitor. It waits for the empty reply
// so a following read will see the reset.
func (c *Client) Reset() error {
	_, err := c.Exec(CmdReset, true)
	return err
}

func (c *Client) ID() (string, error) {
	return c.Exec(CmdID, true)
}

// Exit asks the monitor to shut down.
func (c *Client) Exit() error {
	_, err := c.Exec(CmdSystemExit, false)
	return err
}
