package powermon

import (
	"errors"
	"net"
	"sync"
	"time"
)

const acceptRetryInterval = 100 * time.Millisecond

// controlSocket accepts clients in the background and hands them to the loop
// one at a time. Clients that connect while one is waiting stay in the
// listen backlog until the loop takes the waiting one.
type controlSocket struct {
	ln        net.Listener
	conns     chan net.Conn
	done      chan struct{}
	closeOnce sync.Once
}

func listenControlSocket(addr string) (*controlSocket, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	log.Infof("Listening for commands on %s", ln.Addr())
	s := &controlSocket{
		ln:    ln,
		conns: make(chan net.Conn),
		done:  make(chan struct{}),
	}
	go s.acceptLoop()
	return s, nil
}

func (s *controlSocket) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Warn("Error accepting control connection: ", err)
			time.Sleep(acceptRetryInterval)
			continue
		}
		select {
		case s.conns <- conn:
		case <-s.done:
			conn.Close()
			return
		}
	}
}

// Conns returns the channel ready connections are delivered on.
func (s *controlSocket) Conns() <-chan net.Conn {
	return s.conns
}

func (s *controlSocket) Addr() net.Addr {
	return s.ln.Addr()
}

func (s *controlSocket) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.ln.Close()
	})
	return err
}
