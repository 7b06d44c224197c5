package transport

// ssh.go - chat over SSH.
//
// Any SSH client can join with `ssh -p <port> <name>@host`.  Names are
// unauthenticated claims in chat, so the server accepts every client
// without authentication; the SSH user name is ignored and the chat
// login prompt still runs.  One SSH connection carries one chat
// session: the first "session" channel that requests a shell.

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/term"

	ncerr "chatd/internal/errors"
	"chatd/util"
)

const sshHandshakeTimeout = 10 * time.Second

// SSHListener accepts chat clients over SSH.
type SSHListener struct {
	ln     net.Listener
	config *ssh.ServerConfig
	logger *util.Logger
	q      queue
	once   sync.Once
}

// ListenSSH opens an SSH listener on addr.  hostKeyPath names a PEM
// private key; when empty an ephemeral ed25519 key is generated.
func ListenSSH(addr, hostKeyPath string, logger *util.Logger) (*SSHListener, error) {
	signer, err := loadHostKey(hostKeyPath)
	if err != nil {
		return nil, err
	}
	config := &ssh.ServerConfig{
		NoClientAuth:  true,
		ServerVersion: "SSH-2.0-chatd",
	}
	config.AddHostKey(signer)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, ncerr.Wrap("listen", addr, err)
	}
	logger.Verbose("ssh host key %s %s", signer.PublicKey().Type(),
		ssh.FingerprintSHA256(signer.PublicKey()))

	l := &SSHListener{ln: ln, config: config, logger: logger, q: newQueue()}
	go l.acceptLoop()
	return l, nil
}

func loadHostKey(path string) (ssh.Signer, error) {
	if path == "" {
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generating host key: %w", err)
		}
		return ssh.NewSignerFromKey(priv)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ncerr.ConfigError{Field: "ssh-host-key", Value: path, Message: err.Error()}
	}
	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		return nil, &ncerr.ConfigError{
			Field: "ssh-host-key", Value: path,
			Message: err.Error(),
			Hint:    "generate one with: ssh-keygen -t ed25519 -N '' -f chatd_host_key",
		}
	}
	return signer, nil
}

// Accept waits for the next SSH chat session.
func (l *SSHListener) Accept(ctx context.Context) (Conn, error) {
	c, err := l.q.accept(ctx)
	if err != nil {
		return nil, ncerr.Wrap("accept", l.ln.Addr().String(), err)
	}
	return c, nil
}

// Close stops accepting; established sessions are unaffected.
func (l *SSHListener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.q.done)
		err = l.ln.Close()
	})
	return err
}

// Addr returns the bound address.
func (l *SSHListener) Addr() net.Addr { return l.ln.Addr() }

// Name implements Listener.
func (l *SSHListener) Name() string { return "ssh" }

func (l *SSHListener) acceptLoop() {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if !ncerr.IsClosed(err) {
				l.logger.Error("ssh accept: %v", err)
			}
			return
		}
		go l.handshake(conn)
	}
}

func (l *SSHListener) handshake(conn net.Conn) {
	log := l.logger.WithFields(util.Fields{"remote": conn.RemoteAddr().String()})

	conn.SetDeadline(time.Now().Add(sshHandshakeTimeout)) //nolint:errcheck
	server, chans, reqs, err := ssh.NewServerConn(conn, l.config)
	if err != nil {
		log.Verbose("ssh handshake failed: %v", err)
		conn.Close()
		return
	}
	conn.SetDeadline(time.Time{}) //nolint:errcheck
	go ssh.DiscardRequests(reqs)

	claimed := false
	for newCh := range chans {
		if newCh.ChannelType() != "session" || claimed {
			newCh.Reject(ssh.UnknownChannelType, "only one chat session per connection") //nolint:errcheck
			continue
		}
		ch, chReqs, err := newCh.Accept()
		if err != nil {
			log.Verbose("ssh channel accept: %v", err)
			continue
		}
		claimed = true
		go l.serveRequests(server, ch, chReqs)
	}
}

// serveRequests answers the channel's setup requests and hands the
// session to Accept once the client asks for a shell.
func (l *SSHListener) serveRequests(server *ssh.ServerConn, ch ssh.Channel, reqs <-chan *ssh.Request) {
	pty := false
	started := false
	for req := range reqs {
		ok := false
		switch req.Type {
		case "pty-req":
			pty, ok = true, true
		case "window-change", "env":
			ok = true
		case "shell":
			if !started {
				started, ok = true, true
				conn := newSSHConn(server, ch, pty)
				go l.q.push(conn)
			}
		}
		if req.WantReply {
			req.Reply(ok, nil) //nolint:errcheck
		}
	}
}

// ── sshConn ──────────────────────────────────────────────────────────

type readResult struct {
	data []byte
	err  error
}

// sshConn adapts an SSH session channel to Conn.  Channels have no
// deadlines of their own, so reads go through a pump goroutine and
// deadlines are enforced with timers; an expired write deadline closes
// the whole SSH connection.
type sshConn struct {
	server *ssh.ServerConn
	ch     ssh.Channel
	out    io.Writer

	reads   chan readResult
	pending []byte

	mu            sync.Mutex
	readDeadline  time.Time
	deadlineMoved chan struct{}
	writeDeadline time.Time

	closed    chan struct{}
	closeOnce sync.Once
}

func newSSHConn(server *ssh.ServerConn, ch ssh.Channel, pty bool) *sshConn {
	c := &sshConn{
		server:        server,
		ch:            ch,
		out:           ch,
		reads:         make(chan readResult),
		deadlineMoved: make(chan struct{}),
		closed:        make(chan struct{}),
	}
	if pty {
		// The client's terminal is in raw mode: echo, line editing and
		// CRLF translation happen here.
		t := term.NewTerminal(ch, "")
		c.out = t
		go c.pump(func() ([]byte, error) {
			line, err := t.ReadLine()
			if err != nil {
				return nil, err
			}
			return []byte(line + "\n"), nil
		})
	} else {
		go c.pump(func() ([]byte, error) {
			buf := make([]byte, util.DefaultBufSize)
			n, err := ch.Read(buf)
			return buf[:n], err
		})
	}
	return c
}

func (c *sshConn) pump(next func() ([]byte, error)) {
	for {
		data, err := next()
		if len(data) > 0 {
			select {
			case c.reads <- readResult{data: data}:
			case <-c.closed:
				return
			}
		}
		if err != nil {
			select {
			case c.reads <- readResult{err: err}:
			case <-c.closed:
			}
			return
		}
	}
}

func (c *sshConn) Read(p []byte) (int, error) {
	if len(c.pending) > 0 {
		n := copy(p, c.pending)
		c.pending = c.pending[n:]
		return n, nil
	}
	for {
		c.mu.Lock()
		deadline, moved := c.readDeadline, c.deadlineMoved
		c.mu.Unlock()

		var (
			timer   *time.Timer
			expired <-chan time.Time
		)
		if !deadline.IsZero() {
			wait := time.Until(deadline)
			if wait <= 0 {
				return 0, os.ErrDeadlineExceeded
			}
			timer = time.NewTimer(wait)
			expired = timer.C
		}

		n, again, err := c.await(p, expired, moved)
		if timer != nil {
			timer.Stop()
		}
		if !again {
			return n, err
		}
	}
}

// await blocks for the next pumped chunk.  again is true when the read
// deadline moved and the caller must re-arm its timer.
func (c *sshConn) await(p []byte, expired <-chan time.Time, moved <-chan struct{}) (n int, again bool, err error) {
	select {
	case r := <-c.reads:
		if r.err != nil {
			return 0, false, r.err
		}
		n = copy(p, r.data)
		c.pending = r.data[n:]
		return n, false, nil
	case <-expired:
		return 0, false, os.ErrDeadlineExceeded
	case <-moved:
		return 0, true, nil
	case <-c.closed:
		return 0, false, net.ErrClosed
	}
}

func (c *sshConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	deadline := c.writeDeadline
	c.mu.Unlock()

	if !deadline.IsZero() {
		wait := time.Until(deadline)
		if wait <= 0 {
			return 0, os.ErrDeadlineExceeded
		}
		var timedOut bool
		var tmu sync.Mutex
		timer := time.AfterFunc(wait, func() {
			tmu.Lock()
			timedOut = true
			tmu.Unlock()
			c.server.Close()
		})
		n, err := c.out.Write(p)
		timer.Stop()
		tmu.Lock()
		defer tmu.Unlock()
		if timedOut {
			return n, os.ErrDeadlineExceeded
		}
		return n, err
	}
	return c.out.Write(p)
}

func (c *sshConn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	c.readDeadline = t
	close(c.deadlineMoved)
	c.deadlineMoved = make(chan struct{})
	c.mu.Unlock()
	return nil
}

func (c *sshConn) SetWriteDeadline(t time.Time) error {
	c.mu.Lock()
	c.writeDeadline = t
	c.mu.Unlock()
	return nil
}

func (c *sshConn) RemoteAddr() net.Addr { return c.server.RemoteAddr() }

// Close ends the chat session and the SSH connection carrying it.
func (c *sshConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		c.ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{0})) //nolint:errcheck
		c.ch.Close()
		err = c.server.Close()
	})
	return err
}
