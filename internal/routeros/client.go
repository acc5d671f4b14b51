package routeros

import (
	"bufio"
	"context"
	"crypto/md5"
	"encoding/hex"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultDialTimeout = 5 * time.Second
	defaultIOTimeout   = 10 * time.Second
)

// Credentials holds the login identity for one device.
type Credentials struct {
	Username string
	Password string
}

// Sentence is one reply record: the leading reply word (!re, !done, !trap,
// !fatal) plus the flattened =key=value attribute words.
type Sentence struct {
	Word string
	Map  map[string]string
}

// Client is a single authenticated API session to one device. Sessions are
// not shared or pooled; the caller owns the lifetime and calls Close exactly
// when the poll cycle ends (Close is idempotent regardless).
type Client struct {
	addr      string
	conn      net.Conn
	rd        *bufio.Reader
	wr        *bufio.Writer
	ioTimeout time.Duration
	logger    zerolog.Logger

	mu        sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool
}

// Dial connects to a device and performs the login handshake. The context
// deadline bounds both the TCP connect and the handshake exchange.
func Dial(ctx context.Context, addr string, creds Credentials, logger zerolog.Logger) (*Client, error) {
	d := net.Dialer{Timeout: defaultDialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ConnError{Addr: addr, Err: err}
	}

	c := &Client{
		addr:      addr,
		conn:      conn,
		rd:        bufio.NewReader(conn),
		wr:        bufio.NewWriter(conn),
		ioTimeout: defaultIOTimeout,
		logger:    logger,
	}

	if err := c.login(ctx, creds); err != nil {
		c.Close()
		return nil, err
	}

	c.logger.Debug().Str("address", addr).Msg("session established")
	return c, nil
}

// login sends the post-6.43 plain login and falls back to the legacy MD5
// challenge-response when the device answers with =ret=.
func (c *Client) login(ctx context.Context, creds Credentials) error {
	replies, err := c.Run(ctx, "/login",
		"=name="+creds.Username,
		"=password="+creds.Password)
	if err != nil {
		if _, ok := err.(*DeviceError); ok {
			return ErrAuth
		}
		return err
	}

	for _, s := range replies {
		if ret, ok := s.Map["ret"]; ok && ret != "" {
			return c.challengeLogin(ctx, creds, ret)
		}
	}
	return nil
}

func (c *Client) challengeLogin(ctx context.Context, creds Credentials, challenge string) error {
	chal, err := hex.DecodeString(challenge)
	if err != nil {
		return &ProtocolError{Reason: "bad login challenge"}
	}

	h := md5.New()
	h.Write([]byte{0})
	h.Write([]byte(creds.Password))
	h.Write(chal)
	response := "00" + hex.EncodeToString(h.Sum(nil))

	_, err = c.Run(ctx, "/login",
		"=name="+creds.Username,
		"=response="+response)
	if err != nil {
		if _, ok := err.(*DeviceError); ok {
			return ErrAuth
		}
		return err
	}
	return nil
}

// Run writes one command sentence and collects all reply records until the
// terminal !done. A !trap reply surfaces as *DeviceError after the stream is
// drained; !fatal tears the session down.
func (c *Client) Run(ctx context.Context, words ...string) ([]Sentence, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return nil, ErrClosed
	}

	deadline := time.Now().Add(c.ioTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, &ConnError{Addr: c.addr, Err: err}
	}

	if err := writeSentence(c.wr, words); err != nil {
		return nil, &ConnError{Addr: c.addr, Err: err}
	}

	var records []Sentence
	var trap *DeviceError

	for {
		raw, err := readSentence(c.rd)
		if err != nil {
			if pe, ok := err.(*ProtocolError); ok {
				return nil, pe
			}
			return nil, &ConnError{Addr: c.addr, Err: err}
		}
		if len(raw) == 0 {
			continue
		}

		s := parseSentence(raw)
		switch s.Word {
		case "!re":
			records = append(records, s)
		case "!trap":
			trap = &DeviceError{Message: s.Map["message"]}
		case "!fatal":
			msg := "fatal reply"
			if len(raw) > 1 {
				msg = raw[1]
			}
			return nil, &ProtocolError{Reason: msg}
		case "!done":
			if trap != nil {
				return records, trap
			}
			// A !done can itself carry attributes (login =ret=).
			if len(s.Map) > 0 {
				records = append(records, s)
			}
			return records, nil
		default:
			return nil, &ProtocolError{Reason: "unexpected reply word " + s.Word}
		}
	}
}

// parseSentence splits a raw reply into its reply word and attribute map.
func parseSentence(raw []string) Sentence {
	s := Sentence{Word: raw[0], Map: make(map[string]string)}
	for _, word := range raw[1:] {
		if strings.HasPrefix(word, "=") {
			if i := strings.Index(word[1:], "="); i >= 0 {
				s.Map[word[1:i+1]] = word[i+2:]
			}
			continue
		}
		if strings.HasPrefix(word, ".tag=") {
			s.Map[".tag"] = word[len(".tag="):]
		}
	}
	return s
}

// Close releases the underlying connection. Safe to call multiple times.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		err = c.conn.Close()
	})
	return err
}
