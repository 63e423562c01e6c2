package redis

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/saaga0h/jeeves-climate/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// respServer speaks just enough RESP2 for PING and MULTI/EXEC and records
// every command it receives
type respServer struct {
	ln   net.Listener
	mu   sync.Mutex
	cmds [][]string
}

func startRESP(t *testing.T) *respServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &respServer{ln: ln}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go s.serve(conn)
		}
	}()
	return s
}

func (s *respServer) config() *config.Config {
	cfg := config.NewConfig()
	addr := s.ln.Addr().(*net.TCPAddr)
	cfg.RedisHost = addr.IP.String()
	cfg.RedisPort = addr.Port
	return cfg
}

// commandNames lists the received commands, leaving out the connection handshake
func (s *respServer) commandNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var names []string
	for _, c := range s.cmds {
		name := strings.ToUpper(c[0])
		if name == "HELLO" || name == "CLIENT" {
			continue
		}
		names = append(names, name)
	}
	return names
}

func (s *respServer) serve(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)

	inTx := false
	var queued int
	for {
		args, err := readCommand(r)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.cmds = append(s.cmds, args)
		s.mu.Unlock()

		var reply string
		switch name := strings.ToUpper(args[0]); {
		case name == "PING":
			reply = "+PONG\r\n"
		case name == "MULTI":
			inTx, queued = true, 0
			reply = "+OK\r\n"
		case name == "EXEC":
			reply = fmt.Sprintf("*%d\r\n", queued) + strings.Repeat(":1\r\n", queued)
			inTx = false
		case inTx:
			queued++
			reply = "+QUEUED\r\n"
		default:
			reply = "-ERR unknown command\r\n"
		}
		if _, err := conn.Write([]byte(reply)); err != nil {
			return
		}
	}
}

func readCommand(r *bufio.Reader) ([]string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(line[1:]))
	if err != nil {
		return nil, err
	}

	args := make([]string, 0, n)
	for i := 0; i < n; i++ {
		hdr, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		size, err := strconv.Atoi(strings.TrimSpace(hdr[1:]))
		if err != nil {
			return nil, err
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		args = append(args, string(buf[:size]))
	}
	return args, nil
}

func TestPing_QuietAtInfo(t *testing.T) {
	srv := startRESP(t)
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	client := NewClient(srv.config(), logger)
	defer client.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, client.Ping(context.Background()))
	}
	assert.Empty(t, buf.String(), "health checks ping often")
}

func TestReplaceHash_OneTransaction(t *testing.T) {
	srv := startRESP(t)
	client := NewClient(srv.config(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer client.Close()

	err := client.ReplaceHash(context.Background(), "state:binary_sensor.window",
		map[string]interface{}{"state": "off"}, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, []string{"MULTI", "DEL", "HSET", "EXPIRE", "EXEC"}, srv.commandNames())
}

func TestReplaceHash_NoTTL(t *testing.T) {
	srv := startRESP(t)
	client := NewClient(srv.config(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer client.Close()

	require.NoError(t, client.ReplaceHash(context.Background(), "state:sensor.x",
		map[string]interface{}{"state": "1"}, 0))

	assert.Equal(t, []string{"MULTI", "DEL", "HSET", "EXEC"}, srv.commandNames())
}
