package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/antonkrylov/logwise/internal/agent"
	"github.com/antonkrylov/logwise/internal/history"
	"github.com/antonkrylov/logwise/internal/wire"
)

type HTTPAgent struct {
	addr string
	base string
	http *http.Client
}

func NewHTTP(addr string, timeout time.Duration) *HTTPAgent {
	base := strings.TrimRight(addr, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &HTTPAgent{addr: addr, base: base, http: &http.Client{Timeout: timeout}}
}

// runReply accepts both the result and the fault shape.
type runReply struct {
	ExitCode *int   `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	Cwd      string `json:"cwd"`
	Error    string `json:"error"`
}

func (a *HTTPAgent) Run(ctx context.Context, command string) agent.Result {
	body, _ := json.Marshal(map[string]string{"command": command})
	resp, err := a.do(ctx, http.MethodPost, "/run", bytes.NewReader(body))
	if err != nil {
		if isConnectionError(err) {
			return connectionFailure(a.addr)
		}
		return transportFailure(err)
	}
	defer resp.Body.Close()

	var reply runReply
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<20)).Decode(&reply); err != nil {
		return transportFailure(fmt.Errorf("%s: decode reply: %w", resp.Status, err))
	}
	res := agent.Result{ExitCode: -1, Stdout: reply.Stdout, Stderr: reply.Stderr, Cwd: reply.Cwd}
	if reply.ExitCode != nil {
		res.ExitCode = *reply.ExitCode
	}
	if res.Stderr == "" && reply.Error != "" {
		res.Stderr = reply.Error
	}
	if res.Cwd == "" {
		res.Cwd = "/"
	}
	return res
}

func (a *HTTPAgent) Status(ctx context.Context) (wire.Status, error) {
	var st wire.Status
	err := a.getJSON(ctx, http.MethodGet, "/healthz", &st)
	return st, err
}

func (a *HTTPAgent) Reset(ctx context.Context) (wire.Status, error) {
	var st wire.Status
	err := a.getJSON(ctx, http.MethodPost, "/reset", &st)
	return st, err
}

func (a *HTTPAgent) History(ctx context.Context, limit int) ([]history.Entry, error) {
	var entries []history.Entry
	err := a.getJSON(ctx, http.MethodGet, "/history?limit="+strconv.Itoa(limit), &entries)
	return entries, err
}

func (a *HTTPAgent) Close() error {
	a.http.CloseIdleConnections()
	return nil
}

func (a *HTTPAgent) getJSON(ctx context.Context, method, path string, out any) error {
	resp, err := a.do(ctx, method, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var fault struct {
			Error string `json:"error"`
		}
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if json.Unmarshal(b, &fault) == nil && fault.Error != "" {
			return fmt.Errorf("agent %s: %s", resp.Status, fault.Error)
		}
		return fmt.Errorf("agent %s: %s", resp.Status, strings.TrimSpace(string(b)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (a *HTTPAgent) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, a.base+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return a.http.Do(req)
}

func isConnectionError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		var dnsErr *net.DNSError
		return errors.As(urlErr.Err, &dnsErr)
	}
	return false
}
