package watch

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattjoyce/lockstep/internal/events"
)

const pollInterval = 5 * time.Second

type eventMsg events.Event

type healthMsg struct {
	Status        string   `json:"status"`
	Owner         string   `json:"owner"`
	UptimeSeconds int64    `json:"uptime_seconds"`
	AssignedJobs  []string `json:"assigned_jobs"`
	LocksValid    int      `json:"locks_valid"`
	LocksExpired  int      `json:"locks_expired"`
}

type lockView struct {
	Job       string    `json:"job"`
	Owner     string    `json:"owner"`
	Fence     uint64    `json:"fence"`
	ExpiresAt time.Time `json:"expires_at"`
	Valid     bool      `json:"valid"`
}

type locksMsg struct {
	Owner string     `json:"owner"`
	Locks []lockView `json:"locks"`
}

type tickMsg time.Time

// pollErrMsg reports a failed poll of path so only that poll is retried.
type pollErrMsg struct {
	path string
	err  error
}

type sseDisconnectedMsg struct{ err error }
type reconnectMsg struct{}

// client talks to the lockstep API. Streaming requests use a client
// without a timeout.
type client struct {
	baseURL string
	apiKey  string
	poll    *http.Client
	stream  *http.Client
}

func newClient(baseURL, apiKey string) *client {
	return &client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		poll:    &http.Client{Timeout: 2 * time.Second},
		stream:  &http.Client{},
	}
}

func (c *client) newRequest(ctx context.Context, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

func (c *client) getJSON(path string, out any) error {
	req, err := c.newRequest(context.Background(), path)
	if err != nil {
		return err
	}
	resp, err := c.poll.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GET %s: %s: %s", path, resp.Status, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *client) fetchHealth() tea.Msg {
	var h healthMsg
	if err := c.getJSON("/healthz", &h); err != nil {
		return pollErrMsg{path: "/healthz", err: err}
	}
	return h
}

func (c *client) fetchLocks() tea.Msg {
	var l locksMsg
	if err := c.getJSON("/locks", &l); err != nil {
		return pollErrMsg{path: "/locks", err: err}
	}
	return l
}

func (c *client) fetch(path string) tea.Msg {
	if path == "/locks" {
		return c.fetchLocks()
	}
	return c.fetchHealth()
}

// subscribe follows /events and forwards every event to ch. It returns
// sseDisconnectedMsg once the stream ends.
func (c *client) subscribe(ch chan<- events.Event) tea.Cmd {
	return func() tea.Msg {
		req, err := c.newRequest(context.Background(), "/events")
		if err != nil {
			return sseDisconnectedMsg{err: err}
		}
		resp, err := c.stream.Do(req)
		if err != nil {
			return sseDisconnectedMsg{err: err}
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return sseDisconnectedMsg{err: fmt.Errorf("GET /events: %s", resp.Status)}
		}

		readSSE(resp.Body, ch)
		return sseDisconnectedMsg{}
	}
}

// readSSE parses an event stream until r is exhausted. Comment lines
// (keep-alives) are ignored.
func readSSE(r io.Reader, ch chan<- events.Event) {
	scanner := bufio.NewScanner(r)
	var data string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data == "" {
				continue
			}
			var ev events.Event
			if err := json.Unmarshal([]byte(data), &ev); err == nil {
				ch <- ev
			}
			data = ""
		case strings.HasPrefix(line, "data: "):
			data = line[len("data: "):]
		}
	}
}

func receiveNextEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-ch)
	}
}
