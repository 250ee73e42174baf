package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chzyer/readline"
)

// shell is the interactive command loop.
type shell struct {
	baseURL  string
	clientID string
	rl       *readline.Instance
	client   *http.Client

	// Streaming state
	streamCancel context.CancelFunc
}

func newShell(baseURL, clientID string) (*shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "pulsewire> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	return &shell{
		baseURL:  strings.TrimRight(baseURL, "/"),
		clientID: clientID,
		rl:       rl,
		client:   &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// Close stops streaming and releases the terminal.
func (s *shell) Close() {
	if s.streamCancel != nil {
		s.streamCancel()
	}
	_ = s.rl.Close()
}

// Run starts the interactive command loop.
func (s *shell) Run() {
	s.printHelp()

	for {
		line, err := s.rl.Readline()
		if err != nil { // io.EOF or readline.ErrInterrupt
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			s.printHelp()

		case "tail":
			s.cmdTail(args)

		case "stop":
			s.cmdStop()

		case "sub":
			s.cmdTopic(args, "subscribe")

		case "unsub":
			s.cmdTopic(args, "unsubscribe")

		case "subscribe":
			s.cmdSubscribe(args)

		case "subs":
			s.cmdSubs()

		case "publish":
			s.cmdPublish(args)

		case "stats":
			s.cmdStats()

		case "exit", "quit", "q":
			return

		default:
			fmt.Fprintf(s.rl.Stdout(), "unknown command: %s (try 'help')\n", cmd)
		}
	}
}

func (s *shell) printHelp() {
	fmt.Fprint(s.rl.Stdout(), `Commands:
  tail [topics]            open the event stream (comma-separated topics)
  stop                     close the event stream
  sub <topic>              subscribe the connection to a topic
  unsub <topic>            unsubscribe the connection from a topic
  subscribe <kind> [k=v..] create a filtered subscription
  subs                     list this client's subscriptions
  publish <kind> [topic] [k=v..]  broadcast an event
  stats                    show server stats
  exit                     quit
`)
}

// cmdTail opens the SSE stream and prints frames until stopped.
func (s *shell) cmdTail(args []string) {
	if s.streamCancel != nil {
		fmt.Fprintln(s.rl.Stdout(), "stream already open (use 'stop' first)")
		return
	}

	q := url.Values{"client_id": {s.clientID}}
	if len(args) > 0 {
		q.Set("topics", args[0])
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.streamCancel = cancel

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/v1/events?"+q.Encode(), nil)
	if err != nil {
		cancel()
		s.streamCancel = nil
		fmt.Fprintf(s.rl.Stderr(), "stream: %v\n", err)
		return
	}

	// No client timeout on the streaming request itself.
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		cancel()
		s.streamCancel = nil
		fmt.Fprintf(s.rl.Stderr(), "stream: %v\n", err)
		return
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()
		s.streamCancel = nil
		fmt.Fprintf(s.rl.Stderr(), "stream: %s: %s\n", resp.Status, strings.TrimSpace(string(body)))
		return
	}

	fmt.Fprintln(s.rl.Stdout(), "stream open")

	go func() {
		defer resp.Body.Close()
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" || strings.HasPrefix(line, ":") {
				continue
			}
			fmt.Fprintf(s.rl.Stdout(), "  %s\n", line)
		}
		fmt.Fprintln(s.rl.Stdout(), "stream closed")
	}()
}

func (s *shell) cmdStop() {
	if s.streamCancel == nil {
		fmt.Fprintln(s.rl.Stdout(), "no open stream")
		return
	}
	s.streamCancel()
	s.streamCancel = nil
}

func (s *shell) cmdTopic(args []string, action string) {
	if len(args) != 1 {
		fmt.Fprintf(s.rl.Stdout(), "usage: %s <topic>\n", map[string]string{"subscribe": "sub", "unsubscribe": "unsub"}[action])
		return
	}

	s.postJSON("/v1/topics", map[string]string{
		"clientId": s.clientID,
		"topic":    args[0],
		"action":   action,
	})
}

func (s *shell) cmdSubscribe(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.rl.Stdout(), "usage: subscribe <kind> [filterKey=value ...]")
		return
	}

	body := map[string]any{
		"clientId": s.clientID,
		"kind":     args[0],
	}
	if metadata := parsePairs(args[1:]); len(metadata) > 0 {
		body["filter"] = map[string]any{"metadata": metadata}
	}

	s.postJSON("/v1/subscriptions", body)
}

func (s *shell) cmdSubs() {
	s.getJSON("/v1/subscriptions?client_id=" + url.QueryEscape(s.clientID))
}

func (s *shell) cmdPublish(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.rl.Stdout(), "usage: publish <kind> [topic] [dataKey=value ...]")
		return
	}

	body := map[string]any{"kind": args[0]}
	rest := args[1:]
	if len(rest) > 0 && !strings.Contains(rest[0], "=") {
		body["topic"] = rest[0]
		rest = rest[1:]
	}
	if data := parsePairs(rest); len(data) > 0 {
		body["data"] = data
	}

	s.postJSON("/v1/admin/broadcast", body)
}

func (s *shell) cmdStats() {
	s.getJSON("/v1/admin/stats")
}

func (s *shell) postJSON(path string, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		fmt.Fprintf(s.rl.Stderr(), "encode: %v\n", err)
		return
	}

	resp, err := s.client.Post(s.baseURL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		fmt.Fprintf(s.rl.Stderr(), "request: %v\n", err)
		return
	}
	s.printResponse(resp)
}

func (s *shell) getJSON(path string) {
	resp, err := s.client.Get(s.baseURL + path)
	if err != nil {
		fmt.Fprintf(s.rl.Stderr(), "request: %v\n", err)
		return
	}
	s.printResponse(resp)
}

func (s *shell) printResponse(resp *http.Response) {
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	var pretty bytes.Buffer
	if json.Indent(&pretty, body, "  ", "  ") == nil {
		fmt.Fprintf(s.rl.Stdout(), "[%d]  %s\n", resp.StatusCode, pretty.String())
	} else {
		fmt.Fprintf(s.rl.Stdout(), "[%d]  %s\n", resp.StatusCode, strings.TrimSpace(string(body)))
	}
}

// parsePairs converts key=value arguments into a map.
func parsePairs(args []string) map[string]string {
	out := make(map[string]string)
	for _, arg := range args {
		if k, v, ok := strings.Cut(arg, "="); ok && k != "" {
			out[k] = v
		}
	}
	return out
}
