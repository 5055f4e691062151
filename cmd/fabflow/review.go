package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/smallnest/fabflow/fab"
	"github.com/smallnest/fabflow/server"
)

var (
	nodeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#2196F3")).Bold(true)
	reviewStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#FFC107")).
			Padding(0, 1)
	answerStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("#8BC34A")).
			Padding(0, 1)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#e53935")).Bold(true)
	mutedStyle = lipgloss.NewStyle().Faint(true)
)

var reviewCmd = &cobra.Command{
	Use:   "review <server-url> <request>",
	Short: "Run an inspection request and review the proposal in the terminal",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newReviewClient(args[0], http.DefaultClient, cmd.InOrStdin(), cmd.OutOrStdout())
		return c.run(cmd.Context(), args[1])
	},
}

func init() {
	rootCmd.AddCommand(reviewCmd)
}

// reviewClient drives one thread: start, answer every review, print the answer.
type reviewClient struct {
	base string
	http *http.Client
	in   *bufio.Reader
	out  io.Writer
}

// newReviewClient talks to the server at base, with or without a trailing slash.
func newReviewClient(base string, client *http.Client, in io.Reader, out io.Writer) *reviewClient {
	return &reviewClient{
		base: strings.TrimRight(base, "/"),
		http: client,
		in:   bufio.NewReader(in),
		out:  out,
	}
}

// runOutcome is what one stream produced.
type runOutcome struct {
	review *fab.ReviewRequest
	answer string
}

func (c *reviewClient) run(ctx context.Context, request string) error {
	threadID, err := c.createThread(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, mutedStyle.Render("thread "+threadID))

	body := map[string]any{"assistant_id": server.AssistantID, "input": map[string]string{"user_request": request}}
	for {
		res, err := c.stream(ctx, threadID, body)
		if err != nil {
			return err
		}
		if res.review == nil {
			if res.answer != "" {
				fmt.Fprintln(c.out, answerStyle.Render(res.answer))
			}
			return nil
		}

		fmt.Fprintln(c.out, reviewStyle.Render(res.review.Description))
		verdict, err := c.askVerdict()
		if err != nil {
			return err
		}
		body = map[string]any{"command": map[string]any{"resume": verdict}}
	}
}

func (c *reviewClient) createThread(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/threads", strings.NewReader("{}"))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("create thread: %s", resp.Status)
	}

	var out struct {
		ThreadID string `json:"thread_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	return out.ThreadID, nil
}

func (c *reviewClient) stream(ctx context.Context, threadID string, body any) (*runOutcome, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/threads/"+threadID+"/runs/stream", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stream: %s", resp.Status)
	}

	out := &runOutcome{}
	var event string
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			if err := c.handle(event, []byte(strings.TrimPrefix(line, "data: ")), out); err != nil {
				return nil, err
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *reviewClient) handle(event string, data []byte, out *runOutcome) error {
	switch event {
	case "error":
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &e)
		fmt.Fprintln(c.out, errorStyle.Render("error: "+e.Error))
		return errors.New(e.Error)

	case "updates":
		var updates map[string]json.RawMessage
		if err := json.Unmarshal(data, &updates); err != nil {
			return fmt.Errorf("decode update: %w", err)
		}
		for node, raw := range updates {
			if node == server.InterruptKey {
				var reviews []fab.ReviewRequest
				if err := json.Unmarshal(raw, &reviews); err != nil {
					return fmt.Errorf("decode review: %w", err)
				}
				if len(reviews) > 0 {
					out.review = &reviews[0]
				}
				continue
			}

			var st fab.State
			if err := json.Unmarshal(raw, &st); err != nil {
				return fmt.Errorf("decode %s update: %w", node, err)
			}
			fmt.Fprintln(c.out, nodeStyle.Render("▸ "+node))
			if st.FinalAnswer != nil {
				out.answer = *st.FinalAnswer
			}
		}
	}
	return nil
}

// askVerdict reads a verdict from the terminal: a(pprove), e(dit) or r(eject).
func (c *reviewClient) askVerdict() (map[string]any, error) {
	for {
		choice, err := c.prompt("[a]pprove / [e]dit / [r]eject > ")
		if err != nil {
			return nil, err
		}
		switch strings.ToLower(choice) {
		case "a", "approve", "":
			return map[string]any{"type": string(fab.VerdictApprove)}, nil
		case "e", "edit":
			process, err := c.prompt("process (photo/etch/deposition) > ")
			if err != nil {
				return nil, err
			}
			if _, perr := fab.ParseChoice(process); perr != nil {
				fmt.Fprintln(c.out, errorStyle.Render(perr.Error()))
				continue
			}
			reason, err := c.prompt("reason > ")
			if err != nil {
				return nil, err
			}
			edit := map[string]string{"process": process}
			if reason != "" {
				edit["reason"] = reason
			}
			return map[string]any{"type": string(fab.VerdictEdit), "args": edit}, nil
		case "r", "reject":
			message, err := c.prompt("message > ")
			if err != nil {
				return nil, err
			}
			return map[string]any{"type": string(fab.VerdictReject), "message": message}, nil
		default:
			fmt.Fprintln(c.out, errorStyle.Render("unknown choice "+choice))
		}
	}
}

func (c *reviewClient) prompt(label string) (string, error) {
	fmt.Fprint(c.out, label)
	line, err := c.in.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
