package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/urfave/cli/v2"

	"github.com/cortexchat/internal/conversation"
	"github.com/cortexchat/internal/pipeline"
)

const chatHelp = `Type a question about your data and press enter.
Commands:
  /clear   start a new conversation
  /trace   show every request sent so far
  /quit    leave`

// ChatCommand returns the interactive chat command
func ChatCommand() *cli.Command {
	return &cli.Command{
		Name:   "chat",
		Usage:  "Start an interactive conversation with your data",
		Action: runChat,
	}
}

func runChat(c *cli.Context) error {
	s, err := newSession(c)
	if err != nil {
		return err
	}
	defer s.Close()

	out := c.App.Writer
	p := newPrinter(out, false)
	unsubscribe := s.orch.State().Subscribe(p.handle)
	defer unsubscribe()

	fmt.Fprintln(out, dimStyle.Render(chatHelp))
	fmt.Fprintln(out)

	scanner := bufio.NewScanner(c.App.Reader)
	for {
		fmt.Fprint(out, userStyle.Render("> "))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/help":
			fmt.Fprintln(out, dimStyle.Render(chatHelp))
			continue
		case "/clear", "/reset":
			if err := s.orch.Reset(); err != nil {
				fmt.Fprintln(out, errorStyle.Render(err.Error()))
				continue
			}
			fmt.Fprintln(out, dimStyle.Render("Started a new conversation."))
			continue
		case "/trace":
			fmt.Fprintln(out, renderTrace(s.orch.Recorder().Entries(), s.cfg.Snowflake.Token))
			continue
		}

		// failures are already in the conversation and on screen
		err := s.orch.Submit(c.Context, line)
		if errors.Is(err, pipeline.ErrBusy) || errors.Is(err, pipeline.ErrEmptyInput) {
			fmt.Fprintln(out, errorStyle.Render(err.Error()))
		}
	}
}

// printer renders conversation events to a terminal as they happen. The
// streaming summary is printed incrementally on a single line.
type printer struct {
	mu        sync.Mutex
	w         io.Writer
	echoUser  bool
	streamID  string
	streamLen int
}

func newPrinter(w io.Writer, echoUser bool) *printer {
	return &printer{w: w, echoUser: echoUser}
}

func (p *printer) handle(ev conversation.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch ev.Type {
	case conversation.EventMessageAppended:
		p.endStream()
		m := *ev.Message
		if m.Role == conversation.RoleUser && !p.echoUser {
			return
		}
		if m.Role == conversation.RoleAssistant && m.Kind == conversation.KindText && m.Text == "" {
			p.streamID = m.ID
			p.streamLen = 0
			fmt.Fprint(p.w, rolePrefix(m.Role))
			return
		}
		fmt.Fprintln(p.w, renderMessage(m))

	case conversation.EventMessageUpdated:
		m := *ev.Message
		if m.ID != p.streamID || len(m.Text) < p.streamLen {
			return
		}
		fmt.Fprint(p.w, m.Text[p.streamLen:])
		p.streamLen = len(m.Text)

	case conversation.EventPhaseChanged:
		p.endStream()
		if ev.Phase.Busy() {
			fmt.Fprintln(p.w, dimStyle.Render(ev.Phase.Label()+"..."))
		}
	}
}

func (p *printer) endStream() {
	if p.streamID == "" {
		return
	}
	fmt.Fprintln(p.w)
	p.streamID = ""
	p.streamLen = 0
}
