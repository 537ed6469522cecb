package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"

	"github.com/traeumen927/chatGPT-sub000/pkg/chat"
	"github.com/traeumen927/chatGPT-sub000/pkg/conversation"
)

const replHelp = `Commands:
  /new              start a new conversation
  /load <id>        continue a saved conversation
  /list             list saved conversations
  /attach <path>    attach a file to the next message
  /model [name]     show or switch the model
  /help             show this help
  exit | quit       leave`

type repl struct {
	orch    *chat.Orchestrator
	app     *app
	out     io.Writer
	model   string
	stream  bool
	pending []chat.Attachment
}

func (r *repl) run(ctx context.Context) error {
	fmt.Fprintf(r.out, "%s interactive chat (type /help for commands)\n\n", appName)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          fmt.Sprintf("%s You: ", appName),
		HistoryFile:     filepath.Join(os.TempDir(), ".chatgpt_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(r.out, "Error initializing readline: %v\n", err)
		fmt.Fprintln(r.out, "Falling back to simple input mode...")
		return r.runSimple(ctx, os.Stdin)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				fmt.Fprintln(r.out, "\nGoodbye!")
				r.orch.Wait()
				return nil
			}
			return err
		}
		if quit := r.handleLine(ctx, line); quit {
			r.orch.Wait()
			return nil
		}
	}
}

func (r *repl) runSimple(ctx context.Context, in io.Reader) error {
	reader := bufio.NewReader(in)
	for {
		fmt.Fprintf(r.out, "%s You: ", appName)
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				fmt.Fprintln(r.out, "\nGoodbye!")
				r.orch.Wait()
				return nil
			}
			return err
		}
		if quit := r.handleLine(ctx, line); quit {
			r.orch.Wait()
			return nil
		}
	}
}

// handleLine runs one line of input and reports whether the loop should end.
func (r *repl) handleLine(ctx context.Context, line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return false
	}
	if input == "exit" || input == "quit" {
		fmt.Fprintln(r.out, "Goodbye!")
		return true
	}
	if strings.HasPrefix(input, "/") {
		if err := r.command(ctx, input); err != nil {
			fmt.Fprintf(r.out, "Error: %v\n\n", err)
		}
		return ctx.Err() != nil
	}
	if err := r.send(ctx, input); err != nil {
		fmt.Fprintf(r.out, "Error: %v\n\n", err)
	}
	return ctx.Err() != nil
}

func (r *repl) command(ctx context.Context, input string) error {
	name, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/help":
		fmt.Fprintln(r.out, replHelp)
	case "/new":
		r.pending = nil
		if err := r.orch.NewConversation(ctx); err != nil {
			return err
		}
		fmt.Fprintln(r.out, "Started a new conversation.")
	case "/load":
		if arg == "" {
			return fmt.Errorf("usage: /load <id>")
		}
		if err := r.orch.LoadConversation(ctx, arg); err != nil {
			return err
		}
		for _, m := range r.orch.Transcript() {
			r.printMessage(m)
		}
	case "/list":
		user, err := r.app.currentUser()
		if err != nil {
			return err
		}
		list, err := r.app.db.Conversations(user.UID).ListConversations(ctx)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Fprintln(r.out, "No conversations yet.")
		}
		for _, c := range list {
			fmt.Fprintf(r.out, "  %s  %s  %s\n", c.ID, c.Timestamp.Format("2006-01-02 15:04"), c.Title)
		}
	case "/attach":
		if arg == "" {
			return fmt.Errorf("usage: /attach <path>")
		}
		files, err := readAttachments([]string{arg})
		if err != nil {
			return err
		}
		r.pending = append(r.pending, files...)
		fmt.Fprintf(r.out, "Attached %s (%d pending)\n", files[0].Name, len(r.pending))
	case "/model":
		if arg == "" {
			current := r.model
			if current == "" {
				current = r.app.cfg.Chat.Model
			}
			fmt.Fprintf(r.out, "Model: %s\n", current)
			return nil
		}
		r.model = arg
		fmt.Fprintf(r.out, "Model set to %s\n", arg)
	default:
		return fmt.Errorf("unknown command %s (type /help)", name)
	}
	return nil
}

// send runs one turn, printing streamed chunks as they arrive.
func (r *repl) send(ctx context.Context, prompt string) error {
	req := chat.SendRequest{
		Prompt:      prompt,
		Attachments: r.pending,
		Model:       r.model,
		Stream:      r.stream,
	}
	r.pending = nil

	streamed := false
	fmt.Fprintf(r.out, "\n%s: ", appName)
	res, err := r.orch.Send(ctx, req, func(chunk string) {
		streamed = true
		fmt.Fprint(r.out, chunk)
	})
	if err != nil {
		fmt.Fprintln(r.out)
		return err
	}

	for _, uerr := range res.UploadErrors {
		fmt.Fprintf(r.out, "\n(upload skipped: %v)", uerr)
	}
	switch {
	case res.Failed():
		fmt.Fprintf(r.out, "\nError: %v\n\n", res.Err)
		return nil
	case !streamed:
		fmt.Fprint(r.out, res.Reply)
	}
	fmt.Fprintln(r.out)
	for _, u := range res.ImageURLs {
		fmt.Fprintf(r.out, "  %s\n", u)
	}
	fmt.Fprintln(r.out)
	return nil
}

func (r *repl) printMessage(m chat.Message) {
	who := "You"
	switch m.Role {
	case conversation.RoleAssistant:
		who = appName
	case conversation.RoleError:
		who = "Error"
	}
	fmt.Fprintf(r.out, "%s: %s\n", who, m.Text)
	for _, u := range m.URLs {
		fmt.Fprintf(r.out, "  %s\n", u)
	}
}

// readAttachments loads files from disk. The content type is taken from the
// extension when known and sniffed from the data otherwise.
func readAttachments(paths []string) ([]chat.Attachment, error) {
	out := make([]chat.Attachment, 0, len(paths))
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read attachment: %w", err)
		}
		out = append(out, chat.Attachment{
			Name:        filepath.Base(p),
			ContentType: mime.TypeByExtension(strings.ToLower(filepath.Ext(p))),
			Data:        data,
		})
	}
	return out, nil
}
