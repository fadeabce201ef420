package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/barnabee/barnabee/internal/application/usecase"
	"github.com/barnabee/barnabee/internal/domain/entity"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// REPL is a line-oriented console against the request pipeline, for
// development without a voice front end.
type REPL struct {
	pipeline *usecase.ProcessRequestUseCase
	in       io.Reader
	out      io.Writer
	logger   *zap.Logger

	speaker        string
	room           string
	conversationID string
}

// New creates a REPL with a fresh conversation.
func New(pipeline *usecase.ProcessRequestUseCase, in io.Reader, out io.Writer, logger *zap.Logger) *REPL {
	return &REPL{
		pipeline:       pipeline,
		in:             in,
		out:            out,
		logger:         logger,
		speaker:        "dev",
		room:           "office",
		conversationID: uuid.New().String(),
	}
}

// Run reads lines until EOF or /quit. Lines starting with / are console
// commands; everything else goes through the pipeline.
func (r *REPL) Run(ctx context.Context) error {
	fmt.Fprintln(r.out, "Barnabee console. Type /help for commands.")
	scanner := bufio.NewScanner(r.in)

	for {
		fmt.Fprintf(r.out, "%s@%s> ", r.speaker, r.room)
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if done := r.command(line); done {
				return nil
			}
			continue
		}

		req := entity.NewRequest(line, r.speaker, r.room, r.conversationID)
		resp, err := r.pipeline.Execute(ctx, req)
		if err != nil {
			fmt.Fprintf(r.out, "! %v\n", err)
			continue
		}
		fmt.Fprintf(r.out, "%s  [%s/%s %dms]\n", resp.Text, resp.Intent, resp.Handler, resp.LatencyMS)
	}
}

// command handles one /-prefixed line. Returns true on /quit.
func (r *REPL) command(line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		fmt.Fprintln(r.out, "Bye.")
		return true
	case "/speaker":
		if len(fields) > 1 {
			r.speaker = fields[1]
		}
		fmt.Fprintf(r.out, "speaker = %s\n", r.speaker)
	case "/room":
		if len(fields) > 1 {
			r.room = fields[1]
		}
		fmt.Fprintf(r.out, "room = %s\n", r.room)
	case "/new":
		r.conversationID = uuid.New().String()
		fmt.Fprintf(r.out, "conversation = %s\n", r.conversationID)
	case "/help":
		fmt.Fprintln(r.out, "/speaker <name>  set the speaker identity")
		fmt.Fprintln(r.out, "/room <name>     set the room")
		fmt.Fprintln(r.out, "/new             start a fresh conversation")
		fmt.Fprintln(r.out, "/quit            leave")
	default:
		fmt.Fprintf(r.out, "unknown command %s\n", fields[0])
	}
	return false
}
