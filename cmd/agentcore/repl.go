package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/youssefsiam38/agentcore"
	"github.com/youssefsiam38/agentcore/history"
	"github.com/youssefsiam38/agentcore/metrics"
	"github.com/youssefsiam38/agentcore/storage"
	"github.com/youssefsiam38/agentcore/streaming"
)

const replHelp = `Commands:
  /status                       queue, request, history and tool counters
  /history [view] [n]           last n entries (view: curated or comprehensive)
  /search <text>                search earlier messages
  /ask <question>               ask a fresh assistant, outside this conversation
  /archive [n]                  last n archived entries
  /archive show <id>...         archived entries by id
  /archive purge                delete this session's archive
  /export [json|text|html]      print the curated history
  /compress                     compress the history now
  /clear                        forget the conversation
  /metrics                      dump the metrics registry
  /quit                         exit`

type repl struct {
	client  *agentcore.Client
	metrics *metrics.Registry
	out     io.Writer
}

func newREPL(client *agentcore.Client, reg *metrics.Registry, out io.Writer) *repl {
	return &repl{client: client, metrics: reg, out: out}
}

var errQuit = errors.New("quit")

func (r *repl) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		fmt.Fprint(r.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		err := r.handle(ctx, line)
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(r.out, "error: %v\n", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (r *repl) handle(ctx context.Context, line string) error {
	if !strings.HasPrefix(line, "/") {
		return r.chat(ctx, line)
	}

	cmd, rest, _ := strings.Cut(line[1:], " ")
	args := strings.Fields(rest)
	switch cmd {
	case "quit", "exit":
		return errQuit
	case "help":
		fmt.Fprintln(r.out, replHelp)
	case "status":
		r.status()
	case "history":
		return r.history(args)
	case "search":
		return r.search(ctx, strings.TrimSpace(rest))
	case "ask":
		return r.ask(ctx, strings.TrimSpace(rest))
	case "archive":
		return r.archive(ctx, args)
	case "export":
		return r.export(args)
	case "compress":
		out := r.client.Compress(ctx, true)
		fmt.Fprintf(r.out, "%s: %d -> %d messages, ratio %.2f\n",
			out.Status, out.OriginalMessages, out.CompressedMessages, out.Ratio)
		if out.Err != nil {
			fmt.Fprintf(r.out, "  %v\n", out.Err)
		}
	case "clear":
		fmt.Fprintf(r.out, "removed %d entries\n", r.client.ClearHistory(false))
	case "metrics":
		fmt.Fprint(r.out, r.metrics.Render())
	default:
		return fmt.Errorf("unknown command /%s, try /help", cmd)
	}
	return nil
}

// chat streams the reply as it arrives.
func (r *repl) chat(ctx context.Context, line string) error {
	streamed := false
	resp, err := r.client.ChatStream(ctx, line, func(e streaming.Event) {
		if d, ok := e.(*streaming.TextDeltaEvent); ok {
			fmt.Fprint(r.out, d.Delta)
			streamed = true
		}
	})
	if err != nil {
		if streamed {
			fmt.Fprintln(r.out)
		}
		return err
	}
	if !streamed {
		fmt.Fprint(r.out, resp.Text())
	}
	fmt.Fprintln(r.out)
	return nil
}

func (r *repl) status() {
	st := r.client.Status()
	fmt.Fprintf(r.out, "session   %s\n", st.SessionID)
	fmt.Fprintf(r.out, "queue     %d queued, %d active, %d/%d rate slots free\n",
		st.Queue.Queued, st.Queue.Active, st.Queue.RateRemaining, st.Queue.RateLimit)
	fmt.Fprintf(r.out, "requests  %d submitted, %d completed, %d failed, %d timed out, %d retried\n",
		st.Requests.Submitted, st.Requests.Completed, st.Requests.Failed, st.Requests.TimedOut, st.Requests.Retried)
	fmt.Fprintf(r.out, "history   %d entries, %d curated, %d compressed\n",
		st.History.Total, st.History.Curated, st.History.Compressed)
	fmt.Fprintf(r.out, "context   %d / %d estimated tokens\n", st.ContextTokens, st.TokenThreshold)
	fmt.Fprintf(r.out, "tools     %d scheduled, %d succeeded, %d failed\n",
		st.Tools.Scheduled, st.Tools.Succeeded, st.Tools.Failed)
	if st.LastCompaction != nil {
		fmt.Fprintf(r.out, "compacted %s, ratio %.2f\n", st.LastCompaction.Status, st.LastCompaction.Ratio)
	}
}

func (r *repl) history(args []string) error {
	view, limit := history.ViewCurated, 10
	for _, a := range args {
		if n, err := strconv.Atoi(a); err == nil {
			limit = n
			continue
		}
		v, err := history.ParseView(a)
		if err != nil {
			return err
		}
		view = v
	}
	for _, e := range r.client.History(view, limit) {
		fmt.Fprintf(r.out, "%s  %-9s %-7s %s\n",
			e.Metadata.Timestamp.Format("15:04:05"),
			e.Message.Role.Label(),
			e.Metadata.ValidationStatus,
			oneLine(e.Message.Text(), 80),
		)
	}
	return nil
}

func (r *repl) search(ctx context.Context, query string) error {
	if query == "" {
		return errors.New("usage: /search <text>")
	}
	args, err := json.Marshal(map[string]any{"query": query})
	if err != nil {
		return err
	}
	res, err := r.client.RunTool(ctx, "search_history", args)
	if err != nil {
		return err
	}
	fmt.Fprintln(r.out, res.Output)
	return nil
}

func (r *repl) ask(ctx context.Context, question string) error {
	if question == "" {
		return errors.New("usage: /ask <question>")
	}
	args, err := json.Marshal(map[string]any{"task": question})
	if err != nil {
		return err
	}
	res, err := r.client.RunTool(ctx, consultTool, args)
	if err != nil {
		return err
	}
	if res.Err != nil {
		return res.Err
	}
	fmt.Fprintln(r.out, res.Output)
	return nil
}

func (r *repl) archive(ctx context.Context, args []string) error {
	if len(args) > 0 && args[0] == "purge" {
		n, err := r.client.PurgeArchive(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "purged %d archived entries\n", n)
		return nil
	}

	var recs []storage.Record
	var err error
	switch {
	case len(args) > 0 && args[0] == "show":
		if len(args) == 1 {
			return errors.New("usage: /archive show <id>...")
		}
		recs, err = r.client.LookupArchived(ctx, args[1:]...)
	default:
		limit := 10
		if len(args) > 0 {
			if limit, err = strconv.Atoi(args[0]); err != nil {
				return fmt.Errorf("usage: /archive [n]: %w", err)
			}
		}
		recs, err = r.client.Archived(ctx, limit)
	}
	if err != nil {
		return err
	}

	if len(recs) == 0 {
		fmt.Fprintln(r.out, "no archived entries")
		return nil
	}
	for _, rec := range recs {
		fmt.Fprintf(r.out, "%4d  %s  %-9s %s\n",
			rec.Position,
			rec.Entry.ID,
			rec.Entry.Message.Role.Label(),
			oneLine(rec.Entry.Message.Text(), 60),
		)
	}
	return nil
}

func (r *repl) export(args []string) error {
	name := "text"
	if len(args) > 0 {
		name = args[0]
	}
	format, err := history.ParseFormat(name)
	if err != nil {
		return err
	}
	data, err := r.client.Export(history.ViewCurated, format)
	if err != nil {
		return err
	}
	fmt.Fprintln(r.out, string(data))
	return nil
}

func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}
