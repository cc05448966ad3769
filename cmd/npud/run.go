package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"npud/internal/manager"
	"npud/internal/session"
	"npud/pkg/types"
)

var (
	promptStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00D9FF"))
	statsStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#666680"))
	boxStyle    = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3d3d5c")).
			Padding(0, 1)
	errStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
)

const runHelp = `Commands:
  /clear                 forget the conversation
  /status                show model and context usage
  /set <param> <value>   change a sampling parameter
  /think                 toggle think mode
  /bye                   exit`

func newRunCmd(g *globalOpts) *cobra.Command {
	var driver string
	cmd := &cobra.Command{
		Use:   "run [model]",
		Short: "Chat with a model in the terminal",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("driver") {
				cfg.Driver = driver
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			log, err := g.logger(os.Stderr)
			if err != nil {
				return err
			}
			tag := cfg.DefaultModel
			if len(args) == 1 {
				tag = args[0]
			}
			progress := func(size int64) io.Writer {
				return progressbar.DefaultBytes(size, "loading weights")
			}
			mgr, err := buildManager(cfg, log, progress)
			if err != nil {
				return err
			}
			defer func() { _ = mgr.Unload() }()

			mdl, dur, err := mgr.EnsureModel(cmd.Context(), tag)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, statsStyle.Render(fmt.Sprintf("%s loaded in %s (%s)", mdl.ID, dur.Round(time.Millisecond), humanize.Bytes(uint64(mdl.Size)))))
			fmt.Fprintln(out, statsStyle.Render("Type /? for help."))
			r := &repl{mgr: mgr, tag: mdl.ID, in: cmd.InOrStdin(), out: out}
			return r.loop(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&driver, "driver", "", "Accelerator backend: xrt|sim")
	return cmd
}

// repl is the interactive prompt loop of `npud run`.
type repl struct {
	mgr *manager.Manager
	tag string
	in  io.Reader
	out io.Writer
}

func (r *repl) loop(ctx context.Context) error {
	sc := bufio.NewScanner(r.in)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		fmt.Fprint(r.out, promptStyle.Render(">>> "))
		if !sc.Scan() {
			fmt.Fprintln(r.out)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			done, err := r.command(ctx, line)
			if err != nil {
				fmt.Fprintln(r.out, errStyle.Render(err.Error()))
			}
			if done {
				return nil
			}
			continue
		}
		if err := r.generate(ctx, line); err != nil {
			fmt.Fprintln(r.out, errStyle.Render(err.Error()))
		}
	}
}

// generate runs one turn. Ctrl-C stops the turn, not the program.
func (r *repl) generate(ctx context.Context, prompt string) error {
	gctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	return r.mgr.Generate(gctx, types.GenerateRequest{Model: r.tag, Prompt: prompt}, &termWriter{out: r.out})
}

func (r *repl) command(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	sess := r.mgr.Session()
	switch fields[0] {
	case "/bye", "/exit":
		return true, nil
	case "/?", "/help":
		fmt.Fprintln(r.out, runHelp)
	case "/clear":
		release, err := r.mgr.Acquire(r.tag)
		if err != nil {
			return false, err
		}
		err = sess.ClearContext(ctx)
		release()
		if err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, statsStyle.Render("context cleared"))
	case "/status":
		fmt.Fprintln(r.out, renderStatus(r.mgr.Status(), sess.SamplerConfig().Temperature, sess.Think()))
	case "/think":
		if !sess.ThinkCapability().Toggleable {
			return false, fmt.Errorf("%s does not support toggling think mode", r.tag)
		}
		sess.SetThink(!sess.Think())
		fmt.Fprintln(r.out, statsStyle.Render(fmt.Sprintf("think mode %s", onOff(sess.Think()))))
	case "/set":
		if len(fields) < 3 {
			return false, fmt.Errorf("usage: /set <param> <value>")
		}
		if err := setParam(sess, fields[1], strings.Join(fields[2:], " ")); err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, statsStyle.Render(fmt.Sprintf("set %s", fields[1])))
	default:
		return false, fmt.Errorf("unknown command %s (try /?)", fields[0])
	}
	return false, nil
}

// setParam applies a /set command to the session.
func setParam(s *session.Session, name, value string) error {
	f32 := func(apply func(float32)) error {
		v, err := strconv.ParseFloat(value, 32)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		apply(float32(v))
		return nil
	}
	integer := func(apply func(int)) error {
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		apply(v)
		return nil
	}
	switch name {
	case "temperature":
		return f32(s.SetTemperature)
	case "top_p":
		return f32(s.SetTopP)
	case "top_k":
		return integer(s.SetTopK)
	case "rep_penalty":
		return f32(s.SetRepetitionPenalty)
	case "rep_penalty_window":
		return integer(s.SetRepetitionPenaltyWindow)
	case "freq_penalty":
		return f32(s.SetFrequencyPenalty)
	case "freq_penalty_window":
		return integer(s.SetFrequencyPenaltyWindow)
	case "freq_penalty_decay":
		return f32(s.SetFrequencyPenaltyDecay)
	case "seed":
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		s.SetSeed(v)
		return nil
	case "max_length":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("max_length: %w", err)
		}
		return s.SetMaxLength(v)
	case "system":
		s.SetSystemPrompt(value)
		return nil
	}
	return fmt.Errorf("unknown parameter %q", name)
}

func renderStatus(st types.StatusResponse, temperature float32, think bool) string {
	model := st.Model
	if model == "" {
		model = "(none)"
	}
	lines := []string{
		fmt.Sprintf("model        %s", model),
		fmt.Sprintf("state        %s", st.State),
		fmt.Sprintf("context      %s / %s tokens", humanize.Comma(int64(st.ContextTokens)), humanize.Comma(int64(st.MaxContext))),
		fmt.Sprintf("temperature  %.2f", temperature),
		fmt.Sprintf("think        %s", onOff(think)),
	}
	if st.Accelerator != nil {
		lines = append(lines, fmt.Sprintf("npu          %d binaries, %d apps, %d loads", st.Accelerator.Binaries, st.Accelerator.Apps, st.Accelerator.Loads))
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// termWriter prints a turn as it streams and a stats line at the end.
type termWriter struct {
	out io.Writer
}

func (w *termWriter) Chunk(text string) error {
	_, err := io.WriteString(w.out, text)
	return err
}

func (w *termWriter) Done(res manager.Result) error {
	m := res.Meta
	rate := 0.0
	if m.DecodingDuration > 0 {
		rate = float64(m.GeneratedTokens) / m.DecodingDuration.Seconds()
	}
	stats := fmt.Sprintf("%d prompt tokens in %s, %d tokens at %s tok/s (%s)",
		m.PromptTokens, m.PrefillDuration.Round(time.Millisecond),
		m.GeneratedTokens, humanize.FtoaWithDigits(rate, 2), res.Reason)
	_, err := fmt.Fprintf(w.out, "\n%s\n", statsStyle.Render(stats))
	return err
}
