// Package fpctl is the command line client for fpbridged.
package fpctl

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"fpbridge/pkg/types"
)

// Config holds the persistent flags.
type Config struct {
	Addr    string
	Timeout time.Duration
	LogLvl  string
}

// captureCommands maps capture subcommands to bridge command names.
var captureCommands = map[string]string{
	"image":   "getFpImage",
	"feature": "getFpFeature",
	"finger":  "getFingerInfo",
}

// MainWithArgs runs fpctl and returns the process exit code: 0 on success,
// 2 for usage errors, 1 otherwise.
func MainWithArgs(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg := &Config{
		Addr:    envStr("FPCTL_ADDR", "127.0.0.1:8080"),
		Timeout: 60 * time.Second,
		LogLvl:  envStr("FPCTL_LOG_LEVEL", "warn"),
	}
	root := buildRootCmdWith(cfg, stdout, stderr)
	if len(args) == 0 {
		_ = root.Usage()
		return 2
	}
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "fpctl:", err)
		var ue usageError
		if errors.As(err, &ue) {
			return 2
		}
		return 1
	}
	return 0
}

type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func buildRootCmdWith(cfg *Config, stdout, stderr io.Writer) *cobra.Command {
	var log zerolog.Logger
	root := &cobra.Command{
		Use:           "fpctl",
		Short:         "Drive a fingerprint sensor through fpbridged",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&cfg.Addr, "addr", cfg.Addr, "fpbridged address (defaults FPCTL_ADDR or 127.0.0.1:8080)")
	root.PersistentFlags().DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Overall timeout for the command")
	root.PersistentFlags().StringVar(&cfg.LogLvl, "log-level", cfg.LogLvl, "Log level: debug|info|warn|error (defaults FPCTL_LOG_LEVEL or warn)")
	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLvl))
		if err != nil || cfg.LogLvl == "" {
			lvl = zerolog.WarnLevel
		}
		log = zerolog.New(zerolog.ConsoleWriter{Out: stderr, NoColor: true}).Level(lvl).With().Timestamp().Logger()
	}
	client := func() *Client { return NewClient(cfg.Addr, cfg.Timeout) }
	withTimeout := func(cmd *cobra.Command) (context.Context, context.CancelFunc) {
		return context.WithTimeout(cmd.Context(), cfg.Timeout)
	}

	callCmd := &cobra.Command{
		Use:     "call <command> [json-args]",
		Short:   "Dispatch one command and print its reply",
		Example: "  fpctl call getFingerMatchValue\n  fpctl call setFingerMatchValue 60\n  fpctl call compareFpFeature '{\"src\":\"...\",\"dest\":\"...\"}'",
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw json.RawMessage
			if len(args) == 2 {
				if !json.Valid([]byte(args[1])) {
					return usageError{msg: "json-args is not valid JSON"}
				}
				raw = json.RawMessage(args[1])
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			log.Debug().Str("command", args[0]).Str("addr", cfg.Addr).Msg("call")
			resp, err := client().Call(ctx, args[0], raw)
			if err != nil {
				return err
			}
			return printJSON(stdout, resp)
		},
	}

	listenCmd := &cobra.Command{
		Use:   "listen",
		Short: "Register as the event listener and print events as NDJSON",
		Long:  "Register as the bridge's only event listener, replacing any other, and print each result event on its own line until interrupted or replaced.",
		RunE: func(cmd *cobra.Command, args []string) error {
			count, _ := cmd.Flags().GetInt("count")
			ctx := cmd.Context()
			dialCtx, cancel := withTimeout(cmd)
			defer cancel()
			s, err := client().Listen(dialCtx)
			if err != nil {
				return err
			}
			defer s.Close()
			log.Info().Msg("listening")
			enc := json.NewEncoder(stdout)
			for n := 0; count <= 0 || n < count; n++ {
				ev, err := s.Next(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return fmt.Errorf("event channel closed: %w", err)
				}
				if err := enc.Encode(ev); err != nil {
					return err
				}
			}
			return nil
		},
	}
	listenCmd.Flags().Int("count", 0, "Exit after this many events (0 = run until interrupted)")

	captureCmd := &cobra.Command{
		Use:       "capture image|feature|finger",
		Short:     "Queue one capture and wait for its result event",
		Example:   "  fpctl capture image --out print.jpg\n  fpctl capture feature",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"image", "feature", "finger"},
		RunE: func(cmd *cobra.Command, args []string) error {
			name, ok := captureCommands[args[0]]
			if !ok {
				return usageError{msg: fmt.Sprintf("unknown capture kind %q (want image|feature|finger)", args[0])}
			}
			outPath, _ := cmd.Flags().GetString("out")
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			c := client()
			s, err := c.Listen(ctx)
			if err != nil {
				return err
			}
			defer s.Close()
			resp, err := c.Call(ctx, name, nil)
			if err != nil {
				return err
			}
			log.Info().Str("task", resp.TaskID).Msg("capture queued, place finger on the sensor")
			for {
				ev, err := s.Next(ctx)
				if err != nil {
					return fmt.Errorf("waiting for %s: %w", resp.TaskID, err)
				}
				if ev.TaskID != resp.TaskID {
					log.Debug().Str("task", ev.TaskID).Msg("skipping event for another task")
					continue
				}
				return writeCapture(stdout, ev, outPath)
			}
		},
	}
	captureCmd.Flags().String("out", "", "Write the image (or feature for 'feature') to this file")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Print bridge status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			c := client()
			if wait, _ := cmd.Flags().GetBool("wait"); wait {
				if err := c.WaitReady(ctx, 500*time.Millisecond); err != nil {
					return err
				}
			}
			st, err := c.Status(ctx)
			if err != nil {
				return err
			}
			return printJSON(stdout, st)
		},
	}
	statusCmd.Flags().Bool("wait", false, "Wait until the bridge is ready")

	completionCmd := &cobra.Command{Use: "completion", Short: "Generate the autocompletion script for the specified shell"}
	completionCmd.AddCommand(&cobra.Command{Use: "bash", Short: "Bash completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenBashCompletion(stdout) }})
	completionCmd.AddCommand(&cobra.Command{Use: "zsh", Short: "Zsh completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenZshCompletion(stdout) }})
	completionCmd.AddCommand(&cobra.Command{Use: "fish", Short: "Fish completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenFishCompletion(stdout, true) }})
	completionCmd.AddCommand(&cobra.Command{Use: "powershell", Short: "PowerShell completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenPowerShellCompletionWithDesc(stdout) }})

	root.AddCommand(callCmd, listenCmd, captureCmd, statusCmd, completionCmd)
	return root
}

// writeCapture prints a summary of ev and, with path set, saves its
// payload: the bitmap for image and finger, the base64 feature otherwise.
func writeCapture(w io.Writer, ev types.Event, path string) error {
	if ev.Absent() {
		return errors.New("no finger captured")
	}
	summary := map[string]any{"task_id": ev.TaskID, "event": int(ev.Kind)}
	if ev.Bitmap != nil {
		summary["bitmap_bytes"] = len(ev.Bitmap)
	}
	if ev.Feature != nil {
		summary["feature"] = *ev.Feature
		if raw, err := base64.StdEncoding.DecodeString(*ev.Feature); err == nil {
			summary["feature_bytes"] = len(raw)
		}
	}
	if ev.Kind == types.EventFingerReceived {
		summary["quality"] = ev.Quality
	}
	if path != "" {
		data := ev.Bitmap
		if ev.Kind == types.EventFeatureReceived {
			data = []byte(*ev.Feature)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return err
		}
		summary["out"] = path
	}
	return printJSON(w, summary)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
