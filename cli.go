package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Anylayerorg/landing-sub001/config"
	"github.com/Anylayerorg/landing-sub001/model"
	"github.com/Anylayerorg/landing-sub001/pkg/logger"
	"github.com/Anylayerorg/landing-sub001/service"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

// cli carries state shared by the commands. app is built lazily from the
// config file unless it is already set.
type cli struct {
	configPath string
	app        *app
}

func newRootCmd(c *cli) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "landing",
		Short: "Airdrop submission intake and review",
		Long: `Runs the landing site API and the operator review tools.

Participants submit task proofs through the public API. Operators approve
or reject pending submissions; every decision is confirmed by the
verification backend before the document store is updated.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if c.app != nil {
				return nil
			}

			cfg, err := config.Load(c.configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			// Keep stdout clean for review output
			logger.Init(&logger.Config{
				Level:  cfg.Log.Level,
				Format: cfg.Log.Format,
				Output: cmd.ErrOrStderr(),
			})

			c.app, err = newApp(cmd.Context(), cfg)
			return err
		},
	}

	rootCmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", "config.yaml", "path to the YAML config file")

	rootCmd.AddCommand(newServeCmd(c), newReviewCmd(c))
	return rootCmd
}

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, c.app)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	gin.SetMode(gin.ReleaseMode)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:      newRouter(a),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "server starting", "port", a.cfg.Server.Port, "store", a.cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info(ctx, "shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info(ctx, "server exited gracefully")
	return nil
}

func newReviewCmd(c *cli) *cobra.Command {
	reviewCmd := &cobra.Command{
		Use:   "review",
		Short: "Inspect and decide submissions from the terminal",
	}

	var status string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List published submissions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			subs, err := c.app.submissions.List(cmd.Context(), status)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), subs)
		},
	}
	listCmd.Flags().StringVar(&status, "status", "", "filter by status (pending, approved, rejected)")

	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a submission and the actions available for it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sub, err := c.app.submissions.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), struct {
				*model.Submission
				Actions []string `json:"actions"`
			}{sub, c.app.controller.ActionsFor(sub)})
		},
	}

	approveCmd := &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve a pending submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := bufio.NewReader(cmd.InOrStdin())
			return c.decide(cmd, in, args[0], func(ctx context.Context, r *service.Review) (*service.Outcome, error) {
				return r.Approve(ctx)
			})
		},
	}

	var note string
	rejectCmd := &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject a pending submission",
		Long: `Rejects a pending submission with a review note.

Without --note the note is read from stdin. An empty line is an empty
note; end of input without a line cancels the rejection.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := bufio.NewReader(cmd.InOrStdin())
			prompt := service.StaticNote(note)
			if !cmd.Flags().Changed("note") {
				prompt = linePrompt(in, cmd.ErrOrStderr())
			}
			return c.decide(cmd, in, args[0], func(ctx context.Context, r *service.Review) (*service.Outcome, error) {
				return r.Reject(ctx, prompt)
			})
		},
	}
	rejectCmd.Flags().StringVar(&note, "note", "", "review note sent with the rejection")

	reviewCmd.AddCommand(listCmd, showCmd, approveCmd, rejectCmd)
	return reviewCmd
}

// decide opens a review for id and runs act. A partial completion is
// offered to the operator for retry or acknowledgement.
func (c *cli) decide(cmd *cobra.Command, in *bufio.Reader, id string, act func(context.Context, *service.Review) (*service.Outcome, error)) error {
	ctx := logger.WithOperator(cmd.Context(), operatorName())
	stderr := cmd.ErrOrStderr()

	var outcome *service.Outcome
	review, err := c.app.controller.Open(ctx, id)
	if err == nil {
		outcome, err = act(ctx, review)
	}

	for errors.Is(err, service.ErrPartialCompletion) {
		fmt.Fprintf(stderr, "%v\n[r]etry store update, [a]cknowledge, [q]uit (the record is lost on quit): ", err)
		answer, readErr := readLine(in)
		if readErr != nil {
			answer = "q"
		}
		switch strings.ToLower(answer) {
		case "r", "retry":
			outcome, err = c.app.controller.Resolve(ctx, id)
		case "a", "acknowledge":
			if ackErr := c.app.controller.Acknowledge(id); ackErr != nil {
				fmt.Fprintln(stderr, ackErr)
				continue
			}
			fmt.Fprintln(stderr, "acknowledged; the submission can be reviewed again")
			return nil
		default:
			fmt.Fprintln(stderr, "warning: the verification backend already accepted this decision; "+
				"a later attempt calls it again unless the store is fixed first")
			return err
		}
	}
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), outcome)
}

// linePrompt reads the rejection note from in
func linePrompt(in *bufio.Reader, out io.Writer) service.NotePrompt {
	return func(ctx context.Context, sub *model.Submission) (string, bool) {
		fmt.Fprintf(out, "Rejection note for %s (%s): ", sub.ID, sub.TaskTitle)
		line, err := readLine(in)
		if err != nil {
			return "", false
		}
		return line, true
	}
}

// readLine returns the next line without its terminator. io.EOF is
// returned only when nothing was read.
func readLine(in *bufio.Reader) (string, error) {
	line, err := in.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func operatorName() string {
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return "cli"
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
