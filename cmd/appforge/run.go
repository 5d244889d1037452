package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/appforge/internal/pipeline"
	"github.com/ShayCichocki/appforge/pkg/models"
)

var runCmd = &cobra.Command{
	Use:   "run <request.yaml|request.json>",
	Short: "Run one task request locally",
	Long: `Run a single task request through the pipeline and print the result.

The request file uses the same fields as POST /task. JSON is used for
.json files and YAML otherwise. When the file has no secret, the
configured verification secret is used.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := readRequest(args[0])
		if err != nil {
			return err
		}

		cfg, secrets, err := loadValidConfig()
		if err != nil {
			return err
		}
		if req.Secret == "" {
			req.Secret = secrets.Secret()
		}

		events := pipeline.NewEventEmitter(32)
		st, err := buildStack(cfg, secrets, events)
		if err != nil {
			return err
		}
		defer st.Close()

		out := cmd.OutOrStdout()
		printed := make(chan struct{})
		go func() {
			defer close(printed)
			for e := range events.Events() {
				printEvent(out, e)
			}
		}()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		result, runErr := st.orch.Handle(ctx, req)
		events.Close()
		<-printed

		if runErr != nil {
			printStatus(out, "✗", fmt.Sprintf("Run failed: %v", runErr), color.FgRed)
			return runErr
		}

		in, outTokens := st.llm.Tracker().Total()
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderSummary(result, in+outTokens))
		return nil
	},
}

// readRequest decodes a task request from a JSON or YAML file.
func readRequest(path string) (models.TaskRequest, error) {
	var req models.TaskRequest

	data, err := os.ReadFile(path)
	if err != nil {
		return req, fmt.Errorf("read request: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &req)
	} else {
		err = yaml.Unmarshal(data, &req)
	}
	if err != nil {
		return req, fmt.Errorf("parse request %s: %w", path, err)
	}
	return req, nil
}

// printEvent prints a pipeline event as a status line.
func printEvent(w io.Writer, e pipeline.Event) {
	switch e.Type {
	case pipeline.EventRunStarted:
		printStatus(w, "→", fmt.Sprintf("Run %s: %s", e.RunID, e.Message), color.FgCyan)
	case pipeline.EventStepStarted:
		printStatus(w, "•", fmt.Sprintf("%s...", e.Step), color.FgWhite)
	case pipeline.EventStepCompleted:
		printStatus(w, "✓", fmt.Sprintf("%s (%s)", e.Step, e.Message), color.FgGreen)
	case pipeline.EventStepFailed:
		if e.Step == pipeline.StepNotify {
			printStatus(w, "⚠", fmt.Sprintf("%s: %v", e.Step, e.Err), color.FgYellow)
			return
		}
		printStatus(w, "✗", fmt.Sprintf("%s: %v", e.Step, e.Err), color.FgRed)
	}
}

// printStatus prints a status line with color
func printStatus(w io.Writer, symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Fprintf(w, "%s %s\n", c.Sprint(symbol), message)
}

// renderSummary renders the run result in a bordered box.
func renderSummary(r pipeline.Result, tokens int64) string {
	label := lipgloss.NewStyle().Foreground(lipgloss.Color("243")).Width(14)
	value := lipgloss.NewStyle().Bold(true)

	notification := value.Foreground(lipgloss.Color("#96E6A1")).Render(r.Notification)
	if r.Notification != models.NotificationDelivered {
		notification = value.Foreground(lipgloss.Color("#FFC857")).Render(r.Notification)
	}

	pages := r.Repository.PagesURL
	if !r.Repository.PagesVerified {
		pages += " (unverified)"
	}

	rows := []string{
		lipgloss.JoinHorizontal(lipgloss.Top, label.Render("Run"), value.Render(r.RunID)),
		lipgloss.JoinHorizontal(lipgloss.Top, label.Render("Repository"), value.Render(r.Repository.RepoURL)),
		lipgloss.JoinHorizontal(lipgloss.Top, label.Render("Pages"), value.Render(pages)),
		lipgloss.JoinHorizontal(lipgloss.Top, label.Render("Notification"), notification),
		lipgloss.JoinHorizontal(lipgloss.Top, label.Render("Attempts"), value.Render(fmt.Sprint(r.Outcome.Attempts))),
		lipgloss.JoinHorizontal(lipgloss.Top, label.Render("Tokens"), value.Render(fmt.Sprint(tokens))),
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#4ECDC4")).
		Padding(0, 1).
		Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}
