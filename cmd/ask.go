package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quillhq/quill/internal/buffer"
	"github.com/quillhq/quill/internal/coordinator"
	"github.com/quillhq/quill/internal/pubsub"
	"github.com/quillhq/quill/internal/workspace"
)

// workspaceEvent is a finished-request notification.
type workspaceEvent = pubsub.Event[coordinator.Request]

var (
	askInstruction string
	askSession     string
	askWrite       bool
)

var askCmd = &cobra.Command{
	Use:   "ask [file]",
	Short: "Transform a piece of text with the external tool",
	Long: `Reads the document from a file (or stdin), sends the selected text to
the external tool together with the instruction, and prints the document
with the answer reconciled in place. With no --from/--to range the whole
document is the selection.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askInstruction, "instruction", "i", "",
		"what to do with the selected text (required)")
	askCmd.Flags().StringVarP(&askSession, "session", "s", "default",
		"session lane to run the request on")
	askCmd.Flags().String("from", "", "selection start as LINE:COL (1-based)")
	askCmd.Flags().String("to", "", "selection end as LINE:COL (1-based)")
	askCmd.Flags().BoolVarP(&askWrite, "write", "w", false,
		"write the result back to the file instead of stdout")
	_ = askCmd.MarkFlagRequired("instruction")

	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	var (
		content  []byte
		filePath string
		err      error
	)
	if len(args) == 1 {
		filePath = args[0]
		content, err = os.ReadFile(filePath) //nolint:gosec // G304: user-named document
		if err != nil {
			return fmt.Errorf("reading document: %w", err)
		}
	} else {
		content, err = io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
	}

	buf := buffer.NewMemory(string(content))
	fromFlag, _ := cmd.Flags().GetString("from")
	toFlag, _ := cmd.Flags().GetString("to")
	if fromFlag != "" || toFlag != "" {
		from, err := parsePosition(fromFlag)
		if err != nil {
			return fmt.Errorf("--from: %w", err)
		}
		to, err := parsePosition(toFlag)
		if err != nil {
			return fmt.Errorf("--to: %w", err)
		}
		buf.SetSelection(from, to)
	} else {
		buf.SelectAll()
	}

	ws := workspace.New(cfg, logger)
	defer ws.Shutdown()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	events := ws.Subscribe(ctx)

	req, err := ws.Ask(buf, askSession, askInstruction, workspace.WithFilePath(filePath))
	if err != nil {
		return err
	}

	finished, err := awaitRequest(events, req.ID)
	if err != nil {
		return err
	}

	switch finished.Status {
	case coordinator.StatusOrphaned:
		// The buffer drifted under us; deliver the payload out of band.
		fmt.Fprintln(cmd.ErrOrStderr(), "marker lost; recovered response:")
		fmt.Fprintln(cmd.OutOrStdout(), finished.Result)
		return nil
	case coordinator.StatusFailed:
		if err := emitDocument(cmd, buf, filePath); err != nil {
			return err
		}
		return finished.Err
	default:
		return emitDocument(cmd, buf, filePath)
	}
}

// awaitRequest blocks until the finished event for id arrives. Created and
// updated events for the same request are progress notices, not outcomes.
func awaitRequest(events <-chan workspaceEvent, id string) (coordinator.Request, error) {
	for ev := range events {
		if ev.Type == pubsub.FinishedEvent && ev.Payload.ID == id {
			return ev.Payload, nil
		}
	}
	return coordinator.Request{}, fmt.Errorf("notification channel closed before request %s finished", id)
}

func emitDocument(cmd *cobra.Command, buf *buffer.Memory, filePath string) error {
	if askWrite && filePath != "" {
		return os.WriteFile(filePath, []byte(buf.Value()), 0644) //nolint:gosec // G306: document file
	}
	fmt.Fprint(cmd.OutOrStdout(), buf.Value())
	return nil
}

// parsePosition parses a 1-based LINE:COL flag into a zero-based position.
// A bare LINE means column 1.
func parsePosition(s string) (buffer.Position, error) {
	if s == "" {
		return buffer.Position{}, fmt.Errorf("position is required when selecting a range")
	}

	linePart, colPart, hasCol := strings.Cut(s, ":")
	line, err := strconv.Atoi(linePart)
	if err != nil || line < 1 {
		return buffer.Position{}, fmt.Errorf("invalid line in %q", s)
	}

	col := 1
	if hasCol {
		col, err = strconv.Atoi(colPart)
		if err != nil || col < 1 {
			return buffer.Position{}, fmt.Errorf("invalid column in %q", s)
		}
	}

	return buffer.Position{Line: line - 1, Ch: col - 1}, nil
}
