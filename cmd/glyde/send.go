package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/TensoriumAi/Glyde/internal/command"
	"github.com/TensoriumAi/Glyde/internal/ipc"
	"github.com/TensoriumAi/Glyde/internal/session"
	"github.com/spf13/cobra"
)

// send delivers one command to the session controller and prints the result.
// String results print raw (eval output, URLs, confirmations); everything
// else prints as JSON.
func send(ctx context.Context, cmd string, args interface{}) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	sess, err := session.Paths(cfg.Session)
	if err != nil {
		return err
	}
	result, err := ipc.NewClient(sess.SocketPath).Send(ctx, cmd, args)
	if err != nil {
		return err
	}
	switch v := result.(type) {
	case string:
		fmt.Println(v)
	case nil:
		// Command succeeded with nothing to print.
	default:
		out, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("unprintable result: %w", err)
		}
		fmt.Println(string(out))
	}
	return nil
}

var helpSendCmd = &cobra.Command{
	Use:   "commands",
	Short: "List the commands the controller accepts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return send(cmd.Context(), "help", nil)
	},
}

var evalCmd = &cobra.Command{
	Use:   "eval [script]",
	Short: "Evaluate JavaScript in the page",
	Long: `Evaluates script text in the current page and prints its value.

Errors thrown by the script itself come back as printed strings, not
command failures; only a broken page or controller produces an error.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return send(cmd.Context(), "eval", strings.Join(args, " "))
	},
}

var injectCmd = &cobra.Command{
	Use:   "inject [file]",
	Short: "Evaluate a JavaScript file in the page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read script file: %w", err)
		}
		return send(cmd.Context(), "inject", string(src))
	},
}

var screenshotCmd = &cobra.Command{
	Use:   "screenshot [filename]",
	Short: "Capture the page to a PNG",
	Long: `Captures the current page. With no filename, a timestamped name is
written to the session's screenshots directory; relative names land there
too, absolute paths are used as given. Prints the path written.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		return send(cmd.Context(), "screenshot", name)
	},
}

var clickCmd = &cobra.Command{
	Use:   "click [selector]",
	Short: "Click the first element matching a CSS selector",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return send(cmd.Context(), "click", args[0])
	},
}

var typeCmd = &cobra.Command{
	Use:   "type [selector] [text]",
	Short: "Type text into the element matching a CSS selector",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return send(cmd.Context(), "type", map[string]string{
			"selector": args[0],
			"text":     strings.Join(args[1:], " "),
		})
	},
}

var urlCmd = &cobra.Command{
	Use:   "url",
	Short: "Print the current page URL",
	RunE: func(cmd *cobra.Command, args []string) error {
		return send(cmd.Context(), "url", nil)
	},
}

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload the page",
	RunE: func(cmd *cobra.Command, args []string) error {
		return send(cmd.Context(), "reload", nil)
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Send a message through the page's chat bridge",
	Long: `Sends a message to the in-page bridge at window.__glyde.chat and prints
the reply. The bridge is installed by an injection script; pages without
one report an error.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return send(cmd.Context(), "chat", strings.Join(args, " "))
	},
}

var (
	labelNumber    bool
	labelCoords    bool
	labelColor     string
	labelSize      int
	labelNocleanup bool
)

var labelCmd = &cobra.Command{
	Use:   "label [selector]",
	Short: "Overlay numbered labels on matching elements",
	Long: `Draws a numbered badge on every element matching the selector and prints
the match count. Labels clear themselves after ten seconds unless
--nocleanup is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return send(cmd.Context(), "label", map[string]interface{}{
			"selector":  args[0],
			"number":    labelNumber,
			"coords":    labelCoords,
			"color":     labelColor,
			"size":      labelSize,
			"nocleanup": labelNocleanup,
		})
	},
}

var auditLimit int

// auditCmd reads the controller's command log straight from the session's
// audit database, so it works whether or not the controller is running.
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show recently dispatched commands for the session",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		sess, err := session.Paths(cfg.Session)
		if err != nil {
			return err
		}
		audit, err := command.OpenAudit(filepath.Join(sess.LogsDir, "audit.db"))
		if err != nil {
			return fmt.Errorf("failed to open audit store: %w", err)
		}
		defer audit.Close()

		entries, err := audit.Recent(auditLimit)
		if err != nil {
			return err
		}
		for _, e := range entries {
			status := "ok"
			if !e.OK {
				status = "error: " + e.Error
			}
			fmt.Printf("%s  %-11s %6dms  %s\n", e.Timestamp.Format("2006-01-02 15:04:05"), e.Command, e.DurationMs, status)
		}
		return nil
	},
}

func init() {
	labelCmd.Flags().BoolVar(&labelNumber, "number", true, "Number each label")
	labelCmd.Flags().BoolVar(&labelCoords, "coords", false, "Include element coordinates in each label")
	labelCmd.Flags().StringVar(&labelColor, "color", "", "Label background color")
	labelCmd.Flags().IntVar(&labelSize, "size", 0, "Label font size in px")
	labelCmd.Flags().BoolVar(&labelNocleanup, "nocleanup", false, "Keep labels until the next label command")

	auditCmd.Flags().IntVar(&auditLimit, "limit", 20, "Maximum entries to show")
}
