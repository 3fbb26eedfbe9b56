package main

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/TensoriumAi/Glyde/internal/browser"
	"github.com/TensoriumAi/Glyde/internal/command"
	"github.com/TensoriumAi/Glyde/internal/inject"
	"github.com/TensoriumAi/Glyde/internal/ipc"
	"github.com/TensoriumAi/Glyde/internal/logging"
	"github.com/TensoriumAi/Glyde/internal/session"
	"github.com/TensoriumAi/Glyde/internal/state"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	serveURL         string
	serveManifest    string
	serveWatch       bool
	serveHeadless    bool
	serveDebuggerURL string
	serveChromeBin   string
)

// serveCmd runs the session controller: one browser, one socket.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the session controller (browser + command socket)",
	Long: `Starts the long-running controller for a session. The controller launches
(or attaches to) a browser, restores saved cookies and localStorage on each
page load, runs manifest-driven script injection, and serves commands one at
a time over the session's Unix socket.

Stop it with Ctrl-C; state is snapshotted before the browser closes.

Example:
  glyde serve --session work --url https://app.example.com --manifest ./manifest.yaml`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveURL, "url", "", "URL to open after the browser starts")
	serveCmd.Flags().StringVar(&serveManifest, "manifest", "", "Injection manifest file")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "Reload the page when the manifest or its scripts change")
	serveCmd.Flags().BoolVar(&serveHeadless, "headless", false, "Run the browser headless")
	serveCmd.Flags().StringVar(&serveDebuggerURL, "debugger-url", "", "Attach to an existing browser via its DevTools URL")
	serveCmd.Flags().StringVar(&serveChromeBin, "chrome-bin", "", "Browser binary to launch")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveManifest != "" {
		cfg.Inject.Manifest = serveManifest
	}
	if serveWatch {
		cfg.Inject.Watch = true
	}
	if serveHeadless {
		cfg.Browser.Headless = true
	}
	if serveDebuggerURL != "" {
		cfg.Browser.DebuggerURL = serveDebuggerURL
	}
	if serveChromeBin != "" {
		cfg.Browser.Bin = serveChromeBin
	}
	if cfg.Inject.Watch && cfg.Inject.Manifest == "" {
		return fmt.Errorf("--watch requires a manifest")
	}

	sess, err := session.Resolve(cfg.Session)
	if err != nil {
		return fmt.Errorf("failed to resolve session %q: %w", cfg.Session, err)
	}
	if err := logging.Initialize(sess.LogsDir, cfg.Logging.Debug, cfg.Logging.Level); err != nil {
		return fmt.Errorf("failed to initialize session logging: %w", err)
	}
	defer logging.CloseAll()
	logging.Boot("controller starting: session=%s socket=%s", sess.Name, sess.SocketPath)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := state.NewStore(sess.StateDir)
	engine := inject.NewEngine(cfg.Inject.Manifest, sess.Name)

	driver := browser.New(browser.Config{
		DebuggerURL:         cfg.Browser.DebuggerURL,
		Bin:                 cfg.Browser.Bin,
		ProfileDir:          sess.ProfileDir,
		Headless:            cfg.Browser.Headless,
		ViewportWidth:       cfg.Browser.ViewportWidth,
		ViewportHeight:      cfg.Browser.ViewportHeight,
		NavigationTimeoutMs: cfg.Browser.NavigationTimeoutMs,
	})

	// Page-load hook: fill state gaps from the latest snapshot, run the
	// injection cycle, then persist what the page now holds. Each stage is
	// best-effort; a failure never blocks the next load.
	driver.OnLoad(func(url string) {
		if saved, ok := store.Load(); ok {
			if live, err := driver.Snapshot(ctx); err != nil {
				logging.StateWarn("live snapshot failed on load of %s: %v", url, err)
			} else if fill := state.Merge(live, saved); len(fill.Cookies) > 0 || len(fill.LocalStorage) > 0 {
				if err := driver.Apply(ctx, fill); err != nil {
					logging.StateWarn("state restore failed on load of %s: %v", url, err)
				} else {
					logging.State("restored %d cookies, %d localStorage keys on %s",
						len(fill.Cookies), len(fill.LocalStorage), url)
				}
			}
		}

		engine.OnPageLoad(ctx, url, driver)

		// Blank or state-less pages are not persisted; their snapshots
		// would become the newest file and shadow real ones on restart.
		if url == "about:blank" {
			return
		}
		if snap, err := driver.Snapshot(ctx); err != nil {
			logging.StateWarn("snapshot failed after load of %s: %v", url, err)
		} else if snap.Empty() {
			logging.State("skipping empty snapshot after load of %s", url)
		} else if err := store.Save(snap); err != nil {
			logging.StateWarn("snapshot save failed after load of %s: %v", url, err)
		}
	})

	if err := driver.Start(ctx, serveURL); err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer func() {
		if snap, err := driver.Snapshot(context.Background()); err == nil && !snap.Empty() {
			if err := store.Save(snap); err != nil {
				logging.StateWarn("final snapshot save failed: %v", err)
			}
		}
		if err := driver.Close(); err != nil {
			logging.BrowserWarn("browser close: %v", err)
		}
	}()

	audit, err := command.OpenAudit(filepath.Join(sess.LogsDir, "audit.db"))
	if err != nil {
		logging.AuditWarn("audit store unavailable: %v", err)
	} else {
		defer audit.Close()
	}

	dispatcher := command.NewDispatcher(driver, command.Options{
		ScreenshotsDir: sess.ScreenshotsDir,
		ChatTimeout:    cfg.ChatTimeout(),
		Audit:          audit,
	})
	server := ipc.NewServer(sess.SocketPath, dispatcher)

	logger.Info("controller ready",
		zap.String("session", sess.Name),
		zap.String("socket", sess.SocketPath))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Serve(gctx)
	})
	if cfg.Inject.Watch {
		g.Go(func() error {
			return browser.WatchInjection(gctx, engine, func() {
				logging.Inject("manifest change detected, reloading page")
				if err := driver.Reload(gctx); err != nil {
					logging.InjectWarn("reload after manifest change failed: %v", err)
				}
			})
		})
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	logging.Boot("controller stopped: session=%s", sess.Name)
	return nil
}
