package cli

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	appdock "github.com/turtacn/DockPipe/internal/application/docking"
	"github.com/turtacn/DockPipe/internal/config"
	"github.com/turtacn/DockPipe/internal/domain/structure"
	"github.com/turtacn/DockPipe/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/DockPipe/internal/infrastructure/toolchain"
	"github.com/turtacn/DockPipe/pkg/errors"
)

const defaultSettle = 500 * time.Millisecond

func newWatchCmd() *cobra.Command {
	var (
		inbox    string
		receptor string
		settle   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Dock every ligand dropped into an inbox directory",
		Long: "Watch --inbox and start one run per new ligand file against --receptor.\n" +
			"Runs are processed one at a time; the config file is reloaded on change.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()

			p, err := buildPipeline(ctx, cliCtx.Config, cliCtx.Logger)
			if err != nil {
				return err
			}
			defer p.Close()

			if cliCtx.ConfigPath != "" {
				err := config.Watch(cliCtx.ConfigPath,
					func(cfg *config.Config) { reloadPipeline(p, cfg, cliCtx.Logger) },
					func(err error) { cliCtx.Logger.Warn("config reload rejected", logging.Err(err)) })
				if err != nil {
					return err
				}
			}

			w := &inboxWatcher{
				runner:   p.orch,
				receptor: receptor,
				settle:   settle,
				logger:   cliCtx.Logger.Named("watch"),
				onReport: func(r *appdock.RunReport) {
					p.flushMetrics()
					_ = PrintResult(cmd, reportView{r})
				},
			}
			return w.Watch(ctx, inbox)
		},
	}
	cmd.Flags().StringVar(&inbox, "inbox", "", "directory to watch for ligand files [REQUIRED]")
	cmd.Flags().StringVar(&receptor, "receptor", "", "receptor file docked against every ligand [REQUIRED]")
	cmd.Flags().DurationVar(&settle, "settle", defaultSettle, "quiet period before a new file is considered complete")
	_ = cmd.MarkFlagRequired("inbox")
	_ = cmd.MarkFlagRequired("receptor")
	return cmd
}

// reloadPipeline applies a changed config to subsequent runs.  Sinks and
// the exporter keep their startup settings.
func reloadPipeline(p *pipeline, cfg *config.Config, logger logging.Logger) {
	tools, err := toolchain.New(cfg.Tools, logger)
	if err != nil {
		logger.Warn("config reload rejected", logging.Err(err))
		return
	}
	opts, err := appdock.OptionsFromConfig(cfg)
	if err != nil {
		logger.Warn("config reload rejected", logging.Err(err))
		return
	}
	p.orch.Reload(tools, opts)
}

// runner is the part of the orchestrator the watcher drives.
type runner interface {
	Run(ctx context.Context, req appdock.Request) (*appdock.RunReport, error)
}

// inboxWatcher turns new ligand files into serial runs.
type inboxWatcher struct {
	runner   runner
	receptor string
	settle   time.Duration
	logger   logging.Logger
	onReport func(*appdock.RunReport)

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// Watch blocks until ctx is done.  Each ligand file is run once after it
// has been quiet for the settle period; later writes to the same name while
// it is pending only push the deadline back.
func (w *inboxWatcher) Watch(ctx context.Context, inbox string) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "create file watcher")
	}
	defer fsw.Close()
	if err := fsw.Add(inbox); err != nil {
		return errors.Wrap(err, errors.ErrCodeBadRequest, "watch "+inbox)
	}
	w.logger.Info("watching inbox", logging.String("inbox", inbox), logging.String("receptor", w.receptor))

	queue := make(chan string, 64)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.dispatch(gctx, fsw, queue) })
	g.Go(func() error { return w.process(gctx, queue) })

	err = g.Wait()
	w.stopPending()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (w *inboxWatcher) dispatch(ctx context.Context, fsw *fsnotify.Watcher, queue chan<- string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !isLigandFile(ev.Name) {
				continue
			}
			w.schedule(ctx, ev.Name, queue)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", logging.Err(err))
		}
	}
}

func (w *inboxWatcher) schedule(ctx context.Context, path string, queue chan<- string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending == nil {
		w.pending = make(map[string]*time.Timer)
	}
	if t, ok := w.pending[path]; ok {
		t.Reset(w.settle)
		return
	}
	w.pending[path] = time.AfterFunc(w.settle, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		select {
		case queue <- path:
		case <-ctx.Done():
		}
	})
}

func (w *inboxWatcher) stopPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for p, t := range w.pending {
		t.Stop()
		delete(w.pending, p)
	}
}

// process runs queued ligands one at a time.  A failed run is reported and
// does not stop the watcher.
func (w *inboxWatcher) process(ctx context.Context, queue <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ligand := <-queue:
			w.logger.Info("ligand received", logging.String("ligand", ligand))
			report, err := w.runner.Run(ctx, appdock.Request{Ligand: ligand, Receptor: w.receptor})
			if err != nil {
				w.logger.Error("run failed", logging.String("ligand", ligand), logging.Err(err))
			}
			if report != nil && w.onReport != nil {
				w.onReport(report)
			}
		}
	}
}

// converterOnlyExts are ligand formats the converter reads but the
// structure parser does not.
var converterOnlyExts = map[string]bool{".mol2": true, ".smi": true}

// isLigandFile accepts ligand formats and skips hidden or partial uploads.
func isLigandFile(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, ".part") || strings.HasSuffix(base, "~") {
		return false
	}
	if converterOnlyExts[strings.ToLower(filepath.Ext(base))] {
		return true
	}
	_, _, err := structure.FormatFromPath(path)
	return err == nil
}
