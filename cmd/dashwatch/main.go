// Command dashwatch polls every widget of one dashboard tab for one user and
// prints each refresh as a JSON line.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/vjranagit/dashboard/internal/app"
	"github.com/vjranagit/dashboard/internal/config"
	"github.com/vjranagit/dashboard/pkg/dashboard"
	"github.com/vjranagit/dashboard/pkg/errs"
	"github.com/vjranagit/dashboard/pkg/pipeline"
	"github.com/vjranagit/dashboard/pkg/poll"
	"github.com/vjranagit/dashboard/pkg/types"
)

// Line is one refresh of one widget.
type Line struct {
	Widget    string          `json:"widget"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Error     string          `json:"error,omitempty"`
	View      *dashboard.View `json:"view,omitempty"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath    string
		dashboardPath string
		tabID         string
		userID        string
		once          bool
	)

	flagSet := pflag.NewFlagSet("dashwatch", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", os.Getenv("DASHBOARD_CONFIG"), "YAML configuration file (env: DASHBOARD_CONFIG)")
	flagSet.StringVarP(&dashboardPath, "dashboard", "d", "", "dashboard JSONC file (default: dashboard.file from the configuration)")
	flagSet.StringVarP(&tabID, "tab", "t", "", "tab to watch (default: the first tab)")
	flagSet.StringVarP(&userID, "user", "u", "", "user whose tenant credentials are used")
	flagSet.BoolVar(&once, "once", false, "load every widget once and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if userID == "" {
		return fmt.Errorf("--user is required")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if dashboardPath != "" {
		cfg.Dashboard.File = dashboardPath
	}
	if cfg.Dashboard.File == "" {
		return fmt.Errorf("no dashboard file: pass --dashboard or set dashboard.file")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := cfg.Log.NewLogger(os.Stderr, "dashwatch")
	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	tab, err := pickTab(a.Dashboard, tabID)
	if err != nil {
		return err
	}
	widgets := resolveWindows(tab, time.Now()).Leaves()
	logger.Info("watching tab", "tab", tab.ID, "widgets", len(widgets), "user", userID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := &printer{w: os.Stdout}
	if once {
		return loadOnce(ctx, a.Fetcher, userID, widgets, out)
	}
	return watch(ctx, a, userID, widgets, out, cfg.Store.Timeout)
}

func pickTab(cfg *dashboard.Config, id string) (dashboard.Tab, error) {
	if id == "" {
		return cfg.Tabs[0], nil
	}
	tab, ok := cfg.Tab(id)
	if !ok {
		return dashboard.Tab{}, fmt.Errorf("dashboard has no tab %q", id)
	}
	return tab, nil
}

// resolveWindows gives historical groups without a range the default span
// ending at now.
func resolveWindows(tab dashboard.Tab, now time.Time) dashboard.Tab {
	widgets := make([]dashboard.Widget, len(tab.Widgets))
	for i, w := range tab.Widgets {
		if w.Type == dashboard.TypeHistorical && !w.Window.IsAbsolute() {
			w = w.WithWindow(dashboard.HistoricalWindow(now))
		}
		widgets[i] = w
	}
	tab.Widgets = widgets
	return tab
}

func loadOnce(ctx context.Context, f *pipeline.Fetcher, userID string, widgets []dashboard.Widget, out *printer) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range widgets {
		w := w
		g.Go(func() error {
			line := Line{Widget: w.ID}
			res, err := f.Fetch(gctx, userID, w.QuerySpec())
			line.UpdatedAt = time.Now()
			if err != nil {
				line.Error = errs.UserMessage(err)
			} else {
				v := dashboard.Render(w, res.Records)
				line.View = &v
			}
			out.print(line)
			return nil
		})
	}
	return g.Wait()
}

func watch(ctx context.Context, a *app.App, userID string, widgets []dashboard.Widget, out *printer, timeout time.Duration) error {
	byID := make(map[string]dashboard.Widget, len(widgets))
	for _, w := range widgets {
		byID[w.ID] = w
	}

	mgr := poll.NewManager(poll.Options{
		Timeout: timeout,
		Metrics: a.Metrics,
		OnUpdate: func(id string, st poll.State) {
			line := Line{Widget: id, UpdatedAt: st.UpdatedAt, Error: st.Err}
			v := dashboard.Render(byID[id], st.Data)
			line.View = &v
			out.print(line)
		},
	})
	defer mgr.StopAll()

	for _, w := range widgets {
		spec := w.QuerySpec()
		mgr.Mount(w.ID, w.RefreshInterval(), func(ctx context.Context) ([]types.Record, error) {
			res, err := a.Fetcher.Fetch(ctx, userID, spec)
			if err != nil {
				return nil, err
			}
			return res.Records, nil
		})
	}

	<-ctx.Done()
	return nil
}

// printer serialises JSON lines from concurrent widgets.
type printer struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *printer) print(line Line) {
	p.mu.Lock()
	defer p.mu.Unlock()
	json.NewEncoder(p.w).Encode(line)
}
