// Command resourcesync-watch follows a document, a filtered collection or a
// relation of a document and prints every published view as a JSON line.
//
//	resourcesync-watch -seed -path guilds -id g1 -relation players
//	resourcesync-watch -path players -where 'guildId == "g1"' -match 'level >= 3'
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"resourcesync/internal/attachment"
	"resourcesync/internal/blob"
	"resourcesync/internal/config"
	"resourcesync/internal/core"
	"resourcesync/internal/metrics"
	"resourcesync/internal/schema"
	"resourcesync/internal/where"
	"resourcesync/pkg/domain"
)

var exitFunc = os.Exit

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	exitFunc(code)
}

type options struct {
	env         string
	path        string
	id          string
	where       string
	relation    string
	match       string
	seed        bool
	once        bool
	attachments bool
	duration    time.Duration
}

func cli(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("resourcesync-watch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var opts options
	fs.StringVar(&opts.env, "env", "dev", "configuration environment (.env.<env>)")
	fs.StringVar(&opts.path, "path", "", "entity path to watch")
	fs.StringVar(&opts.id, "id", "", "document id; watches a single document")
	fs.StringVar(&opts.where, "where", "", `collection filter, e.g. guildId == "g1"`)
	fs.StringVar(&opts.relation, "relation", "", "relation of the -id document to watch instead")
	fs.StringVar(&opts.match, "match", "", "expression filtering printed resources")
	fs.BoolVar(&opts.seed, "seed", false, "write the guild demo documents before watching")
	fs.BoolVar(&opts.once, "once", false, "print the first loaded view and exit")
	fs.BoolVar(&opts.attachments, "attachments", false, "list attachments of the -id document and exit")
	fs.DurationVar(&opts.duration, "duration", 0, "stop watching after this long (0 waits for a signal)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if err := run(ctx, opts, stdout, stderr); err != nil {
		_, _ = fmt.Fprintf(stderr, "resourcesync-watch: %v\n", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, opts options, stdout, stderr io.Writer) error {
	if opts.path == "" {
		return errors.New("-path is required")
	}
	if opts.id != "" && opts.where != "" {
		return errors.New("-id and -where are mutually exclusive")
	}
	if (opts.relation != "" || opts.attachments) && opts.id == "" {
		return errors.New("-relation and -attachments need -id")
	}

	cfg, err := config.Load(opts.env)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := core.NewLogger(cfg.Log.Level, cfg.Log.Format, stderr)
	if err != nil {
		return err
	}
	regCfg, err := schema.Load(cfg.SchemaPath)
	if err != nil {
		return err
	}
	registry, err := core.NewRegistry(regCfg)
	if err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	store, err := core.OpenDocumentStore(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	svcOpts := []core.Option{core.WithLogger(logger)}
	if cfg.Metrics.Addr != "" {
		promReg := prometheus.NewRegistry()
		rec := metrics.NewPrometheusRecorder(promReg)
		svcOpts = append(svcOpts, core.WithMetricsRecorder(rec), core.WithSubscriptionObserver(rec))
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: metrics.Handler(promReg), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}
	svc := core.NewService(store, registry, svcOpts...)

	if opts.seed {
		if err := seedDemo(ctx, svc); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}
	repo, err := svc.Repository(domain.EntityPath(opts.path))
	if err != nil {
		return err
	}
	if opts.attachments {
		blobs, err := blob.Open(ctx, cfg.Blob)
		if err != nil {
			return fmt.Errorf("open blob store: %w", err)
		}
		return listAttachments(ctx, attachment.NewService(svc, blobs), repo.Path(), opts.id, stdout)
	}

	var pred *where.Predicate
	if opts.match != "" {
		if pred, err = where.Compile(opts.match); err != nil {
			return err
		}
	}

	scope := core.NewScope()
	defer scope.Dispose()
	h, err := watchHandle(ctx, scope, repo, opts)
	if err != nil {
		return err
	}

	p := &printer{w: stdout, pred: pred}
	if opts.once {
		if err := svc.WaitIdle(ctx); err != nil {
			return err
		}
		view, err := h.View()
		if err != nil {
			return err
		}
		return p.print(view)
	}

	h.Subscribe(func(v core.View) {
		if err := p.print(v); err != nil {
			logger.Warn("print view", "error", err)
		}
	})
	if err := svc.WaitIdle(ctx); err != nil {
		return err
	}
	if view, _ := h.View(); view.Loaded {
		if err := p.print(view); err != nil {
			return err
		}
	}

	if opts.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.duration)
		defer cancel()
	}
	<-ctx.Done()
	return h.Err()
}

func watchHandle(ctx context.Context, scope *core.Scope, repo *core.Repository, opts options) (*core.Handle, error) {
	switch {
	case opts.relation != "":
		owner, err := repo.Get(ctx, opts.id)
		if err != nil {
			return nil, err
		}
		if owner == nil {
			return nil, domain.ErrNotFound{Path: repo.Path(), ID: opts.id}
		}
		return owner.Relation(scope, opts.relation)
	case opts.id != "":
		return repo.Sync(scope, opts.id, nil)
	default:
		constraints, err := where.Parse(opts.where)
		if err != nil {
			return nil, err
		}
		return repo.SyncList(scope, constraints, nil)
	}
}

type printer struct {
	mu      sync.Mutex
	w       io.Writer
	pred    *where.Predicate
	printed uint64
}

type viewLine struct {
	Version   uint64           `json:"version"`
	Target    string           `json:"target"`
	Loaded    bool             `json:"loaded"`
	Resources []*core.Resource `json:"resources"`
}

// print writes v unless a view of the same or a later version was printed.
func (p *printer) print(v core.View) error {
	if !v.Loaded {
		return nil
	}
	line := viewLine{Version: v.Version, Target: v.Target.String(), Loaded: v.Loaded, Resources: []*core.Resource{}}
	for _, r := range v.Resources {
		if p.pred != nil {
			ok, err := p.pred.Match(r.ID(), r.Properties())
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
		}
		line.Resources = append(line.Resources, r)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if v.Version <= p.printed {
		return nil
	}
	p.printed = v.Version
	return json.NewEncoder(p.w).Encode(line)
}

func listAttachments(ctx context.Context, svc *attachment.Service, path domain.EntityPath, id string, w io.Writer) error {
	infos, err := svc.List(ctx, path, id)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	for _, info := range infos {
		if err := enc.Encode(info); err != nil {
			return err
		}
	}
	return nil
}
