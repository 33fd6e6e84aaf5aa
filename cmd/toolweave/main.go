// Command toolweave registers tool services, defines chains over them,
// and executes chains against subprocess tool services.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/toolweave/toolweave/internal/cache"
	"github.com/toolweave/toolweave/internal/chain"
	"github.com/toolweave/toolweave/internal/config"
	"github.com/toolweave/toolweave/internal/metrics"
	"github.com/toolweave/toolweave/internal/rpc"
	"github.com/toolweave/toolweave/internal/scheduler"
	"github.com/toolweave/toolweave/internal/store"
	"github.com/toolweave/toolweave/internal/version"
)

const usage = `usage: toolweave [-config path] <command> [args]

commands:
  version                      print version and exit
  discover  <command>          launch a service and list its capabilities
  register  <flags>            register a tool service
  tools                        list registered tools
  unregister <tool-id>         remove a tool registration
  define    <chain-id> <file>  define a chain from a JSON steps file
  chains                       list defined chains
  run       <chain-id> <input> execute a chain
  history   [-limit n]         show recent executions, newest first
  clear                        clear the result cache and execution history
  serve                        run schedules and the metrics endpoint
`

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	cmd, args := flag.Arg(0), flag.Args()[1:]
	if cmd == "version" {
		fmt.Println(version.Get())
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatalf("loading config: %v", err)
	}

	a, err := newApp(cfg)
	if err != nil {
		fatalf("%v", err)
	}

	ctx := context.Background()
	switch cmd {
	case "discover":
		err = a.discover(ctx, args)
	case "register":
		err = a.register(ctx, args)
	case "tools":
		err = a.tools(ctx)
	case "unregister":
		err = a.unregister(ctx, args)
	case "define":
		err = a.define(ctx, args)
	case "chains":
		err = a.listChains(ctx)
	case "run":
		err = a.run(ctx, args)
	case "history":
		err = a.showHistory(ctx, args)
	case "clear":
		err = a.clear(ctx)
	case "serve":
		err = a.serve(ctx)
	default:
		flag.Usage()
		os.Exit(2)
	}
	a.close()
	if err != nil {
		if errors.Is(err, errChainFailed) {
			os.Exit(1)
		}
		fatalf("%v", err)
	}
}

// errChainFailed marks a run whose summary was already printed; only the
// exit status remains to report.
var errChainFailed = errors.New("chain did not complete")

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "toolweave: "+format+"\n", args...)
	os.Exit(1)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Parse(nil)
	}
	return config.Load(path)
}

type app struct {
	cfg          *config.Config
	db           *store.DB
	registry     *store.ToolRegistry
	chains       *store.ChainStore
	history      *store.ExecutionHistory
	cache        *cache.ResultCache
	pool         *rpc.Pool
	executor     *chain.Executor
	metrics      *metrics.Metrics
	promRegistry *prometheus.Registry

	chainTimeout time.Duration
}

func newApp(cfg *config.Config) (*app, error) {
	db, err := store.Open(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	hsTimeout, err := config.Duration(cfg.Defaults.HandshakeTimeout, rpc.DefaultHandshakeTimeout)
	if err != nil {
		return nil, err
	}
	callTimeout, err := config.Duration(cfg.Defaults.CallTimeout, 30*time.Second)
	if err != nil {
		return nil, err
	}
	chainTimeout, err := config.Duration(cfg.Defaults.ChainTimeout, 0)
	if err != nil {
		return nil, err
	}
	ttl, err := config.Duration(cfg.Cache.TTL, 0)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:          cfg,
		db:           db,
		registry:     store.NewToolRegistry(db),
		chains:       store.NewChainStore(db),
		history:      store.NewExecutionHistory(db),
		pool:         rpc.NewPool(rpc.DefaultIdleTTL, hsTimeout),
		chainTimeout: chainTimeout,
	}

	promReg := prometheus.NewRegistry()
	a.promRegistry = promReg
	a.metrics = metrics.New(promReg)
	a.pool.OnReconnect = a.metrics.Reconnects.Inc

	var resultCache chain.ResultCache
	if cfg.Cache.Addr != "" {
		rc := cache.New(cfg.Cache.Addr, ttl)
		a.cache = rc
		resultCache = rc
	}

	a.executor = chain.New(a.registry, a.chains, a.history, resultCache, a.pool)
	a.executor.DefaultCallTimeout = callTimeout
	a.executor.Metrics = a.metrics
	return a, nil
}

func (a *app) close() {
	a.pool.CloseAll()
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			log.Printf("toolweave: closing cache: %v", err)
		}
	}
	if err := a.db.Close(); err != nil {
		log.Printf("toolweave: closing db: %v", err)
	}
}

func (a *app) discover(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: toolweave discover <command>")
	}
	client, err := a.pool.Get(args[0])
	if err != nil {
		return err
	}
	caps, err := client.ListCapabilities(ctx)
	if err != nil {
		return err
	}
	for _, c := range caps {
		fmt.Printf("%s\t%s\n", c.Name, c.Description)
	}
	return nil
}

func (a *app) register(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	id := fs.String("id", "", "tool id")
	command := fs.String("command", "", "launch command")
	capability := fs.String("capability", "", "capability name")
	desc := fs.String("description", "", "description")
	format := fs.String("format", "text", "output format (text|structured)")
	timeout := fs.Duration("timeout", 0, "per-call timeout override")
	if err := fs.Parse(args); err != nil {
		return err
	}

	reg := &chain.ToolRegistration{
		ID:            *id,
		LaunchCommand: *command,
		Capability:    *capability,
		Description:   *desc,
		OutputFormat:  chain.OutputFormat(*format),
		Timeout:       *timeout,
	}

	// Verify the service actually starts and advertises the capability
	// before persisting the registration.
	client, err := a.pool.Get(reg.LaunchCommand)
	if err != nil {
		return err
	}
	caps, err := client.ListCapabilities(ctx)
	if err != nil {
		return err
	}
	found := false
	for _, c := range caps {
		if c.Name == reg.Capability {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("service does not advertise capability %q", reg.Capability)
	}

	if err := a.registry.Put(ctx, reg); err != nil {
		return err
	}
	fmt.Printf("registered %s\n", reg.ID)
	return nil
}

func (a *app) tools(ctx context.Context) error {
	regs, err := a.registry.List(ctx)
	if err != nil {
		return err
	}
	for _, r := range regs {
		fmt.Printf("%s\t%s\t%s\t%s\n", r.ID, r.Capability, r.OutputFormat, r.LaunchCommand)
	}
	return nil
}

func (a *app) unregister(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: toolweave unregister <tool-id>")
	}
	return a.registry.Delete(ctx, args[0])
}

func (a *app) define(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("define", flag.ExitOnError)
	resultPath := fs.String("result-path", "", "file to write the final result to")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("usage: toolweave define [-result-path file] <chain-id> <steps.json>")
	}
	data, err := os.ReadFile(fs.Arg(1))
	if err != nil {
		return fmt.Errorf("reading steps file: %w", err)
	}
	var steps []chain.ChainStep
	if err := json.Unmarshal(data, &steps); err != nil {
		// Step arguments must be JSON objects; any other shape lands here.
		return &chain.ChainError{Detail: fmt.Sprintf("steps file %s: %v", fs.Arg(1), err)}
	}
	def := &chain.ChainDefinition{ID: fs.Arg(0), Steps: steps, ResultPath: *resultPath}
	if err := a.chains.Put(ctx, def); err != nil {
		return err
	}
	fmt.Printf("defined %s (%d steps)\n", def.ID, len(def.Steps))
	return nil
}

func (a *app) listChains(ctx context.Context) error {
	ids, err := a.chains.List(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}

func (a *app) run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	timeout := fs.Duration("timeout", a.chainTimeout, "aggregate chain deadline")
	var vars varsFlag
	fs.Var(&vars, "var", "NAME=value variable (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 || fs.NArg() > 2 {
		return fmt.Errorf("usage: toolweave run [-timeout d] [-var NAME=v]... <chain-id> [input]")
	}
	input := ""
	if fs.NArg() == 2 {
		input = fs.Arg(1)
	}

	rec, err := a.executor.Execute(ctx, fs.Arg(0), input, vars, *timeout)
	if err != nil {
		return err
	}
	printRecord(rec)
	if rec.Status != chain.StatusCompleted {
		return errChainFailed
	}
	return nil
}

func (a *app) showHistory(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	limit := fs.Int("limit", 20, "max records")
	if err := fs.Parse(args); err != nil {
		return err
	}
	recs, err := a.history.Recent(ctx, *limit)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		printRecord(rec)
	}
	return nil
}

func (a *app) clear(ctx context.Context) error {
	if err := a.executor.Clear(ctx); err != nil {
		return err
	}
	fmt.Println("cache and history cleared")
	return nil
}

func (a *app) serve(ctx context.Context) error {
	sched := scheduler.New(runnerFunc(func(ctx context.Context, chainID, input string, vars map[string]string) error {
		_, err := a.executor.Execute(ctx, chainID, input, vars, a.chainTimeout)
		return err
	}))
	for _, sc := range a.cfg.Schedules {
		err := sched.Add(scheduler.Entry{
			Name:    sc.Name,
			Spec:    sc.Spec,
			ChainID: sc.ChainID,
			Input:   sc.Input,
			Vars:    sc.Vars,
		})
		if err != nil {
			return err
		}
	}
	sched.Start()
	defer sched.Stop()

	errCh := make(chan error, 1)
	srv := a.metricsServer()
	if srv != nil {
		go func() {
			log.Printf("toolweave: serving metrics on %s", srv.Addr)
			errCh <- srv.ListenAndServe()
		}()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case s := <-sig:
		log.Printf("toolweave: received %v, shutting down", s)
	}

	if srv == nil {
		return nil
	}
	shutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// metricsServer builds the /metrics HTTP server, or nil when the
// configured listen address is empty and the endpoint is disabled.
func (a *app) metricsServer() *http.Server {
	listen := a.cfg.Metrics.Listen
	if listen == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.promRegistry, promhttp.HandlerOpts{}))
	return &http.Server{Addr: listen, Handler: mux}
}

type runnerFunc func(ctx context.Context, chainID, input string, vars map[string]string) error

func (f runnerFunc) Run(ctx context.Context, chainID, input string, vars map[string]string) error {
	return f(ctx, chainID, input, vars)
}

type varsFlag map[string]string

func (v *varsFlag) String() string { return "" }

func (v *varsFlag) Set(s string) error {
	name, value, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return fmt.Errorf("expected NAME=value, got %q", s)
	}
	if *v == nil {
		*v = make(map[string]string)
	}
	(*v)[name] = value
	return nil
}

func printRecord(rec *chain.ExecutionRecord) {
	fmt.Printf("%s\t%s\t%s\t%s\n", rec.ID, rec.ChainID, rec.Status,
		rec.FinishedAt.Sub(rec.StartedAt).Round(time.Millisecond))
	for _, st := range rec.Steps {
		mark := "ok"
		switch {
		case st.Skipped:
			mark = "skipped"
		case st.CacheHit:
			mark = "cached"
		case st.Error != "":
			mark = "error: " + st.Error
		}
		fmt.Printf("  [%d] %s\t%s\n", st.Index, st.ToolID, mark)
	}
	if rec.FinalResult != nil {
		fmt.Println(*rec.FinalResult)
	}
}
