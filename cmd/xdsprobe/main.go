package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"xdsprobe/internal/channelz"
	"xdsprobe/internal/config"
	"xdsprobe/internal/interop"
	"xdsprobe/internal/stats"
	"xdsprobe/internal/testclient"
)

const usage = `xdsprobe - poll a remote test client's channelz until its connections converge

Usage:
  xdsprobe wait-ready --config <path> [--timeout 5m] [--deadline 30s]
  xdsprobe wait-state --config <path> --state READY|CONNECTING|... [--timeout 5m]
  xdsprobe wait-control-plane --config <path> [--control-plane <uri>] [--timeout 5m]
  xdsprobe socket --config <path>
  xdsprobe stats --config <path> --num-rpcs <n> [--stats-timeout-sec 30] [--csv <file>]
  xdsprobe accumulated-stats --config <path>
  xdsprobe config-dump --config <path>

Common flags override the config file: --addr, --rpc-port, --maintenance-port,
--target, --name. Use --verbose for per-attempt polling logs.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cmd := os.Args[1]
	switch cmd {
	case "-h", "--help", "help":
		fmt.Print(usage)
	case "wait-ready":
		waitReady(os.Args[2:])
	case "wait-state":
		waitState(os.Args[2:])
	case "wait-control-plane":
		waitControlPlane(os.Args[2:])
	case "socket":
		activeSocket(os.Args[2:])
	case "stats":
		clientStats(os.Args[2:])
	case "accumulated-stats":
		accumulatedStats(os.Args[2:])
	case "config-dump":
		configDump(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

// clientFlags is the flag set shared by every subcommand.
type clientFlags struct {
	fs           *flag.FlagSet
	configPath   *string
	addr         *string
	rpcPort      *int
	maintPort    *int
	target       *string
	name         *string
	controlPlane *string
	timeout      *time.Duration
	deadline     *time.Duration
	verbose      *bool
}

func newClientFlags(name string) *clientFlags {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	return &clientFlags{
		fs:           fs,
		configPath:   fs.String("config", "", "path to YAML config"),
		addr:         fs.String("addr", "", "client host"),
		rpcPort:      fs.Int("rpc-port", 0, "client rpc port"),
		maintPort:    fs.Int("maintenance-port", 0, "client maintenance port"),
		target:       fs.String("target", "", "server target the client connects to"),
		name:         fs.String("name", "", "client display name"),
		controlPlane: fs.String("control-plane", "", "control plane target uri"),
		timeout:      fs.Duration("timeout", 0, "overall convergence timeout"),
		deadline:     fs.Duration("deadline", 0, "per-introspection-call deadline"),
		verbose:      fs.Bool("verbose", false, "log every polling attempt"),
	}
}

func (cf *clientFlags) parse(args []string) {
	_ = cf.fs.Parse(args)

	level := slog.LevelInfo
	if *cf.verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

// client builds the test client handle from the config file plus overrides.
func (cf *clientFlags) client() (*testclient.Client, config.ClientConfig) {
	cfg, err := loadConfig(*cf.configPath)
	if err != nil {
		fatal(err)
	}
	if cfg.Client == nil {
		cfg.Client = &config.ClientConfig{}
	}
	if *cf.addr != "" {
		cfg.Client.Addr = *cf.addr
	}
	if *cf.rpcPort != 0 {
		cfg.Client.RPCPort = *cf.rpcPort
	}
	if *cf.maintPort != 0 {
		cfg.Client.MaintenancePort = *cf.maintPort
	}
	if *cf.target != "" {
		cfg.Client.ServerTarget = *cf.target
	}
	if *cf.name != "" {
		cfg.Client.Name = *cf.name
	}
	if *cf.controlPlane != "" {
		cfg.Client.ControlPlaneURI = *cf.controlPlane
	}
	config.ApplyDefaults(&cfg)
	if err := config.Validate(cfg); err != nil {
		fatal(err)
	}

	client, err := testclient.New(testclient.Config{
		Addr:            cfg.Client.Addr,
		RPCPort:         cfg.Client.RPCPort,
		MaintenancePort: cfg.Client.MaintenancePort,
		ServerTarget:    cfg.Client.ServerTarget,
		Hostname:        cfg.Client.Name,
		ControlPlaneURI: cfg.Client.ControlPlaneURI,
	})
	if err != nil {
		fatal(err)
	}
	return client, *cfg.Client
}

// waitOpts translates flags and config into wait options.
func (cf *clientFlags) waitOpts(clientCfg config.ClientConfig) []testclient.WaitOption {
	var opts []testclient.WaitOption

	timeout := *cf.timeout
	if timeout == 0 && clientCfg.WaitTimeoutSec > 0 {
		timeout = time.Duration(clientCfg.WaitTimeoutSec) * time.Second
	}
	if timeout > 0 {
		opts = append(opts, testclient.WithTimeout(timeout))
	}

	deadline := *cf.deadline
	if deadline == 0 && clientCfg.RPCDeadlineSec > 0 {
		deadline = time.Duration(clientCfg.RPCDeadlineSec) * time.Second
	}
	if deadline > 0 {
		opts = append(opts, testclient.WithRPCDeadline(deadline))
	}

	return opts
}

func waitReady(args []string) {
	cf := newClientFlags("wait-ready")
	cf.parse(args)

	client, clientCfg := cf.client()
	defer client.Close()

	ctx, cancel := signalContext()
	defer cancel()

	ch, err := client.WaitForServerChannelReady(ctx, cf.waitOpts(clientCfg)...)
	if err != nil {
		fatal(err)
	}
	fmt.Println(channelz.ChannelRepr(ch))
}

func waitState(args []string) {
	cf := newClientFlags("wait-state")
	stateName := cf.fs.String("state", "READY", "channel state to wait for")
	cf.parse(args)

	state, err := channelz.ParseState(*stateName)
	if err != nil {
		fatal(err)
	}

	client, clientCfg := cf.client()
	defer client.Close()

	ctx, cancel := signalContext()
	defer cancel()

	ch, err := client.WaitForServerChannelState(ctx, state, cf.waitOpts(clientCfg)...)
	if err != nil {
		fatal(err)
	}
	fmt.Println(channelz.ChannelRepr(ch))
}

func waitControlPlane(args []string) {
	cf := newClientFlags("wait-control-plane")
	cf.parse(args)

	client, clientCfg := cf.client()
	defer client.Close()

	ctx, cancel := signalContext()
	defer cancel()

	ch, err := client.WaitForControlPlaneChannelActive(ctx, cf.waitOpts(clientCfg)...)
	if err != nil {
		fatal(err)
	}
	fmt.Println(channelz.ChannelRepr(ch))
}

func activeSocket(args []string) {
	cf := newClientFlags("socket")
	cf.parse(args)

	client, _ := cf.client()
	defer client.Close()

	ctx, cancel := signalContext()
	defer cancel()

	socket, err := client.ActiveServerSocket(ctx)
	if err != nil {
		fatal(err)
	}
	fmt.Println(channelz.SocketRepr(socket))
}

func clientStats(args []string) {
	cf := newClientFlags("stats")
	numRPCs := cf.fs.Int("num-rpcs", 100, "number of RPCs to send")
	statsTimeoutSec := cf.fs.Int("stats-timeout-sec", 30, "seconds the client may take to finish the RPCs")
	csvPath := cf.fs.String("csv", "", "write per-peer counts to a CSV file")
	metadataAll := cf.fs.Bool("metadata-all", false, "request all RPC metadata")
	cf.parse(args)

	client, _ := cf.client()
	defer client.Close()

	ctx, cancel := signalContext()
	defer cancel()

	var keys []string
	if *metadataAll {
		keys = []string{interop.MetadataKeysAll}
	}
	resp, err := client.Stats().GetClientStats(ctx, int32(*numRPCs), int32(*statsTimeoutSec), keys...)
	if err != nil {
		fatal(err)
	}

	summary := stats.Summarize(resp)
	fmt.Printf("rpcs=%d failures=%d failure_ratio=%.3f\n",
		summary.TotalRPCs, summary.Failures, summary.FailureRatio())
	for _, p := range summary.Peers {
		fmt.Printf("%-30s %d\n", p.Peer, p.RPCs)
	}

	if *csvPath != "" {
		f, err := os.Create(*csvPath)
		if err != nil {
			fatal(err)
		}
		defer f.Close()
		if err := stats.WriteCSV(f, summary); err != nil {
			fatal(err)
		}
	}
}

func accumulatedStats(args []string) {
	cf := newClientFlags("accumulated-stats")
	cf.parse(args)

	client, _ := cf.client()
	defer client.Close()

	ctx, cancel := signalContext()
	defer cancel()

	resp, err := client.Stats().GetClientAccumulatedStats(ctx)
	if err != nil {
		fatal(err)
	}
	fmt.Println(resp.String())
}

func configDump(args []string) {
	cf := newClientFlags("config-dump")
	cf.parse(args)

	client, _ := cf.client()
	defer client.Close()

	ctx, cancel := signalContext()
	defer cancel()

	dump, err := client.CSDS().Dump(ctx)
	if err != nil {
		fatal(err)
	}
	fmt.Print(dump)
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Config{}, nil
	}
	return config.Load(path)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signals
		cancel()
	}()
	return ctx, cancel
}

func fatal(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
