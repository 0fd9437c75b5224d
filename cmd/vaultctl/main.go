package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"rewardvault/config"
	"rewardvault/core/events"
	"rewardvault/core/types"
	"rewardvault/native/access"
	"rewardvault/native/token"
	"rewardvault/native/vault"
	"rewardvault/observability/logging"
	statevault "rewardvault/state/vault"
	"rewardvault/storage"
)

const defaultConfig = "./vault.toml"

// action runs against an opened vault and returns the value printed as
// the command result.
type action func(rt *runtime) (interface{}, error)

type command struct {
	usage string
	setup func(fs *flag.FlagSet) action
}

type runtime struct {
	cfg      *config.Config
	db       *storage.LevelDB
	ledger   *token.Ledger
	owner    *access.Ownable
	engine   *vault.Engine
	recorder *events.Recorder
	logger   *slog.Logger
	caller   common.Address
	closer   io.Closer
}

func (rt *runtime) Close() {
	if rt.db != nil {
		rt.db.Close()
	}
	if rt.closer != nil {
		rt.closer.Close()
	}
}

type globalOptions struct {
	configPath string
	caller     string
	at         uint64
}

type output struct {
	Result interface{}    `json:"result,omitempty"`
	Events []*types.Event `json:"events,omitempty"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	name := args[0]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "Unknown command: %s\n", name)
		fmt.Fprintln(stderr, usage())
		return 1
	}

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	var opts globalOptions
	fs.StringVar(&opts.configPath, "config", defaultConfig, "Path to the vault config file")
	fs.StringVar(&opts.caller, "caller", "", "Hex address acting as msg sender (defaults to the owner)")
	fs.Uint64Var(&opts.at, "at", 0, "Unix timestamp used as the current time")
	act := cmd.setup(fs)
	if err := fs.Parse(args[1:]); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return 1
	}

	rt, err := open(opts, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer rt.Close()

	result, err := act(rt)
	if err != nil {
		rt.logger.Error("vaultctl command failed", slog.String("operation", name), slog.Any("error", err))
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	encoder := json.NewEncoder(stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(output{Result: result, Events: rt.recorder.Records()}); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func open(opts globalOptions, stderr io.Writer) (*runtime, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	logger, closer, err := logging.SetupWithFile("vaultctl", cfg.Logging.Env, logging.FileOptions{
		Console:    stderr,
		Path:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, logger: logger, closer: closer, recorder: &events.Recorder{}}

	self, err := cfg.VaultAccount()
	if err != nil {
		rt.Close()
		return nil, err
	}
	limits, err := cfg.VaultLimits()
	if err != nil {
		rt.Close()
		return nil, err
	}
	if rt.db, err = storage.NewLevelDB(cfg.DataDir); err != nil {
		rt.Close()
		return nil, fmt.Errorf("open data dir %s: %w", cfg.DataDir, err)
	}
	manager := statevault.NewManager(rt.db)

	fallback := common.Address{}
	if strings.TrimSpace(cfg.Owner) != "" {
		if fallback, err = cfg.OwnerAddress(); err != nil {
			rt.Close()
			return nil, err
		}
	}
	if rt.owner, err = access.LoadOwnable(manager, fallback); err != nil {
		rt.Close()
		return nil, fmt.Errorf("load owner: %w", err)
	}

	rt.ledger = token.NewLedger(manager)
	rt.engine = vault.NewEngine(self, rt.ledger.Bind(self), rt.owner)
	rt.engine.SetState(manager)
	rt.engine.SetEmitter(rt.recorder)
	rt.engine.SetLogger(logger)
	rt.engine.SetPauses(cfg.PauseSet())
	rt.engine.SetLimits(limits)
	rt.engine.SetPolicy(cfg.VaultPolicy())
	if opts.at > 0 {
		at := opts.at
		rt.engine.SetNowFunc(func() uint64 { return at })
	}

	rt.caller = rt.owner.Owner()
	if strings.TrimSpace(opts.caller) != "" {
		if rt.caller, err = parseAddress("caller", opts.caller); err != nil {
			rt.Close()
			return nil, err
		}
	}
	return rt, nil
}

func usage() string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("Usage: vaultctl <command> [-config path] [-caller 0x...] [-at unix] [flags]\n\nCommands:\n")
	for _, name := range names {
		fmt.Fprintf(&b, "  %-20s %s\n", name, commands[name].usage)
	}
	return strings.TrimRight(b.String(), "\n")
}
