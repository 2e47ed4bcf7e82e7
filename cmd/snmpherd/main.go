package main

import (
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/awksedgreep/snmpherd/internal/api"
	"github.com/awksedgreep/snmpherd/internal/config"
	"github.com/awksedgreep/snmpherd/internal/pool"
	"github.com/awksedgreep/snmpherd/internal/scenario"
	"github.com/awksedgreep/snmpherd/internal/store"
	"github.com/awksedgreep/snmpherd/internal/traps"
)

type stringSliceFlag []string

func (f *stringSliceFlag) String() string {
	return strings.Join(*f, ",")
}

func (f *stringSliceFlag) Set(value string) error {
	for _, part := range strings.Split(value, ",") {
		if item := strings.TrimSpace(part); item != "" {
			*f = append(*f, item)
		}
	}
	return nil
}

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	host := flag.String("host", "", "bind address for device sockets")
	community := flag.String("community", "", "default read community")
	apiAddr := flag.String("api", ":8080", "control API listen address")
	maxDevices := flag.Int("max-devices", 0, "device population cap")
	idleTimeout := flag.Duration("idle-timeout", 0, "reap devices idle past this")
	scenarioDir := flag.String("scenario-dir", "scenarios", "directory for stored scenario definitions")
	seedScenarios := flag.Bool("seed-scenarios", true, "install the builtin scenario templates when missing")
	trapCommunity := flag.String("trap-community", "public", "community for outgoing traps")
	heartbeat := flag.Duration("heartbeat", 0, "trap heartbeat interval (0 disables)")

	var trapTargets stringSliceFlag
	flag.Var(&trapTargets, "trap-target", "trap receiver host[:port] (repeatable or comma-separated)")
	var profileFlags stringSliceFlag
	flag.Var(&profileFlags, "profile", "walk capture as type=path (repeatable), overriding the config file")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			log.Fatalf("config: %v", err)
		}
	} else if err := cfg.ApplyEnv(); err != nil {
		log.Fatalf("config: %v", err)
	}

	// Flags beat both the file and the environment, but only when set.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			cfg.Global.Host = *host
		case "community":
			cfg.Global.Community = *community
		case "max-devices":
			cfg.Global.MaxDevices = *maxDevices
		case "idle-timeout":
			cfg.Global.IdleTimeout = config.Duration(*idleTimeout)
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	pcfg, err := cfg.PoolConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	reg := store.NewRegistry()
	walkFiles := cfg.WalkFiles()
	for _, spec := range profileFlags {
		deviceType, path, ok := strings.Cut(spec, "=")
		if !ok {
			log.Fatalf("bad -profile %q, want type=path", spec)
		}
		walkFiles[strings.TrimSpace(deviceType)] = strings.TrimSpace(path)
	}
	for deviceType, path := range walkFiles {
		if _, err := reg.LoadWalkProfile(deviceType, path); err != nil {
			log.Fatalf("profile %s: %v", deviceType, err)
		}
	}
	pcfg.Profiles = reg

	notifier, err := traps.NewManager(traps.Config{
		Targets:   trapTargets,
		Community: *trapCommunity,
		Heartbeat: *heartbeat,
	})
	if err != nil {
		log.Fatalf("traps: %v", err)
	}
	pcfg.Notifier = notifier

	p, err := pool.New(pcfg)
	if err != nil {
		log.Fatalf("pool: %v", err)
	}
	log.Printf("store: profiles installed for %s", strings.Join(reg.List(), ", "))
	if notifier != nil {
		notifier.DeviceCount = p.Len
	}
	notifier.Start()
	p.Start()

	checkFileDescriptors(p.Assignments().TotalPorts())
	if mb := cfg.Global.MaxMemoryMB; mb > 0 {
		log.Printf("config: memory budget %dMB is advisory; max_devices=%d is the enforced cap",
			mb, p.Stats().MaxDevices)
	}

	for deviceType, count := range cfg.Warmups() {
		n, err := p.EnsureGroup(deviceType, count)
		if err != nil {
			log.Printf("warmup %s: started %d of %d: %v", deviceType, n, count, err)
			continue
		}
		log.Printf("warmup %s: %d devices up", deviceType, n)
	}

	scenarios, err := scenario.NewStore(*scenarioDir)
	if err != nil {
		log.Fatalf("scenario: %v", err)
	}
	if *seedScenarios {
		if n := scenarios.SeedDefaults(); n > 0 {
			log.Printf("scenario: seeded %d builtin definitions", n)
		}
	}
	runner := scenario.NewRunner(p)

	srv := api.NewServer(*apiAddr, p, scenarios, runner, notifier)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("api: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("signal %v, shutting down", sig)

	// Stop the surfaces that create work before the things doing it.
	if err := srv.Stop(); err != nil {
		log.Printf("api: shutdown: %v", err)
	}
	runner.Close()
	p.Stop()
	notifier.Stop()
	log.Printf("shutdown complete")
}

// checkFileDescriptors warns when RLIMIT_NOFILE cannot cover one socket
// per assigned port plus daemon overhead.
func checkFileDescriptors(assignedPorts int) {
	var lim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &lim); err != nil {
		log.Printf("could not read RLIMIT_NOFILE: %v", err)
		return
	}
	need := uint64(assignedPorts) + 100
	if lim.Cur < need {
		log.Printf("file descriptor limit %d is below the ~%d a full population needs; raise with: ulimit -n %d",
			lim.Cur, need, need*2)
	}
}
