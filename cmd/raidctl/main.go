package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	raid "github.com/LeoZ100/RaidArrayDriver"
	"github.com/LeoZ100/RaidArrayDriver/internal/config"
	"github.com/LeoZ100/RaidArrayDriver/internal/logging"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to an INI config file (defaults used if empty)")
		verbose    = flag.Bool("v", false, "Verbose output")
		maxTags    = flag.Int("max-tags", 64, "max_tags passed to init")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.Error("failed to load config", "path", *configPath, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	driver := raid.New(cfg, raid.WithLogger(logger))

	switch args[0] {
	case "init":
		runInit(driver, *maxTags, logger)
	case "status":
		runStatus(driver, *maxTags, logger)
	case "read":
		runRead(driver, *maxTags, args[1:], logger)
	case "write":
		runWrite(driver, *maxTags, args[1:], logger)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: raidctl [-config path] [-max-tags n] <init|status|read|write> [args]\n")
	fmt.Fprintf(os.Stderr, "  read  <tag> <start_block> <count>\n")
	fmt.Fprintf(os.Stderr, "  write <tag> <start_block> <data-string>\n")
}

func runInit(driver *raid.Driver, maxTags int, logger *logging.Logger) {
	if err := driver.Init(maxTags); err != nil {
		logger.Error("init failed", "error", err)
		os.Exit(1)
	}
	fmt.Println("driver initialised")
	waitForShutdownAndClose(driver, logger)
}

func runStatus(driver *raid.Driver, maxTags int, logger *logging.Logger) {
	if err := driver.Init(maxTags); err != nil {
		logger.Error("init failed", "error", err)
		os.Exit(1)
	}
	defer driver.Close()
	if err := driver.StatusPoll(); err != nil {
		logger.Error("status_poll failed", "error", err)
		os.Exit(1)
	}
	snap := driver.Metrics().Snapshot()
	fmt.Printf("read_ops=%d write_ops=%d cache_hit_rate=%.2f disks_failed=%d recovered_cells=%d\n",
		snap.ReadOps, snap.WriteOps, snap.CacheHitRate, snap.DisksFailed, snap.RecoveredCells)
}

func runRead(driver *raid.Driver, maxTags int, args []string, logger *logging.Logger) {
	if len(args) != 3 {
		usage()
		os.Exit(2)
	}
	tag, startBlock, count := parseThreeInts(args)
	if err := driver.Init(maxTags); err != nil {
		logger.Error("init failed", "error", err)
		os.Exit(1)
	}
	defer driver.Close()

	out := make([]byte, count*driver.BlockSize())
	if err := driver.Read(tag, startBlock, count, out); err != nil {
		logger.Error("read failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("%s\n", strings.TrimRight(string(out), "\x00"))
}

func runWrite(driver *raid.Driver, maxTags int, args []string, logger *logging.Logger) {
	if len(args) != 3 {
		usage()
		os.Exit(2)
	}
	tag, startBlock := parseTwoInts(args[0], args[1])
	data := []byte(args[2])

	if err := driver.Init(maxTags); err != nil {
		logger.Error("init failed", "error", err)
		os.Exit(1)
	}
	defer driver.Close()

	blockSize := driver.BlockSize()
	count := (len(data) + blockSize - 1) / blockSize
	padded := make([]byte, count*blockSize)
	copy(padded, data)

	if err := driver.Write(tag, startBlock, count, padded); err != nil {
		logger.Error("write failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %d block(s)\n", count)
}

func waitForShutdownAndClose(driver *raid.Driver, logger *logging.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("received shutdown signal")
	if err := driver.Close(); err != nil {
		logger.Error("close failed", "error", err)
		os.Exit(1)
	}
}

func parseThreeInts(args []string) (a, b, c int) {
	a = atoiOrExit(args[0])
	b = atoiOrExit(args[1])
	c = atoiOrExit(args[2])
	return
}

func parseTwoInts(s1, s2 string) (a, b int) {
	return atoiOrExit(s1), atoiOrExit(s2)
}

func atoiOrExit(s string) int {
	var v int
	if _, err := fmt.Sscanf(s, "%d", &v); err != nil {
		fmt.Fprintf(os.Stderr, "invalid integer %q: %v\n", s, err)
		os.Exit(2)
	}
	return v
}
