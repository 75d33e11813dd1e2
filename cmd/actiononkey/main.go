package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("actiononkey v%s\n", version)
	fmt.Println("Runs a command and shows a notification when a hardware key is pressed")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  actiononkey [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Daemon that watches one Linux input device (for example a tri-state")
	fmt.Println("  mute switch) and, for every configured key code pressed, runs a shell")
	fmt.Println("  command and shows a short low-urgency desktop notification.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Printf("        Config file, YAML (.yaml/.yml) or KEY=VALUE (default %q)\n", defaultConfigPath)
	fmt.Println()
	fmt.Println("  -device string")
	fmt.Println("        Input event device, overrides the config file (e.g. /dev/input/event2)")
	fmt.Println()
	fmt.Println("  -grab")
	fmt.Println("        Take exclusive access to the device (EVIOCGRAB)")
	fmt.Println()
	fmt.Println("  -executor string")
	fmt.Println("        Command execution: queued|direct (default \"queued\")")
	fmt.Println("        queued: one worker runs commands in press order")
	fmt.Println("        direct: every press starts its own detached process")
	fmt.Println()
	fmt.Println("  -shell string")
	fmt.Printf("        Shell used to run commands (default %q)\n", defaultShell)
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Println("        Unix domain socket for actiononkey-ctl (default: disabled)")
	fmt.Println()
	fmt.Println("  -http-listen string")
	fmt.Println("        Address for the /ws/triggers feed, e.g. 127.0.0.1:3011 (default: disabled)")
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Use the device package config")
	fmt.Println("  actiononkey")
	fmt.Println()
	fmt.Println("  # YAML config, detached commands, control socket")
	fmt.Println("  actiononkey -config ~/.config/actiononkey.yaml -executor direct -ipc-socket /run/user/1000/actiononkey.sock")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - Requires read access to the input device (run as root or add user to 'input' group)")
	fmt.Println("  - Notifications go to the session bus; run inside the user session")
	fmt.Println()
}

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return
		}
	}

	var (
		configPath  = flag.String("config", defaultConfigPath, "Config file (YAML or KEY=VALUE)")
		device      = flag.String("device", "", "Input event device (overrides config)")
		grab        = flag.Bool("grab", false, "Take exclusive access to the device")
		executor    = flag.String("executor", ExecutorQueued, "Command execution: queued|direct")
		shell       = flag.String("shell", defaultShell, "Shell used to run commands")
		ipcSocket   = flag.String("ipc-socket", "", "Unix domain socket path for IPC")
		httpListen  = flag.String("http-listen", "", "Listen address for the trigger feed")
		logLevelStr = flag.String("log-level", "info", "Log level: error, warn, info, debug")
		_           = flag.Bool("version", false, "Print version and exit")
		_           = flag.Bool("help", false, "Print help message")
	)

	flag.Usage = printUsage
	flag.Parse()

	// Only flags given on the command line override the file.
	var overrides FlagOverrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "device":
			overrides.Device = device
		case "grab":
			overrides.Grab = grab
		case "executor":
			overrides.Executor = executor
		case "shell":
			overrides.Shell = shell
		case "ipc-socket":
			overrides.IPCSocketPath = ipcSocket
		case "http-listen":
			overrides.HTTPListen = httpListen
		case "log-level":
			overrides.LogLevel = logLevelStr
		}
	})

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	overrides.Apply(&cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	logLevel, err := parseLogLevel(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	logger := setupLogger(logLevel)

	logger.Debug("starting actiononkey", "version", version, "config", *configPath)
	for _, a := range cfg.Actions {
		logger.Debug("action", "key_code", *a.KeyCode, "command", a.Command, "title", a.Title)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		fmt.Fprintln(os.Stderr, "error:", describe(err))
		os.Exit(1)
	}
}
