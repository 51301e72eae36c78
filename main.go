package main

import (
	"context"
	"flag"
	"masterclock/commands"
	"masterclock/config"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
)

func setLogLevel(level string) {
	l, err := log.ParseLevel(level)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	log.SetLevel(l)
}

func registerGlobalFlags(fset *flag.FlagSet) {
	flag.VisitAll(func(f *flag.Flag) {
		fset.Var(f.Value, f.Name, f.Usage)
	})
}

func checkConfig(cfg string) {
	if cfg == "" {
		log.Fatal("Config file not specified")
	}
}

// loadConfig reads the config file, or falls back to defaults when none is given.
func loadConfig(configFile string) *config.Config {
	if configFile == "" {
		return config.NewEmptyConfig("")
	}
	cfg, err := config.NewConfigFromFile(configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func usage() {
	log.Fatalf("Usage: %s init|serve|info [-config file] [-loglevel level] ...\n"+
		"  serve [-listen host:port] [slave-address ...]", os.Args[0])
}

// main is the entry point of the application.
func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	configFile := flag.String("config", "", "Path to config file")
	logLevel := flag.String("loglevel", "info", "Log level")

	initCmd := flag.NewFlagSet("init", flag.ExitOnError)
	registerGlobalFlags(initCmd)

	serveCmd := flag.NewFlagSet("serve", flag.ExitOnError)
	listen := serveCmd.String("listen", "", "UDP address to bind, overrides the config file")
	registerGlobalFlags(serveCmd)

	infoCmd := flag.NewFlagSet("info", flag.ExitOnError)
	count := infoCmd.Int("n", 10, "Number of recent cycles to show")
	registerGlobalFlags(infoCmd)

	if len(os.Args) < 2 {
		usage()
	}
	cmd, args := os.Args[1], os.Args[2:]

	switch cmd {
	case "init":
		initCmd.Parse(args)
		checkConfig(*configFile)
		setLogLevel(*logLevel)
		cfg := config.NewEmptyConfig(*configFile)
		commands.RunInit(ctx, cfg, *configFile)
	case "serve":
		serveCmd.Parse(args)
		setLogLevel(*logLevel)
		cfg := loadConfig(*configFile)
		if *listen != "" {
			cfg.Network.ListenAddress = *listen
		}
		cfg.Network.Slaves = append(cfg.Network.Slaves, serveCmd.Args()...)
		if err := cfg.Validate(); err != nil {
			log.Fatalf("Invalid configuration: %v", err)
		}
		commands.RunServe(ctx, cfg)
	case "info":
		infoCmd.Parse(args)
		setLogLevel(*logLevel)
		cfg := loadConfig(*configFile)
		commands.RunInfo(ctx, cfg, *count)
	default:
		log.Fatalf("Invalid subcommand '%s'", os.Args[1])
	}
}
