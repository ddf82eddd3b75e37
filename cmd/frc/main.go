// Package main runs the Flying Robot Commander gateway.
//
// The gateway loads the fleet configuration, serves a small REST API that
// translates GET requests into bus commands, and keeps the latest telemetry
// message of every type for every vehicle seen on the bus.
//
// Usage:
//
//	frc [options]
//
// Options:
//
//	-ip ADDR              Bind address (default: 127.0.0.1)
//	-port N               HTTP port (default: 5000)
//	-file PATH            Client-view configuration (default: frc_conf.xml)
//	-curl                 Echo every request as a curl command on stdout
//	-subscribe            Subscribe to telemetry on the bus
//	-verbose              Dump the fleet at startup, trace commands in replies
//	-nats URL             Bus URL (default: nats://127.0.0.1:4222, env: NATS_URL)
//	-subject-prefix P     Bus subject prefix (default: pprz)
//	-codec NAME           Bus payload codec: json or msgpack (default: json)
//	-log-level LEVEL      debug, info, warn or error (default: info)
//	-log-file PATH        Write JSON logs to a rotated file instead of stderr
//	-store BACKEND        Snapshot store: none, sqlite or postgres (default: none)
//	-sqlite-path PATH     SQLite snapshot file (default: frc_snapshot.db)
//	-pg-host HOST         PostgreSQL host (default: localhost, env: POSTGRES_HOST)
//	-pg-port PORT         PostgreSQL port (default: 5432, env: POSTGRES_PORT)
//	-pg-database DB       PostgreSQL database (default: frc, env: POSTGRES_DATABASE)
//	-pg-user USER         PostgreSQL user (default: frc, env: POSTGRES_USER)
//	-pg-password PASS     PostgreSQL password (default: frc, env: POSTGRES_PASSWORD)
//
// Environment:
//
//	PAPARAZZI_SRC         Source tree holding conf/conf.xml (default: ~/paparazzi)
//	PAPARAZZI_HOME        Tree holding var/aircrafts/*/settings.xml (default: PAPARAZZI_SRC)
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/goforj/godump"
	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"frc/internal/api"
	"frc/internal/bus"
	"frc/internal/command"
	"frc/internal/conf"
	"frc/internal/fleet"
	"frc/internal/ingest"
	"frc/internal/log"
	"frc/internal/pprz"
	"frc/internal/settings"
	"frc/internal/snapshot"
)

func main() {
	os.Exit(run())
}

func run() int {
	ip := flag.String("ip", "127.0.0.1", "ip address")
	port := flag.Int("port", 5000, "port number")
	file := flag.String("file", "frc_conf.xml", "client configuration file")
	curl := flag.Bool("curl", false, "dump actions as curl commands")
	subscribe := flag.Bool("subscribe", false, "subscribe to the telemetry bus")
	verbose := flag.Bool("verbose", false, "verbose mode")

	// Bus flags.
	natsURL := flag.String("nats", envOrDefault("NATS_URL", nats.DefaultURL), "NATS server URL")
	prefix := flag.String("subject-prefix", bus.DefaultPrefix, "bus subject prefix")
	codecName := flag.String("codec", "json", "bus payload codec (json, msgpack)")

	// Logging flags.
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	logFile := flag.String("log-file", "", "rotated JSON log file (default: stderr)")

	// Snapshot store flags.
	storeBackend := flag.String("store", snapshot.BackendNone, "snapshot store (none, sqlite, postgres)")
	sqlitePath := flag.String("sqlite-path", "frc_snapshot.db", "SQLite snapshot file")
	pgHost := flag.String("pg-host", envOrDefault("POSTGRES_HOST", "localhost"), "PostgreSQL host")
	pgPort := flag.Int("pg-port", envOrDefaultInt("POSTGRES_PORT", 5432), "PostgreSQL port")
	pgUser := flag.String("pg-user", envOrDefault("POSTGRES_USER", "frc"), "PostgreSQL user")
	pgPassword := flag.String("pg-password", envOrDefault("POSTGRES_PASSWORD", "frc"), "PostgreSQL password")
	pgDB := flag.String("pg-database", envOrDefault("POSTGRES_DATABASE", "frc"), "PostgreSQL database")

	flag.Parse()

	// Verbose mode traces every sent bus message.
	level := *logLevel
	if *verbose && level == "info" {
		level = "debug"
	}
	logger, err := log.New(log.Config{Level: level, File: *logFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	src := envOrDefault("PAPARAZZI_SRC", defaultSrc())
	home := envOrDefault("PAPARAZZI_HOME", src)

	// Static configuration. Any error here is fatal.
	dir := fleet.NewDirectory()
	ids, err := conf.LoadFleet(conf.ConfDir(src), dir)
	if err != nil {
		logger.Error("loading fleet configuration", "error", err)
		return 1
	}
	logger.Info("fleet loaded", "aircraft", len(ids), "src", src)
	dir.OnVehicleNew(func(v fleet.Vehicle) {
		logger.Info("new vehicle", "ac_id", v.ID, "name", v.Name)
	})

	if err := conf.LoadClientView(*file, dir, logger); err != nil {
		logger.Error("loading client view", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := snapshot.Open(ctx, snapshot.Config{
		Backend:    *storeBackend,
		SQLitePath: *sqlitePath,
		Postgres: snapshot.PostgresConfig{
			Host:     *pgHost,
			Port:     *pgPort,
			Database: *pgDB,
			User:     *pgUser,
			Password: *pgPassword,
		},
	})
	if err != nil {
		logger.Error("opening snapshot store", "backend", *storeBackend, "error", err)
		return 1
	}
	if store != nil {
		defer func() { _ = store.Close() }()
		n, err := snapshot.Restore(ctx, store, dir)
		if err != nil {
			logger.Warn("snapshot restore incomplete", "error", err)
		}
		if err := snapshot.SaveDirectory(ctx, store, dir); err != nil {
			logger.Warn("snapshot vehicle write failed", "error", err)
		}
		logger.Info("snapshot restored", "backend", *storeBackend, "messages", n)
	}

	if *verbose {
		dumpDirectory(dir)
	}

	codec, err := pprz.CodecByName(*codecName)
	if err != nil {
		logger.Error("selecting codec", "error", err)
		return 1
	}

	client, err := bus.Connect(bus.Config{
		URL:    *natsURL,
		Prefix: *prefix,
		Name:   "FlyingRobotCommander",
		Codec:  codec,
	}, logger)
	if err != nil {
		// Only a bad URL or prefix gets here; an unreachable server is retried.
		logger.Error("configuring bus", "error", err)
		return 1
	}
	defer func() { _ = client.Close() }()

	var ingestOpts []ingest.Option
	if store != nil {
		ingestOpts = append(ingestOpts, ingest.WithStore(store))
	}
	ingester := ingest.New(dir, codec, logger, ingestOpts...)
	if *subscribe {
		if err := client.Subscribe(ingester.Handle); err != nil {
			logger.Error("subscribing to telemetry", "error", err)
			return 1
		}
	}

	commander := command.New(command.Config{
		Publisher: client,
		Settings:  settings.NewResolver(home, dir),
		Clients:   dir.Clients(),
		Logger:    logger,
		Verbose:   *verbose,
	})

	apiCfg := api.Config{IP: *ip, Port: *port, Verbose: *verbose}
	if *curl {
		apiCfg.Curl = os.Stdout
		_ = api.WriteCurlHeader(os.Stdout, *ip, *port)
	}
	server := api.NewServer(dir, commander, apiCfg, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })
	if *subscribe {
		g.Go(func() error { return ingester.Run(gctx) })
	}

	err = g.Wait()
	st := ingester.Stats()
	logger.Info("shutting down",
		"received", st.Received, "applied", st.Applied,
		"decode_errors", st.DecodeErrors, "dropped", st.Dropped)
	if err != nil {
		logger.Error("server error", "error", err)
		return 1
	}
	return 0
}

// dumpDirectory prints every loaded vehicle.
func dumpDirectory(dir *fleet.Directory) {
	for _, id := range dir.VehicleIDs() {
		if v, ok := dir.Vehicle(id); ok {
			godump.Dump(v)
		}
	}
	c := dir.Clients()
	fmt.Printf("client aircraft: %v\nclient flightblocks: %v\nclient waypoints: %v\n",
		c.Vehicles(), c.FlightBlocks(), c.Waypoints())
}

func defaultSrc() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "paparazzi"
	}
	return filepath.Join(home, "paparazzi")
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
