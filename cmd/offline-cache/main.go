package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	offlinecache "github.com/prototypingcove/offline-cache"
	"github.com/prototypingcove/offline-cache/tier"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

const defaultConfigFile = "offline-cache.yml"

var (
	// CLI flags
	portFlag           int
	originFlag         string
	configFlag         string
	dbFilenameFlag     string
	verbosityTraceFlag bool
	logFilenameFlag    string

	// this is set by goreleaser
	version string
)

func init() {
	flag.StringVar(&configFlag, "config", defaultConfigFile, "Configuration file")
	flag.StringVar(&originFlag, "origin", "", "Origin URL to proxy to (overrides config)")
	flag.IntVar(&portFlag, "port", 8080, "Port to listen on")
	flag.StringVar(&dbFilenameFlag, "db", "cache.db", "Cache DB file name (use 'memory' for in-memory db)")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	flag.StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stdout, rotated)")

	if version == "" {
		version = "DEV"
	}
}

func main() {
	flag.Parse()

	// set log level
	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}

	// set up log output to stdout
	// also output to a rotated log file if specified
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stdout})
	if logFilenameFlag != "" {
		logOutputs = append(logOutputs, &lumberjack.Logger{
			Filename:   logFilenameFlag,
			MaxSize:    100,
			MaxBackups: 3,
			LocalTime:  true,
		})
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Str("version", version).Logger()

	fileConfig, err := getConfig(configFlag)
	if err != nil {
		// a missing default config file is fine, the origin flag can
		// carry a minimal setup on its own
		if !(os.IsNotExist(err) && configFlag == defaultConfigFile) {
			log.Fatal().Err(err).Str("file", configFlag).Msg("Could not read configuration")
		}
	}

	origin := fileConfig.Origin
	if originFlag != "" {
		origin = originFlag
	}
	if origin == "" {
		log.Fatal().Msg("Please specify origin")
	}
	originUrl, err := url.Parse(origin)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not parse origin url")
	}

	var store tier.Store
	if dbFilenameFlag == "memory" {
		store = tier.NewMemStore()
	} else {
		sqliteStore, err := tier.NewSQLiteStore(dbFilenameFlag)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not open cache database")
		}
		store = sqliteStore
	}

	sweepInterval, err := fileConfig.Dynamic.interval()
	if err != nil {
		log.Fatal().Err(err).Msg("Could not parse sweep interval")
	}

	proxy := offlinecache.CreateProxy(offlinecache.Config{
		Store:          store,
		Origin:         *originUrl,
		Version:        fileConfig.Version,
		Precache:       fileConfig.Precache,
		Shell:          fileConfig.Shell,
		Placeholder:    fileConfig.Placeholder,
		DocumentRoutes: fileConfig.DocumentRoutes,
		AllowedOrigins: fileConfig.AllowedOrigins,
		DynamicLimit:   fileConfig.Dynamic.MaxEntries,
		SweepInterval:  sweepInterval,
		Logger:         &log.Logger,
	})

	// take over traffic only with a fully populated static tier
	if err := proxy.Install(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Could not install precache manifest")
	}
	if err := proxy.Activate(); err != nil {
		log.Error().Err(err).Msg("Could not prune stale generations")
	}

	r := chi.NewRouter()
	r.Use(hlog.NewHandler(log.Logger))
	r.Use(hlog.RequestIDHandler("requestId", "Request-Id"))
	r.Get("/-/healthz", handleHealthz)
	r.Get("/-/tiers", handleTiers(proxy))
	r.Post("/-/sync", handleSync(proxy))
	r.Handle("/*", proxy)

	log.Info().Msgf("Proxying port %v to %s", portFlag, originUrl.String())
	if err := http.ListenAndServe(fmt.Sprintf(":%d", portFlag), r); err != nil {
		panic(err)
	}
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleTiers(proxy *offlinecache.Proxy) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		infos, err := proxy.Tiers()
		if err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("Could not list tiers")
			http.Error(w, "Could not list tiers", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"tiers": infos})
	}
}

func handleSync(proxy *offlinecache.Proxy) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := proxy.Resync(r.Context()); err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("Could not sync")
			http.Error(w, "Could not sync", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}
