/**
 * Video-conferencing signaling core for the Carbonio workstream
 * collaboration platform.
 * Copyright (C) 2026 Zextras
 *
 * @license GNU AGPL version 3 or any later version
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 */
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/dlintw/goconf"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	videoserver "github.com/zextras/carbonio-ws-collaboration-ce-sub006"
)

var (
	version = "unreleased"

	configFlag = flag.String("config", "videoserver.conf", "config file to use")

	showVersion = flag.Bool("version", false, "show version and quit")
)

const (
	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 30 * time.Second

	shutdownTimeout = 10 * time.Second
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("videoserverd version %s/%s\n", version, runtime.Version())
		os.Exit(0)
	}

	logger := videoserver.DefaultLogger()
	logger.Printf("Starting up version %s/%s as pid %d", version, runtime.Version(), os.Getpid())

	configFile, err := goconf.ReadConfigFile(*configFlag)
	if err != nil {
		log.Fatalf("Could not read configuration from %s: %s", *configFlag, err)
	}

	config, err := videoserver.LoadConfig(configFile)
	if err != nil {
		log.Fatalf("Invalid configuration: %s", err)
	}
	settings := videoserver.NewSettings(logger, configFile)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	signal.Notify(sigChan, syscall.SIGHUP)

	reload := func(filename string) {
		logger.Printf("Reloading %s", filename)
		configFile, err := goconf.ReadConfigFile(filename)
		if err != nil {
			logger.Printf("Could not read configuration from %s: %s", filename, err)
			return
		}

		settings.Reload(configFile)
	}

	watcher, err := videoserver.NewFileWatcher(logger, *configFlag, reload)
	if err != nil {
		logger.Printf("Could not watch %s for changes: %s", *configFlag, err)
	} else {
		defer watcher.Close() // nolint
	}

	ctx := context.Background()

	var storage videoserver.Storage
	if config.DatabaseDSN != "" {
		pgStorage, err := videoserver.NewPostgresStorage(ctx, config.DatabaseDSN)
		if err != nil {
			log.Fatalf("Could not connect to database: %s", err)
		}
		defer pgStorage.Close()
		storage = pgStorage
		logger.Println("Using postgres storage")
	} else {
		storage = videoserver.NewMemoryStorage()
		logger.Println("Using in-memory storage, state is lost on restart")
	}

	var dispatcher videoserver.EventDispatcher
	if config.EventsURL != "" {
		natsDispatcher, err := videoserver.NewNatsEventDispatcher(logger, config.EventsURL)
		if err != nil {
			log.Fatalf("Could not create events dispatcher: %s", err)
		}
		dispatcher = natsDispatcher
	} else {
		logger.Println("No events transport configured, events will be dropped")
		dispatcher = videoserver.NullEventDispatcher{}
	}
	defer dispatcher.Close()

	client, err := videoserver.NewJanusClient(logger, settings, config)
	if err != nil {
		log.Fatalf("Could not create videoserver client: %s", err)
	}
	registry := videoserver.NewSessionRegistry(storage, storage)
	clock := videoserver.SystemClock()

	meetings := videoserver.NewMeetingService(logger, clock, client, registry, storage, dispatcher)
	meetings.Start()
	defer meetings.Stop()

	recorder := videoserver.NewHttpRecorderClient(logger, config)
	recordings := videoserver.NewRecordingService(logger, clock, client, registry, storage, storage, recorder, dispatcher, config)

	if err := meetings.RestoreConnections(ctx); err != nil {
		logger.Printf("Could not restore persisted connections: %s", err)
	}

	info, err := client.GetInfo(ctx)
	if err != nil {
		logger.Printf("Media server at %s is not reachable yet: %s", config.VideoServerURL, err)
	} else {
		logger.Printf("Connected to %s version %s", info.Name, info.VersionString)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := meetings.HealthCheck(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	// The recorder validates the token it was handed before uploading the
	// processed files.
	mux.HandleFunc("/recordings/token", func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		meetingId, err := recordings.VerifyRecordingToken(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, "{\"meeting_id\":%q}\n", meetingId)
	})

	srv := &http.Server{
		Addr:    config.ListenAddress,
		Handler: mux,

		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	}
	go func() {
		logger.Printf("Listening on %s", config.ListenAddress)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not start server: %s", err)
		}
	}()

loop:
	for sig := range sigChan {
		switch sig {
		case os.Interrupt:
			logger.Println("Interrupted")
			break loop
		case syscall.SIGHUP:
			reload(*configFlag)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("Error shutting down server: %s", err)
	}
}
