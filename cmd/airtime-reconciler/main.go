package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.opencensus.io/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sys/unix"

	"github.com/gebv/airtime/engine/worker"
	"github.com/gebv/airtime/httputils"
	"github.com/gebv/airtime/storage"
)

var (
	VERSION = "dev"

	natsURLF   = flag.String("nats-url", nats.DefaultURL, "NATS server url, NATS_URL overrides it.")
	dbDriverF  = flag.String("db-driver", storage.SQLite, "Database driver: postgres or sqlite.")
	dbConnF    = flag.String("db-conn", "airtime.db", "Database connection string or sqlite file, PG_CONN overrides it.")
	debugAddrF = flag.String("debug-addr", "127.0.0.1:9092", "Debug listen address (metrics and liveness).")

	onLoggerDev         = flag.Bool("logger-dev", false, "Enable development logger.")
	onLoggerDebugLevelF = flag.Bool("logger-debug-level", false, "Enable debug level logger.")
)

func main() {
	flag.Parse()
	if *onLoggerDebugLevelF {
		defaultLogger("DEBUG")
	} else {
		defaultLogger("INFO")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	zap.L().Info("Starting escalation reconciler...", zap.String("version", VERSION))
	defer func() { zap.L().Info("Done.") }()
	handleTerm(cancel)

	trace.ApplyConfig(trace.Config{DefaultSampler: trace.AlwaysSample()})

	natsURL := *natsURLF
	if v := os.Getenv("NATS_URL"); v != "" {
		natsURL = v
	}
	dbConn := *dbConnF
	if v := os.Getenv("PG_CONN"); v != "" && *dbDriverF == storage.Postgres {
		dbConn = v
	}

	db, err := storage.Open(*dbDriverF, dbConn, 0, 2, 2)
	if err != nil {
		zap.L().Panic("Failed to open database.", zap.String("driver", *dbDriverF), zap.Error(err))
	}
	defer func() {
		if err := storage.Close(db); err != nil {
			zap.L().Error("Failed close database.", zap.Error(err))
		}
	}()

	nc, err := nats.Connect(natsURL,
		nats.Name("airtime-reconciler"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			zap.L().Warn("NATS disconnected.", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			zap.L().Info("NATS reconnected.", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		zap.L().Panic("Failed to connect to NATS.", zap.Error(err))
	}
	defer nc.Close()

	sub, err := worker.SubToNATS(nc, storage.NewLedger(db))
	if err != nil {
		zap.L().Panic("Failed to subscribe.", zap.Error(err))
	}
	zap.L().Info("Listening escalations.", zap.String("subject", worker.ESCALATIONS_SUBJECT), zap.String("url", nc.ConnectedUrl()))

	debugServer := &http.Server{
		Addr:    *debugAddrF,
		Handler: httputils.RunDebugMux(),
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := debugServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zap.L().Error("Failed run debug server.", zap.Error(err))
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		// let in-flight escalations reach the ledger
		if err := sub.Drain(); err != nil {
			zap.L().Error("Failed drain subscription.", zap.Error(err))
		}
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		for sub.IsValid() && shutdownCtx.Err() == nil {
			time.Sleep(50 * time.Millisecond)
		}
		if err := debugServer.Shutdown(shutdownCtx); err != nil {
			zap.L().Error("Failed shutdown debug server.", zap.Error(err))
		}
	}()

	wg.Wait()
}

// Configure configure zap logger.
//
// Available values of level:
// - DEBUG
// - INFO
// - WARN
// - ERROR
// - DPANIC
// - PANIC
// - FATAL
func defaultLogger(levelSet string) {
	level := zapcore.InfoLevel
	if err := level.Set(levelSet); err != nil {
		panic(err)
	}
	config := zap.NewProductionConfig()
	if *onLoggerDev {
		config = zap.NewDevelopmentConfig()
	}
	config.Level.SetLevel(level)
	l, err := config.Build(zap.AddStacktrace(zap.ErrorLevel))
	if err != nil {
		panic(err)
	}
	zap.ReplaceGlobals(l)
	zap.RedirectStdLog(l.Named("stdlog"))
}

func handleTerm(cancel context.CancelFunc) {
	// handle termination signals: first one gracefully, force exit on the second one
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, unix.SIGTERM, unix.SIGINT)
	go func() {
		s := <-signals
		zap.L().Warn("Shutting down.", zap.String("signal", unix.SignalName(s.(unix.Signal))))
		cancel()

		s = <-signals
		zap.L().Panic("Exiting!", zap.String("signal", unix.SignalName(s.(unix.Signal))))
	}()
}
