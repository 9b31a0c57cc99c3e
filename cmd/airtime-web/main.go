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
	"github.com/prometheus/client_golang/prometheus"
	"go.opencensus.io/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sys/unix"

	"github.com/gebv/airtime/engine"
	"github.com/gebv/airtime/engine/worker"
	"github.com/gebv/airtime/httputils"
	"github.com/gebv/airtime/notify"
	"github.com/gebv/airtime/provider"
	"github.com/gebv/airtime/provider/dtone"
	"github.com/gebv/airtime/provider/paypal"
	"github.com/gebv/airtime/services/auditor"
	"github.com/gebv/airtime/services/storefront"
	"github.com/gebv/airtime/sessions"
	"github.com/gebv/airtime/storage"
)

var (
	VERSION = "dev"

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
	zap.L().Info("Starting airtime storefront...", zap.String("version", VERSION))
	defer func() { zap.L().Info("Done.") }()
	handleTerm(cancel)

	cfg, err := loadConfig(os.Getenv)
	if err != nil {
		zap.L().Panic("Invalid configuration.", zap.Error(err))
	}

	// spans are kept in-process and served by /debug/tracez
	trace.ApplyConfig(trace.Config{DefaultSampler: trace.ProbabilitySampler(cfg.TraceSampling)})

	db, err := storage.Open(cfg.DBDriver, cfg.DBConn, 0, 5, 5)
	if err != nil {
		zap.L().Panic("Failed to open database.", zap.String("driver", cfg.DBDriver), zap.Error(err))
	}
	defer func() {
		if err := storage.Close(db); err != nil {
			zap.L().Error("Failed close database.", zap.Error(err))
		}
	}()

	sessionStore, err := sessions.Open(cfg.SessionsPath, cfg.SessionTTL)
	if err != nil {
		zap.L().Panic("Failed to open sessions.", zap.String("path", cfg.SessionsPath), zap.Error(err))
	}
	defer sessionStore.Close()

	// every outbound vendor call lands in vendor_calls
	vendorAuditor := auditor.NewVendorAuditor(db)
	defer vendorAuditor.Stop()
	prometheus.MustRegister(vendorAuditor)

	dtoneBreaker := provider.NewBreaker(provider.DTONE, provider.BreakerConfig{})
	prometheus.MustRegister(dtoneBreaker)
	dtoneProvider := dtone.NewProvider(
		dtone.Config{
			EntrypointURL: cfg.DTOneURL,
			UserName:      cfg.DTOneUserName,
			Password:      cfg.DTOnePassword,
			Timeout:       cfg.HTTPTimeout,
		},
		vendorAuditor,
		dtoneBreaker,
	)

	opts := engine.Options{
		Mode:      cfg.Mode,
		Directory: dtoneProvider,
		Submitter: dtoneProvider,
		Sessions:  sessionStore,
		Ledger:    storage.NewLedger(db),
	}

	if cfg.Mode == engine.GATEWAY_MODE {
		paypalBreaker := provider.NewBreaker(provider.PAYPAL, provider.BreakerConfig{})
		prometheus.MustRegister(paypalBreaker)
		opts.Gateway = paypal.NewProvider(
			db,
			paypal.Config{
				EntrypointURL: cfg.PayPalURL,
				ClientID:      cfg.PayPalClientID,
				ClientSecret:  cfg.PayPalClientSecret,
				Timeout:       cfg.HTTPTimeout,
			},
			vendorAuditor,
			paypalBreaker,
		)
		zap.L().Info("PayPal - configured!", zap.String("entrypoint", cfg.PayPalURL))
	}

	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("airtime-web"), nats.MaxReconnects(-1))
		if err != nil {
			zap.L().Panic("Failed to connect to NATS.", zap.Error(err))
		}
		defer nc.Close()
		opts.Escalations = worker.NewPublisher(nc)
		zap.L().Info("NATS - connected!", zap.String("url", nc.ConnectedUrl()))
	}

	if cfg.SMTPAddr != "" {
		mailer, err := notify.NewMailer(notify.Config{
			Addr:     cfg.SMTPAddr,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.ReceiptFrom,
			SSL:      cfg.SMTPSSL,
			Timeout:  cfg.HTTPTimeout,
		})
		if err != nil {
			zap.L().Panic("Failed to configure mailer.", zap.Error(err))
		}
		opts.Receipts = mailer
	}

	checkout, err := engine.NewService(opts)
	if err != nil {
		zap.L().Panic("Failed to create checkout service.", zap.Error(err))
	}
	prometheus.MustRegister(checkout)

	e := storefront.NewServer(checkout, storefront.Config{
		PublicURL:     cfg.PublicURL,
		AdminUser:     cfg.AdminUser,
		AdminPassword: cfg.AdminPassword,
		AppVersion:    VERSION,
	}).Echo()

	debugServer := &http.Server{
		Addr:    cfg.DebugAddr,
		Handler: httputils.RunDebugMux(),
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		sessionStore.RunSweeper(ctx, time.Minute)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		zap.L().Info("Debug server started.", zap.String("address", cfg.DebugAddr))
		if err := debugServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zap.L().Error("Failed run debug server.", zap.Error(err))
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		zap.L().Info("Storefront started.",
			zap.String("address", cfg.WebAddr),
			zap.String("mode", string(cfg.Mode)),
		)
		if err := e.Start(cfg.WebAddr); err != nil && err != http.ErrServerClosed {
			zap.L().Error("Failed run storefront.", zap.Error(err))
			cancel()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			zap.L().Error("Failed shutdown storefront.", zap.Error(err))
		}
		if err := debugServer.Shutdown(shutdownCtx); err != nil {
			zap.L().Error("Failed shutdown debug server.", zap.Error(err))
		}
		zap.L().Debug("Servers stopped.")
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
