package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/OriginVault/quantum-safe-tls-proxy/pkg/auth"
	"github.com/OriginVault/quantum-safe-tls-proxy/pkg/certlifecycle"
	"github.com/OriginVault/quantum-safe-tls-proxy/pkg/config"
	"github.com/OriginVault/quantum-safe-tls-proxy/pkg/credential"
	"github.com/OriginVault/quantum-safe-tls-proxy/pkg/dispatcher"
	"github.com/OriginVault/quantum-safe-tls-proxy/pkg/health"
	"github.com/OriginVault/quantum-safe-tls-proxy/pkg/kms"
	"github.com/OriginVault/quantum-safe-tls-proxy/pkg/logger"
	"github.com/OriginVault/quantum-safe-tls-proxy/pkg/metrics"
	"github.com/OriginVault/quantum-safe-tls-proxy/pkg/middleware"
	"github.com/OriginVault/quantum-safe-tls-proxy/pkg/ratelimit"
	"github.com/OriginVault/quantum-safe-tls-proxy/pkg/server"
	"github.com/OriginVault/quantum-safe-tls-proxy/pkg/telemetry"
	"github.com/OriginVault/quantum-safe-tls-proxy/pkg/tlscontext"
)

// TLSConfig mirrors the tls section of the proxy configuration.
type TLSConfig struct {
	CertFile      string        `env:"TLS_CERT_FILE" env-required:"true"`
	KeyFile       string        `env:"TLS_KEY_FILE" env-required:"true"`
	CAFile        string        `env:"TLS_CA_FILE"`
	UseHybrid     bool          `env:"TLS_USE_HYBRID" env-default:"false"`
	CheckInterval time.Duration `env:"TLS_CHECK_INTERVAL" env-default:"1h"`
	SourceKind    string        `env:"TLS_CREDENTIAL_SOURCE" env-default:"file"` // file | aws-secret | kms
}

// QuantumConfig mirrors the quantum section: the KMS-held key names
// that protect the TLS private key when the credential source is kms,
// and (KeyName) the secret name when the source is aws-secret. The
// hybrid KEM material is generated locally and does not come from KMS.
type QuantumConfig struct {
	KeyName       string `env:"QUANTUM_KEY_NAME"`
	KmsAESKeyName string `env:"QUANTUM_KMS_AES_KEY_NAME"`
}

// RenewalConfig mirrors the renewal section.
type RenewalConfig struct {
	EnableAutoRenewal    bool          `env:"RENEWAL_ENABLE_AUTO_RENEWAL" env-default:"true"`
	RenewalThresholdDays int           `env:"RENEWAL_THRESHOLD_DAYS" env-default:"30"`
	RenewalCheckInterval time.Duration `env:"RENEWAL_CHECK_INTERVAL" env-default:"1h"`
}

// MonitoringConfig mirrors the monitoring section.
type MonitoringConfig struct {
	MetricsPort    string `env:"MONITORING_METRICS_PORT" env-default:"9090"`
	GRPCHealthPort string `env:"MONITORING_GRPC_HEALTH_PORT" env-default:"9091"`
}

// AppConfig composes every sub-package Config the same way the
// teacher's templates compose a local main.Config out of its
// package-level Config structs.
type AppConfig struct {
	Logger      logger.Config
	Telemetry   telemetry.Config
	Proxy       dispatcher.Config
	TLS         TLSConfig
	Quantum     QuantumConfig
	Renewal     RenewalConfig
	RateLimiter ratelimit.Config
	Auth        auth.Config
	Monitoring  MonitoringConfig
}

func main() {
	var cfg AppConfig
	if err := config.Load(&cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	slogger := logger.New(cfg.Logger)

	shutdownTelemetry, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		slogger.Error("failed to initialize telemetry", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	source := buildCredentialSource(cfg)

	tlsMgr := tlscontext.NewManager()
	bundle, err := source.Load(ctx)
	if err != nil {
		slogger.Error("failed to load initial credential bundle", "error", err)
		os.Exit(1)
	}

	var hybridMaterial *tlscontext.HybridMaterial
	if cfg.TLS.UseHybrid {
		hybridMaterial, err = tlsMgr.GenerateHybridMaterial()
		if err != nil {
			slogger.Warn("failed to generate hybrid KEM material at startup; continuing classical-only", "error", err)
		}
	}

	initialCtx, err := tlsMgr.Build(bundle, cfg.TLS.UseHybrid, hybridMaterial)
	if err != nil {
		slogger.Error("failed to build initial tls context", "error", err)
		os.Exit(1)
	}
	tlsMgr.Publish(initialCtx)

	promMetrics := metrics.New(prometheus.DefaultRegisterer)
	promMetrics.RecordCertExpiry(cfg.TLS.CertFile, bundle.NotAfter)

	limiter := ratelimit.New(cfg.RateLimiter)
	go limiter.RunJanitor(ctx.Done(), 5*time.Minute)

	var validator *auth.Validator
	if cfg.Auth.SecretKey != "" {
		validator = auth.New(cfg.Auth)
	}
	chain := middleware.DefaultChain(limiter, validator)

	d := dispatcher.New(cfg.Proxy, tlsMgr, chain, promMetrics, validator != nil)

	if cfg.Renewal.EnableAutoRenewal {
		state := &certlifecycle.State{
			Domain:           cfg.TLS.CertFile,
			CertPath:         cfg.TLS.CertFile,
			KeyPath:          cfg.TLS.KeyFile,
			RenewalThreshold: time.Duration(cfg.Renewal.RenewalThresholdDays) * 24 * time.Hour,
		}
		worker := certlifecycle.NewWorker(state, tlsMgr, noopRenew, cfg.TLS.UseHybrid)
		go worker.Run(ctx, cfg.Renewal.RenewalCheckInterval)
	}

	healthAggregator := health.NewAggregator()
	healthAggregator.Register("proxy", health.SelfCheck)
	healthAggregator.Register("backend", health.BackendReachable(cfg.Proxy.BackendAddr, 2*time.Second))

	monitoringSrv := server.New(server.Config{Port: cfg.Monitoring.MetricsPort}, slogger)
	healthAggregator.RegisterRoutes(monitoringSrv.Echo())

	go func() {
		if err := monitoringSrv.Start(); err != nil && err != http.ErrServerClosed {
			slogger.Error("monitoring server failed", "error", err)
		}
	}()

	grpcHealthSrv := health.NewGRPCServer(healthAggregator)
	grpcHealthLis, err := net.Listen("tcp", ":"+cfg.Monitoring.GRPCHealthPort)
	if err != nil {
		slogger.Error("failed to bind grpc health listener", "error", err)
		os.Exit(1)
	}
	go func() {
		slogger.Info("starting grpc health server", "port", cfg.Monitoring.GRPCHealthPort)
		if err := grpcHealthSrv.GRPC().Serve(grpcHealthLis); err != nil {
			slogger.Error("grpc health server failed", "error", err)
		}
	}()

	go func() {
		if err := d.Run(ctx); err != nil {
			slogger.Error("dispatcher failed", "error", err)
		}
	}()

	slogger.Info("quantum-safe-tls-proxy started", "listen", cfg.Proxy.ListenAddr, "backend", cfg.Proxy.BackendAddr)

	<-ctx.Done()
	slogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := monitoringSrv.Shutdown(shutdownCtx); err != nil {
		slogger.Error("monitoring server shutdown error", "error", err)
	}
	grpcHealthSrv.GRPC().GracefulStop()
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		slogger.Error("telemetry shutdown error", "error", err)
	}

	slogger.Info("shutdown complete")
}

// buildCredentialSource selects the credential.Source variant named
// by cfg.TLS.SourceKind. An in-memory KMS client stands in until a
// real provider (AWS KMS, GCP KMS, Vault transit) is configured behind
// the same kms.Client interface.
func buildCredentialSource(cfg AppConfig) credential.Source {
	switch cfg.TLS.SourceKind {
	case "aws-secret":
		client := kms.NewInstrumentedClient(kms.NewMemoryClient())
		return &credential.AwsSecretSource{Client: client, SecretName: cfg.Quantum.KeyName}
	case "kms":
		client := kms.NewInstrumentedClient(kms.NewMemoryClient())
		return &credential.KmsSource{
			Client:      client,
			WrapKeyName: cfg.Quantum.KeyName,
			AESKeyName:  cfg.Quantum.KmsAESKeyName,
			ChainPath:   cfg.TLS.CertFile,
			CAPath:      cfg.TLS.CAFile,
		}
	default:
		return &credential.FileSource{CertPath: cfg.TLS.CertFile, KeyPath: cfg.TLS.KeyFile, CAPath: cfg.TLS.CAFile}
	}
}

// noopRenew is the default renewal action until an ACME client or
// external renewal subprocess is wired in; it leaves the on-disk
// files untouched, so a renewal tick will keep reporting the
// certificate as still needing renewal.
func noopRenew(ctx context.Context, domain string) error {
	return nil
}
