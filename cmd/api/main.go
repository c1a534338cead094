package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"medledger.org/internal/audit"
	"medledger.org/internal/auth"
	"medledger.org/internal/config"
	"medledger.org/internal/consent"
	"medledger.org/internal/ehr"
	"medledger.org/internal/httpapi"
	"medledger.org/internal/ledger"
	"medledger.org/internal/ledger/contract"
	"medledger.org/internal/ledger/fabric"
	"medledger.org/internal/obs"
	"medledger.org/internal/store/pg"
	"medledger.org/internal/stream"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)
	logger := obs.Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}
	auth.SetSecret(cfg.AuthSecret)

	var cipher *ehr.Cipher
	if key := cfg.EncryptionKey(); key != nil {
		cipher, err = ehr.NewCipher(key)
		if err != nil {
			logger.Fatal().Err(err).Msg("init document cipher")
		}
	} else {
		logger.Warn().Msg("document encryption disabled; development only")
	}

	// Stores: Postgres when a DSN is configured, in-memory otherwise.
	var (
		db       *pg.Store
		cstore   consent.Store
		estore   ehr.Store
		users    auth.UserStore
		probeSQL = httpapi.ReadyProbe{}
	)
	if cfg.PGDSN != "" {
		db, err = pg.Open(cfg.PGDSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("open postgres")
		}
		defer db.Close()
		cstore, estore, users = db, db, db
		probeSQL = httpapi.ReadyProbe{DB: db.DB()}
	} else {
		logger.Warn().Msg("no MEDLEDGER_PG_DSN; running on in-memory stores")
		memUsers := auth.NewMemoryUsers()
		seedDemoUsers(logger, memUsers)
		cstore, estore, users = consent.NewMemory(), ehr.NewMemory(), memUsers
	}

	ledgerSvc, cleanup, err := buildLedger(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("init ledger")
	}
	if cleanup != nil {
		defer func() { _ = cleanup() }()
	}

	engine := consent.NewEngine(cstore, ledgerSvc, ehr.NewDocumentHash(estore, cipher))
	records := ehr.NewService(estore, cipher, engine, ledgerSvc)
	activity := stream.New()

	api := httpapi.New(httpapi.Options{
		Version:        version,
		Env:            cfg.Env,
		ReadyProbe:     probeSQL,
		Auth:           auth.NewService(users, cfg.TokenTTL),
		Consent:        engine,
		Records:        records,
		History:        audit.NewAggregator(ledgerSvc),
		Stream:         activity,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info().
		Str("version", version).
		Str("addr", srv.Addr).
		Str("ledger_mode", cfg.LedgerMode).
		Msg("starting medledger-api")

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("listen")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	logger.Info().Msg("stopped")
}

// buildLedger selects the ledger transport from configuration. Memory
// and leveldb run the contract in-process; fabric submits to a peer.
func buildLedger(cfg *config.Config) (ledger.Service, func() error, error) {
	switch cfg.LedgerMode {
	case config.LedgerModeMemory:
		c := contract.New(contract.NewMemoryState())
		return ledger.NewController(c, c), nil, nil
	case config.LedgerModeLevelDB:
		state, err := contract.OpenLevelDB(cfg.LedgerPath)
		if err != nil {
			return nil, nil, err
		}
		c := contract.New(state)
		return ledger.NewController(c, c), state.Close, nil
	case config.LedgerModeFabric:
		transport, closeFn, err := fabric.Connect(fabric.Config{
			MSPID:        cfg.FabricMSPID,
			CertPath:     cfg.FabricCertPath,
			KeyDir:       cfg.FabricKeyDir,
			TLSCertPath:  cfg.FabricTLSCertPath,
			PeerEndpoint: cfg.FabricPeerEndpoint,
			GatewayPeer:  cfg.FabricGatewayPeer,
			Channel:      cfg.FabricChannel,
			Chaincode:    cfg.FabricChaincode,
		})
		if err != nil {
			return nil, nil, err
		}
		return ledger.NewController(transport, transport), closeFn, nil
	default:
		return nil, nil, fmt.Errorf("unknown ledger mode %q", cfg.LedgerMode)
	}
}

// seedDemoUsers installs the same accounts the SQL seed provides, so a
// DSN-less instance is usable out of the box.
func seedDemoUsers(logger *zerolog.Logger, users *auth.MemoryUsers) {
	ctx := context.Background()
	for _, u := range []struct {
		id, org, email, role, name string
	}{
		{"D100", "ORG-CITYMED", "d.ramirez@citymed.example", auth.RoleDoctor, "Dr. Elena Ramirez"},
		{"D200", "ORG-CITYMED", "j.okafor@citymed.example", auth.RoleDoctor, "Dr. James Okafor"},
		{"P100", "ORG-PATIENTS", "m.ortiz@patients.example", auth.RolePatient, "Maria Ortiz"},
		{"P200", "ORG-PATIENTS", "a.chen@patients.example", auth.RolePatient, "An Chen"},
	} {
		err := users.Seed(ctx, auth.User{
			ID:             u.id,
			OrganizationID: u.org,
			Email:          u.email,
			Role:           u.role,
			DisplayName:    u.name,
		}, "password")
		if err != nil {
			logger.Warn().Err(err).Str("user", u.id).Msg("seed demo user")
		}
	}
}
