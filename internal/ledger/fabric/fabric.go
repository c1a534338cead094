// Package fabric adapts a Hyperledger Fabric gateway connection to the
// ledger Submitter/Evaluator ports. Gateway errors carry gRPC status
// codes; the adapter maps them onto the typed ledger taxonomy so the
// rest of the system never inspects error strings.
package fabric

import (
	"context"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hyperledger/fabric-gateway/pkg/client"
	"github.com/hyperledger/fabric-gateway/pkg/identity"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/status"

	"medledger.org/internal/ledger"
)

// Config locates the gateway peer and the client's MSP material.
type Config struct {
	MSPID        string
	CertPath     string
	KeyDir       string
	TLSCertPath  string
	PeerEndpoint string
	GatewayPeer  string
	Channel      string
	Chaincode    string
}

// Transport is a Submitter/Evaluator backed by a Fabric contract.
type Transport struct {
	contract *client.Contract
}

var (
	_ ledger.Submitter = (*Transport)(nil)
	_ ledger.Evaluator = (*Transport)(nil)
)

// Connect dials the gateway peer and opens the contract. The returned
// close function tears down both the gateway and the gRPC connection.
func Connect(cfg Config) (*Transport, func() error, error) {
	conn, err := newGrpcConnection(cfg)
	if err != nil {
		return nil, nil, err
	}

	id, err := newIdentity(cfg)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	sign, err := newSign(cfg)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	gw, err := client.Connect(
		id,
		client.WithSign(sign),
		client.WithClientConnection(conn),
		client.WithEvaluateTimeout(5*time.Second),
		client.WithEndorseTimeout(15*time.Second),
		client.WithSubmitTimeout(5*time.Second),
		client.WithCommitStatusTimeout(time.Minute),
	)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("connect gateway: %w", err)
	}

	contract := gw.GetNetwork(cfg.Channel).GetContract(cfg.Chaincode)
	closeFn := func() error {
		gw.Close()
		return conn.Close()
	}
	return &Transport{contract: contract}, closeFn, nil
}

func (t *Transport) Submit(ctx context.Context, fn string, args ...string) ([]byte, error) {
	payload, err := t.contract.SubmitWithContext(ctx, fn, client.WithArguments(args...))
	if err != nil {
		return nil, mapError(fn, err)
	}
	return payload, nil
}

func (t *Transport) Evaluate(ctx context.Context, fn string, args ...string) ([]byte, error) {
	payload, err := t.contract.EvaluateWithContext(ctx, fn, client.WithArguments(args...))
	if err != nil {
		return nil, mapError(fn, err)
	}
	return payload, nil
}

func mapError(fn string, err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%w: %s: %v", ledger.ErrNotFound, fn, err)
	case codes.AlreadyExists:
		return fmt.Errorf("%w: %s: %v", ledger.ErrConflict, fn, err)
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return fmt.Errorf("%w: %s: %v", ledger.ErrTransient, fn, err)
	default:
		return fmt.Errorf("ledger %s: %w", fn, err)
	}
}

func newGrpcConnection(cfg Config) (*grpc.ClientConn, error) {
	pem, err := os.ReadFile(cfg.TLSCertPath)
	if err != nil {
		return nil, fmt.Errorf("read tls certificate: %w", err)
	}
	certificate, err := identity.CertificateFromPEM(pem)
	if err != nil {
		return nil, fmt.Errorf("parse tls certificate: %w", err)
	}

	pool := x509.NewCertPool()
	pool.AddCert(certificate)
	creds := credentials.NewClientTLSFromCert(pool, cfg.GatewayPeer)

	conn, err := grpc.NewClient(cfg.PeerEndpoint, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("dial gateway peer: %w", err)
	}
	return conn, nil
}

func newIdentity(cfg Config) (*identity.X509Identity, error) {
	pem, err := os.ReadFile(cfg.CertPath)
	if err != nil {
		return nil, fmt.Errorf("read client certificate: %w", err)
	}
	certificate, err := identity.CertificateFromPEM(pem)
	if err != nil {
		return nil, fmt.Errorf("parse client certificate: %w", err)
	}
	return identity.NewX509Identity(cfg.MSPID, certificate)
}

// newSign loads the first key from the MSP keystore directory.
func newSign(cfg Config) (identity.Sign, error) {
	files, err := os.ReadDir(cfg.KeyDir)
	if err != nil {
		return nil, fmt.Errorf("read keystore: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("keystore %s is empty", cfg.KeyDir)
	}
	pem, err := os.ReadFile(filepath.Join(cfg.KeyDir, files[0].Name()))
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	key, err := identity.PrivateKeyFromPEM(pem)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return identity.NewPrivateKeySign(key)
}
