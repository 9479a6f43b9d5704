// Package gateway is the ledger.Client for a running Fabric network. It keeps
// one gateway connection per organization and submits as that
// organization's client user, so the caller argument picks the MSP identity
// exactly as it does on the in-memory runtime.
package gateway

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hyperledger/fabric-gateway/pkg/client"
	"github.com/hyperledger/fabric-gateway/pkg/hash"
	"github.com/hyperledger/fabric-gateway/pkg/identity"
	gwproto "github.com/hyperledger/fabric-protos-go-apiv2/gateway"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/status"

	"consentis/internal/chaincode"
	"consentis/internal/ledger"
	"consentis/internal/platform/config"
	dErrors "consentis/pkg/domain-errors"
)

// Org locates one organization's peer and client credentials.
type Org struct {
	MSPID        string
	PeerEndpoint string
	GatewayPeer  string // TLS server name of the peer
	CertPath     string // signcerts directory or file
	KeyPath      string // keystore directory or file
	TLSCertPath  string
}

// OrgFromTestNetwork derives the credential layout the Fabric test network
// generates: Org1MSP maps to peerOrganizations/org1.<domain>.
func OrgFromTestNetwork(cryptoPath, domain, mspID, endpoint string) Org {
	org := strings.ToLower(strings.TrimSuffix(mspID, "MSP"))
	orgDomain := org + "." + domain
	base := filepath.Join(cryptoPath, "peerOrganizations", orgDomain)
	user := filepath.Join(base, "users", "User1@"+orgDomain, "msp")
	return Org{
		MSPID:        mspID,
		PeerEndpoint: endpoint,
		GatewayPeer:  "peer0." + orgDomain,
		CertPath:     filepath.Join(user, "signcerts"),
		KeyPath:      filepath.Join(user, "keystore"),
		TLSCertPath:  filepath.Join(base, "peers", "peer0."+orgDomain, "tls", "ca.crt"),
	}
}

type connection struct {
	conn     *grpc.ClientConn
	gw       *client.Gateway
	contract *client.Contract
}

// Client submits and evaluates transactions through Fabric gateways.
type Client struct {
	cfg    config.Fabric
	logger *slog.Logger
	ids    ledger.Identities

	mu    sync.Mutex
	orgs  map[string]Org
	conns map[string]*connection
}

type Option func(*Client)

// WithIdentities sets the role to MSP id mapping used to resolve caller
// aliases such as "issuer" or "2".
func WithIdentities(ids ledger.Identities) Option {
	return func(c *Client) { c.ids = ids }
}

// New prepares a client for every peer in cfg. Connections are opened on
// first use.
func New(cfg config.Fabric, logger *slog.Logger, opts ...Option) *Client {
	orgs := make(map[string]Org, len(cfg.PeerEndpoints))
	for msp, endpoint := range cfg.PeerEndpoints {
		orgs[msp] = OrgFromTestNetwork(cfg.CryptoPath, cfg.Domain, msp, endpoint)
	}
	c := &Client{
		cfg:    cfg,
		logger: logger,
		ids:    ledger.DefaultIdentities(),
		orgs:   orgs,
		conns:  make(map[string]*connection),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ ledger.Client = (*Client)(nil)

func (c *Client) Submit(ctx context.Context, caller, name string, args ...string) ([]byte, error) {
	contract, err := c.contract(caller)
	if err != nil {
		return nil, err
	}
	out, err := contract.SubmitWithContext(ctx, name, client.WithArguments(args...))
	if err != nil {
		return nil, c.mapError(name, caller, err)
	}
	return out, nil
}

func (c *Client) Evaluate(ctx context.Context, caller, name string, args ...string) ([]byte, error) {
	contract, err := c.contract(caller)
	if err != nil {
		return nil, err
	}
	out, err := contract.EvaluateWithContext(ctx, name, client.WithArguments(args...))
	if err != nil {
		return nil, c.mapError(name, caller, err)
	}
	return out, nil
}

// Ping opens (or reuses) the connection for msp, for readiness checks.
func (c *Client) Ping(_ context.Context, msp string) error {
	_, err := c.contract(msp)
	return err
}

// Close shuts every open connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	for msp, conn := range c.conns {
		conn.gw.Close()
		if err := conn.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", msp, err))
		}
		delete(c.conns, msp)
	}
	return errors.Join(errs...)
}

func (c *Client) contract(caller string) (*client.Contract, error) {
	msp, ok := c.ids.Resolve(caller)
	if !ok {
		msp = caller
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if conn, ok := c.conns[msp]; ok {
		return conn.contract, nil
	}
	org, ok := c.orgs[msp]
	if !ok {
		return nil, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("no peer configured for %s", msp))
	}
	conn, err := c.connect(org)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "connect to "+msp)
	}
	c.conns[msp] = conn
	c.logger.Info("fabric gateway connected",
		"msp", msp,
		"peer", org.PeerEndpoint,
		"channel", c.cfg.ChannelName,
		"chaincode", c.cfg.ChaincodeName,
	)
	return conn.contract, nil
}

func (c *Client) connect(org Org) (*connection, error) {
	tlsPEM, err := os.ReadFile(org.TLSCertPath)
	if err != nil {
		return nil, fmt.Errorf("read TLS CA: %w", err)
	}
	tlsCert, err := identity.CertificateFromPEM(tlsPEM)
	if err != nil {
		return nil, fmt.Errorf("parse TLS CA: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AddCert(tlsCert)
	grpcConn, err := grpc.NewClient(org.PeerEndpoint,
		grpc.WithTransportCredentials(credentials.NewClientTLSFromCert(pool, org.GatewayPeer)))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", org.PeerEndpoint, err)
	}

	id, sign, err := loadSigner(org)
	if err != nil {
		_ = grpcConn.Close()
		return nil, err
	}

	opts := []client.ConnectOption{
		client.WithSign(sign),
		client.WithHash(hash.SHA256),
		client.WithClientConnection(grpcConn),
	}
	if c.cfg.EvaluateTimeout > 0 {
		opts = append(opts, client.WithEvaluateTimeout(c.cfg.EvaluateTimeout))
	}
	if c.cfg.SubmitTimeout > 0 {
		opts = append(opts,
			client.WithEndorseTimeout(c.cfg.SubmitTimeout),
			client.WithSubmitTimeout(c.cfg.SubmitTimeout),
			client.WithCommitStatusTimeout(c.cfg.SubmitTimeout),
		)
	}
	gw, err := client.Connect(id, opts...)
	if err != nil {
		_ = grpcConn.Close()
		return nil, fmt.Errorf("gateway connect: %w", err)
	}

	network := gw.GetNetwork(c.cfg.ChannelName)
	var contract *client.Contract
	if c.cfg.ContractName != "" {
		contract = network.GetContractWithName(c.cfg.ChaincodeName, c.cfg.ContractName)
	} else {
		contract = network.GetContract(c.cfg.ChaincodeName)
	}
	return &connection{conn: grpcConn, gw: gw, contract: contract}, nil
}

func loadSigner(org Org) (*identity.X509Identity, identity.Sign, error) {
	certPEM, err := readFirst(org.CertPath)
	if err != nil {
		return nil, nil, fmt.Errorf("read client certificate: %w", err)
	}
	cert, err := identity.CertificateFromPEM(certPEM)
	if err != nil {
		return nil, nil, fmt.Errorf("parse client certificate: %w", err)
	}
	id, err := identity.NewX509Identity(org.MSPID, cert)
	if err != nil {
		return nil, nil, err
	}

	keyPEM, err := readFirst(org.KeyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("read client key: %w", err)
	}
	key, err := identity.PrivateKeyFromPEM(keyPEM)
	if err != nil {
		return nil, nil, fmt.Errorf("parse client key: %w", err)
	}
	sign, err := identity.NewPrivateKeySign(key)
	if err != nil {
		return nil, nil, err
	}
	return id, sign, nil
}

// readFirst reads path, or the first entry when path is a directory.
func readFirst(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return os.ReadFile(path)
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if !e.IsDir() {
			return os.ReadFile(filepath.Join(path, e.Name()))
		}
	}
	return nil, fmt.Errorf("no files in %s", path)
}

// mapError recovers the contract's domain error from a gateway failure.
// Peers report the chaincode message in the status details; when there are
// none the status message itself is searched.
func (c *Client) mapError(name, caller string, err error) error {
	msg := err.Error()
	if st, ok := status.FromError(err); ok {
		msg = st.Message()
		for _, d := range st.Details() {
			if detail, ok := d.(*gwproto.ErrorDetail); ok {
				msg += "; " + detail.GetMessage()
			}
		}
	}
	mapped := chaincode.ParseWireError(msg)
	if dErrors.HasCode(mapped, dErrors.CodeInternal) {
		c.logger.Error("fabric transaction failed",
			"transaction", name,
			"caller", caller,
			"error", err,
		)
		var commitErr *client.CommitError
		if errors.As(err, &commitErr) {
			return dErrors.Wrap(err, dErrors.CodeConflict,
				fmt.Sprintf("%s not committed: %s", name, commitErr.Code.String()))
		}
	}
	return mapped
}
