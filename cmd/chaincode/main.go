package main

import (
	"os"

	"github.com/hyperledger/fabric-chaincode-go/v2/shim"

	"consentis/internal/chaincode"
	"consentis/internal/chaincode/fabric"
	"consentis/internal/ledger"
	"consentis/internal/platform/config"
	"consentis/internal/platform/logger"
)

// main runs the contract either under a peer (the default) or, when
// CHAINCODE_SERVER_ADDRESS is set, as an external chaincode service.
func main() {
	cfg, err := config.FromEnv()
	log := logger.New(cfg.LogLevel)
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ids := ledger.IdentitiesFromConfig(cfg.Roles)
	core := chaincode.New(
		chaincode.WithMaxDurationSecs(float64(cfg.Consent.MaxDurationSecs)),
		chaincode.WithRoleMSPs(chaincode.RoleMSPs(ids)),
		chaincode.WithLogger(log),
	)
	cc, err := fabric.NewChaincode(core)
	if err != nil {
		log.Error("failed to create chaincode", "error", err)
		os.Exit(1)
	}

	if cfg.Chaincode.ServerAddress == "" {
		log.Info("starting chaincode under peer", "contract", fabric.ContractName)
		if err := cc.Start(); err != nil {
			log.Error("chaincode stopped", "error", err)
			os.Exit(1)
		}
		return
	}

	server := &shim.ChaincodeServer{
		CCID:     cfg.Chaincode.ID,
		Address:  cfg.Chaincode.ServerAddress,
		CC:       cc,
		TLSProps: shim.TLSProperties{Disabled: true},
	}
	log.Info("starting chaincode service",
		"address", cfg.Chaincode.ServerAddress,
		"ccid", cfg.Chaincode.ID,
		"max_duration_secs", cfg.Consent.MaxDurationSecs,
		"issuer_msp", ids.Issuer,
		"holder_msp", ids.Holder,
		"verifier_msp", ids.Verifier,
	)
	if err := server.Start(); err != nil {
		log.Error("chaincode service stopped", "error", err)
		os.Exit(1)
	}
}
