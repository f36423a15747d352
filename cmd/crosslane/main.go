// Command crosslane runs one domain instance of the relay incentive
// ledger: it opens the persisted state tables, listens for receipt
// announcements from peers and settles the ones it can.
package main

import (
	"context"
	"crypto/ed25519"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/crosslane/crosslane/internal/claim"
	"github.com/crosslane/crosslane/internal/config"
	"github.com/crosslane/crosslane/internal/crypto"
	"github.com/crosslane/crosslane/internal/domain"
	"github.com/crosslane/crosslane/internal/message"
	"github.com/crosslane/crosslane/internal/store"
	"github.com/crosslane/crosslane/pkg/db/pebble"
	"github.com/crosslane/crosslane/pkg/log"
	"github.com/crosslane/crosslane/pkg/network"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	level, err := log.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse log level: %v\n", err)
		os.Exit(1)
	}
	log.Init(log.Options{LogLevel: level, Type: log.ConsoleLogger})

	if err := run(cfg); err != nil {
		log.Root.Fatal().Err(err).Msg("node failed")
	}
}

func run(cfg *config.Config) error {
	ledgerAddr, err := cfg.LedgerAddress()
	if err != nil {
		return err
	}
	operator, err := cfg.OperatorAddress()
	if err != nil {
		return err
	}

	kv, err := pebble.NewPersistentKVStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer kv.Close()

	state := store.NewLedger(kv)
	env := fixedEnvironment{baseFee: domain.NewAmount(cfg.Ledger.BaseFee)}
	settler := claim.New(state, acceptOracle{}, logPayer{}, env, nil,
		domain.ID(cfg.DomainID), ledgerAddr)

	pub, prv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return fmt.Errorf("generate node key: %w", err)
	}

	node, err := network.NewNode(network.Config{
		ListenAddr: cfg.Network.ListenAddr,
		PublicKey:  pub,
		PrivateKey: prv,
		Handler: func(ctx context.Context, id message.Identifier, payload []byte) error {
			_, err := settler.Settle(ctx, id, payload, operator)
			return err
		},
	})
	if err != nil {
		return err
	}
	if err := node.Start(); err != nil {
		return err
	}
	defer node.Stop()

	log.Root.Info().
		Uint64("domain", cfg.DomainID).
		Stringer("ledger", ledgerAddr).
		Str("listen", node.Addr()).
		Msg("crosslane node running")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Root.Info().Msg("shutting down")
	return nil
}

// fixedEnvironment prices claims at the configured base fee. The node
// does not meter its own execution.
type fixedEnvironment struct {
	baseFee domain.Amount
}

func (e fixedEnvironment) GasUsed() uint64        { return 0 }
func (e fixedEnvironment) BaseFee() domain.Amount { return e.baseFee }

// acceptOracle stands in for the receipt-validation oracle until a real
// attestation backend is wired in. It accepts every announcement, so it
// must never run against balances that matter.
// TODO: replace with an oracle backed by source-domain log proofs.
type acceptOracle struct{}

func (acceptOracle) Attest(_ context.Context, id message.Identifier, digest crypto.Hash) error {
	log.Ledger.Debug().
		Stringer("origin", id.Origin).
		Uint64("block", id.BlockNumber).
		Stringer("digest", digest).
		Msg("attestation accepted")
	return nil
}

// logPayer records payouts in the log. A deployment wires the real
// payable-transfer capability here.
type logPayer struct{}

func (logPayer) Pay(to domain.Address, amount domain.Amount) error {
	log.Ledger.Info().
		Stringer("to", to).
		Stringer("amount", amount).
		Msg("payout")
	return nil
}
