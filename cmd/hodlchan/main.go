// Package main provides the hodlchan tool: time-locked hodl addresses and
// unidirectional micropayment channels on top of them.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/hodlchan/hodlchan/internal/backend"
	"github.com/hodlchan/hodlchan/internal/chain"
	"github.com/hodlchan/hodlchan/internal/channel"
	"github.com/hodlchan/hodlchan/internal/config"
	"github.com/hodlchan/hodlchan/internal/hodl"
	"github.com/hodlchan/hodlchan/internal/script"
	"github.com/hodlchan/hodlchan/internal/storage"
	"github.com/hodlchan/hodlchan/internal/txbuild"
	"github.com/hodlchan/hodlchan/internal/wallet"
	"github.com/hodlchan/hodlchan/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func usage() {
	fmt.Fprintf(os.Stderr, `hodlchan %s (commit: %s)

Usage:
  hodlchan create  -wif <key> -locktime <n> [-testnet]
  hodlchan spend   -wif <key> -locktime <n> -to <addr> [-testnet] [-data-dir <dir>] <txid:n> [<txid:n>...]
  hodlchan channel demo [-testnet] [-data-dir <dir>]
  hodlchan channel list [-data-dir <dir>]
`, version, commit)
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	var err error
	switch os.Args[1] {
	case "create":
		err = runCreate(os.Args[2:])
	case "spend":
		err = runSpend(os.Args[2:])
	case "channel":
		if len(os.Args) < 3 {
			usage()
		}
		switch os.Args[2] {
		case "demo":
			err = runChannelDemo(os.Args[3:])
		case "list":
			err = runChannelList(os.Args[3:])
		default:
			usage()
		}
	default:
		usage()
	}

	if err != nil {
		logging.Fatal("Command failed", "error", err)
	}
}

func network(testnet bool) chain.Network {
	if testnet {
		return chain.Testnet
	}
	return chain.Mainnet
}

func setupLogging(level string) {
	logging.SetDefault(logging.New(&logging.Config{
		Level:      level,
		TimeFormat: time.TimeOnly,
	}))
}

// runCreate derives and prints a hodl address for a key and lock-time.
func runCreate(args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	var (
		wif      = fs.String("wif", "", "Private key (WIF)")
		lockTime = fs.Int64("locktime", 0, "Absolute lock-time (block height or unix time)")
		testnet  = fs.Bool("testnet", false, "Use testnet")
		logLevel = fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	)
	fs.Parse(args)
	setupLogging(*logLevel)

	if *wif == "" || *lockTime == 0 {
		usage()
	}

	net := network(*testnet)
	signer, err := wallet.LoadWIF(*wif, net)
	if err != nil {
		return err
	}

	addr, redeem, err := hodl.CreateAddress(signer.PubKey(), *lockTime, net)
	if err != nil {
		return err
	}

	fmt.Printf("address: %s\n", addr.EncodeAddress())
	fmt.Printf("redeem script: %x\n", redeem)
	return nil
}

// runSpend sweeps hodl outputs to a destination address once the lock-time
// has passed.
func runSpend(args []string) error {
	fs := flag.NewFlagSet("spend", flag.ExitOnError)
	var (
		wif      = fs.String("wif", "", "Private key (WIF)")
		lockTime = fs.Int64("locktime", 0, "Lock-time the outputs were created with")
		to       = fs.String("to", "", "Destination address")
		testnet  = fs.Bool("testnet", false, "Use testnet")
		dataDir  = fs.String("data-dir", "~/.hodlchan", "Data directory")
		logLevel = fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	)
	fs.Parse(args)
	setupLogging(*logLevel)

	if *wif == "" || *lockTime == 0 || *to == "" || fs.NArg() == 0 {
		usage()
	}

	net := network(*testnet)
	signer, err := wallet.LoadWIF(*wif, net)
	if err != nil {
		return err
	}
	destScript, err := wallet.DecodeAddressScript(*to, net)
	if err != nil {
		return err
	}

	outpoints := make([]wire.OutPoint, fs.NArg())
	for i, arg := range fs.Args() {
		outpoints[i], err = parseOutpoint(arg)
		if err != nil {
			return err
		}
	}

	cfg, err := config.Load(*dataDir)
	if err != nil {
		return err
	}

	ctx := context.Background()
	node := backend.NewJSONRPCBackend(cfg.RPC.URL, cfg.RPC.User, cfg.RPC.Password)
	if err := node.Connect(ctx); err != nil {
		return err
	}
	defer node.Close()

	feeRate, err := node.EstimateFeeRate(ctx, cfg.Fee.TargetBlocks)
	if err != nil {
		logging.Warn("Fee estimation failed, using floor rate", "error", err)
		feeRate = 0
	}

	tx, err := hodl.Spend(ctx, node, &hodl.SpendParams{
		Signer:       signer,
		LockTime:     *lockTime,
		Outpoints:    outpoints,
		DestScript:   destScript,
		FeeRatePerKB: feeRate,
		Network:      net,
	})
	if err != nil {
		return err
	}

	rawTx, err := txbuild.Serialize(tx)
	if err != nil {
		return err
	}
	logging.Info("Spend built", "txid", tx.TxHash().String(), "inputs", len(tx.TxIn))
	fmt.Println(rawTx)
	return nil
}

// runChannelDemo exercises a full channel lifecycle with freshly generated
// keys and a synthetic deposit, persisting both sides' records.
func runChannelDemo(args []string) error {
	fs := flag.NewFlagSet("channel demo", flag.ExitOnError)
	var (
		testnet  = fs.Bool("testnet", false, "Use testnet")
		dataDir  = fs.String("data-dir", "~/.hodlchan", "Data directory")
		logLevel = fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	)
	fs.Parse(args)
	setupLogging(*logLevel)

	net := network(*testnet)

	const (
		depositValue = 10_000_000
		fee          = 100_000
		expiry       = 1_000_000
	)

	senderKey, err := btcec.NewPrivateKey()
	if err != nil {
		return err
	}
	receiverKey, err := btcec.NewPrivateKey()
	if err != nil {
		return err
	}
	senderSigner := wallet.NewKeySigner(senderKey)
	receiverSigner := wallet.NewKeySigner(receiverKey)

	params, err := demoParams(senderSigner, receiverSigner, net, expiry)
	if err != nil {
		return err
	}

	depositAddr, err := params.DepositAddress(net)
	if err != nil {
		return err
	}
	logging.Info("Channel opened", "deposit", depositAddr.EncodeAddress(),
		"value", depositValue, "expiry", expiry)

	senderChangeScript, err := wallet.P2PKHScript(senderSigner.PubKey(), net)
	if err != nil {
		return err
	}
	sender, err := channel.NewSender(params, senderSigner, senderChangeScript, depositValue)
	if err != nil {
		return err
	}
	receiver, err := channel.NewReceiver(params, receiverSigner, depositValue)
	if err != nil {
		return err
	}

	for _, delta := range []int64{5_000_000, 1} {
		paymentTx, err := sender.SendPayment(delta, fee)
		if err != nil {
			return err
		}
		accepted, err := receiver.RecvPaymentTx(paymentTx)
		if err != nil {
			return err
		}
		logging.Info("Payment accepted", "delta", accepted, "total", receiver.Received())
	}

	finalTx, err := receiver.MakeFinalizationTx()
	if err != nil {
		return err
	}
	finalHex, err := txbuild.Serialize(finalTx)
	if err != nil {
		return err
	}

	refundTx, err := sender.MakeRefundTx(fee)
	if err != nil {
		return err
	}
	refundHex, err := txbuild.Serialize(refundTx)
	if err != nil {
		return err
	}

	logging.Info("Finalization built", "value", channel.PaymentValue(finalTx))
	fmt.Printf("finalization: %s\n", finalHex)
	logging.Info("Refund built", "value", refundTx.TxOut[0].Value, "locktime", refundTx.LockTime)
	fmt.Printf("refund: %s\n", refundHex)

	store, err := storage.New(&storage.Config{DataDir: *dataDir})
	if err != nil {
		return err
	}
	defer store.Close()

	lastPaymentHex, err := txbuild.Serialize(sender.LastPaymentTx())
	if err != nil {
		return err
	}
	for _, role := range []string{storage.RoleSender, storage.RoleReceiver} {
		record := &storage.ChannelRecord{
			Role:               role,
			Network:            string(net),
			DepositTxID:        params.DepositOutpoint.Hash.String(),
			DepositVout:        params.DepositOutpoint.Index,
			DepositValue:       depositValue,
			Expiry:             expiry,
			SenderScript:       hex.EncodeToString(params.SenderScript),
			ReceiverScript:     hex.EncodeToString(params.ReceiverScript),
			ReceiverDestScript: hex.EncodeToString(params.ReceiverDestScript),
			LastPaymentTx:      lastPaymentHex,
		}
		if err := store.SaveChannel(record); err != nil {
			return err
		}
		logging.Info("Channel saved", "id", record.ID, "role", role)
	}

	return nil
}

// demoParams builds channel parameters around a synthetic deposit outpoint.
func demoParams(senderSigner, receiverSigner wallet.Signer, net chain.Network, expiry int64) (*channel.Params, error) {
	senderScript, err := script.BuildCheckSigScript(senderSigner.PubKey().SerializeCompressed())
	if err != nil {
		return nil, err
	}
	receiverScript, err := script.BuildCheckSigVerifyScript(receiverSigner.PubKey().SerializeCompressed())
	if err != nil {
		return nil, err
	}
	destScript, err := wallet.P2PKHScript(receiverSigner.PubKey(), net)
	if err != nil {
		return nil, err
	}

	depositHash := chainhash.HashH([]byte("hodlchan demo deposit"))
	return &channel.Params{
		SenderScript:       senderScript,
		ReceiverScript:     receiverScript,
		ReceiverDestScript: destScript,
		ExpiryLockTime:     expiry,
		DepositOutpoint:    wire.OutPoint{Hash: depositHash, Index: 0},
	}, nil
}

// runChannelList prints the stored channel records.
func runChannelList(args []string) error {
	fs := flag.NewFlagSet("channel list", flag.ExitOnError)
	var (
		dataDir  = fs.String("data-dir", "~/.hodlchan", "Data directory")
		logLevel = fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	)
	fs.Parse(args)
	setupLogging(*logLevel)

	store, err := storage.New(&storage.Config{DataDir: *dataDir})
	if err != nil {
		return err
	}
	defer store.Close()

	channels, err := store.ListChannels()
	if err != nil {
		return err
	}
	if len(channels) == 0 {
		fmt.Println("no channels")
		return nil
	}

	for _, c := range channels {
		paid := int64(0)
		if c.LastPaymentTx != "" {
			tx, err := txbuild.Deserialize(c.LastPaymentTx)
			if err == nil {
				paid = channel.PaymentValue(tx)
			}
		}
		fmt.Printf("%s  %-8s  %s:%d  deposit=%d  paid=%d  expiry=%d\n",
			c.ID, c.Role, c.DepositTxID, c.DepositVout, c.DepositValue, paid, c.Expiry)
	}
	return nil
}

// parseOutpoint parses "txid:n".
func parseOutpoint(s string) (wire.OutPoint, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return wire.OutPoint{}, fmt.Errorf("invalid outpoint %q, want txid:n", s)
	}
	hash, err := chainhash.NewHashFromStr(parts[0])
	if err != nil {
		return wire.OutPoint{}, fmt.Errorf("invalid txid in %q: %w", s, err)
	}
	index, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return wire.OutPoint{}, fmt.Errorf("invalid output index in %q: %w", s, err)
	}
	return wire.OutPoint{Hash: *hash, Index: uint32(index)}, nil
}
