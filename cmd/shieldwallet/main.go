// shieldwallet is a command-line wallet for shielded assets. Keys and proofs
// stay in the external signer service; the wallet tracks notes and addresses
// and builds transactions for submission.
package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/Klingon-tech/shieldwallet/config"
	"github.com/Klingon-tech/shieldwallet/internal/ledger"
	klog "github.com/Klingon-tech/shieldwallet/internal/log"
	"github.com/Klingon-tech/shieldwallet/internal/signer"
	"github.com/Klingon-tech/shieldwallet/internal/storage"
	"github.com/Klingon-tech/shieldwallet/internal/wallet"
	"github.com/Klingon-tech/shieldwallet/pkg/types"
)

const version = "0.1.0"

// app holds the services shared by every command.
type app struct {
	cfg    *config.Config
	db     *storage.BadgerDB
	signer *signer.Client
	ledger *ledger.Client
	core   *wallet.Core
}

func main() {
	flags, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		config.PrintUsage(os.Stderr)
		os.Exit(1)
	}
	if flags.Version {
		fmt.Printf("shieldwallet version %s\n", version)
		return
	}
	if flags.Help || len(flags.Args) == 0 {
		config.PrintUsage(os.Stdout)
		if !flags.Help {
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load(flags)
	if err != nil {
		fatal("%v", err)
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, cfg.Log.File); err != nil {
		fatal("init logging: %v", err)
	}

	cmd := flags.Args[0]
	cmdArgs := flags.Args[1:]
	if cmd == "help" {
		config.PrintUsage(os.Stdout)
		return
	}

	a, err := openApp(cfg)
	if err != nil {
		fatal("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = a.run(ctx, cmd, cmdArgs)
	stop()
	if cerr := a.close(); cerr != nil {
		klog.CLI.Error().Err(cerr).Msg("Failed to close wallet database")
	}
	if err != nil {
		fatal("%v", err)
	}
}

func openApp(cfg *config.Config) (*app, error) {
	db, err := storage.NewBadger(cfg.WalletDBDir())
	if err != nil {
		return nil, fmt.Errorf("open wallet database: %w", err)
	}
	s := signer.New(signer.Options{
		URL:          cfg.Signer.URL,
		Timeout:      cfg.Signer.Timeout,
		ProbeTimeout: cfg.Signer.ProbeTimeout,
	})
	l := ledger.New(cfg.Ledger.URL, cfg.Ledger.Timeout, cfg.Ledger.MaxRPS)
	walletDB := storage.ForWallet(db, cfg.Wallet.Name)
	core := wallet.New(walletDB, s, l, wallet.Options{
		Name:          cfg.Wallet.Name,
		CoinType:      cfg.Wallet.CoinType,
		StrictStaging: cfg.Wallet.StrictStaging,
	})
	klog.CLI.Debug().
		Str("wallet", cfg.Wallet.Name).
		Str("network", string(cfg.Network)).
		Str("db", cfg.WalletDBDir()).
		Msg("Wallet opened")
	return &app{cfg: cfg, db: db, signer: s, ledger: l, core: core}, nil
}

func (a *app) close() error {
	return errors.Join(a.db.Close(), klog.Close())
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "status":
		return a.cmdStatus(ctx)
	case "recover":
		return a.cmdRecover(ctx)
	case "balance":
		return a.cmdBalance(ctx, args)
	case "notes":
		return a.cmdNotes(ctx, args)
	case "address":
		return a.cmdAddress(ctx, args)
	case "mint":
		return a.cmdMint(ctx, args)
	case "send":
		return a.cmdSend(ctx, args)
	case "reclaim":
		return a.cmdReclaim(ctx, args)
	case "reset":
		return a.cmdReset(args)
	case "watch":
		return a.cmdWatch(ctx)
	default:
		return fmt.Errorf("unknown command: %s (see --help)", cmd)
	}
}

// ── status ──────────────────────────────────────────────────────────────

func (a *app) cmdStatus(ctx context.Context) error {
	fmt.Printf("Wallet:  %s (%s)\n", a.core.Name(), a.cfg.Network)
	if names, err := storage.WalletNames(a.db); err == nil && len(names) > 1 {
		fmt.Printf("Wallets: %s\n", strings.Join(names, ", "))
	}
	fmt.Printf("Prefix:  %s\n", a.core.Addresses().Prefix())

	if v, err := a.signer.Version(ctx); err != nil {
		fmt.Printf("Signer:  %s (unreachable: %v)\n", a.signer.URL(), err)
	} else {
		fmt.Printf("Signer:  %s (version %s)\n", a.signer.URL(), v)
	}

	voids, err := a.ledger.VoidNumbers(ctx)
	if err != nil {
		fmt.Printf("Ledger:  %s (error: %v)\n", a.ledger.Endpoint(), err)
	} else {
		entries, err := a.ledger.LedgerShards(ctx, nil)
		if err != nil {
			return fmt.Errorf("ledger shards: %w", err)
		}
		fmt.Printf("Ledger:  %s (%d notes, %d spent)\n", a.ledger.Endpoint(), len(entries), len(voids))
	}

	staged, err := a.core.Addresses().Staged()
	if err != nil {
		return err
	}
	if staged > 0 {
		fmt.Printf("Staged:  %d change address(es) from an unfinished transaction\n", staged)
	}
	return nil
}

// ── recover ─────────────────────────────────────────────────────────────

func (a *app) cmdRecover(ctx context.Context) error {
	res, err := a.core.Recover(ctx)
	if err != nil {
		return err
	}
	if res.Skipped {
		fmt.Println("No new ledger entries.")
		return nil
	}
	fmt.Printf("Scanned %d new entries, recovered %d notes (%d new).\n", res.NewEntries, res.Recovered, res.Added)
	return nil
}

// ── balance ─────────────────────────────────────────────────────────────

func (a *app) cmdBalance(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("balance", flag.ExitOnError)
	assetStr := fs.String("asset", "", "Asset id")
	noRecover := fs.Bool("no-recover", false, "Use stored notes without scanning the ledger")
	fs.Parse(args)

	kind, err := parseAssetID(*assetStr)
	if err != nil {
		return fmt.Errorf("%v\nUsage: shieldwallet balance --asset <id>", err)
	}
	if !*noRecover {
		a.recoverOrWarn(ctx)
	}
	bal, err := a.core.Balance(ctx, kind)
	if err != nil {
		return err
	}
	fmt.Printf("Asset %d: %s\n", kind, formatAmount(bal, a.cfg.Wallet.Decimals))
	return nil
}

// recoverOrWarn refreshes the notes, continuing with stored ones when the
// signer is down.
func (a *app) recoverOrWarn(ctx context.Context) {
	if _, err := a.core.Recover(ctx); err != nil {
		if errors.Is(err, signer.ErrSignerUnreachable) {
			fmt.Fprintln(os.Stderr, "Warning: signer not running, showing stored notes only")
			return
		}
		fmt.Fprintf(os.Stderr, "Warning: recovery failed: %v\n", err)
	}
}

// ── notes ───────────────────────────────────────────────────────────────

func (a *app) cmdNotes(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("notes", flag.ExitOnError)
	assetStr := fs.String("asset", "", "Only show this asset id")
	fs.Parse(args)

	var (
		filter bool
		kind   types.AssetID
	)
	if *assetStr != "" {
		k, err := parseAssetID(*assetStr)
		if err != nil {
			return err
		}
		filter, kind = true, k
	}

	notes, err := a.core.Assets().LoadNotes()
	if err != nil {
		return err
	}
	spent := make(map[types.VoidNumber]bool)
	if voids, err := a.ledger.VoidNumbers(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: cannot check spent notes: %v\n", err)
	} else {
		for _, v := range voids {
			spent[v] = true
		}
	}

	shown := 0
	for _, n := range notes {
		if filter && n.AssetID != kind {
			continue
		}
		state := "unspent"
		if spent[n.VoidNumber] {
			state = "spent"
		}
		fmt.Printf("%s  asset=%-4d %22s  %-7s  %s\n",
			n.ID(), n.AssetID, formatAmount(n.Value, a.cfg.Wallet.Decimals), state, n.Keypath)
		shown++
	}
	if shown == 0 {
		fmt.Println("No notes.")
	}
	return nil
}

// ── address ─────────────────────────────────────────────────────────────

func (a *app) cmdAddress(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("address", flag.ExitOnError)
	newAddr := fs.Bool("new", false, "Derive a new receiving address")
	fs.Parse(args)

	if *newAddr {
		entry, err := a.core.NextExternalAddress(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%s  %s\n", entry.Keypath, entry.Address)
		return nil
	}

	book, err := a.core.Addresses().Book()
	if err != nil {
		return err
	}
	if len(book.External) == 0 {
		fmt.Println("No receiving addresses. Use 'address --new' to derive one.")
		return nil
	}
	for _, e := range book.External {
		fmt.Printf("%s  %s\n", e.Keypath, e.Address)
	}
	return nil
}

// ── mint / send / reclaim ───────────────────────────────────────────────

func (a *app) cmdMint(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("mint", flag.ExitOnError)
	assetStr := fs.String("asset", "", "Asset id")
	amountStr := fs.String("amount", "", "Amount to mint (0 mints a filler note)")
	yes := fs.Bool("yes", false, "Confirm without prompting")
	fs.Parse(args)

	kind, err := parseAssetID(*assetStr)
	if err != nil {
		return fmt.Errorf("%v\nUsage: shieldwallet mint --asset <id> --amount <n>", err)
	}
	amount, err := parseAmount(*amountStr, a.cfg.Wallet.Decimals)
	if err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}
	tx, err := a.core.Mint(ctx, kind, amount)
	if err != nil {
		return err
	}
	return a.settle(tx, *yes)
}

func (a *app) cmdSend(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	assetStr := fs.String("asset", "", "Asset id")
	toAddr := fs.String("to", "", "Recipient shielded address")
	amountStr := fs.String("amount", "", "Amount to send (e.g. 1.5)")
	yes := fs.Bool("yes", false, "Confirm without prompting")
	fs.Parse(args)

	if *toAddr == "" || *amountStr == "" {
		return fmt.Errorf("usage: shieldwallet send --asset <id> --to <addr> --amount <amt>")
	}
	kind, err := parseAssetID(*assetStr)
	if err != nil {
		return err
	}
	receiver, err := types.ParseShieldedAddress(*toAddr)
	if err != nil {
		return fmt.Errorf("invalid recipient address: %w", err)
	}
	amount, err := parseAmount(*amountStr, a.cfg.Wallet.Decimals)
	if err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}
	tx, err := a.core.PrivateTransfer(ctx, kind, amount, receiver)
	if err != nil {
		return a.explain(err)
	}
	return a.settle(tx, *yes)
}

func (a *app) cmdReclaim(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reclaim", flag.ExitOnError)
	assetStr := fs.String("asset", "", "Asset id")
	amountStr := fs.String("amount", "", "Amount to reclaim")
	yes := fs.Bool("yes", false, "Confirm without prompting")
	fs.Parse(args)

	kind, err := parseAssetID(*assetStr)
	if err != nil {
		return fmt.Errorf("%v\nUsage: shieldwallet reclaim --asset <id> --amount <n>", err)
	}
	amount, err := parseAmount(*amountStr, a.cfg.Wallet.Decimals)
	if err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}
	tx, err := a.core.Reclaim(ctx, kind, amount)
	if err != nil {
		return a.explain(err)
	}
	return a.settle(tx, *yes)
}

// explain adds the follow-up command for errors the user can fix.
func (a *app) explain(err error) error {
	var fe *wallet.FillerNotesError
	if errors.As(err, &fe) {
		return fmt.Errorf("%w\nMint filler notes first: shieldwallet mint --asset %d --amount 0 (%d time(s))",
			err, fe.AssetID, fe.Required)
	}
	return err
}

// settle prints the payloads of tx and records whether they were submitted.
func (a *app) settle(tx *wallet.PendingTx, yes bool) error {
	fmt.Printf("Transaction %s (%s)\n", tx.ID, tx.Kind)
	if tx.Selection != nil {
		fmt.Printf("  Inputs:  %d note(s), change %s\n",
			len(tx.Selection.Notes), formatAmount(tx.Selection.Change, a.cfg.Wallet.Decimals))
	}
	for i, p := range tx.Payloads {
		fmt.Printf("  [%d] %s\n      0x%s\n", i, p.Call, hex.EncodeToString(p.Data))
	}

	ok := yes
	if !ok {
		var err error
		ok, err = confirm("Submit the payloads above, then confirm they were accepted [y/N]: ")
		if err != nil {
			if aerr := a.core.Abort(tx); aerr != nil {
				return errors.Join(err, aerr)
			}
			return err
		}
	}
	if !ok {
		if err := a.core.Abort(tx); err != nil {
			return err
		}
		fmt.Println("Aborted; change addresses released.")
		return nil
	}
	if err := a.core.Confirm(tx); err != nil {
		return err
	}
	fmt.Println("Confirmed.")
	return nil
}

// ── reset ───────────────────────────────────────────────────────────────

func (a *app) cmdReset(args []string) error {
	fs := flag.NewFlagSet("reset", flag.ExitOnError)
	yes := fs.Bool("yes", false, "Reset without prompting")
	fs.Parse(args)

	if !*yes {
		ok, err := confirm(fmt.Sprintf("Clear all notes and addresses of wallet %q? [y/N]: ", a.core.Name()))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("Nothing changed.")
			return nil
		}
	}
	if err := a.core.Reset(); err != nil {
		return err
	}
	fmt.Println("Wallet reset. Run 'recover' to rescan the ledger.")
	return nil
}

// ── watch ───────────────────────────────────────────────────────────────

func (a *app) cmdWatch(ctx context.Context) error {
	events, unsubscribe := a.core.Subscribe(0)
	defer unsubscribe()

	done := make(chan error, 1)
	go func() {
		done <- wallet.NewPoller(a.core, a.cfg.Wallet.PollInterval).Run(ctx)
	}()
	klog.CLI.Info().Dur("interval", a.cfg.Wallet.PollInterval).Msg("Watching ledger, press Ctrl-C to stop")

	for {
		select {
		case ev := <-events:
			printEvent(ev)
		case err := <-done:
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}
}

func printEvent(ev wallet.Event) {
	ts := ev.Time.Format("15:04:05")
	switch ev.Kind {
	case wallet.EventRecoveryFinished:
		if ev.Recovery != nil && !ev.Recovery.Skipped {
			fmt.Printf("%s  recovered %d note(s), %d new\n", ts, ev.Recovery.Recovered, ev.Recovery.Added)
		}
	case wallet.EventRecoveryFailed:
		if !errors.Is(ev.Err, signer.ErrSignerUnreachable) {
			fmt.Printf("%s  recovery failed: %v\n", ts, ev.Err)
		}
	case wallet.EventTxStatus:
		fmt.Printf("%s  %s %s: %s\n", ts, ev.TxKind, ev.TxID, ev.Status)
	}
}

// ── Prompt helper ───────────────────────────────────────────────────────

// confirm asks a yes/no question on the terminal and fails without one.
func confirm(prompt string) (bool, error) {
	if !term.IsTerminal(int(syscall.Stdin)) {
		return false, fmt.Errorf("stdin is not a terminal; pass --yes to confirm")
	}
	fmt.Fprint(os.Stderr, prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// ── Error helper ────────────────────────────────────────────────────────

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
