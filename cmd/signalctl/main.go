// signalctl 是 EchoKey API 的命令行客户端：创建交易、签发与校验信号、查看日志、订阅确认事件。
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/client"
	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/config"
	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/models"
	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/service"
	"github.com/fatih/color"
)

const usage = `usage: signalctl [-server URL] [-admin-token T] [-json] <command> [flags]

commands:
  networks                                   list networks and their signal windows
  create   -from A -to B -amount N -network ID
  issue    -tx ID [-network ID]              issue (or replace) the channel 2 signal
  signal   -tx ID                            show the live signal
  validate -tx ID -code C -issued-at TS      validate a channel 1 / channel 2 pair
  txs                                        list transactions
  logs     [-limit N | -tx ID]               show the validation log
  clear    txs|logs                          admin bulk clear
  watch    [-tx ID]                          stream confirmation events
`

func main() {
	_ = config.LoadEnvFile(".env", false)
	server := flag.String("server", envOr("ECHOKEY_SERVER", "http://localhost:8080"), "EchoKey base URL")
	adminToken := flag.String("admin-token", os.Getenv("ECHOKEY_ADMIN_TOKEN"), "X-Admin-Token for clear")
	asJSON := flag.Bool("json", false, "print raw JSON")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	c := client.New(*server, client.WithAdminToken(*adminToken))
	out := &printer{json: *asJSON}
	if err := run(ctx, c, out, flag.Arg(0), flag.Args()[1:]); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, c *client.Client, out *printer, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	switch cmd {
	case "networks":
		nets, err := c.Networks(ctx)
		if err != nil {
			return err
		}
		return out.table(nets, func(w *tabwriter.Writer) {
			fmt.Fprintln(w, "ID\tNAME\tWINDOW")
			for _, n := range nets {
				fmt.Fprintf(w, "%s\t%s\t%ds\n", n.ID, n.Name, n.WindowSeconds)
			}
		})

	case "create":
		var in service.CreateInput
		fs.StringVar(&in.Sender, "from", "", "sender address")
		fs.StringVar(&in.Recipient, "to", "", "recipient address")
		fs.StringVar(&in.Amount, "amount", "", "decimal amount")
		fs.StringVar(&in.Network, "network", "ETH", "network id")
		_ = fs.Parse(args)
		tx, err := c.CreateTransaction(ctx, in)
		if err != nil {
			return err
		}
		return out.value(tx, func() {
			color.Green("transaction created")
			fmt.Printf("  channel 1 id: %s\n", color.New(color.Bold).Sprint(tx.ID))
		})

	case "issue":
		tx := fs.String("tx", "", "transaction id")
		network := fs.String("network", "", "network id (defaults to the transaction's)")
		_ = fs.Parse(args)
		sig, err := c.IssueSignal(ctx, *tx, *network)
		if err != nil {
			return err
		}
		return out.value(sig, func() { printSignal(sig) })

	case "signal":
		tx := fs.String("tx", "", "transaction id")
		_ = fs.Parse(args)
		sig, err := c.Signal(ctx, *tx)
		if err != nil {
			return err
		}
		if sig == nil {
			color.Yellow("no live signal for %s", *tx)
			return nil
		}
		return out.value(sig, func() { printSignal(sig) })

	case "validate":
		var in service.ValidateInput
		fs.StringVar(&in.TransactionID, "tx", "", "transaction id (channel 1)")
		fs.StringVar(&in.Code, "code", "", "signal code (channel 2)")
		fs.StringVar(&in.IssuedAt, "issued-at", "", "issued_at timestamp delivered with the code")
		_ = fs.Parse(args)
		res, err := c.Validate(ctx, in)
		if err != nil {
			return err
		}
		return out.value(res, func() {
			if res.Approved {
				color.Green("APPROVED  %s", res.Reason)
			} else {
				color.Red("DENIED (%s)  %s", res.Kind, res.Reason)
			}
		})

	case "txs":
		list, err := c.Transactions(ctx)
		if err != nil {
			return err
		}
		return out.table(list, func(w *tabwriter.Writer) {
			fmt.Fprintln(w, "ID\tNETWORK\tAMOUNT\tSTATUS\tCONFIRMED")
			for _, t := range list {
				confirmed := "-"
				if t.ConfirmedAt != nil {
					confirmed = fmt.Sprintf("block %d", t.BlockNumber)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Network, t.Amount, statusColor(t.Status), confirmed)
			}
		})

	case "logs":
		limit := fs.Int("limit", 20, "max entries, 0 for all")
		tx := fs.String("tx", "", "only this transaction, oldest first")
		_ = fs.Parse(args)
		var (
			entries []*models.AuditEntry
			err     error
		)
		if *tx != "" {
			entries, err = c.TransactionLog(ctx, *tx)
		} else {
			entries, err = c.ValidationLog(ctx, *limit)
		}
		if err != nil {
			return err
		}
		return out.table(entries, func(w *tabwriter.Writer) {
			fmt.Fprintln(w, "TIME\tTRANSACTION\tKIND\tREASON")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.ValidatedAt.Format(time.RFC3339), e.TransactionID, e.Kind, e.Reason)
			}
		})

	case "clear":
		_ = fs.Parse(args)
		switch fs.Arg(0) {
		case "txs":
			if err := c.ClearTransactions(ctx); err != nil {
				return err
			}
		case "logs":
			if err := c.ClearValidationLog(ctx); err != nil {
				return err
			}
		default:
			return fmt.Errorf("clear what? (txs|logs)")
		}
		color.Green("cleared %s", fs.Arg(0))
		return nil

	case "watch":
		tx := fs.String("tx", "", "only this transaction")
		_ = fs.Parse(args)
		color.Cyan("watching confirmations (ctrl-c to stop)")
		return c.WatchEvents(ctx, *tx, func(ev models.ConfirmationEvent) {
			if out.json {
				_ = json.NewEncoder(os.Stdout).Encode(ev)
				return
			}
			fmt.Printf("%s  %s confirmed in block %d\n", ev.Timestamp.Format(time.RFC3339), ev.TransactionID, ev.BlockNumber)
		})

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func printSignal(sig *models.Signal) {
	color.Green("channel 2 signal")
	fmt.Printf("  code:       %s\n", color.New(color.Bold, color.FgHiWhite).Sprint(sig.Code))
	fmt.Printf("  issued_at:  %s\n", sig.IssuedAt)
	left := time.Until(sig.ExpiresAt).Round(time.Second)
	fmt.Printf("  expires_at: %s (%s left)\n", sig.ExpiresAt.Format(time.RFC3339), left)
}

func statusColor(s models.TransactionStatus) string {
	switch s {
	case models.TransactionStatusValidated:
		return color.GreenString(string(s))
	case models.TransactionStatusFailed, models.TransactionStatusExpired:
		return color.RedString(string(s))
	default:
		return color.YellowString(string(s))
	}
}

type printer struct {
	json bool
}

func (p *printer) value(v interface{}, pretty func()) error {
	if p.json {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	pretty()
	return nil
}

func (p *printer) table(v interface{}, rows func(w *tabwriter.Writer)) error {
	return p.value(v, func() {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		rows(w)
		_ = w.Flush()
	})
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
