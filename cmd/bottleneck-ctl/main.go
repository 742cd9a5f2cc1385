package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"mpbf-bottleneck/common/logger"
	"mpbf-bottleneck/internal/client"

	"go.uber.org/zap"
)

const usage = `usage: bottleneck-ctl [flags] <command> [args]

commands:
  alerts [-status s] [-section s] [-machine m] [-severity s] [-type t]
  alert <alert_id>
  ack <alert_id>
  resolve <alert_id> [notes]
  targets [section_id]
  trend <section_id> [-days n]
  export <section_id> [-days n] [-o file.xlsx]

flags:
`

func main() {
	server := flag.String("server", envOr("BOTTLENECK_SERVER", "http://localhost:8080"), "bottleneck service base URL")
	user := flag.String("user", os.Getenv("BOTTLENECK_USER"), "operator id sent as X-User-Id")
	timeout := flag.Duration("timeout", 30*time.Second, "request timeout")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	level := "warn"
	if *verbose {
		level = "debug"
	}
	log, err := logger.NewLogger(level, "console", "bottleneck-ctl")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	c := client.NewClient(*server, *user, log)
	if err := run(ctx, c, flag.Arg(0), flag.Args()[1:]); err != nil {
		log.Debug("Command failed", zap.String("command", flag.Arg(0)), zap.Error(err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, c *client.Client, cmd string, args []string) error {
	switch cmd {
	case "alerts":
		fs := flag.NewFlagSet("alerts", flag.ExitOnError)
		var q client.AlertQuery
		fs.StringVar(&q.Status, "status", "", "active | acknowledged | resolved")
		fs.StringVar(&q.SectionID, "section", "", "section id")
		fs.StringVar(&q.MachineID, "machine", "", "machine id")
		fs.StringVar(&q.Severity, "severity", "", "medium | high | critical")
		fs.StringVar(&q.AlertType, "type", "", "alert type")
		_ = fs.Parse(args)
		alerts, err := c.ListAlerts(ctx, q)
		if err != nil {
			return err
		}
		return printJSON(alerts)

	case "alert", "ack":
		if len(args) != 1 {
			return fmt.Errorf("%s requires <alert_id>", cmd)
		}
		get := c.GetAlert
		if cmd == "ack" {
			get = c.AcknowledgeAlert
		}
		alert, err := get(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(alert)

	case "resolve":
		if len(args) < 1 || len(args) > 2 {
			return fmt.Errorf("resolve requires <alert_id> [notes]")
		}
		notes := ""
		if len(args) == 2 {
			notes = args[1]
		}
		alert, err := c.ResolveAlert(ctx, args[0], notes)
		if err != nil {
			return err
		}
		return printJSON(alert)

	case "targets":
		section := ""
		if len(args) > 0 {
			section = args[0]
		}
		targets, err := c.ListTargets(ctx, section)
		if err != nil {
			return err
		}
		return printJSON(targets)

	case "trend", "export":
		if len(args) < 1 {
			return fmt.Errorf("%s requires <section_id>", cmd)
		}
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		days := fs.Int("days", 0, "window in days (0 = server default)")
		out := fs.String("o", "", "output file (export only)")
		_ = fs.Parse(args[1:])

		if cmd == "trend" {
			report, err := c.EfficiencyTrend(ctx, args[0], *days)
			if err != nil {
				return err
			}
			return printJSON(report)
		}

		data, err := c.DownloadTrendWorkbook(ctx, args[0], *days)
		if err != nil {
			return err
		}
		path := *out
		if path == "" {
			path = fmt.Sprintf("efficiency-trend-%s-%s.xlsx", args[0], time.Now().Format("20060102"))
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		fmt.Println(path)
		return nil
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
