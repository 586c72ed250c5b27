// Command claimflow runs the claim-processing pipeline end to end:
// it reads a line-delimited JSON claim file, paces submission at a
// configured rate, routes claims to simulated payers, and periodically
// reports aging and per-patient financial summaries.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"

	"github.com/CMSgov/claimflow/internal/log"
)

func main() {
	app := cli.NewApp()
	app.Name = "claimflow"
	app.Usage = "Simulate a healthcare claim-processing pipeline"
	app.Version = "0.1.0"
	app.ArgsUsage = "<input-file>"

	var rate float64
	var reportInterval int
	var drainDeadlineSec int
	var configPath string
	var groupByPayer bool
	var payerSpecs cli.StringSlice

	app.Flags = []cli.Flag{
		cli.Float64Flag{
			Name:        "rate",
			Usage:       "claims per second submitted by the biller",
			Value:       10,
			Destination: &rate,
		},
		cli.StringSliceFlag{
			Name:  "payer",
			Usage: "configure a payer as <id>:<min_ms>:<max_ms> (repeatable, at least one required)",
			Value: &payerSpecs,
		},
		cli.IntFlag{
			Name:        "report-interval",
			Usage:       "reporter cadence in seconds",
			Value:       30,
			Destination: &reportInterval,
		},
		cli.IntFlag{
			Name:        "drain-deadline",
			Usage:       "seconds to wait for outstanding remittances after input ends (0 = use the config file's drain_deadline, or wait indefinitely if it has none)",
			Value:       0,
			Destination: &drainDeadlineSec,
		},
		cli.BoolFlag{
			Name:        "group-aging-by-payer",
			Usage:       "break the aging report down by payer id in addition to the overall bucket counts",
			Destination: &groupByPayer,
		},
		cli.StringFlag{
			Name:        "config",
			Usage:       "optional TOML file overriding rate, report-interval, and payer configuration",
			Destination: &configPath,
		},
	}

	app.Action = func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.NewExitError("exactly one input file argument is required", exitUsage)
		}
		cfg, err := resolveConfig(c.Args().First(), rate, reportInterval, drainDeadlineSec, groupByPayer, configPath, payerSpecs.Value())
		if err != nil {
			return cli.NewExitError(err.Error(), exitUsage)
		}

		ctx := contextWithSignals()
		code, err := run(ctx, cfg)
		if err != nil {
			log.Pipeline.WithError(err).Error("claimflow: pipeline exited with error")
		}
		if code != 0 {
			return cli.NewExitError(errString(err), code)
		}
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
