package main

import (
	"context"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/airtrace/probelink-engine/internal/archive"
	"github.com/airtrace/probelink-engine/internal/capture"
	"github.com/airtrace/probelink-engine/internal/config"
	"github.com/airtrace/probelink-engine/internal/db"
	"github.com/airtrace/probelink-engine/internal/heuristics"
	"github.com/airtrace/probelink-engine/internal/pipeline"
	"github.com/airtrace/probelink-engine/internal/report"
	"github.com/airtrace/probelink-engine/internal/simulate"
	"github.com/airtrace/probelink-engine/pkg/models"
)

var version = "dev"

func main() {
	app := cli.NewApp()
	app.Name = "probelink"
	app.Usage = "probe-request token clustering and de-anonymization engine"
	app.Version = version
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "path to yaml config file",
		},
		cli.BoolFlag{
			Name:  "verbose",
			Usage: "debug logging",
		},
	}
	app.Before = func(c *cli.Context) error {
		if c.GlobalBool("verbose") {
			log.SetLevel(log.DebugLevel)
		}
		return nil
	}
	app.Commands = []cli.Command{
		clusterCommand(),
		sweepCommand(),
		ngramSweepCommand(),
		randomiseCommand(),
		importPcapCommand(),
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	return config.Load(c.GlobalString("config"))
}

func datasetFlag() cli.StringFlag {
	return cli.StringFlag{
		Name:  "dataset, d",
		Usage: "dataset directory holding the token archives",
		Value: ".",
	}
}

// resultStore opens the optional Postgres store. A missing or unreachable
// database is a warning, never a failed run.
func resultStore(ctx context.Context, cfg *config.Config) *db.PostgresStore {
	url := cfg.DatabaseURL
	if env := os.Getenv("DATABASE_URL"); env != "" {
		url = env
	}
	if url == "" {
		return nil
	}

	store, err := db.Connect(ctx, url)
	if err != nil {
		log.WithError(err).Warn("result store unavailable, continuing without persistence")
		return nil
	}
	if err := store.InitSchema(ctx); err != nil {
		log.WithError(err).Warn("result store schema init failed, continuing without persistence")
		store.Close()
		return nil
	}
	return store
}

func persistRecord(ctx context.Context, store *db.PostgresStore, info db.RunInfo, rec *models.ValidationRecord) {
	if store == nil {
		return
	}
	runID, err := store.SaveValidationRecord(ctx, info, rec)
	if err != nil {
		log.WithError(err).Warn("failed to persist validation record")
		return
	}
	log.WithField("run_id", runID).Info("validation record persisted")
}

func clusterCommand() cli.Command {
	return cli.Command{
		Name:  "cluster",
		Usage: "run one clustering pass and print its validation record",
		Flags: []cli.Flag{
			datasetFlag(),
			cli.StringFlag{
				Name:  "mode, m",
				Usage: "exact-set or ordered-ngram",
				Value: string(heuristics.ModeExactSet),
			},
			cli.Float64Flag{
				Name:  "threshold, t",
				Usage: "jaccard similarity threshold (exact-set mode)",
				Value: 1.0,
			},
			cli.IntFlag{
				Name:  "ngram, n",
				Usage: "window size (ordered-ngram mode)",
				Value: 2,
			},
			cli.BoolFlag{
				Name:  "fingerprint, f",
				Usage: "prune clusters by stable-fingerprint majority vote",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			ctx := context.Background()

			store := archive.NewStore(c.String("dataset"))
			if err := store.Load(); err != nil {
				return err
			}

			opts := pipeline.Options{
				Mode:              heuristics.Mode(c.String("mode")),
				NGramSize:         c.Int("ngram"),
				Threshold:         c.Float64("threshold"),
				CheckFingerprints: c.Bool("fingerprint"),
				Workers:           cfg.Workers,
				Horizon:           cfg.Horizon(),
			}

			record, err := pipeline.Run(ctx, store, store, opts)
			if err != nil {
				return err
			}

			if rs := resultStore(ctx, cfg); rs != nil {
				defer rs.Close()
				persistRecord(ctx, rs, db.RunInfo{
					Dataset:      c.String("dataset"),
					Mode:         c.String("mode"),
					NGramSize:    c.Int("ngram"),
					Threshold:    c.Float64("threshold"),
					Fingerprints: c.Bool("fingerprint"),
				}, record)
			}

			return printRecord(record)
		},
	}
}

func sweepCommand() cli.Command {
	return cli.Command{
		Name:  "sweep",
		Usage: "sweep the similarity threshold and write a CSV plus ROC curve",
		Flags: []cli.Flag{
			datasetFlag(),
			cli.StringFlag{
				Name:  "csv",
				Usage: "output CSV path",
				Value: "threshold_sweep.csv",
			},
			cli.StringFlag{
				Name:  "roc",
				Usage: "output ROC html path (empty to skip)",
			},
			cli.BoolFlag{
				Name:  "fingerprint, f",
				Usage: "prune clusters by stable-fingerprint majority vote",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			ctx := context.Background()

			store := archive.NewStore(c.String("dataset"))
			if err := store.Load(); err != nil {
				return err
			}

			opts := pipeline.Options{
				CheckFingerprints: c.Bool("fingerprint"),
				Workers:           cfg.Workers,
				Horizon:           cfg.Horizon(),
			}
			rows, err := report.ThresholdSweep(ctx, store, store, opts,
				cfg.Sweep.From, cfg.Sweep.To, cfg.Sweep.Step)
			if err != nil {
				return err
			}

			if err := writeCSV(c.String("csv"), "threshold", rows); err != nil {
				return err
			}
			if rocPath := c.String("roc"); rocPath != "" {
				if err := writeROC(rocPath, "threshold sweep", rows); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func ngramSweepCommand() cli.Command {
	return cli.Command{
		Name:  "ngram-sweep",
		Usage: "sweep the ordered-ngram window size and write a CSV",
		Flags: []cli.Flag{
			datasetFlag(),
			cli.StringFlag{
				Name:  "csv",
				Usage: "output CSV path",
				Value: "ngram_sweep.csv",
			},
			cli.BoolFlag{
				Name:  "fingerprint, f",
				Usage: "prune clusters by stable-fingerprint majority vote",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			ctx := context.Background()

			store := archive.NewStore(c.String("dataset"))
			if err := store.Load(); err != nil {
				return err
			}

			opts := pipeline.Options{
				CheckFingerprints: c.Bool("fingerprint"),
				Workers:           cfg.Workers,
				Horizon:           cfg.Horizon(),
			}
			rows, err := report.NGramSweep(ctx, store, store, opts, cfg.NGram.Min, cfg.NGram.Max)
			if err != nil {
				return err
			}
			return writeCSV(c.String("csv"), "n", rows)
		},
	}
}

func randomiseCommand() cli.Command {
	return cli.Command{
		Name:  "randomise",
		Usage: "split per-device probe histories into randomised tokens",
		Flags: []cli.Flag{
			datasetFlag(),
			cli.DurationFlag{
				Name:  "interval, i",
				Usage: "randomisation interval",
				Value: 12 * time.Hour,
			},
			cli.StringFlag{
				Name:  "out, o",
				Usage: "output dataset directory (defaults to the input directory)",
			},
		},
		Action: func(c *cli.Context) error {
			dir := c.String("dataset")
			out := c.String("out")
			if out == "" {
				out = dir
			}

			devices, err := archive.LoadDevices(dir)
			if err != nil {
				return err
			}

			probes, truth, err := simulate.Randomise(devices, c.Duration("interval"))
			if err != nil {
				return err
			}
			totals := simulate.ComputeTotals(probes, truth)

			log.WithFields(log.Fields{
				"devices":     len(devices),
				"tokens":      len(probes),
				"total_pairs": totals.TotalPairs,
				"valid_pairs": totals.ValidPairs,
			}).Info("randomisation complete")

			return archive.SaveDataset(out, probes, truth, totals)
		},
	}
}

func importPcapCommand() cli.Command {
	return cli.Command{
		Name:      "import-pcap",
		Usage:     "extract per-device probe requests from an offline capture",
		ArgsUsage: "<capture.pcap>",
		Flags: []cli.Flag{
			datasetFlag(),
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.NewExitError("import-pcap needs exactly one capture file", 1)
			}

			res, err := capture.ImportPCAP(c.Args().First())
			if err != nil {
				return err
			}

			log.WithFields(log.Fields{
				"frames":  res.Frames,
				"devices": len(res.Devices),
				"ssids":   len(res.SSIDs),
			}).Info("capture imported")

			return archive.SaveDevices(c.String("dataset"), res.Devices)
		},
	}
}

func writeCSV(path, parameter string, rows []report.Row) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := report.WriteCSV(f, parameter, rows); err != nil {
		return err
	}
	log.WithField("path", path).Info("sweep CSV written")
	return f.Close()
}

func writeROC(path, title string, rows []report.Row) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := report.RenderROC(f, title, rows); err != nil {
		return err
	}
	log.WithField("path", path).Info("ROC curve written")
	return f.Close()
}

func printRecord(rec *models.ValidationRecord) error {
	median := "no data"
	if rec.MedianOverHorizonSecs != nil {
		median = fmt.Sprintf("%.1fs", *rec.MedianOverHorizonSecs)
	}
	fmt.Printf("tp=%d fp=%d tn=%d fn=%d\n", rec.TruePositives, rec.FalsePositives,
		rec.TrueNegatives, rec.FalseNegatives)
	fmt.Printf("tpr=%.4f fpr=%.4f accuracy=%.4f\n", rec.TruePositiveRate,
		rec.FalsePositiveRate, rec.Accuracy)
	fmt.Printf("clusters=%d over_horizon=%d median_span=%s\n", rec.ClusterCount,
		rec.OverHorizonIdentities, median)
	fmt.Printf("ari=%.4f vi=%.4f\n", rec.AdjustedRandIndex, rec.VariationOfInformation)
	return nil
}
