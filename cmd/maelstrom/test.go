package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/distlab/maelstrom/internal/archive"
	"github.com/distlab/maelstrom/internal/nemesis"
	"github.com/distlab/maelstrom/internal/runner"
	"github.com/distlab/maelstrom/internal/viz"
	"github.com/distlab/maelstrom/internal/workload"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// exit codes.
const (
	exitValid        = 0
	exitInvalid      = 1
	exitSetupFailure = 2
	exitUsageError   = 3
)

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Run one test against a node binary",
	Run: func(cmd *cobra.Command, args []string) {
		logger := orFatal(newLogger(cmd.Flags()))
		flags := cmd.Flags()

		binPath := orFatal(flags.GetString("bin"))
		workloadName := orFatal(flags.GetString("workload"))
		if binPath == "" || workloadName == "" {
			fmt.Println("test: --bin and --workload are required")
			os.Exit(exitUsageError)
		}
		w, ok := workload.Lookup(workloadName)
		if !ok {
			fmt.Printf("test: unknown workload %q (see `maelstrom doc`)\n", workloadName)
			os.Exit(exitUsageError)
		}

		nodeCount, err := resolveNodeCount(flags)
		if err != nil {
			fmt.Println(err)
			os.Exit(exitUsageError)
		}
		concurrency, err := resolveConcurrency(orFatal(flags.GetString("concurrency")), nodeCount)
		if err != nil {
			fmt.Println(err)
			os.Exit(exitUsageError)
		}

		seed := orFatal(flags.GetUint64("seed"))
		if seed == 0 {
			seed = rand.Uint64()
		}

		runID := uuid.New().String()
		outDir := filepath.Join(orFatal(flags.GetString("output")), runID)
		if err := os.MkdirAll(outDir, 0755); err != nil {
			fmt.Println(err)
			os.Exit(exitSetupFailure)
		}

		cfg := runner.Config{
			RunID:           runID,
			BinPath:         binPath,
			WorkloadName:    workloadName,
			NodeCount:       nodeCount,
			Concurrency:     concurrency,
			RatePerSec:      orFatal(flags.GetFloat64("rate")),
			TimeLimit:       time.Duration(orFatal(flags.GetInt("time-limit"))) * time.Second,
			LatencyMeanMS:   uint32(orFatal(flags.GetInt("latency"))),
			LatencyJitter:   uint32(orFatal(flags.GetInt("latency-jitter"))),
			NemesisKind:     nemesis.Kind(orFatal(flags.GetString("nemesis"))),
			FaultInterval:   time.Duration(orFatal(flags.GetInt("faults-interval"))) * time.Second,
			RequestTimeout:  time.Duration(orFatal(flags.GetInt("timeout"))) * time.Millisecond,
			LogDir:          outDir,
			Seed:            seed,
			DebugAddr:       orFatal(flags.GetString("debug-addr")),
			UseVirtualClock: orFatal(flags.GetBool("virtual-clock")),
			LogStderr:       orFatal(flags.GetBool("log-stderr")),
		}
		logger = logger.With("run_id", runID, "workload", workloadName, "seed", seed)
		logger.Info("starting run", "bin", binPath, "node_count", nodeCount, "concurrency", concurrency)

		res, err := runner.New(cfg, w, logger).Run(context.Background())
		if err != nil {
			logger.Error("run failed", "err", err)
			os.Exit(exitSetupFailure)
		}

		if err := writeArtifacts(outDir, res); err != nil {
			logger.Error("write artifacts failed", "err", err)
			os.Exit(exitSetupFailure)
		}

		if err := maybeArchive(flags, runID, outDir); err != nil {
			logger.Warn("archive failed", "err", err)
		}

		if res.Report.Valid {
			logger.Info("test valid", "anomalies", len(res.Report.Anomalies))
			os.Exit(exitValid)
		}
		logger.Error("test invalid", "anomalies", res.Report.Anomalies)
		os.Exit(exitInvalid)
	},
}

func init() {
	rootCmd.AddCommand(testCmd)

	testCmd.Flags().String("bin", "", "path to the node binary (required)")
	testCmd.Flags().String("workload", "", "workload name (required)")
	testCmd.Flags().Int("node-count", 5, "number of nodes")
	testCmd.Flags().String("nodes", "", "comma-separated node ids, overrides --node-count")
	testCmd.Flags().String("concurrency", "1", `client count, or "Mn" for M x node-count`)
	testCmd.Flags().Float64("rate", 10, "total requests/sec across all clients")
	testCmd.Flags().Int("time-limit", 30, "seconds to run the workload before draining")
	testCmd.Flags().Int("latency", 0, "simulated mean one-way latency in ms")
	testCmd.Flags().Int("latency-jitter", 0, "simulated latency jitter in ms")
	testCmd.Flags().String("nemesis", "none", "fault policy: none, partition, pause, kill")
	testCmd.Flags().Int("faults-interval", 10, "seconds between nemesis transitions")
	testCmd.Flags().Int("timeout", 5000, "per-request timeout in ms")
	testCmd.Flags().Bool("log-stderr", false, "echo node stderr to the runner's own log")
	testCmd.Flags().Uint64("seed", 0, "PCG seed; 0 picks a random one")
	testCmd.Flags().String("output", ".", "directory under which the run's results are written")
	testCmd.Flags().String("debug-addr", "", "if set, serve a RESP debug console on this address for the run's duration")
	testCmd.Flags().Bool("virtual-clock", false, "jump simulated time to the next scheduled event whenever nothing is due yet, for faster-than-wall-clock runs")

	testCmd.Flags().String("s3-addr", "", "if set, archive results to this S3-compatible endpoint")
	testCmd.Flags().String("s3-region", "us-east-1", "object storage region")
	testCmd.Flags().String("s3-bucket", "maelstrom-results", "object storage bucket")
	testCmd.Flags().String("s3-user", "admin", "object storage user")
	testCmd.Flags().String("s3-password", "password", "object storage password")
	testCmd.Flags().Duration("s3-timeout", time.Minute, "object storage timeout")
}

// resolveNodeCount honors --nodes (a csv list) over --node-count when both
// are set; node identity assignment (n1..nN) still comes from the runner,
// so --nodes only fixes the count here, not the literal ids.
func resolveNodeCount(flags *pflag.FlagSet) (int, error) {
	csv, err := flags.GetString("nodes")
	if err != nil {
		return 0, err
	}
	if csv == "" {
		return flags.GetInt("node-count")
	}
	ids := strings.Split(csv, ",")
	if len(ids) == 0 || (len(ids) == 1 && ids[0] == "") {
		return 0, fmt.Errorf("test: --nodes is empty")
	}
	return len(ids), nil
}

func writeArtifacts(outDir string, res runner.Result) error {
	reportJSON, err := json.MarshalIndent(res.Report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outDir, "results.json"), reportJSON, 0644); err != nil {
		return err
	}

	historyJSON, err := res.History.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outDir, "history.json"), historyJSON, 0644); err != nil {
		return err
	}

	journalJSON, err := res.Journal.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal journal: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outDir, "journal.json"), journalJSON, 0644); err != nil {
		return err
	}

	svg := viz.LamportSVG(res.Journal)
	return os.WriteFile(filepath.Join(outDir, "messages.svg"), []byte(svg), 0644)
}

func maybeArchive(flags *pflag.FlagSet, runID, outDir string) error {
	addr, err := flags.GetString("s3-addr")
	if err != nil || addr == "" {
		return nil
	}
	region, _ := flags.GetString("s3-region")
	bucket, _ := flags.GetString("s3-bucket")
	user, _ := flags.GetString("s3-user")
	password, _ := flags.GetString("s3-password")
	timeout, _ := flags.GetDuration("s3-timeout")

	a := archive.New(archive.Config{
		Endpoint: addr,
		Region:   region,
		Bucket:   bucket,
		User:     user,
		Password: password,
		Timeout:  timeout,
	})
	if err := a.EnsureBucketExists(); err != nil {
		return err
	}
	for _, name := range []string{"results.json", "history.json", "journal.json", "messages.svg"} {
		body, err := os.ReadFile(filepath.Join(outDir, name))
		if err != nil {
			return err
		}
		if err := a.PutObject(runID, name, body); err != nil {
			return err
		}
	}
	return a.SetLatest(runID)
}

// resolveConcurrency parses "n" or "Mn" (M x node-count).
func resolveConcurrency(spec string, nodeCount int) (int, error) {
	spec = strings.TrimSpace(spec)
	if strings.HasSuffix(spec, "n") {
		m, err := strconv.Atoi(strings.TrimSuffix(spec, "n"))
		if err != nil {
			return 0, fmt.Errorf("test: invalid --concurrency %q: %w", spec, err)
		}
		return m * nodeCount, nil
	}
	n, err := strconv.Atoi(spec)
	if err != nil {
		return 0, fmt.Errorf("test: invalid --concurrency %q: %w", spec, err)
	}
	return n, nil
}
