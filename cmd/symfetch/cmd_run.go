package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"symfetch/internal/config"
	"symfetch/internal/crashfeed"
	"symfetch/internal/executor"
	"symfetch/internal/fetch"
	"symfetch/internal/history"
	"symfetch/internal/modules"
	"symfetch/internal/negcache"
	"symfetch/internal/objectstore"
	"symfetch/internal/pipeline"
	"symfetch/internal/publish"
	"symfetch/internal/symstore"
	"symfetch/internal/types"
)

var (
	modulesCSV string
	dryRun     bool

	extractOut      string
	commitWatermark bool
)

// runCmd performs one full acquisition pass
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch, package and publish symbols for new crash reports",
	Long: `Runs one pass of the pipeline:
  1. Load the blacklist and skiplist
  2. Collect modules from crash records newer than the watermark (or --modules)
  3. Fetch every module that is not excluded, skiplisted or already present
  4. Save the skiplist, package the symbols obtained and publish the archive
  5. Advance the watermark

Exits non-zero only when the inputs could not be read; fetch and publish
failures are reported and the run still completes.`,
	Args: cobra.NoArgs,
	RunE: runPipeline,
}

// extractCmd writes the module list without fetching
var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Write the modules of new crash records to a CSV file",
	Long: `Scans crash records newer than the watermark and writes one
dll,pdb,uuid line per distinct module. The output can be fed back with
"symfetch run --modules".`,
	Args: cobra.NoArgs,
	RunE: runExtract,
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	if modulesCSV != "" {
		cfg.Input.ModulesCSV = modulesCSV
	}

	deps, cleanup, err := buildDeps(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	p := pipeline.New(cfg, deps)
	if dryRun {
		return printPlan(ctx, p)
	}

	report, err := p.Run(ctx)
	if err != nil {
		return err
	}
	printReport(report)
	logger.Info("Run complete",
		zap.String("run_id", report.RunID),
		zap.Int("symbols", report.Symbols()),
		zap.Bool("published", report.Published))
	return nil
}

func printPlan(ctx context.Context, p *pipeline.Pipeline) error {
	plan, acq, err := p.Plan(ctx)
	if err != nil {
		return err
	}
	fetchCount := 0
	for _, e := range plan {
		action := "fetch"
		if !e.Decision.Fetch {
			action = "skip (" + e.Decision.Reason + ")"
		} else {
			fetchCount++
		}
		fmt.Printf("%-40s %-34s %s\n", e.Ref.DebugFile, e.Ref.DebugID, action)
	}
	fmt.Printf("\n%d records, %d candidates, %d to fetch\n", acq.Records, acq.Candidates.Len(), fetchCount)
	return nil
}

func printReport(r *pipeline.Report) {
	fmt.Printf("Run %s\n", r.RunID)
	fmt.Printf("  records:    %d (%d unreadable)\n", r.Records, r.SkippedRecords)
	fmt.Printf("  candidates: %d\n", r.Candidates)
	for _, kind := range types.AllOutcomeKinds {
		if n := r.Summary.Counts[kind]; n > 0 {
			fmt.Printf("  %-18s %d\n", string(kind)+":", n)
		}
	}
	switch {
	case r.Archive == "":
		fmt.Println("  archive:    none")
	case r.Published:
		fmt.Printf("  archive:    %s (published)\n", r.Archive)
	default:
		fmt.Printf("  archive:    %s (not published)\n", r.Archive)
	}
	if r.PublishErr != nil {
		fmt.Printf("  error:      %v\n", r.PublishErr)
	}
	if r.Cancelled {
		fmt.Println("  cancelled:  watermark not advanced")
	}
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	// Extraction always reads the crash feed
	cfg.Input.ModulesCSV = ""
	p := pipeline.New(cfg, pipeline.Deps{Feed: newFeed(cfg)})
	acq, err := p.Acquire(ctx)
	if err != nil {
		return err
	}

	f, err := os.Create(extractOut)
	if err != nil {
		return fmt.Errorf("create %s: %w", extractOut, err)
	}
	if err := modules.WriteCSV(f, acq.Modules); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", extractOut, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write %s: %w", extractOut, err)
	}
	fmt.Printf("Wrote %d modules from %d crash records to %s\n", len(acq.Modules), acq.Records, extractOut)

	if commitWatermark {
		if !acq.Complete {
			return fmt.Errorf("extraction interrupted, watermark not committed")
		}
		if err := acq.Tracker.Commit(); err != nil {
			return fmt.Errorf("commit watermark: %w", err)
		}
		fmt.Printf("Watermark now %s\n", acq.Tracker.Since().Format(time.RFC3339))
	}
	return nil
}

func newFeed(c *config.Config) *crashfeed.DirSource {
	return crashfeed.NewDirSource(c.Input.CrashDir, c.Input.CrashGlob)
}

// buildDeps assembles the pipeline collaborators from configuration.
// cleanup releases the history store.
func buildDeps(c *config.Config) (pipeline.Deps, func(), error) {
	deps := pipeline.Deps{
		Source: &fetch.ConvertSource{
			Exec: executor.NewDirectExecutor(executor.Config{
				DefaultTimeout:     c.GetFetchTimeout(),
				MaxOutputBytes:     c.SymbolSource.MaxOutputBytes,
				AllowedEnvironment: c.SymbolSource.AllowedEnvVars,
			}),
			Binary:    c.SymbolSource.Binary,
			ServerURL: c.SymbolSource.ServerURL,
			ExtraArgs: c.SymbolSource.ExtraArgs,
			Timeout:   c.GetFetchTimeout(),
		},
		Feed: newFeed(c),
	}
	cleanup := func() {}

	var client *minio.Client
	needClient := c.Publish.Mode == config.PublishModeS3 || c.SymbolSource.ReadOnlyBucket != ""
	if needClient {
		var err error
		client, err = objectstore.NewMinIOClient(objectstore.Config{
			Endpoint:  c.Publish.S3.Endpoint,
			AccessKey: c.Publish.S3.AccessKey,
			SecretKey: c.Publish.S3.SecretKey,
			Region:    c.Publish.S3.Region,
			UseSSL:    c.Publish.S3.UseSSL,
		})
		if err != nil {
			return deps, cleanup, fmt.Errorf("object store: %w", err)
		}
	}

	switch c.Publish.Mode {
	case config.PublishModeDir:
		deps.Publisher = publish.NewDir(c.Publish.Dir)
	case config.PublishModeS3:
		s3, err := publish.NewS3(client, c.Publish.S3.Bucket, c.Publish.S3.Prefix, c.Publish.S3.Region)
		if err != nil {
			return deps, cleanup, err
		}
		deps.Publisher = s3
	default:
		deps.Publisher = publish.None{}
	}

	var readOnly symstore.Chain
	if c.SymbolSource.ReadOnlySymbolPath != "" {
		readOnly = append(readOnly, symstore.NewDir(c.SymbolSource.ReadOnlySymbolPath))
	}
	if c.SymbolSource.ReadOnlyBucket != "" {
		b, err := symstore.NewBucket(client, c.SymbolSource.ReadOnlyBucket, c.SymbolSource.ReadOnlyPrefix, 0)
		if err != nil {
			return deps, cleanup, err
		}
		readOnly = append(readOnly, b)
	}
	if len(readOnly) > 0 {
		deps.ReadOnly = readOnlyLookup(readOnly)
	}

	if c.State.HistoryDB != "" {
		store, err := history.Open(c.State.HistoryDB)
		if err != nil {
			return deps, cleanup, err
		}
		deps.History = store
		cleanup = func() {
			if err := store.Close(); err != nil {
				logger.Warn("Failed to close history store", zap.Error(err))
			}
		}
	}
	return deps, cleanup, nil
}

// readOnlyLookup unwraps a single-store chain.
func readOnlyLookup(c symstore.Chain) negcache.SymbolLookup {
	if len(c) == 1 {
		return c[0]
	}
	return c
}
