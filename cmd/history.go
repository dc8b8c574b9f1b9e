package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/spigell/job-radar/internal/config"
	"github.com/spigell/job-radar/internal/jobs"
	"github.com/spigell/job-radar/internal/logger"
	"github.com/spigell/job-radar/internal/store"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the cycle log",
	Run: func(cmd *cobra.Command, _ []string) {
		history(cmd)
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntP("limit", "n", 0, "print only the last N cycles, newest first (default is the whole log, oldest first)")
}

func history(cmd *cobra.Command) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	st := openStore(ctx, config, logger)
	defer st.Close()

	out := cmd.OutOrStdout()
	asJSON := viper.GetBool("json")
	limit, _ := cmd.Flags().GetInt("limit")

	emit := func(rec jobs.CycleRecord) error {
		if asJSON {
			return json.NewEncoder(out).Encode(rec)
		}
		printCycle(out, rec)
		return nil
	}

	if limit > 0 {
		recs, err := st.Recent(ctx, limit)
		if err != nil {
			logger.Fatal("reading cycles", zap.Error(err))
		}
		for _, rec := range recs {
			if err := emit(rec); err != nil {
				logger.Fatal("printing cycle", zap.Error(err))
			}
		}
		return
	}

	if err := st.Replay(ctx, emit); err != nil {
		logger.Fatal("replaying cycles", zap.Error(err))
	}
}

// openStore exits when the store cannot be read; neither history nor review
// has anything to show without it.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) *store.SQLStore {
	st, err := store.Open(ctx, cfg.Store.Dialect, cfg.Store.DSN, logger)
	if err != nil {
		logger.Fatal("opening the store", zap.String("dsn", cfg.Store.DSN), zap.Error(err))
	}
	return st
}

func printCycle(w io.Writer, rec jobs.CycleRecord) {
	state := "completed"
	if rec.Aborted {
		state = "aborted: " + rec.AbortReason
	}

	fmt.Fprintf(w, "%s  %s  %s  %s\n",
		rec.StartedAt.Local().Format(time.DateTime), rec.ID, rec.Duration().Round(time.Second), state)
	fmt.Fprintf(w, "  raw %d, duplicates %d, malformed %d, filtered %d, new %d, scored %d, ai unavailable %d, dispatched %d\n",
		rec.RawCount, rec.CollapsedDuplicates, rec.MalformedDropped, rec.Filtered,
		rec.NewPostings, rec.Scored, rec.AIUnavailable, rec.Dispatched)

	failed := rec.FailedSources()
	names := make([]string, 0, len(failed))
	for name := range failed {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  source %s: %s\n", name, failed[name])
	}

	for _, e := range rec.TopScored {
		fmt.Fprintf(w, "  %s\n", entryLabel(e))
	}
	if len(rec.DispatchFailures) > 0 {
		fmt.Fprintf(w, "  dispatch failures: %s\n", strings.Join(rec.DispatchFailures, "; "))
	}
}

func entryLabel(e jobs.ScoredEntry) string {
	mark := " "
	if e.IsPriority {
		mark = "*"
	}
	return fmt.Sprintf("%s %5.1f  %s / %s / %s", mark, e.CombinedScore, e.Title, e.Company, e.URL)
}
