package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/spigell/job-radar/internal/filtering"
	"github.com/spigell/job-radar/internal/jobs"
	"github.com/spigell/job-radar/internal/logger"
	"github.com/spigell/job-radar/internal/store"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	PromptBack                = "back"
	PromptExit                = "exit"
	PromptShowOutreach        = "Show outreach"
	PromptAppendToExcludeFile = "Append to exclude file"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Browse the top jobs of the last cycle",
	Run: func(cmd *cobra.Command, _ []string) {
		review(cmd)
	},
}

func init() {
	rootCmd.AddCommand(reviewCmd)
}

func review(cmd *cobra.Command) {
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

	latest, err := st.Latest(ctx)
	if errors.Is(err, store.ErrNoCycles) {
		logger.Info("exiting", zap.String("reason", "no cycles recorded yet"))
		return
	}
	if err != nil {
		logger.Fatal("reading the last cycle", zap.Error(err))
	}

	entries := latest.TopScored
	if len(entries) == 0 {
		logger.Info("exiting", zap.String("reason", "the last cycle has no scored jobs"), zap.String("cycle_id", latest.ID))
		return
	}

	r := &reviewer{excludeFile: config.Filters.ExcludeFile, logger: logger, out: cmd.OutOrStdout()}
	if err := r.loop(entries); err != nil && !errors.Is(err, promptui.ErrInterrupt) {
		logger.Fatal("exiting", zap.Error(err))
	}
}

type reviewer struct {
	excludeFile string
	logger      *zap.Logger
	out         io.Writer
}

func (r *reviewer) loop(entries []jobs.ScoredEntry) error {
	for len(entries) > 0 {
		items := make([]string, 0, len(entries)+1)
		for _, e := range entries {
			items = append(items, entryLabel(e))
		}

		jobPrompt := promptui.Select{
			Label: "Choose a job and press ENTER",
			Items: append(items, PromptExit),
			Size:  10,
		}

		idx, selected, err := jobPrompt.Run()
		if err != nil {
			return err
		}
		if selected == PromptExit {
			return nil
		}

		done, err := r.act(entries[idx])
		if err != nil {
			return err
		}
		if done {
			entries = append(entries[:idx:idx], entries[idx+1:]...)
		}
	}

	r.logger.Info("exiting", zap.String("reason", "no jobs left to review"))
	return nil
}

// act reports true when the entry was moved to the exclude file.
func (r *reviewer) act(e jobs.ScoredEntry) (bool, error) {
	actions := []string{PromptShowOutreach}
	if r.excludeFile != "" {
		actions = append(actions, PromptAppendToExcludeFile)
	}

	actionPrompt := promptui.Select{
		Label: fmt.Sprintf("%s at %s", e.Title, e.Company),
		Items: append(actions, PromptBack),
	}

	for {
		_, action, err := actionPrompt.Run()
		if err != nil {
			return false, err
		}

		switch action {
		case PromptBack:
			return false, nil
		case PromptShowOutreach:
			r.show(e)
		case PromptAppendToExcludeFile:
			excluded, err := filtering.LoadExcludedJobs(r.excludeFile)
			if err != nil {
				return false, err
			}
			excluded.Append(filtering.Exclude(jobs.Posting{ID: e.ID, Title: e.Title, Company: e.Company, URL: e.URL}))
			if err := excluded.ToFile(r.excludeFile); err != nil {
				return false, err
			}
			r.logger.Info("appended to exclude file", zap.String("filename", r.excludeFile), zap.String("job_id", e.ID))
			return true, nil
		default:
			return false, fmt.Errorf("invalid action: %s", action)
		}
	}
}

func (r *reviewer) show(e jobs.ScoredEntry) {
	w := r.out

	ai := "unavailable"
	if e.AIScore != nil {
		ai = fmt.Sprintf("%.1f", *e.AIScore)
	}
	fmt.Fprintf(w, "\n%s\n%s\nscore %.1f (heuristic %.1f, ai %s), priority %t\n\n",
		e.Title+" at "+e.Company, e.URL, e.CombinedScore, e.HeuristicScore, ai, e.IsPriority)

	if e.Content == "" {
		fmt.Fprintln(w, "no outreach was generated for this job")
		return
	}
	fmt.Fprintf(w, "%s\n\n(%s)\n\n", e.Content, e.ContentSource)
}
