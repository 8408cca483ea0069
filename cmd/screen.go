package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/filtering"
	"github.com/spigell/cv-screener/internal/intake"
	"github.com/spigell/cv-screener/internal/logger"
	"github.com/spigell/cv-screener/internal/scoring"
	"github.com/spigell/cv-screener/internal/screening"
	"github.com/spigell/cv-screener/internal/utils"
)

const (
	PromptShowShortlist       = "Show shortlist"
	PromptReportBySkills      = "Report by skills"
	PromptCandidatesToFile    = "Dump candidates to file"
	PromptAppendToExcludeFile = "Append shortlist to exclude file"
	PromptExit                = "Exit"
)

var errExit = errors.New("exit requested")

var screenCmd = &cobra.Command{
	Use:   "screen",
	Short: "Score a batch of résumés against a job description",
	Run: func(cmd *cobra.Command, _ []string) {
		screen(cmd)
	},
}

func init() {
	rootCmd.AddCommand(screenCmd)

	screenCmd.Flags().String("zip", "", "zip archive with résumés")
	screenCmd.Flags().String("dir", "", "directory with résumés")
	screenCmd.Flags().String("description", "", "job description text")
	screenCmd.Flags().String("description-file", "", "file with the job description")
	screenCmd.Flags().StringSlice("must-have", nil, "required skill; repeat or separate with commas")
	screenCmd.Flags().BoolP("auto-approve", "y", false, "print the shortlist without asking")
	screenCmd.Flags().StringP("exclude-file", "e", "", "special file with candidates to exclude. Default is unset.")
	screenCmd.Flags().Float64("min-score", 0, "drop candidates scoring at or below this value")
	screenCmd.Flags().Bool("no-ai", false, "skip the AI review even if enabled in config")

	viper.BindPFlag("job.description", screenCmd.Flags().Lookup("description"))
	viper.BindPFlag("job.description-file", screenCmd.Flags().Lookup("description-file"))
	viper.BindPFlag("job.must-haves", screenCmd.Flags().Lookup("must-have"))
	viper.BindPFlag("screening.exclude-file", screenCmd.Flags().Lookup("exclude-file"))
	viper.BindPFlag("screening.min-score", screenCmd.Flags().Lookup("min-score"))
}

// screen is the main command for the cli.
func screen(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the cv-screener", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	description, err := jobDescription(config.Job)
	if err != nil {
		logger.Fatal("job description is required",
			zap.Error(err),
			zap.String("hint", "use --description, --description-file or job.description in the config file"),
		)
	}
	mustHaves := mustHaveList(config.Job.MustHaves)

	docs, cleanup, err := collectDocuments(cmd, config.Screening.Extensions, logger)
	if err != nil {
		logger.Fatal("collecting documents", zap.Error(err))
	}
	defer cleanup()

	pipeline, extractor, err := newPipeline(config, logger)
	if err != nil {
		logger.Fatal("preparing the pipeline", zap.Error(err))
	}

	batch := screening.Batch{JobDescription: description, MustHaves: mustHaves, Documents: docs}
	candidates, summary, err := pipeline.Run(ctx, batch, func(processed, total int) {
		logger.Info("screening progress", zap.Int("processed", processed), zap.Int("total", total))
	})
	if err != nil {
		logger.Fatal("screening failed", zap.Error(err))
	}

	logger.Info("documents screened",
		zap.Int("total", summary.Total),
		zap.Int("scored", summary.Scored),
		zap.Int("skipped", summary.Skipped),
	)

	steps := filtering.Default()
	deps := filtering.Deps{Logger: logger, Extractor: extractor, Batch: batch}

	switch {
	case !config.AI.Enabled:
		filtering.DisableByName(steps, "ai_review", "disabled in config")
	case cmd.Flag("no-ai").Value.String() == "true":
		filtering.DisableByName(steps, "ai_review", "skip requested via flag")
	default:
		reviewer, err := newAIReviewer(ctx, config.AI, logger)
		if err != nil {
			logger.Warn("skipping AI filter", zap.Error(err))
			filtering.DisableByName(steps, "ai_review", err.Error())
		}
		deps.Reviewer = reviewer
	}

	candidates, err = filtering.Run(ctx, filteringConfig(config), deps, steps, candidates)
	if err != nil {
		logger.Fatal("filtering failed", zap.Error(err))
	}

	for _, status := range filtering.Describe(steps) {
		logger.Debug("filter status",
			zap.String("name", status.Name),
			zap.Bool("enabled", status.Enabled),
			zap.String("reason", status.Reason),
			zap.Any("details", status.Details),
		)
	}

	if candidates.Len() == 0 {
		logger.Info("exiting", zap.String("reason", "no candidates left after filters"))
		return
	}

	shortlist := candidates.Shortlist(config.Screening.ShortlistSize)

	if cmd.Flag("auto-approve").Value.String() == "true" {
		printCandidates(shortlist)
		return
	}

	prompt := promptui.Select{
		Label: "What next?",
		Items: menuItems(config.Screening.ExcludeFile),
	}

	for {
		_, action, err := prompt.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}

		logger.Info("current list of candidates", zap.Int("count", candidates.Len()))

		if err := handleAction(action, logger, config, candidates, shortlist); err != nil {
			if errors.Is(err, errExit) {
				return
			}
			logger.Fatal("exiting", zap.Error(err))
		}
	}
}

func menuItems(excludeFile string) []string {
	items := []string{PromptShowShortlist, PromptReportBySkills, PromptCandidatesToFile}
	if strings.TrimSpace(excludeFile) != "" {
		items = append(items, PromptAppendToExcludeFile)
	}
	return append(items, PromptExit)
}

func handleAction(action string, logger *zap.Logger, config *Config, candidates, shortlist *screening.Candidates) error {
	switch action {
	case PromptShowShortlist:
		printCandidates(shortlist)
		return nil
	case PromptReportBySkills:
		pretty, _ := json.MarshalIndent(candidates.ReportBySkill(), "", "  ")
		logger.Info(string(pretty), zap.Int("candidates count", candidates.Len()))
		return nil
	case PromptCandidatesToFile:
		filename, err := candidates.DumpToTmpFile()
		if err != nil {
			return fmt.Errorf("dump results to file: %w", err)
		}
		logger.Info("dumping result to file", zap.String("filename", filename))
		return nil
	case PromptAppendToExcludeFile:
		path := config.Screening.ExcludeFile
		if err := screening.AppendExclusions(path, shortlist.ToExclusions(screening.ExcludeActorUser, "")); err != nil {
			return err
		}
		logger.Info("appended to exclude file", zap.String("filename", path), zap.Int("count", shortlist.Len()))
		return nil
	case PromptExit:
		logger.Info("exiting", zap.String("reason", "got exit from prompt"))
		return errExit
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}

func printCandidates(c *screening.Candidates) {
	if c.Len() == 0 {
		fmt.Println("no candidates with a positive score")
		return
	}
	for _, line := range c.Summary() {
		fmt.Println(line)
	}
}

func jobDescription(cfg JobConfig) (string, error) {
	if text := strings.TrimSpace(cfg.Description); text != "" {
		return text, nil
	}

	path := strings.TrimSpace(cfg.DescriptionFile)
	if path == "" {
		return "", errors.New("job description is not set")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading job description: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("job description file %q is empty", path)
	}
	return text, nil
}

// mustHaveList flattens repeated and comma separated values.
func mustHaveList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		out = append(out, scoring.ParseMustHaves(value)...)
	}
	return out
}

// collectDocuments finds résumés from either --zip or --dir. The returned
// cleanup removes any temporary extraction directory.
func collectDocuments(cmd *cobra.Command, extensions []string, log *zap.Logger) ([]string, func(), error) {
	zipPath := strings.TrimSpace(cmd.Flag("zip").Value.String())
	dir := strings.TrimSpace(cmd.Flag("dir").Value.String())
	noop := func() {}

	switch {
	case zipPath != "" && dir != "":
		return nil, noop, errors.New("--zip and --dir are mutually exclusive")
	case dir != "":
		docs, err := intake.FindDocuments(dir, extensions)
		if err != nil {
			return nil, noop, err
		}
		if len(docs) == 0 {
			return nil, noop, intake.ErrNoDocuments
		}
		log.Info("found documents", zap.String("dir", dir), zap.Int("count", len(docs)))
		return docs, noop, nil
	case zipPath != "":
		tmp, err := os.MkdirTemp("", app+"-*")
		if err != nil {
			return nil, noop, err
		}
		cleanup := func() {
			freed, err := intake.Cleanup(tmp)
			if err != nil {
				log.Warn("cleaning up extracted archive", zap.String("dir", tmp), zap.Error(err))
				return
			}
			log.Debug("cleaned up extracted archive", zap.String("dir", tmp), zap.String("freed", utils.Megabytes(freed)))
		}

		docs, err := intake.ExtractAndFind(zipPath, tmp, extensions)
		if err != nil {
			cleanup()
			return nil, noop, err
		}
		log.Info("found documents", zap.String("zip", zipPath), zap.Int("count", len(docs)))
		return docs, cleanup, nil
	default:
		return nil, noop, errors.New("either --zip or --dir is required")
	}
}

