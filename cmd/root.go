package cmd

import (
	"errors"
	"fmt"
	"log"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/cv-screener/internal/intake"
	"github.com/spigell/cv-screener/internal/screening"
)

const (
	app       = "cv-screener"
	envPrefix = "CV_SCREENER"
)

type Config struct {
	Job       JobConfig       `mapstructure:"job"`
	Screening ScreeningConfig `mapstructure:"screening"`
	Skills    SkillsConfig    `mapstructure:"skills"`
	Server    ServerConfig    `mapstructure:"server"`
	AI        AIConfig        `mapstructure:"ai"`
}

type JobConfig struct {
	Description     string   `mapstructure:"description"`
	DescriptionFile string   `mapstructure:"description-file"`
	MustHaves       []string `mapstructure:"must-haves"`
}

type ScreeningConfig struct {
	Workers       int      `mapstructure:"workers" validate:"gte=0"`
	MinTextLength int      `mapstructure:"min-text-length" validate:"gte=0"`
	MinScore      float64  `mapstructure:"min-score" validate:"gte=0,lte=100"`
	ShortlistSize int      `mapstructure:"shortlist-size" validate:"gte=1"`
	Extensions    []string `mapstructure:"extensions" validate:"dive,required"`
	ExcludeFile   string   `mapstructure:"exclude-file"`
}

type SkillsConfig struct {
	DictionaryFile string `mapstructure:"dictionary-file" validate:"omitempty,file"`
}

type ServerConfig struct {
	Listen         string `mapstructure:"listen" validate:"required"`
	UploadDir      string `mapstructure:"upload-dir" validate:"required"`
	MaxUploadBytes int64  `mapstructure:"max-upload-bytes" validate:"gt=0"`
	FrontendURL    string `mapstructure:"frontend-url" validate:"omitempty,url"`
}

type AIConfig struct {
	Enabled           bool         `mapstructure:"enabled"`
	Provider          string       `mapstructure:"provider" validate:"omitempty,oneof=gemini"`
	MinimumFitScore   float64      `mapstructure:"minimum-fit-score" validate:"gte=0,lte=1"`
	RequestsPerSecond float64      `mapstructure:"requests-per-second" validate:"gte=0"`
	ReviewTop         int          `mapstructure:"review-top" validate:"gte=0"`
	Gemini            GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKeyFile   string `mapstructure:"api-key-file"`
	Model        string `mapstructure:"model"`
	MaxRetries   int    `mapstructure:"max-retries" validate:"gte=0"`
	MaxLogLength int    `mapstructure:"max-log-length" validate:"gte=0"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "cv-screener ranks résumés against a job description by skills and text similarity",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is cv-screener.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))

	setDefaults()

	if err := viper.BindEnv("ai.gemini.api-key-file", "GEMINI_API_KEY_FILE"); err != nil {
		log.Fatalf("binding GEMINI_API_KEY_FILE environment variable: %v", err)
	}
}

func setDefaults() {
	viper.SetDefault("job.description", "")
	viper.SetDefault("job.description-file", "")
	viper.SetDefault("job.must-haves", []string{})

	viper.SetDefault("screening.workers", 0)
	viper.SetDefault("screening.min-text-length", screening.DefaultMinTextLength)
	viper.SetDefault("screening.min-score", 0)
	viper.SetDefault("screening.shortlist-size", screening.DefaultShortlistSize)
	viper.SetDefault("screening.extensions", intake.DefaultExtensions)
	viper.SetDefault("screening.exclude-file", "")

	viper.SetDefault("skills.dictionary-file", "")

	viper.SetDefault("server.listen", ":5000")
	viper.SetDefault("server.upload-dir", "uploads")
	viper.SetDefault("server.max-upload-bytes", 512<<20)
	viper.SetDefault("server.frontend-url", "")

	viper.SetDefault("ai.enabled", false)
	viper.SetDefault("ai.provider", "gemini")
	viper.SetDefault("ai.minimum-fit-score", 0)
	viper.SetDefault("ai.requests-per-second", 1)
	viper.SetDefault("ai.review-top", 10)
	viper.SetDefault("ai.gemini.model", "gemini-2.5-flash")
	viper.SetDefault("ai.gemini.max-retries", 3)
	viper.SetDefault("ai.gemini.max-log-length", 200)
}

func initConfig() {
	// A missing .env is fine; values may come from the real environment.
	_ = godotenv.Load()

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
	}

	err := viper.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if err != nil && (cfgFile != "" || !errors.As(err, &notFound)) {
		// We can't proceed if the config file parsed with error.
		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validateConfig(config *Config) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("mapstructure"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})

	err := validate.Struct(config)
	if err == nil {
		return nil
	}

	var invalid validator.ValidationErrors
	if !errors.As(err, &invalid) {
		return err
	}

	problems := make([]string, 0, len(invalid))
	for _, fe := range invalid {
		key := strings.ToLower(strings.TrimPrefix(fe.Namespace(), "Config."))
		if fe.Param() != "" {
			problems = append(problems, fmt.Sprintf("%s: failed %s=%s", key, fe.Tag(), fe.Param()))
			continue
		}
		problems = append(problems, fmt.Sprintf("%s: failed %s", key, fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
}
