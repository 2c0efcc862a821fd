package decoder

import (
	"runtime"
	"strings"
	"time"

	"github.com/ling0322/hiero/chart"
	"github.com/ling0322/hiero/grammar"
	"github.com/ling0322/hiero/scorer"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes the environment variables overriding the configuration,
// like HIERO_POP_LIMIT
const EnvPrefix = "HIERO"

// Config is the configuration of a Decoder. Keys are the same in config
// files, flags and environment variables
type Config struct {
	RuleLimit       int     `mapstructure:"rule-limit" yaml:"rule-limit"`
	OptionThreshold float64 `mapstructure:"option-threshold" yaml:"option-threshold"`
	PopLimit        int     `mapstructure:"pop-limit" yaml:"pop-limit"`
	BeamWidth       float64 `mapstructure:"beam-width" yaml:"beam-width"`
	MaxStackSize    int     `mapstructure:"max-stack-size" yaml:"max-stack-size"`

	AllowUnknownWordFallback bool     `mapstructure:"unknown-word-fallback" yaml:"unknown-word-fallback"`
	UnknownWordScore         float64  `mapstructure:"unknown-word-score" yaml:"unknown-word-score"`
	DefaultLabel             string   `mapstructure:"default-label" yaml:"default-label"`
	Goals                    []string `mapstructure:"goals" yaml:"goals"`
	Glue                     bool     `mapstructure:"glue" yaml:"glue"`

	NBestEnabled  bool `mapstructure:"nbest-enabled" yaml:"nbest-enabled"`
	NBestSize     int  `mapstructure:"nbest-size" yaml:"nbest-size"`
	NBestDistinct bool `mapstructure:"nbest-distinct" yaml:"nbest-distinct"`
	SearchGraph   bool `mapstructure:"search-graph" yaml:"search-graph"`

	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Workers     int           `mapstructure:"workers" yaml:"workers"`
	SpanWorkers int           `mapstructure:"span-workers" yaml:"span-workers"`

	Weights       map[string]float64 `mapstructure:"weights" yaml:"weights"`
	LanguageModel string             `mapstructure:"lm" yaml:"lm"`
	LMOrder       int                `mapstructure:"lm-order" yaml:"lm-order"`
	WordPenalty   float64            `mapstructure:"word-penalty" yaml:"word-penalty"`
}

// DefaultConfig returns the configuration used when nothing is set
func DefaultConfig() Config {
	opts := chart.DefaultOptions()
	return Config{
		RuleLimit:                opts.RuleLimit,
		PopLimit:                 opts.PopLimit,
		BeamWidth:                opts.BeamWidth,
		MaxStackSize:             opts.MaxStackSize,
		AllowUnknownWordFallback: opts.AllowUnknownWordFallback,
		UnknownWordScore:         opts.UnknownWordScore,
		DefaultLabel:             string(opts.DefaultLabel),
		Glue:                     true,
		Workers:                  runtime.NumCPU(),
		SpanWorkers:              opts.SpanWorkers,
		Weights:                  map[string]float64{},
		LMOrder:                  3,
		WordPenalty:              -1,
	}
}

// Validate checks the limits of c
func (c *Config) Validate() error {
	switch {
	case c.RuleLimit < 0:
		return errors.Errorf("Config: negative rule-limit %d", c.RuleLimit)
	case c.PopLimit < 0:
		return errors.Errorf("Config: negative pop-limit %d", c.PopLimit)
	case c.BeamWidth < 0:
		return errors.Errorf("Config: negative beam-width %f", c.BeamWidth)
	case c.OptionThreshold < 0:
		return errors.Errorf("Config: negative option-threshold %f", c.OptionThreshold)
	case c.MaxStackSize < 0:
		return errors.Errorf("Config: negative max-stack-size %d", c.MaxStackSize)
	case c.NBestSize < 0:
		return errors.Errorf("Config: negative nbest-size %d", c.NBestSize)
	case c.Timeout < 0:
		return errors.Errorf("Config: negative timeout %s", c.Timeout)
	case c.Workers < 1:
		return errors.Errorf("Config: workers should be at least 1, got %d", c.Workers)
	case c.SpanWorkers < 1:
		return errors.Errorf("Config: span-workers should be at least 1, got %d", c.SpanWorkers)
	case c.LanguageModel != "" && c.LMOrder < 1:
		return errors.Errorf("Config: bad lm-order %d", c.LMOrder)
	case !grammar.Label(c.DefaultLabel).IsValid():
		return errors.Errorf("Config: bad default-label '%s'", c.DefaultLabel)
	}
	for _, goal := range c.Goals {
		if !grammar.Label(goal).IsValid() {
			return errors.Errorf("Config: bad goal '%s'", goal)
		}
	}
	return nil
}

// ChartOptions returns the options of the chart of one sentence
func (c *Config) ChartOptions() chart.Options {
	goals := []grammar.Label{}
	for _, goal := range c.Goals {
		goals = append(goals, grammar.Label(goal))
	}
	return chart.Options{
		RuleLimit:                c.RuleLimit,
		OptionThreshold:          c.OptionThreshold,
		PopLimit:                 c.PopLimit,
		BeamWidth:                c.BeamWidth,
		MaxStackSize:             c.MaxStackSize,
		AllowUnknownWordFallback: c.AllowUnknownWordFallback,
		UnknownWordScore:         c.UnknownWordScore,
		DefaultLabel:             grammar.Label(c.DefaultLabel),
		NBestEnabled:             c.NBestEnabled || c.NBestSize > 0,
		Goals:                    goals,
		SpanWorkers:              c.SpanWorkers,
	}
}

// ScorerOptions returns the options of the scorers
func (c *Config) ScorerOptions() scorer.Options {
	return scorer.Options{
		Weights:       c.Weights,
		WordPenalty:   c.WordPenalty,
		LanguageModel: c.LanguageModel,
		LMOrder:       c.LMOrder,
	}
}

// RegisterFlags adds one flag per key of Config to flags
func RegisterFlags(flags *pflag.FlagSet) {
	d := DefaultConfig()
	flags.Int("rule-limit", d.RuleLimit, "translation options kept per span, 0 for no limit")
	flags.Float64("option-threshold", d.OptionThreshold, "drop options estimated below best - threshold, 0 to disable")
	flags.Int("pop-limit", d.PopLimit, "hypotheses built per span, 0 for no limit")
	flags.Float64("beam-width", d.BeamWidth, "drop hypotheses scoring below best - beam-width, 0 to disable")
	flags.Int("max-stack-size", d.MaxStackSize, "hypotheses kept per span and label, 0 for no limit")
	flags.Bool("unknown-word-fallback", d.AllowUnknownWordFallback, "copy words without a rule to the output")
	flags.Float64("unknown-word-score", d.UnknownWordScore, "score of a copied unknown word")
	flags.String("default-label", d.DefaultLabel, "label of unknown words and glue rules")
	flags.StringSlice("goals", d.Goals, "labels accepted for the whole sentence, empty for any")
	flags.Bool("glue", d.Glue, "add the glue rule concatenating adjacent translations")
	flags.Bool("nbest-enabled", d.NBestEnabled, "keep recombined hypotheses for n-best extraction")
	flags.Int("nbest-size", d.NBestSize, "number of translations in the n-best list")
	flags.Bool("nbest-distinct", d.NBestDistinct, "skip n-best entries with the same output")
	flags.Bool("search-graph", d.SearchGraph, "keep the search graph of every sentence")
	flags.Duration("timeout", d.Timeout, "time budget of one sentence, 0 for none")
	flags.Int("workers", d.Workers, "sentences decoded concurrently")
	flags.Int("span-workers", d.SpanWorkers, "spans of the same width built concurrently")
	flags.String("lm", d.LanguageModel, "language model in the ARPA format")
	flags.Int("lm-order", d.LMOrder, "maximum order of the language model")
	flags.Float64("word-penalty", d.WordPenalty, "score of each target word")
}

// setDefaults makes v aware of every key of Config
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("rule-limit", d.RuleLimit)
	v.SetDefault("option-threshold", d.OptionThreshold)
	v.SetDefault("pop-limit", d.PopLimit)
	v.SetDefault("beam-width", d.BeamWidth)
	v.SetDefault("max-stack-size", d.MaxStackSize)
	v.SetDefault("unknown-word-fallback", d.AllowUnknownWordFallback)
	v.SetDefault("unknown-word-score", d.UnknownWordScore)
	v.SetDefault("default-label", d.DefaultLabel)
	v.SetDefault("goals", d.Goals)
	v.SetDefault("glue", d.Glue)
	v.SetDefault("nbest-enabled", d.NBestEnabled)
	v.SetDefault("nbest-size", d.NBestSize)
	v.SetDefault("nbest-distinct", d.NBestDistinct)
	v.SetDefault("search-graph", d.SearchGraph)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("workers", d.Workers)
	v.SetDefault("span-workers", d.SpanWorkers)
	v.SetDefault("weights", d.Weights)
	v.SetDefault("lm", d.LanguageModel)
	v.SetDefault("lm-order", d.LMOrder)
	v.SetDefault("word-penalty", d.WordPenalty)
}

// LoadConfig reads the configuration from, by priority, flags, HIERO_
// environment variables, the config file at path and the defaults. flags
// and path may be empty
func LoadConfig(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, errors.Wrap(err, "LoadConfig")
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "LoadConfig: %s", path)
		}
	}

	cfg := Config{}
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "LoadConfig")
	}
	if cfg.Weights == nil {
		cfg.Weights = map[string]float64{}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
