// Package decoder translates sentences with a chart per sentence, several
// sentences at a time
package decoder

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/ling0322/hiero/chart"
	"github.com/ling0322/hiero/grammar"
	"github.com/ling0322/hiero/scorer"
	"github.com/pkg/errors"
	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"
)

var log = commonlog.GetLogger("hiero.decoder")

// ErrNoTranslation is set on the translations copied from their source
// because no derivation covers the sentence
var ErrNoTranslation = errors.New("no translation")

// NBestEntry is one entry of an n-best list
type NBestEntry struct {
	Output string  `yaml:"output"`
	Score  float64 `yaml:"score"`
}

// Translation is the result of one sentence
type Translation struct {
	ID     int                `yaml:"id"`
	Source string             `yaml:"source"`
	Output string             `yaml:"output"`
	Score  float64            `yaml:"score"`
	Scores map[string]float64 `yaml:"scores,omitempty"`
	NBest  []NBestEntry       `yaml:"nbest,omitempty"`

	// Failed is set when the output is the source copied as is
	Failed          bool `yaml:"failed,omitempty"`
	EarlyTerminated bool `yaml:"early-terminated,omitempty"`

	Best        *chart.Hypothesis `yaml:"-"`
	SearchGraph string            `yaml:"-"`
	Stats       chart.Stats       `yaml:"-"`
	Duration    time.Duration     `yaml:"-"`
	Err         error             `yaml:"-"`
}

// Decoder translates sentences. It is safe for concurrent use
type Decoder struct {
	grammars []grammar.Grammar
	scorers  *scorer.Set
	cfg      Config

	closers []interface{ Close() error }
	nextID  atomic.Int64
}

// glueRule concatenates two adjacent translations
func glueRule(label string) string {
	return fmt.Sprintf("[%s] ::= [%s,1] [%s,2] => [%s,1] [%s,2]", label, label, label, label, label)
}

// NewDecoder creates a decoder from loaded grammars and scorers
func NewDecoder(grammars []grammar.Grammar, scorers *scorer.Set, cfg Config) (*Decoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(grammars) == 0 {
		return nil, errors.New("NewDecoder: no grammar")
	}

	d := &Decoder{
		grammars: append([]grammar.Grammar{}, grammars...),
		scorers:  scorers,
		cfg:      cfg,
	}
	if cfg.Glue {
		glue, err := grammar.ParseGrammar(glueRule(cfg.DefaultLabel))
		if err != nil {
			return nil, errors.Wrap(err, "NewDecoder")
		}
		d.grammars = append(d.grammars, glue)
	}
	return d, nil
}

// Open loads the grammars at paths and the scorers of cfg. With lazy set
// the grammars are read on demand from their files
func Open(cfg Config, paths []string, lazy bool) (*Decoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	grammars := []grammar.Grammar{}
	closers := []interface{ Close() error }{}
	closeAll := func() {
		for _, closer := range closers {
			closer.Close()
		}
	}
	for _, path := range paths {
		if lazy {
			g, err := grammar.OpenLazyGrammar(path)
			if err != nil {
				closeAll()
				return nil, err
			}
			grammars = append(grammars, g)
			closers = append(closers, g)
			continue
		}
		g, err := grammar.LoadGrammar(path)
		if err != nil {
			closeAll()
			return nil, err
		}
		grammars = append(grammars, g)
	}

	scorers, err := scorer.Load(cfg.ScorerOptions())
	if err != nil {
		closeAll()
		return nil, err
	}

	d, err := NewDecoder(grammars, scorers, cfg)
	if err != nil {
		closeAll()
		return nil, err
	}
	d.closers = closers
	return d, nil
}

// Close releases the files of the lazily loaded grammars
func (d *Decoder) Close() error {
	var first error
	for _, closer := range d.closers {
		if err := closer.Close(); err != nil && first == nil {
			first = err
		}
	}
	d.closers = nil
	return first
}

// Config returns the configuration of d
func (d *Decoder) Config() Config {
	return d.cfg
}

// Translate translates one tokenized sentence. A sentence without
// derivation is copied to the output and flagged Failed. The error is only
// set when a grammar block reached by the sentence could not be read; the
// copied translation is returned with it
func (d *Decoder) Translate(ctx context.Context, sentence string) (*Translation, error) {
	return d.translate(ctx, int(d.nextID.Add(1)-1), sentence)
}

func (d *Decoder) translate(ctx context.Context, id int, sentence string) (*Translation, error) {
	started := time.Now()
	words := strings.Fields(sentence)
	t := &Translation{ID: id, Source: strings.Join(words, " ")}
	if len(words) == 0 {
		return t, nil
	}

	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}

	manager := chart.NewManager(words, d.grammars, d.scorers.Scorers(), d.cfg.ChartOptions())
	manager.SetEstimator(d.scorers)
	result := manager.Decode(ctx)
	t.Duration = time.Since(started)
	t.Stats = result.Stats
	t.EarlyTerminated = result.EarlyTerminated
	if result.Err != nil {
		err := errors.Wrapf(result.Err, "Translate: sentence %d", id)
		log.Errorf("sentence %d: %s, copying the source", id, err)
		t.Output = t.Source
		t.Failed = true
		t.Err = err
		return t, err
	}

	if result.Status == chart.NoTranslation {
		log.Warningf("sentence %d: no translation, copying the source", id)
		t.Output = t.Source
		t.Failed = true
		t.Err = ErrNoTranslation
		return t, nil
	}

	t.Best = result.Best
	t.Output = result.Best.Output()
	t.Score = result.Best.Score
	t.Scores = d.scorers.Breakdown(result.Best)
	if d.cfg.NBestSize > 0 {
		for _, deriv := range manager.GetNBest(d.cfg.NBestSize, d.cfg.NBestDistinct) {
			t.NBest = append(t.NBest, NBestEntry{Output: deriv.Output(), Score: deriv.Score})
		}
	}
	if d.cfg.SearchGraph {
		var buf bytes.Buffer
		stats, err := manager.WriteSearchGraph(&buf)
		if err != nil {
			return nil, err
		}
		log.Debugf("sentence %d: search graph with %d winners and %d losers", id, stats.Winners, stats.Losers)
		t.SearchGraph = buf.String()
	}

	log.Debugf(
		"sentence %d: %d words in %s, %d options, %d pops, %d hypotheses, %d recombined, %d pruned",
		id,
		len(words),
		t.Duration,
		t.Stats.Options,
		t.Stats.Popped,
		t.Stats.Store.Added,
		t.Stats.Store.Recombined,
		t.Stats.Store.Pruned+t.Stats.Store.Discarded)
	return t, nil
}

// TranslateBatch translates sentences with up to Config.Workers sentences at
// a time. The translations are in the order of sentences. A sentence whose
// grammar block could not be read is copied like an untranslatable one, with
// Err set, and the rest of the batch goes on. The error is only set when ctx
// is done before the batch completes
func (d *Decoder) TranslateBatch(ctx context.Context, sentences []string) ([]*Translation, error) {
	corrID := uuid.New().String()
	started := time.Now()
	log.Infof("batch %s: translating %d sentences with %d workers", corrID, len(sentences), d.cfg.Workers)

	base := int(d.nextID.Add(int64(len(sentences)))) - len(sentences)
	translations := make([]*Translation, len(sentences))
	var group errgroup.Group
	group.SetLimit(d.cfg.Workers)
	for i, sentence := range sentences {
		i, sentence := i, sentence
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			// The error is kept on the translation
			translations[i], _ = d.translate(ctx, base+i, sentence)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, errors.Wrapf(err, "batch %s", corrID)
	}

	failed, broken := 0, 0
	for _, t := range translations {
		if t.Failed {
			failed++
		}
		if t.Err != nil && t.Err != ErrNoTranslation {
			broken++
		}
	}
	log.Infof("batch %s: done in %s, %d failed, %d with grammar errors", corrID, time.Since(started), failed, broken)
	return translations, nil
}
