package decoder

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ling0322/hiero/grammar"
	"github.com/ling0322/hiero/scorer"
	"github.com/spf13/pflag"
)

const testGrammar = `
;!goal: X
[X] ::= a b => X Y ; 1.0
[X] ::= a [X,1] b => [X,1] Z ; 0.5
[X] ::= b => W ; 0.2
[X] ::= c => V ; 0.1 | U
`

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func newTestDecoder(t *testing.T, cfg Config) *Decoder {
	g, err := grammar.ParseGrammar(testGrammar)
	if err != nil {
		t.Fatal(err)
	}
	scorers, err := scorer.Load(cfg.ScorerOptions())
	if err != nil {
		t.Fatal(err)
	}
	d, err := NewDecoder([]grammar.Grammar{g}, scorers, cfg)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestTranslate(t *testing.T) {
	d := newTestDecoder(t, DefaultConfig())

	// TestCase-1
	tr, err := d.Translate(context.Background(), "a b b")
	if err != nil {
		t.Fatal(err)
	}
	if tr.Output != "W Z" || tr.Failed {
		t.Fatalf("unexpected translation %+v", tr)
	}
	if !near(tr.Scores["rule"], 0.7) || !near(tr.Scores["penalty"], -2) || !near(tr.Score, -1.3) {
		t.Fatalf("unexpected scores %v", tr.Scores)
	}

	// TestCase-2: glue and unknown words
	tr, err = d.Translate(context.Background(), "c  qqq a b")
	if err != nil {
		t.Fatal(err)
	}
	if tr.Source != "c qqq a b" || tr.Output != "V qqq X Y" {
		t.Fatalf("unexpected translation %+v", tr)
	}

	// TestCase-3: empty sentence
	tr, err = d.Translate(context.Background(), "  ")
	if err != nil || tr.Output != "" || tr.Failed {
		t.Fatalf("unexpected translation %+v", tr)
	}
}

func TestPassThrough(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Glue = false
	cfg.AllowUnknownWordFallback = false
	d := newTestDecoder(t, cfg)

	tr, err := d.Translate(context.Background(), "a qqq b")
	if err != nil {
		t.Fatal(err)
	}
	if !tr.Failed || tr.Output != "a qqq b" || !errors.Is(tr.Err, ErrNoTranslation) {
		t.Fatalf("unexpected translation %+v", tr)
	}
}

func TestTranslateBatch(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workers = 3
	cfg.SpanWorkers = 2
	cfg.NBestSize = 3
	cfg.NBestDistinct = true
	cfg.SearchGraph = true
	d := newTestDecoder(t, cfg)

	sentences := []string{}
	for i := 0; i < 20; i++ {
		sentences = append(sentences, strings.Repeat("a b c ", i%4+1))
	}
	translations, err := d.TranslateBatch(context.Background(), sentences)
	if err != nil {
		t.Fatal(err)
	}
	if len(translations) != len(sentences) {
		t.Fatalf("%d translations", len(translations))
	}
	for i, tr := range translations {
		if tr.ID != i || tr.Source != strings.TrimSpace(sentences[i]) {
			t.Fatalf("translation %d out of order: %+v", i, tr)
		}
		expected := strings.TrimSpace(strings.Repeat("X Y V ", i%4+1))
		if tr.Output != expected {
			t.Fatalf("'%s' != '%s'", tr.Output, expected)
		}
		if len(tr.NBest) == 0 || len(tr.NBest) > 3 || !near(tr.NBest[0].Score, tr.Score) {
			t.Fatalf("unexpected n-best %v", tr.NBest)
		}
		if tr.SearchGraph == "" {
			t.Fatal("search graph expected")
		}
	}

	// Single sentences continue the numbering
	tr, err := d.Translate(context.Background(), "a b")
	if err != nil || tr.ID != len(sentences) {
		t.Fatalf("unexpected translation %+v", tr)
	}
}

func TestTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timeout = time.Minute
	d := newTestDecoder(t, cfg)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	tr, err := d.Translate(ctx, strings.Repeat("a b c ", 5))
	if err != nil {
		t.Fatal(err)
	}
	if !tr.EarlyTerminated || tr.Failed {
		t.Fatalf("unexpected translation %+v", tr)
	}
}

func writeFile(t *testing.T, name, text string) string {
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestOpen(t *testing.T) {
	path := writeFile(t, "grammar.txt", testGrammar)
	for _, lazy := range []bool{false, true} {
		d, err := Open(DefaultConfig(), []string{path}, lazy)
		if err != nil {
			t.Fatal(err)
		}
		tr, err := d.Translate(context.Background(), "a b b c")
		if err != nil {
			t.Fatal(err)
		}
		if tr.Output != "W Z V" {
			t.Fatalf("lazy=%v: unexpected output '%s'", lazy, tr.Output)
		}
		if err := d.Close(); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := Open(DefaultConfig(), []string{path + ".missing"}, false); err == nil {
		t.Fatal("err != nil expected")
	}
	cfg := DefaultConfig()
	cfg.LanguageModel = path + ".missing"
	if _, err := Open(cfg, []string{path}, true); err == nil {
		t.Fatal("err != nil expected")
	}
}

func TestBracketedWord(t *testing.T) {
	path := writeFile(t, "grammar.txt", "[X] ::= [X,1] b => [X,1] Z ; 0.5\n[X] ::= b => W ; 0.2\n")
	for _, lazy := range []bool{false, true} {
		d, err := Open(DefaultConfig(), []string{path}, lazy)
		if err != nil {
			t.Fatal(err)
		}
		tr, err := d.Translate(context.Background(), "[X] b")
		if err != nil {
			t.Fatal(err)
		}
		if tr.Output != "[X] Z" {
			t.Fatalf("lazy=%v: unexpected output '%s'", lazy, tr.Output)
		}
		d.Close()
	}
}

func TestBrokenBlock(t *testing.T) {
	text := "[X] ::= a => V ; 0.5\n[X] ::= b => W ; 0.5\n"
	path := writeFile(t, "grammar.txt", text)
	d, err := Open(DefaultConfig(), []string{path}, true)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	ctx := context.Background()
	if tr, err := d.Translate(ctx, "b"); err != nil || tr.Output != "W" {
		t.Fatalf("unexpected translation %+v, err = %v", tr, err)
	}

	// Same length, so the offsets indexed when opened still hold
	broken := strings.Replace(text, "a => V ; 0.5", "a => V ; x.5", 1)
	if err := os.WriteFile(path, []byte(broken), 0o644); err != nil {
		t.Fatal(err)
	}
	tr, err := d.Translate(ctx, "a b")
	if err == nil || !tr.Failed || tr.Output != "a b" || tr.Err == nil {
		t.Fatalf("unexpected translation %+v, err = %v", tr, err)
	}

	// The broken block only fails the sentences reaching it
	if tr, err := d.Translate(ctx, "b"); err != nil || tr.Output != "W" {
		t.Fatalf("unexpected translation %+v, err = %v", tr, err)
	}
	translations, err := d.TranslateBatch(ctx, []string{"b", "a", "b b"})
	if err != nil {
		t.Fatal(err)
	}
	if len(translations) != 3 {
		t.Fatalf("len(translations) = %d", len(translations))
	}
	if translations[0].Output != "W" || translations[2].Output != "W W" {
		t.Fatalf("unexpected outputs '%s' '%s'", translations[0].Output, translations[2].Output)
	}
	failed := translations[1]
	if !failed.Failed || failed.Output != "a" || failed.Err == nil || errors.Is(failed.Err, ErrNoTranslation) {
		t.Fatalf("unexpected translation %+v", failed)
	}
}

func TestConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	for i, mutate := range []func(c *Config){
		func(c *Config) { c.RuleLimit = -1 },
		func(c *Config) { c.PopLimit = -1 },
		func(c *Config) { c.BeamWidth = -1 },
		func(c *Config) { c.Workers = 0 },
		func(c *Config) { c.DefaultLabel = "" },
		func(c *Config) { c.Goals = []string{"[S]"} },
		func(c *Config) { c.LanguageModel = "lm.arpa"; c.LMOrder = 0 },
	} {
		c := DefaultConfig()
		mutate(&c)
		if c.Validate() == nil {
			t.Fatalf("TestCase-%d: err != nil expected", i+1)
		}
	}

	path := writeFile(t, "hiero.yaml", `
pop-limit: 50
beam-width: 5.5
goals: [S]
timeout: 2s
weights:
  lm: 0.5
  rule: 2
`)
	t.Setenv("HIERO_RULE_LIMIT", "7")
	t.Setenv("HIERO_BEAM_WIDTH", "3")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(flags)
	if err := flags.Parse([]string{"--beam-width=1.5", "--workers=2"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path, flags)
	if err != nil {
		t.Fatal(err)
	}
	expected := []string{
		"pop-limit=50",
		"rule-limit=7",
		"beam-width=1.5",
		"workers=2",
		"timeout=2s",
		"goals=[S]",
		"weights=map[lm:0.5 rule:2]",
		"max-stack-size=100",
	}
	actual := []string{
		fmt.Sprintf("pop-limit=%d", cfg.PopLimit),
		fmt.Sprintf("rule-limit=%d", cfg.RuleLimit),
		fmt.Sprintf("beam-width=%g", cfg.BeamWidth),
		fmt.Sprintf("workers=%d", cfg.Workers),
		fmt.Sprintf("timeout=%s", cfg.Timeout),
		fmt.Sprintf("goals=%v", cfg.Goals),
		fmt.Sprintf("weights=%v", cfg.Weights),
		fmt.Sprintf("max-stack-size=%d", cfg.MaxStackSize),
	}
	for i := range expected {
		if expected[i] != actual[i] {
			t.Fatalf("'%s' != '%s'", actual[i], expected[i])
		}
	}
	if opts := cfg.ChartOptions(); len(opts.Goals) != 1 || opts.Goals[0] != "S" {
		t.Fatalf("unexpected goals %v", opts.Goals)
	}

	if _, err := LoadConfig(path+".missing", nil); err == nil {
		t.Fatal("err != nil expected")
	}
}
