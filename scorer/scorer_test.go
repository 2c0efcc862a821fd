package scorer

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ling0322/hiero/chart"
	"github.com/ling0322/hiero/grammar"
)

const testARPA = `
\data\
ngram 1=5
ngram 2=3
ngram 3=1

\1-grams:
-1.0	a	-0.5
-1.5	b	-0.3
-2.0	c
-1.2	d	-0.1
-3.0	<unk>

\2-grams:
-0.2	a b	-0.2
-0.4	b c
-0.7	d a

\3-grams:
-0.05	a b c

\end\
`

const testGrammar = `
[X] ::= x => a ; 0.1
[X] ::= y => b | c ; -0.1
[X] ::= z => d ; 0.2
[X] ::= x y => a b ; 0.3
[X] ::= [X,1] w [X,2] => [X,2] [X,1] ; -0.5
[X] ::= [X,1] [X,2] => [X,1] [X,2]
`

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func ruleSum(d *chart.Derivation) float64 {
	sum := d.Edge.Rule().Score
	for _, child := range d.Children {
		sum += ruleSum(child)
	}
	return sum
}

func readLM(t *testing.T, order int) *NGramLM {
	lm, err := ReadNGramLM(strings.NewReader(testARPA), order)
	if err != nil {
		t.Fatal(err)
	}
	return lm
}

func TestWordProb(t *testing.T) {
	lm := readLM(t, 0)
	if lm.Order() != 3 {
		t.Fatalf("Order() = %d", lm.Order())
	}

	cases := []struct {
		word    string
		context []string
		prob    float64
	}{
		{"b", []string{"a"}, -0.2},
		{"c", []string{"a"}, -0.5 - 2.0},
		{"c", []string{"a", "b"}, -0.05},
		{"c", []string{"d", "b"}, -0.4},
		{"a", []string{"c", "d"}, -0.7},
		{"zzz", nil, -3.0},
		{"zzz", []string{"a"}, -0.5 - 3.0},
		{"c", []string{"x", "y", "a", "b"}, -0.05},
	}
	for _, c := range cases {
		if prob := lm.WordProb(c.word, c.context); !near(prob, c.prob) {
			t.Fatalf("WordProb(%s | %v) = %f, %f expected", c.word, c.context, prob, c.prob)
		}
	}

	// Order 2 ignores the trigram
	lm = readLM(t, 2)
	if prob := lm.WordProb("c", []string{"a", "b"}); !near(prob, -0.4) {
		t.Fatalf("WordProb(c | a b) = %f", prob)
	}
}

func TestReadErrors(t *testing.T) {
	for _, text := range []string{
		"",
		"\\data\\\nngram 1=1\n\\1-grams:\nnot-a-number a\n\\end\\\n",
		"\\data\\\nngram 1=1\n\\1-grams:\n-1.0 a b c d\n\\end\\\n",
		"\\data\\\nbad line\n",
	} {
		if _, err := ReadNGramLM(strings.NewReader(text), 0); err == nil {
			t.Fatalf("err != nil expected for %q", text)
		}
	}

	if _, err := LoadNGramLM(filepath.Join(t.TempDir(), "missing.arpa"), 3); err == nil {
		t.Fatal("err != nil expected for a missing file")
	}
}

func TestEstimateRule(t *testing.T) {
	lm := readLM(t, 3)
	lm.Weight = 2
	rules, err := grammar.ParseRule("[X] ::= p [X,1] q => a b [X,1] c")
	if err != nil {
		t.Fatal(err)
	}
	expected := 2 * (-1.0 - 0.2 - 2.0)
	if estimate := lm.EstimateRule(rules[0]); !near(estimate, expected) {
		t.Fatalf("EstimateRule() = %f, %f expected", estimate, expected)
	}

	set := NewSet(&RuleScore{Weight: 0.5}, &WordPenalty{Weight: -1}, lm)
	rules[0].Score = 4
	expected += 0.5*4 - 3
	if estimate := set.EstimateRule(rules[0]); !near(estimate, expected) {
		t.Fatalf("Set.EstimateRule() = %f, %f expected", estimate, expected)
	}
}

func TestLMScoreMatchesSentence(t *testing.T) {
	g, err := grammar.ParseGrammar(testGrammar)
	if err != nil {
		t.Fatal(err)
	}
	lm := readLM(t, 3)
	set := NewSet(&RuleScore{Weight: 1}, &WordPenalty{Weight: -0.5}, lm)

	for _, sentence := range []string{"x y z", "x w y z x", "z z y w x y", "x q y"} {
		words := strings.Fields(sentence)
		opts := chart.DefaultOptions()
		opts.NBestEnabled = true
		m := chart.NewManager(words, []grammar.Grammar{g}, set.Scorers(), opts)
		m.SetEstimator(set)
		result := m.Decode(context.Background())
		if result.Best == nil {
			t.Fatalf("%s: no translation", sentence)
		}

		breakdown := set.Breakdown(result.Best)
		output := result.Best.Words()
		if expected := lm.SentenceProb(output); !near(breakdown[LMName], expected) {
			t.Fatalf("%s: lm score %f, %f expected", sentence, breakdown[LMName], expected)
		}
		if !near(breakdown[WordPenaltyName], -0.5*float64(len(output))) {
			t.Fatalf("%s: penalty %f", sentence, breakdown[WordPenaltyName])
		}
		total := 0.0
		for _, score := range breakdown {
			total += score
		}
		if !near(total, result.Best.Score) {
			t.Fatalf("%s: scores sum to %f, not %f", sentence, total, result.Best.Score)
		}

		// Derivations through recombined hypotheses are scored exactly
		nbest := m.GetNBest(10, false)
		if len(nbest) == 0 || !near(nbest[0].Score, result.Best.Score) {
			t.Fatalf("%s: unexpected n-best", sentence)
		}
		for _, deriv := range nbest {
			words := deriv.Words()
			expected := ruleSum(deriv) + lm.SentenceProb(words) - 0.5*float64(len(words))
			if !near(deriv.Score, expected) {
				t.Fatalf("%s: derivation %s scored %f, %f expected", sentence, deriv.Output(), deriv.Score, expected)
			}
		}
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.arpa")
	if err := os.WriteFile(path, []byte(testARPA), 0o644); err != nil {
		t.Fatal(err)
	}
	set, err := Load(Options{
		Weights:       map[string]float64{LMName: 0.5, "distortion": 1},
		WordPenalty:   -1,
		LanguageModel: path,
		LMOrder:       2,
	})
	if err != nil {
		t.Fatal(err)
	}
	if names := strings.Join(set.Names(), ","); names != "rule,penalty,lm" {
		t.Fatalf("unexpected scorers %s", names)
	}
	lm := set.Scorers()[2].(*NGramLM)
	if lm.Weight != 0.5 || lm.Order() != 2 {
		t.Fatalf("unexpected lm weight %f order %d", lm.Weight, lm.Order())
	}
	if unknown := set.UnknownWeights(map[string]float64{"distortion": 1, "rule": 1}); len(unknown) != 1 {
		t.Fatalf("unexpected unknown weights %v", unknown)
	}

	if _, err := Load(Options{LanguageModel: path + ".missing"}); err == nil {
		t.Fatal("err != nil expected")
	}
}
