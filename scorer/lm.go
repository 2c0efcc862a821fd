package scorer

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ling0322/hiero/chart"
	"github.com/ling0322/hiero/grammar"
	"github.com/pkg/errors"
)

// UnknownWordProb is the log10 probability of a word missing from the model
// when the model has no <unk>
const UnknownWordProb = -100.0

type ngramEntry struct {
	prob    float64
	backoff float64
}

// NGramLM is a back-off n-gram language model read from the ARPA format.
// Probabilities are log10
type NGramLM struct {
	Weight float64

	order  int
	ngrams map[string]ngramEntry
	unk    float64
}

// lmState is the part of a translation that the words around it can see:
// its first and last order-1 words. When the translation is shorter than
// order-1 words, both hold all of it
type lmState struct {
	prefix []string
	suffix []string
	short  bool
}

func (s *lmState) Key() string {
	return strings.Join(s.prefix, " ") + "\x00" + strings.Join(s.suffix, " ")
}

// LoadNGramLM reads an ARPA file. order limits the order of the model, 0
// uses the order of the file
func LoadNGramLM(path string, order int) (*NGramLM, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "LoadNGramLM")
	}
	defer fd.Close()

	lm, err := ReadNGramLM(fd, order)
	if err != nil {
		return nil, errors.Wrapf(err, "LoadNGramLM: %s", path)
	}
	log.Infof("language model %s loaded: order %d, %d n-grams", path, lm.order, len(lm.ngrams))
	return lm, nil
}

// ReadNGramLM reads a model in the ARPA format from reader
func ReadNGramLM(reader io.Reader, order int) (*NGramLM, error) {
	lm := &NGramLM{Weight: 1, ngrams: map[string]ngramEntry{}, unk: UnknownWordProb}
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	section := -1
	maxOrder := 0
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "\\data\\":
			section = 0
			continue
		case line == "\\end\\":
			section = -2
			continue
		case strings.HasPrefix(line, "\\") && strings.HasSuffix(line, "-grams:"):
			n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(line, "\\"), "-grams:"))
			if err != nil || n < 1 {
				return nil, errors.Errorf("line %d: bad section '%s'", lineNo, line)
			}
			section = n
			if n > maxOrder {
				maxOrder = n
			}
			continue
		}

		switch {
		case section == 0:
			if !strings.HasPrefix(line, "ngram ") {
				return nil, errors.Errorf("line %d: 'ngram N=count' expected", lineNo)
			}
		case section > 0:
			fields := strings.Fields(line)
			if len(fields) < section+1 || len(fields) > section+2 {
				return nil, errors.Errorf("line %d: %d-gram expected", lineNo, section)
			}
			entry := ngramEntry{}
			var err error
			if entry.prob, err = strconv.ParseFloat(fields[0], 64); err != nil {
				return nil, errors.Wrapf(err, "line %d", lineNo)
			}
			if len(fields) == section+2 {
				if entry.backoff, err = strconv.ParseFloat(fields[section+1], 64); err != nil {
					return nil, errors.Wrapf(err, "line %d", lineNo)
				}
			}
			words := fields[1 : section+1]
			lm.ngrams[strings.Join(words, " ")] = entry
			if section == 1 && words[0] == "<unk>" {
				lm.unk = entry.prob
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "ReadNGramLM")
	}
	if section == -1 || maxOrder == 0 {
		return nil, errors.New("ReadNGramLM: no n-gram found")
	}

	lm.order = maxOrder
	if order > 0 && order < maxOrder {
		lm.order = order
	}
	return lm, nil
}

// Order returns the order of the model
func (lm *NGramLM) Order() int {
	return lm.order
}

// WordProb returns log10 P(word | context). Only the last order-1 words of
// context are used
func (lm *NGramLM) WordProb(word string, context []string) float64 {
	if len(context) > lm.order-1 {
		context = context[len(context)-lm.order+1:]
	}
	backoff := 0.0
	for i := 0; i <= len(context); i++ {
		history := context[i:]
		key := word
		if len(history) != 0 {
			key = strings.Join(history, " ") + " " + word
		}
		if entry, ok := lm.ngrams[key]; ok {
			return backoff + entry.prob
		}
		if len(history) != 0 {
			backoff += lm.ngrams[strings.Join(history, " ")].backoff
		}
	}
	return backoff + lm.unk
}

// SentenceProb returns log10 P(words) with each word conditioned on the
// words before it
func (lm *NGramLM) SentenceProb(words []string) float64 {
	prob := 0.0
	for i, word := range words {
		prob += lm.WordProb(word, words[:i])
	}
	return prob
}

func (lm *NGramLM) Name() string {
	return LMName
}

// EstimateRule scores every run of target words of rule, without the
// words around the run
func (lm *NGramLM) EstimateRule(rule *grammar.Rule) float64 {
	estimate := 0.0
	run := []string{}
	for _, tok := range rule.Target {
		if tok.IsTerminal() {
			estimate += lm.WordProb(tok.Word, run)
			run = append(run, tok.Word)
		} else {
			run = run[:0]
		}
	}
	return lm.Weight * estimate
}

// tail returns the last order-1 words of words
func (lm *NGramLM) tail(words []string) []string {
	if len(words) > lm.order-1 {
		return words[len(words)-lm.order+1:]
	}
	return words
}

// EvaluateComplete scores the n-grams made by the rule words and at the
// borders of the children. The first words of a child were scored without
// the words before them, they are rescored here with that context
func (lm *NGramLM) EvaluateComplete(partial *chart.Hypothesis, children []*chart.Hypothesis, id int) (float64, chart.State) {
	n := lm.order - 1
	delta := 0.0
	context := []string{}
	prefix := []string{}

	// Number of words, only exact while no long child is seen
	length := 0
	long := false

	for _, tok := range partial.Rule().Target {
		if tok.IsTerminal() {
			delta += lm.WordProb(tok.Word, context)
			context = append(lm.tail(context), tok.Word)
			if len(prefix) < n {
				prefix = append(prefix, tok.Word)
			}
			length++
			continue
		}

		child := children[tok.Slot].State(id).(*lmState)
		for i, word := range child.prefix {
			history := append(append([]string{}, context...), child.prefix[:i]...)
			delta += lm.WordProb(word, history) - lm.WordProb(word, child.prefix[:i])
			if len(prefix) < n {
				prefix = append(prefix, word)
			}
		}
		if child.short {
			context = lm.tail(append(context, child.prefix...))
			length += len(child.prefix)
		} else {
			context = append([]string{}, child.suffix...)
			long = true
		}
	}

	state := &lmState{
		prefix: prefix,
		suffix: lm.tail(context),
		short:  !long && length < n,
	}
	return lm.Weight * delta, state
}
