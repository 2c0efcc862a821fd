package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/ling0322/hiero/decoder"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// record is one translation in the yaml output
type record struct {
	decoder.Translation `yaml:",inline"`

	Tree string `yaml:"tree,omitempty"`
}

type translateOptions struct {
	configPath      string
	grammars        []string
	lazy            bool
	format          string
	tree            bool
	batchSize       int
	searchGraphPath string
}

func newTranslateCmd() *cobra.Command {
	opts := translateOptions{}

	cmd := &cobra.Command{
		Use:   "translate [file]",
		Short: "Translate tokenized sentences, one per line",
		Long: `Translate tokenized sentences, one per line, from file or from stdin.

Options are read, by priority, from the flags, the HIERO_ environment
variables (like HIERO_POP_LIMIT), the --config yaml file and the defaults.

Sentences without a translation are copied to the output as is.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(opts.grammars) == 0 {
				return errors.New("at least one --grammar is required")
			}
			if opts.format != "text" && opts.format != "yaml" {
				return errors.Errorf("unknown format '%s'", opts.format)
			}
			if opts.batchSize < 1 {
				return errors.Errorf("bad batch size %d", opts.batchSize)
			}

			cfg, err := decoder.LoadConfig(opts.configPath, cmd.Flags())
			if err != nil {
				return err
			}
			if opts.searchGraphPath != "" {
				cfg.SearchGraph = true
			}

			input := io.Reader(os.Stdin)
			if len(args) == 1 {
				fd, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer fd.Close()
				input = fd
			}

			d, err := decoder.Open(cfg, opts.grammars, opts.lazy)
			if err != nil {
				return err
			}
			defer d.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			return translate(ctx, d, input, cmd.OutOrStdout(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "yaml config file")
	flags.StringArrayVarP(&opts.grammars, "grammar", "g", nil, "grammar file, may be repeated")
	flags.BoolVar(&opts.lazy, "lazy", false, "load grammar rules on demand")
	flags.StringVarP(&opts.format, "format", "f", "text", "output format, text or yaml")
	flags.BoolVar(&opts.tree, "tree", false, "output the derivation tree")
	flags.IntVar(&opts.batchSize, "batch-size", 100, "sentences read before translating")
	flags.StringVar(&opts.searchGraphPath, "search-graph-file", "", "write the search graph of every sentence to this file")
	decoder.RegisterFlags(flags)

	return cmd
}

// translate reads sentences from input by batches and writes the
// translations to output
func translate(ctx context.Context, d *decoder.Decoder, input io.Reader, output io.Writer, opts translateOptions) error {
	var graphs io.Writer
	if opts.searchGraphPath != "" {
		fd, err := os.Create(opts.searchGraphPath)
		if err != nil {
			return err
		}
		defer fd.Close()
		graphs = fd
	}

	writer := bufio.NewWriter(output)
	defer writer.Flush()
	var encoder *yaml.Encoder
	if opts.format == "yaml" {
		encoder = yaml.NewEncoder(writer)
	}

	flush := func(batch []string) error {
		translations, err := d.TranslateBatch(ctx, batch)
		if err != nil {
			return err
		}
		for _, t := range translations {
			if err := writeTranslation(writer, encoder, t, opts.tree); err != nil {
				return err
			}
			if graphs != nil && t.SearchGraph != "" {
				if _, err := fmt.Fprintf(graphs, "# sentence %d\n%s", t.ID, t.SearchGraph); err != nil {
					return err
				}
			}
		}
		return writer.Flush()
	}

	scanner := bufio.NewScanner(input)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	batch := []string{}
	for scanner.Scan() {
		batch = append(batch, scanner.Text())
		if len(batch) == opts.batchSize {
			if err := flush(batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "read input")
	}
	if len(batch) != 0 {
		if err := flush(batch); err != nil {
			return err
		}
	}
	if encoder != nil {
		if err := encoder.Close(); err != nil {
			return errors.Wrap(err, "close yaml stream")
		}
	}
	return writer.Flush()
}

// writeTranslation writes t as yaml when encoder is set, else as text. The
// text output is the translation alone, or one "id ||| output ||| score" line
// per n-best entry
func writeTranslation(w io.Writer, encoder *yaml.Encoder, t *decoder.Translation, tree bool) error {
	treeText := ""
	if tree && t.Best != nil {
		treeText = t.Best.Tree().String()
	}

	if encoder != nil {
		return encoder.Encode(&record{Translation: *t, Tree: treeText})
	}

	var err error
	if len(t.NBest) == 0 {
		_, err = fmt.Fprintln(w, t.Output)
	}
	for _, entry := range t.NBest {
		if _, err = fmt.Fprintf(w, "%d ||| %s ||| %.4f\n", t.ID, entry.Output, entry.Score); err != nil {
			break
		}
	}
	if err == nil && treeText != "" {
		_, err = fmt.Fprintln(w, strings.TrimSpace(treeText))
	}
	return err
}
