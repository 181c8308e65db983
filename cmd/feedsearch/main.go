// Command feedsearch indexes a document collection and runs one boolean
// field query against it, printing the ranked results.
//
//	feedsearch -docs feed.yaml -abstract content -abstract video -relevant 1
//	feedsearch -docs feed.yaml -q 'video -title:audio'
//	feedsearch import -from feed.yaml
//	feedsearch export -to feed.yaml
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"

	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/engine"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/render"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/source"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/pkg/postgres"
)

// listFlag collects a repeatable string flag.
type listFlag []string

func (l *listFlag) String() string {
	return strings.Join(*l, ",")
}

func (l *listFlag) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch {
	case len(os.Args) > 1 && os.Args[1] == "import":
		err = runImport(ctx, os.Args[2:])
	case len(os.Args) > 1 && os.Args[1] == "export":
		err = runExport(ctx, os.Args[2:])
	default:
		err = runSearch(ctx, os.Args[1:])
	}
	if err != nil && !errors.Is(err, flag.ErrHelp) {
		fmt.Fprintf(os.Stderr, "feedsearch: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the optional config file and applies the flags shared
// by every subcommand.
func loadConfig(path, level string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if level == "" {
		level = cfg.Logging.Level
	}
	logger.Setup(os.Stderr, level, "text")
	return cfg, nil
}

func runSearch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("feedsearch", flag.ContinueOnError)
	var title, notTitle, abstract, notAbstract, relevant listFlag
	configPath := fs.String("config", "", "path to config file")
	docs := fs.String("docs", "", "document file (YAML or JSON); overrides the configured source")
	task := fs.Int("task", -1, "index only documents of this search task (-1: use config)")
	stemming := fs.Bool("stem", false, "enable English stemming")
	raw := fs.String("q", "", "query string, e.g. 'video -title:audio'")
	limit := fs.Int("limit", 0, "maximum results (0: configured cap)")
	asJSON := fs.Bool("json", false, "print the result as JSON")
	level := fs.String("log-level", "", "log level (default: config)")
	fs.Var(&title, "title", "term required in the title (repeatable)")
	fs.Var(&notTitle, "not-title", "term excluded from the title (repeatable)")
	fs.Var(&abstract, "abstract", "term required in the abstract (repeatable)")
	fs.Var(&notAbstract, "not-abstract", "term excluded from the abstract (repeatable)")
	fs.Var(&relevant, "relevant", "required relevance flag, 0 or 1 (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath, *level)
	if err != nil {
		return err
	}
	if *docs != "" {
		cfg.Source.Type = "file"
		cfg.Source.Path = *docs
	}
	if *task >= 0 {
		cfg.Index.TaskNumber = task
	}
	if *stemming {
		cfg.Analyzer.Stemming = true
	}

	q := parser.FromLists(title, notTitle, abstract, notAbstract, relevant)
	if *raw != "" {
		parsed, err := parser.Parse(*raw)
		if err != nil {
			return err
		}
		q.Clauses = append(parsed.Clauses, q.Clauses...)
	}

	src, closer, err := source.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer closer.Close()
	collection, err := src.Load(ctx)
	if err != nil {
		return err
	}

	eng := engine.FromConfig(cfg)
	if _, err := eng.Build(ctx, collection); err != nil {
		return err
	}
	res, err := eng.EvaluateLimit(ctx, q, *limit)
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	p := render.New(os.Stdout)
	p.Query(q)
	p.Results(res)
	return nil
}

// runImport copies a document file into the configured Postgres table.
func runImport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("feedsearch import", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config file")
	from := fs.String("from", "", "document file (YAML or JSON) to import")
	level := fs.String("log-level", "", "log level (default: config)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *from == "" {
		return errors.New("import: -from is required")
	}
	cfg, err := loadConfig(*configPath, *level)
	if err != nil {
		return err
	}

	docs, err := source.NewFile(*from).Load(ctx)
	if err != nil {
		return err
	}
	client, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer client.Close()
	store, err := source.NewPostgres(client, cfg.Source.Table)
	if err != nil {
		return err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}
	if err := store.Save(ctx, docs); err != nil {
		return err
	}
	fmt.Printf("imported %d documents into %s\n", len(docs), cfg.Source.Table)
	return nil
}

// runExport writes the configured source's documents to a YAML file that
// -docs and import both read.
func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("feedsearch export", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config file")
	to := fs.String("to", "", "output file (default: stdout)")
	level := fs.String("log-level", "", "log level (default: config)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(*configPath, *level)
	if err != nil {
		return err
	}

	src, closer, err := source.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer closer.Close()
	docs, err := src.Load(ctx)
	if err != nil {
		return err
	}
	data, err := source.Encode(docs)
	if err != nil {
		return err
	}
	if *to == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(*to, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", *to, err)
	}
	fmt.Fprintf(os.Stderr, "exported %d documents to %s\n", len(docs), *to)
	return nil
}
