package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kadirbelkuyu/DBDDL/internal/config"
	"github.com/kadirbelkuyu/DBDDL/internal/database"
	"github.com/kadirbelkuyu/DBDDL/internal/plan"
	"github.com/kadirbelkuyu/DBDDL/internal/schema"
	"github.com/kadirbelkuyu/DBDDL/internal/ui/explorer"
	"github.com/kadirbelkuyu/DBDDL/pkg/logger"
	"github.com/kadirbelkuyu/DBDDL/pkg/progress"
)

// Service runs the CLI workflows. Output goes to out; logs go there too.
type Service struct {
	out          io.Writer
	ShowProgress bool
}

func NewService(out io.Writer) *Service {
	if out == nil {
		out = os.Stdout
	}
	return &Service{out: out, ShowProgress: true}
}

// Session bundles one connection with the engine objects built on it.
type Session struct {
	Conn       database.Session
	Operations *schema.Operations
}

func (s *Session) Close() error {
	return s.Conn.Close()
}

// OpenSession connects and wires dialect, controller, cache and operations.
// Dry run is on when either the config or the caller asks for it.
func OpenSession(ctx context.Context, cfg *config.Config, log *logger.Logger, dryRun bool) (*Session, error) {
	dialect, err := schema.NewDialect(cfg.Database.Type, cfg.Engine.Schema, cfg.Engine.MaxIdentifierLength)
	if err != nil {
		return nil, err
	}

	conn, err := database.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	ctrl := schema.NewController(conn, log, cfg.Engine.DryRun || dryRun)
	cache := schema.NewConstraintCache(schema.IntrospectWith(dialect, conn))

	return &Session{
		Conn:       conn,
		Operations: schema.NewOperations(ctrl, dialect, cache, conn.GetDatabaseName()),
	}, nil
}

// Apply runs one plan file. In dry run the recorded statements are printed
// instead of executed.
func (s *Service) Apply(ctx context.Context, cfg *config.Config, planPath string, dryRun, verbose bool) error {
	p, err := plan.Load(planPath)
	if err != nil {
		return err
	}

	log := logger.New(s.out, verbose)
	log.Infof("Applying plan %s (%d operations)...", planLabel(p, planPath), len(p.Operations))

	var bar *progress.Bar
	if s.ShowProgress {
		bar = progress.NewBar(int64(len(p.Operations)), "applying", s.out)
	}

	statements, err := s.applyPlan(ctx, cfg, p, log, dryRun, bar)
	bar.Finish()
	if err != nil {
		return fmt.Errorf("plan %s failed: %w", planLabel(p, planPath), err)
	}

	if statements != nil {
		s.printStatements(statements)
		return nil
	}
	log.Info("Plan applied successfully!")
	return nil
}

// ApplyParallel runs several independent plans at once, each on its own
// connection and transaction. The first failure cancels the others.
func (s *Service) ApplyParallel(ctx context.Context, cfg *config.Config, planPaths []string, workers int, dryRun, verbose bool) error {
	plans := make([]*plan.Plan, len(planPaths))
	total := 0
	for i, path := range planPaths {
		p, err := plan.Load(path)
		if err != nil {
			return err
		}
		plans[i] = p
		total += len(p.Operations)
	}

	log := logger.New(s.out, verbose)
	log.Infof("Applying %d plans (%d operations)...", len(plans), total)

	var bar *progress.Bar
	if s.ShowProgress {
		bar = progress.NewBar(int64(total), "applying", s.out)
	}

	results := make([][]schema.DeferredStatement, len(plans))
	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, p := range plans {
		i, p := i, p
		g.Go(func() error {
			statements, err := s.applyPlan(gctx, cfg, p, log, dryRun, bar)
			if err != nil {
				return fmt.Errorf("plan %s failed: %w", planLabel(p, planPaths[i]), err)
			}
			results[i] = statements
			return nil
		})
	}
	err := g.Wait()
	bar.Finish()
	if err != nil {
		return err
	}

	for i, statements := range results {
		if statements == nil {
			continue
		}
		fmt.Fprintf(s.out, "-- %s\n", planLabel(plans[i], planPaths[i]))
		s.printStatements(statements)
	}
	log.Info("All plans applied successfully!")
	return nil
}

// applyPlan returns the recorded statements when the session ran dry.
func (s *Service) applyPlan(ctx context.Context, cfg *config.Config, p *plan.Plan, log *logger.Logger, dryRun bool, bar *progress.Bar) ([]schema.DeferredStatement, error) {
	session, err := OpenSession(ctx, cfg, log, dryRun)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	onStep := func(op plan.Operation) {
		log.Debugf("done: %s", op)
		bar.Increment()
	}
	if err := plan.Apply(ctx, session.Operations, p, onStep); err != nil {
		return nil, err
	}

	ctrl := session.Operations.Controller()
	if !ctrl.DryRun() {
		return nil, nil
	}
	statements := ctrl.Statements()
	if statements == nil {
		statements = []schema.DeferredStatement{}
	}
	return statements, nil
}

// Constraints prints the constraints of table, or of one column when column
// is set, as the engine sees them through its cache.
func (s *Service) Constraints(ctx context.Context, cfg *config.Config, table, column string) error {
	session, err := OpenSession(ctx, cfg, logger.New(s.out, false), false)
	if err != nil {
		return err
	}
	defer session.Close()

	ops := session.Operations
	db := session.Conn.GetDatabaseName()

	byColumn := make(map[string][]schema.ConstraintRecord)
	if column != "" {
		records, err := ops.Cache().LookupColumn(ctx, db, table, column)
		if err != nil {
			return fmt.Errorf("failed to read constraints: %w", err)
		}
		byColumn[column] = records
	} else {
		byColumn, err = ops.Cache().Lookup(ctx, db, table)
		if err != nil {
			return fmt.Errorf("failed to read constraints: %w", err)
		}
	}

	fmt.Fprintf(s.out, "\nConstraints on %s (%s):\n", table, ops.Dialect().Name())
	fmt.Fprintln(s.out, strings.Repeat("=", 36))

	count := 0
	for _, name := range sortedColumns(byColumn) {
		for _, record := range byColumn[name] {
			count++
			fmt.Fprintf(s.out, "%d. %s %s (%s)\n", count, record.Kind, record.Name, strings.Join(record.Columns, ", "))
		}
	}
	fmt.Fprintf(s.out, "\nTotal constraints: %d\n", count)
	return nil
}

// Explore opens the terminal constraint browser on cfg's database. Log
// output is dropped while the UI owns the terminal.
func (s *Service) Explore(ctx context.Context, cfg *config.Config) error {
	session, err := OpenSession(ctx, cfg, logger.Discard(), false)
	if err != nil {
		return err
	}
	defer session.Close()

	fmt.Fprintf(s.out, "Connected to %s. Starting explorer... (Press 'q' to exit)\n", session.Conn.GetDatabaseName())
	return explorer.Run(ctx, session.Operations, session.Conn.GetDatabaseName())
}

// Name prints the identifier the engine would generate, without connecting.
// An empty suffix yields an index name; "fk" yields a foreign key name for
// columns [fromColumn, toTable, toColumn].
func (s *Service) Name(cfg *config.Config, table string, columns []string, suffix string) (string, error) {
	dialect, err := schema.NewDialect(cfg.Database.Type, cfg.Engine.Schema, cfg.Engine.MaxIdentifierLength)
	if err != nil {
		return "", err
	}
	namer := schema.NewNamer(dialect.Features().MaxIdentifierLength)

	var name string
	if suffix == "fk" {
		if len(columns) != 3 {
			return "", fmt.Errorf("foreign key names need from_column, to_table and to_column")
		}
		name = namer.ForeignKeyName(table, columns[0], columns[1], columns[2])
	} else {
		if len(columns) == 0 {
			return "", fmt.Errorf("at least one column is required")
		}
		name = namer.IndexName(table, columns, suffix)
	}

	fmt.Fprintln(s.out, name)
	return name, nil
}

func (s *Service) printStatements(statements []schema.DeferredStatement) {
	for _, stmt := range statements {
		if len(stmt.Args) > 0 {
			fmt.Fprintf(s.out, "%s; -- %v\n", stmt.SQL, stmt.Args)
			continue
		}
		fmt.Fprintf(s.out, "%s;\n", stmt.SQL)
	}
}

func planLabel(p *plan.Plan, path string) string {
	if strings.TrimSpace(p.Name) != "" {
		return p.Name
	}
	return path
}

func sortedColumns(m map[string][]schema.ConstraintRecord) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
