package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/google/subcommands"
	"github.com/rs/zerolog"
	"github.com/warp/instrument-ledger/api"
	"github.com/warp/instrument-ledger/config"
	"github.com/warp/instrument-ledger/export"
	"github.com/warp/instrument-ledger/ledger"
	"github.com/warp/instrument-ledger/logger"
	"github.com/warp/instrument-ledger/store/sqlite"
)

// env opens the store on first use so "help" never touches the database.
type env struct {
	cfg   *config.Config
	store *sqlite.Store
	log   zerolog.Logger
}

func (e *env) open() (*sqlite.Store, error) {
	if e.store != nil {
		return e.store, nil
	}
	e.log = logger.NewWithOptions(os.Stderr, e.cfg.Logger())
	s, err := sqlite.New(e.cfg.DBPath)
	if err != nil {
		return nil, err
	}
	e.store = s
	return s, nil
}

func (e *env) close() {
	if e.store != nil {
		e.store.Close()
	}
}

func (e *env) tracker() (*ledger.Tracker, error) {
	s, err := e.open()
	if err != nil {
		return nil, err
	}
	return ledger.NewTracker(s), nil
}

func fail(format string, args ...any) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	return subcommands.ExitFailure
}

// --- expandCmd ---

type expandCmd struct {
	in string
}

func (*expandCmd) Name() string     { return "expand" }
func (*expandCmd) Synopsis() string { return "prints the ledger rows an instrument would produce" }
func (*expandCmd) Usage() string {
	return `expand [-in instrument.json]

Reads an instrument in the API request shape (stdin by default) and prints
its per-year rows without touching the database.
`
}
func (c *expandCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.in, "in", "", "instrument JSON file; empty reads stdin")
}

func (c *expandCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	var r io.Reader = os.Stdin
	if c.in != "" {
		f, err := os.Open(c.in)
		if err != nil {
			return fail("%v", err)
		}
		defer f.Close()
		r = f
	}

	var req api.InstrumentRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return fail("decoding instrument: %v", err)
	}
	in, err := req.ToInstrument()
	if err != nil {
		return fail("%v", err)
	}
	if in.Reference == "" {
		in.Reference = "preview"
	}
	if err := in.Validate(); err != nil {
		return fail("%v", err)
	}
	rows, err := ledger.Expand(in)
	if err != nil {
		return fail("%v", err)
	}
	printRows(os.Stdout, rows)
	return subcommands.ExitSuccess
}

func printRows(w io.Writer, rows []ledger.Row) {
	tw := tabwriter.NewWriter(w, 0, 4, 1, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "year\t%s\t\n", strings.Join(ledger.MonthNames[:], "\t"))
	for _, r := range rows {
		fmt.Fprintf(tw, "%d", r.Year)
		for _, v := range r.Months {
			fmt.Fprintf(tw, "\t%s", v.StringFixed(2))
		}
		fmt.Fprintln(tw, "\t")
	}
	tw.Flush()
}

// --- refreshCmd ---

type refreshCmd struct{ env *env }

func (*refreshCmd) Name() string     { return "refresh" }
func (*refreshCmd) Synopsis() string { return "closes every instrument past its maturity date" }
func (*refreshCmd) Usage() string    { return "refresh\n" }
func (*refreshCmd) SetFlags(*flag.FlagSet) {}

func (c *refreshCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	t, err := c.env.tracker()
	if err != nil {
		return fail("%v", err)
	}
	n, err := t.Refresh(ctx)
	if err != nil {
		return fail("%v", err)
	}
	c.env.log.Info().Int("rows", n).Msg("expired statuses refreshed")
	return subcommands.ExitSuccess
}

// --- upcomingCmd ---

type upcomingCmd struct {
	env   *env
	limit int
}

func (*upcomingCmd) Name() string     { return "upcoming" }
func (*upcomingCmd) Synopsis() string { return "lists the soonest maturities" }
func (*upcomingCmd) Usage() string    { return "upcoming [-n 4]\n" }
func (c *upcomingCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.limit, "n", ledger.DefaultUpcomingLimit, "number of maturities")
}

func (c *upcomingCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	t, err := c.env.tracker()
	if err != nil {
		return fail("%v", err)
	}
	ms, err := t.Upcoming(ctx, c.limit)
	if err != nil {
		return fail("%v", err)
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "reference\tbank\ttype\tmatures")
	for _, m := range ms {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.Reference, m.Bank, m.AccountType, m.Display)
	}
	tw.Flush()
	return subcommands.ExitSuccess
}

// --- reportCmd ---

type reportCmd struct{ env *env }

func (*reportCmd) Name() string     { return "report" }
func (*reportCmd) Synopsis() string { return "prints the dashboard and bank summary" }
func (*reportCmd) Usage() string {
	return `report dashboard|banks

dashboard: open instrument counts and monthly Saving / Invested series
banks:     per-bank annual totals and current-month totals
`
}
func (*reportCmd) SetFlags(*flag.FlagSet) {}

func (c *reportCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	t, err := c.env.tracker()
	if err != nil {
		return fail("%v", err)
	}
	agg := ledger.NewAggregator(t.Store, t)
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	switch f.Arg(0) {
	case "dashboard":
		d, err := agg.Dashboard(ctx)
		if err != nil {
			return fail("%v", err)
		}
		fmt.Fprintln(tw, "bank\ttype\topen")
		for _, tc := range d.OpenByBank {
			fmt.Fprintf(tw, "%s\t%s\t%d\n", tc.Bank, tc.AccountType, tc.Count)
		}
		fmt.Fprintln(tw, "\ntype\topen (all banks)")
		for _, tc := range d.OpenByType {
			fmt.Fprintf(tw, "%s\t%d\n", tc.AccountType, tc.Count)
		}
		printSeries(tw, "Savings", d.SavingsMonthly)
		printSeries(tw, "Invested", d.InvestedMonthly)
	case "banks":
		s, err := agg.BankSummary(ctx)
		if err != nil {
			return fail("%v", err)
		}
		printBankTotals(tw, "Saving", s.Saving)
		printBankTotals(tw, "Invested", s.Invested)
		printBankTotals(tw, "Current month", s.Current)
	default:
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	return subcommands.ExitSuccess
}

func printSeries(w io.Writer, title string, series []ledger.YearSeries) {
	fmt.Fprintf(w, "\n%s\t%s\n", title, strings.Join(ledger.MonthNames[:], "\t"))
	for _, s := range series {
		fmt.Fprintf(w, "%d", s.Year)
		for _, v := range s.Months {
			fmt.Fprintf(w, "\t%s", v.StringFixed(2))
		}
		fmt.Fprintln(w)
	}
}

func printBankTotals(w io.Writer, title string, totals []ledger.BankYearTotal) {
	fmt.Fprintf(w, "\n%s\tyear\ttotal\n", title)
	for _, t := range totals {
		fmt.Fprintf(w, "%s\t%d\t%s\n", t.Bank, t.Year, t.Total.StringFixed(2))
	}
}

// --- exportCmd ---

type exportCmd struct {
	env    *env
	format string
	out    string
	filter ledger.Filter
	from   string
	to     string
}

func (*exportCmd) Name() string     { return "export" }
func (*exportCmd) Synopsis() string { return "writes ledger rows as csv or excel" }
func (*exportCmd) Usage() string {
	return `export -format csv|excel -out <file> [filters]

Without filters the whole table is exported.
`
}
func (c *exportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.format, "format", "csv", "csv or excel")
	f.StringVar(&c.out, "out", "", "output file; empty writes stdout")
	f.StringVar(&c.filter.Bank, "bank", "", "bank substring")
	f.StringVar(&c.filter.AccountType, "type", "", "account type substring")
	f.StringVar(&c.filter.Classification, "class", "", "Saving or Invested substring")
	f.StringVar(&c.filter.Status, "status", "", "status substring")
	f.StringVar(&c.filter.Year, "year", "", "year substring")
	f.StringVar(&c.from, "from", "", "maturity on or after YYYY-MM-DD")
	f.StringVar(&c.to, "to", "", "maturity on or before YYYY-MM-DD")
	f.BoolVar(&c.filter.UniqueOnly, "unique", false, "one row per reference")
}

func (c *exportCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	format, err := export.ParseFormat(c.format)
	if err != nil {
		return fail("%v", err)
	}
	if c.filter.MaturityFrom, err = ledger.ParseDate("from", c.from); err != nil {
		return fail("%v", err)
	}
	if c.filter.MaturityTo, err = ledger.ParseDate("to", c.to); err != nil {
		return fail("%v", err)
	}

	t, err := c.env.tracker()
	if err != nil {
		return fail("%v", err)
	}
	ctrl := ledger.NewController(c.env.store, t, c.env.log)

	var rows []ledger.Row
	if c.filter.IsEmpty() {
		rows, err = ctrl.Snapshot(ctx)
	} else {
		rows, err = ctrl.Query(ctx, c.filter)
	}
	if err != nil {
		return fail("%v", err)
	}

	var w io.Writer = os.Stdout
	if c.out != "" {
		f, err := os.Create(c.out)
		if err != nil {
			return fail("%v", err)
		}
		defer f.Close()
		w = f
	}
	if err := export.Write(w, format, rows); err != nil {
		return fail("writing %s: %v", format, err)
	}
	c.env.log.Info().Int("rows", len(rows)).Str("format", string(format)).Msg("export written")
	return subcommands.ExitSuccess
}

// --- optionsCmd ---

type optionsCmd struct{ env *env }

func (*optionsCmd) Name() string     { return "options" }
func (*optionsCmd) Synopsis() string { return "lists, adds or removes bank / account_type values" }
func (*optionsCmd) Usage() string {
	return `options list [kind]
options add <kind> <value>
options rm <kind> <value>

kind is bank or account_type.
`
}
func (*optionsCmd) SetFlags(*flag.FlagSet) {}

func (c *optionsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	args := f.Args()
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	s, err := c.env.open()
	if err != nil {
		return fail("%v", err)
	}

	switch {
	case args[0] == "list" && len(args) == 1:
		opts, err := s.AllOptions(ctx)
		if err != nil {
			return fail("%v", err)
		}
		for _, o := range opts {
			fmt.Printf("%s: %s\n", o.Kind, o.Value)
		}
	case args[0] == "list" && len(args) == 2:
		kind, err := ledger.ParseOptionKind(args[1])
		if err != nil {
			return fail("%v", err)
		}
		values, err := s.ListOptions(ctx, kind)
		if err != nil {
			return fail("%v", err)
		}
		for _, v := range values {
			fmt.Println(v)
		}
	case (args[0] == "add" || args[0] == "rm") && len(args) == 3:
		kind, err := ledger.ParseOptionKind(args[1])
		if err != nil {
			return fail("%v", err)
		}
		if args[0] == "add" {
			err = s.AddOption(ctx, kind, args[2])
		} else {
			err = s.RemoveOption(ctx, kind, args[2])
		}
		if err != nil {
			return fail("%v", err)
		}
	default:
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	return subcommands.ExitSuccess
}
