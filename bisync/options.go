package bisync

import (
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/pflag"

	"github.com/cjnaz/rclonesync-go/internal/rclog"
	"github.com/cjnaz/rclonesync-go/internal/transport"
)

// Options bundles every flag the engine understands. The cobra/pflag
// entrypoint in cmd/rclonesync fills this in and hands it to Run;
// tests construct it directly.
type Options struct {
	Path1 string
	Path2 string

	FirstSync              bool
	CheckAccess            bool
	CheckFilename          string
	MaxDeletePercent       int
	Force                  bool
	RemoveEmptyDirectories bool
	FiltersFile            string
	RCloneBin              string
	ConfigPath             string
	RCloneArgs             []string
	DryRun                 bool
	Workdir                string
	Verbose                int // repeated --verbose: 1 = Info, 2+ = Debug
	RCVerbose              int // repeated --rc-verbose, forwarded to the transport as -v flags
	NoDatetimeLog          bool
	KeepCheckFiles         bool
	TestMode               bool // internal: relaxes the probe's default test*/** exclusion for the scenario harness

	// Transport overrides the Adapter Run constructs from the fields
	// above. nil in production; tests set it to drive Run against a
	// fake Runner instead of a real transport binary.
	Transport *transport.Adapter
}

// DefaultOptions returns an Options populated with every documented
// default.
func DefaultOptions() Options {
	workdir, err := homedir.Expand("~/.rclonesyncwd")
	if err != nil {
		workdir = ".rclonesyncwd"
	}
	return Options{
		CheckFilename:    DefaultCheckFilename,
		MaxDeletePercent: DefaultMaxDeletePercent,
		RCloneBin:        "rclone",
		Workdir:          workdir,
	}
}

// BindFlags registers every documented flag onto fs, writing into opt.
// Called once from cmd/rclonesync's cobra command.
func BindFlags(fs *pflag.FlagSet, opt *Options) {
	fs.BoolVar(&opt.FirstSync, "first-sync", opt.FirstSync, "Bootstrap a baseline from the current state of both paths, copying Path2-only files to Path1")
	fs.BoolVar(&opt.CheckAccess, "check-access", opt.CheckAccess, "Run the access-health probe before reconciling")
	fs.StringVar(&opt.CheckFilename, "check-filename", opt.CheckFilename, "Basename of the access-health check file")
	fs.IntVar(&opt.MaxDeletePercent, "max-deletes", opt.MaxDeletePercent, "Abort if more than this percent of either side's prior listing would be deleted")
	fs.BoolVar(&opt.Force, "force", opt.Force, "Bypass the excessive-delete and all-changed safety guards")
	fs.BoolVar(&opt.RemoveEmptyDirectories, "remove-empty-directories", opt.RemoveEmptyDirectories, "Prune empty directories on both sides after reconciling")
	fs.StringVar(&opt.FiltersFile, "filters-file", opt.FiltersFile, "rclone filter-file path, applied to every listing and mutation")
	fs.StringVar(&opt.RCloneBin, "rclone", opt.RCloneBin, "Path to the rclone (or compatible) binary")
	fs.StringVar(&opt.ConfigPath, "config", opt.ConfigPath, "Path to the rclone config file, forwarded to every transport call")
	// --rclone-args is deliberately not bound here: it is a raw
	// remainder flag (see SplitRcloneArgs), not an ordinary fixed-arity
	// one, and pflag has no type for "everything after this token,
	// verbatim, including further -prefixed tokens". It is still
	// registered so --help lists it and fs.Parse doesn't reject it
	// outright if it appears with nothing after it.
	fs.String("rclone-args", "", "Everything after this flag, verbatim, is appended to every transport invocation (must be the last flag on the command line; split out of os.Args before flag parsing, see SplitRcloneArgs)")
	fs.BoolVar(&opt.DryRun, "dry-run", opt.DryRun, "Plan and probe without mutating either side or the real baselines")
	fs.StringVar(&opt.Workdir, "workdir", opt.Workdir, "Directory holding baselines and per-run listing files")
	fs.CountVarP(&opt.Verbose, "verbose", "v", "Increase logging verbosity (-v for Info, -vv for Debug)")
	fs.CountVar(&opt.RCVerbose, "rc-verbose", "Increase the transport binary's own verbosity, forwarded as repeated -v flags")
	fs.BoolVar(&opt.NoDatetimeLog, "no-datetime-log", opt.NoDatetimeLog, "Omit the timestamp prefix from log lines")
	fs.BoolVar(&opt.KeepCheckFiles, "keep-chkfiles", opt.KeepCheckFiles, "Keep access-health probe listings after a successful run")
}

// SplitRcloneArgs splits a raw argument list (e.g. os.Args[1:]) around
// the literal "--rclone-args" token: everything before it is returned
// as rest, for ordinary cobra/pflag parsing; everything after it is
// returned verbatim as rcloneArgs, the opaque pass-through appended to
// every transport invocation. This mirrors the original tool's own
// `--rclone-args` handling (original_source Test/testrcsync.py:
// "rcargs = _line[rclone_args_index:]"), where everything from
// --rclone-args to end-of-line, including further -prefixed tokens, is
// taken as one opaque remainder rather than parsed as ordinary flags.
// Must be called before the flag set sees args; a fixed-arity pflag
// type cannot express this (a following "-progress" or "--progress"
// would otherwise be consumed as --rclone-args's single value, or
// rejected as an unrecognized flag).
func SplitRcloneArgs(args []string) (rest []string, rcloneArgs []string) {
	for i, a := range args {
		if a == "--rclone-args" {
			return args[:i], args[i+1:]
		}
	}
	return args, nil
}

// RCloneArgsExtra combines --rclone-args with the repeated --rc-verbose
// count, rendered as that many "-v" flags appended to every transport
// invocation.
func (o Options) RCloneArgsExtra() []string {
	args := append([]string{}, o.RCloneArgs...)
	for i := 0; i < o.RCVerbose; i++ {
		args = append(args, "-v")
	}
	return args
}

// LogLevel maps the repeated --verbose count to an rclog.Level.
func (o Options) LogLevel() rclog.Level {
	switch {
	case o.Verbose >= 2:
		return rclog.Debug
	case o.Verbose == 1:
		return rclog.Info
	default:
		return rclog.Notice
	}
}
