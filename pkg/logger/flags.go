package logger

import (
	"flag"
	"fmt"
	"strings"
)

// debugFlag pairs one DebugCategory with the CLI surface for it, so
// RegisterFlags/ToConfig/String drive off one table instead of one
// if-statement per category.
type debugFlag struct {
	category DebugCategory
	name     string
	label    string
	help     string
	enabled  bool
}

// Flags holds all logging-related command-line flags.
type Flags struct {
	LogLevel  string
	LogFormat string
	LogFile   string
	DebugAll  bool

	debug []*debugFlag
}

func newDebugFlags() []*debugFlag {
	return []*debugFlag{
		{category: DebugDelivery, name: "debug-delivery", label: "delivery",
			help: "Enable per-frame delivery dispatch debugging (fenced vs pull-mode, sync re-queues)"},
		{category: DebugMaster, name: "debug-master", label: "master",
			help: "Enable master-protocol transition debugging (acquire/force/release)"},
		{category: DebugPool, name: "debug-pool", label: "pool",
			help: "Enable buffer pool renegotiation debugging (changeFramesInFlight)"},
		{category: DebugFence, name: "debug-fence", label: "fence",
			help: "Enable timeline issuance/signal debugging"},
	}
}

// RegisterFlags registers logging flags with the given FlagSet.
func RegisterFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{debug: newDebugFlags()}

	fs.StringVar(&f.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	fs.StringVar(&f.LogLevel, "l", "info", "Log level (shorthand)")

	fs.StringVar(&f.LogFormat, "log-format", "text", "Log output format: text, json")

	fs.StringVar(&f.LogFile, "log-file", "", "Log output file path (default: stdout)")
	fs.StringVar(&f.LogFile, "o", "", "Log output file path (shorthand)")

	for _, d := range f.debug {
		fs.BoolVar(&d.enabled, d.name, false, d.help)
	}
	fs.BoolVar(&f.DebugAll, "debug-all", false, "Enable all debug categories")

	return f
}

// ToConfig converts Flags to a logger Config.
func (f *Flags) ToConfig() (*Config, error) {
	cfg := NewConfig()

	level, err := ParseLevel(f.LogLevel)
	if err != nil {
		return nil, err
	}
	cfg.Level = level

	format, err := ParseFormat(f.LogFormat)
	if err != nil {
		return nil, err
	}
	cfg.Format = format

	cfg.OutputFile = f.LogFile

	if f.DebugAll {
		cfg.EnableAllCategories()
		cfg.Level = LevelDebug
		return cfg, nil
	}
	for _, d := range f.debug {
		if d.enabled {
			cfg.EnableCategory(d.category)
			cfg.Level = LevelDebug
		}
	}
	return cfg, nil
}

// String returns a string representation of enabled flags.
func (f *Flags) String() string {
	parts := []string{
		fmt.Sprintf("level=%s", f.LogLevel),
		fmt.Sprintf("format=%s", f.LogFormat),
	}
	if f.LogFile != "" {
		parts = append(parts, fmt.Sprintf("output=%s", f.LogFile))
	} else {
		parts = append(parts, "output=stdout")
	}

	var debugLabels []string
	if f.DebugAll {
		debugLabels = append(debugLabels, "all")
	} else {
		for _, d := range f.debug {
			if d.enabled {
				debugLabels = append(debugLabels, d.label)
			}
		}
	}
	if len(debugLabels) > 0 {
		parts = append(parts, fmt.Sprintf("debug=[%s]", strings.Join(debugLabels, ",")))
	}

	return strings.Join(parts, " ")
}
