package setup

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cnv-acmg-classifier/internal/config"
	"github.com/cnv-acmg-classifier/internal/feedback"
)

// CLI provides command-line interface for setup operations.
type CLI struct {
	configFile string
	out        io.Writer
	now        func() time.Time
}

// NewCLI creates a new setup CLI instance. configFile may be empty to use
// the default search path.
func NewCLI(configFile string, out io.Writer) *CLI {
	if out == nil {
		out = os.Stdout
	}
	return &CLI{
		configFile: configFile,
		out:        out,
		now:        time.Now,
	}
}

// Run executes the setup command based on the provided arguments.
func (c *CLI) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return c.showHelp()
	}

	switch args[0] {
	case "init":
		return c.initConfig(args[1:])
	case "status":
		return c.showStatus(ctx)
	case "validate":
		return c.validate(ctx, args[1:])
	case "export":
		return c.export(ctx)
	case "import":
		return c.importFile(ctx, args[1:])
	case "help", "--help", "-h":
		return c.showHelp()
	default:
		fmt.Fprintf(c.out, "Unknown command: %s\n\n", args[0])
		return c.showHelp()
	}
}

// showHelp displays usage information.
func (c *CLI) showHelp() error {
	help := `
CNV ACMG Classifier Setup

Usage:
  cnv-acmg-server setup <command> [options]

Commands:
  init [path] [--force]   Write a default configuration file (default ./config.yaml)
  status                  Show configuration, data directory and verdict count
  validate [--probe]      Validate configuration, optionally contacting the backend
  export                  Export all verdicts into the data directory
  import <file>           Import verdicts from an export file
`
	fmt.Fprintln(c.out, help)
	return nil
}

func (c *CLI) initConfig(args []string) error {
	path := "config.yaml"
	force := false
	for _, arg := range args {
		switch arg {
		case "--force", "-f":
			force = true
		default:
			path = arg
		}
	}

	if err := config.WriteDefaultConfig(path, force); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "✓ Wrote default configuration to %s\n", path)
	return nil
}

// showStatus displays the current setup status.
func (c *CLI) showStatus(ctx context.Context) error {
	manager, err := config.NewManager(c.configFile)
	if err != nil {
		return err
	}
	status := GetStatus(ctx, manager.GetConfig(), manager.ConfigFile())

	fmt.Fprintln(c.out, "CNV ACMG Classifier Status")
	fmt.Fprintln(c.out, "==========================")
	fmt.Fprintln(c.out)

	configFile := status.ConfigFile
	if configFile == "" {
		configFile = "(defaults and environment only)"
	}
	fmt.Fprintf(c.out, "Config file: %s\n", configFile)
	fmt.Fprintf(c.out, "Backend:     %s\n", status.BackendURL)
	fmt.Fprintln(c.out)

	fmt.Fprintln(c.out, "Feedback store:")
	fmt.Fprintf(c.out, "  Driver: %s\n", status.Driver)
	if status.Driver == "sqlite" {
		fmt.Fprintf(c.out, "  Data directory: %s\n", status.DataDir)
		fmt.Fprintf(c.out, "  Database: %s\n", status.DatabasePath)
	}
	if status.DatabaseExists {
		fmt.Fprintf(c.out, "  Verdicts: %d\n", status.Verdicts)
	} else {
		fmt.Fprintln(c.out, "  Status: - Not created yet")
	}
	fmt.Fprintln(c.out)

	if len(status.Issues) > 0 {
		fmt.Fprintln(c.out, "Issues:")
		for _, issue := range status.Issues {
			fmt.Fprintf(c.out, "  ⚠ %s\n", issue)
		}
		fmt.Fprintln(c.out)
	}

	return nil
}

// validate checks the current configuration.
func (c *CLI) validate(ctx context.Context, args []string) error {
	manager, err := config.NewManager(c.configFile)
	if err != nil {
		return err
	}
	probe := len(args) > 0 && args[0] == "--probe"

	fmt.Fprintln(c.out, "Validating configuration...")
	fmt.Fprintln(c.out)

	valid, issues := Validate(ctx, manager.GetConfig(), probe)
	if valid {
		fmt.Fprintln(c.out, "✓ Configuration is valid!")
	} else {
		fmt.Fprintln(c.out, "✗ Configuration has issues:")
	}
	for _, issue := range issues {
		fmt.Fprintf(c.out, "  - %s\n", issue)
	}

	if !valid {
		return fmt.Errorf("configuration is invalid")
	}
	return nil
}

func (c *CLI) export(ctx context.Context) error {
	store, dataDir, err := c.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	path, err := ExportVerdicts(ctx, store, config.ExportDir(dataDir), c.now())
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "✓ Exported verdicts to %s\n", path)
	return nil
}

func (c *CLI) importFile(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("import requires a file path")
	}

	store, _, err := c.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	imported, skipped, err := ImportVerdicts(ctx, store, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "✓ Imported %d verdicts (%d skipped)\n", imported, skipped)
	return nil
}

func (c *CLI) openStore() (feedback.Store, string, error) {
	manager, err := config.NewManager(c.configFile)
	if err != nil {
		return nil, "", err
	}
	cfg := manager.GetFeedbackConfig()
	if err := config.EnsureDataDir(cfg.DataDir); err != nil {
		return nil, "", err
	}

	store, err := feedback.Open(*cfg)
	if err != nil {
		return nil, "", err
	}
	return store, cfg.DataDir, nil
}
