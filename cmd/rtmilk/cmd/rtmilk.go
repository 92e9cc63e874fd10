// Package cmd implements the rtmilk command line interface.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"rtmilk/internal/analytics"
	"rtmilk/internal/config"
	"rtmilk/internal/credentials"
	"rtmilk/internal/shutdown"
	"rtmilk/internal/tui"
	"rtmilk/internal/utils"
	"rtmilk/internal/watcher"
	"rtmilk/rtm"
)

// Version information, set at build time
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Config holds test-injectable wiring. Zero value means production
// defaults: XDG config path, system keyring, real stdin.
type Config struct {
	ConfigPath string
	DataDir    string // analytics database directory (for testing)
	Account    string // keyring account (for testing)
	Keyring    credentials.Keyring
	Stdin      io.Reader
	NoTrack    bool // disable analytics regardless of config
}

// Execute runs the CLI with the given arguments and IO writers
func Execute(args []string, stdout, stderr io.Writer, cfg *Config) int {
	rootCmd := NewRTMilk(stdout, stderr, cfg)

	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.Execute(); err != nil {
		if containsJSONFlag(args) {
			outputErrorJSON(err, stdout)
		} else {
			_, _ = fmt.Fprintln(stderr, "Error:", err)
		}
		return 1
	}
	return 0
}

// containsJSONFlag checks if args contain --json flag
func containsJSONFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--json" {
			return true
		}
	}
	return false
}

// NewRTMilk creates the root command with injectable IO
func NewRTMilk(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Stdin == nil {
		cfg.Stdin = os.Stdin
	}

	cmd := &cobra.Command{
		Use:     "rtmilk",
		Short:   "A Remember The Milk client",
		Long:    "rtmilk is a command-line and terminal UI client for the Remember The Milk task service.",
		Version: Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "V", false, "Enable verbose/debug output")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	cmd.PersistentFlags().String("config", "", "Path to config file")
	cmd.PersistentFlags().StringP("filter", "f", "", "Search filter for task fetches")

	cmd.AddCommand(newListsCmd(stdout, cfg))
	cmd.AddCommand(newTasksCmd(stdout, cfg))
	cmd.AddCommand(newAddCmd(stdout, cfg))
	cmd.AddCommand(newCompleteCmd(stdout, cfg))
	cmd.AddCommand(newAuthCmd(stdout, stderr, cfg))
	cmd.AddCommand(newLogoutCmd(stdout, cfg))
	cmd.AddCommand(newStatsCmd(stdout, cfg))
	cmd.AddCommand(newTUICmd(stdout, stderr, cfg))
	cmd.AddCommand(newVersionCmd(stdout))

	return cmd
}

// app bundles the pieces a command needs: loaded config, credential
// store, service client and analytics tracker. Built per invocation.
type app struct {
	cfg     *Config
	conf    *config.Config
	creds   *credentials.Manager
	client  *rtm.Client
	tracker *analytics.Tracker
	stdout  io.Writer
	jsonOut bool
}

// newApp loads configuration and the credential store. The service
// client is built lazily by apiClient, since auth/logout/stats work
// without one.
func newApp(cmd *cobra.Command, cfg *Config, stdout io.Writer) (*app, error) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	if verbose {
		utils.SetVerboseMode(true)
	}

	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		configPath = cfg.ConfigPath
	}

	conf, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	filter, _ := cmd.Flags().GetString("filter")
	if filter != "" {
		if err := utils.ValidateFilter(filter); err != nil {
			return nil, err
		}
	}
	jsonOut, _ := cmd.Flags().GetBool("json")
	outputFormat := ""
	if jsonOut {
		outputFormat = "json"
	}
	conf.ApplyFlags(filter, outputFormat)
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	var opts []credentials.ManagerOption
	if cfg.Keyring != nil {
		opts = append(opts, credentials.WithKeyring(cfg.Keyring))
	}
	if cfg.Account != "" {
		opts = append(opts, credentials.WithAccount(cfg.Account))
	}

	a := &app{
		cfg:     cfg,
		conf:    conf,
		creds:   credentials.NewManager(opts...),
		stdout:  stdout,
		jsonOut: conf.OutputFormat == "json",
	}
	a.openTracker()
	return a, nil
}

// openTracker sets up the analytics store. Failure to open it degrades
// to untracked execution, never a failed command.
func (a *app) openTracker() {
	if a.cfg.NoTrack {
		return
	}
	enabled := analytics.IsEnabledFromEnv(a.conf.IsAnalyticsEnabled())
	dataDir := a.cfg.DataDir
	if dataDir == "" {
		dataDir = config.GetDataDir()
	}
	tracker, err := analytics.NewTracker(filepath.Join(dataDir, "analytics.db"), enabled)
	if err != nil {
		utils.Debugf("analytics unavailable: %v", err)
		return
	}
	a.tracker = tracker
}

func (a *app) close() {
	if a.tracker != nil {
		_ = a.tracker.Close()
	}
}

// track wraps fn with analytics when the tracker is available.
func (a *app) track(command, method string, fn func() error) error {
	if a.tracker == nil {
		return fn()
	}
	return a.tracker.TrackCommand(command, method, fn)
}

// apiClient builds the service client from the loaded config and
// attaches the stored credential, if any.
func (a *app) apiClient() (*rtm.Client, error) {
	if a.client != nil {
		return a.client, nil
	}
	if !a.conf.HasAPIKey() {
		return nil, utils.ErrAPIKeyMissing()
	}
	client, err := rtm.New(rtm.Config{
		APIKey:     a.conf.API.Key,
		APISecret:  a.conf.API.Secret,
		RestURL:    a.conf.API.RestURL,
		AuthURL:    a.conf.API.AuthURL,
		Timeout:    a.conf.GetTimeout(),
		MaxRetries: a.conf.API.MaxRetries,
	})
	if err != nil {
		return nil, err
	}

	cred, source, err := a.creds.Load()
	if err != nil {
		return nil, err
	}
	if cred != nil {
		utils.Debugf("credential loaded from %s", source)
		client.SetCredential(cred)
	}
	a.client = client
	return client, nil
}

// authedClient is apiClient plus the requirement that a credential is
// attached.
func (a *app) authedClient() (*rtm.Client, error) {
	client, err := a.apiClient()
	if err != nil {
		return nil, err
	}
	if client.Credential() == nil {
		return nil, utils.ErrAuthRequired()
	}
	return client, nil
}

// friendlyError maps service failures to errors carrying a suggestion.
func friendlyError(err error) error {
	if err == nil {
		return nil
	}
	if rtm.IsAuthExpired(err) {
		return utils.ErrTokenExpired(err)
	}
	var te *rtm.TransportError
	if errors.As(err, &te) {
		return utils.ErrServiceUnreachable(te.Err.Error())
	}
	return err
}

// resolveList finds a list by name, case-insensitive.
func resolveList(lists []rtm.List, name string) (*rtm.List, error) {
	for i := range lists {
		if strings.EqualFold(lists[i].Name, name) {
			return &lists[i], nil
		}
	}
	return nil, utils.ErrListNotFound(name)
}

// findTask searches for a task by name using exact then partial matching.
func findTask(tasks []rtm.Task, searchTerm string) (*rtm.Task, error) {
	if searchTerm == "" {
		return nil, fmt.Errorf("task name is required")
	}

	for i := range tasks {
		if strings.EqualFold(tasks[i].Name, searchTerm) {
			return &tasks[i], nil
		}
	}

	searchLower := strings.ToLower(searchTerm)
	var matches []*rtm.Task
	for i := range tasks {
		if strings.Contains(strings.ToLower(tasks[i].Name), searchLower) {
			matches = append(matches, &tasks[i])
		}
	}

	switch len(matches) {
	case 0:
		return nil, utils.ErrTaskNotFound(searchTerm)
	case 1:
		return matches[0], nil
	default:
		var names []string
		for _, m := range matches {
			names = append(names, "  - "+m.Name)
		}
		return nil, fmt.Errorf("multiple tasks match '%s':\n%s", searchTerm, strings.Join(names, "\n"))
	}
}

// newListsCmd creates the 'lists' subcommand
func newListsCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "lists",
		Short: "Show all task lists",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, cfg, stdout)
			if err != nil {
				return err
			}
			defer a.close()

			client, err := a.authedClient()
			if err != nil {
				return err
			}

			var lists []rtm.List
			err = a.track("lists", "rtm.lists.getList", func() error {
				var err error
				lists, err = client.Lists(cmd.Context())
				return err
			})
			if err != nil {
				return friendlyError(err)
			}

			if a.jsonOut {
				return writeJSON(stdout, lists)
			}

			_, _ = fmt.Fprintf(stdout, "Lists (%d):\n\n", len(lists))
			_, _ = fmt.Fprintf(stdout, "%-24s %s\n", "NAME", "ID")
			for _, l := range lists {
				_, _ = fmt.Fprintf(stdout, "%-24s %s\n", l.Name, l.ID)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// newTasksCmd creates the 'tasks' subcommand
func newTasksCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks [list]",
		Short: "Show the tasks of a list",
		Long:  "Show the tasks of a list, scoped by the active search filter (default from config, override with --filter or clear with --all).",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, cfg, stdout)
			if err != nil {
				return err
			}
			defer a.close()

			client, err := a.authedClient()
			if err != nil {
				return err
			}

			filter := a.conf.DefaultFilter
			if all, _ := cmd.Flags().GetBool("all"); all {
				filter = ""
			}

			var tasks []rtm.Task
			var listName string
			err = a.track("tasks", "rtm.tasks.getList", func() error {
				lists, err := client.Lists(cmd.Context())
				if err != nil {
					return err
				}
				list, err := resolveList(lists, args[0])
				if err != nil {
					return err
				}
				listName = list.Name
				tasks, err = client.Tasks(cmd.Context(), list.ID, filter)
				return err
			})
			if err != nil {
				return friendlyError(err)
			}

			if a.jsonOut {
				return writeJSON(stdout, tasksToJSON(tasks))
			}

			if len(tasks) == 0 {
				_, _ = fmt.Fprintf(stdout, "No tasks in '%s'", listName)
				if filter != "" {
					_, _ = fmt.Fprintf(stdout, " matching %q", filter)
				}
				_, _ = fmt.Fprintln(stdout)
				return nil
			}

			_, _ = fmt.Fprintf(stdout, "Tasks in '%s':\n", listName)
			verbose, _ := cmd.Flags().GetBool("verbose")
			for _, t := range tasks {
				printTask(stdout, &t, verbose)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().Bool("all", false, "Ignore the search filter and show every task")
	return cmd
}

// printTask renders one task line; verbose adds identifiers and dates.
func printTask(stdout io.Writer, t *rtm.Task, verbose bool) {
	status := "[ ]"
	if t.IsComplete() {
		status = "[x]"
	}

	var extras []string
	if t.Due != nil {
		if t.HasDueTime {
			extras = append(extras, "due "+t.Due.Format("2006-01-02 15:04"))
		} else {
			extras = append(extras, "due "+t.Due.Format("2006-01-02"))
		}
	}
	if t.Priority != "" && t.Priority != "N" {
		extras = append(extras, "!"+t.Priority)
	}
	for _, tag := range t.Tags {
		extras = append(extras, "#"+tag)
	}

	line := fmt.Sprintf("  %s %s", status, t.Name)
	if len(extras) > 0 {
		line += "  (" + strings.Join(extras, ", ") + ")"
	}
	_, _ = fmt.Fprintln(stdout, line)

	if verbose {
		_, _ = fmt.Fprintf(stdout, "      id=%s series=%s list=%s", t.ID, t.SeriesID, t.ListID)
		if t.Added != nil {
			_, _ = fmt.Fprintf(stdout, " added=%s", t.Added.Format("2006-01-02"))
		}
		_, _ = fmt.Fprintln(stdout)
	}
}

// newAddCmd creates the 'add' subcommand
func newAddCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "add [list] [text]",
		Short: "Add a task",
		Long:  "Add a task from free text. The service's smart parser may infer a due date or priority from the text (\"Buy milk tomorrow !1\").",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, cfg, stdout)
			if err != nil {
				return err
			}
			defer a.close()

			client, err := a.authedClient()
			if err != nil {
				return err
			}

			var created *rtm.Task
			err = a.track("add", "rtm.tasks.add", func() error {
				lists, err := client.Lists(cmd.Context())
				if err != nil {
					return err
				}
				list, err := resolveList(lists, args[0])
				if err != nil {
					return err
				}
				created, _, err = client.AddTask(cmd.Context(), list.ID, args[1])
				return err
			})
			if err != nil {
				return friendlyError(err)
			}

			if a.jsonOut {
				return writeJSON(stdout, taskToJSON(created))
			}

			_, _ = fmt.Fprintf(stdout, "Added task: %s\n", created.Name)
			if created.Due != nil {
				_, _ = fmt.Fprintf(stdout, "  due: %s\n", created.Due.Format("2006-01-02"))
			}
			if created.Priority != "" && created.Priority != "N" {
				_, _ = fmt.Fprintf(stdout, "  priority: %s\n", created.Priority)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// newCompleteCmd creates the 'complete' subcommand
func newCompleteCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "complete [list] [task]",
		Short: "Mark a task complete",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, cfg, stdout)
			if err != nil {
				return err
			}
			defer a.close()

			client, err := a.authedClient()
			if err != nil {
				return err
			}

			var completed *rtm.Task
			err = a.track("complete", "rtm.tasks.complete", func() error {
				lists, err := client.Lists(cmd.Context())
				if err != nil {
					return err
				}
				list, err := resolveList(lists, args[0])
				if err != nil {
					return err
				}
				// Search without the filter: the target may not be on
				// today's agenda.
				tasks, err := client.Tasks(cmd.Context(), list.ID, "")
				if err != nil {
					return err
				}
				task, err := findTask(tasks, args[1])
				if err != nil {
					return err
				}
				if task.IsComplete() {
					return fmt.Errorf("task '%s' is already complete", task.Name)
				}
				if _, err := client.CompleteTask(cmd.Context(), task.Ref()); err != nil {
					return err
				}
				completed = task
				return nil
			})
			if err != nil {
				return friendlyError(err)
			}

			if a.jsonOut {
				return writeJSON(stdout, taskToJSON(completed))
			}
			_, _ = fmt.Fprintf(stdout, "Completed task: %s\n", completed.Name)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// newAuthCmd creates the 'auth' subcommand
func newAuthCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authenticate with the service",
		Long: "Run the authorization handshake: a browser URL is printed, and after " +
			"you approve access there the obtained credential is stored in the system keyring.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, cfg, stdout)
			if err != nil {
				return err
			}
			defer a.close()

			if promptKeys, _ := cmd.Flags().GetBool("prompt-keys"); promptKeys {
				if err := promptAPIKeys(a.conf, cfg.Stdin, stdout); err != nil {
					return err
				}
			}

			client, err := a.apiClient()
			if err != nil {
				return err
			}

			perms, _ := cmd.Flags().GetString("perms")
			switch perms {
			case rtm.PermRead, rtm.PermWrite, rtm.PermDelete:
			default:
				return fmt.Errorf("invalid perms %q (must be read, write or delete)", perms)
			}

			session := rtm.NewAuthSession(client, perms)
			if err := session.Start(cmd.Context()); err != nil {
				return friendlyError(err)
			}

			_, _ = fmt.Fprintln(stdout, "Open this URL in your browser and authorize access:")
			_, _ = fmt.Fprintln(stdout)
			_, _ = fmt.Fprintf(stdout, "  %s\n", session.URL())
			_, _ = fmt.Fprintln(stdout)
			utils.WaitForEnter("Press Enter once you have authorized... ", cfg.Stdin, stdout)

			cred, err := session.Complete(cmd.Context())
			if err != nil {
				return utils.WrapWithSuggestion(err, "Run 'rtmilk auth' again to restart the handshake")
			}

			if err := a.creds.Store(cred); err != nil {
				return err
			}

			_, _ = fmt.Fprintf(stdout, "Authenticated as %s (%s permissions)\n", cred.User.Username, cred.Perms)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().String("perms", rtm.PermDelete, "Permission level to request (read, write, delete)")
	cmd.Flags().Bool("prompt-keys", false, "Prompt for the API key pair instead of reading config/env")

	cmd.AddCommand(newAuthStatusCmd(stdout, cfg))
	return cmd
}

// promptAPIKeys collects the key pair interactively. The secret is read
// without echo when stdin is a terminal.
func promptAPIKeys(conf *config.Config, stdin io.Reader, stdout io.Writer) error {
	_, _ = fmt.Fprint(stdout, "API key: ")
	key, err := utils.ReadStringWithReader(stdin)
	if err != nil {
		return err
	}
	secret, err := readSecret("API secret: ", stdin, stdout)
	if err != nil {
		return err
	}
	conf.API.Key = key
	conf.API.Secret = secret
	return nil
}

// readSecret reads one line without echo when the reader is a terminal.
func readSecret(prompt string, in io.Reader, out io.Writer) (string, error) {
	_, _ = fmt.Fprint(out, prompt)
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(out)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	return utils.ReadStringWithReader(in)
}

// newAuthStatusCmd creates the 'auth status' subcommand
func newAuthStatusCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the stored credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, cfg, stdout)
			if err != nil {
				return err
			}
			defer a.close()

			status, err := a.creds.GetStatus()
			if err != nil {
				return err
			}

			if a.jsonOut {
				data, err := status.JSON()
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(stdout, string(data))
				return nil
			}

			if !status.Found {
				_, _ = fmt.Fprintln(stdout, "Not authenticated. Run 'rtmilk auth' to connect an account.")
				return nil
			}

			_, _ = fmt.Fprintf(stdout, "User:   %s\n", status.Username)
			_, _ = fmt.Fprintf(stdout, "Perms:  %s\n", status.Perms)
			_, _ = fmt.Fprintf(stdout, "Source: %s\n", status.Source)

			if check, _ := cmd.Flags().GetBool("check"); check {
				client, err := a.apiClient()
				if err != nil {
					return err
				}
				valid, err := client.CheckToken(cmd.Context())
				if err != nil {
					return friendlyError(err)
				}
				if valid {
					_, _ = fmt.Fprintln(stdout, "Token:  valid")
				} else {
					_, _ = fmt.Fprintln(stdout, "Token:  expired or revoked")
				}
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().Bool("check", false, "Validate the token against the service")
	return cmd
}

// newLogoutCmd creates the 'logout' subcommand
func newLogoutCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, cfg, stdout)
			if err != nil {
				return err
			}
			defer a.close()

			if yes, _ := cmd.Flags().GetBool("yes"); !yes {
				if !utils.PromptYesNoWithReader("Remove the stored credential?", cfg.Stdin, stdout) {
					_, _ = fmt.Fprintln(stdout, "Aborted.")
					return nil
				}
			}

			if err := a.creds.Clear(); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(stdout, "Logged out.")
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

// newStatsCmd creates the 'stats' subcommand
func newStatsCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show local usage statistics",
		Long:  "Show per-command usage statistics recorded locally. Nothing ever leaves this machine.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, cfg, stdout)
			if err != nil {
				return err
			}
			defer a.close()

			if a.tracker == nil {
				_, _ = fmt.Fprintln(stdout, "Analytics are disabled.")
				return nil
			}

			if deleted, err := a.tracker.Cleanup(a.conf.GetAnalyticsRetentionDays()); err == nil && deleted > 0 {
				utils.Debugf("purged %d expired analytics events", deleted)
			}

			days, _ := cmd.Flags().GetInt("days")
			stats, err := a.tracker.Summary(days)
			if err != nil {
				return err
			}

			if a.jsonOut {
				return writeJSON(stdout, stats)
			}

			if len(stats) == 0 {
				_, _ = fmt.Fprintf(stdout, "No recorded commands in the last %d days.\n", days)
				return nil
			}

			_, _ = fmt.Fprintf(stdout, "%-12s %8s %8s %10s\n", "COMMAND", "COUNT", "FAILED", "AVG MS")
			for _, s := range stats {
				_, _ = fmt.Fprintf(stdout, "%-12s %8d %8d %10.1f\n", s.Command, s.Count, s.Failures, s.AvgDurationMs)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().Int("days", 30, "Window in days to summarize")
	return cmd
}

// newTUICmd creates the 'tui' subcommand
func newTUICmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Open the interactive terminal interface",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, cfg, stdout)
			if err != nil {
				return err
			}
			defer a.close()

			client, err := a.authedClient()
			if err != nil {
				return err
			}

			// The alternate screen owns the terminal; debug output goes
			// to a session log file instead.
			slog, err := utils.NewSessionLogger()
			if err == nil {
				defer slog.Close()
				slog.Printf("tui session started (version %s)", Version)
			}

			mgr := shutdown.NewManager()
			stopSignals := mgr.HandleSignals()
			defer stopSignals()

			program := tui.NewProgram(client, a.conf.DefaultFilter, a.conf.GetUndoCapacity())

			// Edits to the config file take effect live: a changed
			// default filter is pushed into the running session.
			configPath, _ := cmd.Flags().GetString("config")
			if configPath == "" {
				configPath = cfg.ConfigPath
			}
			if configPath == "" {
				configPath = filepath.Join(config.GetConfigDir(), "config.yaml")
			}
			if w, err := watcher.New(watcher.DefaultConfig(configPath, func() {
				fresh, err := config.LoadFromPath(configPath)
				if err != nil || fresh == nil {
					return
				}
				program.Send(tui.FilterChangedMsg{Filter: fresh.DefaultFilter})
			})); err == nil {
				if err := w.Start(); err == nil {
					mgr.RegisterCleanup("config-watcher", func(context.Context) error {
						w.Stop()
						return nil
					})
				}
			}

			go func() {
				<-mgr.Done()
				program.Quit()
			}()

			_, runErr := program.Run()
			mgr.Shutdown()
			if err := mgr.Wait(context.Background()); err != nil {
				utils.Debugf("shutdown: %v", err)
			}
			return runErr
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// newVersionCmd creates the 'version' subcommand
func newVersionCmd(stdout io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return writeJSON(stdout, map[string]string{
					"version":    Version,
					"commit":     Commit,
					"build_date": BuildDate,
					"go_version": runtime.Version(),
					"platform":   runtime.GOOS + "/" + runtime.GOARCH,
				})
			}

			_, _ = fmt.Fprintf(stdout, "Version: %s\n", Version)
			_, _ = fmt.Fprintf(stdout, "Commit:  %s\n", Commit)
			_, _ = fmt.Fprintf(stdout, "Built:   %s\n", BuildDate)
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				_, _ = fmt.Fprintf(stdout, "Go Version: %s\n", runtime.Version())
				_, _ = fmt.Fprintf(stdout, "Platform:   %s/%s\n", runtime.GOOS, runtime.GOARCH)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	return cmd
}

// JSON output structures
type taskJSON struct {
	ID        string   `json:"id"`
	SeriesID  string   `json:"series_id"`
	ListID    string   `json:"list_id"`
	Name      string   `json:"name"`
	Due       *string  `json:"due,omitempty"`
	Priority  string   `json:"priority,omitempty"`
	Completed *string  `json:"completed,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

func taskToJSON(t *rtm.Task) taskJSON {
	out := taskJSON{
		ID:       t.ID,
		SeriesID: t.SeriesID,
		ListID:   t.ListID,
		Name:     t.Name,
		Tags:     t.Tags,
	}
	if t.Priority != "" && t.Priority != "N" {
		out.Priority = t.Priority
	}
	if t.Due != nil {
		s := t.Due.Format(time.RFC3339)
		out.Due = &s
	}
	if t.Completed != nil {
		s := t.Completed.Format(time.RFC3339)
		out.Completed = &s
	}
	return out
}

func tasksToJSON(tasks []rtm.Task) []taskJSON {
	out := make([]taskJSON, 0, len(tasks))
	for i := range tasks {
		out = append(out, taskToJSON(&tasks[i]))
	}
	return out
}

func writeJSON(stdout io.Writer, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(stdout, string(data))
	return nil
}

// outputErrorJSON outputs error in JSON format
func outputErrorJSON(err error, stdout io.Writer) {
	response := struct {
		Error      string `json:"error"`
		Suggestion string `json:"suggestion,omitempty"`
		Code       int    `json:"code"`
	}{
		Error: err.Error(),
		Code:  1,
	}
	var sugg *utils.ErrorWithSuggestion
	if errors.As(err, &sugg) {
		response.Suggestion = sugg.GetSuggestion()
	}

	data, _ := json.Marshal(response)
	_, _ = fmt.Fprintln(stdout, string(data))
}
