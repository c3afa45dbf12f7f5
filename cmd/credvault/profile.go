package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/credvault/internal/events"
	"github.com/TheMichaelB/credvault/internal/profile"
	"github.com/TheMichaelB/credvault/internal/vault"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage connection profiles",
}

var profileAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create or update a connection profile",
	Long: `Add stores the connection details of a database. Updating an existing
profile changes only the flags given. Set its password afterwards with
"credvault password set".`,
	Example: `  credvault profile add reporting --driver postgres --host db.internal --user app --database analytics
  credvault profile add local --driver sqlite --host ./local.db`,
	Args: cobra.ExactArgs(1),
	RunE: runProfileAdd,
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List connection profiles",
	Args:  cobra.NoArgs,
	RunE:  runProfileList,
}

var profileShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a connection profile without its password",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfileShow,
}

var profileDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a connection profile",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfileDelete,
}

var (
	addDriver   string
	addHost     string
	addPort     int
	addUser     string
	addDatabase string
	addSSLMode  string
)

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.AddCommand(profileAddCmd, profileListCmd, profileShowCmd, profileDeleteCmd)

	profileAddCmd.Flags().StringVar(&addDriver, "driver", "",
		"Database driver: postgres, mysql, sqlite (required for new profiles)")
	profileAddCmd.Flags().StringVar(&addHost, "host", "",
		"Server host, or database file for sqlite")
	profileAddCmd.Flags().IntVar(&addPort, "port", 0,
		"Server port (driver default if omitted)")
	profileAddCmd.Flags().StringVarP(&addUser, "user", "u", "",
		"Database user")
	profileAddCmd.Flags().StringVarP(&addDatabase, "database", "d", "",
		"Database name")
	profileAddCmd.Flags().StringVar(&addSSLMode, "sslmode", "",
		"TLS mode (postgres sslmode; require enables TLS for mysql)")
}

func runProfileAdd(cmd *cobra.Command, args []string) error {
	name := args[0]

	p, err := store.Get(name)
	switch {
	case errors.Is(err, profile.ErrProfileNotFound):
		p = &profile.Profile{Name: name}
	case err != nil:
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("driver") {
		p.Driver = profile.Driver(addDriver)
	}
	if flags.Changed("host") {
		p.Host = addHost
	}
	if flags.Changed("port") {
		p.Port = addPort
	}
	if flags.Changed("user") {
		p.Username = addUser
	}
	if flags.Changed("database") {
		p.Database = addDatabase
	}
	if flags.Changed("sslmode") {
		p.SSLMode = addSSLMode
	}

	if err := store.Save(p); err != nil {
		if errors.Is(err, vault.ErrPlainTextWrite) {
			return fmt.Errorf("%w; run \"credvault password migrate %s\" first", err, name)
		}
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"success": true,
			"profile": p.Name,
			"id":      p.ID,
		})
	} else {
		printSuccess("Saved profile %s", p.Name)
	}
	return nil
}

// profileSummary describes a profile without secret material.
type profileSummary struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Driver   profile.Driver `json:"driver"`
	Host     string         `json:"host,omitempty"`
	Port     int            `json:"port,omitempty"`
	Username string         `json:"username,omitempty"`
	Database string         `json:"database,omitempty"`
	SSLMode  string         `json:"ssl_mode,omitempty"`
	Password string         `json:"password"`
	EnvVar   string         `json:"env_var,omitempty"`
	Hint     string         `json:"hint,omitempty"`
	Created  string         `json:"created_at"`
	Updated  string         `json:"updated_at"`
}

func summarize(p *profile.Profile) profileSummary {
	s := profileSummary{
		ID:       p.ID,
		Name:     p.Name,
		Driver:   p.Driver,
		Host:     p.Host,
		Port:     p.Port,
		Username: p.Username,
		Database: p.Database,
		SSLMode:  p.SSLMode,
		Password: "none",
		Created:  p.CreatedAt.Format("2006-01-02 15:04:05"),
		Updated:  p.UpdatedAt.Format("2006-01-02 15:04:05"),
	}

	if src := p.Password.Source; src != nil {
		s.Password = string(src.Kind())
		if env, ok := src.(vault.EnvironmentSource); ok {
			s.EnvVar = env.VarName
		}
		s.Hint, _ = vault.GetHint(src)
	}
	return s
}

func runProfileList(cmd *cobra.Command, args []string) error {
	names, err := store.List()
	if err != nil {
		return err
	}

	summaries := make([]profileSummary, 0, len(names))
	for _, name := range names {
		p, err := store.Get(name)
		if err != nil {
			events.FromContext(cmd.Context()).WithError(err).WithField("profile", name).Warn("Skipping unreadable profile")
			continue
		}
		summaries = append(summaries, summarize(p))
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"profiles": summaries,
		})
		return nil
	}

	if len(summaries) == 0 {
		printInfo("No profiles. Create one with \"credvault profile add\".")
		return nil
	}

	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDRIVER\tHOST\tDATABASE\tPASSWORD")
	for _, s := range summaries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.Name, s.Driver, s.Host, s.Database, s.Password)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	for _, s := range summaries {
		if s.Password == string(vault.KindPlainText) {
			printWarning("Profile %s stores its password in plaintext; run \"credvault password migrate %s\"", s.Name, s.Name)
		}
	}
	return nil
}

func runProfileShow(cmd *cobra.Command, args []string) error {
	p, err := store.Get(args[0])
	if err != nil {
		return err
	}
	s := summarize(p)

	if jsonOutput {
		printJSON(s)
		return nil
	}

	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Name:\t%s\n", s.Name)
	fmt.Fprintf(w, "ID:\t%s\n", s.ID)
	fmt.Fprintf(w, "Driver:\t%s\n", s.Driver)
	fmt.Fprintf(w, "Host:\t%s\n", s.Host)
	if s.Port != 0 {
		fmt.Fprintf(w, "Port:\t%d\n", s.Port)
	}
	if s.Username != "" {
		fmt.Fprintf(w, "User:\t%s\n", s.Username)
	}
	if s.Database != "" {
		fmt.Fprintf(w, "Database:\t%s\n", s.Database)
	}
	if s.SSLMode != "" {
		fmt.Fprintf(w, "SSL mode:\t%s\n", s.SSLMode)
	}
	fmt.Fprintf(w, "Password:\t%s\n", s.Password)
	if s.EnvVar != "" {
		fmt.Fprintf(w, "Variable:\t%s\n", s.EnvVar)
	}
	if s.Hint != "" {
		fmt.Fprintf(w, "Hint:\t%s\n", s.Hint)
	}
	fmt.Fprintf(w, "Updated:\t%s\n", s.Updated)
	return w.Flush()
}

func runProfileDelete(cmd *cobra.Command, args []string) error {
	name := args[0]
	if err := store.Delete(name); err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"success": true,
			"profile": name,
		})
	} else {
		printSuccess("Deleted profile %s", name)
	}
	return nil
}
