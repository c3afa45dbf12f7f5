package main

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/TheMichaelB/credvault/internal/profile"
	"github.com/TheMichaelB/credvault/internal/secure"
	"github.com/TheMichaelB/credvault/internal/vault"
)

var passwordCmd = &cobra.Command{
	Use:   "password",
	Short: "Manage profile passwords",
}

var passwordSetCmd = &cobra.Command{
	Use:   "set <profile>",
	Short: "Set where a profile's password comes from",
	Long: `Set stores the profile password encrypted under the master key, or with
--env points the profile at an environment variable instead.

The master key is read from the variable named by vault.key_env
(CREDVAULT_KEY by default) or prompted for.`,
	Example: `  credvault password set reporting --hint "team 1Password"
  printf '%s' "$PW" | credvault password set reporting --stdin
  credvault password set reporting --env REPORTING_DB_PASSWORD`,
	Args: cobra.ExactArgs(1),
	RunE: runPasswordSet,
}

var passwordMigrateCmd = &cobra.Command{
	Use:   "migrate [<profile>]",
	Short: "Encrypt passwords still stored in plaintext",
	Example: `  credvault password migrate reporting
  credvault password migrate --all`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPasswordMigrate,
}

var passwordCheckCmd = &cobra.Command{
	Use:   "check <profile>",
	Short: "Verify that a profile's password can be resolved",
	Args:  cobra.ExactArgs(1),
	RunE:  runPasswordCheck,
}

var passwordHintCmd = &cobra.Command{
	Use:   "hint <profile>",
	Short: "Show the key hint of an encrypted password",
	Args:  cobra.ExactArgs(1),
	RunE:  runPasswordHint,
}

var (
	setHint    string
	setEnv     string
	setStdin   bool
	migrateAll bool
)

func init() {
	rootCmd.AddCommand(passwordCmd)
	passwordCmd.AddCommand(passwordSetCmd, passwordMigrateCmd, passwordCheckCmd, passwordHintCmd)

	passwordSetCmd.Flags().StringVar(&setHint, "hint", "",
		"Unencrypted reminder of which key was used")
	passwordSetCmd.Flags().StringVar(&setEnv, "env", "",
		"Read the password from this environment variable at connect time")
	passwordSetCmd.Flags().BoolVar(&setStdin, "stdin", false,
		"Read the database password from standard input")

	passwordMigrateCmd.Flags().BoolVar(&migrateAll, "all", false,
		"Migrate every profile")
}

func runPasswordSet(cmd *cobra.Command, args []string) error {
	p, err := store.Get(args[0])
	if err != nil {
		return err
	}

	var src vault.Source
	if setEnv != "" {
		if setHint != "" || setStdin {
			return errors.New("--hint and --stdin apply to encrypted passwords only")
		}
		src = vault.EnvironmentSource{VarName: setEnv}
	} else {
		src, err = encryptNewPassword(p.Name)
		if err != nil {
			return err
		}
	}

	p.Password.Source = src
	if err := store.Save(p); err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"success":  true,
			"profile":  p.Name,
			"password": src.Kind(),
		})
	} else {
		printSuccess("Password for %s set (%s)", p.Name, src.Kind())
	}
	return nil
}

func encryptNewPassword(name string) (vault.Source, error) {
	var password *secure.Buffer
	var err error
	switch {
	case setStdin:
		password, err = readSecretFrom(stdin)
	case term.IsTerminal(int(syscall.Stdin)):
		password, err = promptSecret(fmt.Sprintf("Database password for %s: ", name))
	default:
		return nil, errors.New("no terminal to prompt for the password; use --stdin")
	}
	if err != nil {
		return nil, fmt.Errorf("read password: %w", err)
	}
	defer password.Destroy()

	key, _, err := readKey(true)
	if err != nil {
		return nil, err
	}
	defer key.Destroy()

	return resolver.CreateEncrypted(password, key, setHint)
}

func runPasswordMigrate(cmd *cobra.Command, args []string) error {
	if migrateAll == (len(args) == 1) {
		return errors.New("name one profile or pass --all")
	}

	key, _, err := readKey(true)
	if err != nil {
		return err
	}
	defer key.Destroy()

	migrated, err := profile.MigratePlainText(store, resolver, key, args...)
	if err != nil {
		if len(migrated) > 0 {
			return fmt.Errorf("migrated %v before failing: %w", migrated, err)
		}
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"success":  true,
			"migrated": migrated,
		})
		return nil
	}

	for _, name := range migrated {
		printSuccess("Migrated %s", name)
	}
	if len(migrated) == 0 {
		printInfo("No plaintext passwords found")
	}
	return nil
}

func runPasswordCheck(cmd *cobra.Command, args []string) error {
	p, err := store.Get(args[0])
	if err != nil {
		return err
	}

	src := p.Password.Source
	if src == nil {
		if jsonOutput {
			printJSON(map[string]interface{}{"success": true, "profile": p.Name, "password": "none"})
		} else {
			printInfo("Profile %s has no password", p.Name)
		}
		return nil
	}

	err = withKey(src, func(key *secure.Buffer) error {
		password, err := resolver.Resolve(src, key)
		if err != nil {
			return err
		}
		password.Destroy()
		return nil
	})
	if err != nil {
		return fmt.Errorf("resolve password for %s: %w", p.Name, err)
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"success":  true,
			"profile":  p.Name,
			"password": src.Kind(),
		})
		return nil
	}

	printSuccess("Password for %s resolves (%s)", p.Name, src.Kind())
	if src.Kind() == vault.KindPlainText {
		printWarning("Stored in plaintext; run \"credvault password migrate %s\"", p.Name)
	}
	return nil
}

func runPasswordHint(cmd *cobra.Command, args []string) error {
	p, err := store.Get(args[0])
	if err != nil {
		return err
	}

	hint, ok := vault.GetHint(p.Password.Source)

	if jsonOutput {
		result := map[string]interface{}{"profile": p.Name}
		if ok {
			result["hint"] = hint
		}
		printJSON(result)
		return nil
	}

	if !ok {
		printInfo("Profile %s has no key hint", p.Name)
		return nil
	}
	fmt.Fprintln(stdout, hint)
	return nil
}
