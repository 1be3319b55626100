package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gaurav-prasanna/easyread/prefs"
)

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Show or change stored preferences",
	Long: `Preferences are the defaults for every rewrite: ` + strings.Join(prefs.Keys, ", ") + `.

Examples:
  easyread prefs set cognitiveMode techExplainer
  easyread prefs set simplificationLevel 2
  easyread prefs set apiKey sk-...
  easyread prefs list`,
}

var prefsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Store a preference",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openPrefs(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Set(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "✓ %s = %s\n", args[0], display(args[0], args[1]))
		return nil
	},
}

var prefsGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one preference",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openPrefs(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()
		v, ok, err := store.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintf(os.Stderr, "%s is not set\n", args[0])
			return nil
		}
		fmt.Fprintln(os.Stdout, display(args[0], v))
		return nil
	},
}

var prefsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print every stored preference",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, err := openPrefs(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()
		all, err := store.All(cmd.Context())
		if err != nil {
			return err
		}
		keys := make([]string, 0, len(all))
		for k := range all {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(os.Stdout, "%s = %s\n", k, display(k, all[k]))
		}
		return nil
	},
}

var prefsUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a stored preference",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openPrefs(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "✓ %s unset\n", args[0])
		return nil
	},
}

func init() {
	prefsCmd.AddCommand(prefsSetCmd, prefsGetCmd, prefsListCmd, prefsUnsetCmd)
	rootCmd.AddCommand(prefsCmd)
}

// display masks the API key.
func display(key, value string) string {
	if key != prefs.KeyAPIKey {
		return value
	}
	if len(value) <= 8 {
		return strings.Repeat("*", len(value))
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}
