package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

// NameCompletion completes the first argument from the names load returns.
// Load errors just mean no suggestions.
func NameCompletion(load func() ([]string, error)) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		names, err := load()
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		return MatchPrefix(names, toComplete), cobra.ShellCompDirectiveNoFileComp
	}
}

// MatchPrefix returns the names starting with prefix, ignoring case
func MatchPrefix(names []string, prefix string) []string {
	var out []string
	prefix = strings.ToLower(prefix)
	for _, name := range names {
		if strings.HasPrefix(strings.ToLower(name), prefix) {
			out = append(out, name)
		}
	}
	return out
}
