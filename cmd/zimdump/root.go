package main

import (
	"strings"

	"github.com/spf13/cobra"
)

// dumpOptions collects the flags a single invocation was run with. Unlike
// the reference implementation's package-global MODE/mime-whitelist
// state, every run builds one of these from cobra's flag values and
// threads it explicitly through runDump — two calls never share mutable
// state.
type dumpOptions struct {
	zimPath       string
	url           string
	showContent   bool
	mimeTypesOnly bool
	mimeWhitelist []string
}

var defaultMimeWhitelist = []string{"text/plain", "text/html"}

func newRootCmd() *cobra.Command {
	var (
		showContent   bool
		mimeTypesOnly bool
		whitelistCSV  string
	)

	cmd := &cobra.Command{
		Use:   "zimdump <zimfile> [url]",
		Short: "Dump a ZIM archive's articles, mime-types, or a single article's content",
		Long: `zimdump parses a ZIM archive and prints its articles' urls and titles
on stdout.

If -a is given, it also prints the content of each article whose
mime-type is on the whitelist (by default text/plain and text/html).
Pass -t with a comma-separated list to change the whitelist.

If -m is given, it instead prints the archive's mime-type table and
ignores every other flag.

If url is given, it instead prints the content of the single article at
that url and ignores -a and -t.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := dumpOptions{
				zimPath:       args[0],
				showContent:   showContent,
				mimeTypesOnly: mimeTypesOnly,
				mimeWhitelist: defaultMimeWhitelist,
			}
			if len(args) == 2 {
				opts.url = args[1]
			}
			if whitelistCSV != "" {
				opts.mimeWhitelist = strings.Split(whitelistCSV, ",")
				opts.showContent = true
			}
			return runDump(cmd, opts)
		},
	}

	cmd.Flags().BoolVarP(&showContent, "all", "a", false, "also print whitelisted articles' content")
	cmd.Flags().BoolVarP(&mimeTypesOnly, "mime-types", "m", false, "print the mime-type table and exit")
	cmd.Flags().StringVarP(&whitelistCSV, "whitelist", "t", "", "comma-separated mime-type whitelist (implies -a)")

	return cmd
}

// Execute builds and runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}
