package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/user/verify/internal/orchestrator"
)

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean [name]",
		Short: "Discard verify.lock, or one check's entry, so it is treated as never run",
		Long: `clean discards the cached verification state. With no argument it
replaces the whole verify.lock document. Given a name, it removes just
that check's entry, leaving every other check's proof intact.`,
		RunE: runClean,
	}
}

func init() {
	rootCmd.AddCommand(newCleanCmd())
}

func runClean(cmd *cobra.Command, args []string) error {
	project, err := loadProject()
	if err != nil {
		return HandleCommandError(err)
	}

	orch, err := orchestrator.New(project, orchestrator.Options{})
	if err != nil {
		return HandleCommandError(err)
	}

	var name string
	if len(args) > 0 {
		name = args[0]
	}

	if err := orch.Clean(name); err != nil {
		return HandleCommandError(err)
	}
	if name == "" {
		fmt.Println("verify.lock cleared")
	} else {
		fmt.Printf("%s cleared\n", name)
	}
	return nil
}
