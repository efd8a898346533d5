package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	verrors "github.com/user/verify/internal/errors"
	"github.com/user/verify/internal/hashing"
	"github.com/user/verify/internal/model"
	"github.com/user/verify/internal/store"
	"github.com/user/verify/internal/trailer"
)

var checkCommit string

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [name]",
		Args:  cobra.MaximumNArgs(1),
		Short: "Verify that a commit's Verified trailer matches the current lock state",
		Long: `check reads the Verified trailer from a commit (HEAD by default) and
compares it against verify.lock's currently recorded hashes for every
tracked check. It never runs a check's command; it only compares hashes,
making it cheap enough to run on every CI job as a pre-check gate. Pass a
check name to narrow the comparison to that one entry.`,
		RunE: runCheckTrailer,
	}
	cmd.Flags().StringVar(&checkCommit, "commit", "HEAD", "Commit to read the Verified trailer from")
	return cmd
}

func init() {
	rootCmd.AddCommand(newCheckCmd())
}

func runCheckTrailer(cmd *cobra.Command, args []string) error {
	project, err := loadProject()
	if err != nil {
		return HandleCommandError(err)
	}

	doc, err := store.Load(projectLockPath(project))
	if err != nil {
		return HandleCommandError(err)
	}

	value, err := trailer.ReadCommitTrailers(cmd.Context(), project.Root, checkCommit)
	if err != nil {
		return HandleCommandError(err)
	}
	actual := trailer.ParseValue(value)

	var narrow string
	if len(args) == 1 {
		narrow = args[0]
	}

	var expected []trailer.Entry
	for _, def := range project.Verifications {
		if model.Classify(def) != model.Tracked {
			continue
		}
		if narrow != "" && def.Name != narrow {
			continue
		}
		entry, ok := doc.Checks[def.Name]
		if !ok {
			continue
		}
		combined := hashing.CombinedHash(entry.ConfigHash, entry.ContentHash)
		expected = append(expected, trailer.Entry{Check: def.Name, Hash: hashing.Truncate(combined, 8)})
	}

	diffs := trailer.Diff(expected, actual)
	if len(diffs) > 0 {
		for check, reason := range diffs {
			fmt.Printf("%-30s %s\n", check, reason)
		}
		return HandleCommandError(verrors.NewTrailerMismatch(diffs))
	}

	fmt.Println("trailer matches verify.lock")
	return nil
}
