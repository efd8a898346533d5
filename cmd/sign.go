package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	verrors "github.com/user/verify/internal/errors"
	"github.com/user/verify/internal/hashing"
	"github.com/user/verify/internal/model"
	"github.com/user/verify/internal/orchestrator"
	"github.com/user/verify/internal/store"
	"github.com/user/verify/internal/trailer"
)

// projectLockPath is the verify.lock path for a loaded project.
func projectLockPath(project *model.Project) string {
	return filepath.Join(project.Root, orchestrator.LockFileName)
}

func newSignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sign",
		Short: "Write a Verified trailer on HEAD for every currently verified check",
		Long: `sign amends HEAD's commit message with a Verified trailer recording the
combined hash (config_hash || content_hash) of every check verify.lock
currently considers verified. This lets CI trust the commit instead of
re-running every check, via 'verify check'.`,
		RunE: runSign,
	}
}

func init() {
	rootCmd.AddCommand(newSignCmd())
}

func runSign(cmd *cobra.Command, args []string) error {
	project, err := loadProject()
	if err != nil {
		return HandleCommandError(err)
	}

	doc, err := store.Load(projectLockPath(project))
	if err != nil {
		return HandleCommandError(err)
	}

	var entries []trailer.Entry
	for _, def := range project.Verifications {
		if model.Classify(def) != model.Tracked {
			continue
		}
		entry, ok := doc.Checks[def.Name]
		if !ok || entry.ContentHash == "" {
			continue
		}
		combined := hashing.CombinedHash(entry.ConfigHash, entry.ContentHash)
		entries = append(entries, trailer.Entry{Check: def.Name, Hash: hashing.Truncate(combined, 8)})
	}

	if len(entries) == 0 {
		return HandleCommandError(verrors.NewConfigError("no verified tracked checks to sign"))
	}

	value := trailer.FormatValue(entries)
	if err := trailer.AppendTrailer(cmd.Context(), project.Root, value); err != nil {
		return HandleCommandError(err)
	}
	fmt.Printf("Verified: %s\n", value)
	return nil
}
