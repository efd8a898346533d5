package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/user/verify/internal/hashing"
	"github.com/user/verify/internal/model"
)

func newHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash",
		Short: "Print each check's config_hash, content_hash, and combined hash",
		Long: `hash recomputes every tracked and untracked check's hashes from the
current working tree, without consulting or modifying verify.lock. It is a
debugging aid for understanding why a check is or isn't stale.`,
		RunE: runHash,
	}
}

func init() {
	rootCmd.AddCommand(newHashCmd())
}

func runHash(cmd *cobra.Command, args []string) error {
	project, err := loadProject()
	if err != nil {
		return HandleCommandError(err)
	}

	for _, def := range project.Verifications {
		class := model.Classify(def)
		if class == model.Aggregate || class == model.SubProject {
			fmt.Printf("%-30s %s\n", def.Name, class.String())
			continue
		}

		configHash := hashing.ConfigHash(def)
		var contentHash string
		if class == model.Tracked {
			contentHash, _, err = hashing.ContentHash(project.Root, def.CachePaths, 0)
			if err != nil {
				return HandleCommandError(err)
			}
		}
		combined := hashing.CombinedHash(configHash, contentHash)
		fmt.Printf("%-30s config=%s content=%s combined=%s\n",
			def.Name,
			hashing.Truncate(configHash, 8),
			hashing.Truncate(contentHash, 8),
			hashing.Truncate(combined, 8))
	}
	return nil
}
