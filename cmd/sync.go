package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/user/verify/internal/hashing"
	"github.com/user/verify/internal/model"
	"github.com/user/verify/internal/store"
	"github.com/user/verify/internal/trailer"
)

var syncDepth int

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Seed verify.lock from the most recent commit whose trailer matches the current tree",
		Long: `sync walks the most recent commits looking for the first whose Verified
trailer is fully consistent with the current file state. Every matching
entry seeds the local cache with the corresponding config_hash/content_hash
so a subsequent 'run' treats that check as already verified, without
re-executing its command. A cache entry that is already verified is never
overwritten.`,
		RunE: runSync,
	}
	cmd.Flags().IntVar(&syncDepth, "depth", 20, "Number of recent commits to search")
	return cmd
}

func init() {
	rootCmd.AddCommand(newSyncCmd())
}

func runSync(cmd *cobra.Command, args []string) error {
	project, err := loadProject()
	if err != nil {
		return HandleCommandError(err)
	}

	doc, err := store.Load(projectLockPath(project))
	if err != nil {
		return HandleCommandError(err)
	}

	current := make(map[string]struct {
		configHash, contentHash string
		files                   map[string]string
	})
	for _, def := range project.Verifications {
		if model.Classify(def) != model.Tracked {
			continue
		}
		configHash := hashing.ConfigHash(def)
		contentHash, files, err := hashing.ContentHash(project.Root, def.CachePaths, 0)
		if err != nil {
			return HandleCommandError(err)
		}
		current[def.Name] = struct {
			configHash, contentHash string
			files                   map[string]string
		}{configHash, contentHash, files}
	}

	ctx := cmd.Context()
	matched := false
	for i := 0; i < syncDepth; i++ {
		commit := "HEAD~" + strconv.Itoa(i)
		if i == 0 {
			commit = "HEAD"
		}
		value, err := trailer.ReadCommitTrailers(ctx, project.Root, commit)
		if err != nil || value == "" {
			continue
		}
		entries := trailer.ParseValue(value)
		if len(entries) == 0 {
			continue
		}

		consistent := true
		for _, e := range entries {
			cur, ok := current[e.Check]
			if !ok {
				consistent = false
				break
			}
			combined := hashing.Truncate(hashing.CombinedHash(cur.configHash, cur.contentHash), len(e.Hash))
			if combined != e.Hash {
				consistent = false
				break
			}
		}
		if !consistent {
			continue
		}

		seeded := 0
		for _, e := range entries {
			cur := current[e.Check]
			if existing, ok := doc.Checks[e.Check]; ok && existing.ConfigHash == cur.configHash && existing.ContentHash == cur.contentHash {
				continue
			}
			doc.Checks[e.Check] = store.CheckEntry{
				ConfigHash:  cur.configHash,
				ContentHash: cur.contentHash,
				Files:       cur.files,
			}
			seeded++
		}
		if seeded > 0 {
			if err := store.Save(projectLockPath(project), doc); err != nil {
				return HandleCommandError(err)
			}
		}
		fmt.Printf("synced %d check(s) from %s\n", seeded, commit)
		matched = true
		break
	}

	if !matched {
		fmt.Println("no consistent trailer found in recent history")
	}
	return nil
}
