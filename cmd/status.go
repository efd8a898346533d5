package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	verrors "github.com/user/verify/internal/errors"
	"github.com/user/verify/internal/orchestrator"
)

var (
	statusOutputFormat string
	statusVerify       bool
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [name]",
		Short: "Show each check's classification and staleness without running anything",
		Long: `status prints every check's classification and staleness without
running anything. Given a name, only that check is reported. --verify
turns an unverified check into a non-zero exit code, for use as a CI
gate after a prior "verify run".`,
		RunE: runStatus,
	}
	cmd.Flags().StringVarP(&statusOutputFormat, "output", "o", "text", "Output format (text, json)")
	cmd.Flags().BoolVar(&statusVerify, "verify", false, "Exit 1 if any reported check is Unverified")
	return cmd
}

func init() {
	rootCmd.AddCommand(newStatusCmd())
}

func runStatus(cmd *cobra.Command, args []string) error {
	project, err := loadProject()
	if err != nil {
		return HandleCommandError(err)
	}

	orch, err := orchestrator.New(project, orchestrator.Options{})
	if err != nil {
		return HandleCommandError(err)
	}

	results, err := orch.Status(cmd.Context())
	if err != nil {
		return HandleCommandError(err)
	}

	if len(args) > 0 {
		name := args[0]
		filtered := results[:0]
		for _, r := range results {
			if r.Name == name {
				filtered = append(filtered, r)
			}
		}
		if len(filtered) == 0 {
			return HandleCommandError(verrors.NewUnknownCheckError(name))
		}
		results = filtered
	}

	if statusOutputFormat == "json" {
		statuses := make([]orchestrator.Status, 0, len(results))
		for _, r := range results {
			statuses = append(statuses, r.ReportStatus())
		}
		data, err := json.MarshalIndent(statuses, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	} else {
		for _, r := range results {
			state := "verified"
			if !r.Verified {
				state = r.Reason.String()
				if state == "None" {
					state = r.Classification.String()
				}
				if r.StaleDependency != "" {
					state += "=" + r.StaleDependency
				}
			}
			fmt.Printf("%-30s %-14s %s\n", r.Name, r.Classification.String(), state)
		}
	}

	if statusVerify {
		for _, r := range results {
			if r.ReportStatus().Status == "unverified" {
				return verrors.NewCommandFailure("status", 1, false)
			}
		}
	}
	return nil
}
