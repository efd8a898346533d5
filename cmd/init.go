package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	verrors "github.com/user/verify/internal/errors"
	"github.com/user/verify/internal/model"
)

const gitattributesLine = "verify.lock merge=ours\n"

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Scaffold a verify.yaml and .gitattributes for this project",
		Long: `init writes a starter verify.yaml (with a couple of example checks) if
one does not already exist, and ensures .gitattributes marks verify.lock
as merge=ours so concurrent branches don't fight over cache entries during
a git merge. Safe to run more than once: it never overwrites an existing
verify.yaml.`,
		RunE: runInit,
	}
}

func init() {
	rootCmd.AddCommand(newInitCmd())
}

func runInit(cmd *cobra.Command, args []string) error {
	dir, err := filepath.Abs(repoPath)
	if err != nil {
		return HandleCommandError(verrors.NewIOError(repoPath, err))
	}

	configPath := filepath.Join(dir, "verify.yaml")
	wroteConfig := false
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := writeStarterConfig(configPath); err != nil {
			return HandleCommandError(err)
		}
		wroteConfig = true
		fmt.Printf("wrote %s\n", configPath)
	} else {
		fmt.Printf("%s already exists, leaving it untouched\n", configPath)
	}

	if err := ensureGitattributes(dir); err != nil {
		return HandleCommandError(err)
	}

	if wroteConfig {
		fmt.Printf("run `verify run` to execute the example checks, or edit %s first\n", configPath)
	}
	return nil
}

func writeStarterConfig(path string) error {
	lintCmd := `echo "replace me with a real lint command"`
	testCmd := `echo "replace me with a real test command"`

	starter := struct {
		Verifications []model.CheckDef `yaml:"verifications"`
	}{
		Verifications: []model.CheckDef{
			{Name: "lint", Command: &lintCmd, CachePaths: []string{"**/*.go"}},
			{Name: "test", Command: &testCmd, CachePaths: []string{"**/*.go"}, DependsOn: []string{"lint"}},
			{Name: "ci", DependsOn: []string{"lint", "test"}},
		},
	}

	data, err := yaml.Marshal(starter)
	if err != nil {
		return verrors.NewIOError(path, err)
	}

	header := "# verifications declares the checks verify tracks. Replace the examples\n" +
		"# below with your project's real checks.\n"
	if err := os.WriteFile(path, []byte(header+string(data)), 0o644); err != nil {
		return verrors.NewIOError(path, err)
	}
	return nil
}

func ensureGitattributes(dir string) error {
	path := filepath.Join(dir, ".gitattributes")
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return verrors.NewIOError(path, err)
	}
	if err == nil && containsLine(string(data), gitattributesLine) {
		return nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return verrors.NewIOError(path, err)
	}
	defer f.Close()

	if len(data) > 0 && data[len(data)-1] != '\n' {
		if _, err := f.WriteString("\n"); err != nil {
			return verrors.NewIOError(path, err)
		}
	}
	if _, err := f.WriteString(gitattributesLine); err != nil {
		return verrors.NewIOError(path, err)
	}
	fmt.Printf("ensured %s marks verify.lock as merge=ours\n", path)
	return nil
}

func containsLine(content, line string) bool {
	target := strings.TrimRight(line, "\r\n")
	for _, l := range strings.Split(content, "\n") {
		if strings.TrimRight(l, "\r") == target {
			return true
		}
	}
	return false
}
