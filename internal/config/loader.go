// Package config loads a project's verify.yaml, layering it over a global
// user config and CLI overrides the same way the teacher's
// internal/config/loader.go layers .ai/config.yaml over ~/.gendocs.yaml,
// generalised from an LLM-agent section config to the verify.yaml
// check-list schema (model.Project). Uses viper for file discovery and
// layering, godotenv to pick up a local .env, and mapstructure to decode
// the merged map into typed structs.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	verrors "github.com/user/verify/internal/errors"
	"github.com/user/verify/internal/model"
)

// FileName is the expected project configuration file name.
const FileName = "verify.yaml"

// GlobalFileName is the per-user override file, read from the home
// directory the way the teacher reads ~/.gendocs.yaml.
const GlobalFileName = ".verifyrc.yaml"

// Loader resolves a verify.yaml into a model.Project, applying the
// precedence order CLI overrides > verify.yaml > ~/.verifyrc.yaml >
// built-in defaults (spec.md's config section, expanded with the
// teacher's layering approach).
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a configuration loader. It loads a .env file from the
// current directory if present, the same best-effort godotenv.Load() the
// teacher's loader performs.
func NewLoader() *Loader {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvPrefix("VERIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return &Loader{v: v}
}

// Load reads verify.yaml from dir itself (Discover is what walks up to an
// ancestor directory to find it), merges ~/.verifyrc.yaml as a base
// layer, applies cliOverrides, and decodes the result into a model.Project
// whose Root is set to dir.
func (l *Loader) Load(dir string, cliOverrides map[string]interface{}) (*model.Project, error) {
	if err := l.loadGlobal(); err != nil {
		return nil, err
	}

	configPath := filepath.Join(dir, FileName)
	if _, err := os.Stat(configPath); err != nil {
		return nil, verrors.NewConfigFileError(configPath, err)
	}
	l.v.SetConfigFile(configPath)
	if err := l.v.MergeInConfig(); err != nil {
		return nil, verrors.NewConfigFileError(configPath, err)
	}

	for key, value := range cliOverrides {
		if value != nil {
			l.v.Set(key, value)
		}
	}

	var raw struct {
		Verifications []model.CheckDef `mapstructure:"verifications"`
	}
	decoderConfig := &mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &raw,
		TagName:          "mapstructure",
		DecodeHook:       metricPatternHook,
	}
	decoder, err := mapstructure.NewDecoder(decoderConfig)
	if err != nil {
		return nil, fmt.Errorf("build config decoder: %w", err)
	}
	if err := decoder.Decode(l.v.AllSettings()); err != nil {
		return nil, verrors.NewConfigFileError(configPath, err)
	}

	project := &model.Project{Verifications: raw.Verifications, Root: dir}
	for _, def := range project.Verifications {
		if err := def.Validate(); err != nil {
			return nil, verrors.NewConfigError(fmt.Sprintf("%s: %v", configPath, err))
		}
	}
	return project, nil
}

// metricPatternHook bridges viper's generic YAML-decoded values (a bare
// string or a two-element slice) into model.MetricPattern by reusing its
// own UnmarshalJSON, since mapstructure has no notion of the scalar-or-pair
// union a metadata entry can take and would otherwise fail to decode it
// straight into a struct.
func metricPatternHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != reflect.TypeOf(model.MetricPattern{}) {
		return data, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("re-marshal metadata pattern: %w", err)
	}
	var pattern model.MetricPattern
	if err := pattern.UnmarshalJSON(raw); err != nil {
		return nil, fmt.Errorf("decode metadata pattern: %w", err)
	}
	return pattern, nil
}

func (l *Loader) loadGlobal() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	path := filepath.Join(home, GlobalFileName)
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	l.v.SetConfigFile(path)
	if err := l.v.MergeInConfig(); err != nil {
		return verrors.NewConfigFileError(path, err)
	}
	return nil
}

// Discover walks upward from startDir looking for verify.yaml, mirroring
// how git locates the repository root from any working subdirectory. It
// returns the directory containing the first verify.yaml found.
func Discover(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, FileName)); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", verrors.NewConfigError(fmt.Sprintf("no %s found in %s or any parent directory", FileName, startDir))
		}
		dir = parent
	}
}
