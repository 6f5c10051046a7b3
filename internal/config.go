package internal

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/haatos/cijoe/internal/util"
)

type Configuration struct {
	// Command run in the project directory for every build.
	Runner string `json:"runner"`
	// Branch built when a request names none.
	Branch string `json:"branch"`
	// Queue requests that arrive while a build is running instead of
	// dropping them.
	BuildQueue bool `json:"build_queue"`
	// URL that receives every finished build as JSON.
	NotifyURL string `json:"notify_url"`
	// Cron expression for periodic builds of the default branch.
	BuildSchedule string `json:"build_schedule"`
}

func NewConfiguration() *Configuration {
	return &Configuration{
		Runner: DefaultRunnerCommand,
		Branch: DefaultBranch,
	}
}

// ConfigurationPath keeps the file inside .git so a hard reset of the
// working copy never touches it.
func ConfigurationPath(projectPath string) string {
	return filepath.Join(projectPath, ".git", ConfigFile)
}

// LoadConfiguration reads the project configuration, writing the defaults
// first when the file does not exist yet.
func LoadConfiguration(projectPath string) (*Configuration, error) {
	path := ConfigurationPath(projectPath)
	config := NewConfiguration()

	configFileExists, _ := util.PathExists(path)
	if !configFileExists {
		if err := UpdateConfiguration(path, config); err != nil {
			return nil, err
		}
		return config, nil
	}

	configBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(configBytes, config); err != nil {
		return nil, errors.Join(errors.New("invalid "+path), err)
	}
	return config, nil
}

func UpdateConfiguration(path string, config *Configuration) error {
	b, err := json.MarshalIndent(config, "", "    ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func (c *Configuration) DefaultBranch() string {
	if branch := strings.TrimSpace(c.Branch); branch != "" {
		return branch
	}
	return DefaultBranch
}

func (c *Configuration) RunnerCommand() string {
	if runner := strings.TrimSpace(c.Runner); runner != "" {
		return runner
	}
	return DefaultRunnerCommand
}

func (c *Configuration) QueueingEnabled() bool {
	return c.BuildQueue
}
