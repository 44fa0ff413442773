package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"video2notes/internal/api"
	"video2notes/internal/config"
)

const defaultEnvFile = ".env"

type commandContext struct {
	configFlag *string
	apiFlag    *string
	envFlag    *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag, apiFlag, envFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		apiFlag:    apiFlag,
		envFlag:    envFlag,
	}
}

// loadEnv reads KEY=value pairs into the environment without overriding
// variables that are already set. A missing default .env is not an error.
func (c *commandContext) loadEnv() error {
	path := defaultEnvFile
	explicit := false
	if c.envFlag != nil && strings.TrimSpace(*c.envFlag) != "" {
		path = strings.TrimSpace(*c.envFlag)
		explicit = true
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

func (c *commandContext) apiAddress() string {
	if c.apiFlag != nil && strings.TrimSpace(*c.apiFlag) != "" {
		return strings.TrimSpace(*c.apiFlag)
	}
	if cfg := c.configValue(); cfg != nil {
		return cfg.Paths.APIBind
	}
	return ""
}

func (c *commandContext) withClient(fn func(*api.Client) error) error {
	token := ""
	if cfg := c.configValue(); cfg != nil {
		token = cfg.Paths.APIToken
	}
	addr := c.apiAddress()
	client, err := api.NewClient(addr, token)
	if err != nil {
		return fmt.Errorf("daemon address %q: %w", addr, err)
	}
	return wrapAPIError(fn(client), addr)
}

func wrapAPIError(err error, addr string) error {
	if err == nil {
		return nil
	}
	if api.IsAPIUnavailable(err) {
		return fmt.Errorf("connect to daemon at %s: not reachable; start it with `video2notes serve`", addr)
	}
	if api.StatusCode(err) == 401 {
		return fmt.Errorf("daemon rejected the request: set paths.api_token (or VIDEO2NOTES_API_TOKEN) to the daemon's token")
	}
	return err
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
