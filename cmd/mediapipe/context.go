package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"mediapipe/internal/config"
	"mediapipe/internal/store"
)

// skipConfigLoad marks commands that must run before a valid config exists.
var skipConfigLoad = map[string]string{"skipConfigLoad": "true"}

// commandContext loads the configuration once per invocation, on the first
// command that needs it.
type commandContext struct {
	flag *string

	once sync.Once
	cfg  *config.Config
	err  error
}

func (c *commandContext) configPath() string {
	if c.flag == nil {
		return ""
	}
	return strings.TrimSpace(*c.flag)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.once.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err == nil {
			err = cfg.EnsureDirectories()
		}
		c.cfg, c.err = cfg, err
	})
	if c.err != nil {
		return nil, c.err
	}
	return c.cfg, nil
}

// withStore opens the file database for the duration of fn.
func (c *commandContext) withStore(fn func(*store.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg)
	if err != nil {
		return fmt.Errorf("open file store: %w", err)
	}
	defer st.Close()
	return fn(st)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for ; cmd != nil; cmd = cmd.Parent() {
		if cmd.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
