package main

import (
	"fmt"

	"github.com/eringen/flathill"
)

func runServe(configPath string) error {
	cfg, err := flathill.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.SessionSecret == "" {
		cfg.SessionSecret = flathill.EnvOr("FLATHILL_SESSION_SECRET", "")
	}
	if cfg.SessionSecret == "" {
		return fmt.Errorf("session_secret is not set (config or FLATHILL_SESSION_SECRET)")
	}

	app := flathill.New(cfg)
	defer app.Close()
	return app.Start()
}
