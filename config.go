package main

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

//Config represents options given in the environment
type Config struct {
	ConversationDuration int //in hours; default: 24
	CacheMaxBytes        int //LRU conversation store size when no SQL database is configured; default: 10MB

	SQLDriver string //optional; "mysql" stores conversations in the database
	SQLDSN    string //required if SQLDriver is set

	AIEndpoint string //upstream chat completions URL; required
	AIModel    string //default: google/gemini-2.5-flash
	AIAPIKey   string //required

	AccessKeyHash string //bcrypt hash of the key clients must send; empty disables auth
	DisplayName   string //user name added as context to conversations

	ListenAddr string //addr format used for net.Dial; required
	Prefix     string //url prefix to mount api to without trailing slash

	Debug bool //development logging
}

func checkEmpty(val, name string) error {
	if val == "" {
		return fmt.Errorf("SUREASSIST_%s must be configured", name)
	}
	return nil
}

func loadConfig() (*Config, error) {
	config := new(Config)
	if err := envconfig.Process("SUREASSIST", config); err != nil {
		return nil, fmt.Errorf("Error reading configuration from environment: %w", err)
	}

	if config.ConversationDuration == 0 {
		config.ConversationDuration = 24
	}
	if config.CacheMaxBytes == 0 {
		config.CacheMaxBytes = 10 * 1024 * 1024
	}
	if config.AIModel == "" {
		config.AIModel = "google/gemini-2.5-flash"
	}

	if config.SQLDriver != "" {
		if err := checkEmpty(config.SQLDSN, "SQLDSN"); err != nil {
			return nil, err
		}
		if config.SQLDriver != "mysql" {
			return nil, fmt.Errorf("unsupported SQL driver %q", config.SQLDriver)
		}
		if !strings.Contains(config.SQLDSN, "parseTime=true") {
			return nil, fmt.Errorf("mysql DSN must contain \"parseTime=true\"")
		}
	}

	for name, val := range map[string]string{
		"AIENDPOINT": config.AIEndpoint,
		"AIAPIKEY":   config.AIAPIKey,
		"LISTENADDR": config.ListenAddr,
	} {
		if err := checkEmpty(val, name); err != nil {
			return nil, err
		}
	}

	return config, nil
}
