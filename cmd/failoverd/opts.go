package main

import (
	"fmt"
	"strings"
)

var opts struct {
	Members struct {
		Default string `long:"default" env:"DEFAULT" default:"default" description:"alias of the primary slot"`
		Targets string `long:"targets" env:"TARGETS" required:"true" description:"comma-separated alias=host:port list of gRPC health endpoints"`
		Slaves  string `long:"slaves" env:"SLAVES" description:"comma-separated list of slave aliases"`
	} `group:"members" namespace:"members" env-namespace:"MEMBERS"`

	Check struct {
		Async           bool    `long:"async" env:"ASYNC" description:"run the failover checker in background"`
		Interval        float64 `long:"interval" env:"INTERVAL" default:"5" description:"check interval (seconds)"`
		Master          bool    `long:"master" env:"MASTER" description:"check the master as well"`
		Policy          string  `long:"policy" env:"POLICY" default:"liveness" choice:"liveness" choice:"promotion" description:"master failover policy"`
		ProbeTimeout    int     `long:"probe-timeout" env:"PROBE_TIMEOUT" default:"2000" description:"probe timeout (ms)"`
		Concurrency     int     `long:"concurrency" env:"CONCURRENCY" default:"1" description:"number of slaves probed at once"`
		WritableService string  `long:"writable-service" env:"WRITABLE_SERVICE" default:"writable" description:"health service reported by writable members"`
	} `group:"check" namespace:"check" env-namespace:"CHECK"`

	API struct {
		BindAddr string `long:"bind-addr" env:"BIND_ADDR" default:":8080" description:"address to bind the status API"`
	} `group:"api" namespace:"api" env-namespace:"API"`

	Etcd struct {
		Endpoints string `long:"endpoints" env:"ENDPOINTS" description:"comma-separated etcd endpoints, publishing is disabled if empty"`
		Prefix    string `long:"prefix" env:"PREFIX" default:"/replicated" description:"key prefix for the published topology"`
	} `group:"etcd" namespace:"etcd" env-namespace:"ETCD"`

	Verbose bool `long:"verbose" env:"VERBOSE" description:"verbose mode"`
}

func parseList(s string) []string {
	sl := strings.Split(s, ",")
	res := make([]string, 0, len(sl))

	for _, item := range sl {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			res = append(res, trimmed)
		}
	}

	return res
}

// parseTargets parses "alias=addr,alias=addr".
func parseTargets(s string) (map[string]string, error) {
	targets := make(map[string]string)

	for _, item := range parseList(s) {
		alias, addr, ok := strings.Cut(item, "=")
		alias, addr = strings.TrimSpace(alias), strings.TrimSpace(addr)

		if !ok || alias == "" || addr == "" {
			return nil, fmt.Errorf("invalid target %q, expected alias=host:port", item)
		}

		if _, dup := targets[alias]; dup {
			return nil, fmt.Errorf("duplicate target for alias %q", alias)
		}

		targets[alias] = addr
	}

	return targets, nil
}
