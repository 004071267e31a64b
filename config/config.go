// Copyright 2024 The SurgeScript-Go Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the optional host configuration file (ambient
// stack): GC interval, heap/stack ceilings, plugin search paths and tick
// rate. cmd/ssc applies only the tick rate; the other fields are parsed
// and returned but nothing in the engine reads them, and no command-line
// flag overrides any of them.
package config

import (
	"bufio"
	"errors"
	"os"

	"github.com/naoina/toml"
)

// Config is the on-disk shape of a surgescript.toml host configuration
// file.
type Config struct {
	GC struct {
		IntervalTicks int `toml:"interval_ticks"`
	} `toml:"gc"`
	Heap struct {
		MaxCells int `toml:"max_cells"`
	} `toml:"heap"`
	Stack struct {
		MaxDepth int `toml:"max_depth"`
	} `toml:"stack"`
	Plugins struct {
		SearchPaths []string `toml:"search_paths"`
	} `toml:"plugins"`
	TickHz float64 `toml:"tick_hz"`
}

// Default returns a Config with the runtime's built-in defaults, used when
// no config file is present.
func Default() *Config {
	c := &Config{}
	c.GC.IntervalTicks = 60
	c.Heap.MaxCells = 10 * 1024 * 1024
	c.Stack.MaxDepth = 1 << 20
	return c
}

// Load reads and parses a TOML config file at path, overlaying it onto
// Default(). Errors carrying a line number (toml.LineError) are annotated
// with the file path, the same convention the teacher's CLI config loader
// uses.
func Load(path string) (*Config, error) {
	c := Default()
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := toml.NewDecoder(bufio.NewReader(f)).Decode(c); err != nil {
		if _, ok := err.(*toml.LineError); ok {
			return nil, errors.New(path + ", " + err.Error())
		}
		return nil, err
	}
	return c, nil
}
