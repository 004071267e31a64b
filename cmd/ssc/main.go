// Copyright 2024 The SurgeScript-Go Authors
// SPDX-License-Identifier: Apache-2.0

// Command ssc is the command-line front end for the embeddable engine
// package (spec §6 "external interface"): compile a script, launch it, and
// either run it to completion, dump its compiled class set, inspect a live
// object tree, or drop into an interactive console.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/olekukonko/tablewriter"
	"github.com/peterh/liner"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/surgescript-go/surgescript/config"
	"github.com/surgescript-go/surgescript/engine"
	"github.com/surgescript-go/surgescript/internal/xlog"
	"github.com/surgescript-go/surgescript/runtime/object"
)

func main() {
	app := cli.NewApp()
	app.Name = "ssc"
	app.Usage = "compile and run SurgeScript-Go scripts"
	app.Version = "0.1.0"
	app.Commands = []cli.Command{
		runCommand,
		compileCommand,
		inspectCommand,
		consoleCommand,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	configFlag = cli.StringFlag{Name: "config", Usage: "path to a surgescript.toml host config file"}
	rootFlag   = cli.StringFlag{Name: "root", Value: "Application", Usage: "name of the class spawned as the tree root"}
	jsonFlag   = cli.BoolFlag{Name: "json", Usage: "machine-readable JSON output"}
)

// loadConfig reads --config if given, otherwise returns the built-in
// defaults. Of the loaded values only TickHz is passed on to the engine.
func loadConfig(c *cli.Context) (*config.Config, error) {
	if path := c.String("config"); path != "" {
		return config.Load(path)
	}
	return config.Default(), nil
}

func newEngine(c *cli.Context, log *xlog.Logger) (*engine.Engine, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, fmt.Errorf("ssc: loading config: %w", err)
	}
	return engine.New(engine.Options{
		Logger: log,
		Argv:   c.Args().Tail(),
		TickHz: cfg.TickHz,
	}), nil
}

func readSourceFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("ssc: reading %s: %w", path, err)
	}
	return string(data), nil
}

var runCommand = cli.Command{
	Name:      "run",
	Usage:     "compile a script, launch it, and tick until the tree exits",
	ArgsUsage: "<file.ss> [args...]",
	Flags:     []cli.Flag{configFlag, rootFlag},
	Action: func(c *cli.Context) error {
		path := c.Args().First()
		if path == "" {
			return cli.NewExitError("ssc run: missing <file.ss>", 2)
		}
		source, err := readSourceFile(path)
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}

		log := xlog.Default
		e, err := newEngine(c, log)
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		if err := e.Compile(path, source); err != nil {
			return cli.NewExitError(fmt.Sprintf("ssc run: %v", err), 1)
		}
		if err := e.Launch(c.String("root")); err != nil {
			return cli.NewExitError(fmt.Sprintf("ssc run: launching: %v", err), 1)
		}

		root := e.Root()
		for e.Manager.Get(root) != nil {
			e.Update()
		}
		return nil
	},
}

var compileCommand = cli.Command{
	Name:      "compile",
	Usage:     "compile a script and report the declared classes, without launching it",
	ArgsUsage: "<file.ss>",
	Flags:     []cli.Flag{configFlag, jsonFlag},
	Action: func(c *cli.Context) error {
		path := c.Args().First()
		if path == "" {
			return cli.NewExitError("ssc compile: missing <file.ss>", 2)
		}
		source, err := readSourceFile(path)
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}

		log := xlog.Default
		e, err := newEngine(c, log)
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		if err := e.Compile(path, source); err != nil {
			return cli.NewExitError(fmt.Sprintf("ssc compile: %v", err), 1)
		}

		classes := e.Manager.Pool.ClassNames()
		sort.Strings(classes)
		if c.Bool("json") {
			return json.NewEncoder(os.Stdout).Encode(map[string]interface{}{
				"file":    path,
				"classes": classes,
				"plugins": e.Parser.Plugins(),
			})
		}
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"class"})
		for _, class := range classes {
			table.Append([]string{class})
		}
		table.Render()
		return nil
	},
}

var inspectCommand = cli.Command{
	Name:      "inspect",
	Usage:     "compile, launch and dump the live object tree after one tick",
	ArgsUsage: "<file.ss>",
	Flags:     []cli.Flag{configFlag, rootFlag, jsonFlag},
	Action: func(c *cli.Context) error {
		path := c.Args().First()
		if path == "" {
			return cli.NewExitError("ssc inspect: missing <file.ss>", 2)
		}
		source, err := readSourceFile(path)
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}

		log := xlog.Default
		e, err := newEngine(c, log)
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		if err := e.Compile(path, source); err != nil {
			return cli.NewExitError(fmt.Sprintf("ssc inspect: %v", err), 1)
		}
		if err := e.Launch(c.String("root")); err != nil {
			return cli.NewExitError(fmt.Sprintf("ssc inspect: launching: %v", err), 1)
		}
		e.Update()

		rows := describeTree(e.Manager, e.Root(), 0)
		if c.Bool("json") {
			return json.NewEncoder(os.Stdout).Encode(rows)
		}
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"handle", "name", "class", "state", "depth"})
		for _, r := range rows {
			table.Append([]string{
				fmt.Sprintf("%d", r.Handle),
				r.Name, r.Class, r.State,
				fmt.Sprintf("%d", r.Depth),
			})
		}
		table.Render()
		return nil
	},
}

// treeRow is one line of an `inspect` dump: enough of an Object's identity
// to locate it again without exposing VM-internal state.
type treeRow struct {
	Handle uint32 `json:"handle"`
	Name   string `json:"name"`
	Class  string `json:"class"`
	State  string `json:"state"`
	Depth  int    `json:"depth"`
}

func describeTree(m *object.Manager, handle object.Handle, depth int) []treeRow {
	o := m.Get(handle)
	if o == nil {
		return nil
	}
	rows := []treeRow{{Handle: o.Handle(), Name: o.Name(), Class: o.ClassName(), State: o.State(), Depth: depth}}
	for _, c := range o.Children() {
		rows = append(rows, describeTree(m, c, depth+1)...)
	}
	return rows
}

var consoleCommand = cli.Command{
	Name:  "console",
	Usage: "interactive REPL: each line is compiled as a one-off object and spawned under the root",
	Flags: []cli.Flag{configFlag},
	Action: func(c *cli.Context) error {
		log := xlog.Default
		e, err := newEngine(c, log)
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		if err := e.Launch("Application"); err != nil {
			return cli.NewExitError(fmt.Sprintf("ssc console: launching: %v", err), 1)
		}

		line := liner.NewLiner()
		defer line.Close()
		line.SetCtrlCAborts(true)

		fmt.Println("ssc console — enter one or more statements per line, Ctrl-D to quit")
		n := 0
		for {
			input, err := line.Prompt("ssc> ")
			if err != nil {
				break
			}
			line.AppendHistory(input)
			n++
			className := fmt.Sprintf("__console_%d", n)
			source := wrapConsoleSnippet(className, input)
			if err := e.Compile("<console>", source); err != nil {
				fmt.Fprintln(os.Stderr, err)
				continue
			}
			if _, err := e.Spawn(className, e.Root(), className); err != nil {
				fmt.Fprintln(os.Stderr, err)
				continue
			}
			e.Update()
		}
		return nil
	},
}

// wrapConsoleSnippet turns a bare statement into a throwaway object whose
// main state runs it once and destroys itself, so the REPL's single-line
// mental model ("type an expression, see its effect") doesn't require the
// user to write the surrounding object/state boilerplate every time.
func wrapConsoleSnippet(className, body string) string {
	return fmt.Sprintf("object %q { state \"main\" { %s destroy(); } }", className, body)
}
