package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Limbo-corps/LimboDB/internal/engine"
	"github.com/Limbo-corps/LimboDB/internal/repl"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start the interactive REPL",
	Long: `Start the interactive shell: CREATE DATABASE, SHOW DATABASES, USE,
CREATE TABLE, DROP TABLE, INSERT INTO, DELETE FROM, UPDATE, SELECT, and
CREATE INDEX statements, each terminated with a semicolon. "exit" or
"quit" (no semicolon needed) ends the session.`,
	Run: func(cmd *cobra.Command, args []string) {
		runShell()
	},
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

func runShell() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	eng, err := engine.New(cfg.DataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer eng.Close()

	shell := repl.New(eng, os.Stdin, os.Stdout)
	if err := shell.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
