package main

import (
	"fmt"
	"os"

	"github.com/serabi/poiscout/internal/tui"
)

var version = "dev"

func main() {
	if len(os.Args) > 1 && os.Args[0] != "" {
		switch os.Args[1] {
		case "crawl":
			if err := runCrawl(os.Args[2:]); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(1)
			}
			return
		case "export":
			if err := runExport(os.Args[2:]); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(1)
			}
			return
		case "serve":
			if err := runServe(os.Args[2:]); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(1)
			}
			return
		case "version":
			fmt.Println("poiscout " + version)
			return
		case "help", "--help", "-h":
			printUsage()
			return
		}
	}

	// No subcommand → launch TUI
	if err := tui.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `poiscout - adaptive Google Places POI crawler

Usage:
  poiscout                Launch interactive TUI
  poiscout crawl [flags]  Run headless crawl
  poiscout export [flags] Export .db to CSV
  poiscout serve [flags]  Run the HTTP control API
  poiscout version        Show version

Run 'poiscout crawl --help', 'poiscout export --help' or 'poiscout serve --help' for flags.
`)
}
