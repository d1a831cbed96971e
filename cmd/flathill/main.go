package main

import (
	"fmt"
	"log"
	"os"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		configPath := "site.yaml"
		if len(os.Args) > 2 {
			configPath = os.Args[2]
		}
		if err := runServe(configPath); err != nil {
			log.Fatal(err)
		}
	case "new":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: flathill new <project-name>")
			os.Exit(1)
		}
		if err := runNew(os.Args[2]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "version":
		fmt.Printf("flathill %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`flathill - A flat-file content management engine built with Go and Echo

Usage:
  flathill <command> [arguments]

Commands:
  serve [config]    Run a site (default config: site.yaml)
  new <name>        Create a new flathill project
  version           Print the flathill version
  help              Show this help message

Examples:
  flathill serve
  flathill serve site.yaml
  flathill new mysite
  flathill new github.com/user/mysite`)
}
