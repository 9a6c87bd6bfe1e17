// Package main generates the flowtask reference documentation from the CLI
// command tree and the configuration model.
//
// Usage:
//
//	go run ./scripts/gendocs -gen=cli -outdir=docs/cli
//	go run ./scripts/gendocs -gen=config -outdir=docs/reference
//	go run ./scripts/gendocs -gen=all
package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"
)

var (
	genFlag    = flag.String("gen", "all", "what to generate: cli, config, all")
	outDirFlag = flag.String("outdir", "", "output directory (defaults based on gen type)")
)

func main() {
	flag.Parse()

	validGenFlags := map[string]bool{"cli": true, "config": true, "all": true}
	if !validGenFlags[*genFlag] {
		log.Fatalf("unknown -gen value: %s (use: cli, config, all)", *genFlag)
	}

	// Find project root (where go.mod is)
	projectRoot, err := findProjectRoot()
	if err != nil {
		log.Fatalf("failed to find project root: %v", err)
	}

	log.Printf("Project root: %s", projectRoot)

	switch *genFlag {
	case "cli":
		outDir := *outDirFlag
		if outDir == "" {
			outDir = filepath.Join(projectRoot, "docs", "cli")
		}
		if err := generateCLIDocs(outDir); err != nil {
			log.Fatalf("failed to generate CLI docs: %v", err)
		}

	case "config":
		outDir := *outDirFlag
		if outDir == "" {
			outDir = filepath.Join(projectRoot, "docs", "reference")
		}
		if err := generateConfigDocs(outDir); err != nil {
			log.Fatalf("failed to generate config docs: %v", err)
		}

	case "all":
		if err := generateCLIDocs(filepath.Join(projectRoot, "docs", "cli")); err != nil {
			log.Fatalf("failed to generate CLI docs: %v", err)
		}
		if err := generateConfigDocs(filepath.Join(projectRoot, "docs", "reference")); err != nil {
			log.Fatalf("failed to generate config docs: %v", err)
		}
	}

	log.Println("Done!")
}

// findProjectRoot walks up from current directory to find go.mod.
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", os.ErrNotExist
		}
		dir = parent
	}
}
