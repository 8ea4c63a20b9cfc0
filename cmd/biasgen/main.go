// biasgen expands a hand-authored cross-species modifier list into the full
// ordered-pair table and prints it as JSON. Same-species pairs get the fixed
// self modifier, unauthored cross pairs get 0.
//
// Usage:
//
//	biasgen -in cross.json > table.json
//	biasgen -default > table.json
package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"

	"rapport-lite/relation"
)

func main() {
	inPath := flag.String("in", "", "path to a JSON array of cross-species bias entries")
	useDefault := flag.Bool("default", false, "expand the built-in cross-species table")
	indent := flag.Bool("indent", true, "pretty-print the output")
	flag.Parse()

	var cross []relation.BiasEntry
	switch {
	case *useDefault:
		cross = relation.DefaultBiasEntries
	case *inPath != "":
		raw, err := os.ReadFile(*inPath)
		if err != nil {
			log.Fatalf("[biasgen] read %s: %v", *inPath, err)
		}
		if err := json.Unmarshal(raw, &cross); err != nil {
			log.Fatalf("[biasgen] parse %s: %v", *inPath, err)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}

	table := relation.GenerateTable(cross)

	enc := json.NewEncoder(os.Stdout)
	if *indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(table); err != nil {
		log.Fatalf("[biasgen] encode: %v", err)
	}
}
