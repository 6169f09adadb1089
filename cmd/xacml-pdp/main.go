package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oarkflow/squealx"
	_ "modernc.org/sqlite"

	"github.com/oarkflow/xacml"
	"github.com/oarkflow/xacml/stores"
)

// Exit codes: 0 decisions processed, 1 configuration error, 2 invalid
// request, 3 internal error.
const (
	exitOK = iota
	exitConfigError
	exitInvalidRequest
	exitInternalError
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitConfigError)
	}

	switch os.Args[1] {
	case "evaluate":
		os.Exit(handleEvaluate())
	case "validate":
		os.Exit(handleValidate())
	case "stats":
		os.Exit(handleStats())
	case "apply":
		os.Exit(handleApply())
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(exitConfigError)
	}
}

func printUsage() {
	fmt.Println("xacml-pdp - XACML 3.0 policy decision point")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  xacml-pdp evaluate <config.(yaml|json)> <policies.json> <request.json>")
	fmt.Println("  xacml-pdp validate <config.(yaml|json)> [policies.json]")
	fmt.Println("  xacml-pdp stats <policies.json>")
	fmt.Println("  xacml-pdp apply <sqlite.db> <policies.json>")
}

func loadConfig(path string) (*xacml.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	loader := xacml.NewConfigLoader()
	if strings.HasSuffix(filepath.Ext(path), "json") {
		return loader.LoadJSON(data)
	}
	return loader.LoadYAML(data)
}

// loadPolicies reads a JSON array of policy definitions and decodes them
// into a static provider.
func loadPolicies(path string) (xacml.PolicyProvider, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}
	var defs []xacml.PolicyDef
	if err := json.Unmarshal(data, &defs); err != nil {
		return nil, 0, err
	}
	static := xacml.NewStaticPolicyProvider()
	decoder := xacml.NewPolicyDefDecoder(xacml.StandardFunctionRegistry(), xacml.StandardCombiningRegistry(), static)
	for i := range defs {
		elem, derr := decoder.Decode(&defs[i])
		if derr != nil {
			return nil, 0, derr
		}
		static.Add(elem)
	}
	return static, len(defs), nil
}

func handleEvaluate() int {
	if len(os.Args) < 5 {
		printUsage()
		return exitConfigError
	}
	cfg, err := loadConfig(os.Args[2])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return exitConfigError
	}
	provider, _, err := loadPolicies(os.Args[3])
	if err != nil {
		fmt.Fprintf(os.Stderr, "policies: %v\n", err)
		return exitConfigError
	}
	pdp, err := xacml.NewPDPFromConfig(cfg, provider)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pdp: %v\n", err)
		return exitConfigError
	}
	defer pdp.Close()

	reqData, err := os.ReadFile(os.Args[4])
	if err != nil {
		fmt.Fprintf(os.Stderr, "request: %v\n", err)
		return exitInvalidRequest
	}
	var req xacml.Request
	if err := json.Unmarshal(reqData, &req); err != nil {
		fmt.Fprintf(os.Stderr, "request: %v\n", err)
		return exitInvalidRequest
	}

	resp := pdp.Evaluate(context.Background(), &req)
	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode response: %v\n", err)
		return exitInternalError
	}
	fmt.Println(string(out))

	for _, r := range resp.Results {
		if r.Status != nil && r.Status.Code == xacml.StatusSyntaxError {
			return exitInvalidRequest
		}
	}
	return exitOK
}

func handleValidate() int {
	if len(os.Args) < 3 {
		printUsage()
		return exitConfigError
	}
	cfg, err := loadConfig(os.Args[2])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return exitConfigError
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return exitConfigError
	}
	if len(os.Args) > 3 {
		if _, n, err := loadPolicies(os.Args[3]); err != nil {
			fmt.Fprintf(os.Stderr, "policies: %v\n", err)
			return exitConfigError
		} else {
			fmt.Printf("config OK, %d policies OK\n", n)
			return exitOK
		}
	}
	fmt.Println("config OK")
	return exitOK
}

func handleStats() int {
	if len(os.Args) < 3 {
		printUsage()
		return exitConfigError
	}
	_, n, err := loadPolicies(os.Args[2])
	if err != nil {
		fmt.Fprintf(os.Stderr, "policies: %v\n", err)
		return exitConfigError
	}
	functions := xacml.StandardFunctionRegistry()
	fmt.Printf("top-level policies: %d\n", n)
	fmt.Printf("standard functions: %d\n", functions.Size())
	return exitOK
}

// handleApply stores policy definitions into a SQLite-backed document store
// so a dynamic provider can serve them.
func handleApply() int {
	if len(os.Args) < 4 {
		printUsage()
		return exitConfigError
	}
	data, err := os.ReadFile(os.Args[3])
	if err != nil {
		fmt.Fprintf(os.Stderr, "policies: %v\n", err)
		return exitConfigError
	}
	var defs []xacml.PolicyDef
	if err := json.Unmarshal(data, &defs); err != nil {
		fmt.Fprintf(os.Stderr, "policies: %v\n", err)
		return exitConfigError
	}

	sqlDB, err := sql.Open("sqlite", os.Args[2])
	if err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		return exitInternalError
	}
	db := squealx.NewDb(sqlDB, "sqlite", "xacml")
	if err := stores.Migrate(db); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		return exitInternalError
	}
	store := stores.NewSQLPolicyStore(db)
	defer store.Close()

	ctx := context.Background()
	for i := range defs {
		def := &defs[i]
		body, merr := json.Marshal(def)
		if merr != nil {
			fmt.Fprintf(os.Stderr, "encode policy %q: %v\n", def.ID, merr)
			return exitInternalError
		}
		version := def.Version
		if version == "" {
			version = "1.0"
		}
		doc := &xacml.PolicyDocument{ID: def.ID, Version: version, Body: body}
		if err := store.Put(ctx, doc); err != nil {
			fmt.Fprintf(os.Stderr, "store policy %q: %v\n", def.ID, err)
			return exitInternalError
		}
	}
	fmt.Printf("applied %d policies\n", len(defs))
	return exitOK
}
