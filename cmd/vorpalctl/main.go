// vorpalctl is a small operator CLI over the registry API. It covers the
// day-to-day reads plus policy evaluation and chain verification; anything
// richer should go through the SDK directly.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/vorpalhq/vorpal/client"
)

const usage = `usage: vorpalctl <command> [flags]

commands:
  systems list      list registered AI systems
  systems get       fetch one system by id
  systems create    register a new system
  systems delete    decommission a system
  policies list     list policies
  policies evaluate evaluate an action against the policy set
  audit list        list audit events
  audit verify      verify hash chain integrity

environment:
  VORPAL_URL      server base URL (default http://localhost:8080)
  VORPAL_API_KEY  API key sent as X-API-Key
  VORPAL_TOKEN    bearer token
`

func main() {
	if len(os.Args) < 3 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	c := newClient()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var err error
	switch os.Args[1] + " " + os.Args[2] {
	case "systems list":
		err = systemsList(ctx, c, os.Args[3:])
	case "systems get":
		err = systemsGet(ctx, c, os.Args[3:])
	case "systems create":
		err = systemsCreate(ctx, c, os.Args[3:])
	case "systems delete":
		err = systemsDelete(ctx, c, os.Args[3:])
	case "policies list":
		err = policiesList(ctx, c, os.Args[3:])
	case "policies evaluate":
		err = policiesEvaluate(ctx, c, os.Args[3:])
	case "audit list":
		err = auditList(ctx, c, os.Args[3:])
	case "audit verify":
		err = auditVerify(ctx, c, os.Args[3:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		var blocked *client.BlockedError
		if errors.As(err, &blocked) {
			fmt.Fprintf(os.Stderr, "blocked by policy: %s\n", blocked.Message)
			printJSON(os.Stderr, blocked.Evaluation)
			os.Exit(3)
		}
		fmt.Fprintf(os.Stderr, "vorpalctl: %v\n", err)
		os.Exit(1)
	}
}

func newClient() *client.Client {
	base := os.Getenv("VORPAL_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	var opts []client.Option
	if key := os.Getenv("VORPAL_API_KEY"); key != "" {
		opts = append(opts, client.WithAPIKey(key))
	}
	if token := os.Getenv("VORPAL_TOKEN"); token != "" {
		opts = append(opts, client.WithToken(token))
	}
	return client.New(base, opts...)
}

func systemsList(ctx context.Context, c *client.Client, args []string) error {
	fs := flag.NewFlagSet("systems list", flag.ExitOnError)
	status := fs.String("status", "", "filter by lifecycle status")
	tier := fs.String("risk-tier", "", "filter by risk tier")
	typ := fs.String("type", "", "filter by system type")
	tag := fs.String("tag", "", "filter by tag")
	page := fs.Int("page", 1, "page number")
	pageSize := fs.Int("page-size", 20, "page size")
	fs.Parse(args)

	res, err := c.Systems().List(ctx, client.ListSystemsOptions{
		Status:   *status,
		RiskTier: *tier,
		Type:     *typ,
		Tag:      *tag,
		Page:     *page,
		PageSize: *pageSize,
	})
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, res)
}

func systemsGet(ctx context.Context, c *client.Client, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: vorpalctl systems get <id>")
	}
	sys, err := c.Systems().Get(ctx, args[0])
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, sys)
}

func systemsCreate(ctx context.Context, c *client.Client, args []string) error {
	fs := flag.NewFlagSet("systems create", flag.ExitOnError)
	name := fs.String("name", "", "system name (required)")
	typ := fs.String("type", "", "system type (required)")
	tier := fs.String("risk-tier", "", "risk tier (required)")
	desc := fs.String("description", "", "description")
	owner := fs.String("owner", "", "owner id")
	autonomy := fs.Int("autonomy-level", 0, "autonomy level 1..5")
	fs.Parse(args)

	req := client.CreateSystemRequest{
		Name:        *name,
		Type:        *typ,
		RiskTier:    *tier,
		Description: *desc,
		OwnerID:     *owner,
		Tags:        fs.Args(),
	}
	if *autonomy > 0 {
		req.AutonomyLevel = autonomy
	}
	sys, err := c.Systems().Create(ctx, req)
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, sys)
}

func systemsDelete(ctx context.Context, c *client.Client, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: vorpalctl systems delete <id>")
	}
	if err := c.Systems().Delete(ctx, args[0]); err != nil {
		return err
	}
	fmt.Println("deleted", args[0])
	return nil
}

func policiesList(ctx context.Context, c *client.Client, args []string) error {
	fs := flag.NewFlagSet("policies list", flag.ExitOnError)
	pack := fs.String("pack", "", "filter by pack name")
	enabledOnly := fs.Bool("enabled", false, "only enabled policies")
	page := fs.Int("page", 1, "page number")
	pageSize := fs.Int("page-size", 20, "page size")
	fs.Parse(args)

	opts := client.ListPoliciesOptions{Pack: *pack, Page: *page, PageSize: *pageSize}
	if *enabledOnly {
		t := true
		opts.Enabled = &t
	}
	res, err := c.Policies().List(ctx, opts)
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, res)
}

func policiesEvaluate(ctx context.Context, c *client.Client, args []string) error {
	fs := flag.NewFlagSet("policies evaluate", flag.ExitOnError)
	systemID := fs.String("system", "", "system id (required)")
	action := fs.String("action", "", "action to evaluate (required)")
	contextJSON := fs.String("context", "", "evaluation context as JSON object")
	fs.Parse(args)

	if *systemID == "" || *action == "" {
		return errors.New("usage: vorpalctl policies evaluate -system <id> -action <action> [-context '{...}']")
	}
	req := client.EvaluateRequest{SystemID: *systemID, Action: *action}
	if *contextJSON != "" {
		if err := json.Unmarshal([]byte(*contextJSON), &req.Context); err != nil {
			return fmt.Errorf("parse -context: %w", err)
		}
	}
	res, err := c.Policies().Evaluate(ctx, req)
	if err != nil {
		return err
	}
	if err := printJSON(os.Stdout, res); err != nil {
		return err
	}
	if !res.Allowed {
		os.Exit(3)
	}
	return nil
}

func auditList(ctx context.Context, c *client.Client, args []string) error {
	fs := flag.NewFlagSet("audit list", flag.ExitOnError)
	systemID := fs.String("system", "", "filter by system id")
	eventType := fs.String("event-type", "", "filter by event type")
	actorID := fs.String("actor", "", "filter by actor id")
	page := fs.Int("page", 1, "page number")
	pageSize := fs.Int("page-size", 20, "page size")
	fs.Parse(args)

	res, err := c.Audit().List(ctx, client.ListAuditOptions{
		SystemID:  *systemID,
		EventType: *eventType,
		ActorID:   *actorID,
		Page:      *page,
		PageSize:  *pageSize,
	})
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, res)
}

func auditVerify(ctx context.Context, c *client.Client, args []string) error {
	fs := flag.NewFlagSet("audit verify", flag.ExitOnError)
	systemID := fs.String("system", "", "verify a single system chain")
	fs.Parse(args)

	report, err := c.Audit().VerifyChain(ctx, client.VerifyChainOptions{SystemID: *systemID})
	if err != nil {
		return err
	}
	if err := printJSON(os.Stdout, report); err != nil {
		return err
	}
	if !report.Verified {
		os.Exit(4)
	}
	return nil
}

func printJSON(w *os.File, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
