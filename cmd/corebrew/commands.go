package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/corebrew/corebrew"
	"github.com/corebrew/corebrew/internal/gps"
)

// formatPlan prints a ResolutionPlan the way `corebrew install -pretend`
// is expected to: one line per step, then the download/installed size
// totals.
func formatPlan(w io.Writer, plan *gps.ResolutionPlan) {
	for _, step := range plan.Steps {
		fmt.Fprintf(w, "[%s] %s-%s:%s\n", step.Kind, step.Record.Id.String(), step.Record.Version.String(), step.Record.Slot)
	}
	fmt.Fprintf(w, "download: %d bytes, installed: %d bytes\n", plan.DownloadSize, plan.InstalledSize)
}

type installCmd struct{}

func (installCmd) Name() string      { return "install" }
func (installCmd) Args() string      { return "[-oneshot] <atom...>" }
func (installCmd) ShortHelp() string { return "resolve and install the given atoms" }
func (installCmd) Run(ctx context.Context, c *corebrew.Ctx, args []string, pretend bool, out io.Writer) error {
	fs := flag.NewFlagSet("install", flag.ContinueOnError)
	fs.SetOutput(out)
	oneshot := fs.Bool("oneshot", false, "install without recording world membership")
	if err := fs.Parse(args); err != nil {
		return err
	}
	plan, err := c.Install(ctx, fs.Args(), corebrew.Options{Pretend: pretend, Oneshot: *oneshot})
	if err != nil {
		return err
	}
	formatPlan(out, plan)
	return nil
}

type removeCmd struct{}

func (removeCmd) Name() string      { return "remove" }
func (removeCmd) Args() string      { return "<atom...>" }
func (removeCmd) ShortHelp() string { return "uninstall the given atoms" }
func (removeCmd) Run(ctx context.Context, c *corebrew.Ctx, args []string, pretend bool, out io.Writer) error {
	plan, err := c.Remove(ctx, args, corebrew.Options{Pretend: pretend})
	if err != nil {
		return err
	}
	formatPlan(out, plan)
	return nil
}

type updateCmd struct{}

func (updateCmd) Name() string      { return "update" }
func (updateCmd) Args() string      { return "[atom...]" }
func (updateCmd) ShortHelp() string { return "upgrade world (or the given atoms) to newer versions" }
func (updateCmd) Run(ctx context.Context, c *corebrew.Ctx, args []string, pretend bool, out io.Writer) error {
	plan, err := c.Update(ctx, args, corebrew.Options{Pretend: pretend})
	if err != nil {
		return err
	}
	formatPlan(out, plan)
	return nil
}

type newuseCmd struct{}

func (newuseCmd) Name() string { return "newuse" }
func (newuseCmd) Args() string { return "[atom...]" }
func (newuseCmd) ShortHelp() string {
	return "rebuild world (or the given atoms) whose flag vector is stale"
}
func (newuseCmd) Run(ctx context.Context, c *corebrew.Ctx, args []string, pretend bool, out io.Writer) error {
	plan, err := c.Newuse(ctx, args, corebrew.Options{Pretend: pretend})
	if err != nil {
		return err
	}
	formatPlan(out, plan)
	return nil
}

type syncCmd struct{}

func (syncCmd) Name() string      { return "sync" }
func (syncCmd) Args() string      { return "[repo...]" }
func (syncCmd) ShortHelp() string { return "refresh configured repositories" }
func (syncCmd) Run(ctx context.Context, c *corebrew.Ctx, args []string, pretend bool, out io.Writer) error {
	if pretend {
		fmt.Fprintln(out, "sync has no pretend mode; it only refreshes repository checkouts")
	}
	return c.Sync(ctx, args...)
}

type searchCmd struct{}

func (searchCmd) Name() string      { return "search" }
func (searchCmd) Args() string      { return "<query>" }
func (searchCmd) ShortHelp() string { return "search the catalog by name fragment" }
func (searchCmd) Run(_ context.Context, c *corebrew.Ctx, args []string, _ bool, out io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("search: expected exactly one query argument")
	}
	for _, r := range c.Search(args[0]) {
		fmt.Fprintf(out, "%s-%s\t%s\n", r.Id.String(), r.Version.String(), r.Description)
	}
	return nil
}

type infoCmd struct{}

func (infoCmd) Name() string      { return "info" }
func (infoCmd) Args() string      { return "<atom>" }
func (infoCmd) ShortHelp() string { return "show the newest known candidate for an atom" }
func (infoCmd) Run(_ context.Context, c *corebrew.Ctx, args []string, _ bool, out io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("info: expected exactly one atom argument")
	}
	r, err := c.Info(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s-%s\nslot: %s\nrepo: %s\nlicense: %s\ndescription: %s\n",
		r.Id.String(), r.Version.String(), r.Slot, r.Repo, r.License, r.Description)
	return nil
}

type listInstalledCmd struct{}

func (listInstalledCmd) Name() string      { return "list-installed" }
func (listInstalledCmd) Args() string      { return "[category]" }
func (listInstalledCmd) ShortHelp() string { return "list installed packages" }
func (listInstalledCmd) Run(_ context.Context, c *corebrew.Ctx, args []string, _ bool, out io.Writer) error {
	filter := ""
	if len(args) > 0 {
		filter = args[0]
	}
	for _, rec := range c.ListInstalled(filter) {
		fmt.Fprintf(out, "%s-%s:%s\n", rec.Id.String(), rec.Version.String(), rec.Slot)
	}
	return nil
}

type verifyCmd struct{}

func (verifyCmd) Name() string      { return "verify" }
func (verifyCmd) Args() string      { return "" }
func (verifyCmd) ShortHelp() string { return "check installed files against recorded digests" }
func (verifyCmd) Run(_ context.Context, c *corebrew.Ctx, _ []string, _ bool, out io.Writer) error {
	issues, err := c.Verify()
	if err != nil {
		return err
	}
	for _, iss := range issues {
		fmt.Fprintf(out, "%s: %s: %s\n", iss.Owner.String(), iss.Path, iss.Reason)
	}
	if len(issues) > 0 {
		return fmt.Errorf("verify: %d issue(s) found", len(issues))
	}
	return nil
}

type depcleanCmd struct{}

func (depcleanCmd) Name() string      { return "depclean" }
func (depcleanCmd) Args() string      { return "" }
func (depcleanCmd) ShortHelp() string { return "remove packages unreachable from world" }
func (depcleanCmd) Run(ctx context.Context, c *corebrew.Ctx, _ []string, pretend bool, out io.Writer) error {
	plan, err := c.Depclean(ctx, corebrew.Options{Pretend: pretend})
	if err != nil {
		return err
	}
	formatPlan(out, plan)
	return nil
}

type auditCmd struct{}

func (auditCmd) Name() string      { return "audit" }
func (auditCmd) Args() string      { return "" }
func (auditCmd) ShortHelp() string { return "report preserved libraries" }
func (auditCmd) Run(_ context.Context, c *corebrew.Ctx, _ []string, _ bool, out io.Writer) error {
	for _, rec := range c.Audit() {
		fmt.Fprintf(out, "%s\n", rec.Id.String())
	}
	return nil
}
