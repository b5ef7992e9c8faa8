package cli

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"

	"term-forge/internal/agent"
	"term-forge/internal/commit"
	"term-forge/internal/reasoner"
	"term-forge/internal/service"
	"term-forge/internal/templates"
)

var (
	headerColor  = color.New(color.FgCyan, color.Bold)
	idColor      = color.New(color.FgYellow)
	okColor      = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
	errColor     = color.New(color.FgRed, color.Bold)
	addedColor   = color.New(color.FgGreen)
	removedColor = color.New(color.FgRed)
)

func printError(w io.Writer, err error) {
	errColor.Fprint(w, "error: ")
	fmt.Fprintln(w, err)

	var ie *service.InputError
	if errors.As(err, &ie) {
		for _, p := range ie.Problems {
			fmt.Fprintf(w, "  input %d, field %s: %s (%s)\n", p.Input, p.Field, p.Message, p.Kind)
		}
	}
}

func printTemplates(w io.Writer, ts []templates.Template) {
	if len(ts) == 0 {
		fmt.Fprintln(w, "No templates.")
		return
	}
	for _, t := range ts {
		headerColor.Fprint(w, t.Name)
		if t.DisplayName != "" {
			fmt.Fprintf(w, " (%s)", t.DisplayName)
		}
		fmt.Fprintln(w)
		if t.Description != "" {
			fmt.Fprintf(w, "  %s\n", t.Description)
		}
		fmt.Fprintf(w, "  rules: %s\n", strings.Join(t.Rules, ", "))
		for _, f := range t.Fields {
			req := ""
			if f.Required {
				req = " required"
			}
			fmt.Fprintf(w, "  - %s [%s]%s", f.Name, f.Cardinality, req)
			if f.HasOntologies() {
				refs := make([]string, len(f.Ontologies))
				for i, o := range f.Ontologies {
					refs[i] = o.String()
				}
				fmt.Fprintf(w, " from %s", strings.Join(refs, ", "))
			}
			if len(f.Prefixes) > 0 {
				fmt.Fprintf(w, " prefixes %s", strings.Join(f.Prefixes, ", "))
			}
			fmt.Fprintln(w)
		}
	}
}

func printGenerated(w io.Writer, resp *service.GenerateResponse) {
	for i, msg := range resp.Messages {
		id, rest, _ := strings.Cut(msg, " ")
		idColor.Fprint(w, id)
		fmt.Fprintf(w, " %s\n", rest)
		if i < len(resp.Reviews) && resp.Reviews[i] != nil {
			printReview(w, resp.Reviews[i])
		}
	}
	for _, e := range resp.Errors {
		errColor.Fprint(w, "failed: ")
		fmt.Fprintln(w, e)
	}
	if resp.Commit != nil {
		printCommit(w, resp.Commit)
	}
}

func printReview(w io.Writer, r *agent.Review) {
	c := okColor
	if r.Verdict != agent.VerdictAccept {
		c = warnColor
	}
	c.Fprintf(w, "  review: %s", r.Verdict)
	if r.Notes != "" {
		fmt.Fprintf(w, " - %s", r.Notes)
	}
	fmt.Fprintln(w)
}

func printCommit(w io.Writer, res *commit.Result) {
	okColor.Fprintf(w, "Committed %s\n", res.Reference)
	pending := make([]string, 0, len(res.AssignedIDs))
	for p := range res.AssignedIDs {
		pending = append(pending, p)
	}
	sort.Strings(pending)
	for _, p := range pending {
		fmt.Fprintf(w, "  %s -> ", p)
		idColor.Fprintln(w, res.AssignedIDs[p])
	}
}

func printDiff(w io.Writer, d commit.Diff) {
	for _, line := range strings.Split(strings.TrimRight(d.Text, "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			headerColor.Fprintln(w, line)
		case strings.HasPrefix(line, "+"):
			addedColor.Fprintln(w, line)
		case strings.HasPrefix(line, "-"):
			removedColor.Fprintln(w, line)
		default:
			fmt.Fprintln(w, line)
		}
	}
	if d.ObsoleteReason != "" {
		fmt.Fprintf(w, "reason: %s\n", d.ObsoleteReason)
	}
}

func printConsistency(w io.Writer, name string, c *reasoner.Consistency) {
	if c.Consistent {
		okColor.Fprintf(w, "%s is consistent\n", name)
		return
	}
	errColor.Fprintf(w, "%s is inconsistent\n", name)
	for _, id := range c.Unsatisfiable {
		fmt.Fprintf(w, "  unsatisfiable: %s\n", id)
	}
	for _, p := range c.Problems {
		fmt.Fprintf(w, "  %s\n", p)
	}
}
