package tui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"arcadeops/internal/checklist"
	"arcadeops/internal/inspect"
	"arcadeops/internal/notice"
)

// PromptSink prints notices as plain lines for the non-interactive drivers.
func PromptSink(out io.Writer) notice.Sink {
	return notice.SinkFunc(func(n notice.Notice) {
		fmt.Fprintf(out, "[%s] %s\n", n.Level, n.Message)
	})
}

type lineReader struct {
	sc  *bufio.Scanner
	out io.Writer
}

// ask prints prompt and returns the trimmed reply; io.EOF ends the session.
func (l lineReader) ask(prompt string) (string, error) {
	fmt.Fprint(l.out, prompt)
	if !l.sc.Scan() {
		if err := l.sc.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(l.sc.Text()), nil
}

// RunWizardPrompt walks the checklist over plain line input, for pipes and
// terminals without TUI support.
func RunWizardPrompt(ctx context.Context, w *checklist.Wizard, r io.Reader, out io.Writer) error {
	lr := lineReader{sc: bufio.NewScanner(r), out: out}
	if err := w.Open(); err != nil {
		return err
	}
	for w.State() == checklist.StateDisplaying {
		v, err := w.View()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\n%s: %s\n", v.Counter, v.Title)
		if v.Prompt != "" {
			fmt.Fprintln(out, v.Prompt)
		}
		for _, it := range v.Items {
			fmt.Fprintf(out, "  %s %s\n", itemMark(it.Status), it.Name)
		}
		opts := "[enter] " + v.ForwardLabel + "  [b]ack  [q]uit"
		if len(v.Figures) > 0 {
			opts = "[f]igures  " + opts
		}
		switch {
		case len(v.Items) > 0:
			opts = "[c]heck items  [t] notes  " + opts
		case len(v.Buttons) == 0:
		case v.Kind == checklist.KindAction:
			opts = "[a] " + v.Buttons[0].Label + "  [d] mark done  [t] notes  " + opts
		default:
			opts = "[y]es  [n]o  [t] notes  " + opts
		}
		reply, err := lr.ask(opts + "\n> ")
		if errors.Is(err, io.EOF) {
			w.Abandon()
			return nil
		}
		if err != nil {
			return err
		}
		switch strings.ToLower(reply) {
		case "y", "yes":
			err = w.Answer(true)
			if err == nil {
				err = w.Forward()
			}
		case "n", "no":
			err = w.Answer(false)
			if err == nil {
				err = w.Forward()
			}
		case "a":
			err = w.TriggerAction()
		case "d":
			err = w.MarkDone()
			if err == nil {
				err = w.Forward()
			}
		case "", "next":
			err = w.Forward()
		case "b", "back":
			err = w.Back()
		case "c", "check":
			err = checkItems(w, v, lr)
			if err == nil {
				err = w.Forward()
			}
		case "t", "notes":
			var notes string
			notes, err = lr.ask("Notes: ")
			if err == nil {
				err = w.SetNotes(notes)
			}
		case "f", "figures":
			err = askFigures(w, v, lr)
		case "q", "quit":
			w.Abandon()
			return nil
		default:
			fmt.Fprintf(out, "unknown reply %q\n", reply)
			continue
		}
		if errors.Is(err, io.EOF) {
			w.Abandon()
			return nil
		}
		if err != nil && !errors.Is(err, checklist.ErrMissingResponse) {
			fmt.Fprintln(out, err)
		}
	}
	if w.State() != checklist.StateFinished {
		return nil
	}
	if summary, ok := w.Summary(); ok {
		fmt.Fprintf(out, "\n%s\n", summaryHeadline(summary))
		for _, e := range summary.Entries {
			lines := entryLines(e)
			fmt.Fprintf(out, "  %s\n", lines[0])
			for _, l := range lines[1:] {
				fmt.Fprintf(out, "      %s\n", l)
			}
		}
	}
	reply, err := lr.ask("Save this run? [Y/n] ")
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if strings.EqualFold(reply, "n") {
		w.Abandon()
		return nil
	}
	for {
		err := w.Close(ctx)
		if err == nil {
			return nil
		}
		again, askErr := lr.ask("Retry? [Y/n] ")
		if askErr != nil || strings.EqualFold(again, "n") {
			w.Abandon()
			return fmt.Errorf("checklist run not saved: %w", err)
		}
	}
}

func itemMark(status checklist.ItemStatus) string {
	switch status {
	case checklist.ItemOK:
		return "[OK]"
	case checklist.ItemIssue:
		return "[Issue Found]"
	}
	return "[ ]"
}

// checkItems asks for every sub-list item of the displayed step, with notes
// for the ones flagged.
func checkItems(w *checklist.Wizard, v checklist.View, lr lineReader) error {
	for _, it := range v.Items {
		q := it.Name
		if it.Label != "" {
			q += " (" + it.Label + ")"
		}
		reply, err := lr.ask(q + " [o]k/[i]ssue: ")
		if err != nil {
			return err
		}
		status := checklist.ItemOK
		notes := it.Notes
		if r := strings.ToLower(reply); r == "i" || r == "issue" {
			status = checklist.ItemIssue
			if notes, err = lr.ask("Notes for " + it.Name + ": "); err != nil {
				return err
			}
		}
		if err := w.MarkItem(it.Name, status, notes); err != nil {
			return err
		}
	}
	return nil
}

func askFigures(w *checklist.Wizard, v checklist.View, lr lineReader) error {
	if len(v.Figures) == 0 {
		return checklist.ErrWrongControl
	}
	for _, f := range v.Figures {
		reply, err := lr.ask(fmt.Sprintf("%s [%s]: ", f.Name, f.Value))
		if err != nil {
			return err
		}
		if reply == "" {
			continue
		}
		if err := w.SetFigure(f.Name, reply); err != nil {
			return err
		}
	}
	return nil
}

// RunInspectorPrompt runs an inspection over plain line input. rec must be
// one of the dispatcher's notice sinks so duplicates can be offered for
// override once the walk ends.
func RunInspectorPrompt(ctx context.Context, in *inspect.Inspector, d *inspect.AsyncDispatcher, rec *notice.Recorder, r io.Reader, out io.Writer) error {
	lr := lineReader{sc: bufio.NewScanner(r), out: out}
	in.Open()
	defer in.Close()

	if err := pickUnit(ctx, in, lr); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	for in.State() == inspect.StateActive {
		step, err := in.Step()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\n%s: %s\n%s\n", step.Counter, step.Category.Name, step.Category.Help)
		reply, err := lr.ask("[o]k  [i]ssue  [n]/a  [b]ack  [q]uit\n> ")
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		switch strings.ToLower(reply) {
		case "o", "ok":
			err = in.Choose(inspect.OutcomeOK)
		case "n", "na", "n/a":
			err = in.Choose(inspect.OutcomeNA)
		case "i", "issue":
			err = draftIssue(in, lr)
		case "b", "back":
			if err := in.Back(); err != nil {
				fmt.Fprintln(out, err)
			}
			continue
		case "q", "quit":
			return awaitDuplicates(in, d, rec, lr)
		default:
			fmt.Fprintf(out, "unknown reply %q\n", reply)
			continue
		}
		if err == nil {
			err = in.Forward()
		}
		if err != nil && !errors.Is(err, io.EOF) {
			fmt.Fprintln(out, err)
		}
	}
	if in.State() == inspect.StateFinished {
		fmt.Fprintln(out, "\nResults:")
		for _, res := range in.Results() {
			fmt.Fprintf(out, "  %-16s %s\n", res.Category, res.Outcome.Label())
		}
	}
	return awaitDuplicates(in, d, rec, lr)
}

func pickUnit(ctx context.Context, in *inspect.Inspector, lr lineReader) error {
	for {
		q, err := lr.ask("Game: ")
		if err != nil {
			return err
		}
		units, err := in.Search(ctx, q)
		if err != nil {
			continue
		}
		if len(units) == 0 {
			fmt.Fprintln(lr.out, "no matching games")
			continue
		}
		for i, u := range units {
			fmt.Fprintf(lr.out, "  %d) %s\n", i+1, u.Name)
		}
		pick, err := lr.ask("Pick a number (enter to search again): ")
		if err != nil {
			return err
		}
		n, convErr := strconv.Atoi(pick)
		if convErr != nil || n < 1 || n > len(units) {
			continue
		}
		return in.SelectUnit(units[n-1])
	}
}

func draftIssue(in *inspect.Inspector, lr lineReader) error {
	if err := in.Choose(inspect.OutcomeIssue); err != nil {
		return err
	}
	step, err := in.Step()
	if err != nil {
		return err
	}
	desc, err := lr.ask(fmt.Sprintf("Description [%s]: ", step.Draft.Description))
	if err != nil {
		return err
	}
	if desc != "" {
		if err := in.SetDescription(desc); err != nil {
			return err
		}
	}
	prio, err := lr.ask(fmt.Sprintf("Priority (%s) [%s]: ", strings.Join(in.Priorities(), "/"), step.Draft.Priority))
	if err != nil {
		return err
	}
	if prio != "" {
		return in.SetPriority(prio)
	}
	return nil
}

// awaitDuplicates waits for submissions and offers to file rejected duplicates anyway.
func awaitDuplicates(in *inspect.Inspector, d *inspect.AsyncDispatcher, rec *notice.Recorder, lr lineReader) error {
	if d == nil {
		return nil
	}
	d.Wait()
	if rec == nil {
		return nil
	}
	for _, n := range rec.Notices() {
		dup, ok := n.Data.(inspect.Duplicate)
		if !ok {
			continue
		}
		reply, err := lr.ask(fmt.Sprintf("%s is already open for %s. File anyway? [y/N] ", dup.ExistingID, dup.Request.Category))
		if err != nil {
			break
		}
		if strings.EqualFold(reply, "y") {
			if err := in.OverrideDuplicate(dup); err != nil {
				return err
			}
		}
	}
	d.Wait()
	return nil
}
