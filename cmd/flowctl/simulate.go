package main

import (
	"fmt"
	"strings"

	"callflow-platform/internal/callflow"
	"callflow-platform/internal/interpreter"

	"github.com/spf13/cobra"
)

func newSimulateCmd() *cobra.Command {
	var (
		number    string
		remote    string
		direction string
		digits    []string
		dial      []string
		maxHops   int
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "simulate FILE",
		Short: "Play a call against a flow file and print the directives of each callback",
		Long: `Each --digits value answers one menu prompt and each --dial value one
forward result, in the order the call reaches them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, _, err := readFlowFile(args[0])
			if err != nil {
				return err
			}
			if number == "" {
				number = f.PhoneNumber
			}

			in := interpreter.New(nil)
			if maxHops > 0 {
				in.MaxHops = maxHops
			}
			ev := interpreter.Event{
				CallID:       "simulated",
				CalledNumber: number,
				CallerNumber: remote,
				Direction:    interpreter.ParseDirection(direction),
			}
			if ev.Direction == interpreter.DirectionOutbound {
				ev.CalledNumber, ev.CallerNumber = remote, number
			}
			results := play(in, &f, ev, digits, dial)

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, results)
			}
			for i, r := range results {
				fmt.Fprintf(out, "callback %d: %s\n", i+1, r.Outcome)
				for _, d := range r.Directives {
					fmt.Fprintf(out, "  %s\n", describe(d))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&number, "number", "", "our phone number (defaults to the file's phone_number)")
	cmd.Flags().StringVar(&remote, "remote", "+15555550100", "the other party's number")
	cmd.Flags().StringVar(&direction, "direction", "inbound", "inbound or outbound")
	cmd.Flags().StringSliceVar(&digits, "digits", nil, "menu inputs in order; empty means no input")
	cmd.Flags().StringSliceVar(&dial, "dial", nil, "forward results in order, e.g. completed,busy")
	cmd.Flags().IntVar(&maxHops, "max-hops", 0, "hop cap (default 50)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	return cmd
}

// play runs the call, answering each menu with the next --digits value and
// each forward with the next --dial value. It stops when the call ends or
// the matching queue runs dry.
func play(in *interpreter.Interpreter, f *callflow.CallFlow, ev interpreter.Event, digits, dial []string) []interpreter.Result {
	res := in.Run(f, ev)
	out := []interpreter.Result{res}
	for {
		c, ok := res.Suspended()
		if !ok {
			return out
		}
		next := ev
		next.Cursor = &c
		switch res.Directives[len(res.Directives)-1].Verb {
		case interpreter.VerbGather:
			if len(digits) == 0 {
				return out
			}
			next.Digits, digits = digits[0], digits[1:]
		case interpreter.VerbDial:
			if len(dial) == 0 {
				return out
			}
			next.DialStatus, dial = dial[0], dial[1:]
		default:
			return out
		}
		res = in.Run(f, next)
		out = append(out, res)
	}
}

func describe(d interpreter.Directive) string {
	var b strings.Builder
	b.WriteString(string(d.Verb))
	switch d.Verb {
	case interpreter.VerbSay, interpreter.VerbGather:
		if d.Text != "" {
			fmt.Fprintf(&b, " %q", d.Text)
		}
	case interpreter.VerbPlay:
		b.WriteString(" " + d.URL)
	case interpreter.VerbPause:
		fmt.Fprintf(&b, " %ds", d.Seconds)
	case interpreter.VerbDial:
		b.WriteString(" " + strings.Join(d.Numbers, ","))
		if d.Record {
			b.WriteString(" (recorded)")
		}
	case interpreter.VerbSMS:
		fmt.Fprintf(&b, " to %s %q", d.To, d.Body)
	}
	if d.Continue != nil {
		fmt.Fprintf(&b, " -> resume at %s", d.Continue.BlockID)
	}
	return b.String()
}
