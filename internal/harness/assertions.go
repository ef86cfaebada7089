package harness

import (
	"fmt"
	"strings"

	"github.com/fawangZ/Nanhu-V3/internal/sim"
)

// EvaluateAssertions checks every assertion against the result and
// returns the failure messages. An empty slice means all held.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertFinalQueue:
			err = assertFinalQueue(result, a)
		case AssertFinalWindow:
			err = assertFinalWindow(result, a)
		case AssertCounters:
			err = assertCounters(result, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			failures = append(failures, fmt.Sprintf("assertion %d (%s): %v", i, a.Type, err))
		}
	}
	return failures
}

// matchEvent applies subset semantics: only the assertion's set fields
// are compared.
func matchEvent(ev sim.Event, a Assertion) bool {
	if a.Kind != "" && ev.Kind != a.Kind {
		return false
	}
	if a.Tick != nil && ev.Tick != *a.Tick {
		return false
	}
	if a.Port != nil && ev.Port != *a.Port {
		return false
	}
	if a.Tag != "" && ev.Tag != a.Tag {
		return false
	}
	if a.Payload != "" && ev.Payload != a.Payload {
		return false
	}
	if a.Via != "" && ev.Via != a.Via {
		return false
	}
	return true
}

func assertTraceContains(trace []sim.Event, a Assertion) error {
	for _, ev := range trace {
		if matchEvent(ev, a) {
			return nil
		}
	}
	return fmt.Errorf("no event matches kind=%s tag=%s payload=%s via=%s\n%s",
		a.Kind, a.Tag, a.Payload, a.Via, formatTrace(trace))
}

func assertTraceOrder(trace []sim.Event, a Assertion) error {
	if a.Kind == "" {
		return fmt.Errorf("trace_order requires kind")
	}
	var got []string
	for _, ev := range trace {
		if ev.Kind == a.Kind {
			got = append(got, ev.Payload)
		}
	}
	// Expected payloads must appear as a subsequence, in order.
	next := 0
	for _, p := range got {
		if next < len(a.Payloads) && p == a.Payloads[next] {
			next++
		}
	}
	if next != len(a.Payloads) {
		return fmt.Errorf("expected %s payloads in order %v, trace has %v", a.Kind, a.Payloads, got)
	}
	return nil
}

func assertTraceCount(trace []sim.Event, a Assertion) error {
	n := 0
	for _, ev := range trace {
		if matchEvent(ev, a) {
			n++
		}
	}
	if n != a.Count {
		return fmt.Errorf("expected %d matching events, found %d\n%s", a.Count, n, formatTrace(trace))
	}
	return nil
}

func assertFinalQueue(result *Result, a Assertion) error {
	if a.Len != nil && result.QueueLen != *a.Len {
		return fmt.Errorf("expected queue length %d, got %d", *a.Len, result.QueueLen)
	}
	if a.CanAccept != nil && result.CanAccept != *a.CanAccept {
		return fmt.Errorf("expected can_accept=%v, got %v", *a.CanAccept, result.CanAccept)
	}
	return nil
}

func assertFinalWindow(result *Result, a Assertion) error {
	if a.Occupancy != nil && result.WindowOccupancy != *a.Occupancy {
		return fmt.Errorf("expected window occupancy %d, got %d", *a.Occupancy, result.WindowOccupancy)
	}
	return nil
}

func assertCounters(result *Result, a Assertion) error {
	p := 0
	if a.Port != nil {
		p = *a.Port
	}
	if p < 0 || p >= len(result.Counters) {
		return fmt.Errorf("port %d out of range (%d ports)", p, len(result.Counters))
	}
	ctr := result.Counters[p]
	if a.IssuedOldest != nil && ctr.IssuedOldest != *a.IssuedOldest {
		return fmt.Errorf("port %d: expected issued_oldest=%d, got %d", p, *a.IssuedOldest, ctr.IssuedOldest)
	}
	if a.IssuedPriority != nil && ctr.IssuedPriority != *a.IssuedPriority {
		return fmt.Errorf("port %d: expected issued_priority=%d, got %d", p, *a.IssuedPriority, ctr.IssuedPriority)
	}
	if a.Cancelled != nil && ctr.Cancelled != *a.Cancelled {
		return fmt.Errorf("port %d: expected cancelled=%d, got %d", p, *a.Cancelled, ctr.Cancelled)
	}
	return nil
}

// formatTrace renders the trace for failure messages.
func formatTrace(trace []sim.Event) string {
	var buf strings.Builder
	buf.WriteString("full trace:\n")
	for i, ev := range trace {
		fmt.Fprintf(&buf, "  [%d] tick=%d %s port=%d tag=%s payload=%s via=%s count=%d\n",
			i, ev.Tick, ev.Kind, ev.Port, ev.Tag, ev.Payload, ev.Via, ev.Count)
	}
	return buf.String()
}
