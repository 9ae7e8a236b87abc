// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metric

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/common/expfmt"
)

// reset clears all registered metrics. Only for tests.
func reset() {
	mu.Lock()
	defer mu.Unlock()
	initialized = false
	allMetrics = make(map[string]*Uint64Metric)
}

func TestRegistration(t *testing.T) {
	reset()
	defer reset()

	if _, err := NewUint64Metric("/foo", "a counter"); err != nil {
		t.Fatalf("NewUint64Metric: %v", err)
	}
	if _, err := NewUint64Metric("/foo", "again"); err != ErrNameInUse {
		t.Errorf("duplicate NewUint64Metric: got %v, wanted %v", err, ErrNameInUse)
	}
	if _, err := NewUint64Metric("/empty", "x", NewField("f", nil)); err != ErrFieldHasNoAllowedValues {
		t.Errorf("empty field: got %v, wanted %v", err, ErrFieldHasNoAllowedValues)
	}
	if _, err := NewUint64Metric("/bad", "x", NewField("f", []string{"a b"})); err != ErrFieldValueContainsIllegalChar {
		t.Errorf("illegal value: got %v, wanted %v", err, ErrFieldValueContainsIllegalChar)
	}
	if _, err := NewUint64Metric("/two", "x", NewField("a", []string{"x"}), NewField("b", []string{"y"})); err != ErrTooManyFields {
		t.Errorf("two fields: got %v, wanted %v", err, ErrTooManyFields)
	}

	Initialize()
	if _, err := NewUint64Metric("/late", "x"); err != ErrInitializationDone {
		t.Errorf("after Initialize: got %v, wanted %v", err, ErrInitializationDone)
	}
}

func TestIncrement(t *testing.T) {
	reset()
	defer reset()

	plain := MustCreateNewUint64Metric("/plain", "plain counter")
	fielded := MustCreateNewUint64Metric("/fielded", "fielded counter", NewField("reason", []string{"a", "b"}))

	plain.Increment()
	plain.IncrementBy(4)
	fielded.Increment("b")
	fielded.IncrementBy(2, "a")

	want := map[string]uint64{
		"/plain":      5,
		"/fielded{a}": 2,
		"/fielded{b}": 1,
	}
	if diff := cmp.Diff(want, Values()); diff != "" {
		t.Errorf("Values (-want +got):\n%s", diff)
	}
}

func TestInvalidFieldValuePanics(t *testing.T) {
	reset()
	defer reset()

	m := MustCreateNewUint64Metric("/m", "m", NewField("reason", []string{"a"}))
	defer func() {
		if recover() == nil {
			t.Errorf("Increment with bad field value did not panic")
		}
	}()
	m.Increment("nope")
}

func TestWriteTextParses(t *testing.T) {
	reset()
	defer reset()

	MustCreateNewUint64Metric("/futex/waits", "Number of futex waits.").IncrementBy(3)
	MustCreateNewUint64Metric("/vmar/rejected", "Rejected VMAR operations.", NewField("op", []string{"map", "protect"})).Increment("protect")

	var buf bytes.Buffer
	if err := WriteText(&buf); err != nil {
		t.Fatalf("WriteText: %v", err)
	}

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(&buf)
	if err != nil {
		t.Fatalf("TextToMetricFamilies: %v", err)
	}

	waits, ok := families["zircon_futex_waits"]
	if !ok {
		t.Fatalf("zircon_futex_waits missing from %v", families)
	}
	if got := waits.GetMetric()[0].GetCounter().GetValue(); got != 3 {
		t.Errorf("zircon_futex_waits: got %v, wanted 3", got)
	}
	if got := waits.GetHelp(); got != "Number of futex waits." {
		t.Errorf("help: got %q", got)
	}

	rejected, ok := families["zircon_vmar_rejected"]
	if !ok {
		t.Fatalf("zircon_vmar_rejected missing")
	}
	got := make(map[string]float64)
	for _, m := range rejected.GetMetric() {
		got[m.GetLabel()[0].GetValue()] = m.GetCounter().GetValue()
	}
	if diff := cmp.Diff(map[string]float64{"map": 0, "protect": 1}, got); diff != "" {
		t.Errorf("zircon_vmar_rejected (-want +got):\n%s", diff)
	}
}

func TestPromName(t *testing.T) {
	for in, want := range map[string]string{
		"/futex/waits":  "zircon_futex_waits",
		"/vmar/maps":    "zircon_vmar_maps",
		"event-signals": "zircon_event_signals",
	} {
		if got := promName(in); got != want {
			t.Errorf("promName(%q): got %q, wanted %q", in, got, want)
		}
	}
}
