package telemetry

import "testing"

func TestDroppedAttributes_OmitsEmptyReason(t *testing.T) {
	attrs := DroppedAttributes("test", "out", true, "")
	for _, a := range attrs {
		if a.Key == AttrReason {
			t.Fatalf("expected no reason attribute when reason is empty, got %v", a)
		}
	}
}

func TestErroredAttributes_IncludesStageAndKind(t *testing.T) {
	attrs := ErroredAttributes("test", "out", "sink", "transient")
	found := map[string]bool{}
	for _, a := range attrs {
		found[string(a.Key)] = true
	}
	for _, key := range []string{"environment", "component", "stage", "error.kind"} {
		if !found[key] {
			t.Fatalf("expected attribute %q, got %v", key, attrs)
		}
	}
}
