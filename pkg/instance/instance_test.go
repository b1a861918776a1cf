package instance

import "testing"

func TestLookupPrefersWorkerID(t *testing.T) {
	env := map[string]string{"CORNMAN_WORKER_ID": "notify-1", "DYNO": "worker.2"}
	if got := lookup(func(k string) string { return env[k] }); got != "notify-1" {
		t.Fatalf("expected worker id, got %q", got)
	}

	delete(env, "CORNMAN_WORKER_ID")
	if got := lookup(func(k string) string { return env[k] }); got != "worker.2" {
		t.Fatalf("expected dyno fallback, got %q", got)
	}

	if got := lookup(func(string) string { return "  " }); got != defaultID {
		t.Fatalf("expected default id, got %q", got)
	}
}
