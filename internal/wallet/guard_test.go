package wallet

import (
	"context"
	"errors"
	"testing"
)

type panicky struct {
	panicOnProbe  bool
	panicOnSubmit bool
	submitErr     error
}

func (p *panicky) ID() ProviderID { return "panicky" }

func (p *panicky) Probe() bool {
	if p.panicOnProbe {
		panic("probe blew up")
	}
	return true
}

func (p *panicky) Connect(ctx context.Context) (string, error) { return "0xab", nil }

func (p *panicky) SignAndSubmit(ctx context.Context, payload Payload) (string, error) {
	if p.panicOnSubmit {
		panic("submit blew up")
	}
	if p.submitErr != nil {
		return "", p.submitErr
	}
	return "0xhash", nil
}

func (p *panicky) Disconnect(ctx context.Context) error { return nil }

func TestGuardRecoversSubmitPanic(t *testing.T) {
	guarded := Guard(&panicky{panicOnSubmit: true})

	_, err := guarded.SignAndSubmit(context.Background(), Payload{})
	submitErr, ok := AsSubmitError(err)
	if !ok || submitErr.Kind != SubmitUnknown {
		t.Fatalf("error = %v, want unknown submit error", err)
	}
}

func TestGuardRecoversProbePanic(t *testing.T) {
	guarded := Guard(&panicky{panicOnProbe: true})
	if guarded.Probe() {
		t.Fatal("panicking probe reported available")
	}
}

func TestGuardNormalizesUnclassifiedError(t *testing.T) {
	guarded := Guard(&panicky{submitErr: errors.New("something odd")})

	_, err := guarded.SignAndSubmit(context.Background(), Payload{})
	submitErr, ok := AsSubmitError(err)
	if !ok || submitErr.Kind != SubmitUnknown {
		t.Fatalf("error = %v, want unknown submit error", err)
	}
	if submitErr.Message != "something odd" {
		t.Fatalf("message = %q, original text lost", submitErr.Message)
	}
}

func TestGuardPreservesClassifiedError(t *testing.T) {
	original := NewSubmitError("panicky", SubmitUserRejected, "", nil)
	guarded := Guard(&panicky{submitErr: original})

	_, err := guarded.SignAndSubmit(context.Background(), Payload{})
	submitErr, ok := AsSubmitError(err)
	if !ok || submitErr.Kind != SubmitUserRejected {
		t.Fatalf("error = %v, want user_rejected preserved", err)
	}
}

func TestGuardIsIdempotent(t *testing.T) {
	inner := &panicky{}
	once := Guard(inner)
	twice := Guard(once)
	if once != twice {
		t.Fatal("guarding a guarded capability wrapped it again")
	}
}

func TestRegistryLookupAndAvailability(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&panicky{})
	registry.Register(&panicky{panicOnProbe: true})

	if _, ok := registry.Lookup("PANICKY"); !ok {
		t.Fatal("lookup is not case-insensitive")
	}
	// Both fakes share an id; the second registration wins and its probe
	// panics, so nothing is available.
	if got := registry.Available(); len(got) != 0 {
		t.Fatalf("available = %v, want none", got)
	}
	if got := registry.Known(); len(got) != 1 || got[0] != "panicky" {
		t.Fatalf("known = %v", got)
	}
}

func TestParseProviderID(t *testing.T) {
	id, err := ParseProviderID("  Frame ")
	if err != nil || id != "frame" {
		t.Fatalf("ParseProviderID = (%q, %v)", id, err)
	}
	if _, err := ParseProviderID("   "); err == nil {
		t.Fatal("blank provider id accepted")
	}
}

func TestNormalizeSubmitError(t *testing.T) {
	if NormalizeSubmitError("p", nil) != nil {
		t.Fatal("nil error changed")
	}
	classified := NewSubmitError("p", SubmitTimeout, "", nil)
	if NormalizeSubmitError("p", classified) != error(classified) {
		t.Fatal("classified error was rewrapped")
	}
	plain := errors.New("boom")
	normalized := NormalizeSubmitError("p", plain)
	submitErr, ok := AsSubmitError(normalized)
	if !ok || submitErr.Kind != SubmitUnknown || !errors.Is(normalized, plain) {
		t.Fatalf("normalized = %v", normalized)
	}
}
