package wallet

import (
	"context"
	"fmt"
)

// Guard wraps a capability so that provider code cannot crash its caller: a
// panic or unclassified failure inside Connect or SignAndSubmit is caught at
// this boundary and normalized into the error taxonomy.
func Guard(c Capability) Capability {
	if _, ok := c.(*guarded); ok {
		return c
	}
	return &guarded{inner: c}
}

type guarded struct {
	inner Capability
}

func (g *guarded) ID() ProviderID { return g.inner.ID() }

func (g *guarded) Probe() (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return g.inner.Probe()
}

func (g *guarded) Connect(ctx context.Context) (address string, err error) {
	defer g.recoverSubmit(&err)
	return g.inner.Connect(ctx)
}

func (g *guarded) SignAndSubmit(ctx context.Context, payload Payload) (hash string, err error) {
	defer g.recoverSubmit(&err)
	hash, err = g.inner.SignAndSubmit(ctx, payload)
	if err != nil {
		err = NormalizeSubmitError(g.inner.ID(), err)
	}
	return hash, err
}

func (g *guarded) Disconnect(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider panic during disconnect: %v", r)
		}
	}()
	return g.inner.Disconnect(ctx)
}

func (g *guarded) recoverSubmit(err *error) {
	if r := recover(); r != nil {
		*err = NewSubmitError(g.inner.ID(), SubmitUnknown, fmt.Sprintf("provider panic: %v", r), nil)
	}
}
