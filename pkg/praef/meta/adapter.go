package meta

import (
	"github.com/praefectus-go/praef/pkg/praef/pcontext"
	"github.com/praefectus-go/praef/pkg/praef/transactor"
)

// TransactorAdapter implements Adapter on top of a *transactor.Transactor,
// letting a MetaTransactor sit directly above the voting layer.
type TransactorAdapter struct {
	tx *transactor.Transactor
}

// NewTransactorAdapter wraps tx for use as a MetaTransactor's Adapter.
func NewTransactorAdapter(tx *transactor.Transactor) *TransactorAdapter {
	return &TransactorAdapter{tx: tx}
}

func (a *TransactorAdapter) Accept(e pcontext.Event) { a.tx.Master().AddEvent(e) }

func (a *TransactorAdapter) Redact(e pcontext.Event) {
	key := e.Key()
	a.tx.Master().RedactEvent(key.Object, key.Instant, key.Serial)
}

func (a *TransactorAdapter) NodeCountDelta(sign int, when pcontext.Instant) pcontext.Event {
	return a.tx.NodeCountDelta(sign, when)
}
