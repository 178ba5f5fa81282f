package signal

import (
	"encoding/json"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/protocol"
)

func (ctl *SignalWSController) handlePing(cid core.ConnID) error {
	ctl.Orch.SendTo(cid, protocol.EventPong, nil)
	return nil
}

// decoded decodes and validates data into a P, then runs fn with it.
func decoded[P any](data json.RawMessage, fn func(P) error) error {
	var p P
	if err := protocol.Decode(data, &p); err != nil {
		return err
	}
	return fn(p)
}
