package signal

import (
	"encoding/json"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleUserConnect(cid core.ConnID, data json.RawMessage) error {
	return decoded(data, func(p protocol.UserConnect) error {
		if err := ctl.Orch.UserConnect(cid, p); err != nil {
			return err
		}
		log.Info().Str("module", "signal").Str("conn", string(cid)).Str("user", string(p.UserID)).Msg("user connected")
		return nil
	})
}
