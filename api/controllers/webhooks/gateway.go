package webhooks

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"

	"github.com/scraplink/scraplink-backend/api/responses"
	gatewaywebhook "github.com/scraplink/scraplink-backend/internal/webhooks/gateway"
	pkgerrors "github.com/scraplink/scraplink-backend/pkg/errors"
	"github.com/scraplink/scraplink-backend/pkg/gateway"
	"github.com/scraplink/scraplink-backend/pkg/logger"
)

const callbackTokenHeader = "X-Callback-Token"

// maxCallbackBody caps payload reads so a hostile sender cannot exhaust memory.
const maxCallbackBody = 1 << 20

// GatewayCallback ingests asynchronous payment notifications. Business
// outcomes always acknowledge with 200 so the gateway stops retrying;
// transient failures return 5xx to request a redelivery.
func GatewayCallback(svc *gatewaywebhook.Service, callbackToken string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		token := r.Header.Get(callbackTokenHeader)
		if callbackToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(callbackToken)) != 1 {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid callback token"))
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
		if err != nil {
			// A body that cannot be read will never parse on redelivery
			// either; acknowledge so the gateway stops retrying.
			logg.Error(ctx, "unreadable callback body", err)
			responses.WriteSuccess(w, map[string]string{"outcome": string(gatewaywebhook.OutcomeIgnored)})
			return
		}

		var event gateway.CallbackEvent
		if err := json.Unmarshal(body, &event); err != nil {
			logg.Error(ctx, "malformed callback payload", err)
			responses.WriteSuccess(w, map[string]string{"outcome": string(gatewaywebhook.OutcomeIgnored)})
			return
		}
		event.RawPayload = body

		outcome, err := svc.HandleCallback(ctx, event)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"outcome": string(outcome)})
	}
}
