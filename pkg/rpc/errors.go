package rpc

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lattice-acs/acs/pkg/common"
)

// httpError maps an ACSError's Kind to the HTTP status the RPC edge
// returns, per spec §7's error propagation policy. Kinds not listed
// here are internal failures we don't want to leak detail about.
func httpError(err error) *echo.HTTPError {
	acsErr := common.AsACSError(err)

	code := http.StatusInternalServerError
	switch acsErr.Kind {
	case common.KindInvalidArgument, common.KindNameEmpty, common.KindEdgeKindError,
		common.KindPermInvalid, common.KindTranslationError, common.KindCycleError,
		common.KindAuditInvalid:
		code = http.StatusBadRequest
	case common.KindNotFound:
		code = http.StatusNotFound
	case common.KindIdConflict, common.KindAlreadyAssigned:
		code = http.StatusConflict
	case common.KindBufferFull:
		code = http.StatusServiceUnavailable
	case common.KindDeadlineExceeded:
		code = http.StatusGatewayTimeout
	case common.KindCancelled, common.KindCancelledAfterCmt:
		code = 499 // client closed request, matching nginx's convention
	case common.KindAccessDenied:
		code = http.StatusForbidden
	case common.KindAccessViolation, common.KindBulkPartial:
		code = http.StatusUnprocessableEntity
	case common.KindAuditIntegrityFail:
		code = http.StatusConflict
	}

	return echo.NewHTTPError(code, echo.Map{
		"kind":    string(acsErr.Kind),
		"message": acsErr.Msg,
	})
}
