package recovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/openfga/recordrelay/pkg/logger"
)

// InternalServerErrorMsg is the only detail a caller gets about a recovered panic.
const InternalServerErrorMsg = "internal server error"

// HTTPPanicRecoveryHandler recovers from panics of the http endpoints (metrics).
func HTTPPanicRecoveryHandler(next http.Handler, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				l.Error("HTTPPanicRecoveryHandler has recovered a panic",
					logger.Error(fmt.Errorf("%v", p)),
					logger.String("path", r.URL.Path),
					logger.ByteString("stacktrace", debug.Stack()),
				)

				body, err := json.Marshal(map[string]string{
					"code":    codes.Internal.String(),
					"message": InternalServerErrorMsg,
				})
				if err != nil {
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}

				w.Header().Set("content-type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write(body)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// PanicRecoveryHandler recovers from panics for unary/stream services.
func PanicRecoveryHandler(l logger.Logger) grpc_recovery.RecoveryHandlerFuncContext {
	return func(ctx context.Context, p any) error {
		l.ErrorWithContext(ctx, "PanicRecoveryHandler has recovered a panic",
			logger.Error(fmt.Errorf("%v", p)),
			logger.ByteString("stacktrace", debug.Stack()),
		)

		return status.Error(codes.Internal, InternalServerErrorMsg)
	}
}
