package apperrors

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Respond writes err as a JSON error body with the status mapped from its kind.
// Untyped and persistence errors are logged and replaced by a public message.
func Respond(c *gin.Context, logger *zap.Logger, err error) {
	appErr, ok := As(err)
	if !ok {
		appErr = Wrap(KindInternal, err, "internal server error")
	}

	meta := MetadataFor(appErr.Kind())
	body := gin.H{"code": appErr.Kind()}

	switch appErr.Kind() {
	case KindInternal, KindPersistence:
		if logger != nil {
			logger.Error("request failed",
				zap.String("path", c.FullPath()),
				zap.String("kind", string(appErr.Kind())),
				zap.Error(err))
		}
		body["error"] = meta.PublicMessage
	default:
		body["error"] = appErr.Message()
	}

	if meta.DetailsAllowed && appErr.Details() != nil {
		body["details"] = appErr.Details()
	}

	c.AbortWithStatusJSON(meta.HTTPStatus, body)
}
