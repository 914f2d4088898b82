package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/heatshop-checkout/internal/apperr"
	"github.com/imrishuroy/heatshop-checkout/internal/logging"
)

type errorBody struct {
	Error     apperr.Kind       `json:"error"`
	Message   string            `json:"message,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	ProductID string            `json:"product_id,omitempty"`
}

// fail logs infrastructure errors with their chain and renders the error.
func (a *api) fail(c *gin.Context, err error) {
	if apperr.KindOf(err) == apperr.KindInfrastructure {
		logging.FromContext(c.Request.Context(), a.logger).Error("request failed",
			zap.String("path", c.FullPath()), zap.Error(err))
	}
	writeError(c, err)
}

// writeError renders err without its internal chain.
func writeError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	body := errorBody{Error: kind}
	if e, ok := apperr.As(err); ok {
		body.Message = e.Message
		body.Fields = e.Fields
		body.ProductID = e.ProductID
	}
	if kind == apperr.KindInfrastructure {
		body.Message = "temporary failure, please retry"
	}
	c.JSON(apperr.HTTPStatus(kind), body)
}
