package response

import (
	stderrors "errors"
	"net/http"

	"hostelops/pkg/errors"
	"hostelops/pkg/logger"
	"hostelops/pkg/pagination"

	"github.com/gin-gonic/gin"
)

// Response envelope for every JSON reply
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Reason  string      `json:"reason,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// ========== Success ==========

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    errors.CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    errors.CodeSuccess,
		Message: message,
		Data:    data,
	})
}

// SuccessWithPage list reply with page info
func SuccessWithPage(c *gin.Context, data interface{}, pageInfo *pagination.PageInfo) {
	c.JSON(http.StatusOK, gin.H{
		"code":      errors.CodeSuccess,
		"message":   "success",
		"data":      data,
		"page_info": pageInfo,
	})
}

// ========== Errors ==========

// Error writes code both as the HTTP status and in the envelope
func Error(c *gin.Context, code int, message string) {
	c.JSON(code, Response{
		Code:    code,
		Message: message,
	})
}

func BadRequest(c *gin.Context, message string) {
	Error(c, errors.CodeInvalidParam, message)
}

func Unauthorized(c *gin.Context, message string) {
	Error(c, errors.CodeUnauthorized, message)
}

func Forbidden(c *gin.Context, message string) {
	Error(c, errors.CodeForbidden, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, errors.CodeNotFound, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, errors.CodeServerError, message)
}

// FromError maps a domain error onto the code table. Unclassified errors
// are logged and hidden behind a generic 500.
func FromError(c *gin.Context, err error) {
	kind := errors.KindOf(err)
	if kind == errors.KindUnknown {
		logger.GetLogger().WithField("path", c.FullPath()).Errorf("unhandled error: %v", err)
		ServerError(c, "internal server error")
		return
	}

	resp := Response{
		Code:    kind.Code(),
		Message: err.Error(),
		Reason:  errors.ReasonOf(err),
	}

	var limitErr *errors.LimitError
	var appErr *errors.AppError
	switch {
	case stderrors.As(err, &limitErr):
		resp.Data = gin.H{
			"limit_name": limitErr.LimitName,
			"current":    limitErr.Current,
			"max":        limitErr.Max,
		}
	case stderrors.As(err, &appErr):
		resp.Message = appErr.Message
		if len(appErr.Details) > 0 {
			resp.Data = appErr.Details
		}
	}

	c.JSON(resp.Code, resp)
}
