package controllers

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/teamfeed/config"
	"github.com/cppla/teamfeed/middleware"
	"github.com/cppla/teamfeed/store"
	"github.com/cppla/teamfeed/utils"
)

var kindStatus = map[store.Kind]int{
	store.KindValidation:       http.StatusBadRequest,
	store.KindUnauthenticated:  http.StatusUnauthorized,
	store.KindPermissionDenied: http.StatusForbidden,
	store.KindNotFound:         http.StatusNotFound,
	store.KindConflict:         http.StatusConflict,
	store.KindInternal:         http.StatusInternalServerError,
}

// respondError maps a store error to the error envelope. Internal details
// only reach the client in debug mode.
func respondError(ctx *gin.Context, err error) {
	var se *store.Error
	if !errors.As(err, &se) {
		se = store.Internal(err, "unexpected error")
	}
	status, ok := kindStatus[se.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	code := status * 100

	if se.Kind == store.KindInternal {
		utils.Sugar.Errorw("request failed", "method", ctx.Request.Method, "path", ctx.Request.URL.Path, "error", err)
		var details interface{}
		if strings.EqualFold(config.Get().GinMode, "debug") {
			details = err.Error()
		}
		utils.ErrorWithDetails(ctx, status, code, "internal server error", details)
		return
	}
	utils.ErrorWithDetails(ctx, status, code, se.Message, se.Details())
}

// badRequest reports a malformed request body.
func badRequest(ctx *gin.Context, msg string) {
	utils.Error(ctx, http.StatusBadRequest, 40001, msg)
}

func getUserID(ctx *gin.Context) (uint, bool) {
	return middleware.UserID(ctx)
}

// mustUserID aborts with 401 when the request carries no identity.
func mustUserID(ctx *gin.Context) (uint, bool) {
	id, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
	}
	return id, ok
}

// pathID parses a positive numeric path parameter; unknown ids are 404.
func pathID(ctx *gin.Context, name string) (uint, bool) {
	n, err := strconv.ParseUint(strings.TrimSpace(ctx.Param(name)), 10, 64)
	if err != nil || n == 0 {
		utils.Error(ctx, http.StatusNotFound, 40400, "not found")
		return 0, false
	}
	return uint(n), true
}

// isMultipart reports a multipart/form-data request.
func isMultipart(ctx *gin.Context) bool {
	return strings.HasPrefix(ctx.ContentType(), "multipart/form-data")
}

// multipartForm parses a multipart body of at most limit bytes. It writes
// the error response itself and reports whether parsing succeeded.
func multipartForm(ctx *gin.Context, limit int64) (*multipart.Form, bool) {
	if ctx.Request.ContentLength > limit {
		tooLarge(ctx)
		return nil, false
	}
	ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, limit)
	form, err := ctx.MultipartForm()
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			tooLarge(ctx)
		} else {
			badRequest(ctx, "invalid multipart form")
		}
		return nil, false
	}
	return form, true
}

func tooLarge(ctx *gin.Context) {
	utils.Error(ctx, http.StatusRequestEntityTooLarge, 41300, "request body too large")
}

// formUploads collects the files of a multipart field.
func formUploads(form *multipart.Form, field string) []store.Upload {
	var uploads []store.Upload
	for _, fh := range form.File[field] {
		uploads = append(uploads, store.UploadFromFileHeader(fh))
	}
	return uploads
}
