package server

import (
	"errors"
	"log"
	"net/http"

	"econ-empire/internal/game"

	"github.com/gin-gonic/gin"
)

func writeError(c *gin.Context, err error) {
	kind := game.KindOf(err)
	status := statusFor(err, kind)
	message := err.Error()
	if kind == game.KindInternal || kind == game.KindFatal {
		log.Printf("request failed method=%s path=%s error=%v", c.Request.Method, c.FullPath(), err)
		message = "internal error"
	}
	c.JSON(status, gin.H{
		"error": message,
		"code":  game.CodeOf(err),
	})
}

func statusFor(err error, kind game.Kind) int {
	switch kind {
	case game.KindValidation:
		return http.StatusBadRequest
	case game.KindStateConflict:
		return http.StatusConflict
	case game.KindAuthorization:
		if errors.Is(err, game.ErrUnauthenticated) {
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	case game.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
