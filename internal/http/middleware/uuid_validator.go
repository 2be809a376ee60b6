package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
)

// PathIDKey - ключ, под которым разобранный идентификатор из пути лежит в gin.Context.
func PathIDKey(param string) string {
	return "pathID:" + param
}

// UUIDValidator разбирает параметры пути как UUID и кладёт их в контекст.
// Ответ при ошибке в том же формате, что у ErrorHandler.
//
//	router.GET("/evidence/:id/:name", UUIDValidator("id"), handler.Download)
func UUIDValidator(params ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, name := range params {
			id, err := uuid.Parse(c.Param(name))
			if err != nil || id == uuid.Nil {
				abortValidation(c, "параметр "+name+" должен быть непустым UUID")
				return
			}
			c.Set(PathIDKey(name), id)
		}
		c.Next()
	}
}

func abortValidation(c *gin.Context, message string) {
	appErr := apperror.Validation(message)
	c.AbortWithStatusJSON(appErr.HTTPStatus, gin.H{"error": appErr.Message, "code": appErr.Code})
}
