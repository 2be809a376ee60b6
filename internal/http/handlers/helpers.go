package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/domain/escrow"
	"github.com/ignatzorin/escrow-backend/internal/http/handlers/common"
)

// currentActor собирает участника операции из контекста авторизации.
func currentActor(c *gin.Context) (escrow.Actor, bool) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return escrow.Actor{}, false
	}
	role, _ := common.CurrentUserRole(c)
	return escrow.Actor{UserID: userID, Role: role}, true
}

// pathID читает UUID из параметра маршрута и отвечает 400 при ошибке.
func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := common.ParseUUIDParam(c, name)
	if err != nil {
		common.RespondBadRequest(c, "неверный идентификатор "+name)
		return uuid.Nil, false
	}
	return id, true
}

// bindJSON разбирает тело запроса и отвечает 400 при ошибке.
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		common.RespondBadRequest(c, "ошибка валидации запроса: "+err.Error())
		return false
	}
	return true
}
