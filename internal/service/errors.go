package service

import (
	"errors"

	"github.com/ignatzorin/escrow-backend/internal/gateway"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/repository"
	"github.com/ignatzorin/escrow-backend/internal/repository/common"
)

// mapRepoError переводит ошибки хранилища в AppError.
func mapRepoError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}

	switch {
	case errors.Is(err, common.ErrStaleState):
		return apperror.Conflict(err, "состояние изменилось, повторите запрос")
	case errors.Is(err, repository.ErrTransactionNotFound):
		return apperror.ErrTransactionNotFound
	case errors.Is(err, repository.ErrDisputeNotFound):
		return apperror.ErrDisputeNotFound
	case errors.Is(err, repository.ErrWithdrawalNotFound):
		return apperror.ErrWithdrawalNotFound
	case errors.Is(err, repository.ErrNotificationNotFound):
		return apperror.New(apperror.ErrCodeNotFound, "уведомление не найдено")
	case errors.Is(err, repository.ErrInsufficientFunds):
		return apperror.InsufficientFunds("недостаточно средств")
	case errors.Is(err, repository.ErrDisputeExists):
		return apperror.InvalidTransition("по транзакции уже открыт спор")
	case errors.Is(err, repository.ErrDuplicateReference):
		return apperror.Conflict(err, "платёжная ссылка уже использована")
	case errors.Is(err, common.ErrNotFound):
		return apperror.New(apperror.ErrCodeNotFound, "запись не найдена")
	}
	return apperror.Wrap(err, apperror.ErrCodeInternal, "внутренняя ошибка")
}

func mapGatewayError(err error) error {
	if errors.Is(err, gateway.ErrRejected) {
		return apperror.External(err, "платёжный шлюз отклонил запрос")
	}
	return apperror.External(err, "платёжный шлюз недоступен")
}
