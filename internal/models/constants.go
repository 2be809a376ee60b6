package models

// Роли пользователей
const (
	RoleBuyer  = "buyer"
	RoleSeller = "seller"
	RoleAdmin  = "admin"
	RoleSystem = "system"
)

// Типы событий, публикуемых после переходов
const (
	EventTransactionCreated    = "transaction.created"
	EventTransactionTransition = "transaction.transition"
	EventDisputeUpdated        = "dispute.updated"
	EventDisputeMessage        = "dispute.message"
	EventWithdrawalUpdated     = "withdrawal.updated"
)

// Ограничения пагинации
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)
