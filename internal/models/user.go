package models

import "time"

// User is a patient account with a wallet.
type User struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	TelegramChatID int64     `json:"telegramChatId,omitempty"`
	WalletBalance  int64     `json:"walletBalance"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}
