package domain

import "time"

// Customer описывает клиента CRM.
type Customer struct {
	ID    string
	Name  string
	Email string
	// Phone необязателен: nil означает, что телефон не указан.
	Phone     *string
	CreatedAt time.Time
}

// CustomerInput - входные данные для создания клиента.
type CustomerInput struct {
	Name  string
	Email string
	Phone *string
}

// PhoneValue возвращает телефон или пустую строку.
func (c Customer) PhoneValue() string {
	if c.Phone == nil {
		return ""
	}
	return *c.Phone
}
